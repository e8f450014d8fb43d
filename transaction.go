// Package checkout 重定向支付结账相关功能
package checkout

import "strings"

// Transaction 交易：金额 + 行项目 + 描述 + 发票号
type Transaction struct {
	amount        Amount
	items         ItemCollection
	description   string
	invoiceNumber string
}

// NewTransaction 构建交易
// 参数:
//   - amount: 金额
//   - items: 行项目集合，可以为空
//   - description: 描述，可以为空
//   - invoiceNumber: 调用方选择的幂等令牌，必填
//
// 返回:
//   - Transaction: 交易
//   - error: 发票号缺失或行项目货币与金额不一致时返回 MalformedInput
func NewTransaction(amount Amount, items ItemCollection, description string, invoiceNumber string) (Transaction, error) {
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return Transaction{}, malformed("invoice_number", "invoice number is required")
	}
	if amount.Currency().IsZero() {
		return Transaction{}, malformed("amount", "amount is required")
	}
	for _, item := range items.items {
		if item.currency != amount.currency {
			return Transaction{}, malformed("items", "item %q currency %s does not match amount currency %s",
				item.name, item.currency.Code(), amount.currency.Code())
		}
	}
	return Transaction{
		amount:        amount,
		items:         items,
		description:   description,
		invoiceNumber: invoiceNumber,
	}, nil
}

func (t Transaction) Amount() Amount        { return t.amount }
func (t Transaction) Items() ItemCollection { return t.items }
func (t Transaction) Description() string   { return t.description }
func (t Transaction) InvoiceNumber() string { return t.invoiceNumber }
