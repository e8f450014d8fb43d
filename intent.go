// Package checkout 重定向支付结账相关功能
package checkout

import "strings"

// IntentType 支付意图类型
type IntentType string

// 支付意图类型常量定义
const (
	IntentSale      IntentType = "sale"      // 立即扣款
	IntentAuthorize IntentType = "authorize" // 预授权
	IntentOrder     IntentType = "order"     // 订单
)

// ParseIntentType 解析支付意图类型，空字符串默认为 sale
func ParseIntentType(s string) (IntentType, error) {
	switch t := IntentType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return IntentSale, nil
	case IntentSale, IntentAuthorize, IntentOrder:
		return t, nil
	default:
		return "", malformed("intent", "unsupported intent %q", s)
	}
}

// PaymentIntent 待提交到网关的支付意图
// 由 NewPaymentIntent 构建，提交前不可修改
type PaymentIntent struct {
	intent       IntentType
	payer        PayerDescriptor
	redirects    RedirectTargets
	transactions []Transaction
}

// NewPaymentIntent 组合付款人、返回地址和交易，生成支付意图
// 参数:
//   - intent: 意图类型
//   - payer: 付款人描述
//   - redirects: 返回地址
//   - transactions: 至少一笔交易，且货币一致
//
// 返回:
//   - PaymentIntent: 支付意图
//   - error: 参数非法时返回 MalformedInput
func NewPaymentIntent(intent IntentType, payer PayerDescriptor, redirects RedirectTargets, transactions ...Transaction) (PaymentIntent, error) {
	if _, err := ParseIntentType(string(intent)); err != nil {
		return PaymentIntent{}, err
	}
	if intent == "" {
		intent = IntentSale
	}
	if payer.Method == "" {
		return PaymentIntent{}, malformed("payer", "payer is required")
	}
	if payer.NeedsApproval() && (redirects.ReturnURL == "" || redirects.CancelURL == "") {
		return PaymentIntent{}, malformed("return_url", "redirect targets are required for %s payments", payer.Method)
	}
	if len(transactions) == 0 {
		return PaymentIntent{}, malformed("transactions", "at least one transaction is required")
	}
	cur := transactions[0].amount.currency
	for _, t := range transactions[1:] {
		if t.amount.currency != cur {
			return PaymentIntent{}, malformed("transactions", "transactions mix currencies %s and %s",
				cur.Code(), t.amount.currency.Code())
		}
	}
	txs := make([]Transaction, len(transactions))
	copy(txs, transactions)
	return PaymentIntent{
		intent:       intent,
		payer:        payer,
		redirects:    redirects,
		transactions: txs,
	}, nil
}

func (p PaymentIntent) Intent() IntentType         { return p.intent }
func (p PaymentIntent) Payer() PayerDescriptor     { return p.payer }
func (p PaymentIntent) Redirects() RedirectTargets { return p.redirects }

// Transactions 返回交易副本
func (p PaymentIntent) Transactions() []Transaction {
	out := make([]Transaction, len(p.transactions))
	copy(out, p.transactions)
	return out
}

// InvoiceNumber 返回第一笔交易的发票号，作为整个意图的幂等键
func (p PaymentIntent) InvoiceNumber() string {
	if len(p.transactions) == 0 {
		return ""
	}
	return p.transactions[0].invoiceNumber
}

// IntentHandle 网关创建支付后返回的句柄
// 调用方需在跳转期间自行保存 PaymentID
type IntentHandle struct {
	PaymentID   string       // 网关分配的支付ID
	ApprovalURL string       // 买家确认页面地址
	State       PaymentState // 网关返回的状态
}

// IntentStatus 网关查询到的支付状态
type IntentStatus struct {
	PaymentID     string       // 支付ID
	State         PaymentState // 归一化后的状态
	RawState      string       // 网关原始状态
	PayerID       string       // 付款人ID
	InvoiceNumber string       // 发票号
	Currency      string       // 货币
	Total         string       // 总额，网关返回的十进制字符串
}

// ExecutionResult 网关执行支付的结果
type ExecutionResult struct {
	PaymentID string       // 支付ID
	State     PaymentState // 归一化后的状态
	RawState  string       // 网关原始状态
}
