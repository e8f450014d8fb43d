// Package checkout 重定向支付结账相关功能
package checkout

import "fmt"

// CostBreakdown 金额明细：运费、税费、小计
type CostBreakdown struct {
	Shipping Money // 运费
	Tax      Money // 税费
	Subtotal Money // 小计
}

// Sum 返回明细之和，超出金额表示范围时返回错误
func (b CostBreakdown) Sum() (Money, error) {
	return sumMoney(b.Shipping, b.Tax, b.Subtotal)
}

// NewCostBreakdown 由调用方记录构建金额明细
// 参数:
//   - f: 明细记录，字段 shipping、tax、subtotal 必填
//   - cur: 货币
//
// 返回:
//   - CostBreakdown: 金额明细
//   - error: 字段缺失、为负或精度非法时返回 MalformedInput
func NewCostBreakdown(f Fields, cur Currency) (CostBreakdown, error) {
	shipping, err := f.Money("shipping", cur)
	if err != nil {
		return CostBreakdown{}, err
	}
	tax, err := f.Money("tax", cur)
	if err != nil {
		return CostBreakdown{}, err
	}
	subtotal, err := f.Money("subtotal", cur)
	if err != nil {
		return CostBreakdown{}, err
	}
	return CostBreakdown{Shipping: shipping, Tax: tax, Subtotal: subtotal}, nil
}

// Amount 金额：货币 + 总额 + 可选明细
type Amount struct {
	currency  Currency
	total     Money
	breakdown *CostBreakdown
}

// NewAmount 构建金额
// 给出明细时，shipping + tax + subtotal 必须精确等于 total，否则返回 AmountMismatch
func NewAmount(cur Currency, total Money, breakdown *CostBreakdown) (Amount, error) {
	if cur.IsZero() {
		return Amount{}, malformed("currency", "currency is required")
	}
	if total < 0 {
		return Amount{}, malformed("total", "total must be non-negative")
	}
	if breakdown != nil {
		// 按精确十进制比较，明细之和不会溢出回绕
		sum := sumDecimal(breakdown.Shipping, breakdown.Tax, breakdown.Subtotal)
		if !sum.Equal(sumDecimal(total)) {
			return Amount{}, &Error{
				Kind:  KindAmountMismatch,
				Field: "total",
				Message: fmt.Sprintf("shipping %s + tax %s + subtotal %s = %s, total is %s",
					breakdown.Shipping.Format(cur), breakdown.Tax.Format(cur), breakdown.Subtotal.Format(cur),
					formatUnits(sum, cur), total.Format(cur)),
			}
		}
		b := *breakdown
		breakdown = &b
	}
	return Amount{currency: cur, total: total, breakdown: breakdown}, nil
}

// BuildAmount 由一条记录（shipping、tax、subtotal、total）构建带明细的金额
// CREATE 与 EXECUTE 使用同一校验
func BuildAmount(f Fields, cur Currency) (Amount, error) {
	if _, err := f.Currency("currency", cur); err != nil {
		return Amount{}, err
	}
	breakdown, err := NewCostBreakdown(f, cur)
	if err != nil {
		return Amount{}, err
	}
	total, err := f.Money("total", cur)
	if err != nil {
		return Amount{}, err
	}
	return NewAmount(cur, total, &breakdown)
}

func (a Amount) Currency() Currency { return a.currency }
func (a Amount) Total() Money       { return a.total }

// Breakdown 返回明细副本，未设置时返回 nil
func (a Amount) Breakdown() *CostBreakdown {
	if a.breakdown == nil {
		return nil
	}
	b := *a.breakdown
	return &b
}

// Equal 判断两个金额的货币、总额和明细是否一致
func (a Amount) Equal(o Amount) bool {
	if a.currency != o.currency || a.total != o.total {
		return false
	}
	if (a.breakdown == nil) != (o.breakdown == nil) {
		return false
	}
	return a.breakdown == nil || *a.breakdown == *o.breakdown
}
