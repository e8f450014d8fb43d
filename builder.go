// Package checkout 重定向支付结账相关功能
package checkout

// CreateRequest 创建支付的调用方输入
type CreateRequest struct {
	Intent        string   `json:"intent,omitempty"` // 意图类型，默认 sale
	Payer         Fields   `json:"payer"`            // 付款人记录
	Items         []Fields `json:"items"`            // 商品记录，按展示顺序
	Amount        Fields   `json:"amount"`           // shipping、tax、subtotal、total
	Description   string   `json:"description"`      // 描述
	InvoiceNumber string   `json:"invoice_number"`   // 发票号（幂等令牌）
	ReturnURL     string   `json:"return_url"`       // 基础返回地址
}

// Builder 支付意图构建器
// 绑定结账配置的货币，不做任何 I/O
type Builder struct {
	currency Currency
	intent   IntentType // 请求未指定意图时使用
}

// NewBuilder 创建构建器
func NewBuilder(cur Currency) *Builder {
	return &Builder{currency: cur, intent: IntentSale}
}

// Currency 返回构建器的货币
func (b *Builder) Currency() Currency { return b.currency }

// Build 将调用方输入组装为支付意图
// 参数:
//   - req: 创建支付的输入
//
// 返回:
//   - PaymentIntent: 支付意图
//   - error: MalformedInput 或 AmountMismatch
func (b *Builder) Build(req CreateRequest) (PaymentIntent, error) {
	intent := b.intent
	if req.Intent != "" {
		parsed, err := ParseIntentType(req.Intent)
		if err != nil {
			return PaymentIntent{}, err
		}
		intent = parsed
	}
	payer, err := NewPayer(req.Payer)
	if err != nil {
		return PaymentIntent{}, prefixField("payer", err)
	}
	items, err := NewItemCollection(req.Items, b.currency)
	if err != nil {
		return PaymentIntent{}, err
	}
	amount, err := BuildAmount(req.Amount, b.currency)
	if err != nil {
		return PaymentIntent{}, prefixField("amount", err)
	}
	tx, err := NewTransaction(amount, items, req.Description, req.InvoiceNumber)
	if err != nil {
		return PaymentIntent{}, err
	}
	var redirects RedirectTargets
	if payer.NeedsApproval() || req.ReturnURL != "" {
		if redirects, err = NewRedirectTargets(req.ReturnURL); err != nil {
			return PaymentIntent{}, err
		}
	}
	return NewPaymentIntent(intent, payer, redirects, tx)
}

// prefixField 为错误字段加上所属记录名
func prefixField(prefix string, err error) error {
	if e, ok := err.(*Error); ok && e.Field != "" {
		out := *e
		out.Field = prefix + "." + e.Field
		return &out
	}
	return err
}
