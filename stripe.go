// Package checkout 重定向支付结账相关功能
package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripeClient "github.com/stripe/stripe-go/v74/client"
)

// StripeConfig Stripe 网关配置
type StripeConfig struct {
	SecretKey string        // 秘密密钥
	Endpoint  string        // 接口地址，为空时使用 Stripe 默认地址
	Timeout   time.Duration // 请求超时
	Logger    *logrus.Logger
}

// StripeGateway Stripe 结账会话网关
// 创建手动 capture 的结账会话，买家完成后通过 capture 执行支付
// 使用独立的 client.API，不修改全局 stripe.Key
type StripeGateway struct {
	api *stripeClient.API
	log *logrus.Entry
}

// NewStripeGateway 创建 Stripe 网关
// 参数:
//   - cfg: 网关配置
//
// 返回:
//   - *StripeGateway: Stripe 网关
//   - error: 密钥缺失时返回错误
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0), // 重试由调用方的策略控制
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.Endpoint != "" {
		backendConfig.URL = stripe.String(cfg.Endpoint)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)
	api := stripeClient.New(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StripeGateway{api: api, log: logger.WithField("gateway", "stripe")}, nil
}

// stripeLineItems 将交易转换为结账会话的行项目
// 行项目之和与小计不一致时合并为一行，运费和税费各占一行，保证会话总额等于交易总额
func stripeLineItems(t Transaction) []*stripe.CheckoutSessionLineItemParams {
	amount := t.Amount()
	cur := amount.Currency()
	line := func(name string, description string, unit Money, quantity int64) *stripe.CheckoutSessionLineItemParams {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)}
		if description != "" {
			product.Description = stripe.String(description)
		}
		return &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(cur.Code())),
				ProductData: product,
				UnitAmount:  stripe.Int64(unit.Minor()),
			},
			Quantity: stripe.Int64(quantity),
		}
	}

	subtotal := amount.Total()
	b := amount.Breakdown()
	if b != nil {
		subtotal = b.Subtotal
	}
	var lines []*stripe.CheckoutSessionLineItemParams
	items := t.Items()
	if items.Len() > 0 && items.Subtotal() == subtotal {
		for _, i := range items.Items() {
			lines = append(lines, line(i.Name(), i.Description(), i.UnitPrice(), i.Quantity()))
		}
	} else {
		name := t.Description()
		if name == "" {
			name = "Order " + t.InvoiceNumber()
		}
		lines = append(lines, line(name, "", subtotal, 1))
	}
	if b != nil && b.Shipping > 0 {
		lines = append(lines, line("Shipping", "", b.Shipping, 1))
	}
	if b != nil && b.Tax > 0 {
		lines = append(lines, line("Tax", "", b.Tax, 1))
	}
	return lines
}

// stripeError 将 Stripe 错误转换为错误分类
func stripeError(op string, err error) *Error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return &Error{Kind: KindGatewayUnavailable, Op: op, Err: err}
	}
	e := &Error{Op: op, Code: string(se.Code), Message: se.Msg, DebugID: se.RequestID, Err: err}
	switch status := se.HTTPStatusCode; {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuthFailure
	case status == http.StatusTooManyRequests || status >= 500 || status == 0:
		e.Kind = KindGatewayUnavailable
	default:
		e.Kind = KindGatewayRejected
	}
	return e
}

// stripeSessionState 根据结账会话和支付意图状态归一化
func stripeSessionState(s *stripe.CheckoutSession) (PaymentState, string) {
	switch s.Status {
	case stripe.CheckoutSessionStatusOpen: // 结账会话仍在进行中
		return PaymentStateCreated, string(s.Status)
	case stripe.CheckoutSessionStatusExpired: // 结账会话已过期
		return PaymentStateTimeout, string(s.Status)
	case stripe.CheckoutSessionStatusComplete:
		// 买家已完成，继续检查支付意图
	default:
		return PaymentStateError, string(s.Status)
	}
	if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return PaymentStatePaid, string(s.PaymentStatus)
	}
	if s.PaymentIntent == nil {
		return PaymentStateCreated, string(s.Status)
	}
	raw := string(s.PaymentIntent.Status)
	switch s.PaymentIntent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return PaymentStatePaid, raw
	case stripe.PaymentIntentStatusCanceled:
		return PaymentStateCanceled, raw
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusProcessing:
		return PaymentStateCreated, raw
	default:
		return PaymentStateError, raw
	}
}

// CreateIntent 创建结账会话并返回买家支付页面地址
func (pp *StripeGateway) CreateIntent(ctx context.Context, intent PaymentIntent) (*IntentHandle, error) {
	if intent.Payer().Method != MethodPaypal {
		return nil, &Error{Kind: KindGatewayRejected, Op: "create", Code: "unsupported_payment_method",
			Message: "stripe checkout only supports redirect payments"}
	}
	txs := intent.Transactions()
	t := txs[0]
	var lines []*stripe.CheckoutSessionLineItemParams
	for _, tx := range txs {
		lines = append(lines, stripeLineItems(tx)...)
	}
	redirects := intent.Redirects()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lines,
		SuccessURL:        stripe.String(redirects.ReturnURL),
		CancelURL:         stripe.String(redirects.CancelURL),
		ClientReferenceID: stripe.String(t.InvoiceNumber()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		},
	}
	if t.Description() != "" {
		params.PaymentIntentData.Description = stripe.String(t.Description())
	}
	params.Context = ctx
	params.SetIdempotencyKey("create-" + t.InvoiceNumber())
	params.AddMetadata("invoice_number", t.InvoiceNumber())

	sCheckout, err := pp.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError("create", err)
	}
	state, _ := stripeSessionState(sCheckout)
	return &IntentHandle{
		PaymentID:   sCheckout.ID,
		ApprovalURL: sCheckout.URL,
		State:       state,
	}, nil
}

func (pp *StripeGateway) getSession(ctx context.Context, op string, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	sCheckout, err := pp.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, stripeError(op, err)
	}
	return sCheckout, nil
}

// FetchIntent 查询结账会话状态
func (pp *StripeGateway) FetchIntent(ctx context.Context, paymentID string) (*IntentStatus, error) {
	sCheckout, err := pp.getSession(ctx, "fetch", paymentID)
	if err != nil {
		return nil, err
	}
	state, raw := stripeSessionState(sCheckout)
	status := &IntentStatus{
		PaymentID:     sCheckout.ID,
		State:         state,
		RawState:      raw,
		InvoiceNumber: sCheckout.ClientReferenceID,
		Currency:      strings.ToUpper(string(sCheckout.Currency)),
	}
	if cur, err := ParseCurrency(status.Currency); err == nil {
		status.Total = Money(sCheckout.AmountTotal).Format(cur)
	}
	if sCheckout.Customer != nil {
		status.PayerID = sCheckout.Customer.ID
	}
	return status, nil
}

// ExecuteIntent capture 结账会话的支付意图
// 幂等键使用发票号，重复执行不会重复扣款
func (pp *StripeGateway) ExecuteIntent(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error) {
	sCheckout, err := pp.getSession(ctx, "execute", req.PaymentID)
	if err != nil {
		return nil, err
	}
	if sCheckout.Status != stripe.CheckoutSessionStatusComplete || sCheckout.PaymentIntent == nil {
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: "session_not_complete",
			Message: "checkout session has not been completed by the buyer"}
	}
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(req.Amount.Total().Minor()),
	}
	params.Context = ctx
	key := req.IdempotencyKey
	if key == "" {
		key = sCheckout.ClientReferenceID
	}
	if key != "" {
		params.SetIdempotencyKey("execute-" + key)
	}
	pp.log.WithFields(logrus.Fields{"payment_id": req.PaymentID, "payer_id": req.PayerID}).Debug("stripe capture payment intent")

	sIntent, err := pp.api.PaymentIntents.Capture(sCheckout.PaymentIntent.ID, params)
	if err != nil {
		return nil, stripeError("execute", err)
	}
	state := PaymentStateCreated
	if sIntent.Status == stripe.PaymentIntentStatusSucceeded {
		state = PaymentStatePaid
	}
	return &ExecutionResult{
		PaymentID: sCheckout.ID,
		State:     state,
		RawState:  string(sIntent.Status),
	}, nil
}
