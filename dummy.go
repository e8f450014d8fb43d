// Package checkout 重定向支付结账相关功能
package checkout

import (
	"context"
	"net/url"
	"sync"

	"github.com/rs/xid"
)

// DummyGateway 虚拟支付网关
// 用于开发和测试环境的内存模拟，行为与 PayPal v1 Payments 一致：
// 创建后等待买家确认，确认后才能执行，重复执行会被拒绝
type DummyGateway struct {
	AutoApprove bool // 创建后自动视为买家已确认

	mu       sync.Mutex
	payments map[string]*dummyPayment
}

type dummyPayment struct {
	intent   PaymentIntent
	state    PaymentState
	raw      string
	payerID  string
	executed string // 执行时使用的幂等键
}

// NewDummyGateway 创建虚拟支付网关
func NewDummyGateway(autoApprove bool) *DummyGateway {
	return &DummyGateway{AutoApprove: autoApprove, payments: map[string]*dummyPayment{}}
}

// CreateIntent 创建虚拟支付
// 确认地址为返回地址加上 paymentId 和 PayerID 参数
func (pp *DummyGateway) CreateIntent(_ context.Context, intent PaymentIntent) (*IntentHandle, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.payments == nil {
		pp.payments = map[string]*dummyPayment{}
	}
	for id, p := range pp.payments {
		if p.intent.InvoiceNumber() == intent.InvoiceNumber() {
			return nil, &Error{Kind: KindGatewayRejected, Op: "create", Code: "DUPLICATE_TRANSACTION",
				Message: "duplicate invoice number, payment " + id}
		}
	}
	id := "PAYID-" + xid.New().String()
	p := &dummyPayment{intent: intent, state: PaymentStateCreated, raw: "created"}
	handle := &IntentHandle{PaymentID: id}
	if intent.Payer().NeedsApproval() {
		p.payerID = GetRandomString(13)
		handle.ApprovalURL = approvalURL(intent.Redirects().ReturnURL, id, p.payerID)
		if pp.AutoApprove {
			p.raw = "approved_by_buyer"
		}
	} else {
		// 银行卡直付立即完成
		p.state, p.raw = PaymentStateApproved, "approved"
	}
	pp.payments[id] = p
	handle.State = p.state
	return handle, nil
}

func approvalURL(returnURL string, paymentID string, payerID string) string {
	q := url.Values{}
	q.Set("paymentId", paymentID)
	q.Set("PayerID", payerID)
	return appendMarker(returnURL, q.Encode())
}

// Approve 模拟买家在网关页面确认支付
func (pp *DummyGateway) Approve(paymentID string) (payerID string, err error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p, ok := pp.payments[paymentID]
	if !ok {
		return "", &Error{Kind: KindGatewayRejected, Op: "approve", Code: "INVALID_RESOURCE_ID", Message: "payment not found"}
	}
	p.raw = "approved_by_buyer"
	return p.payerID, nil
}

// FetchIntent 查询虚拟支付状态
func (pp *DummyGateway) FetchIntent(_ context.Context, paymentID string) (*IntentStatus, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p, ok := pp.payments[paymentID]
	if !ok {
		return nil, &Error{Kind: KindGatewayRejected, Op: "fetch", Code: "INVALID_RESOURCE_ID", Message: "payment not found"}
	}
	amount := p.intent.Transactions()[0].Amount()
	state := p.raw
	if state == "approved_by_buyer" {
		state = "created"
	}
	return &IntentStatus{
		PaymentID:     paymentID,
		State:         p.state,
		RawState:      state,
		PayerID:       p.payerID,
		InvoiceNumber: p.intent.InvoiceNumber(),
		Currency:      amount.Currency().Code(),
		Total:         amount.Total().Format(amount.Currency()),
	}, nil
}

// ExecuteIntent 执行虚拟支付
// 付款人或金额与创建时不一致时拒绝；使用相同幂等键重复执行时返回原结果
func (pp *DummyGateway) ExecuteIntent(_ context.Context, req ExecuteIntentRequest) (*ExecutionResult, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p, ok := pp.payments[req.PaymentID]
	if !ok {
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: "INVALID_RESOURCE_ID", Message: "payment not found"}
	}
	if p.state == PaymentStateApproved {
		if p.executed != "" && p.executed == req.IdempotencyKey {
			return &ExecutionResult{PaymentID: req.PaymentID, State: p.state, RawState: p.raw}, nil
		}
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: "PAYMENT_ALREADY_DONE", Message: "payment has already been executed"}
	}
	if p.raw != "approved_by_buyer" {
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: "PAYMENT_NOT_APPROVED_FOR_EXECUTION", Message: "payer has not approved payment"}
	}
	if req.PayerID != p.payerID {
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: "PAYER_ID_INVALID", Message: "payer id does not match"}
	}
	if !p.intent.Transactions()[0].Amount().Equal(req.Amount) {
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: "TRANSACTION_AMOUNT_MISMATCH", Message: "amount does not match the created payment"}
	}
	p.state, p.raw = PaymentStateApproved, "approved"
	p.executed = req.IdempotencyKey
	if p.executed == "" {
		p.executed = p.intent.InvoiceNumber()
	}
	return &ExecutionResult{PaymentID: req.PaymentID, State: p.state, RawState: p.raw}, nil
}
