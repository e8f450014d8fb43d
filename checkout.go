// Package checkout 重定向支付结账相关功能
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/sirupsen/logrus"
)

// Options 结账编排器配置
type Options struct {
	Currency string          // 结账货币，例如 "USD"
	Intent   string          // 默认意图，为空时为 sale
	Timeout  time.Duration   // 单次网关调用超时，0 表示不限制
	Retry    RetryPolicy     // 传输层重试策略
	Breaker  BreakerSettings // 熔断设置
	Logger   *logrus.Logger  // 日志，默认使用 logrus 标准日志
	Bus      EventBus.Bus    // 事件总线，可以为空
}

// Checkout 结账编排器
// 驱动 CREATE →（外部确认）→ EXECUTE 的状态机
// 每次调用相互独立，不保存可变状态，可并发使用
type Checkout struct {
	builder *Builder
	gateway Gateway
	events  emitter
}

// New 创建结账编排器
// 参数:
//   - gw: 网关适配器
//   - opts: 配置
//
// 返回:
//   - *Checkout: 结账编排器
//   - error: 货币非法或网关为空时返回错误
func New(gw Gateway, opts Options) (*Checkout, error) {
	if gw == nil {
		return nil, errors.New("checkout: gateway is required")
	}
	cur, err := ParseCurrency(opts.Currency)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	builder := NewBuilder(cur)
	if opts.Intent != "" {
		if builder.intent, err = ParseIntentType(opts.Intent); err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Checkout{
		builder: builder,
		gateway: newGuardedGateway(gw, opts.Timeout, opts.Retry, opts.Breaker),
		events: emitter{
			log: logger.WithField("component", "checkout"),
			bus: opts.Bus,
		},
	}, nil
}

// Currency 返回结账货币
func (c *Checkout) Currency() Currency { return c.builder.Currency() }

// CreateResult 创建支付的结果
// 成功时 State 为 AWAITING_APPROVAL 并带有 ApprovalURL；失败时 State 为 FAILED，Failure 说明原因
type CreateResult struct {
	State       State  `json:"state"`
	PaymentID   string `json:"payment_id,omitempty"`
	ApprovalURL string `json:"approval_url,omitempty"`
	Failure     *Error `json:"-"`
}

// ExecuteRequest 买家返回后执行支付的输入
// 金额由调用方重新提供，执行前会重新校验
type ExecuteRequest struct {
	PaymentID     string      `json:"payment_id"`
	PayerID       string      `json:"payer_id"`
	Shipping      interface{} `json:"shipping"`
	Tax           interface{} `json:"tax"`
	Subtotal      interface{} `json:"subtotal"`
	Total         interface{} `json:"total"`
	InvoiceNumber string      `json:"invoice_number,omitempty"` // 可选，作为执行的幂等键
}

// ExecuteResult 执行支付的结果
type ExecuteResult struct {
	State     State         `json:"state"`
	Success   bool          `json:"success"`
	PaymentID string        `json:"payment_id"`
	Status    *IntentStatus `json:"-"`
	Failure   *Error        `json:"-"`
}

// flow 单次调用内的状态跟踪
type flow struct {
	op        string
	state     State
	paymentID string
	invoice   string
	started   time.Time
	events    emitter
}

func (c *Checkout) newFlow(op string, initial State) *flow {
	return &flow{op: op, state: initial, started: time.Now(), events: c.events}
}

func (f *flow) event(to State, err *Error) Event {
	now := time.Now()
	return Event{
		Op:            f.op,
		PaymentID:     f.paymentID,
		InvoiceNumber: f.invoice,
		From:          f.state,
		To:            to,
		Err:           err,
		Duration:      now.Sub(f.started),
		At:            now,
	}
}

func (f *flow) to(next State) error {
	if !CanTransitionTo(f.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.state, next)
	}
	f.events.emit(f.event(next, nil))
	f.state = next
	return nil
}

// fail 迁移到 FAILED 并返回分类后的错误
func (f *flow) fail(err error) *Error {
	e := withOp(f.op, err)
	f.events.emit(f.event(StateFailed, e))
	f.state = StateFailed
	return e
}

// Create 组装支付意图并提交到网关
// 参数:
//   - ctx: 上下文
//   - req: 创建支付的输入
//
// 返回:
//   - *CreateResult: 始终非空，携带最终状态
//   - error: 失败时为 *Error，分类为 MalformedInput、AmountMismatch 或网关错误
func (c *Checkout) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	f := c.newFlow("create", StateBuilding)
	f.invoice = strings.TrimSpace(req.InvoiceNumber)

	intent, err := c.builder.Build(req)
	if err != nil {
		return c.createFailed(f, err)
	}
	if err := f.to(StateCreated); err != nil {
		return c.createFailed(f, err)
	}

	handle, err := c.gateway.CreateIntent(ctx, intent)
	if err != nil {
		return c.createFailed(f, err)
	}
	f.paymentID = handle.PaymentID

	if handle.ApprovalURL == "" {
		// 银行卡直付无需买家确认，网关已完成支付
		if !intent.Payer().NeedsApproval() && handle.State.IsSettled() {
			if err := f.to(StateExecuted); err != nil {
				return c.createFailed(f, err)
			}
			return &CreateResult{State: f.state, PaymentID: handle.PaymentID}, nil
		}
		return c.createFailed(f, &Error{
			Kind:    KindGatewayRejected,
			Message: fmt.Sprintf("gateway returned no approval URL (state %s)", handle.State),
		})
	}

	if err := f.to(StateAwaitingApproval); err != nil {
		return c.createFailed(f, err)
	}
	return &CreateResult{
		State:       f.state,
		PaymentID:   handle.PaymentID,
		ApprovalURL: handle.ApprovalURL,
	}, nil
}

func (c *Checkout) createFailed(f *flow, err error) (*CreateResult, error) {
	e := f.fail(err)
	return &CreateResult{State: StateFailed, PaymentID: f.paymentID, Failure: e}, e
}

// Execute 买家确认后执行支付并确认结果
// 金额不一致时直接失败，不访问网关；执行成功但确认查询失败时返回 ConfirmationFailed
// 参数:
//   - ctx: 上下文
//   - req: 支付ID、付款人ID和重新提供的金额
//
// 返回:
//   - *ExecuteResult: 始终非空，携带最终状态
//   - error: 失败时为 *Error
func (c *Checkout) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	f := c.newFlow("execute", StateAwaitingApproval)
	f.paymentID = strings.TrimSpace(req.PaymentID)
	f.invoice = strings.TrimSpace(req.InvoiceNumber)

	if f.paymentID == "" {
		return c.executeFailed(f, malformed("payment_id", "payment id is required"))
	}
	payerID := strings.TrimSpace(req.PayerID)
	if payerID == "" {
		return c.executeFailed(f, malformed("payer_id", "payer id is required"))
	}
	amount, err := BuildAmount(Fields{
		"shipping": req.Shipping,
		"tax":      req.Tax,
		"subtotal": req.Subtotal,
		"total":    req.Total,
	}, c.Currency())
	if err != nil {
		return c.executeFailed(f, err)
	}

	if err := f.to(StateExecuting); err != nil {
		return c.executeFailed(f, err)
	}
	if _, err := c.gateway.ExecuteIntent(ctx, ExecuteIntentRequest{
		PaymentID:      f.paymentID,
		PayerID:        payerID,
		Amount:         amount,
		IdempotencyKey: f.invoice,
	}); err != nil {
		return c.executeFailed(f, err)
	}

	// 执行成功后再次查询确认，查询失败时支付可能已经完成
	status, err := c.gateway.FetchIntent(ctx, f.paymentID)
	if err != nil {
		return c.executeFailed(f, &Error{
			Kind:    KindConfirmationFailed,
			Message: "execute succeeded but status confirmation failed",
			Err:     err,
		})
	}
	if !status.State.IsSettled() {
		r, e := c.executeFailed(f, &Error{
			Kind:    KindConfirmationFailed,
			Message: fmt.Sprintf("execute succeeded but gateway reports state %q", status.RawState),
		})
		r.Status = status
		return r, e
	}

	if err := f.to(StateExecuted); err != nil {
		return c.executeFailed(f, err)
	}
	return &ExecuteResult{
		State:     f.state,
		Success:   true,
		PaymentID: f.paymentID,
		Status:    status,
	}, nil
}

func (c *Checkout) executeFailed(f *flow, err error) (*ExecuteResult, error) {
	e := f.fail(err)
	return &ExecuteResult{State: StateFailed, PaymentID: f.paymentID, Failure: e}, e
}

// Reconcile 查询支付在网关中的状态
// 用于在 ConfirmationFailed 之后确认支付是否已经完成
func (c *Checkout) Reconcile(ctx context.Context, paymentID string) (*IntentStatus, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, withOp("reconcile", malformed("payment_id", "payment id is required"))
	}
	status, err := c.gateway.FetchIntent(ctx, paymentID)
	if err != nil {
		e := withOp("reconcile", err)
		c.events.log.WithField("payment_id", paymentID).WithError(e).Warn("checkout reconcile")
		return nil, e
	}
	c.events.log.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"state":      string(status.State),
		"raw_state":  status.RawState,
	}).Info("checkout reconcile")
	return status, nil
}
