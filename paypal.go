// Package checkout 重定向支付结账相关功能
package checkout

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/paypal"
	"github.com/sirupsen/logrus"
)

// OrderClient PayPal v2 Orders 客户端，*paypal.Client 实现了该接口
type OrderClient interface {
	GetAccessToken() (*paypal.AccessToken, error)
	CreateOrder(ctx context.Context, bm gopay.BodyMap) (*paypal.CreateOrderRsp, error)
	UpdateOrder(ctx context.Context, orderId string, patchs []*paypal.Patch) (*paypal.EmptyRsp, error)
	OrderDetail(ctx context.Context, orderId string, bm gopay.BodyMap) (*paypal.OrderDetailRsp, error)
	OrderAuthorize(ctx context.Context, orderId string, bm gopay.BodyMap) (*paypal.OrderAuthorizeRsp, error)
	OrderCapture(ctx context.Context, orderId string, bm gopay.BodyMap) (*paypal.OrderCaptureRsp, error)
}

// PaypalOrderGateway PayPal v2 Orders 网关
// 基于 gopay 的 PayPal 客户端，买家确认后通过 capture 或 authorize 完成支付
type PaypalOrderGateway struct {
	Client OrderClient // PayPal客户端实例
	log    *logrus.Entry

	mu       sync.RWMutex // 刷新令牌时独占客户端
	tokenGen int          // 令牌刷新次数
}

// NewPaypalOrderGateway 创建 PayPal v2 Orders 网关
// 创建客户端时会获取访问令牌，凭证无效时返回 AuthFailure
// 参数:
//   - clientID: PayPal应用的客户端ID
//   - secret: PayPal应用的密钥
//   - isProd: 是否为生产环境
//   - logger: 日志，可以为空
//
// 返回:
//   - *PaypalOrderGateway: 网关实例
//   - error: 错误信息
func NewPaypalOrderGateway(clientID string, secret string, isProd bool, logger *logrus.Logger) (*PaypalOrderGateway, error) {
	client, err := paypal.NewClient(clientID, secret, isProd)
	if err != nil {
		return nil, &Error{Kind: KindAuthFailure, Op: "token", Err: err}
	}
	if logger != nil && logger.IsLevelEnabled(logrus.DebugLevel) {
		client.DebugSwitch = gopay.DebugOn
	}
	return newPaypalOrderGateway(client, logger), nil
}

func newPaypalOrderGateway(client OrderClient, logger *logrus.Logger) *PaypalOrderGateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PaypalOrderGateway{
		Client: client,
		log:    logger.WithField("gateway", "paypal-orders"),
	}
}

// refreshToken 重新获取访问令牌
// gen 为发起请求时的令牌版本，其他请求已经刷新过时直接返回
func (pp *PaypalOrderGateway) refreshToken(gen int) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.tokenGen != gen {
		return nil
	}
	if _, err := pp.Client.GetAccessToken(); err != nil {
		pp.log.WithError(err).Warn("paypal access token refresh failed")
		return err
	}
	pp.tokenGen++
	pp.log.Debug("paypal access token refreshed")
	return nil
}

// orderCall 调用订单接口，返回 401 时刷新访问令牌并重试一次
// gopay 客户端只在创建时获取令牌，令牌过期后所有请求都会返回 401
func orderCall[R any](pp *PaypalOrderGateway, call func() (R, int, error)) (R, error) {
	pp.mu.RLock()
	gen := pp.tokenGen
	rsp, code, err := call()
	pp.mu.RUnlock()
	if err != nil || code != http.StatusUnauthorized {
		return rsp, err
	}
	if pp.refreshToken(gen) != nil {
		return rsp, nil
	}
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	rsp, _, err = call()
	return rsp, err
}

// orderMoney v2 接口的金额结构
type orderMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderItem struct {
	Name        string     `json:"name"`
	Sku         string     `json:"sku,omitempty"`
	Description string     `json:"description,omitempty"`
	Quantity    string     `json:"quantity"`
	UnitAmount  orderMoney `json:"unit_amount"`
}

type orderBreakdown struct {
	ItemTotal orderMoney `json:"item_total"`
	Shipping  orderMoney `json:"shipping"`
	TaxTotal  orderMoney `json:"tax_total"`
}

type orderAmount struct {
	orderMoney
	Breakdown *orderBreakdown `json:"breakdown,omitempty"`
}

type orderPurchaseUnit struct {
	ReferenceId string      `json:"reference_id"`
	Amount      orderAmount `json:"amount"`
	Description string      `json:"description,omitempty"`
	InvoiceId   string      `json:"invoice_id,omitempty"`
	Items       []orderItem `json:"items,omitempty"`
}

func toOrderAmount(a Amount) orderAmount {
	cur := a.Currency()
	money := func(m Money) orderMoney {
		return orderMoney{CurrencyCode: cur.Code(), Value: m.Format(cur)}
	}
	out := orderAmount{orderMoney: money(a.Total())}
	if b := a.Breakdown(); b != nil {
		out.Breakdown = &orderBreakdown{
			ItemTotal: money(b.Subtotal),
			Shipping:  money(b.Shipping),
			TaxTotal:  money(b.Tax),
		}
	}
	return out
}

// orderState 将 v2 订单状态归一化
// APPROVED 表示买家已确认但尚未 capture，仍视为待执行
func orderState(status string) PaymentState {
	switch status { // 可能的状态：CREATED、SAVED、APPROVED、VOIDED、COMPLETED、PAYER_ACTION_REQUIRED
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return PaymentStateCreated
	case "COMPLETED":
		return PaymentStatePaid
	case "VOIDED":
		return PaymentStateCanceled
	default:
		return PaymentStateError
	}
}

// orderError 将非成功响应转换为错误分类
func orderError(op string, code int, rsp *paypal.ErrorResponse, raw string) *Error {
	e := &Error{Op: op, Code: strconv.Itoa(code), Message: raw}
	if rsp != nil {
		if rsp.Name != "" {
			e.Code = rsp.Name
		}
		if rsp.Message != "" {
			e.Message = rsp.Message
		}
		if len(rsp.Details) > 0 {
			errDetail := rsp.Details[0]
			e.Code = errDetail.Issue
			e.Message = errDetail.Description
		}
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Kind = KindAuthFailure
	case code == http.StatusTooManyRequests || code >= 500:
		e.Kind = KindGatewayUnavailable
	default:
		e.Kind = KindGatewayRejected
	}
	return e
}

// orderIntent 将支付意图类型转换为 v2 订单意图
// v2 没有 order 意图，不做静默替换
func orderIntent(t IntentType) (string, error) {
	switch t {
	case IntentSale:
		return "CAPTURE", nil
	case IntentAuthorize:
		return "AUTHORIZE", nil
	default:
		return "", &Error{Kind: KindGatewayRejected, Op: "create", Code: "UNSUPPORTED_INTENT",
			Message: fmt.Sprintf("intent %s is not supported by the orders gateway", t)}
	}
}

// approvalLink 返回买家确认地址
func approvalLink(links []*paypal.Link) string {
	for _, link := range links {
		if link != nil && (link.Rel == "approve" || link.Rel == "payer-action") {
			return link.Href
		}
	}
	return ""
}

// orderStatus 由订单详情生成支付状态
func orderStatus(order *paypal.OrderDetail) *IntentStatus {
	status := &IntentStatus{
		PaymentID: order.Id,
		State:     orderState(order.Status),
		RawState:  order.Status,
	}
	if order.Payer != nil {
		status.PayerID = order.Payer.PayerId
	}
	if len(order.PurchaseUnits) > 0 && order.PurchaseUnits[0] != nil {
		unit := order.PurchaseUnits[0]
		status.InvoiceNumber = unit.InvoiceId
		if unit.Amount != nil {
			status.Currency = unit.Amount.CurrencyCode
			status.Total = unit.Amount.Value
		}
	}
	return status
}

// amountPatch 生成替换订单金额的补丁
// 与 v1 执行时随请求提交金额一致，订单金额不同时在 capture 前更新，由 PayPal 决定是否接受
func amountPatch(order *paypal.OrderDetail, amount Amount) *paypal.Patch {
	if len(order.PurchaseUnits) == 0 || order.PurchaseUnits[0] == nil {
		return nil
	}
	unit := order.PurchaseUnits[0]
	cur := amount.Currency()
	if unit.Amount != nil && strings.EqualFold(unit.Amount.CurrencyCode, cur.Code()) &&
		unit.Amount.Value == amount.Total().Format(cur) {
		return nil
	}
	path := "/purchase_units/@reference_id=='default'/amount"
	if unit.ReferenceId != "" {
		path = fmt.Sprintf("/purchase_units/@reference_id=='%s'/amount", unit.ReferenceId)
	}
	return &paypal.Patch{Op: "replace", Path: path, Value: toOrderAmount(amount)}
}

// CreateIntent 创建 PayPal 订单并返回买家确认地址
func (pp *PaypalOrderGateway) CreateIntent(ctx context.Context, intent PaymentIntent) (*IntentHandle, error) {
	payer := intent.Payer()
	if payer.Method != MethodPaypal {
		return nil, &Error{Kind: KindGatewayRejected, Op: "create", Code: "UNSUPPORTED_PAYMENT_METHOD",
			Message: fmt.Sprintf("payment method %s is not supported by the orders gateway", payer.Method)}
	}
	intentName, err := orderIntent(intent.Intent())
	if err != nil {
		return nil, err
	}
	units := make([]*orderPurchaseUnit, 0, len(intent.Transactions()))
	for idx, t := range intent.Transactions() {
		unit := &orderPurchaseUnit{
			ReferenceId: fmt.Sprintf("%s-%d", t.InvoiceNumber(), idx),
			Amount:      toOrderAmount(t.Amount()),
			Description: t.Description(),
			InvoiceId:   t.InvoiceNumber(),
		}
		for _, i := range t.Items().Items() {
			unit.Items = append(unit.Items, orderItem{
				Name:        i.Name(),
				Sku:         i.SKU(),
				Description: i.Description(),
				Quantity:    strconv.FormatInt(i.Quantity(), 10),
				UnitAmount:  orderMoney{CurrencyCode: i.Currency().Code(), Value: i.UnitPrice().Format(i.Currency())},
			})
		}
		units = append(units, unit)
	}

	// 构建请求体参数
	redirects := intent.Redirects()
	bm := make(gopay.BodyMap)
	bm.Set("intent", intentName)
	bm.Set("purchase_units", units)
	bm.SetBodyMap("application_context", func(b gopay.BodyMap) {
		b.Set("return_url", redirects.ReturnURL) // 买家确认后返回
		b.Set("cancel_url", redirects.CancelURL) // 买家取消后返回
		b.Set("user_action", "CONTINUE")
	})

	ppRsp, err := orderCall(pp, func() (*paypal.CreateOrderRsp, int, error) {
		rsp, err := pp.Client.CreateOrder(ctx, bm)
		if err != nil {
			return nil, 0, err
		}
		return rsp, rsp.Code, nil
	})
	if err != nil {
		return nil, &Error{Kind: KindGatewayUnavailable, Op: "create", Err: err}
	}
	if ppRsp.Code != paypal.Success {
		return nil, orderError("create", ppRsp.Code, ppRsp.ErrorResponse, ppRsp.Error)
	}
	return &IntentHandle{
		PaymentID:   ppRsp.Response.Id,
		State:       orderState(ppRsp.Response.Status),
		ApprovalURL: approvalLink(ppRsp.Response.Links),
	}, nil
}

func (pp *PaypalOrderGateway) orderDetail(ctx context.Context, op string, paymentID string) (*paypal.OrderDetail, error) {
	detailRsp, err := orderCall(pp, func() (*paypal.OrderDetailRsp, int, error) {
		rsp, err := pp.Client.OrderDetail(ctx, paymentID, nil)
		if err != nil {
			return nil, 0, err
		}
		return rsp, rsp.Code, nil
	})
	if err != nil {
		return nil, &Error{Kind: KindGatewayUnavailable, Op: op, Err: err}
	}
	if detailRsp.Code != paypal.Success {
		return nil, orderError(op, detailRsp.Code, detailRsp.ErrorResponse, detailRsp.Error)
	}
	return detailRsp.Response, nil
}

// FetchIntent 查询 PayPal 订单详情
func (pp *PaypalOrderGateway) FetchIntent(ctx context.Context, paymentID string) (*IntentStatus, error) {
	order, err := pp.orderDetail(ctx, "fetch", paymentID)
	if err != nil {
		return nil, err
	}
	return orderStatus(order), nil
}

// ExecuteIntent 买家确认后完成订单
// CAPTURE 订单调用 capture，AUTHORIZE 订单调用 authorize
// v2 的 capture 不接收金额，重新提供的金额与订单不同时先更新订单金额
func (pp *PaypalOrderGateway) ExecuteIntent(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error) {
	order, err := pp.orderDetail(ctx, "execute", req.PaymentID)
	if err != nil {
		return nil, err
	}
	logEntry := pp.log.WithFields(logrus.Fields{"payment_id": req.PaymentID, "payer_id": req.PayerID, "intent": order.Intent})

	if patch := amountPatch(order, req.Amount); patch != nil {
		logEntry.WithField("path", patch.Path).Debug("paypal update order amount")
		updateRsp, err := orderCall(pp, func() (*paypal.EmptyRsp, int, error) {
			rsp, err := pp.Client.UpdateOrder(ctx, req.PaymentID, []*paypal.Patch{patch})
			if err != nil {
				return nil, 0, err
			}
			return rsp, rsp.Code, nil
		})
		if err != nil {
			return nil, &Error{Kind: KindGatewayUnavailable, Op: "execute", Err: err}
		}
		if updateRsp.Code != paypal.Success {
			return nil, orderError("execute", updateRsp.Code, updateRsp.ErrorResponse, updateRsp.Error)
		}
	}

	var (
		code   int
		rawErr string
		errRsp *paypal.ErrorResponse
		done   *paypal.OrderDetail
	)
	if strings.EqualFold(order.Intent, "AUTHORIZE") {
		logEntry.Debug("paypal authorize order")
		rsp, err := orderCall(pp, func() (*paypal.OrderAuthorizeRsp, int, error) {
			rsp, err := pp.Client.OrderAuthorize(ctx, req.PaymentID, nil)
			if err != nil {
				return nil, 0, err
			}
			return rsp, rsp.Code, nil
		})
		if err != nil {
			return nil, &Error{Kind: KindGatewayUnavailable, Op: "execute", Err: err}
		}
		code, rawErr, errRsp, done = rsp.Code, rsp.Error, rsp.ErrorResponse, rsp.Response
	} else {
		logEntry.Debug("paypal capture order")
		rsp, err := orderCall(pp, func() (*paypal.OrderCaptureRsp, int, error) {
			rsp, err := pp.Client.OrderCapture(ctx, req.PaymentID, nil)
			if err != nil {
				return nil, 0, err
			}
			return rsp, rsp.Code, nil
		})
		if err != nil {
			return nil, &Error{Kind: KindGatewayUnavailable, Op: "execute", Err: err}
		}
		code, rawErr, errRsp, done = rsp.Code, rsp.Error, rsp.ErrorResponse, rsp.Response
	}
	return orderExecution(req.PaymentID, code, errRsp, rawErr, done)
}

// orderExecution 将 capture 或 authorize 的响应转换为执行结果
// 订单已经完成时视为成功，由后续查询确认
func orderExecution(paymentID string, code int, errRsp *paypal.ErrorResponse, raw string, order *paypal.OrderDetail) (*ExecutionResult, error) {
	if code != paypal.Success {
		e := orderError("execute", code, errRsp, raw)
		switch e.Code {
		case "ORDER_ALREADY_CAPTURED", "ORDER_ALREADY_AUTHORIZED":
			return &ExecutionResult{PaymentID: paymentID, State: PaymentStatePaid, RawState: "COMPLETED"}, nil
		}
		return nil, e
	}
	if order == nil || order.Id == "" {
		return &ExecutionResult{PaymentID: paymentID, State: PaymentStatePaid, RawState: "COMPLETED"}, nil
	}
	return &ExecutionResult{
		PaymentID: order.Id,
		State:     orderState(order.Status),
		RawState:  order.Status,
	}, nil
}
