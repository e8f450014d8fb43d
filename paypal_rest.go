// Package checkout 重定向支付结账相关功能
package checkout

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/casdoor/casdoor/util"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// PayPal 环境
const (
	EnvSandbox = "sandbox" // 沙箱环境
	EnvLive    = "live"    // 生产环境
)

// PayPal REST 接口地址
const (
	paypalSandboxEndpoint = "https://api-m.sandbox.paypal.com"
	paypalLiveEndpoint    = "https://api-m.paypal.com"
)

// PaypalConfig PayPal 网关配置
type PaypalConfig struct {
	ClientID    string        // 应用的客户端ID
	Secret      string        // 应用的密钥
	Environment string        // sandbox 或 live
	Endpoint    string        // 接口地址，为空时按环境选择
	Timeout     time.Duration // 连接和读取超时
	Logger      *logrus.Logger
}

func (c PaypalConfig) endpoint() (string, error) {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/"), nil
	}
	switch strings.ToLower(c.Environment) {
	case "", EnvSandbox:
		return paypalSandboxEndpoint, nil
	case EnvLive:
		return paypalLiveEndpoint, nil
	default:
		return "", fmt.Errorf("unknown paypal environment %q", c.Environment)
	}
}

// PaypalGateway PayPal REST v1 Payments 网关
// 持有认证会话（客户端凭证和访问令牌），可并发使用
type PaypalGateway struct {
	clientID string
	secret   string
	client   *resty.Client
	log      *logrus.Entry

	tokenMutex sync.Mutex  // 令牌锁
	tokenCache *paypalToken // 令牌缓存
}

type paypalToken struct {
	AccessToken string `json:"access_token"` // 访问令牌
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // 有效期（秒）
	expiresAt   time.Time
}

// NewPaypalGateway 创建 PayPal 网关
// 参数:
//   - cfg: 网关配置
//
// 返回:
//   - *PaypalGateway: PayPal 网关
//   - error: 凭证缺失或环境非法时返回错误
func NewPaypalGateway(cfg PaypalConfig) (*PaypalGateway, error) {
	if cfg.ClientID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("paypal: client id and secret are required")
	}
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, fmt.Errorf("paypal: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &PaypalGateway{
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		client:   client,
		log:      logger.WithField("gateway", "paypal"),
	}, nil
}

// 请求和响应结构，字段与 PayPal v1 Payments 接口一致
type (
	paypalDetails struct {
		Subtotal string `json:"subtotal"`
		Tax      string `json:"tax"`
		Shipping string `json:"shipping"`
	}
	paypalAmount struct {
		Currency string         `json:"currency"`
		Total    string         `json:"total"`
		Details  *paypalDetails `json:"details,omitempty"`
	}
	paypalItem struct {
		Name        string `json:"name"`
		Sku         string `json:"sku,omitempty"`
		Description string `json:"description,omitempty"`
		Quantity    string `json:"quantity"`
		Price       string `json:"price"`
		Currency    string `json:"currency"`
	}
	paypalItemList struct {
		Items []paypalItem `json:"items"`
	}
	paypalTransaction struct {
		Amount        paypalAmount    `json:"amount"`
		ItemList      *paypalItemList `json:"item_list,omitempty"`
		Description   string          `json:"description,omitempty"`
		InvoiceNumber string          `json:"invoice_number,omitempty"`
	}
	paypalFunding struct {
		CreditCard *Card `json:"credit_card"`
	}
	paypalPayerInfo struct {
		PayerID string `json:"payer_id,omitempty"`
	}
	paypalPayer struct {
		PaymentMethod      string           `json:"payment_method"`
		FundingInstruments []paypalFunding  `json:"funding_instruments,omitempty"`
		PayerInfo          *paypalPayerInfo `json:"payer_info,omitempty"`
	}
	paypalRedirectURLs struct {
		ReturnURL string `json:"return_url"`
		CancelURL string `json:"cancel_url"`
	}
	paypalLink struct {
		Href   string `json:"href"`
		Rel    string `json:"rel"`
		Method string `json:"method"`
	}
	paypalPayment struct {
		ID            string              `json:"id,omitempty"`
		Intent        string              `json:"intent"`
		State         string              `json:"state,omitempty"`
		Payer         paypalPayer         `json:"payer"`
		RedirectURLs  *paypalRedirectURLs `json:"redirect_urls,omitempty"`
		Transactions  []paypalTransaction `json:"transactions"`
		Links         []paypalLink        `json:"links,omitempty"`
		FailureReason string              `json:"failure_reason,omitempty"`
	}
	paypalExecution struct {
		PayerID      string              `json:"payer_id"`
		Transactions []paypalTransaction `json:"transactions,omitempty"`
	}
	paypalErrorDetail struct {
		Field string `json:"field"`
		Issue string `json:"issue"`
	}
	paypalError struct {
		Name             string              `json:"name"`
		Message          string              `json:"message"`
		DebugID          string              `json:"debug_id"`
		Details          []paypalErrorDetail `json:"details"`
		Error            string              `json:"error"`             // OAuth 错误
		ErrorDescription string              `json:"error_description"` // OAuth 错误描述
	}
)

func toPaypalAmount(a Amount) paypalAmount {
	cur := a.Currency()
	out := paypalAmount{Currency: cur.Code(), Total: a.Total().Format(cur)}
	if b := a.Breakdown(); b != nil {
		out.Details = &paypalDetails{
			Subtotal: b.Subtotal.Format(cur),
			Tax:      b.Tax.Format(cur),
			Shipping: b.Shipping.Format(cur),
		}
	}
	return out
}

func toPaypalPayment(intent PaymentIntent) paypalPayment {
	payer := intent.Payer()
	p := paypalPayment{
		Intent: string(intent.Intent()),
		Payer:  paypalPayer{PaymentMethod: string(payer.Method)},
	}
	if payer.Card != nil {
		p.Payer.FundingInstruments = []paypalFunding{{CreditCard: payer.Card}}
	}
	if r := intent.Redirects(); r.ReturnURL != "" {
		p.RedirectURLs = &paypalRedirectURLs{ReturnURL: r.ReturnURL, CancelURL: r.CancelURL}
	}
	for _, t := range intent.Transactions() {
		tx := paypalTransaction{
			Amount:        toPaypalAmount(t.Amount()),
			Description:   t.Description(),
			InvoiceNumber: t.InvoiceNumber(),
		}
		if items := t.Items(); items.Len() > 0 {
			tx.ItemList = &paypalItemList{}
			for _, i := range items.Items() {
				tx.ItemList.Items = append(tx.ItemList.Items, paypalItem{
					Name:        i.Name(),
					Sku:         i.SKU(),
					Description: i.Description(),
					Quantity:    strconv.FormatInt(i.Quantity(), 10),
					Price:       i.UnitPrice().Format(i.Currency()),
					Currency:    i.Currency().Code(),
				})
			}
		}
		p.Transactions = append(p.Transactions, tx)
	}
	return p
}

// paypalState 将 PayPal 的支付状态归一化
func paypalState(state string) PaymentState {
	switch strings.ToLower(state) {
	case "created", "pending", "in_progress":
		return PaymentStateCreated
	case "approved":
		return PaymentStateApproved
	case "completed":
		return PaymentStatePaid
	case "canceled", "cancelled", "voided":
		return PaymentStateCanceled
	case "expired":
		return PaymentStateTimeout
	default:
		return PaymentStateError
	}
}

// getToken 获取访问令牌，未过期时使用缓存
func (g *PaypalGateway) getToken(ctx context.Context) (string, error) {
	g.tokenMutex.Lock()
	defer g.tokenMutex.Unlock()
	if g.tokenCache != nil && time.Now().Before(g.tokenCache.expiresAt) {
		return g.tokenCache.AccessToken, nil
	}
	var token paypalToken
	var perr paypalError
	resp, err := g.client.R().
		SetContext(ctx).
		SetBasicAuth(g.clientID, g.secret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&token).
		SetError(&perr).
		Post("/v1/oauth2/token")
	if err := translatePaypalError("token", resp, err, &perr); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", &Error{Kind: KindAuthFailure, Op: "token", Message: "empty access token in response"}
	}
	// 提前一分钟过期，避免使用即将失效的令牌
	token.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	g.tokenCache = &token
	return token.AccessToken, nil
}

func (g *PaypalGateway) dropToken() {
	g.tokenMutex.Lock()
	g.tokenCache = nil
	g.tokenMutex.Unlock()
}

// authRequest 发送带令牌的请求，令牌被拒绝时刷新一次后重发
func (g *PaypalGateway) authRequest(ctx context.Context, op string, method string, path string, requestID string, body interface{}, result interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := g.getToken(ctx)
		if err != nil {
			return err
		}
		var perr paypalError
		req := g.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(result).
			SetError(&perr)
		if requestID != "" {
			req.SetHeader("PayPal-Request-Id", requestID)
		}
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err == nil && resp.StatusCode() == http.StatusUnauthorized && attempt == 0 {
			g.dropToken()
			continue
		}
		return translatePaypalError(op, resp, err, &perr)
	}
}

// translatePaypalError 将传输错误和 PayPal 错误响应转换为错误分类
func translatePaypalError(op string, resp *resty.Response, err error, perr *paypalError) error {
	if err != nil {
		return &Error{Kind: KindGatewayUnavailable, Op: op, Err: err}
	}
	if !resp.IsError() {
		return nil
	}
	code := perr.Name
	if code == "" {
		code = perr.Error
	}
	message := perr.Message
	if message == "" {
		message = perr.ErrorDescription
	}
	for _, d := range perr.Details {
		message += fmt.Sprintf("; %s: %s", d.Field, d.Issue)
	}
	if message == "" {
		message = resp.Status()
	}
	e := &Error{Op: op, Code: code, Message: message, DebugID: perr.DebugID}
	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || perr.Error == "invalid_client":
		e.Kind = KindAuthFailure
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindGatewayUnavailable
	default:
		e.Kind = KindGatewayRejected
	}
	return e
}

// CreateIntent 创建 PayPal 支付并返回买家确认地址
func (g *PaypalGateway) CreateIntent(ctx context.Context, intent PaymentIntent) (*IntentHandle, error) {
	body := toPaypalPayment(intent)
	if g.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		g.log.WithField("request", util.StructToJson(body)).Debug("paypal create payment")
	}
	var payment paypalPayment
	requestID := ""
	if inv := intent.InvoiceNumber(); inv != "" {
		requestID = "create-" + inv
	}
	if err := g.authRequest(ctx, "create", http.MethodPost, "/v1/payments/payment", requestID, body, &payment); err != nil {
		return nil, err
	}
	handle := &IntentHandle{
		PaymentID: payment.ID,
		State:     paypalState(payment.State),
	}
	for _, link := range payment.Links {
		if link.Rel == "approval_url" {
			handle.ApprovalURL = link.Href
			break
		}
	}
	if payment.State == "failed" {
		return nil, &Error{Kind: KindGatewayRejected, Op: "create", Code: payment.FailureReason, Message: "payment failed"}
	}
	return handle, nil
}

// FetchIntent 查询 PayPal 支付状态
func (g *PaypalGateway) FetchIntent(ctx context.Context, paymentID string) (*IntentStatus, error) {
	var payment paypalPayment
	path := "/v1/payments/payment/" + url.PathEscape(paymentID)
	if err := g.authRequest(ctx, "fetch", http.MethodGet, path, "", nil, &payment); err != nil {
		return nil, err
	}
	status := &IntentStatus{
		PaymentID: payment.ID,
		State:     paypalState(payment.State),
		RawState:  payment.State,
	}
	if payment.Payer.PayerInfo != nil {
		status.PayerID = payment.Payer.PayerInfo.PayerID
	}
	if len(payment.Transactions) > 0 {
		t := payment.Transactions[0]
		status.InvoiceNumber = t.InvoiceNumber
		status.Currency = t.Amount.Currency
		status.Total = t.Amount.Total
	}
	return status, nil
}

// ExecuteIntent 买家确认后执行 PayPal 支付
func (g *PaypalGateway) ExecuteIntent(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error) {
	body := paypalExecution{
		PayerID:      req.PayerID,
		Transactions: []paypalTransaction{{Amount: toPaypalAmount(req.Amount)}},
	}
	requestID := ""
	if req.IdempotencyKey != "" {
		requestID = "execute-" + req.IdempotencyKey
	}
	var payment paypalPayment
	path := "/v1/payments/payment/" + url.PathEscape(req.PaymentID) + "/execute"
	if err := g.authRequest(ctx, "execute", http.MethodPost, path, requestID, body, &payment); err != nil {
		return nil, err
	}
	if payment.State == "failed" {
		return nil, &Error{Kind: KindGatewayRejected, Op: "execute", Code: payment.FailureReason, Message: "payment execution failed"}
	}
	return &ExecutionResult{
		PaymentID: payment.ID,
		State:     paypalState(payment.State),
		RawState:  payment.State,
	}, nil
}
