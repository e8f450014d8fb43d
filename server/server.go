// Package server 结账的 HTTP 接口
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/smart-unicom/checkout"
)

// 错误分类对应的 HTTP 状态码
var kindStatus = map[checkout.Kind]int{
	checkout.KindMalformedInput:     http.StatusBadRequest,
	checkout.KindAmountMismatch:     http.StatusUnprocessableEntity,
	checkout.KindAuthFailure:        http.StatusBadGateway,
	checkout.KindGatewayRejected:    http.StatusPaymentRequired,
	checkout.KindGatewayUnavailable: http.StatusServiceUnavailable,
	checkout.KindConfirmationFailed: http.StatusConflict,
}

// StatusOf 返回错误分类对应的 HTTP 状态码
func StatusOf(kind checkout.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorBody 错误响应中的错误信息
type ErrorBody struct {
	Kind    checkout.Kind `json:"kind"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
	Code    string        `json:"code,omitempty"`
	DebugID string        `json:"debug_id,omitempty"`
}

// FailureResponse 失败响应
type FailureResponse struct {
	State     checkout.State `json:"state,omitempty"`
	PaymentID string         `json:"payment_id,omitempty"`
	Error     ErrorBody      `json:"error"`
}

// ExecuteBody 执行支付的请求体，支付ID来自路径
type ExecuteBody struct {
	PayerID       string      `json:"payer_id"`
	Shipping      interface{} `json:"shipping"`
	Tax           interface{} `json:"tax"`
	Subtotal      interface{} `json:"subtotal"`
	Total         interface{} `json:"total"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
}

// ExecuteResponse 执行成功的响应
type ExecuteResponse struct {
	State     checkout.State `json:"state"`
	Success   bool           `json:"success"`
	PaymentID string         `json:"payment_id"`
	Status    *StatusBody    `json:"status,omitempty"`
}

// StatusBody 支付状态
type StatusBody struct {
	PaymentID     string `json:"payment_id"`
	State         string `json:"state"`
	RawState      string `json:"raw_state"`
	PayerID       string `json:"payer_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Currency      string `json:"currency,omitempty"`
	Total         string `json:"total,omitempty"`
}

func toStatusBody(s *checkout.IntentStatus) *StatusBody {
	if s == nil {
		return nil
	}
	return &StatusBody{
		PaymentID:     s.PaymentID,
		State:         string(s.State),
		RawState:      s.RawState,
		PayerID:       s.PayerID,
		InvoiceNumber: s.InvoiceNumber,
		Currency:      s.Currency,
		Total:         s.Total,
	}
}

// Server 结账 HTTP 服务
type Server struct {
	echo     *echo.Echo
	checkout *checkout.Checkout
	log      *logrus.Entry
}

// New 创建 HTTP 服务
// 参数:
//   - c: 结账编排器
//   - logger: 日志
//
// 返回:
//   - *Server: HTTP 服务
func New(c *checkout.Checkout, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		echo:     echo.New(),
		checkout: c,
		log:      logger.WithField("component", "http"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.requestLog)

	s.echo.POST("/checkouts", s.create)
	s.echo.POST("/checkouts/:id/execute", s.execute)
	s.echo.GET("/checkouts/:id", s.status)
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	return s
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler { return s.echo }

// Start 在指定地址上启动服务，直到 Shutdown 被调用
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("checkout http server started")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.WithFields(logrus.Fields{
			"method":     c.Request().Method,
			"path":       c.Path(),
			"status":     c.Response().Status,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("http request")
		return nil
	}
}

// decode 解码 JSON 请求体，数字保留为 json.Number 以免丢失金额精度
func decode(c echo.Context, out interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &checkout.Error{Kind: checkout.KindMalformedInput, Field: "body", Message: "invalid JSON body", Err: err}
	}
	return nil
}

func failure(c echo.Context, state checkout.State, paymentID string, err error) error {
	var e *checkout.Error
	if !errors.As(err, &e) {
		e = &checkout.Error{Kind: checkout.KindGatewayUnavailable, Err: err}
	}
	message := e.Message
	if message == "" {
		message = e.Error()
	}
	return c.JSON(StatusOf(e.Kind), FailureResponse{
		State:     state,
		PaymentID: paymentID,
		Error: ErrorBody{
			Kind:    e.Kind,
			Message: message,
			Field:   e.Field,
			Code:    e.Code,
			DebugID: e.DebugID,
		},
	})
}

func (s *Server) create(c echo.Context) error {
	var req checkout.CreateRequest
	if err := decode(c, &req); err != nil {
		return failure(c, checkout.StateFailed, "", err)
	}
	result, err := s.checkout.Create(c.Request().Context(), req)
	if err != nil {
		return failure(c, result.State, result.PaymentID, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (s *Server) execute(c echo.Context) error {
	var body ExecuteBody
	if err := decode(c, &body); err != nil {
		return failure(c, checkout.StateFailed, c.Param("id"), err)
	}
	result, err := s.checkout.Execute(c.Request().Context(), checkout.ExecuteRequest{
		PaymentID:     c.Param("id"),
		PayerID:       body.PayerID,
		Shipping:      body.Shipping,
		Tax:           body.Tax,
		Subtotal:      body.Subtotal,
		Total:         body.Total,
		InvoiceNumber: body.InvoiceNumber,
	})
	if err != nil {
		return failure(c, result.State, result.PaymentID, err)
	}
	return c.JSON(http.StatusOK, ExecuteResponse{
		State:     result.State,
		Success:   result.Success,
		PaymentID: result.PaymentID,
		Status:    toStatusBody(result.Status),
	})
}

func (s *Server) status(c echo.Context) error {
	status, err := s.checkout.Reconcile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return failure(c, "", c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, toStatusBody(status))
}
