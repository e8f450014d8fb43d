// Package checkout 重定向支付结账相关功能
package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 错误分类
type Kind string

// 错误分类常量定义
const (
	KindMalformedInput     Kind = "MalformedInput"     // 本地参数校验失败，不会发送到网关
	KindAmountMismatch     Kind = "AmountMismatch"     // 金额明细之和与总额不一致
	KindAuthFailure        Kind = "AuthFailure"        // 凭证无效或已过期
	KindGatewayRejected    Kind = "GatewayRejected"    // 网关业务拒绝
	KindGatewayUnavailable Kind = "GatewayUnavailable" // 网络错误或超时
	KindConfirmationFailed Kind = "ConfirmationFailed" // 执行成功但确认查询失败
)

// confirmationHint 确认失败时提示调用方的信息
const confirmationHint = "payment may have been captured; verify before retrying"

// Error 结账错误
// 携带错误分类、操作名、出错字段以及网关返回的错误码和信息
type Error struct {
	Kind    Kind   // 错误分类
	Op      string // 操作名，例如 "create"、"execute"
	Field   string // 出错的输入字段
	Code    string // 网关错误码
	Message string // 错误描述
	DebugID string // 网关调试ID
	Err     error  // 原始错误
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Kind == KindConfirmationFailed {
		b.WriteString(" (" + confirmationHint + ")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按错误分类匹配，使 errors.Is(err, ErrAmountMismatch) 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Field == "" && t.Code == ""
}

// 各分类的哨兵错误，用于 errors.Is 判断
var (
	ErrMalformedInput     = &Error{Kind: KindMalformedInput}
	ErrAmountMismatch     = &Error{Kind: KindAmountMismatch}
	ErrAuthFailure        = &Error{Kind: KindAuthFailure}
	ErrGatewayRejected    = &Error{Kind: KindGatewayRejected}
	ErrGatewayUnavailable = &Error{Kind: KindGatewayUnavailable}
	ErrConfirmationFailed = &Error{Kind: KindConfirmationFailed}
)

func malformed(field string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindMalformedInput, Field: field, Message: fmt.Sprintf(format, args...)}
}

func unavailable(err error) *Error {
	return &Error{Kind: KindGatewayUnavailable, Err: err}
}

// KindOf 返回错误的分类
// 未分类的错误返回空字符串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// withOp 为错误补充操作名，未分类的错误按网关不可用处理
func withOp(op string, err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		e = unavailable(err)
	}
	out := *e
	if out.Op == "" {
		out.Op = op
	}
	return &out
}
