// Package checkout 重定向支付结账相关功能
// 组装支付意图，交由外部网关让买家确认，买家返回后执行支付
package checkout

import "context"

// PaymentState 支付状态类型
type PaymentState string

// 支付状态常量定义
const (
	PaymentStateCreated  PaymentState = "Created"  // 已创建，等待买家确认
	PaymentStateApproved PaymentState = "Approved" // 买家已确认或已执行
	PaymentStatePaid     PaymentState = "Paid"     // 已支付
	PaymentStateCanceled PaymentState = "Canceled" // 已取消
	PaymentStateTimeout  PaymentState = "Timeout"  // 超时
	PaymentStateError    PaymentState = "Error"    // 错误
)

// IsSettled 判断支付是否已执行完成
func (s PaymentState) IsSettled() bool {
	return s == PaymentStateApproved || s == PaymentStatePaid
}

// Gateway 支付网关适配器接口
// 只负责认证会话、传输和错误转换，不做业务校验
// 返回的错误均为 *Error，分类为 AuthFailure、GatewayRejected 或 GatewayUnavailable
type Gateway interface {
	// CreateIntent 提交支付意图
	// 参数:
	//   - ctx: 上下文
	//   - intent: 支付意图
	// 返回:
	//   - *IntentHandle: 支付ID和买家确认地址
	//   - error: 错误信息
	CreateIntent(ctx context.Context, intent PaymentIntent) (*IntentHandle, error)

	// FetchIntent 查询支付状态，只读
	// 参数:
	//   - ctx: 上下文
	//   - paymentID: 支付ID
	// 返回:
	//   - *IntentStatus: 支付状态
	//   - error: 错误信息
	FetchIntent(ctx context.Context, paymentID string) (*IntentStatus, error)

	// ExecuteIntent 买家确认后执行支付
	// 参数:
	//   - ctx: 上下文
	//   - req: 支付ID、付款人ID、重新提供的金额和幂等键
	// 返回:
	//   - *ExecutionResult: 执行结果
	//   - error: 错误信息
	ExecuteIntent(ctx context.Context, req ExecuteIntentRequest) (*ExecutionResult, error)
}

// ExecuteIntentRequest 执行支付请求
type ExecuteIntentRequest struct {
	PaymentID      string // 支付ID
	PayerID        string // 付款人ID
	Amount         Amount // 重新校验过的金额
	IdempotencyKey string // 幂等键，通常为发票号，可以为空
}
