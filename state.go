// Package checkout 重定向支付结账相关功能
package checkout

import "errors"

// State 结账流程状态
type State string

// 结账流程状态常量定义
const (
	StateBuilding         State = "BUILDING"
	StateCreated          State = "CREATED"
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	StateExecuting        State = "EXECUTING"
	StateExecuted         State = "EXECUTED"
	StateFailed           State = "FAILED"
)

// ErrIllegalTransition 非法的状态迁移
var ErrIllegalTransition = errors.New("illegal transition of checkout state")

var transitions = map[State][]State{
	StateBuilding:         {StateCreated},
	StateCreated:          {StateAwaitingApproval, StateExecuted},
	StateAwaitingApproval: {StateExecuting},
	StateExecuting:        {StateExecuted},
}

// IsTerminal 判断是否为终态
func (s State) IsTerminal() bool {
	return s == StateExecuted || s == StateFailed
}

func (s State) String() string {
	return string(s)
}

// CanTransitionTo 判断能否从 from 迁移到 to
// 任何非终态都可以迁移到 FAILED
func CanTransitionTo(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
