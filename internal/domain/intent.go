package domain

import (
	"fmt"
	"time"
)

// IntentKind 用户意图类型
// 每种意图对应一条固定的账本写入步骤链（见 services 层的编排）。
type IntentKind string

const (
	IntentOpen    IntentKind = "open"    // 开仓（approve -> openPosition）
	IntentClose   IntentKind = "close"   // 平仓（closePosition）
	IntentClaim   IntentKind = "claim"   // 领取测试 USDT（faucet）
	IntentDeposit IntentKind = "deposit" // 向流动性池注入（approve -> deposit）
)

// Valid 检查意图类型是否已知
func (k IntentKind) Valid() bool {
	switch k {
	case IntentOpen, IntentClose, IntentClaim, IntentDeposit:
		return true
	}
	return false
}

// IntentState 意图的整体状态
type IntentState string

const (
	IntentStateCreated   IntentState = "created"   // 已创建，尚未派发任何步骤
	IntentStateInFlight  IntentState = "in_flight" // 有步骤已派发且未到终态
	IntentStateCompleted IntentState = "completed" // 终态：全部步骤成功
	IntentStateFailed    IntentState = "failed"    // 终态：某一步骤永久失败
)

// Terminal 是否为终态（终态后不再有任何账本交互）
func (s IntentState) Terminal() bool {
	return s == IntentStateCompleted || s == IntentStateFailed
}

// StepState 单个步骤的状态
type StepState string

const (
	StepStateWaiting StepState = "waiting" // 尚未派发
	StepStatePending StepState = "pending" // 已派发，等待上链结算
	StepStateSettled StepState = "settled" // 已结算且成功
	StepStateFailed  StepState = "failed"  // 派发失败或结算为失败（revert）
)

// IntentStep 意图中的一个账本写入步骤
// 步骤严格按序执行：第 n+1 步只有在第 n 步结算成功后才会派发。
// 已结算的步骤不可回滚（上链即不可撤回），失败后由调用方决定是否重新提交。
type IntentStep struct {
	Name   string    // 步骤名（如 "approve"、"open_position"）
	State  StepState // 当前状态
	TxHash string    // 派发后的交易哈希（派发前为空）
	Err    string    // 失败原因（仅失败时有值）
}

// PendingIntent 一次用户意图及其步骤链的完整状态
// 所有权归 TransactionSequencer；同一 (owner, kind) 同时至多一个未到终态的意图。
type PendingIntent struct {
	ID        string       // 意图 ID（uuid）
	Kind      IntentKind   // 意图类型
	Owner     string       // 发起账户地址
	Steps     []IntentStep // 步骤链（按执行顺序）
	StepIndex int          // 当前步骤下标（终态时指向最后处理的步骤）
	State     IntentState  // 整体状态
	CreatedAt time.Time    // 创建时间
	UpdatedAt time.Time    // 最近一次状态变化时间
}

// CurrentStep 返回当前步骤（越界时返回 nil）
func (in *PendingIntent) CurrentStep() *IntentStep {
	if in == nil || in.StepIndex < 0 || in.StepIndex >= len(in.Steps) {
		return nil
	}
	return &in.Steps[in.StepIndex]
}

// FailedStep 返回失败的步骤名及原因（仅 Failed 终态有意义）
func (in *PendingIntent) FailedStep() (name string, reason string) {
	if in == nil || in.State != IntentStateFailed {
		return "", ""
	}
	if s := in.CurrentStep(); s != nil {
		return s.Name, s.Err
	}
	return "", ""
}

func (in *PendingIntent) String() string {
	if in == nil {
		return "<nil intent>"
	}
	return fmt.Sprintf("intent[%s kind=%s state=%s step=%d/%d]",
		in.ID, in.Kind, in.State, in.StepIndex+1, len(in.Steps))
}
