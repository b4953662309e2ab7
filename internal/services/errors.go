package services

import (
	"fmt"

	"github.com/hellarekt/perpbot/internal/domain"
)

// 错误分类
// 调用方（展示层/API 层）根据错误类型决定提示方式：校验错误与重复
// 提交是同步拒绝，瞬时读取错误保留旧状态稍后重试。

// ValidationError 提交前校验失败，意图未创建、未触达账本
type ValidationError struct {
	Field  string // 出错的参数名
	Reason string // 人类可读的原因
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: %s: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DuplicateIntentError 同一账户同类意图仍在途，本次提交被同步拒绝
type DuplicateIntentError struct {
	Owner string
	Kind  domain.IntentKind
}

func (e *DuplicateIntentError) Error() string {
	return fmt.Sprintf("已有在途的 %s 意图 (账户 %s)，请等待其完成", e.Kind, e.Owner)
}

// TransientReadError 账本读取失败
// 调用方应保留上一次完整快照，稍后重试；绝不能把读取失败当作空状态。
type TransientReadError struct {
	Op  string // 失败的读取操作
	Err error
}

func (e *TransientReadError) Error() string {
	return fmt.Sprintf("账本读取失败 (%s): %v", e.Op, e.Err)
}

func (e *TransientReadError) Unwrap() error {
	return e.Err
}
