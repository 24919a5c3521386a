package domain

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类（errors.Is 匹配用）
var (
	ErrValidation          = errors.New("validation error")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPermitNotActive     = errors.New("permit not active")
	ErrLinkedTaskOpen      = errors.New("linked task open")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateKey        = errors.New("duplicate key")
)

// FieldProblem 单个字段校验问题
type FieldProblem struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError 输入不完整或格式错误，调用方修正输入后可重试
type ValidationError struct {
	Entity   string
	Problems []FieldProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Reason)
	}
	return fmt.Sprintf("%s validation failed: %s", e.Entity, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add 追加一个字段问题
func (e *ValidationError) Add(field, reason string) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Reason: reason})
}

// OrNil 没有问题时返回 nil（避免返回带类型的 nil error）
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// NewValidationError 创建只包含一个问题的校验错误
func NewValidationError(entity, field, reason string) *ValidationError {
	v := &ValidationError{Entity: entity}
	v.Add(field, reason)
	return v
}

// InvalidTransitionError 当前状态/角色不允许该操作
type InvalidTransitionError struct {
	Entity  string
	ID      string
	Action  string
	Current string
	// Required 允许该操作的状态列表
	Required []string
	// ExpectedStage/ExpectedRole 仅审批链使用
	ExpectedStage string
	ExpectedRole  string
	Reason        string
}

func (e *InvalidTransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: cannot %s from status %q", e.Entity, e.ID, e.Action, e.Current)
	if len(e.Required) > 0 {
		fmt.Fprintf(&b, " (requires %s)", strings.Join(e.Required, "|"))
	}
	if e.ExpectedStage != "" {
		fmt.Fprintf(&b, ", expected stage %q", e.ExpectedStage)
	}
	if e.ExpectedRole != "" {
		fmt.Fprintf(&b, " by role %q", e.ExpectedRole)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InvalidInputError 风险评分输入越界
type InvalidInputError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s=%d out of range [%d,%d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// PermitNotActiveError 需要许可证的任务在许可证未生效时开工
type PermitNotActiveError struct {
	TaskID       string
	PermitID     string
	PermitStatus string
}

func (e *PermitNotActiveError) Error() string {
	if e.PermitID == "" {
		return fmt.Sprintf("task %s requires an active work permit but none is linked", e.TaskID)
	}
	return fmt.Sprintf("task %s requires permit %s to be active, current status %q", e.TaskID, e.PermitID, e.PermitStatus)
}

func (e *PermitNotActiveError) Is(target error) bool { return target == ErrPermitNotActive }

// LinkedTaskOpenError 报警关联的维护任务尚未结束
type LinkedTaskOpenError struct {
	AlertID    string
	TaskID     string
	TaskStatus string
}

func (e *LinkedTaskOpenError) Error() string {
	return fmt.Sprintf("alert %s cannot be resolved: linked task %s is %q (requires completed|cancelled)", e.AlertID, e.TaskID, e.TaskStatus)
}

func (e *LinkedTaskOpenError) Is(target error) bool { return target == ErrLinkedTaskOpen }

// ConcurrencyConflictError 乐观锁版本不匹配，调用方需重新读取后重试
type ConcurrencyConflictError struct {
	Entity   string
	ID       string
	Expected int64
	Actual   int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict (expected %d, actual %d)", e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// DuplicateKeyError 唯一键（如许可证编号）已被占用。
// 同时匹配 ErrConcurrencyConflict：另一个写入先占用了该值。
type DuplicateKeyError struct {
	Entity string
	Key    string
	Value  string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s: %s %q already exists", e.Entity, e.Key, e.Value)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey || target == ErrConcurrencyConflict
}

// NotFoundError 实体不存在
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: id=%s", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ErrorKind 返回错误分类名（HTTP 层使用）
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrPermitNotActive):
		return "PermitNotActive"
	case errors.Is(err, ErrLinkedTaskOpen):
		return "LinkedTaskOpen"
	case errors.Is(err, ErrConcurrencyConflict):
		return "ConcurrencyConflict"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "InternalError"
	}
}
