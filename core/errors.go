package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），被 %w 包装后依然可以识别
//
// 使用场景：
//   - 数据结构错误：SHAPE_MISMATCH, EMPTY_INTERSECTION, KIND_MISMATCH
//   - 索引错误：OUT_OF_RANGE
//   - 流程错误：NOT_FITTED
//   - Store 错误：NOT_FOUND
type DomainError struct {
	Code    string // 错误代码（如 "SHAPE_MISMATCH", "NOT_FOUND"）
	Message string // 错误消息
	Module  string // 模块名称（如 "data", "pipeline", "store"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 让 errors.Is 按 Module + Code 匹配，而不是按指针。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Module == "" || e.Module == t.Module)
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeShapeMismatch     = "SHAPE_MISMATCH"     // 分支数、角色集合或索引参数不一致
	ErrorCodeEmptyIntersection = "EMPTY_INTERSECTION" // BranchSet 的角色交集为空
	ErrorCodeKindMismatch      = "KIND_MISMATCH"      // 需要同构的地方出现了不同的数据类型
	ErrorCodeNotFitted         = "NOT_FITTED"         // 未 Fit 就调用预测
	ErrorCodeOutOfRange        = "OUT_OF_RANGE"       // 索引引用了容器中不存在的 key

	ErrorCodeNotFound     = "NOT_FOUND"     // 资源不存在
	ErrorCodeNotSupported = "NOT_SUPPORTED" // 操作不支持
	ErrorCodeInvalidInput = "INVALID_INPUT" // 输入无效
)

// 模块名称常量
const (
	ModuleData     = "data"     // Data / Unit / BranchSet
	ModulePipeline = "pipeline" // Layer / Pipeline
	ModuleStore    = "store"    // 持久化
	ModuleNode     = "node"     // 具体 Node 实现
)

// ShapeMismatchf 构造 SHAPE_MISMATCH 错误。
func ShapeMismatchf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeShapeMismatch, fmt.Sprintf(format, args...))
}

// KindMismatchf 构造 KIND_MISMATCH 错误。
func KindMismatchf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeKindMismatch, fmt.Sprintf(format, args...))
}

// OutOfRangef 构造 OUT_OF_RANGE 错误。
func OutOfRangef(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeOutOfRange, fmt.Sprintf(format, args...))
}

// InvalidInputf 构造 INVALID_INPUT 错误。
func InvalidInputf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, fmt.Sprintf(format, args...))
}

// 预定义错误
var (
	// ErrEmptyIntersection 表示 BranchSet 中各分支的角色交集为空
	ErrEmptyIntersection = NewDomainError(ModuleData, ErrorCodeEmptyIntersection, "data: units intersection is empty")

	// ErrNotFitted 表示在 Fit（或 Load）之前调用了预测
	ErrNotFitted = NewDomainError(ModulePipeline, ErrorCodeNotFitted, "pipeline: fit your pipeline before predicting")
)

// 通用错误检查函数

func hasCode(err error, code string) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Code == code
}

// IsShapeMismatch 检查错误是否为 SHAPE_MISMATCH
func IsShapeMismatch(err error) bool { return hasCode(err, ErrorCodeShapeMismatch) }

// IsEmptyIntersection 检查错误是否为 EMPTY_INTERSECTION
func IsEmptyIntersection(err error) bool { return hasCode(err, ErrorCodeEmptyIntersection) }

// IsKindMismatch 检查错误是否为 KIND_MISMATCH
func IsKindMismatch(err error) bool { return hasCode(err, ErrorCodeKindMismatch) }

// IsNotFitted 检查错误是否为 NOT_FITTED
func IsNotFitted(err error) bool { return hasCode(err, ErrorCodeNotFitted) }

// IsOutOfRange 检查错误是否为 OUT_OF_RANGE
func IsOutOfRange(err error) bool { return hasCode(err, ErrorCodeOutOfRange) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }
