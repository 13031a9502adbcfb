package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 对外暴露的操作（挖掘、规则查询、混合推荐、缓存）在边界处把错误归类为 DomainError，
// 调用方（批处理命令、API 层）按 Code 区分 404 类与 500 类结果。
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "rules", "recommend"）
	Err     error  // 原始错误，可为 nil
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建携带原始错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 数据源/存储不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore     = "store"     // KV 存储
	ModuleExtract   = "extract"   // 交易数据抽取
	ModuleMining    = "mining"    // 频繁项集挖掘
	ModuleRules     = "rules"     // 关联规则存储与查询
	ModuleRecommend = "recommend" // 混合推荐
	ModuleCache     = "cache"     // 推荐结果缓存
	ModuleCatalog   = "catalog"   // 商品/用户目录
)

// GetDomainError 沿错误链查找 DomainError，找不到返回 nil
func GetDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// IsDomainError 检查错误链中是否有 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

func hasCode(err error, code string) bool {
	if de := GetDomainError(err); de != nil {
		return de.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// Recover 把 panic 转换为 INTERNAL_ERROR，需在 defer 中使用：
//
//	defer core.Recover(core.ModuleRecommend, &err)
func Recover(module string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	*errp = NewDomainError(module, ErrorCodeInternalError, fmt.Sprintf("unexpected failure: %v", r))
}
