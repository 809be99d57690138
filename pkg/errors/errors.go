package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码、HTTP 状态和用户可见消息
type AppError struct {
	Code    int    // 错误码
	Status  int    // 对应的 HTTP 状态（网关返回或本地映射）
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code, status int, message string) *AppError {
	return &AppError{
		Code:    code,
		Status:  status,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Status:  e.Status,
		Message: e.Message,
		Err:     err,
	}
}

// WithMessage 复制错误并替换消息（网关返回的消息优先）
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Status:  e.Status,
		Message: message,
		Err:     e.Err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetStatus 获取 HTTP 状态，如果不是 AppError 返回 500
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status > 0 {
		return appErr.Status
	}
	return 500
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Unknown error"
}

// FromStatus 按网关返回的 HTTP 状态选择预定义错误，并带上网关消息
func FromStatus(status int, message string) *AppError {
	var base *AppError
	switch {
	case status == 0:
		base = ErrNetwork
	case status == 400:
		base = ErrBadRequest
	case status == 401:
		base = ErrUnauthorized
	case status == 403:
		base = ErrForbidden
	case status == 404:
		base = ErrNotFound
	case status >= 500:
		base = ErrGateway
	default:
		base = ErrUnknown
	}
	appErr := &AppError{Code: base.Code, Status: status, Message: base.Message}
	if message != "" {
		appErr.Message = message
	}
	return appErr
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 会话相关 10000-10999
	CodeSessionMissing = 10001
	CodeSessionInvalid = 10002
	CodeSessionExpired = 10003

	// 请求相关 11000-11999
	CodeBadRequest    = 11001
	CodeInvalidParams = 11002
	CodeUnauthorized  = 11003
	CodeForbidden     = 11004
	CodeNotFound      = 11005

	// 网关相关 12000-12999
	CodeNetwork         = 12001
	CodeGateway         = 12002
	CodeInvalidResponse = 12003
	CodeUnknown         = 12004

	// 系统错误 50000-50999
	CodeServerError = 50001
	CodeStoreError  = 50002
)

// ============== 预定义错误 ==============

// 会话相关
var (
	ErrSessionMissing = NewError(CodeSessionMissing, 401, "Not signed in")
	ErrSessionInvalid = NewError(CodeSessionInvalid, 401, "Invalid session")
	ErrSessionExpired = NewError(CodeSessionExpired, 401, "Session expired")
)

// 请求相关
var (
	ErrBadRequest    = NewError(CodeBadRequest, 400, "Bad request")
	ErrInvalidParams = NewError(CodeInvalidParams, 400, "Invalid parameters")
	ErrUnauthorized  = NewError(CodeUnauthorized, 401, "Unauthorized")
	ErrForbidden     = NewError(CodeForbidden, 403, "Forbidden")
	ErrNotFound      = NewError(CodeNotFound, 404, "Not found")
)

// 网关相关
var (
	ErrNetwork         = NewError(CodeNetwork, 0, "Network error")
	ErrGateway         = NewError(CodeGateway, 502, "Unknown error")
	ErrInvalidResponse = NewError(CodeInvalidResponse, 502, "Invalid response")
	ErrUnknown         = NewError(CodeUnknown, 500, "Unknown error")
)

// 系统相关
var (
	ErrServerError = NewError(CodeServerError, 500, "Internal server error")
	ErrStoreError  = NewError(CodeStoreError, 500, "State store error")
)
