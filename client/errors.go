package client

import (
	"errors"
	"fmt"
)

// Error 客户端错误
type Error struct {
	Code    int
	Message string
	Err     error

	// RPCCode JSON-RPC / EIP-1193 错误码（仅 ErrCodeRPCError 时有效）
	RPCCode int
	// Data JSON-RPC 错误附带数据
	Data interface{}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("client error [%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("client error [%d]: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 错误码定义
const (
	ErrCodeNetwork         = 1000 // 网络错误
	ErrCodeTimeout         = 1001 // 超时错误
	ErrCodeInvalidResponse = 1002 // 无效响应
	ErrCodeRPCError        = 1003 // JSON-RPC错误
	ErrCodeNotSupported    = 1004 // 不支持的操作
	ErrCodeClosed          = 1005 // 连接已关闭
)

// 常用 JSON-RPC / EIP-1193 错误码
const (
	RPCCodeMethodNotFound = -32601
	RPCCodeUserRejected   = 4001
	RPCCodeUnauthorized   = 4100
)

// NewNetworkError 创建网络错误
func NewNetworkError(err error) *Error {
	return &Error{
		Code:    ErrCodeNetwork,
		Message: "network error",
		Err:     err,
	}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError() *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: "request timeout",
	}
}

// NewInvalidResponseError 创建无效响应错误
func NewInvalidResponseError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidResponse,
		Message: message,
	}
}

// NewRPCError 创建JSON-RPC错误
func NewRPCError(code int, message string, data interface{}) *Error {
	msg := fmt.Sprintf("RPC error [%d]: %s", code, message)
	if data != nil {
		msg = fmt.Sprintf("%s, data: %v", msg, data)
	}
	return &Error{
		Code:    ErrCodeRPCError,
		Message: msg,
		RPCCode: code,
		Data:    data,
	}
}

// NewNotSupportedError 创建不支持的操作错误
func NewNotSupportedError(operation string) *Error {
	return &Error{
		Code:    ErrCodeNotSupported,
		Message: fmt.Sprintf("operation not supported: %s", operation),
	}
}

// RPCErrorCode 提取错误链中的 JSON-RPC 错误码
func RPCErrorCode(err error) (int, bool) {
	var cliErr *Error
	if errors.As(err, &cliErr) && cliErr.Code == ErrCodeRPCError {
		return cliErr.RPCCode, true
	}
	return 0, false
}
