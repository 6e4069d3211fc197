package types

import (
	"errors"
	"fmt"
)

// ErrorKind SDK 错误分类
//
// 分类在 Orchestrator 边界被统一捕获：日志中保留完整分类与原因，
// 面向用户只展示统一的失败提示（见 GenericFailureMessage）。
type ErrorKind string

const (
	KindProviderUnavailable ErrorKind = "PROVIDER_UNAVAILABLE"
	KindUserRejected        ErrorKind = "USER_REJECTED"
	KindNoSigner            ErrorKind = "NO_SIGNER"
	KindInvalidAddress      ErrorKind = "INVALID_ADDRESS"
	KindTransactionReverted ErrorKind = "TRANSACTION_REVERTED"
	KindTransactionFailed   ErrorKind = "TRANSACTION_FAILED"
	KindRegistryEmpty       ErrorKind = "REGISTRY_EMPTY"
	KindMalformedAddress    ErrorKind = "MALFORMED_ADDRESS"

	// 以下为 SDK 扩展分类
	KindInvalidInput    ErrorKind = "INVALID_INPUT"
	KindIndexOutOfRange ErrorKind = "INDEX_OUT_OF_RANGE"
	KindWorkflowBusy    ErrorKind = "WORKFLOW_BUSY"
)

// 面向用户的提示文案（不区分错误类型）
const (
	SuccessMessage        = "Success"
	GenericFailureMessage = "Error. Check logs."
)

// SDKError SDK 统一错误类型
type SDKError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// Is 按 Kind 比较，使 errors.Is(err, types.ErrNoSigner) 对任意同类错误成立
func (e *SDKError) Is(target error) bool {
	t, ok := target.(*SDKError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 哨兵错误，仅用于 errors.Is 比较
var (
	ErrProviderUnavailable = &SDKError{Kind: KindProviderUnavailable, Message: "wallet provider is not available"}
	ErrUserRejected        = &SDKError{Kind: KindUserRejected, Message: "user rejected the request"}
	ErrNoSigner            = &SDKError{Kind: KindNoSigner, Message: "no connected account to sign with"}
	ErrInvalidAddress      = &SDKError{Kind: KindInvalidAddress, Message: "invalid address"}
	ErrTransactionReverted = &SDKError{Kind: KindTransactionReverted, Message: "transaction reverted"}
	ErrTransactionFailed   = &SDKError{Kind: KindTransactionFailed, Message: "transaction failed"}
	ErrRegistryEmpty       = &SDKError{Kind: KindRegistryEmpty, Message: "collection registry is empty"}
	ErrMalformedAddress    = &SDKError{Kind: KindMalformedAddress, Message: "malformed address in registry"}
	ErrInvalidInput        = &SDKError{Kind: KindInvalidInput, Message: "invalid input"}
	ErrIndexOutOfRange     = &SDKError{Kind: KindIndexOutOfRange, Message: "registry index out of range"}
	ErrWorkflowBusy        = &SDKError{Kind: KindWorkflowBusy, Message: "workflow already in progress"}
)

// NewError 创建指定分类的错误
func NewError(kind ErrorKind, message string, cause error) *SDKError {
	return &SDKError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// Errorf 创建指定分类的错误（格式化消息）
func Errorf(kind ErrorKind, format string, args ...interface{}) *SDKError {
	return &SDKError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf 返回错误链上第一个 SDKError 的分类，非 SDK 错误返回空字符串
func KindOf(err error) ErrorKind {
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr.Kind
	}
	return ""
}

// IsSDKError 检查错误是否为 SDKError
func IsSDKError(err error) (*SDKError, bool) {
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr, true
	}
	return nil, false
}
