package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Dispatch error codes
const (
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrInvocationFailed ErrorCode = "INVOCATION_FAILED"
	ErrInvalidArguments ErrorCode = "INVALID_ARGUMENTS"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrNotImplemented   ErrorCode = "NOT_IMPLEMENTED"
)

// Transport error codes
const (
	ErrConnection    ErrorCode = "CONNECTION_ERROR"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrClientError   ErrorCode = "CLIENT_ERROR"
	ErrServerError   ErrorCode = "SERVER_ERROR"
	ErrExecution     ErrorCode = "EXECUTION_ERROR"
	ErrRPC           ErrorCode = "RPC_ERROR"
	ErrConfiguration ErrorCode = "CONFIGURATION_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewNotFoundError 目标（agent / tool / method）不存在
func NewNotFoundError(message string) *Error {
	return NewError(ErrNotFound, message)
}

// NewConnectionError 连接失败，可重试
func NewConnectionError(message string, cause error) *Error {
	return NewError(ErrConnection, message).WithCause(cause).WithRetryable(true)
}

// NewTimeoutError 请求超时，可重试
func NewTimeoutError(message string, cause error) *Error {
	return NewError(ErrTimeout, message).WithCause(cause).WithRetryable(true)
}

// NewClientError 4xx 响应
func NewClientError(status int, message string) *Error {
	return NewError(ErrClientError, message).WithHTTPStatus(status)
}

// NewServerError 5xx 响应，可重试
func NewServerError(status int, message string) *Error {
	return NewError(ErrServerError, message).WithHTTPStatus(status).WithRetryable(true)
}

// NewExecutionError 子进程以非零状态退出
func NewExecutionError(message string) *Error {
	return NewError(ErrExecution, message)
}

// NewConfigurationError 配置错误，启动期致命
func NewConfigurationError(message string) *Error {
	return NewError(ErrConfiguration, message)
}
