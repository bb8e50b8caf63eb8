package rentaly

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode categorizes SDK failures.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorConnection
	ErrorReconnectFailed
	ErrorRequestFailed
	ErrorInvalidInput
	ErrorInvalidToken
	ErrorConversationClosed
	ErrorDecode
)

// String returns the string representation of an ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrorConnection:
		return "connection_error"
	case ErrorReconnectFailed:
		return "reconnect_failed"
	case ErrorRequestFailed:
		return "request_failed"
	case ErrorInvalidInput:
		return "invalid_input"
	case ErrorInvalidToken:
		return "invalid_token"
	case ErrorConversationClosed:
		return "conversation_closed"
	case ErrorDecode:
		return "decode_error"
	case ErrorUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown_code_%d", int(c))
	}
}

// Error is a structured SDK error. Two errors match under errors.Is when their
// codes are equal.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Wrapped }

// Is matches on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates an Error with the given code.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches a code to an underlying error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrConnection         = NewError(ErrorConnection, "connection error")
	ErrReconnectFailed    = NewError(ErrorReconnectFailed, "reconnect attempts exhausted")
	ErrRequestFailed      = NewError(ErrorRequestFailed, "request failed")
	ErrInvalidInput       = NewError(ErrorInvalidInput, "invalid input")
	ErrInvalidToken       = NewError(ErrorInvalidToken, "invalid token")
	ErrConversationClosed = NewError(ErrorConversationClosed, "conversation is closed")
	ErrDecode             = NewError(ErrorDecode, "decode failed")
)

// CodeOf extracts the ErrorCode of err, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ErrorRequestFailed
	}
	return ErrorUnknown
}

// IsConnectionError reports whether err belongs to the connection class
// (retried with backoff, terminal only once reconnects are exhausted).
func IsConnectionError(err error) bool {
	switch CodeOf(err) {
	case ErrorConnection, ErrorReconnectFailed:
		return true
	}
	return false
}

func invalidInput(format string, args ...any) error {
	return NewError(ErrorInvalidInput, fmt.Sprintf(format, args...))
}
