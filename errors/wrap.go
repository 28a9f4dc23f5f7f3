package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error
// chain. If err is nil, Wrap returns nil. If err is already an EngineError,
// its code, category, and context are preserved. Context errors map to their
// corresponding codes; anything else is classified as internal.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var engErr *Error
	if errors.As(err, &engErr) {
		wrapped := &Error{
			code:       engErr.code,
			category:   engErr.category,
			message:    message,
			cause:      err,
			metadata:   engErr.Metadata(),
			retryable:  engErr.retryable,
			requestID:  engErr.requestID,
			rawPayload: engErr.rawPayload,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error under a specific reason code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsEngineError attempts to extract an EngineError from an error chain.
// Returns nil if none is found.
func AsEngineError(err error) EngineError {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr
	}
	return nil
}

// Is checks if any error in the chain carries the given reason code.
func Is(err error, code ErrorCode) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable. Non-classified errors are
// not retryable by default.
func IsRetryable(err error) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Retryable()
	}
	return false
}

// IsTimeout checks if the error is a request timeout.
func IsTimeout(err error) bool {
	return Is(err, ErrCodeTimeout)
}

// IsConversion checks if the error is a conversion failure.
func IsConversion(err error) bool {
	return Is(err, ErrCodeConversion)
}

// IsDisposed checks if the error is a use-after-dispose.
func IsDisposed(err error) bool {
	return Is(err, ErrCodeDisposed)
}
