package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// EngineError is the interface for all classified failures surfaced by the
// engine boundary. It extends the standard error interface with the reason
// code and context the application needs to react without type-switching on
// heterogeneous error types.
type EngineError interface {
	error

	// Code returns the reason code identifying the failure type.
	Code() ErrorCode

	// Category returns the failure category for retry decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of EngineError.
type Error struct {
	code       ErrorCode
	category   ErrorCategory
	message    string
	cause      error
	metadata   map[string]string
	retryable  *bool // nil means use category default
	timestamp  time.Time
	requestID  string
	rawPayload []byte // offending wire bytes on conversion failures
}

var (
	_ EngineError      = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

// New creates a classified error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  CategoryFor(code),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a classified error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the reason code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the failure category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this failure is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the failure occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// RequestID returns the related request ID, if set.
func (e *Error) RequestID() string {
	return e.requestID
}

// RawPayload returns the offending wire bytes, if captured. Only conversion
// failures carry one.
func (e *Error) RawPayload() []byte {
	return e.rawPayload
}

// errorJSON is the wire representation of an Error. Classified failures cross
// the execution-context boundary embedded in responses, so the round trip
// must preserve code, category, and context.
type errorJSON struct {
	Code       ErrorCode         `json:"code"`
	Category   ErrorCategory     `json:"category"`
	Message    string            `json:"message"`
	Cause      string            `json:"cause,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Retryable  bool              `json:"retryable"`
	Timestamp  string            `json:"timestamp,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	RawPayload []byte            `json:"raw_payload,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:       e.code,
		Category:   e.category,
		Message:    e.message,
		Metadata:   e.metadata,
		Retryable:  e.Retryable(),
		RequestID:  e.requestID,
		RawPayload: e.rawPayload,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	e.message = j.Message
	e.metadata = j.Metadata
	e.requestID = j.RequestID
	e.rawPayload = j.RawPayload
	r := j.Retryable
	e.retryable = &r
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCause attaches the underlying error.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the failure is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRequestID sets the related request ID.
func WithRequestID(id string) Option {
	return func(e *Error) {
		e.requestID = id
	}
}

// WithRawPayload captures the offending wire bytes.
func WithRawPayload(raw []byte) Option {
	return func(e *Error) {
		e.rawPayload = append([]byte(nil), raw...)
	}
}
