package errors

// ErrorCategory classifies failures by their nature and retry semantics.
type ErrorCategory string

// Categories define how a failure should be handled by the caller.
const (
	// CategoryTransient indicates per-request failures where retry may succeed.
	// Examples: request timeout, transport congestion.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed payload, use after dispose.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected failures, bugs, or invariant
	// violations. Examples: recovered panics, double use of a oneshot half.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if failures in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies the specific failure type. Every failure that reaches
// the application carries exactly one of these reason codes.
type ErrorCode string

const (
	// ErrCodeSpawnFailed means the worker's execution context could not be
	// created. Fatal; raised once at construction.
	ErrCodeSpawnFailed ErrorCode = "ENGINE_SPAWN_FAILED"

	// ErrCodeConversion means an encode or decode step failed. Recoverable
	// per-request; carries the offending raw payload as metadata.
	ErrCodeConversion ErrorCode = "CONVERSION_FAILED"

	// ErrCodeTimeout means no response arrived within the deadline.
	ErrCodeTimeout ErrorCode = "REQUEST_TIMEOUT"

	// ErrCodeHandler means the worker handler failed; caught at the worker
	// boundary and delivered as a classified response.
	ErrCodeHandler ErrorCode = "HANDLER_FAILED"

	// ErrCodeDisposed means an operation was attempted after Dispose.
	ErrCodeDisposed ErrorCode = "DISPOSED"

	// ErrCodeChannelUsed means a second send or receive on a oneshot half.
	ErrCodeChannelUsed ErrorCode = "CHANNEL_USED"

	// ErrCodeTransportClosed means the underlying transport shut down while
	// an operation was in flight.
	ErrCodeTransportClosed ErrorCode = "TRANSPORT_CLOSED"

	// ErrCodePortUnknown means a packet addressed a port with no registered
	// receiver (typically a late response after timeout disposal).
	ErrCodePortUnknown ErrorCode = "PORT_UNKNOWN"

	// ErrCodeCanceled means the caller's context was canceled mid-send.
	ErrCodeCanceled ErrorCode = "CANCELED"

	// ErrCodeInternal is the fallback for unexpected internal failures.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// defaultCategory maps each code to its category.
var defaultCategory = map[ErrorCode]ErrorCategory{
	ErrCodeSpawnFailed:     CategoryPermanent,
	ErrCodeConversion:      CategoryPermanent,
	ErrCodeTimeout:         CategoryTransient,
	ErrCodeHandler:         CategoryPermanent,
	ErrCodeDisposed:        CategoryPermanent,
	ErrCodeChannelUsed:     CategoryInternal,
	ErrCodeTransportClosed: CategoryTransient,
	ErrCodePortUnknown:     CategoryTransient,
	ErrCodeCanceled:        CategoryPermanent,
	ErrCodeInternal:        CategoryInternal,
}

// CategoryFor returns the default category for a code.
func CategoryFor(code ErrorCode) ErrorCategory {
	if cat, ok := defaultCategory[code]; ok {
		return cat
	}
	return CategoryInternal
}
