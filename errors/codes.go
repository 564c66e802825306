package errors

// ErrorCategory classifies errors by how a connection reacts to them.
type ErrorCategory string

// Error categories.
const (
	// CategoryTransient indicates the link failed but may be re-established.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates retrying the same operation will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates a bug or an unexpected runtime failure.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes.
const (
	// Transient
	ErrCodeTransport       ErrorCode = "TRANSPORT"        // Connect failure or mid-stream I/O error
	ErrCodeStaleConnection ErrorCode = "STALE_CONNECTION" // Liveness window exceeded
	ErrCodeTimeout         ErrorCode = "TIMEOUT"          // Operation timed out

	// Permanent
	ErrCodeParse          ErrorCode = "PARSE"           // Malformed or unrecognized envelope
	ErrCodeSendOnClosed   ErrorCode = "SEND_ON_CLOSED"  // Send attempted while not open
	ErrCodeHandlerFailed  ErrorCode = "HANDLER_FAILED"  // Application handler returned an error
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"  // Configuration rejected
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"       // Entry does not exist
	ErrCodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"  // Entry already exists
	ErrCodeCanceled       ErrorCode = "CANCELED"        // Operation was canceled

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTransport, ErrCodeStaleConnection, ErrCodeTimeout:
		return CategoryTransient

	case ErrCodeParse, ErrCodeSendOnClosed, ErrCodeHandlerFailed, ErrCodeInvalidConfig,
		ErrCodeNotFound, ErrCodeAlreadyExists, ErrCodeCanceled:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTransport:       "transport failure",
	ErrCodeStaleConnection: "connection is stale",
	ErrCodeTimeout:         "operation timed out",
	ErrCodeParse:           "malformed envelope",
	ErrCodeSendOnClosed:    "send on closed transport",
	ErrCodeHandlerFailed:   "handler failed",
	ErrCodeInvalidConfig:   "invalid configuration",
	ErrCodeNotFound:        "not found",
	ErrCodeAlreadyExists:   "already exists",
	ErrCodeCanceled:        "operation canceled",
	ErrCodeInternal:        "internal error",
	ErrCodePanic:           "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
