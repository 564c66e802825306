package errors

import (
	"fmt"
	"time"
)

// Error is the structured error value used by every pulselink package.
type Error struct {
	code         ErrorCode
	category     ErrorCategory
	message      string
	cause        error
	metadata     map[string]string
	retryable    *bool // nil means use default based on category
	timestamp    time.Time
	connectionID string
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
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

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// ConnectionID returns the connection the error was observed on, if set.
func (e *Error) ConnectionID() string {
	return e.connectionID
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
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

// WithConnectionID sets the connection the error relates to.
func WithConnectionID(id string) Option {
	return func(e *Error) {
		e.connectionID = id
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// Transport creates a transport error.
func Transport(message string, opts ...Option) *Error {
	return New(ErrCodeTransport, message, opts...)
}

// Stale creates a stale connection error for a connection whose peer has
// been silent for longer than window.
func Stale(connectionID string, window time.Duration, opts ...Option) *Error {
	opts = append([]Option{WithConnectionID(connectionID)}, opts...)
	return New(ErrCodeStaleConnection,
		fmt.Sprintf("connection %s: nothing received within %s", connectionID, window), opts...)
}

// Parse creates a parse error.
func Parse(message string, opts ...Option) *Error {
	return New(ErrCodeParse, message, opts...)
}

// SendOnClosed creates the error returned when a send is dropped.
func SendOnClosed(connectionID, state string, opts ...Option) *Error {
	opts = append([]Option{WithConnectionID(connectionID), WithMetadata("state", state)}, opts...)
	return New(ErrCodeSendOnClosed,
		fmt.Sprintf("connection %s is %s, send dropped", connectionID, state), opts...)
}

// InvalidConfig creates a configuration error.
func InvalidConfig(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidConfig, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
