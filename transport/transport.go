package transport

import (
	"context"
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrClosed is returned by Send when the transport is not writable.
	ErrClosed = errors.New("transport closed")
)

// Close codes. Values follow RFC 6455 so they travel unchanged over WebSocket.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006
)

// Transport is a persistent, message-framed, bidirectional link.
type Transport interface {
	// Recv delivers inbound frames in arrival order.
	// The channel is closed when the link ends.
	Recv() <-chan []byte

	// Send writes one frame.
	// Returns ErrClosed if the link is no longer writable.
	Send(data []byte) error

	// Close ends the link with the given code and releases it.
	// Closing an ended transport is a no-op.
	Close(code int, reason string) error

	// Status reports why the link ended. Valid once Recv is closed.
	Status() CloseStatus

	// RemoteAddr describes the other end, for logs.
	RemoteAddr() string
}

// Dialer establishes a new transport to a fixed counterpart.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// CloseStatus describes how a transport ended.
type CloseStatus struct {
	// Code is the close code sent or received.
	Code int

	// Reason is the optional close text.
	Reason string

	// Err is set when the link ended through an I/O error.
	Err error

	// Local is true when this side requested the close.
	Local bool
}

// Normal reports whether the link ended with the reserved normal code and no error.
func (s CloseStatus) Normal() bool {
	return s.Code == CloseNormal && s.Err == nil
}

// String renders the status for logs.
func (s CloseStatus) String() string {
	origin := "remote"
	if s.Local {
		origin = "local"
	}
	if s.Err != nil {
		return fmt.Sprintf("%s close %d: %v", origin, s.Code, s.Err)
	}
	if s.Reason != "" {
		return fmt.Sprintf("%s close %d (%s)", origin, s.Code, s.Reason)
	}
	return fmt.Sprintf("%s close %d", origin, s.Code)
}

// Config holds common transport configuration.
type Config struct {
	// RecvBufferSize is the size of the receive channel buffer.
	// Default: 100
	RecvBufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecvBufferSize: 100,
	}
}
