package registry

import (
	"errors"
	"time"

	"github.com/vinayprograms/pulselink/envelope"
)

// Common errors.
var (
	ErrNotFound    = errors.New("peer not found")
	ErrClosed      = errors.New("registry closed")
	ErrInvalidID   = errors.New("invalid peer ID")
	ErrDuplicateID = errors.New("duplicate peer ID")
)

// Peer is a live connection that can receive envelopes.
type Peer interface {
	ID() string
	Send(env envelope.Envelope) error
}

// addressed is implemented by peers that know their remote address.
type addressed interface {
	RemoteAddr() string
}

// PeerInfo describes a registered peer.
type PeerInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// EventType represents the type of registry event.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
)

// Event represents a change in the registry.
type Event struct {
	// Type indicates what happened.
	Type EventType

	// PeerID is the affected peer.
	PeerID string

	// Total is the registry size after the change.
	Total int
}
