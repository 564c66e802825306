package bus

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/vinayprograms/pulselink/config"
	plerrors "github.com/vinayprograms/pulselink/errors"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// DefaultSubject receives data records when none is configured.
const DefaultSubject = "pulselink.data"

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// MessageBus provides pub/sub messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus connection.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	return nil
}

// FromConfig opens the configured bus. Kind "none" (or empty) returns nil.
func FromConfig(cfg config.BusConfig) (MessageBus, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryBus(DefaultConfig()), nil
	case "nats":
		nc := DefaultNATSConfig()
		nc.URL = cfg.URL
		nc.Name = "pulselink"
		return NewNATSBus(nc)
	default:
		return nil, plerrors.InvalidConfig("unknown bus kind " + cfg.Kind)
	}
}

// DataRecord is published for every Data envelope an acceptor receives.
type DataRecord struct {
	Peer    string          `json:"peer"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeRecord parses a published record.
func DecodeRecord(data []byte) (DataRecord, error) {
	var rec DataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return DataRecord{}, plerrors.Parse("bus record", plerrors.WithCause(err))
	}
	return rec, nil
}

// Sink publishes data records to one subject.
type Sink struct {
	bus     MessageBus
	subject string
}

// NewSink creates a sink on subject. A nil bus yields a sink that drops records.
func NewSink(b MessageBus, subject string) *Sink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sink{bus: b, subject: subject}
}

// Subject returns the publish subject.
func (s *Sink) Subject() string {
	return s.subject
}

// Publish sends one record.
func (s *Sink) Publish(peer, id string, payload json.RawMessage) error {
	if s == nil || s.bus == nil {
		return nil
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	data, err := json.Marshal(DataRecord{Peer: peer, ID: id, Payload: payload})
	if err != nil {
		return plerrors.Wrap(err, "encode bus record")
	}
	return s.bus.Publish(s.subject, data)
}
