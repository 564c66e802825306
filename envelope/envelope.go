// Package envelope defines the three protocol messages exchanged over a
// connection and the codecs that put them on the wire.
//
// An Envelope is a closed tagged union: Heartbeat, Data or Ack. Anything that
// does not decode into one of the three shapes is rejected with a PARSE error
// from the errors package; the caller drops the message and keeps the
// connection open.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/pulselink/errors"
)

// Kind identifies an envelope variant.
type Kind int

const (
	KindHeartbeat Kind = iota + 1
	KindData
	KindAck
)

// Wire names for each kind.
const (
	TypeHeartbeat = "heartbeat"
	TypeData      = "data"
	TypeAck       = "ack"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return TypeHeartbeat
	case KindData:
		return TypeData
	case KindAck:
		return TypeAck
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a wire name to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case TypeHeartbeat:
		return KindHeartbeat, true
	case TypeData:
		return KindData, true
	case TypeAck:
		return KindAck, true
	default:
		return 0, false
	}
}

var nullPayload = json.RawMessage("null")

// Envelope is one protocol message. The zero value is not well-formed; use
// the constructors.
type Envelope struct {
	kind    Kind
	id      string
	payload json.RawMessage
}

// Heartbeat returns a heartbeat envelope.
func Heartbeat() Envelope {
	return Envelope{kind: KindHeartbeat}
}

// Data returns a data envelope carrying v encoded as compact JSON.
func Data(id string, v any) (Envelope, error) {
	raw, err := marshalJSON(v)
	if err != nil {
		return Envelope{}, errors.New(errors.ErrCodeParse, "encode payload", errors.WithCause(err))
	}
	return DataRaw(id, raw)
}

// marshalJSON is json.Marshal without HTML escaping, so < > & travel verbatim.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// DataRaw returns a data envelope carrying an already encoded JSON value.
func DataRaw(id string, raw json.RawMessage) (Envelope, error) {
	if id == "" {
		return Envelope{}, errors.Parse("data envelope requires an id")
	}
	payload, err := canonical(raw)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{kind: KindData, id: id, payload: payload}, nil
}

// Ack returns an acknowledgment for id.
func Ack(id string) (Envelope, error) {
	if id == "" {
		return Envelope{}, errors.Parse("ack envelope requires an id")
	}
	return Envelope{kind: KindAck, id: id}, nil
}

// AckFor returns the acknowledgment answering a data envelope.
func AckFor(data Envelope) Envelope {
	return Envelope{kind: KindAck, id: data.id}
}

// canonical validates raw and returns its compact form. Empty input means null.
func canonical(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nullPayload, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, errors.Parse("payload is not valid JSON", errors.WithCause(err))
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Kind returns the envelope variant.
func (e Envelope) Kind() Kind {
	return e.kind
}

// CorrelationID returns the id linking a Data envelope to its Ack.
// Empty for heartbeats.
func (e Envelope) CorrelationID() string {
	return e.id
}

// Payload returns a copy of the JSON payload. Nil unless Kind is KindData.
func (e Envelope) Payload() json.RawMessage {
	if e.payload == nil {
		return nil
	}
	out := make(json.RawMessage, len(e.payload))
	copy(out, e.payload)
	return out
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if e.kind != KindData {
		return errors.Parse(fmt.Sprintf("%s envelope has no payload", e.kind))
	}
	return json.Unmarshal(e.payload, v)
}

// Valid reports whether e is one of the three well-formed shapes.
func (e Envelope) Valid() bool {
	switch e.kind {
	case KindHeartbeat:
		return e.id == "" && e.payload == nil
	case KindData:
		return e.id != "" && e.payload != nil
	case KindAck:
		return e.id != "" && e.payload == nil
	default:
		return false
	}
}

// Equal reports whether two envelopes carry the same kind, id and payload bytes.
func (e Envelope) Equal(other Envelope) bool {
	return e.kind == other.kind && e.id == other.id && bytes.Equal(e.payload, other.payload)
}

// String renders the envelope for logs.
func (e Envelope) String() string {
	switch e.kind {
	case KindHeartbeat:
		return TypeHeartbeat
	case KindData:
		return fmt.Sprintf("data(%s, %d bytes)", e.id, len(e.payload))
	default:
		return fmt.Sprintf("%s(%s)", e.kind, e.id)
	}
}

// IsParseError reports whether err came from decoding a malformed envelope.
func IsParseError(err error) bool {
	return errors.Is(err, errors.ErrCodeParse)
}

// fromWire validates decoded fields and builds the envelope.
// Fields that do not belong to the kind are ignored.
func fromWire(typ, id string, payload []byte, hasPayload bool) (Envelope, error) {
	if typ == "" {
		return Envelope{}, errors.Parse("envelope has no type")
	}
	kind, ok := ParseKind(typ)
	if !ok {
		return Envelope{}, errors.Parse(fmt.Sprintf("unknown envelope type %q", typ))
	}

	switch kind {
	case KindHeartbeat:
		return Heartbeat(), nil
	case KindAck:
		return Ack(id)
	default:
		if !hasPayload {
			payload = nil
		}
		return DataRaw(id, payload)
	}
}
