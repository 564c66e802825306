package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/vinayprograms/pulselink/errors"
)

// Codec encodes envelopes to frames and back.
type Codec interface {
	ContentType() string
	Encode(e Envelope) ([]byte, error)
	Decode(data []byte) (Envelope, error)
}

// ByName returns the codec registered under name ("json", "cbor" or "msgpack").
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR()
	case "msgpack":
		return MsgPack(), nil
	default:
		return nil, errors.InvalidConfig(fmt.Sprintf("unknown codec %q", name))
	}
}

// wireJSON is the text shape on the wire. Unknown fields are ignored by
// encoding/json.
type wireJSON struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type jsonCodec struct{}

// JSON returns the text codec used on the wire:
//
//	{"type":"heartbeat"}
//	{"type":"data","id":"<string>","payload":<any>}
//	{"type":"ack","id":"<string>"}
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(e Envelope) ([]byte, error) {
	if !e.Valid() {
		return nil, errors.Internal(fmt.Sprintf("encode malformed envelope %s", e))
	}
	w := wireJSON{Type: e.kind.String(), ID: e.id}
	if e.kind == KindData {
		w.Payload = e.payload
	}
	data, err := marshalJSON(w)
	if err != nil {
		return nil, errors.Internal("encode envelope", errors.WithCause(err))
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, errors.Parse("envelope is not a JSON object")
	}

	var w wireJSON
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Envelope{}, errors.Parse("decode envelope", errors.WithCause(err))
	}
	// A missing payload and an explicit null both decode to null.
	return fromWire(w.Type, w.ID, w.Payload, w.Payload != nil)
}

// wireCBOR is the binary shape. The payload travels as its compact JSON bytes.
type wireCBOR struct {
	Type    string `cbor:"type"`
	ID      string `cbor:"id,omitempty"`
	Payload []byte `cbor:"payload,omitempty"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic binary codec (RFC 8949, canonical encoding).
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, errors.Internal("cbor encoder", errors.WithCause(err))
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, errors.Internal("cbor decoder", errors.WithCause(err))
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Encode(e Envelope) ([]byte, error) {
	if !e.Valid() {
		return nil, errors.Internal(fmt.Sprintf("encode malformed envelope %s", e))
	}
	w := wireCBOR{Type: e.kind.String(), ID: e.id}
	if e.kind == KindData {
		w.Payload = e.payload
	}
	return c.enc.Marshal(w)
}

func (c cborCodec) Decode(data []byte) (Envelope, error) {
	var w wireCBOR
	if err := c.dec.Unmarshal(data, &w); err != nil {
		return Envelope{}, errors.Parse("decode envelope", errors.WithCause(err))
	}
	return fromWire(w.Type, w.ID, w.Payload, w.Payload != nil)
}

// wireMsgpack mirrors wireCBOR.
type wireMsgpack struct {
	Type    string `msgpack:"type"`
	ID      string `msgpack:"id,omitempty"`
	Payload []byte `msgpack:"payload,omitempty"`
}

type msgpackCodec struct{}

// MsgPack returns a compact binary codec with sorted map keys.
func MsgPack() Codec { return msgpackCodec{} }

func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Encode(e Envelope) ([]byte, error) {
	if !e.Valid() {
		return nil, errors.Internal(fmt.Sprintf("encode malformed envelope %s", e))
	}
	w := wireMsgpack{Type: e.kind.String(), ID: e.id}
	if e.kind == KindData {
		w.Payload = e.payload
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf).UseCompactEncoding(true).SortMapKeys(true)
	if err := enc.Encode(w); err != nil {
		return nil, errors.Internal("msgpack encode", errors.WithCause(err))
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Decode(data []byte) (Envelope, error) {
	var w wireMsgpack
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Envelope{}, errors.Parse("decode envelope", errors.WithCause(err))
	}
	return fromWire(w.Type, w.ID, w.Payload, w.Payload != nil)
}
