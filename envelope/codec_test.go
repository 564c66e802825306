package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v4"
)

func codecs(t *testing.T) map[string]Codec {
	t.Helper()
	cb, err := CBOR()
	require.NoError(t, err)
	return map[string]Codec{"json": JSON(), "cbor": cb, "msgpack": MsgPack()}
}

func TestRoundTrip(t *testing.T) {
	envelopes := []Envelope{
		Heartbeat(),
		mustData(t, "sensor1", map[string]any{"temperature": 42}),
		mustData(t, "nested", map[string]any{"a": []any{1, "two", nil, true}}),
		mustData(t, "scalar", 3.5),
		mustData(t, "null", nil),
		mustData(t, "html", map[string]string{"html": "<b>a&b</b>"}),
		mustDataRaw(t, "raw", `{"cmp":"a<b","and":"x&y"}`),
		mustAck(t, "sensor1"),
	}

	for name, c := range codecs(t) {
		t.Run(name, func(t *testing.T) {
			for _, e := range envelopes {
				data, err := c.Encode(e)
				require.NoError(t, err)

				got, err := c.Decode(data)
				require.NoError(t, err)
				assert.True(t, got.Equal(e), "round trip %s -> %s", e, got)
			}
		})
	}
}

func TestJSON_NoHTMLEscaping(t *testing.T) {
	c := JSON()

	data, err := c.Encode(mustDataRaw(t, "x", `{"html":"<b>a&b</b>"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"data","id":"x","payload":{"html":"<b>a&b</b>"}}`, string(data))

	// A frame from a peer that does not escape survives a relay unchanged.
	in := []byte(`{"type":"data","id":"x","payload":"<b>"}`)
	env, err := c.Decode(in)
	require.NoError(t, err)
	out, err := c.Encode(env)
	require.NoError(t, err)
	assert.Equal(t, string(in), string(out))
	assert.Equal(t, `"<b>"`, string(env.Payload()))
}

func TestJSON_WireShapes(t *testing.T) {
	c := JSON()

	hb, err := c.Encode(Heartbeat())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat"}`, string(hb))

	data, err := c.Encode(mustData(t, "sensor1", map[string]int{"temperature": 42}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"data","id":"sensor1","payload":{"temperature":42}}`, string(data))

	ack, err := c.Encode(mustAck(t, "sensor1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","id":"sensor1"}`, string(ack))
}

func TestJSON_DecodeTolerant(t *testing.T) {
	c := JSON()

	tests := []struct {
		name string
		in   string
		want Envelope
	}{
		{"field order", `{"payload":{"temperature":42},"id":"sensor1","type":"data"}`,
			mustData(t, "sensor1", map[string]int{"temperature": 42})},
		{"unknown fields", `{"type":"ack","id":"a1","extra":true}`, mustAck(t, "a1")},
		{"heartbeat ignores id", `{"type":"heartbeat","id":"x","payload":1}`, Heartbeat()},
		{"ack ignores payload", `{"type":"ack","id":"a1","payload":{"x":1}}`, mustAck(t, "a1")},
		{"missing payload", `{"type":"data","id":"d1"}`, mustData(t, "d1", nil)},
		{"whitespace payload", `{"type":"data","id":"d1","payload": { "x" : 1 } }`, mustData(t, "d1", map[string]int{"x": 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestJSON_DecodeErrors(t *testing.T) {
	c := JSON()

	inputs := map[string]string{
		"bad json":      `{bad json`,
		"empty":         ``,
		"array":         `[1,2]`,
		"string":        `"heartbeat"`,
		"no type":       `{"id":"x"}`,
		"unknown type":  `{"type":"ping"}`,
		"type case":     `{"type":"HEARTBEAT"}`,
		"type not str":  `{"type":1}`,
		"data no id":    `{"type":"data","payload":1}`,
		"ack no id":     `{"type":"ack"}`,
		"id not string": `{"type":"ack","id":7}`,
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode([]byte(in))
			require.Error(t, err)
			assert.True(t, IsParseError(err), "want parse error, got %v", err)
		})
	}
}

func TestCBOR_DecodeErrors(t *testing.T) {
	c, err := CBOR()
	require.NoError(t, err)

	_, err = c.Decode([]byte{0xff, 0x00})
	assert.True(t, IsParseError(err))

	// a JSON frame is not a CBOR map
	_, err = c.Decode([]byte(`{"type":"heartbeat"}`))
	assert.Error(t, err)
}

func TestMsgPack_DecodeErrors(t *testing.T) {
	c := MsgPack()

	_, err := c.Decode([]byte{0xc1})
	assert.True(t, IsParseError(err))

	// map without a type
	data, err := msgpack.Marshal(map[string]string{"id": "x"})
	require.NoError(t, err)
	_, err = c.Decode(data)
	assert.True(t, IsParseError(err))
}

func TestByName(t *testing.T) {
	c, err := ByName("json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", c.ContentType())

	c, err = ByName("CBOR")
	require.NoError(t, err)
	assert.Equal(t, "application/cbor", c.ContentType())

	c, err = ByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "application/msgpack", c.ContentType())

	_, err = ByName("xml")
	assert.Error(t, err)
}

func mustDataRaw(t *testing.T, id, raw string) Envelope {
	t.Helper()
	e, err := DataRaw(id, json.RawMessage(raw))
	require.NoError(t, err)
	return e
}
