package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustData(t *testing.T, id string, v any) Envelope {
	t.Helper()
	e, err := Data(id, v)
	require.NoError(t, err)
	return e
}

func mustAck(t *testing.T, id string) Envelope {
	t.Helper()
	e, err := Ack(id)
	require.NoError(t, err)
	return e
}

// --- Unit Tests ---

func TestConstructors(t *testing.T) {
	hb := Heartbeat()
	assert.Equal(t, KindHeartbeat, hb.Kind())
	assert.Empty(t, hb.CorrelationID())
	assert.Nil(t, hb.Payload())
	assert.True(t, hb.Valid())

	data := mustData(t, "sensor1", map[string]int{"temperature": 42})
	assert.Equal(t, KindData, data.Kind())
	assert.Equal(t, "sensor1", data.CorrelationID())
	assert.JSONEq(t, `{"temperature":42}`, string(data.Payload()))

	ack := AckFor(data)
	assert.Equal(t, KindAck, ack.Kind())
	assert.Equal(t, data.CorrelationID(), ack.CorrelationID())
	assert.True(t, ack.Valid())
}

func TestConstructors_RequireID(t *testing.T) {
	_, err := Data("", 1)
	assert.True(t, IsParseError(err))

	_, err = Ack("")
	assert.True(t, IsParseError(err))

	_, err = DataRaw("x", json.RawMessage(`{not json`))
	assert.True(t, IsParseError(err))
}

func TestData_NilPayloadIsNull(t *testing.T) {
	e, err := DataRaw("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(e.Payload()))
}

func TestPayload_IsCopy(t *testing.T) {
	e := mustData(t, "x", []int{1})
	p := e.Payload()
	p[0] = 'X'
	assert.Equal(t, "[1]", string(e.Payload()))
}

func TestDecodePayload(t *testing.T) {
	e := mustData(t, "sensor1", map[string]float64{"temperature": 42})

	var reading struct {
		Temperature float64 `json:"temperature"`
	}
	require.NoError(t, e.DecodePayload(&reading))
	assert.Equal(t, 42.0, reading.Temperature)

	assert.Error(t, Heartbeat().DecodePayload(&reading))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "heartbeat", KindHeartbeat.String())
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "ack", KindAck.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestValid_ZeroValue(t *testing.T) {
	assert.False(t, Envelope{}.Valid())
	_, err := JSON().Encode(Envelope{})
	assert.Error(t, err)
}
