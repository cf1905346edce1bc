package stream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/stream"
)

func TestEncodeDecodeData_RoundTrip(t *testing.T) {
	want := stream.DataFrame{
		Subject:        "events.orders",
		StreamSequence: 42,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:        []byte(`{"id":1}`),
	}

	raw := stream.EncodeData(want)
	df, cf, err := stream.Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, df)
	assert.Nil(t, cf)

	assert.Equal(t, want.Subject, df.Subject)
	assert.Equal(t, want.StreamSequence, df.StreamSequence)
	assert.True(t, want.Timestamp.Equal(df.Timestamp))
	assert.Equal(t, want.Payload, df.Payload)
}

func TestEncodeDecodeControl_RoundTrip(t *testing.T) {
	want := stream.ControlFrame{Type: stream.ControlKeepalive, Message: "ping"}

	raw := stream.EncodeControl(want)
	df, cf, err := stream.Decode(raw)
	require.NoError(t, err)
	assert.Nil(t, df)
	require.NotNil(t, cf)
	assert.Equal(t, want, *cf)
}

func TestFromMessage(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := broker.Message{Subject: "events.orders", Sequence: 7, Timestamp: ts, Data: []byte("x")}

	df := stream.FromMessage(m)
	assert.Equal(t, m.Subject, df.Subject)
	assert.Equal(t, m.Sequence, df.StreamSequence)
	assert.Equal(t, m.Data, []byte(df.Payload))
}

func TestDecodeAll_ConcatenatedEnvelopes(t *testing.T) {
	var raw []byte
	raw = append(raw, stream.EncodeData(stream.DataFrame{Subject: "a", StreamSequence: 1})...)
	raw = append(raw, stream.EncodeData(stream.DataFrame{Subject: "b", StreamSequence: 2})...)
	raw = append(raw, stream.EncodeControl(stream.ControlFrame{Type: stream.ControlError, Message: "boom"})...)

	data, control, err := stream.DecodeAll(raw)
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.Len(t, control, 1)

	assert.Equal(t, "a", data[0].Subject)
	assert.Equal(t, uint64(1), data[0].StreamSequence)
	assert.Equal(t, "b", data[1].Subject)
	assert.Equal(t, uint64(2), data[1].StreamSequence)
	assert.Equal(t, "boom", control[0].Message)
}

func TestDecode_OnlyConsumesFirstEnvelope(t *testing.T) {
	var raw []byte
	raw = append(raw, stream.EncodeData(stream.DataFrame{Subject: "first"})...)
	raw = append(raw, stream.EncodeData(stream.DataFrame{Subject: "second"})...)

	df, cf, err := stream.Decode(raw)
	require.NoError(t, err)
	assert.Nil(t, cf)
	require.NotNil(t, df)
	assert.Equal(t, "first", df.Subject)
}

func TestDecode_MalformedBytesReturnsError(t *testing.T) {
	_, _, err := stream.Decode([]byte{0xFF, 0xFF, 0xFF})
	assert.Error(t, err)
}

func TestDecodeAll_EmptyInputReturnsNoFrames(t *testing.T) {
	data, control, err := stream.DecodeAll(nil)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Empty(t, control)
}
