package fetch_test

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/fetch"
	"github.com/jetgate/jetgate/internal/resolver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedStream(t *testing.T, client broker.Client, stream, subjectPattern, subject string, count int) {
	t.Helper()
	require.NoError(t, client.CreateStream(context.Background(), broker.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectPattern},
	}))
	for i := 0; i < count; i++ {
		_, _, err := client.PublishRecord(context.Background(), subject, []byte("payload"))
		require.NoError(t, err)
	}
}

func TestFetch_ReturnsLastNMessages(t *testing.T) {
	client := broker.NewFake()
	seedStream(t, client, "EVENTS", "EVENTS.>", "EVENTS.orders", 10)

	res := resolver.New(client, "DEFAULT")
	engine := fetch.New(client, res, testLogger())

	result, err := engine.Fetch(context.Background(), "EVENTS.orders", 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
	assert.Equal(t, "EVENTS", result.Stream)
	// Last-N means the final three sequences, i.e. 8,9,10 in publish order.
	assert.Equal(t, uint64(8), result.Messages[0].Sequence)
	assert.Equal(t, uint64(10), result.Messages[2].Sequence)
}

func TestFetch_LimitGreaterThanAvailableReturnsAll(t *testing.T) {
	client := broker.NewFake()
	seedStream(t, client, "EVENTS", "EVENTS.>", "EVENTS.orders", 2)

	res := resolver.New(client, "DEFAULT")
	engine := fetch.New(client, res, testLogger())

	result, err := engine.Fetch(context.Background(), "EVENTS.orders", 100, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
}

func TestFetch_FilterMatchingNothingReturnsEmpty(t *testing.T) {
	client := broker.NewFake()
	seedStream(t, client, "EVENTS", "EVENTS.>", "EVENTS.orders", 5)

	res := resolver.New(client, "DEFAULT")
	engine := fetch.New(client, res, testLogger())

	result, err := engine.Fetch(context.Background(), "EVENTS.payments", 10, time.Second)
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.Empty(t, result.Messages)
}

func TestFetch_CleansUpEphemeralConsumer(t *testing.T) {
	client := broker.NewFake()
	seedStream(t, client, "EVENTS", "EVENTS.>", "EVENTS.orders", 1)

	res := resolver.New(client, "DEFAULT")
	engine := fetch.New(client, res, testLogger())

	_, err := engine.Fetch(context.Background(), "EVENTS.orders", 10, time.Second)
	require.NoError(t, err)

	consumers, err := client.ListConsumerInfo(context.Background(), "EVENTS")
	require.NoError(t, err)
	assert.Empty(t, consumers, "ephemeral consumer must be deleted after Fetch returns")
}

func TestFetchFromConsumer_AcknowledgesDeliveredMessages(t *testing.T) {
	client := broker.NewFake()
	seedStream(t, client, "EVENTS", "EVENTS.>", "EVENTS.orders", 3)

	handle, err := client.CreateOrUpdateConsumer(context.Background(), "EVENTS", broker.ConsumerConfig{
		Durable:       "worker",
		FilterSubject: "EVENTS.orders",
		DeliverPolicy: broker.DeliverAll,
		AckPolicy:     broker.AckExplicit,
	})
	require.NoError(t, err)
	_ = handle

	res := resolver.New(client, "DEFAULT")
	engine := fetch.New(client, res, testLogger())

	result, err := engine.FetchFromConsumer(context.Background(), "EVENTS", "worker", 2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)

	info, err := client.ConsumerInfo(context.Background(), handle)
	require.NoError(t, err)
	assert.Zero(t, info.NumAckPending, "every delivered message should have been acknowledged")
}
