package consumer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/consumer"
)

func TestDeriveHealth_Healthy(t *testing.T) {
	info := broker.ConsumerInfo{LastDelivery: time.Now()}
	h := consumer.DeriveHealth(info)
	assert.Equal(t, consumer.StatusHealthy, h.Status)
}

func TestDeriveHealth_InactiveTakesPriority(t *testing.T) {
	info := broker.ConsumerInfo{
		LastDelivery:  time.Now().Add(-2 * time.Hour),
		Config:        broker.ConsumerConfig{InactiveThreshold: time.Hour},
		NumAckPending: 5000, // would also trip overloaded, but inactive must win
	}
	h := consumer.DeriveHealth(info)
	assert.Equal(t, consumer.StatusInactive, h.Status)
}

func TestDeriveHealth_OverloadedBeforeLagging(t *testing.T) {
	info := broker.ConsumerInfo{
		LastDelivery:  time.Now(),
		NumAckPending: 1001,
		NumPending:    20_000, // would also trip lagging, but overloaded must win
	}
	h := consumer.DeriveHealth(info)
	assert.Equal(t, consumer.StatusOverloaded, h.Status)
}

func TestDeriveHealth_Lagging(t *testing.T) {
	info := broker.ConsumerInfo{
		LastDelivery: time.Now(),
		NumPending:   10_001,
	}
	h := consumer.DeriveHealth(info)
	assert.Equal(t, consumer.StatusLagging, h.Status)
}

func TestDeriveHealth_NeverDeliveredIsNotInactive(t *testing.T) {
	// A brand new consumer has a zero LastDelivery; that must not be treated
	// as "stale" by the inactive predicate.
	info := broker.ConsumerInfo{}
	h := consumer.DeriveHealth(info)
	assert.Equal(t, consumer.StatusHealthy, h.Status)
}

func TestDeriveMetrics_Basic(t *testing.T) {
	streamInfo := broker.StreamInfo{LastSeq: 100}
	info := broker.ConsumerInfo{
		Delivered:      broker.SequencePair{Stream: 80, Consumer: 80},
		NumAckPending:  5,
		NumRedelivered: 2,
		NumPending:     20,
	}
	m := consumer.DeriveMetrics(streamInfo, info)
	assert.Equal(t, int64(20), m.Lag)
	assert.Equal(t, uint64(75), m.Acknowledged)
	assert.Equal(t, uint64(2), m.Redelivered)
	assert.Equal(t, 5, m.PendingAck)
	assert.Equal(t, int64(20), m.PendingDelivery)
}

func TestDeriveMetrics_PendingAckExceedsDeliveredClampsToZero(t *testing.T) {
	streamInfo := broker.StreamInfo{LastSeq: 10}
	info := broker.ConsumerInfo{
		Delivered:     broker.SequencePair{Stream: 5, Consumer: 3},
		NumAckPending: 10,
	}
	m := consumer.DeriveMetrics(streamInfo, info)
	assert.Equal(t, uint64(0), m.Acknowledged)
}

func newOrchestratorWithStream(t *testing.T, stream, subjectPattern string) (*consumer.Orchestrator, broker.Client) {
	t.Helper()
	client := broker.NewFake()
	require.NoError(t, client.CreateStream(context.Background(), broker.StreamConfig{
		Name:     stream,
		Subjects: []string{subjectPattern},
	}))
	return consumer.New(client), client
}

func TestCreateConsumer_RejectsStartSeqWithoutMatchingPolicy(t *testing.T) {
	o, _ := newOrchestratorWithStream(t, "EVENTS", "EVENTS.>")
	_, err := o.CreateConsumer(context.Background(), "EVENTS", consumer.CreateRequest{
		Name:        "worker",
		OptStartSeq: 5,
		DeliverPolicy: broker.DeliverAll,
	})
	assert.Error(t, err)
}

func TestCreateConsumer_DefaultsInactiveThresholdByDurability(t *testing.T) {
	o, client := newOrchestratorWithStream(t, "EVENTS", "EVENTS.>")

	durable, err := o.CreateConsumer(context.Background(), "EVENTS", consumer.CreateRequest{Name: "worker"})
	require.NoError(t, err)
	assert.Equal(t, 365*24*time.Hour, durable.Config.InactiveThreshold)

	ephemeral, err := o.CreateConsumer(context.Background(), "EVENTS", consumer.CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ephemeral.Config.InactiveThreshold)

	_ = client
}

func TestResetConsumer_CarriesOverConfigAndChangesPolicy(t *testing.T) {
	o, client := newOrchestratorWithStream(t, "EVENTS", "EVENTS.>")

	_, err := o.CreateConsumer(context.Background(), "EVENTS", consumer.CreateRequest{
		Name:          "worker",
		FilterSubject: "EVENTS.orders",
		DeliverPolicy: broker.DeliverNew,
		AckPolicy:     broker.AckExplicit,
		MaxDeliver:    7,
	})
	require.NoError(t, err)

	reset, err := o.ResetConsumer(context.Background(), "EVENTS", "worker", consumer.ResetFromSequence, 42, nil)
	require.NoError(t, err)

	assert.Equal(t, broker.DeliverByStartSeq, reset.Config.DeliverPolicy)
	assert.Equal(t, uint64(42), reset.Config.OptStartSeq)
	assert.Equal(t, "EVENTS.orders", reset.Config.FilterSubject)
	assert.Equal(t, broker.AckExplicit, reset.Config.AckPolicy)
	assert.Equal(t, 7, reset.Config.MaxDeliver)

	_ = client
}

func TestResetConsumer_ReplayFromSequenceRequiresPositiveSeq(t *testing.T) {
	o, _ := newOrchestratorWithStream(t, "EVENTS", "EVENTS.>")
	_, err := o.CreateConsumer(context.Background(), "EVENTS", consumer.CreateRequest{Name: "worker"})
	require.NoError(t, err)

	_, err = o.ResetConsumer(context.Background(), "EVENTS", "worker", consumer.ResetFromSequence, 0, nil)
	assert.Error(t, err)
}

func TestPeekMessages_DoesNotAdvanceTargetConsumerCursor(t *testing.T) {
	o, client := newOrchestratorWithStream(t, "EVENTS", "EVENTS.>")

	_, err := client.PublishRecord(context.Background(), "EVENTS.orders", []byte(`{"id":1}`))
	require.NoError(t, err)
	_, err = client.PublishRecord(context.Background(), "EVENTS.orders", []byte(`{"id":2}`))
	require.NoError(t, err)

	_, err = o.CreateConsumer(context.Background(), "EVENTS", consumer.CreateRequest{
		Name:          "worker",
		FilterSubject: "EVENTS.orders",
		DeliverPolicy: broker.DeliverAll,
		AckPolicy:     broker.AckExplicit,
	})
	require.NoError(t, err)

	before, err := o.GetConsumerInfo(context.Background(), "EVENTS", "worker")
	require.NoError(t, err)

	previews, err := o.PeekMessages(context.Background(), "EVENTS", "worker", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, previews)

	after, err := o.GetConsumerInfo(context.Background(), "EVENTS", "worker")
	require.NoError(t, err)

	assert.Equal(t, before.Delivered, after.Delivered)
	assert.Equal(t, before.AckFloor, after.AckFloor)
}
