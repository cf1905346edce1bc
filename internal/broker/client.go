package broker

import (
	"context"
	"time"
)

// Client is the capability set the rest of the gateway engine needs from the
// broker connection. The nats-backed implementation lives in
// client_nats.go; tests exercise the engine against the in-memory fake in
// fake.go instead of a live JetStream cluster.
type Client interface {
	// PublishRecord persists payload on the stream that covers subject, returning
	// the stream name and the sequence the broker assigned. Fails with a NotFound
	// style error if no stream covers the subject (callers auto-create via the resolver first).
	PublishRecord(ctx context.Context, subject string, payload []byte) (streamName string, sequence uint64, err error)

	GetStreamInfo(ctx context.Context, name string) (StreamInfo, error)
	CreateStream(ctx context.Context, cfg StreamConfig) error
	DeleteStream(ctx context.Context, name string) error
	ListStreams(ctx context.Context) ([]StreamInfo, error)

	// GetSubjectDistribution returns the per-subject message counts currently
	// held by the named stream.
	GetSubjectDistribution(ctx context.Context, name string) (map[string]uint64, error)

	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg ConsumerConfig) (ConsumerHandle, error)
	GetConsumer(ctx context.Context, stream, name string) (ConsumerHandle, error)
	DeleteConsumer(ctx context.Context, stream, name string) error
	ConsumerInfo(ctx context.Context, handle ConsumerHandle) (ConsumerInfo, error)
	ListConsumerInfo(ctx context.Context, stream string) ([]ConsumerInfo, error)

	// Fetch pulls up to maxCount messages, stopping early once deadline elapses.
	// Running out the deadline without reaching maxCount is not an error.
	Fetch(ctx context.Context, handle ConsumerHandle, maxCount int, deadline time.Duration) ([]Message, error)

	// Consume starts a broker-side push loop that invokes onMessage for every
	// delivered message, in broker order, until ctx is cancelled or Close is
	// called on the returned Subscription.
	Consume(ctx context.Context, handle ConsumerHandle, onMessage func(Message)) (Subscription, error)
}
