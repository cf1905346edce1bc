// Package fetch implements the gateway's two one-shot read paths: ephemeral
// last-N-by-filter and durable next-N-with-ack.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/obs"
	"github.com/jetgate/jetgate/internal/resolver"
)

// Result is the return shape both operations share.
type Result struct {
	Messages []broker.Message
	Count    int
	Stream   string
	Subject  string
}

const ephemeralInactiveThreshold = 5 * time.Second

// Engine implements both fetch operations over a broker client and resolver.
type Engine struct {
	client   broker.Client
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New builds a fetch engine.
func New(client broker.Client, resolver *resolver.Resolver, logger *slog.Logger) *Engine {
	return &Engine{client: client, resolver: resolver, logger: logger}
}

// Fetch implements the ephemeral "last N from subject filter" operation
// limit and timeout are assumed already validated by the
// surface layer (limit ∈ [1,100], timeout ∈ [1,30]s).
func (e *Engine) Fetch(ctx context.Context, filter string, limit int, timeout time.Duration) (Result, error) {
	streamName, err := e.resolver.ResolveForPublish(ctx, filter)
	if err != nil {
		return Result{}, err
	}

	info, err := e.client.GetStreamInfo(ctx, streamName)
	if err != nil {
		return Result{}, err
	}

	startSeq := uint64(1)
	if info.LastSeq > uint64(limit) {
		startSeq = info.LastSeq - uint64(limit) + 1
	}

	handle, err := e.client.CreateOrUpdateConsumer(ctx, streamName, broker.ConsumerConfig{
		FilterSubject:     filter,
		DeliverPolicy:     broker.DeliverByStartSeq,
		OptStartSeq:       startSeq,
		AckPolicy:         broker.AckNone,
		InactiveThreshold: ephemeralInactiveThreshold,
	})
	if err != nil {
		return Result{}, err
	}
	obs.EphemeralConsumersActive.Inc()
	defer obs.EphemeralConsumersActive.Dec()
	defer e.cleanup(streamName, handle.Name())

	messages, err := e.client.Fetch(ctx, handle, limit, timeout)
	if err != nil {
		return Result{}, err
	}

	return Result{Messages: messages, Count: len(messages), Stream: streamName, Subject: filter}, nil
}

// FetchFromConsumer implements the durable "next N from consumer" operation
// acknowledging every delivered message as it is returned.
func (e *Engine) FetchFromConsumer(ctx context.Context, stream, consumerName string, limit int, timeout time.Duration) (Result, error) {
	handle, err := e.client.GetConsumer(ctx, stream, consumerName)
	if err != nil {
		return Result{}, err
	}

	messages, err := e.client.Fetch(ctx, handle, limit, timeout)
	if err != nil {
		return Result{}, err
	}

	for _, m := range messages {
		if err := m.Ack(); err != nil {
			e.logger.Warn("acknowledgement failed, message will redeliver",
				"stream", stream, "consumer", consumerName, "sequence", m.Sequence, "error", err)
		}
	}

	return Result{Messages: messages, Count: len(messages), Stream: stream, Subject: consumerName}, nil
}

// cleanup always attempts to delete the ephemeral consumer created by Fetch;
// failures are logged and swallowed - the broker's inactivity reaper is the
// safety net.
func (e *Engine) cleanup(stream, name string) {
	if err := e.client.DeleteConsumer(context.Background(), stream, name); err != nil {
		e.logger.Warn("ephemeral consumer cleanup failed, broker will reap it",
			"stream", stream, "consumer", name, "error", err)
		obs.EphemeralConsumerCleanupFailures.Inc()
	}
}
