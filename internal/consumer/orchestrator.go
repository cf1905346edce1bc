// Package consumer implements durable consumer CRUD plus the health/metrics
// derivation views layered on top of the broker client.
package consumer

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/pkg/fail"
)

const (
	defaultDurableInactiveThreshold  = 365 * 24 * time.Hour
	defaultEphemeralInactiveThreshold = 5 * time.Minute
)

// Orchestrator implements every durable consumer operation the gateway exposes:
// create, list, get, delete, health, metrics history, peek, reset, and templates.
type Orchestrator struct {
	client broker.Client
}

// New builds an orchestrator over the given broker client.
func New(client broker.Client) *Orchestrator {
	return &Orchestrator{client: client}
}

// CreateConsumer validates and creates a durable or ephemeral consumer.
// req.Name empty means ephemeral.
func (o *Orchestrator) CreateConsumer(ctx context.Context, stream string, req CreateRequest) (broker.ConsumerInfo, error) {
	if !req.DeliverPolicy.IsValid() {
		return broker.ConsumerInfo{}, fail.BadRequest("unrecognised deliver_policy %q", req.DeliverPolicy)
	}
	if !req.AckPolicy.IsValid() {
		return broker.ConsumerInfo{}, fail.BadRequest("unrecognised ack_policy %q", req.AckPolicy)
	}
	if req.OptStartSeq != 0 && req.DeliverPolicy != broker.DeliverByStartSeq {
		return broker.ConsumerInfo{}, fail.BadRequest("opt-start-seq requires deliver-policy by_start_sequence")
	}
	if req.OptStartTime != nil && req.DeliverPolicy != broker.DeliverByStartTime {
		return broker.ConsumerInfo{}, fail.BadRequest("opt-start-time requires deliver-policy by_start_time")
	}

	inactive := req.InactiveThreshold
	if inactive == 0 {
		if req.Name == "" {
			inactive = defaultEphemeralInactiveThreshold
		} else {
			inactive = defaultDurableInactiveThreshold
		}
	}

	cfg := broker.ConsumerConfig{
		Durable:           req.Name,
		Description:       req.Description,
		FilterSubject:     req.FilterSubject,
		DeliverPolicy:     req.DeliverPolicy,
		OptStartSeq:       req.OptStartSeq,
		OptStartTime:      req.OptStartTime,
		AckPolicy:         req.AckPolicy,
		AckWait:           req.AckWait,
		MaxDeliver:        req.MaxDeliver,
		InactiveThreshold: inactive,
		MaxAckPending:     req.MaxAckPending,
		FlowControl:       req.FlowControl,
		Heartbeat:         req.Heartbeat,
	}

	handle, err := o.client.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return broker.ConsumerInfo{}, err
	}
	return o.client.ConsumerInfo(ctx, handle)
}

// ListConsumers returns every consumer currently defined on stream.
func (o *Orchestrator) ListConsumers(ctx context.Context, stream string) ([]broker.ConsumerInfo, error) {
	return o.client.ListConsumerInfo(ctx, stream)
}

// GetConsumerInfo returns the broker's current view of one named consumer.
func (o *Orchestrator) GetConsumerInfo(ctx context.Context, stream, name string) (broker.ConsumerInfo, error) {
	handle, err := o.client.GetConsumer(ctx, stream, name)
	if err != nil {
		return broker.ConsumerInfo{}, err
	}
	return o.client.ConsumerInfo(ctx, handle)
}

// DeleteConsumer removes a named consumer.
func (o *Orchestrator) DeleteConsumer(ctx context.Context, stream, name string) error {
	return o.client.DeleteConsumer(ctx, stream, name)
}

// GetConsumerHealth derives a Health view using the ordered predicates from
// the ordered predicates below - first match wins.
func (o *Orchestrator) GetConsumerHealth(ctx context.Context, stream, name string) (Health, error) {
	info, err := o.GetConsumerInfo(ctx, stream, name)
	if err != nil {
		return Health{}, err
	}
	return DeriveHealth(info), nil
}

// DeriveHealth is the pure derivation function, split out from
// GetConsumerHealth so it can be unit tested without a broker round trip.
func DeriveHealth(info broker.ConsumerInfo) Health {
	threshold := info.Config.InactiveThreshold
	if threshold == 0 {
		threshold = defaultDurableInactiveThreshold
	}

	if !info.LastDelivery.IsZero() && time.Since(info.LastDelivery) > threshold {
		return Health{Status: StatusInactive, Reason: "no delivery within the configured inactive threshold"}
	}
	if info.NumAckPending > overloadedPendingAckThreshold {
		return Health{Status: StatusOverloaded, Reason: "pending acknowledgements exceed 1000"}
	}
	if info.NumPending > laggingPendingDeliveryThreshold {
		return Health{Status: StatusLagging, Reason: "pending delivery count exceeds 10000"}
	}
	return Health{Status: StatusHealthy}
}

// GetMetricsHistory returns the current snapshot as a one-element history
// (this broker keeps no sample history of its own, so there is only ever
// the current one).
func (o *Orchestrator) GetMetricsHistory(ctx context.Context, stream, name string) ([]Metrics, error) {
	streamInfo, err := o.client.GetStreamInfo(ctx, stream)
	if err != nil {
		return nil, err
	}
	info, err := o.GetConsumerInfo(ctx, stream, name)
	if err != nil {
		return nil, err
	}
	return []Metrics{DeriveMetrics(streamInfo, info)}, nil
}

// DeriveMetrics is the pure derivation function behind GetMetricsHistory.
func DeriveMetrics(streamInfo broker.StreamInfo, info broker.ConsumerInfo) Metrics {
	lag := int64(streamInfo.LastSeq) - int64(info.Delivered.Stream)
	acknowledged := info.Delivered.Consumer
	if int64(info.NumAckPending) > int64(acknowledged) {
		acknowledged = 0
	} else {
		acknowledged -= uint64(info.NumAckPending)
	}
	return Metrics{
		Lag:             lag,
		Acknowledged:    acknowledged,
		Redelivered:     uint64(info.NumRedelivered),
		PendingAck:      info.NumAckPending,
		PendingDelivery: int64(info.NumPending),
		SampledAt:       time.Now(),
	}
}

// PeekMessages previews up to max messages past the target consumer's ack
// floor (delivered-but-unacknowledged ones included) without acknowledging
// them. It opens its own ephemeral, none-ack
// consumer scoped to the target's filter subject rather than fetching
// against the named consumer directly, so an explicit-ack durable consumer's
// cursor is never advanced by a peek.
func (o *Orchestrator) PeekMessages(ctx context.Context, stream, name string, max int) ([]Preview, error) {
	target, err := o.GetConsumerInfo(ctx, stream, name)
	if err != nil {
		return nil, err
	}

	handle, err := o.client.CreateOrUpdateConsumer(ctx, stream, broker.ConsumerConfig{
		FilterSubject:     target.Config.FilterSubject,
		DeliverPolicy:     broker.DeliverByStartSeq,
		OptStartSeq:       target.AckFloor.Stream + 1,
		AckPolicy:         broker.AckNone,
		InactiveThreshold: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = o.client.DeleteConsumer(ctx, stream, handle.Name())
	}()

	messages, err := o.client.Fetch(ctx, handle, max, 2*time.Second)
	if err != nil {
		return nil, err
	}

	previews := make([]Preview, 0, len(messages))
	for _, m := range messages {
		previews = append(previews, toPreview(m))
	}
	return previews, nil
}

func toPreview(m broker.Message) Preview {
	p := Preview{Sequence: m.Sequence, Subject: m.Subject, Timestamp: m.Timestamp, Size: len(m.Data)}

	data := m.Data
	if len(data) > peekPreviewBytes {
		data = data[:peekPreviewBytes]
	}
	if utf8.Valid(data) {
		p.Preview = string(data)
	} else {
		p.Preview = binaryPreviewLabel(len(m.Data))
	}
	return p
}

func binaryPreviewLabel(n int) string {
	return "[binary, " + itoa(n) + " bytes]"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ResetMode selects which replay variant ResetConsumer performs.
type ResetMode string

const (
	ResetFromBeginning ResetMode = "reset"
	ResetFromSequence  ResetMode = "replay-from-sequence"
	ResetFromTime      ResetMode = "replay-from-time"
)

// ResetConsumer re-creates the named consumer with a new deliver policy,
// carrying over every other configuration option: get -> delete -> create.
// The delete/create
// gap is a documented race window; a concurrent fetch during that window
// sees NotFound.
func (o *Orchestrator) ResetConsumer(ctx context.Context, stream, name string, mode ResetMode, seq uint64, at *time.Time) (broker.ConsumerInfo, error) {
	existing, err := o.GetConsumerInfo(ctx, stream, name)
	if err != nil {
		return broker.ConsumerInfo{}, err
	}

	cfg := existing.Config
	cfg.Durable = name

	switch mode {
	case ResetFromBeginning:
		cfg.DeliverPolicy = broker.DeliverAll
		cfg.OptStartSeq = 0
		cfg.OptStartTime = nil
	case ResetFromSequence:
		if seq == 0 {
			return broker.ConsumerInfo{}, fail.BadRequest("replay-from-sequence requires a positive sequence")
		}
		cfg.DeliverPolicy = broker.DeliverByStartSeq
		cfg.OptStartSeq = seq
		cfg.OptStartTime = nil
	case ResetFromTime:
		if at == nil {
			return broker.ConsumerInfo{}, fail.BadRequest("replay-from-time requires a start time")
		}
		cfg.DeliverPolicy = broker.DeliverByStartTime
		cfg.OptStartTime = at
		cfg.OptStartSeq = 0
	default:
		return broker.ConsumerInfo{}, fail.BadRequest("unrecognised reset mode %q", mode)
	}

	if err := o.client.DeleteConsumer(ctx, stream, name); err != nil {
		return broker.ConsumerInfo{}, err
	}

	handle, err := o.client.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return broker.ConsumerInfo{}, err
	}
	return o.client.ConsumerInfo(ctx, handle)
}
