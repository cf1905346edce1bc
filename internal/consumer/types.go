package consumer

import (
	"time"

	"github.com/jetgate/jetgate/internal/broker"
)

// CreateRequest is the caller-supplied shape for creating a durable or
// ephemeral consumer.
type CreateRequest struct {
	Name              string
	Description       string
	FilterSubject     string
	DeliverPolicy     broker.DeliverPolicy
	OptStartSeq       uint64
	OptStartTime      *time.Time
	AckPolicy         broker.AckPolicy
	AckWait           time.Duration
	MaxDeliver        int
	InactiveThreshold time.Duration
	MaxAckPending     int
	FlowControl       bool
	Heartbeat         time.Duration
}

// Health is the derived view of a consumer's operational state: healthy
// unless one of three ordered predicates fires.
type Health struct {
	Status string
	Reason string
}

const (
	StatusHealthy    = "healthy"
	StatusInactive   = "inactive"
	StatusOverloaded = "overloaded"
	StatusLagging    = "lagging"
)

// Metrics is the per-call derived snapshot of a consumer's delivery progress.
type Metrics struct {
	Lag             int64
	Acknowledged    uint64
	Redelivered     uint64
	PendingAck      int
	PendingDelivery int64
	SampledAt       time.Time
}

// Preview is one message rendered for Peek: enough to recognise it without
// acknowledging it.
type Preview struct {
	Sequence  uint64
	Subject   string
	Timestamp time.Time
	Size      int
	Preview   string
}

// Template is a named, pre-populated create request from the static catalog
// for quickly creating a consumer tuned to a common workload shape.
type Template struct {
	Name        string
	Description string
	UseCase     string
	Request     CreateRequest
}

const (
	overloadedPendingAckThreshold  = 1000
	laggingPendingDeliveryThreshold = 10_000
	peekPreviewBytes               = 100
)
