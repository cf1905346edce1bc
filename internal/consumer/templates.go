package consumer

import "time"

// Templates is the fixed catalog of named, pre-populated create requests - a
// static configuration surface, not part of the core engine.
var Templates = []Template{
	{
		Name:        "real-time-processor",
		Description: "Low-latency delivery of new messages only, no redelivery backlog.",
		UseCase:     "live dashboards, notifications",
		Request: CreateRequest{
			DeliverPolicy:     "new",
			AckPolicy:         "explicit",
			AckWait:           30 * time.Second,
			MaxDeliver:        3,
			InactiveThreshold: 5 * time.Minute,
			MaxAckPending:     1000,
		},
	},
	{
		Name:        "batch-processor",
		Description: "High-throughput replay from the beginning of the stream with generous ack windows.",
		UseCase:     "analytics backfill, ETL jobs",
		Request: CreateRequest{
			DeliverPolicy:     "all",
			AckPolicy:         "explicit",
			AckWait:           5 * time.Minute,
			MaxDeliver:        5,
			InactiveThreshold: 365 * 24 * time.Hour,
			MaxAckPending:     5000,
		},
	},
	{
		Name:        "work-queue",
		Description: "Competing consumers sharing one durable name, each message acknowledged exactly once.",
		UseCase:     "job queues, task distribution",
		Request: CreateRequest{
			DeliverPolicy:     "all",
			AckPolicy:         "explicit",
			AckWait:           time.Minute,
			MaxDeliver:        10,
			InactiveThreshold: 365 * 24 * time.Hour,
			MaxAckPending:     100,
		},
	},
	{
		Name:        "fire-and-forget",
		Description: "No acknowledgement tracking; the broker never redelivers.",
		UseCase:     "metrics ingestion, best-effort logging",
		Request: CreateRequest{
			DeliverPolicy:     "new",
			AckPolicy:         "none",
			InactiveThreshold: 5 * time.Minute,
		},
	},
	{
		Name:        "latest-only",
		Description: "Always starts from the most recently published message, ignoring history.",
		UseCase:     "current-state widgets",
		Request: CreateRequest{
			DeliverPolicy:     "last",
			AckPolicy:         "none",
			InactiveThreshold: 5 * time.Minute,
		},
	},
	{
		Name:        "durable-processor",
		Description: "Long-lived named consumer intended to persist indefinitely across disconnects.",
		UseCase:     "order processing, audit pipelines",
		Request: CreateRequest{
			DeliverPolicy:     "new",
			AckPolicy:         "explicit",
			AckWait:           time.Minute,
			MaxDeliver:        8,
			InactiveThreshold: 365 * 24 * time.Hour,
			MaxAckPending:     2000,
		},
	},
}

// GetTemplates returns the static template catalog.
func (o *Orchestrator) GetTemplates() []Template {
	return Templates
}
