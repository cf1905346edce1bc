package broker

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jetgate/jetgate/pkg/fail"
)

// mapStreamLookupError turns a Stream() lookup failure into a NotFound for the
// well-known case and a generic Transient error otherwise.
func mapStreamLookupError(name string, err error) error {
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return fail.NotFound("stream %q not found", name)
	}
	return mapBrokerError("stream lookup", err)
}

// mapBrokerError classifies errors that don't have a single obvious status
// code of their own - connection loss and timeouts become Transient (500),
// a missing consumer or stream becomes NotFound, and everything else is
// Unexpected. op is folded into the message for operators reading logs, never
// compared against by callers.
func mapBrokerError(op string, err error) error {
	switch {
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrNoResponders), errors.Is(err, nats.ErrConnectionClosed):
		return fail.Transient("%s: broker unavailable: %v", op, err)
	case errors.Is(err, jetstream.ErrConsumerNotFound):
		return fail.NotFound("%s: consumer not found", op)
	case errors.Is(err, jetstream.ErrStreamNotFound):
		return fail.NotFound("%s: stream not found", op)
	default:
		return fail.Unexpected("%s: %v", op, err)
	}
}
