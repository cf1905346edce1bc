package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/obs"
	"github.com/jetgate/jetgate/internal/quiet"
	"github.com/jetgate/jetgate/internal/resolver"
	"github.com/jetgate/jetgate/pkg/fail"
)

const keepaliveInterval = 30 * time.Second

// Engine pushes a live stream of framed binary records to one WebSocket
// peer per session, from either a fresh ephemeral consumer or an existing
// durable one.
type Engine struct {
	client   broker.Client
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New builds a stream engine.
func New(client broker.Client, resolver *resolver.Resolver, logger *slog.Logger) *Engine {
	return &Engine{client: client, resolver: resolver, logger: logger}
}

// ServeEphemeral upgrades r and streams messages matching filter, using a
// fresh ephemeral consumer.
func (e *Engine) ServeEphemeral(ctx context.Context, w http.ResponseWriter, r *http.Request, filter string) error {
	streamName, err := e.resolver.ResolveForPublish(ctx, filter)
	if err != nil {
		return err
	}

	handle, err := e.client.CreateOrUpdateConsumer(ctx, streamName, broker.ConsumerConfig{
		FilterSubject:     filter,
		DeliverPolicy:     broker.DeliverNew,
		AckPolicy:         broker.AckNone,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		return err
	}

	conn, err := e.upgrade(w, r)
	if err != nil {
		_ = e.client.DeleteConsumer(context.Background(), streamName, handle.Name())
		return err
	}

	obs.EphemeralConsumersActive.Inc()
	go func() {
		defer conn.Close()
		defer obs.EphemeralConsumersActive.Dec()
		// The request context dies the instant this handler returns, well
		// before the peer disconnects, so the session must run on its own
		// context rather than inherit ctx across the handler-return boundary.
		e.runSession(context.Background(), conn, handle, streamName, filter, false)
		if err := e.client.DeleteConsumer(context.Background(), streamName, handle.Name()); err != nil {
			e.logger.Warn("ephemeral consumer cleanup failed, broker will reap it",
				"stream", streamName, "consumer", handle.Name(), "error", err)
			obs.EphemeralConsumerCleanupFailures.Inc()
		}
	}()
	return nil
}

// ServeDurable upgrades r and streams the next messages from an existing
// durable consumer, acknowledging each after it is written to the socket.
// The consumer must already exist: it is looked up before the upgrade, so a
// missing consumer is returned as NotFound and the handshake never starts.
func (e *Engine) ServeDurable(ctx context.Context, w http.ResponseWriter, r *http.Request, streamName, name string) error {
	handle, err := e.client.GetConsumer(ctx, streamName, name)
	if err != nil {
		return err
	}

	conn, err := e.upgrade(w, r)
	if err != nil {
		return err
	}

	go func() {
		defer conn.Close()
		// Same reasoning as ServeEphemeral: ctx is the request context and
		// would already be cancelled by the time this goroutine starts.
		e.runSession(context.Background(), conn, handle, streamName, name, true)
	}()
	return nil
}

func (e *Engine) upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return conn, nil
}

// runSession drives one peer's session end to end: subscribe-ack, data-frame
// push loop, keepalives, and error/cleanup on every exit path. ctx is a
// session-lifetime context (not the originating request's context, which is
// long cancelled by the time this runs) - the session ends only when the
// peer closes the socket or a write fails.
func (e *Engine) runSession(ctx context.Context, conn net.Conn, handle broker.ConsumerHandle, streamName, label string, durable bool) {
	ackMsg := fmt.Sprintf("subscribed to %s (%s)", streamName, label)
	if err := writeControl(conn, ControlFrame{Type: ControlSubscribeAck, Message: ackMsg}); err != nil {
		return
	}
	obs.StreamFramesSent.WithLabelValues("control").Inc()

	group, sessionCtx := fail.NewGroup(ctx)

	closed := make(chan struct{})
	group.Go(func() error {
		return watchForPeerClose(conn, closed)
	})
	// Closing conn first unblocks the watcher's pending read, so group.Wait()
	// below never waits on a peer that outlives this session.
	defer group.Wait()
	defer quiet.Close(conn)

	msgCh := make(chan broker.Message, 32)
	sub, err := e.client.Consume(sessionCtx, handle, func(m broker.Message) {
		select {
		case msgCh <- m:
		case <-sessionCtx.Done():
		}
	})
	if err != nil {
		_ = writeControl(conn, ControlFrame{Type: ControlError, Message: err.Error()})
		return
	}
	defer quiet.Close(sub)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-closed:
			return
		case m := <-msgCh:
			if err := writeData(conn, FromMessage(m)); err != nil {
				e.logger.Info("stream write failed, ending session", "stream", streamName, "error", err)
				return
			}
			obs.StreamFramesSent.WithLabelValues("data").Inc()
			keepalive.Reset(keepaliveInterval)

			if durable {
				if err := m.Ack(); err != nil {
					e.logger.Warn("stream acknowledgement failed", "stream", streamName, "consumer", label, "sequence", m.Sequence, "error", err)
				}
			}
		case <-keepalive.C:
			if err := writeControl(conn, ControlFrame{Type: ControlKeepalive}); err != nil {
				return
			}
			obs.StreamFramesSent.WithLabelValues("control").Inc()
		}
	}
}

// watchForPeerClose blocks on the socket's read side: a disconnect or
// protocol error there is the only way to notice the peer is gone,
// since this engine never expects the client to send data frames of its own.
// It returns a non-nil error on exit so the session's errgroup context is
// cancelled immediately, unblocking the broker consume loop below.
func watchForPeerClose(conn net.Conn, closed chan<- struct{}) error {
	defer close(closed)
	for {
		if _, _, err := wsutil.ReadClientData(conn); err != nil {
			return err
		}
	}
}

func writeData(conn net.Conn, f DataFrame) error {
	return wsutil.WriteServerBinary(conn, EncodeData(f))
}

func writeControl(conn net.Conn, f ControlFrame) error {
	return wsutil.WriteServerBinary(conn, EncodeControl(f))
}
