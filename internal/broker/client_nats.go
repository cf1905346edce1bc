// Package broker holds one process-wide, multiplexed JetStream connection
// and the thin translation layer from the nats.go jetstream SDK onto the
// gateway's own types.
package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jetgate/jetgate/pkg/fail"
)

// Options configures the process-wide connection. Missing certificate files
// are a startup-fatal configuration error.
type Options struct {
	URL            string
	CAFile         string
	CertFile       string
	KeyFile        string
	ConnectTimeout time.Duration
}

// Conn is the gateway's single authenticated, TLS-secured JetStream connection.
// Every in-flight operation observes the post-reconnect state transparently -
// nats.Conn reconnects itself in the background; we never re-dial by hand.
type Conn struct {
	nc *nats.Conn
	js jetstream.JetStream

	mu      sync.Mutex
	streams map[string]jetstream.Stream
}

// Connect dials the broker once at process start. On failure the caller should
// treat this as fatal and refuse to start serving (no half-initialised state).
func Connect(opts Options) (*Conn, error) {
	natsOpts := []nats.Option{
		nats.Timeout(opts.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("broker tls configuration error: %w", err)
	}
	if tlsConfig != nil {
		natsOpts = append(natsOpts, nats.Secure(tlsConfig))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("broker connect error: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker jetstream error: %w", err)
	}

	return &Conn{nc: nc, js: js, streams: map[string]jetstream.Stream{}}, nil
}

// buildTLSConfig wires up CA verification and, when both a cert and key are
// configured, mutual TLS. Missing files are reported as a fatal error rather
// than silently falling back to plaintext.
func buildTLSConfig(opts Options) (*tls.Config, error) {
	if opts.CAFile == "" {
		return nil, nil
	}

	caBytes, err := os.ReadFile(opts.CAFile)
	if err != nil {
		return nil, fmt.Errorf("reading NATS_CA_FILE: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("NATS_CA_FILE does not contain a valid PEM certificate")
	}
	tlsConfig := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}

	if opts.CertFile == "" && opts.KeyFile == "" {
		return tlsConfig, nil
	}
	if opts.CertFile == "" || opts.KeyFile == "" {
		return nil, fmt.Errorf("NATS_CERT_FILE and NATS_KEY_FILE must both be set for mutual TLS")
	}

	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading NATS_CERT_FILE/NATS_KEY_FILE: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}
	return tlsConfig, nil
}

// Close releases the process-wide connection during shutdown.
func (c *Conn) Close() {
	c.nc.Close()
}

func (c *Conn) PublishRecord(ctx context.Context, subject string, payload []byte) (string, uint64, error) {
	ack, err := c.js.Publish(ctx, subject, payload)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoStreamResponse) {
			return "", 0, fail.NotFound("no stream covers subject %q", subject)
		}
		return "", 0, mapBrokerError("publish", err)
	}
	return ack.Stream, ack.Sequence, nil
}

func (c *Conn) GetStreamInfo(ctx context.Context, name string) (StreamInfo, error) {
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return StreamInfo{}, mapStreamLookupError(name, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return StreamInfo{}, mapBrokerError("stream info", err)
	}
	return toStreamInfo(info), nil
}

func (c *Conn) CreateStream(ctx context.Context, cfg StreamConfig) error {
	_, err := c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   cfg.MaxMsgs,
		MaxBytes:  cfg.MaxBytes,
		MaxAge:    cfg.MaxAge,
		Storage:   jetstream.FileStorage,
		Replicas:  cfg.Replicas,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrStreamNameAlreadyInUse):
		// Racy by design: the loser of the create race just
		// reuses what the winner created.
		return nil
	default:
		return mapBrokerError("create stream", err)
	}
}

func (c *Conn) DeleteStream(ctx context.Context, name string) error {
	if err := c.js.DeleteStream(ctx, name); err != nil {
		return mapStreamLookupError(name, err)
	}
	c.mu.Lock()
	delete(c.streams, name)
	c.mu.Unlock()
	return nil
}

func (c *Conn) GetSubjectDistribution(ctx context.Context, name string) (map[string]uint64, error) {
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return nil, mapStreamLookupError(name, err)
	}
	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(">"))
	if err != nil {
		return nil, mapBrokerError("stream subjects", err)
	}
	return info.State.Subjects, nil
}

func (c *Conn) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	var out []StreamInfo
	lister := c.js.ListStreams(ctx)
	for info := range lister.Info() {
		out = append(out, toStreamInfo(info))
	}
	if err := lister.Err(); err != nil && !errors.Is(err, jetstream.ErrEndOfData) {
		return nil, mapBrokerError("list streams", err)
	}
	return out, nil
}

func (c *Conn) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (ConsumerHandle, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, mapStreamLookupError(streamName, err)
	}

	jcfg, err := toJetstreamConsumerConfig(cfg)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jcfg)
	if err != nil {
		if errors.Is(err, jetstream.ErrConsumerNameAlreadyInUse) {
			return nil, fail.Conflict("consumer %q already exists on stream %q with an incompatible configuration", cfg.Durable, streamName)
		}
		return nil, mapBrokerError("create consumer", err)
	}
	return &natsConsumerHandle{stream: streamName, consumer: consumer}, nil
}

func (c *Conn) GetConsumer(ctx context.Context, streamName, name string) (ConsumerHandle, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, mapStreamLookupError(streamName, err)
	}
	consumer, err := stream.Consumer(ctx, name)
	if err != nil {
		if errors.Is(err, jetstream.ErrConsumerNotFound) {
			return nil, fail.NotFound("consumer %q not found on stream %q", name, streamName)
		}
		return nil, mapBrokerError("get consumer", err)
	}
	return &natsConsumerHandle{stream: streamName, consumer: consumer}, nil
}

func (c *Conn) DeleteConsumer(ctx context.Context, streamName, name string) error {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return mapStreamLookupError(streamName, err)
	}
	if err := stream.DeleteConsumer(ctx, name); err != nil {
		if errors.Is(err, jetstream.ErrConsumerNotFound) {
			return fail.NotFound("consumer %q not found on stream %q", name, streamName)
		}
		return mapBrokerError("delete consumer", err)
	}
	return nil
}

func (c *Conn) ConsumerInfo(ctx context.Context, handle ConsumerHandle) (ConsumerInfo, error) {
	h, ok := handle.(*natsConsumerHandle)
	if !ok {
		return ConsumerInfo{}, fail.Unexpected("consumer handle from a different broker implementation")
	}
	info, err := h.consumer.Info(ctx)
	if err != nil {
		return ConsumerInfo{}, mapBrokerError("consumer info", err)
	}
	return toConsumerInfo(info), nil
}

func (c *Conn) ListConsumerInfo(ctx context.Context, streamName string) ([]ConsumerInfo, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, mapStreamLookupError(streamName, err)
	}

	var out []ConsumerInfo
	lister := stream.ListConsumers(ctx)
	for info := range lister.Info() {
		out = append(out, toConsumerInfo(info))
	}
	if err := lister.Err(); err != nil && !errors.Is(err, jetstream.ErrEndOfData) {
		return nil, mapBrokerError("list consumers", err)
	}
	return out, nil
}

func (c *Conn) Fetch(ctx context.Context, handle ConsumerHandle, maxCount int, deadline time.Duration) ([]Message, error) {
	h, ok := handle.(*natsConsumerHandle)
	if !ok {
		return nil, fail.Unexpected("consumer handle from a different broker implementation")
	}

	batch, err := h.consumer.Fetch(maxCount, jetstream.FetchMaxWait(deadline))
	if err != nil {
		return nil, mapBrokerError("fetch", err)
	}

	var out []Message
	for msg := range batch.Messages() {
		out = append(out, toMessage(msg))
	}

	// A batch that timed out without filling is not an error.
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return out, mapBrokerError("fetch", err)
	}
	return out, nil
}

func (c *Conn) Consume(ctx context.Context, handle ConsumerHandle, onMessage func(Message)) (Subscription, error) {
	h, ok := handle.(*natsConsumerHandle)
	if !ok {
		return nil, fail.Unexpected("consumer handle from a different broker implementation")
	}

	consumeCtx, err := h.consumer.Consume(func(msg jetstream.Msg) {
		onMessage(toMessage(msg))
	})
	if err != nil {
		return nil, mapBrokerError("consume", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Stop()
	}()
	return natsSubscription{consumeCtx: consumeCtx}, nil
}

type natsConsumerHandle struct {
	stream   string
	consumer jetstream.Consumer
}

func (h *natsConsumerHandle) Stream() string { return h.stream }
func (h *natsConsumerHandle) Name() string   { return h.consumer.CachedInfo().Name }

type natsSubscription struct {
	consumeCtx jetstream.ConsumeContext
}

func (s natsSubscription) Close() error {
	s.consumeCtx.Stop()
	return nil
}

func toMessage(msg jetstream.Msg) Message {
	meta, _ := msg.Metadata()

	m := Message{Subject: msg.Subject(), Data: msg.Data()}
	if meta != nil {
		m.Sequence = meta.Sequence.Stream
		m.Timestamp = meta.Timestamp
	}
	m.ackFunc = msg.Ack
	m.nakFunc = func() error { return msg.Nak() }
	return m
}

func toStreamInfo(info *jetstream.StreamInfo) StreamInfo {
	return StreamInfo{
		Name:          info.Config.Name,
		Subjects:      info.Config.Subjects,
		Messages:      info.State.Msgs,
		Bytes:         info.State.Bytes,
		FirstSeq:      info.State.FirstSeq,
		LastSeq:       info.State.LastSeq,
		ConsumerCount: info.State.Consumers,
		Created:       info.Created,
	}
}

func toConsumerInfo(info *jetstream.ConsumerInfo) ConsumerInfo {
	ci := ConsumerInfo{
		Stream:         info.Stream,
		Name:           info.Name,
		Delivered:      SequencePair{Stream: info.Delivered.Stream, Consumer: info.Delivered.Consumer},
		AckFloor:       SequencePair{Stream: info.AckFloor.Stream, Consumer: info.AckFloor.Consumer},
		NumAckPending:  info.NumAckPending,
		NumRedelivered: info.NumRedelivered,
		NumPending:     info.NumPending,
		NumWaiting:     info.NumWaiting,
		Config: ConsumerConfig{
			Durable:           info.Config.Durable,
			Description:       info.Config.Description,
			FilterSubject:     info.Config.FilterSubject,
			AckWait:           info.Config.AckWait,
			MaxDeliver:        info.Config.MaxDeliver,
			InactiveThreshold: info.Config.InactiveThreshold,
			MaxAckPending:     info.Config.MaxAckPending,
		},
	}
	if info.Config.OptStartTime != nil {
		ci.Config.OptStartTime = info.Config.OptStartTime
	}
	switch info.Config.AckPolicy {
	case jetstream.AckExplicitPolicy:
		ci.Config.AckPolicy = AckExplicit
	case jetstream.AckAllPolicy:
		ci.Config.AckPolicy = AckAll
	default:
		ci.Config.AckPolicy = AckNone
	}
	if info.Delivered.Last != nil {
		ci.LastDelivery = *info.Delivered.Last
	}
	return ci
}

// toJetstreamConsumerConfig translates cfg onto the SDK's own config type.
// An unrecognised DeliverPolicy/AckPolicy is rejected rather than silently
// coerced to some other policy the caller never asked for; cfg.DeliverPolicy
// and cfg.AckPolicy are expected to already be validated, but this is the
// last line of defense before a broker-level default creeps in unnoticed.
func toJetstreamConsumerConfig(cfg ConsumerConfig) (jetstream.ConsumerConfig, error) {
	jcfg := jetstream.ConsumerConfig{
		Durable:           cfg.Durable,
		Description:       cfg.Description,
		FilterSubject:     cfg.FilterSubject,
		AckWait:           cfg.AckWait,
		MaxDeliver:        cfg.MaxDeliver,
		InactiveThreshold: cfg.InactiveThreshold,
		MaxAckPending:     cfg.MaxAckPending,
		FlowControl:       cfg.FlowControl,
		Heartbeat:         cfg.Heartbeat,
		OptStartSeq:       cfg.OptStartSeq,
		OptStartTime:      cfg.OptStartTime,
	}

	switch cfg.DeliverPolicy {
	case "", DeliverNew:
		jcfg.DeliverPolicy = jetstream.DeliverNewPolicy
	case DeliverAll:
		jcfg.DeliverPolicy = jetstream.DeliverAllPolicy
	case DeliverLast:
		jcfg.DeliverPolicy = jetstream.DeliverLastPolicy
	case DeliverByStartSeq:
		jcfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
	case DeliverByStartTime:
		jcfg.DeliverPolicy = jetstream.DeliverByStartTimePolicy
	default:
		return jetstream.ConsumerConfig{}, fail.BadRequest("unrecognised deliver_policy %q", cfg.DeliverPolicy)
	}

	switch cfg.AckPolicy {
	case "", AckNone:
		jcfg.AckPolicy = jetstream.AckNonePolicy
	case AckExplicit:
		jcfg.AckPolicy = jetstream.AckExplicitPolicy
	case AckAll:
		jcfg.AckPolicy = jetstream.AckAllPolicy
	default:
		return jetstream.ConsumerConfig{}, fail.BadRequest("unrecognised ack_policy %q", cfg.AckPolicy)
	}

	return jcfg, nil
}
