package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jetgate/jetgate/pkg/fail"
)

// Fake is an in-memory Client double for exercising internal/resolver,
// internal/consumer, internal/fetch and internal/stream without a live
// JetStream cluster.
type Fake struct {
	mu sync.Mutex

	streams   map[string]*fakeStream
	consumers map[string]*fakeConsumer // keyed by stream+"/"+name

	// PublishErr, when set, is returned by every PublishRecord call instead
	// of actually publishing, until it is cleared again.
	PublishErr error
}

type fakeStream struct {
	info     StreamInfo
	messages []Message
}

type fakeConsumer struct {
	stream   string
	cfg      ConsumerConfig
	name     string
	cursor   int // index into fakeStream.messages of the next undelivered message
	pending  map[uint64]int
	created  time.Time
}

func (c *fakeConsumer) Stream() string { return c.stream }
func (c *fakeConsumer) Name() string   { return c.name }

// NewFake returns an empty fake broker ready for use.
func NewFake() *Fake {
	return &Fake{
		streams:   map[string]*fakeStream{},
		consumers: map[string]*fakeConsumer{},
	}
}

func (f *Fake) PublishRecord(ctx context.Context, subject string, payload []byte) (string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishErr != nil {
		return "", 0, f.PublishErr
	}

	for name, s := range f.streams {
		if !subjectCovered(s.info.Subjects, subject) {
			continue
		}
		seq := uint64(len(s.messages) + 1)
		msg := Message{Subject: subject, Sequence: seq, Timestamp: stamp(), Data: append([]byte(nil), payload...)}
		s.messages = append(s.messages, msg)
		s.info.Messages = uint64(len(s.messages))
		s.info.LastSeq = seq
		if s.info.FirstSeq == 0 {
			s.info.FirstSeq = 1
		}
		return name, seq, nil
	}
	return "", 0, fail.NotFound("no stream covers subject %q", subject)
}

func (f *Fake) GetStreamInfo(ctx context.Context, name string) (StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.streams[name]
	if !ok {
		return StreamInfo{}, fail.NotFound("stream %q not found", name)
	}
	return s.info, nil
}

func (f *Fake) CreateStream(ctx context.Context, cfg StreamConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.streams[cfg.Name]; ok {
		return nil // racy-create tie-break: reuse what's already there
	}
	f.streams[cfg.Name] = &fakeStream{info: StreamInfo{
		Name:     cfg.Name,
		Subjects: append([]string(nil), cfg.Subjects...),
		Created:  stamp(),
	}}
	return nil
}

func (f *Fake) DeleteStream(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.streams[name]; !ok {
		return fail.NotFound("stream %q not found", name)
	}
	delete(f.streams, name)
	for key, c := range f.consumers {
		if c.stream == name {
			delete(f.consumers, key)
		}
	}
	return nil
}

func (f *Fake) GetSubjectDistribution(ctx context.Context, name string) (map[string]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.streams[name]
	if !ok {
		return nil, fail.NotFound("stream %q not found", name)
	}
	out := map[string]uint64{}
	for _, m := range s.messages {
		out[m.Subject]++
	}
	return out, nil
}

func (f *Fake) ListStreams(ctx context.Context) ([]StreamInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]StreamInfo, 0, len(f.streams))
	for _, s := range f.streams {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (ConsumerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.streams[streamName]; !ok {
		return nil, fail.NotFound("stream %q not found", streamName)
	}

	name := cfg.Durable
	if name == "" {
		name = ephemeralName()
	}
	key := streamName + "/" + name
	s := f.streams[streamName]
	c := &fakeConsumer{
		stream:  streamName,
		cfg:     cfg,
		name:    name,
		cursor:  startCursor(cfg, s),
		pending: map[uint64]int{},
		created: stamp(),
	}
	f.consumers[key] = c
	return c, nil
}

// startCursor picks the initial delivery position for a newly (re)created
// consumer according to its DeliverPolicy, mirroring JetStream's own
// start-position semantics closely enough to exercise the engines above it.
func startCursor(cfg ConsumerConfig, s *fakeStream) int {
	switch cfg.DeliverPolicy {
	case DeliverNew:
		if s == nil {
			return 0
		}
		return len(s.messages)
	case DeliverLast:
		if s == nil || len(s.messages) == 0 {
			return 0
		}
		return len(s.messages) - 1
	case DeliverByStartSeq:
		if cfg.OptStartSeq == 0 {
			return 0
		}
		return int(cfg.OptStartSeq) - 1
	case DeliverByStartTime:
		if s == nil || cfg.OptStartTime == nil {
			return 0
		}
		for i, m := range s.messages {
			if !m.Timestamp.Before(*cfg.OptStartTime) {
				return i
			}
		}
		return len(s.messages)
	default: // DeliverAll and unset
		return 0
	}
}

func (f *Fake) GetConsumer(ctx context.Context, streamName, name string) (ConsumerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.consumers[streamName+"/"+name]
	if !ok {
		return nil, fail.NotFound("consumer %q not found on stream %q", name, streamName)
	}
	return c, nil
}

func (f *Fake) DeleteConsumer(ctx context.Context, streamName, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := streamName + "/" + name
	if _, ok := f.consumers[key]; !ok {
		return fail.NotFound("consumer %q not found on stream %q", name, streamName)
	}
	delete(f.consumers, key)
	return nil
}

func (f *Fake) ConsumerInfo(ctx context.Context, handle ConsumerHandle) (ConsumerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := handle.(*fakeConsumer)
	if !ok {
		return ConsumerInfo{}, fail.Unexpected("consumer handle from a different broker implementation")
	}

	s := f.streams[c.stream]
	delivered := uint64(c.cursor)
	var lastSeq uint64
	if s != nil && c.cursor > 0 && c.cursor <= len(s.messages) {
		lastSeq = s.messages[c.cursor-1].Sequence
	}

	return ConsumerInfo{
		Stream:         c.stream,
		Name:           c.name,
		Config:         c.cfg,
		Delivered:      SequencePair{Stream: lastSeq, Consumer: delivered},
		AckFloor:       SequencePair{Stream: lastSeq, Consumer: delivered},
		NumAckPending:  len(c.pending),
		NumPending:     f.remaining(c),
		LastDelivery:   c.created,
	}, nil
}

func (f *Fake) ListConsumerInfo(ctx context.Context, streamName string) ([]ConsumerInfo, error) {
	f.mu.Lock()
	var names []string
	for key, c := range f.consumers {
		if c.stream == streamName {
			names = append(names, key)
		}
	}
	f.mu.Unlock()

	sort.Strings(names)

	out := make([]ConsumerInfo, 0, len(names))
	for _, key := range names {
		f.mu.Lock()
		c := f.consumers[key]
		f.mu.Unlock()
		if c == nil {
			continue
		}
		info, err := f.ConsumerInfo(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (f *Fake) remaining(c *fakeConsumer) uint64 {
	s, ok := f.streams[c.stream]
	if !ok {
		return 0
	}
	if len(s.messages) <= c.cursor {
		return 0
	}
	return uint64(len(s.messages) - c.cursor)
}

func (f *Fake) Fetch(ctx context.Context, handle ConsumerHandle, maxCount int, deadline time.Duration) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := handle.(*fakeConsumer)
	if !ok {
		return nil, fail.Unexpected("consumer handle from a different broker implementation")
	}
	s, ok := f.streams[c.stream]
	if !ok {
		return nil, fail.NotFound("stream %q not found", c.stream)
	}

	var out []Message
	for len(out) < maxCount && c.cursor < len(s.messages) {
		msg := s.messages[c.cursor]
		c.cursor++
		if c.cfg.FilterSubject != "" && !subjectCovered([]string{c.cfg.FilterSubject}, msg.Subject) {
			continue
		}
		if c.cfg.AckPolicy == AckExplicit {
			seq := msg.Sequence
			msg.ackFunc = func() error {
				f.mu.Lock()
				delete(c.pending, seq)
				f.mu.Unlock()
				return nil
			}
			msg.nakFunc = func() error { return nil }
			c.pending[seq] = c.cursor - 1
		}
		out = append(out, msg)
	}
	return out, nil
}

func (f *Fake) Consume(ctx context.Context, handle ConsumerHandle, onMessage func(Message)) (Subscription, error) {
	c, ok := handle.(*fakeConsumer)
	if !ok {
		return nil, fail.Unexpected("consumer handle from a different broker implementation")
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				msgs, err := f.Fetch(ctx, c, 16, 0)
				if err != nil {
					return
				}
				for _, m := range msgs {
					onMessage(m)
				}
			}
		}
	}()
	return fakeSubscription{done: done}, nil
}

type fakeSubscription struct {
	done chan struct{}
}

func (s fakeSubscription) Close() error {
	close(s.done)
	return nil
}

func subjectCovered(subjects []string, subject string) bool {
	for _, pattern := range subjects {
		if pattern == subject {
			return true
		}
		if subjectMatchesWildcard(pattern, subject) {
			return true
		}
	}
	return false
}

// subjectMatchesWildcard implements NATS' "." token matching for the ">" and
// "*" wildcards, enough for the resolver's own tests.
func subjectMatchesWildcard(pattern, subject string) bool {
	pTokens := splitSubject(pattern)
	sTokens := splitSubject(subject)

	for i, pt := range pTokens {
		if pt == ">" {
			return true
		}
		if i >= len(sTokens) {
			return false
		}
		if pt != "*" && pt != sTokens[i] {
			return false
		}
	}
	return len(pTokens) == len(sTokens)
}

func splitSubject(subject string) []string {
	var tokens []string
	start := 0
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			tokens = append(tokens, subject[start:i])
			start = i + 1
		}
	}
	tokens = append(tokens, subject[start:])
	return tokens
}

var ephemeralSeq int

func ephemeralName() string {
	ephemeralSeq++
	return "fake-ephemeral-" + itoa(ephemeralSeq)
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

// stamp is the fake's substitute for time.Now(), isolated to one function so
// tests can see exactly where wall-clock time enters the broker.
func stamp() time.Time {
	return time.Now()
}
