// Package resolver maps publish subjects onto the stream that stores them,
// lazily creating streams on first publish and memoizing the binding for the
// life of the process.
package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jetgate/jetgate/internal/broker"
)

const (
	defaultMaxMessages int64 = 10_000
	defaultMaxBytes    int64 = 100 * 1024 * 1024
	defaultMaxAge            = 24 * time.Hour
	defaultReplicas          = 1
)

// Resolver owns the process-wide subject-to-stream cache, safe for
// concurrent use.
type Resolver struct {
	client Client
	prefix string

	mu       sync.RWMutex
	bindings map[string]string
}

// Client is the subset of broker.Client the resolver needs.
type Client interface {
	GetStreamInfo(ctx context.Context, name string) (broker.StreamInfo, error)
	CreateStream(ctx context.Context, cfg broker.StreamConfig) error
	ListStreams(ctx context.Context) ([]broker.StreamInfo, error)
}

// New builds a resolver. prefix is the configured STREAM_PREFIX, used as the
// candidate stream name for subjects with no dot.
func New(client Client, prefix string) *Resolver {
	return &Resolver{client: client, prefix: prefix, bindings: map[string]string{}}
}

// ResolveForPublish performs a memoized lookup, first
// dot-token candidate, broker lookup, auto-create on miss with a tie-break
// that treats a concurrent creation as success.
func (r *Resolver) ResolveForPublish(ctx context.Context, subject string) (string, error) {
	if name, ok := r.lookup(subject); ok {
		return name, nil
	}

	candidate := firstToken(subject, r.prefix)

	if _, err := r.client.GetStreamInfo(ctx, candidate); err == nil {
		r.memoize(subject, candidate)
		return candidate, nil
	}

	pattern := candidate + ".>"
	if subject == "" {
		pattern = ">"
	}

	err := r.client.CreateStream(ctx, broker.StreamConfig{
		Name:     candidate,
		Subjects: []string{pattern},
		MaxMsgs:  defaultMaxMessages,
		MaxBytes: defaultMaxBytes,
		MaxAge:   defaultMaxAge,
		Replicas: defaultReplicas,
	})
	if err != nil {
		return "", err
	}

	r.memoize(subject, candidate)
	return candidate, nil
}

// GetStreamInfo passes through to the broker; stream state is never memoized
// since message/byte counts change continuously.
func (r *Resolver) GetStreamInfo(ctx context.Context, name string) (broker.StreamInfo, error) {
	return r.client.GetStreamInfo(ctx, name)
}

// ListStreams passes through to the broker.
func (r *Resolver) ListStreams(ctx context.Context) ([]broker.StreamInfo, error) {
	return r.client.ListStreams(ctx)
}

func (r *Resolver) lookup(subject string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bindings[subject]
	return name, ok
}

// memoize is last-writer-wins: every writer agrees on the
// mapping for a given subject, so a racing duplicate write is harmless.
func (r *Resolver) memoize(subject, name string) {
	r.mu.Lock()
	r.bindings[subject] = name
	r.mu.Unlock()
}

// firstToken returns the first dot-delimited token of subject, case preserved,
// or prefix when subject has no dot at all.
func firstToken(subject, prefix string) string {
	if idx := strings.IndexByte(subject, '.'); idx >= 0 {
		return subject[:idx]
	}
	return prefix
}
