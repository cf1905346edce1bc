package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/resolver"
)

func TestResolveForPublish_FirstDotToken(t *testing.T) {
	client := broker.NewFake()
	r := resolver.New(client, "DEFAULT")

	name, err := r.ResolveForPublish(context.Background(), "events.orders.created")
	require.NoError(t, err)
	assert.Equal(t, "events", name)
}

func TestResolveForPublish_NoDotUsesPrefix(t *testing.T) {
	client := broker.NewFake()
	r := resolver.New(client, "DEFAULT")

	name, err := r.ResolveForPublish(context.Background(), "heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "DEFAULT", name)
}

func TestResolveForPublish_IdempotentWithinProcess(t *testing.T) {
	client := broker.NewFake()
	r := resolver.New(client, "DEFAULT")

	first, err := r.ResolveForPublish(context.Background(), "events.orders")
	require.NoError(t, err)

	second, err := r.ResolveForPublish(context.Background(), "events.orders")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolveForPublish_ReusesExistingStream(t *testing.T) {
	client := broker.NewFake()
	require.NoError(t, client.CreateStream(context.Background(), broker.StreamConfig{
		Name:     "EVENTS",
		Subjects: []string{"EVENTS.>"},
	}))

	r := resolver.New(client, "DEFAULT")
	name, err := r.ResolveForPublish(context.Background(), "EVENTS.orders")
	require.NoError(t, err)
	assert.Equal(t, "EVENTS", name)
}

// TestResolveForPublish_ConcurrentCreateTieBreak exercises the tie-break
// semantics: a racing duplicate CreateStream call must be treated as
// success, and both goroutines must resolve to the same name.
func TestResolveForPublish_ConcurrentCreateTieBreak(t *testing.T) {
	client := broker.NewFake()
	r := resolver.New(client, "DEFAULT")

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			name, err := r.ResolveForPublish(context.Background(), "events.race")
			require.NoError(t, err)
			results <- name
		}()
	}

	first := <-results
	second := <-results
	assert.Equal(t, first, second)
}
