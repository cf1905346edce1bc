package stream_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/resolver"
	"github.com/jetgate/jetgate/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestServeEphemeral_SessionOutlivesOriginatingHandler drives a real listening
// httptest.Server so the handler goroutine genuinely returns (and net/http
// cancels its request context) before the session's first data frame is
// pushed. A session built on the request context instead of a
// session-lifetime one would have its select loop immediately select
// ctx.Done() and tear the socket down before any message ever arrives.
func TestServeEphemeral_SessionOutlivesOriginatingHandler(t *testing.T) {
	client := broker.NewFake()
	res := resolver.New(client, "DEFAULT")
	engine := stream.New(client, res, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := engine.ServeEphemeral(r.Context(), w, r, "events.orders")
		require.NoError(t, err)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	conn, _, _, err := ws.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Give the handler plenty of time to return and the stdlib to cancel its
	// request context before anything is published - this is the window the
	// bug lived in.
	time.Sleep(100 * time.Millisecond)

	ackRaw, err := wsutil.ReadServerBinary(conn)
	require.NoError(t, err)
	_, cf, err := stream.Decode(ackRaw)
	require.NoError(t, err)
	require.NotNil(t, cf)
	assert.Equal(t, stream.ControlSubscribeAck, cf.Type)

	_, _, err = client.PublishRecord(context.Background(), "events.orders", []byte(`{"id":1}`))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	dataRaw, err := wsutil.ReadServerBinary(conn)
	require.NoError(t, err, "session should still be running long after the originating handler returned")

	df, _, err := stream.Decode(dataRaw)
	require.NoError(t, err)
	require.NotNil(t, df)
	assert.Equal(t, "events.orders", df.Subject)
	assert.Equal(t, []byte(`{"id":1}`), df.Payload)
}

// TestServeEphemeral_ClosingClientEndsSession asserts the session still
// terminates promptly once the peer actually disconnects, so the fix doesn't
// just trade "dies too early" for "never dies".
func TestServeEphemeral_ClosingClientEndsSession(t *testing.T) {
	client := broker.NewFake()
	res := resolver.New(client, "DEFAULT")
	engine := stream.New(client, res, testLogger())

	handlerReturned := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := engine.ServeEphemeral(r.Context(), w, r, "events.orders")
		require.NoError(t, err)
		close(handlerReturned)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	conn, _, _, err := ws.Dial(context.Background(), wsURL)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, err = wsutil.ReadServerBinary(conn)
	require.NoError(t, err)

	<-handlerReturned
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		infos, err := client.ListConsumerInfo(context.Background(), "events")
		return err == nil && len(infos) == 0
	}, 2*time.Second, 20*time.Millisecond, "ephemeral consumer should be cleaned up once the peer disconnects")
}
