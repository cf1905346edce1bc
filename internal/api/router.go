package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/jetgate/jetgate/internal/auth"
	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/config"
	"github.com/jetgate/jetgate/internal/consumer"
	"github.com/jetgate/jetgate/internal/fetch"
	"github.com/jetgate/jetgate/internal/resolver"
	"github.com/jetgate/jetgate/internal/stream"
)

// Server holds every dependency the Surface Layer dispatches to.
type Server struct {
	cfg          config.Config
	logger       *slog.Logger
	gate         *auth.Gate
	client       broker.Client
	resolver     *resolver.Resolver
	orchestrator *consumer.Orchestrator
	fetchEngine  *fetch.Engine
	streamEngine *stream.Engine
	startedAt    time.Time
}

// NewServer wires a Server from the gateway's constructed dependencies.
func NewServer(
	cfg config.Config,
	logger *slog.Logger,
	gate *auth.Gate,
	client broker.Client,
	res *resolver.Resolver,
	orchestrator *consumer.Orchestrator,
	fetchEngine *fetch.Engine,
	streamEngine *stream.Engine,
) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger,
		gate:         gate,
		client:       client,
		resolver:     res,
		orchestrator: orchestrator,
		fetchEngine:  fetchEngine,
		streamEngine: streamEngine,
		startedAt:    time.Now(),
	}
}

// Router builds the full HTTP route table, wrapped in the standard
// middleware chain (recover, instrumentation, trace id, authorization, CORS,
// auth gate).
func (s *Server) Router() http.Handler {
	var corsHandler *cors.Cors
	corsHandler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	chain := HTTPMiddlewareFuncs{
		recoverFromPanic(s.logger),
		instrument(),
		restoreTraceID(),
		restoreAuthorization(),
		applyCorsHeaders(corsHandler),
		authenticate(s.gate),
	}

	mux := http.NewServeMux()
	route := func(pattern string, handler http.HandlerFunc) {
		mux.HandleFunc(pattern, chain.Then(handler))
	}

	route("GET /health", s.handleHealth)
	route("GET /metrics", promhttp.Handler().ServeHTTP)

	route("POST /api/messages/{subject}", s.handlePublish)
	route("GET /api/messages/{stream}/consumer/{name}", s.handleFetchFromConsumer)
	route("GET /api/messages/{filter}", s.handleFetchByFilter)

	route("GET /api/streams", s.handleListStreams)
	route("GET /api/streams/{name}/subjects", s.handleStreamSubjects)
	route("GET /api/streams/{name}", s.handleStreamInfo)

	route("GET /api/consumers/templates", s.handleConsumerTemplates)
	route("POST /api/consumers/{stream}", s.handleCreateConsumer)
	route("GET /api/consumers/{stream}/{name}/health", s.handleConsumerHealth)
	route("GET /api/consumers/{stream}/{name}/messages", s.handlePeekMessages)
	route("POST /api/consumers/{stream}/{name}/reset", s.handleResetConsumer)
	route("GET /api/consumers/{stream}/{name}/metrics/history", s.handleMetricsHistory)
	route("GET /api/consumers/{stream}/{name}", s.handleConsumerDetail)
	route("DELETE /api/consumers/{stream}/{name}", s.handleDeleteConsumer)
	route("GET /api/consumers/{stream}", s.handleListConsumers)

	route("POST /api/proto/protobufmessages/{subject}", s.handlePublishProto)
	route("GET /api/proto/protobufmessages/{subject}", s.handleFetchProto)

	route("GET /ws/websocketmessages/{stream}/consumer/{name}", s.handleWebsocketDurable)
	route("GET /ws/websocketmessages/{filter}", s.handleWebsocketEphemeral)

	return mux
}
