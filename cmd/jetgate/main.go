// Command jetgate runs the HTTP/WebSocket gateway fronting a NATS JetStream
// cluster.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jetgate/jetgate/internal/api"
	"github.com/jetgate/jetgate/internal/auth"
	"github.com/jetgate/jetgate/internal/broker"
	"github.com/jetgate/jetgate/internal/config"
	"github.com/jetgate/jetgate/internal/consumer"
	"github.com/jetgate/jetgate/internal/fetch"
	"github.com/jetgate/jetgate/internal/obs"
	"github.com/jetgate/jetgate/internal/resolver"
	"github.com/jetgate/jetgate/internal/stream"
)

func main() {
	root := &cobra.Command{
		Use:   "jetgate",
		Short: "HTTP/WebSocket gateway fronting a NATS JetStream cluster",
		RunE:  runServe,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("jetgate: fatal configuration error: %w", err)
	}

	logger := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	conn, err := broker.Connect(broker.Options{
		URL:            cfg.NATSURL,
		CAFile:         cfg.NATSCAFile,
		CertFile:       cfg.NATSCertFile,
		KeyFile:        cfg.NATSKeyFile,
		ConnectTimeout: cfg.NATSConnectTimeout,
	})
	if err != nil {
		// Fatal configuration/connection error: the
		// process must not start with half-initialised broker state.
		return fmt.Errorf("jetgate: fatal broker connection error: %w", err)
	}
	defer conn.Close()
	logger.Info("connected to broker", "url", cfg.NATSURL)

	gate := auth.New(cfg.JWTKey, cfg.JWTIssuer, cfg.JWTAudience)
	if gate.Disabled() {
		logger.Warn("JWT_KEY not configured, request gate is DISABLED - all requests are admitted")
	}

	res := resolver.New(conn, cfg.StreamPrefix)
	orchestrator := consumer.New(conn)
	fetchEngine := fetch.New(conn, res, logger)
	streamEngine := stream.New(conn, res, logger)

	server := api.NewServer(cfg, logger, gate, conn, res, orchestrator, fetchEngine, streamEngine)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	runner := &runner{httpServer: httpServer, logger: logger}
	go runner.shutdownOnInterrupt(cfg.ShutdownTimeout)

	logger.Info("jetgate listening", "addr", cfg.HTTPAddr)
	return runner.run()
}

// runner implements the Run/Shutdown/ShutdownOnInterrupt shape, specialised
// to this gateway's single http.Server listener.
type runner struct {
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
}

func (r *runner) run() error {
	err := r.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (r *runner) shutdown(ctx context.Context) error {
	return r.httpServer.Shutdown(ctx)
}

func (r *runner) shutdownOnInterrupt(gracefulTimeout time.Duration) {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt

	r.logger.Info("shutting down", "timeout", gracefulTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()

	r.shutdownOnce.Do(func() {
		if err := r.shutdown(ctx); err != nil {
			r.logger.Error("error shutting down", "error", err)
		}
	})
}
