package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Probes are the health endpoints served next to /metrics.
// *health.Checker satisfies it.
type Probes interface {
	LiveHandler() http.HandlerFunc
	ReadyHandler() http.HandlerFunc
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Probes       Probes
}

// OpsServer serves Prometheus metrics and, when configured, liveness and
// readiness probes on a dedicated port. Processes without a public HTTP API
// (the bot, the analytics consumer) expose their operational surface here.
type OpsServer struct {
	server *http.Server
	logger *slog.Logger
}

func NewOpsServer(cfg ServerConfig) *OpsServer {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	if cfg.Probes != nil {
		mux.HandleFunc("GET /health/live", cfg.Probes.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Probes.ReadyHandler())
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><h1>Music Search Bot</h1><p><a href="/metrics">/metrics</a>`)
		if cfg.Probes != nil {
			fmt.Fprint(w, ` <a href="/health/ready">/health/ready</a>`)
		}
		fmt.Fprint(w, `</p></body></html>`)
	})

	return &OpsServer{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: slog.Default().With("component", "ops-server"),
	}
}

// Handler exposes the routed mux, mainly for tests.
func (s *OpsServer) Handler() http.Handler {
	return s.server.Handler
}

// Start listens in the background until Shutdown.
func (s *OpsServer) Start() {
	go func() {
		s.logger.Info("ops server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()
}

func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// StartServer starts a metrics-only ops server and returns its shutdown.
func StartServer(port int) (shutdown func(context.Context) error) {
	s := NewOpsServer(ServerConfig{Port: port})
	s.Start()
	return s.Shutdown
}
