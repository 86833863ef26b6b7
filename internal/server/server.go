// Package server exposes the triage pipeline over HTTP: transaction
// submission plus the audit query surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/pipeline"
)

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

func New(cfg config.ServerConfig, logger *slog.Logger, p *pipeline.Pipeline, store audit.Store) *Server {
	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(requestTimeout(time.Duration(cfg.TimeoutSeconds * float64(time.Second))))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "triageflow")
	})

	h := &handlers{pipeline: p, store: store, logger: logger}

	r.Get("/healthz", h.health)
	r.Route("/v1/transactions", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.listRecent)
		r.Get("/{id}/audit", h.trail)
	})

	return &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: r,
		},
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
