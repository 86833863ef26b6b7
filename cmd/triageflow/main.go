package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/triageflow/triageflow/internal/actions"
	"github.com/triageflow/triageflow/internal/agent"
	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/classifier"
	"github.com/triageflow/triageflow/internal/config"
	"github.com/triageflow/triageflow/internal/pipeline"
	"github.com/triageflow/triageflow/internal/router"
	"github.com/triageflow/triageflow/internal/server"
	"github.com/triageflow/triageflow/internal/severity"
	"github.com/triageflow/triageflow/internal/storage/memory"
	"github.com/triageflow/triageflow/internal/storage/sqlite"
	"github.com/triageflow/triageflow/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init("triageflow", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer store.Close()

	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		log.Fatalf("Failed to build classifier: %v", err)
	}

	agents, err := agent.NewRegistry(cfg.Thresholds)
	if err != nil {
		log.Fatalf("Failed to build extraction agents: %v", err)
	}

	p := pipeline.New(
		cls,
		agents,
		severity.NewResolver(cfg.Severity),
		router.New(cfg.Routing.EscalationIntents),
		actions.NewSimulator(logger),
		store,
		logger,
	)

	srv := server.New(cfg.Server, logger, p, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("triageflow started",
		slog.String("backend", cls.Name()),
		slog.String("storage", cfg.Storage.Type),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server stopped", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func openStore(cfg *config.Config) (audit.Store, error) {
	if cfg.Storage.Type == "memory" {
		return memory.New(), nil
	}
	return sqlite.New(cfg.Storage.SQLite.Path)
}
