package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/bootstrap"
	"github.com/kirillkom/hybrid-qa-engine/internal/config"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/observability/logging"
	"github.com/kirillkom/hybrid-qa-engine/internal/observability/metrics"
)

// The worker rebuilds the corpus on change events and persists the
// snapshot, so API replicas sharing the store reload instead of embedding.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, "hqa-worker", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATSURL == "" || cfg.CorpusDir == "" {
		log.Fatalf("worker requires NATS_URL and CORPUS_DIR")
	}
	if cfg.SnapshotBackend == config.SnapshotBackendNone {
		logger.Warn("worker_snapshots_disabled", "detail", "rebuilds will not be shared with api replicas")
	}

	m := metrics.New("hqa-worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:     logger,
		Metrics:    m,
		ClientName: "hqa-worker",
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if _, err := app.BuildFromSource(ctx, "startup"); err != nil {
		logger.Error("initial_corpus_build_failed", "error", err)
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeCorpusChanged(ctx, func(handlerCtx context.Context, event domain.CorpusEvent) error {
		return app.HandleCorpusEvent(handlerCtx, "nats", event)
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
