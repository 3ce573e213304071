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

	httpadapter "github.com/kirillkom/hybrid-qa-engine/internal/adapters/http"
	"github.com/kirillkom/hybrid-qa-engine/internal/bootstrap"
	"github.com/kirillkom/hybrid-qa-engine/internal/config"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/hybrid-qa-engine/internal/observability/logging"
	"github.com/kirillkom/hybrid-qa-engine/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, "hqa-api", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("hqa-api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:          logger,
		Metrics:         m,
		ClientName:      "hqa-api",
		BroadcastEvents: true,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	routerOpts := httpadapter.Options{
		APIKey:         cfg.APIKey,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
		InFlightWait:   cfg.APIInFlightWait,
		MaxBodyBytes:   cfg.APIMaxBodyBytes,
		Metrics:        m,
		Logger:         logger,
	}
	if app.Source != nil {
		routerOpts.Source = app.Source
		go func() {
			if _, err := app.BuildFromSource(ctx, "startup"); err != nil {
				logger.Error("initial_corpus_build_failed", "error", err)
			}
		}()
	}

	if app.Queue != nil {
		go func() {
			err := app.Queue.SubscribeCorpusChanged(ctx, func(ctx context.Context, event domain.CorpusEvent) error {
				return app.HandleCorpusEvent(ctx, "nats", event)
			})
			if err != nil {
				logger.Error("corpus_events_subscribe_failed", "error", err)
			}
		}()
	}

	if cfg.CorpusWatch {
		watcher := plaintext.NewWatcher(cfg.CorpusDir, cfg.CorpusWatchDebounce, logger)
		go func() {
			err := watcher.Watch(ctx, func(ctx context.Context, event domain.CorpusEvent) {
				if err := app.HandleCorpusEvent(ctx, "watch", event); err != nil {
					logger.Error("corpus_rebuild_failed", "origin", "watch", "error", err)
				}
			})
			if err != nil {
				logger.Error("corpus_watch_stopped", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(app.Corpus, app.Queries, app.Sessions, routerOpts).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.SynthesisTimeout + 60*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
