package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/config"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/fusion"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/usecase"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/chunking"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/embedcache"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/flowdef"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/storage/badgerstore"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/hybrid-qa-engine/internal/observability/metrics"
)

const (
	rebuildTimeout = 10 * time.Minute
	// buildWaitInterval paces retries while a build started elsewhere,
	// such as POST /v1/corpus, still holds the index.
	buildWaitInterval = 250 * time.Millisecond
)

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// ClientName identifies this process to NATS.
	ClientName string
	// BroadcastEvents subscribes outside the queue group so every replica
	// rebuilds its own snapshot.
	BroadcastEvents bool
	// SkipQueue leaves NATS unconnected even when NATS_URL is set.
	SkipQueue bool
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Corpus   *usecase.CorpusUseCase
	Queries  *usecase.QueryUseCase
	Sessions *usecase.SessionUseCase

	// Source is nil unless CORPUS_DIR is set.
	Source *plaintext.DirSource
	// Queue is nil unless NATS_URL is set.
	Queue *nats.Queue

	source ports.CorpusSource
	// sourceMu is held by the caller that is rebuilding from source.
	// rebuildPending is raised by every request and lowered by the holder
	// right before each load, so a change seen mid-build is never lost.
	sourceMu       sync.Mutex
	rebuildPending atomic.Bool

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger, Metrics: opts.Metrics}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	algorithms, err := cfg.Algorithms()
	if err != nil {
		return nil, err
	}
	mode, err := domain.ParseAnswerMode(cfg.QADefaultMode)
	if err != nil {
		return nil, err
	}

	execOpts := []resilience.Option{resilience.WithLogger(logger)}
	if opts.Metrics != nil {
		execOpts = append(execOpts, resilience.WithStateObserver(opts.Metrics.ObserveBreakerState))
	}
	executor := resilience.NewExecutor(cfg.Resilience, execOpts...)

	ollamaClient := ollama.New(ollama.Config{
		BaseURL:      cfg.OllamaURL,
		GenModel:     cfg.OllamaGenModel,
		EmbedModel:   cfg.OllamaEmbedModel,
		Timeout:      cfg.OllamaTimeout,
		Temperature:  cfg.OllamaTemperature,
		RateLimitRPS: cfg.LLMRateLimitRPS,
		RateBurst:    cfg.LLMRateLimitBurst,
	}, executor)

	var completer ports.Completer
	if cfg.OllamaGenModel != "" {
		completer = ollama.NewCompleter(ollamaClient)
	}

	snapshots, err := app.openSnapshotStore(cfg)
	if err != nil {
		return nil, err
	}

	holder := usecase.NewSnapshotHolder()
	corpusOpts := []usecase.CorpusOption{
		usecase.WithAlgorithms(algorithms),
		usecase.WithBuildWorkers(cfg.BuildWorkers),
		usecase.WithEmbedBatchSize(cfg.EmbedBatchSize),
		usecase.WithCorpusDefaults(cfg.ChunkingParams(), cfg.FusionConfig()),
		usecase.WithLexicalParams(cfg.LexicalParams()),
		usecase.WithCorpusLogger(logger),
	}
	queryOpts := []usecase.QueryOption{
		usecase.WithQueryAlgorithms(algorithms),
		usecase.WithDefaultTopK(cfg.QATopK),
		usecase.WithDefaultMode(mode),
		usecase.WithCandidateLimit(cfg.RetrievalCandidates),
		usecase.WithQueryLogger(logger),
	}
	if snapshots != nil {
		corpusOpts = append(corpusOpts, usecase.WithSnapshotStore(snapshots))
	}
	if cfg.SemanticEnabled() {
		embedder := ollama.NewEmbedder(ollamaClient)
		corpusOpts = append(corpusOpts, usecase.WithEmbedder(embedder))
		var queryEmbedder ports.Embedder = embedder
		if cfg.EmbedCacheSize > 0 {
			cached, err := embedcache.New(embedder, cfg.EmbedCacheSize)
			if err != nil {
				return nil, fmt.Errorf("init embedding cache: %w", err)
			}
			queryEmbedder = cached
		}
		queryOpts = append(queryOpts, usecase.WithQueryEmbedder(queryEmbedder))
	}
	if cfg.RerankEnabled {
		queryOpts = append(queryOpts, usecase.WithReranker(fusion.NewLinearReranker(cfg.RerankTopN)))
	}
	if opts.Metrics != nil {
		corpusOpts = append(corpusOpts, usecase.WithBuildObserver(opts.Metrics))
		queryOpts = append(queryOpts, usecase.WithQueryObserver(opts.Metrics))
	}

	app.Corpus = usecase.NewCorpusUseCase(holder, chunking.NewSplitter(cfg.ChunkingParams()), corpusOpts...)
	answers := usecase.NewAnswerGenerator(completer,
		usecase.WithSynthesisTimeout(cfg.SynthesisTimeout),
		usecase.WithAnswerBudget(cfg.AnswerBudgetChars),
		usecase.WithAnswerLogger(logger),
	)
	app.Queries = usecase.NewQueryUseCase(holder, answers, queryOpts...)

	var flows []domain.FlowDefinition
	if cfg.FlowPath != "" {
		flows, err = flowdef.LoadPath(cfg.FlowPath)
		if err != nil {
			return nil, fmt.Errorf("load flows: %w", err)
		}
	}
	sessionOpts := []usecase.SessionOption{
		usecase.WithResultExporter(xlsx.NewExporter()),
		usecase.WithDefaultFlow(cfg.DefaultFlow),
		usecase.WithSessionLogger(logger),
	}
	if cfg.PostgresDSN != "" {
		repo, err := app.openResultRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sessionOpts = append(sessionOpts, usecase.WithResultRepository(repo))
	}
	app.Sessions, err = usecase.NewSessionUseCase(app.Queries, flows, sessionOpts...)
	if err != nil {
		return nil, fmt.Errorf("init sessions: %w", err)
	}

	if cfg.CorpusDir != "" {
		app.Source = plaintext.NewDirSource(cfg.CorpusDir)
		app.source = app.Source
	}

	if cfg.NATSURL != "" && !opts.SkipQueue {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			Broadcast:          opts.BroadcastEvents,
			ClientName:         opts.ClientName,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init corpus event queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	ok = true
	return app, nil
}

func (a *App) openSnapshotStore(cfg config.Config) (ports.SnapshotStore, error) {
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendFile:
		store, err := localfs.New(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("init snapshot dir: %w", err)
		}
		return store, nil
	case config.SnapshotBackendBadger:
		store, err := badgerstore.Open(cfg.SnapshotPath, cfg.SnapshotTTL, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open badger snapshot store: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.Logger.Warn("snapshot_store_close_failed", "error", err)
			}
		})
		return store, nil
	default:
		return nil, nil
	}
}

func (a *App) openResultRepository(ctx context.Context, dsn string) (*postgres.ResultRepository, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	repo := postgres.NewResultRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// BuildFromSource rebuilds the corpus from CORPUS_DIR with the configured
// defaults. A request that arrives while another caller is rebuilding is
// queued: it returns ErrBuildInProgress at once and the running caller
// loads the source again before it returns.
func (a *App) BuildFromSource(ctx context.Context, reason string) (domain.CorpusStatus, error) {
	if a.source == nil {
		return domain.CorpusStatus{}, domain.WrapError(domain.ErrInvalidConfig, "build from source", errors.New("CORPUS_DIR is not set"))
	}

	a.rebuildPending.Store(true)
	var (
		status domain.CorpusStatus
		err    error
		built  bool
	)
	for a.rebuildPending.Load() {
		if !a.sourceMu.TryLock() {
			if built {
				// The new holder picks up the pending request.
				return status, err
			}
			return domain.CorpusStatus{}, domain.WrapError(domain.ErrBuildInProgress, "build from source", errors.New("queued behind the running rebuild"))
		}
		for a.rebuildPending.CompareAndSwap(true, false) {
			status, err = a.buildOnce(ctx, reason)
			built = true
		}
		a.sourceMu.Unlock()
	}
	return status, err
}

func (a *App) buildOnce(ctx context.Context, reason string) (domain.CorpusStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, rebuildTimeout)
	defer cancel()

	docs, err := a.source.Load(ctx)
	if err != nil {
		return domain.CorpusStatus{}, err
	}
	a.Logger.Info("corpus_source_loaded", "source", a.Config.CorpusDir, "reason", reason, "documents", len(docs))

	for {
		status, err := a.Corpus.Build(ctx, domain.CorpusRequest{Documents: docs})
		if !domain.IsKind(err, domain.ErrBuildInProgress) {
			return status, err
		}
		select {
		case <-ctx.Done():
			return status, err
		case <-time.After(buildWaitInterval):
		}
	}
}

// HandleCorpusEvent rebuilds from the local source for any change
// notification; the event names the announcing side's path only.
func (a *App) HandleCorpusEvent(ctx context.Context, origin string, event domain.CorpusEvent) error {
	_, err := a.BuildFromSource(ctx, origin+": "+event.Reason)
	if domain.IsKind(err, domain.ErrBuildInProgress) {
		a.Logger.Info("corpus_rebuild_queued", "origin", origin, "reason", event.Reason)
		err = nil
	}
	if a.Metrics != nil {
		a.Metrics.RecordCorpusEvent(origin, err)
	}
	return err
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
