package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/lexical"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/semantic"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

const defaultEmbedBatchSize = 32

// BuildObserver receives one call per finished corpus build.
type BuildObserver interface {
	RecordCorpusBuild(status string, chunks int, fromSnapshot bool, duration time.Duration)
}

type CorpusOption func(*CorpusUseCase)

func WithEmbedder(e ports.Embedder) CorpusOption {
	return func(uc *CorpusUseCase) { uc.embedder = e }
}

func WithSnapshotStore(s ports.SnapshotStore) CorpusOption {
	return func(uc *CorpusUseCase) { uc.store = s }
}

func WithAlgorithms(algs []domain.Algorithm) CorpusOption {
	return func(uc *CorpusUseCase) {
		if len(algs) > 0 {
			uc.algorithms = algs
		}
	}
}

func WithBuildWorkers(n int) CorpusOption {
	return func(uc *CorpusUseCase) {
		if n > 0 {
			uc.workers = n
		}
	}
}

func WithEmbedBatchSize(n int) CorpusOption {
	return func(uc *CorpusUseCase) {
		if n > 0 {
			uc.embedBatch = n
		}
	}
}

func WithCorpusDefaults(chunking domain.ChunkingParams, fusion domain.FusionConfig) CorpusOption {
	return func(uc *CorpusUseCase) {
		uc.defaultChunking = chunking
		uc.defaultFusion = fusion
	}
}

func WithLexicalParams(p lexical.Params) CorpusOption {
	return func(uc *CorpusUseCase) { uc.lexParams = p.Normalize() }
}

func WithCorpusAnalyzer(a text.Analyzer) CorpusOption {
	return func(uc *CorpusUseCase) { uc.analyzer = a }
}

func WithBuildObserver(o BuildObserver) CorpusOption {
	return func(uc *CorpusUseCase) { uc.observer = o }
}

func WithCorpusLogger(logger *slog.Logger) CorpusOption {
	return func(uc *CorpusUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

// CorpusUseCase builds snapshots and publishes them through a SnapshotHolder.
type CorpusUseCase struct {
	holder   *SnapshotHolder
	chunker  ports.Chunker
	embedder ports.Embedder
	store    ports.SnapshotStore
	observer BuildObserver
	logger   *slog.Logger

	analyzer        text.Analyzer
	lexParams       lexical.Params
	algorithms      []domain.Algorithm
	defaultChunking domain.ChunkingParams
	defaultFusion   domain.FusionConfig
	workers         int
	embedBatch      int
}

func NewCorpusUseCase(holder *SnapshotHolder, chunker ports.Chunker, opts ...CorpusOption) *CorpusUseCase {
	uc := &CorpusUseCase{
		holder:          holder,
		chunker:         chunker,
		logger:          slog.Default(),
		analyzer:        text.DefaultAnalyzer,
		lexParams:       lexical.DefaultParams(),
		algorithms:      []domain.Algorithm{domain.AlgorithmLexical, domain.AlgorithmSemantic},
		defaultChunking: domain.DefaultChunkingParams(),
		defaultFusion:   domain.DefaultFusionConfig(),
		workers:         runtime.GOMAXPROCS(0),
		embedBatch:      defaultEmbedBatchSize,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *CorpusUseCase) semanticEnabled() bool {
	if uc.embedder == nil {
		return false
	}
	for _, alg := range uc.algorithms {
		if alg == domain.AlgorithmSemantic {
			return true
		}
	}
	return false
}

func (uc *CorpusUseCase) embedModel() string {
	if !uc.semanticEnabled() {
		return ""
	}
	return uc.embedder.Model()
}

// Build replaces the current snapshot. Configuration problems are reported
// before any work starts; a failed build leaves the previous snapshot in
// place.
func (uc *CorpusUseCase) Build(ctx context.Context, req domain.CorpusRequest) (domain.CorpusStatus, error) {
	const op = "corpus build"
	if !uc.holder.tryLockBuild() {
		return domain.CorpusStatus{}, domain.WrapError(domain.ErrBuildInProgress, op, errors.New("another build is running"))
	}
	defer uc.holder.unlockBuild()

	started := time.Now()
	chunking := req.Chunking
	if chunking == (domain.ChunkingParams{}) {
		chunking = uc.defaultChunking
	}
	fusionCfg := req.Fusion.Apply(uc.defaultFusion)
	if err := chunking.Validate(); err != nil {
		return domain.CorpusStatus{}, err
	}
	if err := fusionCfg.Validate(); err != nil {
		return domain.CorpusStatus{}, err
	}
	if err := validateDocuments(req.Documents); err != nil {
		return domain.CorpusStatus{}, domain.WrapError(domain.ErrInvalidInput, op, err)
	}

	fingerprint := CorpusFingerprint(req.Documents, chunking, uc.lexParams, uc.embedModel())
	uc.logger.Info("corpus_build_started",
		"documents", len(req.Documents),
		"fingerprint", fingerprint,
		"target_size", chunking.TargetSize,
		"overlap", chunking.Overlap,
		"semantic", uc.semanticEnabled(),
	)

	if snap := uc.loadPersisted(ctx, fingerprint); snap != nil {
		snap.Fusion = fusionCfg
		snap.BuildDuration = time.Since(started)
		uc.holder.publish(snap)
		uc.record("loaded", len(snap.Chunks), true, snap.BuildDuration)
		uc.logger.Info("corpus_snapshot_loaded", "fingerprint", fingerprint, "chunks", len(snap.Chunks), "version", snap.Version)
		return uc.Status(), nil
	}

	snap, order, err := uc.build(ctx, req.Documents, chunking)
	if err != nil {
		uc.record("failed", 0, false, time.Since(started))
		uc.logger.Error("corpus_build_failed", "fingerprint", fingerprint, "error", err)
		return domain.CorpusStatus{}, err
	}
	snap.Fingerprint = fingerprint
	snap.Fusion = fusionCfg
	snap.BuildDuration = time.Since(started)

	uc.persist(ctx, snap, order)
	uc.holder.publish(snap)
	uc.record("built", len(snap.Chunks), false, snap.BuildDuration)
	uc.logger.Info("corpus_build_finished",
		"fingerprint", fingerprint,
		"chunks", len(snap.Chunks),
		"version", snap.Version,
		"duration_ms", float64(snap.BuildDuration.Microseconds())/1000.0,
	)
	return uc.Status(), nil
}

func (uc *CorpusUseCase) build(ctx context.Context, docs []domain.Document, chunking domain.ChunkingParams) (*Snapshot, []string, error) {
	chunks, err := uc.chunkAll(ctx, docs, chunking)
	if err != nil {
		return nil, nil, err
	}

	var vectors [][]float32
	if uc.semanticEnabled() && len(chunks) > 0 {
		vectors, err = uc.embedAll(ctx, chunks)
		if err != nil {
			return nil, nil, err
		}
	}

	var (
		lexIdx *lexical.Index
		semIdx *semantic.Index
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, err := lexical.Build(gctx, chunks, uc.lexParams, uc.analyzer)
		lexIdx = idx
		return err
	})
	if vectors != nil {
		g.Go(func() error {
			ids := make([]string, len(chunks))
			for i := range chunks {
				ids[i] = chunks[i].ID
			}
			idx, err := semantic.Build(gctx, ids, vectors)
			semIdx = idx
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*domain.Chunk, len(chunks))
	order := make([]string, len(chunks))
	for i := range chunks {
		byID[chunks[i].ID] = &chunks[i]
		order[i] = chunks[i].ID
	}
	return &Snapshot{
		Documents: len(docs),
		Chunks:    byID,
		Lexical:   lexIdx,
		Semantic:  semIdx,
		BuiltAt:   time.Now().UTC(),
	}, order, nil
}

// chunkAll splits documents on a worker pool; results keep document order.
func (uc *CorpusUseCase) chunkAll(ctx context.Context, docs []domain.Document, chunking domain.ChunkingParams) ([]domain.Chunk, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	pool, err := ants.NewPool(uc.workers)
	if err != nil {
		return nil, fmt.Errorf("create chunking pool: %w", err)
	}
	defer pool.Release()

	perDoc := make([][]domain.Chunk, len(docs))
	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	for i := range docs {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			perDoc[i], errs[i] = uc.chunker.Split(docs[i], chunking)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit chunking task: %w", submitErr)
		}
	}
	wg.Wait()

	total := 0
	for i := range docs {
		if errs[i] != nil {
			return nil, fmt.Errorf("chunk document %s: %w", docs[i].ID, errs[i])
		}
		total += len(perDoc[i])
	}
	out := make([]domain.Chunk, 0, total)
	for _, chunks := range perDoc {
		out = append(out, chunks...)
	}
	return out, nil
}

func (uc *CorpusUseCase) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(chunks); start += uc.embedBatch {
		end := min(start+uc.embedBatch, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for i := start; i < end; i++ {
				texts = append(texts, chunks[i].Text)
			}
			batch, err := uc.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end, len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (uc *CorpusUseCase) loadPersisted(ctx context.Context, fingerprint string) *Snapshot {
	if uc.store == nil {
		return nil
	}
	data, err := uc.store.Load(ctx, fingerprint)
	if err != nil {
		if !domain.IsKind(err, domain.ErrSnapshotNotFound) {
			uc.logger.Warn("corpus_snapshot_load_failed", "fingerprint", fingerprint, "error", err)
		}
		return nil
	}
	snap, err := decodeSnapshot(ctx, data, fingerprint, uc.analyzer)
	if err != nil {
		uc.logger.Warn("corpus_snapshot_decode_failed", "fingerprint", fingerprint, "error", err)
		return nil
	}
	return snap
}

func (uc *CorpusUseCase) persist(ctx context.Context, snap *Snapshot, order []string) {
	if uc.store == nil {
		return
	}
	data, err := encodeSnapshot(snap, order)
	if err != nil {
		uc.logger.Warn("corpus_snapshot_encode_failed", "fingerprint", snap.Fingerprint, "error", err)
		return
	}
	if err := uc.store.Save(ctx, snap.Fingerprint, data); err != nil {
		uc.logger.Warn("corpus_snapshot_save_failed", "fingerprint", snap.Fingerprint, "error", err)
	}
}

func (uc *CorpusUseCase) record(status string, chunks int, fromSnapshot bool, d time.Duration) {
	if uc.observer != nil {
		uc.observer.RecordCorpusBuild(status, chunks, fromSnapshot, d)
	}
}

func (uc *CorpusUseCase) Status() domain.CorpusStatus {
	status := domain.CorpusStatus{
		Building:   uc.holder.Building(),
		Algorithms: uc.algorithms,
	}
	snap := uc.holder.Load()
	if snap == nil {
		return status
	}
	status.Ready = true
	status.Version = snap.Version
	status.Fingerprint = snap.Fingerprint
	status.Documents = snap.Documents
	status.Chunks = len(snap.Chunks)
	status.Fusion = snap.Fusion
	status.FromSnapshot = snap.FromSnapshot
	status.BuiltAt = snap.BuiltAt
	status.BuildDuration = snap.BuildDuration.String()
	if snap.Semantic != nil {
		status.Dimensions = snap.Semantic.Dimensions()
	}
	return status
}

func validateDocuments(docs []domain.Document) error {
	seen := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			return fmt.Errorf("document at position %d has empty id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate document id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
