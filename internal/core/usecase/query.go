package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/fusion"
)

const (
	defaultQueryTopK       = 5
	defaultCandidateLimit  = 30
	maxQuestionRunes       = 4000
	semanticDegradedReason = "semantic scoring failed"
)

// QueryObserver receives one call per answered question.
type QueryObserver interface {
	RecordAnswer(mode domain.AnswerMode, fallback bool, insufficient bool, retrieved int, duration time.Duration)
}

type QueryOption func(*QueryUseCase)

func WithQueryEmbedder(e ports.Embedder) QueryOption {
	return func(uc *QueryUseCase) { uc.embedder = e }
}

func WithQueryAlgorithms(algs []domain.Algorithm) QueryOption {
	return func(uc *QueryUseCase) {
		if len(algs) > 0 {
			uc.algorithms = algs
		}
	}
}

func WithReranker(r fusion.Reranker) QueryOption {
	return func(uc *QueryUseCase) { uc.reranker = r }
}

func WithDefaultTopK(k int) QueryOption {
	return func(uc *QueryUseCase) {
		if k > 0 {
			uc.defaultTopK = k
		}
	}
}

func WithDefaultMode(mode domain.AnswerMode) QueryOption {
	return func(uc *QueryUseCase) {
		if mode != "" {
			uc.defaultMode = mode
		}
	}
}

func WithCandidateLimit(n int) QueryOption {
	return func(uc *QueryUseCase) {
		if n > 0 {
			uc.candidates = n
		}
	}
}

func WithQueryObserver(o QueryObserver) QueryOption {
	return func(uc *QueryUseCase) { uc.observer = o }
}

func WithQueryLogger(logger *slog.Logger) QueryOption {
	return func(uc *QueryUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

// QueryUseCase retrieves, fuses and answers against the current snapshot.
type QueryUseCase struct {
	holder      *SnapshotHolder
	answers     *AnswerGenerator
	embedder    ports.Embedder
	reranker    fusion.Reranker
	observer    QueryObserver
	logger      *slog.Logger
	algorithms  []domain.Algorithm
	defaultTopK int
	defaultMode domain.AnswerMode
	candidates  int
}

func NewQueryUseCase(holder *SnapshotHolder, answers *AnswerGenerator, opts ...QueryOption) *QueryUseCase {
	uc := &QueryUseCase{
		holder:      holder,
		answers:     answers,
		logger:      slog.Default(),
		algorithms:  []domain.Algorithm{domain.AlgorithmLexical, domain.AlgorithmSemantic},
		defaultTopK: defaultQueryTopK,
		defaultMode: domain.ModeExtraction,
		candidates:  defaultCandidateLimit,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (domain.QAResult, error) {
	const op = "answer question"
	started := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return domain.QAResult{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("question is required"))
	}
	if len([]rune(question)) > maxQuestionRunes {
		return domain.QAResult{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("question exceeds %d characters", maxQuestionRunes))
	}
	if req.TopK < 0 {
		return domain.QAResult{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("top_k must not be negative, got %d", req.TopK))
	}
	mode := uc.defaultMode
	if req.Mode != "" {
		parsed, err := domain.ParseAnswerMode(string(req.Mode))
		if err != nil {
			return domain.QAResult{}, err
		}
		mode = parsed
	}
	topK := req.TopK
	if topK == 0 {
		topK = uc.defaultTopK
	}

	snap := uc.holder.Load()
	if snap == nil {
		return domain.QAResult{}, domain.WrapError(domain.ErrCorpusNotReady, op, fmt.Errorf("no corpus has been built"))
	}

	ranked, err := uc.Retrieve(ctx, snap, question, req.Vector, topK)
	if err != nil {
		return domain.QAResult{}, err
	}

	result, err := uc.answers.Generate(ctx, req.Question, mode, ranked)
	if err != nil {
		return domain.QAResult{}, err
	}

	if uc.observer != nil {
		uc.observer.RecordAnswer(mode, result.FallbackReason != "", result.Insufficient(), len(ranked), time.Since(started))
	}
	return result, nil
}

// Retrieve returns the top-k fused chunks from snap. The whole call runs
// against the one snapshot it was given.
func (uc *QueryUseCase) Retrieve(ctx context.Context, snap *Snapshot, question string, vector []float32, topK int) ([]domain.ScoredChunk, error) {
	scorers := retrieval.Scorers(uc.algorithms, snap.Lexical, snap.Semantic)
	limit := max(uc.candidates, topK)

	var (
		lexScores map[string]float64
		semScores map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, scorer := range scorers {
		switch scorer.Algorithm() {
		case domain.AlgorithmLexical:
			g.Go(func() error {
				scores, err := scorer.Score(retrieval.Query{Text: question})
				if err != nil {
					return fmt.Errorf("lexical scoring: %w", err)
				}
				lexScores = scores
				return nil
			})
		case domain.AlgorithmSemantic:
			g.Go(func() error {
				scores, err := uc.semanticScores(gctx, scorer, question, vector, limit)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					uc.logger.Warn("semantic_scoring_failed", "reason", semanticDegradedReason, "error", err)
					return nil
				}
				semScores = scores
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fusion.Merge(fusion.NormalizeMax(lexScores), semScores, snap.Fusion)
	fused = fusion.Truncate(fused, limit)
	for i := range fused {
		fused[i].Chunk = snap.Chunks[fused[i].ChunkID]
	}
	if uc.reranker != nil {
		fused = uc.reranker.Rerank(question, fused)
	}
	return fusion.Truncate(fused, topK), nil
}

func (uc *QueryUseCase) semanticScores(ctx context.Context, scorer retrieval.Scorer, question string, vector []float32, k int) (map[string]float64, error) {
	if len(vector) == 0 && uc.embedder != nil {
		embedded, err := uc.embedder.EmbedQuery(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vector = embedded
	}
	return scorer.Score(retrieval.Query{Text: question, Vector: vector, K: k})
}
