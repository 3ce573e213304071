package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

const (
	defaultSynthesisTimeout    = 20 * time.Second
	synthesisFoundConfidence   = 0.8
	fallbackReasonTimeout      = "synthesis timeout"
	fallbackReasonUnavailable  = "synthesis unavailable"
	fallbackReasonEmpty        = "empty completion"
	fallbackReasonServiceError = "synthesis service error"
)

// errEmptyCompletion marks a completion with no usable text.
var errEmptyCompletion = errors.New("completion is empty")

type AnswerGeneratorOption func(*AnswerGenerator)

func WithSynthesisTimeout(d time.Duration) AnswerGeneratorOption {
	return func(g *AnswerGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithAnswerBudget(chars int) AnswerGeneratorOption {
	return func(g *AnswerGenerator) {
		if chars > 0 {
			g.budget = chars
		}
	}
}

func WithAnswerAnalyzer(a text.Analyzer) AnswerGeneratorOption {
	return func(g *AnswerGenerator) { g.analyzer = a }
}

func WithAnswerLogger(logger *slog.Logger) AnswerGeneratorOption {
	return func(g *AnswerGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// AnswerGenerator turns ranked chunks into a QAResult by extraction or by
// delegating to a Completer. Synthesis never fails the caller because of
// the completer: any completer failure degrades to extraction.
type AnswerGenerator struct {
	completer ports.Completer
	analyzer  text.Analyzer
	budget    int
	timeout   time.Duration
	logger    *slog.Logger
}

func NewAnswerGenerator(completer ports.Completer, opts ...AnswerGeneratorOption) *AnswerGenerator {
	g := &AnswerGenerator{
		completer: completer,
		analyzer:  text.DefaultAnalyzer,
		budget:    defaultAnswerBudget,
		timeout:   defaultSynthesisTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns an error only when ctx itself is done.
func (g *AnswerGenerator) Generate(ctx context.Context, question string, mode domain.AnswerMode, chunks []domain.ScoredChunk) (domain.QAResult, error) {
	if len(chunks) == 0 {
		return domain.NewInsufficientResult(question, mode), nil
	}
	if mode != domain.ModeSynthesis {
		return extractAnswer(g.analyzer, question, chunks, g.budget), nil
	}

	if g.completer == nil {
		return g.fallback(question, chunks, fallbackReasonUnavailable, nil), nil
	}

	completion, err := g.complete(ctx, buildAnswerPrompt(question, chunks))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.QAResult{}, fmt.Errorf("synthesize answer: %w", ctxErr)
		}
		reason := fallbackReasonServiceError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			reason = fallbackReasonTimeout
		case errors.Is(err, errEmptyCompletion):
			reason = fallbackReasonEmpty
		}
		return g.fallback(question, chunks, reason, err), nil
	}

	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, c.ChunkID)
	}
	return domain.QAResult{
		Question:   question,
		Answer:     completion,
		Confidence: synthesisFoundConfidence,
		Sources:    sources,
		Mode:       domain.ModeSynthesis,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// complete enforces the synthesis timeout even if the completer ignores
// its context; the result channel is buffered so a late completer never
// blocks.
func (g *AnswerGenerator) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		completion, err := g.completer.Complete(callCtx, prompt)
		done <- outcome{text: completion, err: err}
	}()

	select {
	case <-callCtx.Done():
		return "", callCtx.Err()
	case out := <-done:
		if out.err != nil {
			return "", out.err
		}
		if strings.TrimSpace(out.text) == "" {
			return "", errEmptyCompletion
		}
		return out.text, nil
	}
}

func (g *AnswerGenerator) fallback(question string, chunks []domain.ScoredChunk, reason string, cause error) domain.QAResult {
	attrs := []any{
		"reason", reason,
		"question_len", len(question),
		"chunks", len(chunks),
		"timeout_ms", g.timeout.Milliseconds(),
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	g.logger.Warn("synthesis_fallback", attrs...)

	result := extractAnswer(g.analyzer, question, chunks, g.budget)
	result.FallbackReason = reason
	return result
}
