// Package retrieval exposes the lexical and semantic indexes behind one
// scoring interface so the query path can treat them uniformly.
package retrieval

import (
	"errors"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/lexical"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/semantic"
)

// ErrNoQueryVector is returned by the semantic scorer when no embedding was supplied.
var ErrNoQueryVector = errors.New("query vector not available")

type Query struct {
	Text   string
	Vector []float32
	// K bounds the semantic neighbour search; lexical scoring is exhaustive.
	K int
}

type Scorer interface {
	Algorithm() domain.Algorithm
	Score(q Query) (map[string]float64, error)
}

type LexicalScorer struct {
	Index *lexical.Index
}

func (LexicalScorer) Algorithm() domain.Algorithm { return domain.AlgorithmLexical }

func (s LexicalScorer) Score(q Query) (map[string]float64, error) {
	return s.Index.Score(q.Text), nil
}

type SemanticScorer struct {
	Index *semantic.Index
}

func (SemanticScorer) Algorithm() domain.Algorithm { return domain.AlgorithmSemantic }

func (s SemanticScorer) Score(q Query) (map[string]float64, error) {
	if s.Index == nil || s.Index.Len() == 0 {
		return map[string]float64{}, nil
	}
	if len(q.Vector) == 0 {
		return nil, ErrNoQueryVector
	}
	return s.Index.Score(q.Vector, q.K)
}

// Scorers returns the enabled scorers in a fixed lexical, semantic order.
// A nil index disables its algorithm.
func Scorers(enabled []domain.Algorithm, lex *lexical.Index, sem *semantic.Index) []Scorer {
	on := make(map[domain.Algorithm]bool, len(enabled))
	for _, alg := range enabled {
		on[alg] = true
	}
	out := make([]Scorer, 0, 2)
	if on[domain.AlgorithmLexical] && lex != nil {
		out = append(out, LexicalScorer{Index: lex})
	}
	if on[domain.AlgorithmSemantic] && sem != nil {
		out = append(out, SemanticScorer{Index: sem})
	}
	return out
}
