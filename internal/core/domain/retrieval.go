package domain

import (
	"fmt"
	"math"
	"strings"
)

// Algorithm identifies one retrieval strategy. The set is closed.
type Algorithm string

const (
	AlgorithmLexical  Algorithm = "lexical"
	AlgorithmSemantic Algorithm = "semantic"
)

func ParseAlgorithm(raw string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(raw))) {
	case AlgorithmLexical:
		return AlgorithmLexical, nil
	case AlgorithmSemantic:
		return AlgorithmSemantic, nil
	default:
		return "", WrapError(ErrInvalidConfig, "parse algorithm", fmt.Errorf("unknown algorithm %q", raw))
	}
}

const (
	DefaultLexicalWeight  = 1.0
	DefaultSemanticWeight = 0.5
	DefaultFusionBonus    = 0.1
	DefaultMinScore       = 0.1
)

type Weights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

type FusionConfig struct {
	Weights  Weights `json:"weights"`
	Bonus    float64 `json:"bonus"`
	MinScore float64 `json:"min_score"`
}

func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Weights: Weights{
			Lexical:  DefaultLexicalWeight,
			Semantic: DefaultSemanticWeight,
		},
		Bonus:    DefaultFusionBonus,
		MinScore: DefaultMinScore,
	}
}

// FusionOverrides is the request side of FusionConfig. Nil fields keep the
// value of the base config they are applied to.
type FusionOverrides struct {
	Weights  WeightOverrides `json:"weights"`
	Bonus    *float64        `json:"bonus,omitempty"`
	MinScore *float64        `json:"min_score,omitempty"`
}

type WeightOverrides struct {
	Lexical  *float64 `json:"lexical,omitempty"`
	Semantic *float64 `json:"semantic,omitempty"`
}

func (o FusionOverrides) Apply(base FusionConfig) FusionConfig {
	out := base
	if o.Weights.Lexical != nil {
		out.Weights.Lexical = *o.Weights.Lexical
	}
	if o.Weights.Semantic != nil {
		out.Weights.Semantic = *o.Weights.Semantic
	}
	if o.Bonus != nil {
		out.Bonus = *o.Bonus
	}
	if o.MinScore != nil {
		out.MinScore = *o.MinScore
	}
	return out
}

func (c FusionConfig) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return WrapError(ErrInvalidConfig, "fusion config", fmt.Errorf("%s must be finite", name))
		}
		if v < 0 {
			return WrapError(ErrInvalidConfig, "fusion config", fmt.Errorf("%s must not be negative, got %v", name, v))
		}
		return nil
	}
	if err := check("lexical weight", c.Weights.Lexical); err != nil {
		return err
	}
	if err := check("semantic weight", c.Weights.Semantic); err != nil {
		return err
	}
	if err := check("bonus", c.Bonus); err != nil {
		return err
	}
	if math.IsNaN(c.MinScore) || math.IsInf(c.MinScore, 0) {
		return WrapError(ErrInvalidConfig, "fusion config", fmt.Errorf("min_score must be finite"))
	}
	return nil
}

// ScoredChunk is one fused retrieval hit. Score is never negative.
type ScoredChunk struct {
	ChunkID string      `json:"chunk_id"`
	Score   float64     `json:"score"`
	Sources []Algorithm `json:"algorithm_sources"`
	Chunk   *Chunk      `json:"chunk,omitempty"`
}

func (s ScoredChunk) HasSource(alg Algorithm) bool {
	for _, src := range s.Sources {
		if src == alg {
			return true
		}
	}
	return false
}
