// Package fusion merges per-algorithm score maps into one ranked list.
package fusion

import (
	"sort"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

// Merge combines lexical and semantic scores with cfg's weights, adds
// cfg.Bonus to chunks found by both, drops everything below cfg.MinScore
// and sorts descending with ties broken by chunk id.
//
// cfg is expected to have passed FusionConfig.Validate.
func Merge(lexical, semantic map[string]float64, cfg domain.FusionConfig) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(lexical)+len(semantic))

	add := func(id string) {
		lex, inLex := lexical[id]
		sem, inSem := semantic[id]

		combined := cfg.Weights.Lexical*clampNonNegative(lex) + cfg.Weights.Semantic*clampNonNegative(sem)
		sources := make([]domain.Algorithm, 0, 2)
		if inLex {
			sources = append(sources, domain.AlgorithmLexical)
		}
		if inSem {
			sources = append(sources, domain.AlgorithmSemantic)
		}
		if inLex && inSem {
			combined += cfg.Bonus
		}
		if combined < cfg.MinScore {
			return
		}
		out = append(out, domain.ScoredChunk{
			ChunkID: id,
			Score:   combined,
			Sources: sources,
		})
	}

	for id := range lexical {
		add(id)
	}
	for id := range semantic {
		if _, done := lexical[id]; done {
			continue
		}
		add(id)
	}

	SortScored(out)
	return out
}

// SortScored orders by score descending, then chunk id ascending.
func SortScored(chunks []domain.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ChunkID < chunks[j].ChunkID
	})
}

// NormalizeMax rescales scores by their maximum so the best hit is 1.
// BM25 scores are unbounded; semantic scores are already in [0,1].
func NormalizeMax(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	for id, s := range scores {
		if maxScore <= 0 {
			out[id] = 0
			continue
		}
		out[id] = clampNonNegative(s) / maxScore
	}
	return out
}

// Truncate keeps at most limit chunks; limit <= 0 keeps everything.
func Truncate(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
