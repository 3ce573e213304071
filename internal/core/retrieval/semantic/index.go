// Package semantic implements exact cosine nearest-neighbour search over
// externally supplied chunk embeddings.
package semantic

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

// Index is immutable after Build and safe for concurrent Score calls.
type Index struct {
	dim     int
	ids     []string
	vectors [][]float32
	norms   []float64
}

// Build stores one vector per chunk id. All vectors must share one
// dimensionality; a mismatch is a configuration error.
func Build(ctx context.Context, ids []string, vectors [][]float32) (*Index, error) {
	const op = "semantic build"
	if len(ids) != len(vectors) {
		return nil, domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(ids)))
	}

	dim := 0
	seen := make(map[string]struct{}, len(ids))
	for i, v := range vectors {
		if _, dup := seen[ids[i]]; dup {
			return nil, domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("duplicate chunk id %q", ids[i]))
		}
		seen[ids[i]] = struct{}{}
		if len(v) == 0 {
			return nil, domain.WrapError(domain.ErrInvalidConfig, op, fmt.Errorf("chunk %q has an empty vector", ids[i]))
		}
		if i == 0 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return nil, domain.WrapError(domain.ErrInvalidConfig, op,
				fmt.Errorf("chunk %q has dimension %d, expected %d", ids[i], len(v), dim))
		}
	}

	norms := make([]float64, len(vectors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range vectors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			norms[i] = norm(vectors[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Index{
		dim:     dim,
		ids:     append([]string(nil), ids...),
		vectors: vectors,
		norms:   norms,
	}, nil
}

func (idx *Index) Len() int { return len(idx.ids) }

// Dimensions returns the vector size, or 0 for an empty index.
func (idx *Index) Dimensions() int { return idx.dim }

// Score returns the top-k chunks by cosine similarity. Negative similarity
// is clamped to 0 so every score lies in [0,1]. k <= 0 or k larger than
// the index returns every entry.
func (idx *Index) Score(query []float32, k int) (map[string]float64, error) {
	out := make(map[string]float64)
	if idx == nil || len(idx.ids) == 0 {
		return out, nil
	}
	if len(query) != idx.dim {
		return nil, domain.WrapError(domain.ErrInvalidInput, "semantic score",
			fmt.Errorf("query dimension %d, index dimension %d", len(query), idx.dim))
	}

	qNorm := norm(query)
	type hit struct {
		id    string
		score float64
	}
	hits := make([]hit, len(idx.ids))
	for i, v := range idx.vectors {
		hits[i] = hit{id: idx.ids[i], score: cosine(query, v, qNorm, idx.norms[i])}
	}

	if k > 0 && k < len(hits) {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score > hits[j].score
			}
			return hits[i].id < hits[j].id
		})
		hits = hits[:k]
	}
	for _, h := range hits {
		out[h.id] = h.score
	}
	return out, nil
}

func cosine(a, b []float32, aNorm, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	sim := dot / (aNorm * bNorm)
	switch {
	case math.IsNaN(sim) || sim < 0:
		return 0
	case sim > 1:
		return 1
	default:
		return sim
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// State is the serializable form of an Index. Norms are recomputed on load.
type State struct {
	IDs     []string    `json:"ids"`
	Vectors [][]float32 `json:"vectors"`
}

func (idx *Index) State() State {
	return State{IDs: idx.ids, Vectors: idx.vectors}
}

func FromState(ctx context.Context, state State) (*Index, error) {
	return Build(ctx, state.IDs, state.Vectors)
}
