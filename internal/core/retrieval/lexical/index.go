// Package lexical implements an in-memory BM25+ inverted index over chunks.
package lexical

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

// Params tunes BM25+ scoring. IDFFloor is added to every idf so terms that
// occur in every chunk still contribute a positive score.
type Params struct {
	K1       float64 `json:"k1"`
	B        float64 `json:"b"`
	Delta    float64 `json:"delta"`
	IDFFloor float64 `json:"idf_floor"`
}

func DefaultParams() Params {
	return Params{
		K1:       1.2,
		B:        0.75,
		Delta:    1.0,
		IDFFloor: 0.01,
	}
}

// Normalize replaces out-of-range fields with defaults.
func (p Params) Normalize() Params {
	def := DefaultParams()
	if p.K1 <= 0 {
		p.K1 = def.K1
	}
	if p.B < 0 || p.B > 1 {
		p.B = def.B
	}
	if p.Delta < 0 {
		p.Delta = def.Delta
	}
	if p.IDFFloor <= 0 {
		p.IDFFloor = def.IDFFloor
	}
	return p
}

type Posting struct {
	Doc int `json:"d"`
	TF  int `json:"f"`
}

// Index is immutable after Build and safe for concurrent Score calls.
type Index struct {
	params    Params
	analyzer  text.Analyzer
	ids       []string
	docLens   []int
	avgDocLen float64
	postings  map[string][]Posting
	idf       map[string]float64
}

// Build indexes chunks in slice order. Term statistics are computed per
// chunk in parallel and merged after all workers finish.
func Build(ctx context.Context, chunks []domain.Chunk, params Params, analyzer text.Analyzer) (*Index, error) {
	params = params.Normalize()

	termFreqs := make([]map[string]int, len(chunks))
	docLens := make([]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tokens := analyzer.Tokenize(chunks[i].Text)
			tf := make(map[string]int, len(tokens))
			for _, token := range tokens {
				tf[token]++
			}
			termFreqs[i] = tf
			docLens[i] = len(tokens)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lexical build: %w", err)
	}

	ids := make([]string, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	postings := make(map[string][]Posting)
	total := 0
	for i, chunk := range chunks {
		if _, dup := seen[chunk.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "lexical build", fmt.Errorf("duplicate chunk id %q", chunk.ID))
		}
		seen[chunk.ID] = struct{}{}
		ids[i] = chunk.ID
		total += docLens[i]
		for term, tf := range termFreqs[i] {
			postings[term] = append(postings[term], Posting{Doc: i, TF: tf})
		}
	}

	avg := 0.0
	if len(chunks) > 0 {
		avg = float64(total) / float64(len(chunks))
	}

	return newIndex(params, analyzer, ids, docLens, avg, postings), nil
}

func newIndex(params Params, analyzer text.Analyzer, ids []string, docLens []int, avg float64, postings map[string][]Posting) *Index {
	idx := &Index{
		params:    params,
		analyzer:  analyzer,
		ids:       ids,
		docLens:   docLens,
		avgDocLen: avg,
		postings:  postings,
		idf:       make(map[string]float64, len(postings)),
	}
	n := float64(len(ids))
	for term, list := range postings {
		df := float64(len(list))
		idx.idf[term] = math.Log(1+(n-df+0.5)/(df+0.5)) + params.IDFFloor
	}
	return idx
}

func (idx *Index) Len() int { return len(idx.ids) }

func (idx *Index) Params() Params { return idx.params }

// Score returns BM25+ scores for every chunk containing at least one query
// term. A query with no matching terms yields an empty map.
func (idx *Index) Score(query string) map[string]float64 {
	out := make(map[string]float64)
	if idx == nil || len(idx.ids) == 0 {
		return out
	}

	terms := idx.analyzer.Tokenize(query)
	seen := make(map[string]struct{}, len(terms))
	k1, b, delta := idx.params.K1, idx.params.B, idx.params.Delta

	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		list, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.idf[term]
		for _, p := range list {
			tf := float64(p.TF)
			norm := 1.0
			if idx.avgDocLen > 0 {
				norm = 1 - b + b*float64(idx.docLens[p.Doc])/idx.avgDocLen
			}
			out[idx.ids[p.Doc]] += idf * (tf*(k1+1)/(tf+k1*norm) + delta)
		}
	}
	return out
}
