// Package embedcache memoizes embeddings in front of a ports.Embedder.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
)

const defaultSize = 10000

// Embedder caches vectors by model and text hash. Cached vectors are
// copied on the way out so callers cannot corrupt the cache.
type Embedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

func New(next ports.Embedder, size int) (*Embedder, error) {
	if size <= 0 {
		size = defaultSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{next: next, cache: cache}, nil
}

func (e *Embedder) Model() string { return e.next.Model() }

func (e *Embedder) Len() int { return e.cache.Len() }

func (e *Embedder) key(text string) string {
	h := sha256.Sum256([]byte(e.next.Model() + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, ok := e.cache.Get(key); ok {
		return clone(v), nil
	}
	v, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, clone(v))
	return v, nil
}

// Embed only forwards the texts that are not cached, in one batch.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		keys[i] = e.key(text)
		if v, ok := e.cache.Get(keys[i]); ok {
			out[i] = clone(v)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vectors, err := e.next.Embed(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embedding cache: got %d vectors for %d texts", len(vectors), len(batch))
	}
	for j, i := range missing {
		out[i] = vectors[j]
		e.cache.Add(keys[i], clone(vectors[j]))
	}
	return out, nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
