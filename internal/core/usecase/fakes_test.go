package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/infrastructure/chunking"
)

var legalCorpus = []domain.Document{
	{ID: "complaint", Text: "The plaintiff John Doe alleges negligence."},
	{ID: "answer", Text: "The defendant denies all allegations."},
}

// vocabEmbedder maps text onto a tiny fixed vocabulary so cosine scores are
// predictable.
type vocabEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

var fakeVocab = []string{"plaintiff", "defendant", "negligence", "allegations", "doe"}

func (f *vocabEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(fakeVocab)+1)
	v[len(fakeVocab)] = 0.1
	for i, w := range fakeVocab {
		if strings.Contains(lower, w) {
			v[i] = 1
		}
	}
	return v
}

func (f *vocabEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *vocabEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *vocabEmbedder) Model() string { return "vocab-test" }

type memSnapshotStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{data: map[string][]byte{}}
}

func (s *memSnapshotStore) Save(_ context.Context, fingerprint string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.data[fingerprint] = append([]byte(nil), data...)
	return nil
}

func (s *memSnapshotStore) Load(_ context.Context, fingerprint string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[fingerprint]
	if !ok {
		return nil, domain.WrapError(domain.ErrSnapshotNotFound, "load snapshot", errors.New(fingerprint))
	}
	return data, nil
}

// blockingCompleter never answers before its context ends.
type blockingCompleter struct{}

func (blockingCompleter) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type staticCompleter struct {
	text   string
	err    error
	prompt string
}

func (c *staticCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompt = prompt
	return c.text, c.err
}

func newTestCorpus(opts ...CorpusOption) (*SnapshotHolder, *CorpusUseCase) {
	holder := NewSnapshotHolder()
	splitter := chunking.NewSplitter(domain.DefaultChunkingParams())
	return holder, NewCorpusUseCase(holder, splitter, opts...)
}

func buildLegalCorpus(ctx context.Context, uc *CorpusUseCase) error {
	_, err := uc.Build(ctx, domain.CorpusRequest{Documents: legalCorpus})
	return err
}
