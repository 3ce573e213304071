package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/lexical"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/retrieval/semantic"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

const snapshotFormatVersion = 1

// Snapshot is one fully built corpus. It is never mutated after it is
// published, so a query that loaded it can finish against it even while a
// newer snapshot replaces it.
type Snapshot struct {
	Version       uint64
	Fingerprint   string
	Documents     int
	Chunks        map[string]*domain.Chunk
	Lexical       *lexical.Index
	Semantic      *semantic.Index
	Fusion        domain.FusionConfig
	FromSnapshot  bool
	BuiltAt       time.Time
	BuildDuration time.Duration
}

// SnapshotHolder publishes snapshots atomically and serializes builds.
type SnapshotHolder struct {
	current  atomic.Pointer[Snapshot]
	building atomic.Bool
	version  atomic.Uint64
}

func NewSnapshotHolder() *SnapshotHolder {
	return &SnapshotHolder{}
}

// Load returns the current snapshot or nil before the first build.
func (h *SnapshotHolder) Load() *Snapshot {
	return h.current.Load()
}

func (h *SnapshotHolder) Building() bool {
	return h.building.Load()
}

func (h *SnapshotHolder) tryLockBuild() bool {
	return h.building.CompareAndSwap(false, true)
}

func (h *SnapshotHolder) unlockBuild() {
	h.building.Store(false)
}

func (h *SnapshotHolder) publish(s *Snapshot) {
	s.Version = h.version.Add(1)
	h.current.Store(s)
}

type persistedSnapshot struct {
	FormatVersion int             `json:"format_version"`
	Fingerprint   string          `json:"fingerprint"`
	Documents     int             `json:"documents"`
	Chunks        []domain.Chunk  `json:"chunks"`
	Lexical       lexical.State   `json:"lexical"`
	Semantic      *semantic.State `json:"semantic,omitempty"`
	BuiltAt       time.Time       `json:"built_at"`
}

func encodeSnapshot(s *Snapshot, order []string) ([]byte, error) {
	chunks := make([]domain.Chunk, 0, len(order))
	for _, id := range order {
		chunks = append(chunks, *s.Chunks[id])
	}
	p := persistedSnapshot{
		FormatVersion: snapshotFormatVersion,
		Fingerprint:   s.Fingerprint,
		Documents:     s.Documents,
		Chunks:        chunks,
		Lexical:       s.Lexical.State(),
		BuiltAt:       s.BuiltAt,
	}
	if s.Semantic != nil {
		state := s.Semantic.State()
		p.Semantic = &state
	}
	return json.Marshal(p)
}

func decodeSnapshot(ctx context.Context, data []byte, fingerprint string, analyzer text.Analyzer) (*Snapshot, error) {
	var p persistedSnapshot
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if p.FormatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported format version %d", p.FormatVersion)
	}
	if p.Fingerprint != fingerprint {
		return nil, fmt.Errorf("decode snapshot: fingerprint mismatch %s != %s", p.Fingerprint, fingerprint)
	}

	lex, err := lexical.FromState(p.Lexical, analyzer)
	if err != nil {
		return nil, err
	}
	var sem *semantic.Index
	if p.Semantic != nil {
		sem, err = semantic.FromState(ctx, *p.Semantic)
		if err != nil {
			return nil, err
		}
	}

	chunks := make(map[string]*domain.Chunk, len(p.Chunks))
	for i := range p.Chunks {
		c := p.Chunks[i]
		chunks[c.ID] = &c
	}
	return &Snapshot{
		Fingerprint:  p.Fingerprint,
		Documents:    p.Documents,
		Chunks:       chunks,
		Lexical:      lex,
		Semantic:     sem,
		FromSnapshot: true,
		BuiltAt:      p.BuiltAt,
	}, nil
}

// CorpusFingerprint hashes everything that influences the built indexes:
// documents in order, chunking params, lexical params and the embedding model.
func CorpusFingerprint(docs []domain.Document, chunking domain.ChunkingParams, lex lexical.Params, embedModel string) string {
	h := sha256.New()
	writeField := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		_, _ = h.Write(n[:])
		_, _ = h.Write([]byte(s))
	}
	writeField(fmt.Sprintf("v%d", snapshotFormatVersion))
	writeField(fmt.Sprintf("chunk:%d/%d", chunking.TargetSize, chunking.Overlap))
	writeField(fmt.Sprintf("bm25:%g/%g/%g/%g", lex.K1, lex.B, lex.Delta, lex.IDFFloor))
	writeField("embed:" + embedModel)
	for _, doc := range docs {
		writeField(doc.ID)
		writeField(doc.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}
