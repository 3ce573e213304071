package ports

import (
	"context"
	"io"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

// Chunker splits one document into overlapping chunks.
type Chunker interface {
	Split(doc domain.Document, params domain.ChunkingParams) ([]domain.Chunk, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding model; it is part of the corpus fingerprint.
	Model() string
}

// Completer is the generative text boundary. Deadlines travel in ctx.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SnapshotStore persists encoded index snapshots keyed by corpus fingerprint.
// Load returns domain.ErrSnapshotNotFound for unknown fingerprints.
type SnapshotStore interface {
	Save(ctx context.Context, fingerprint string, data []byte) error
	Load(ctx context.Context, fingerprint string) ([]byte, error)
}

// ResultRepository keeps QA results produced in sessions.
type ResultRepository interface {
	AppendResult(ctx context.Context, sessionID string, seq int, result domain.QAResult) error
	ListResults(ctx context.Context, sessionID string) ([]domain.QAResult, error)
}

// CorpusEventQueue publishes and consumes corpus-changed notifications.
type CorpusEventQueue interface {
	PublishCorpusChanged(ctx context.Context, event domain.CorpusEvent) error
	SubscribeCorpusChanged(ctx context.Context, handler func(context.Context, domain.CorpusEvent) error) error
}

// CorpusSource loads normalized documents from an external location.
type CorpusSource interface {
	Load(ctx context.Context) ([]domain.Document, error)
}

// ResultExporter renders a session's results into a downloadable document.
type ResultExporter interface {
	ContentType() string
	Export(w io.Writer, session domain.SessionState) error
}
