package ports

import (
	"context"
	"io"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

// CorpusService builds the searchable snapshot for one corpus.
type CorpusService interface {
	Build(ctx context.Context, req domain.CorpusRequest) (domain.CorpusStatus, error)
	Status() domain.CorpusStatus
}

// QueryService answers one question against the current snapshot.
type QueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (domain.QAResult, error)
}

// SessionService drives question flows and follow-ups.
type SessionService interface {
	Start(ctx context.Context, flowName string) (domain.SessionState, error)
	Get(ctx context.Context, sessionID string) (domain.SessionState, error)
	Step(ctx context.Context, sessionID string) (domain.QAResult, error)
	Run(ctx context.Context, sessionID string) (domain.SessionState, error)
	FollowUp(ctx context.Context, sessionID string, req domain.QueryRequest) (domain.QAResult, error)
	Abort(ctx context.Context, sessionID string) error
	Export(ctx context.Context, sessionID string, w io.Writer) error
}
