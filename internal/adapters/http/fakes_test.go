package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

type corpusFake struct {
	status domain.CorpusStatus
	err    error
	got    domain.CorpusRequest
}

func (f *corpusFake) Build(_ context.Context, req domain.CorpusRequest) (domain.CorpusStatus, error) {
	f.got = req
	if f.err != nil {
		return domain.CorpusStatus{}, f.err
	}
	f.status.Ready = true
	f.status.Documents = len(req.Documents)
	return f.status, nil
}

func (f *corpusFake) Status() domain.CorpusStatus { return f.status }

type queryFake struct {
	err error
	got domain.QueryRequest
}

func (f *queryFake) Answer(_ context.Context, req domain.QueryRequest) (domain.QAResult, error) {
	f.got = req
	if f.err != nil {
		return domain.QAResult{}, f.err
	}
	return domain.QAResult{
		Question:   req.Question,
		Answer:     "Plaintiff John Doe alleges negligence.",
		Confidence: 0.8,
		Sources:    []string{"complaint#000000"},
		Mode:       domain.ModeExtraction,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

type sessionFake struct {
	err     error
	aborted string
}

func (f *sessionFake) state(id string) domain.SessionState {
	return domain.SessionState{ID: id, Flow: "intake", Status: domain.SessionActive, CurrentID: "parties", Results: []domain.QAResult{}}
}

func (f *sessionFake) Start(_ context.Context, flow string) (domain.SessionState, error) {
	if f.err != nil {
		return domain.SessionState{}, f.err
	}
	state := f.state("s-1")
	if flow != "" {
		state.Flow = flow
	}
	return state, nil
}

func (f *sessionFake) Get(_ context.Context, id string) (domain.SessionState, error) {
	if f.err != nil {
		return domain.SessionState{}, f.err
	}
	return f.state(id), nil
}

func (f *sessionFake) Step(_ context.Context, id string) (domain.QAResult, error) {
	if f.err != nil {
		return domain.QAResult{}, f.err
	}
	return domain.QAResult{NodeID: "parties", Question: "Who are the parties?", Answer: "John Doe", Sources: []string{"complaint#000000"}}, nil
}

func (f *sessionFake) Run(_ context.Context, id string) (domain.SessionState, error) {
	if f.err != nil {
		return domain.SessionState{}, f.err
	}
	state := f.state(id)
	state.Status = domain.SessionFinished
	state.CurrentID = ""
	return state, nil
}

func (f *sessionFake) FollowUp(_ context.Context, _ string, req domain.QueryRequest) (domain.QAResult, error) {
	if f.err != nil {
		return domain.QAResult{}, f.err
	}
	return domain.QAResult{Question: req.Question, Answer: "Acme Corp", FollowUp: true}, nil
}

func (f *sessionFake) Abort(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.aborted = id
	return nil
}

func (f *sessionFake) Export(_ context.Context, id string, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "workbook:"+id)
	return err
}

func (f *sessionFake) Flows() []string { return []string{"intake"} }

func (f *sessionFake) ExportContentType() string { return "application/test-sheet" }

type sourceFake struct {
	docs []domain.Document
}

func (f sourceFake) Load(context.Context) ([]domain.Document, error) { return f.docs, nil }

func newTestHandler(opts Options) (http.Handler, *corpusFake, *queryFake, *sessionFake) {
	corpus := &corpusFake{}
	queries := &queryFake{}
	sessions := &sessionFake{}
	return NewRouter(corpus, queries, sessions, opts).Handler(), corpus, queries, sessions
}
