package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

type SessionOption func(*SessionUseCase)

func WithResultRepository(repo ports.ResultRepository) SessionOption {
	return func(uc *SessionUseCase) { uc.results = repo }
}

func WithResultExporter(exporter ports.ResultExporter) SessionOption {
	return func(uc *SessionUseCase) { uc.exporter = exporter }
}

func WithDefaultFlow(name string) SessionOption {
	return func(uc *SessionUseCase) { uc.defaultFlow = name }
}

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(uc *SessionUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithSessionAnalyzer(a text.Analyzer) SessionOption {
	return func(uc *SessionUseCase) { uc.analyzer = a }
}

type flowEntry struct {
	def        domain.FlowDefinition
	classifier *KeywordClassifier
}

// session holds the mutable state of one flow run. mu guards every field
// below it and is never held while a question is being answered.
type session struct {
	flow   *flowEntry
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    domain.SessionState
	stepping bool
	seq      int
}

func (s *session) snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Results = append([]domain.QAResult(nil), s.state.Results...)
	return out
}

// appendResult records a finished answer and returns its sequence number.
func (s *session) appendResult(result domain.QAResult) int {
	seq := s.seq
	s.seq++
	s.state.Results = append(s.state.Results, result)
	s.state.UpdatedAt = time.Now().UTC()
	return seq
}

// SessionUseCase runs question flows against a QueryService and keeps
// sessions in memory keyed by UUID.
type SessionUseCase struct {
	queries     ports.QueryService
	flows       map[string]*flowEntry
	defaultFlow string
	results     ports.ResultRepository
	exporter    ports.ResultExporter
	analyzer    text.Analyzer
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionUseCase validates every flow up front; a broken flow never
// reaches a session.
func NewSessionUseCase(queries ports.QueryService, flows []domain.FlowDefinition, opts ...SessionOption) (*SessionUseCase, error) {
	uc := &SessionUseCase{
		queries:  queries,
		flows:    make(map[string]*flowEntry, len(flows)),
		analyzer: text.DefaultAnalyzer,
		logger:   slog.Default(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(uc)
	}

	for _, def := range flows {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("flow %q: %w", def.Name, err)
		}
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "register flow", errors.New("flow name is required"))
		}
		if _, dup := uc.flows[name]; dup {
			return nil, domain.WrapError(domain.ErrInvalidConfig, "register flow", fmt.Errorf("duplicate flow %q", name))
		}
		uc.flows[name] = &flowEntry{def: def, classifier: NewKeywordClassifier(uc.analyzer, def.Categories)}
	}
	if uc.defaultFlow == "" && len(flows) == 1 {
		uc.defaultFlow = strings.TrimSpace(flows[0].Name)
	}
	return uc, nil
}

// Flows lists registered flow names in sorted order.
func (uc *SessionUseCase) Flows() []string {
	names := make([]string, 0, len(uc.flows))
	for name := range uc.flows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (uc *SessionUseCase) Start(_ context.Context, flowName string) (domain.SessionState, error) {
	const op = "start session"
	name := strings.TrimSpace(flowName)
	if name == "" {
		name = uc.defaultFlow
	}
	entry, ok := uc.flows[name]
	if !ok {
		return domain.SessionState{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unknown flow %q", flowName))
	}

	// Sessions outlive the request that created them; Abort cancels this.
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	s := &session{
		flow:   entry,
		ctx:    ctx,
		cancel: cancel,
		state: domain.SessionState{
			ID:        uuid.NewString(),
			Flow:      name,
			Status:    domain.SessionActive,
			CurrentID: entry.def.RootID(),
			Results:   []domain.QAResult{},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	uc.mu.Lock()
	uc.sessions[s.state.ID] = s
	uc.mu.Unlock()

	uc.logger.Info("session_started", "session_id", s.state.ID, "flow", name, "root", s.state.CurrentID)
	return s.snapshot(), nil
}

func (uc *SessionUseCase) lookup(op, id string) (*session, error) {
	uc.mu.RLock()
	s, ok := uc.sessions[id]
	uc.mu.RUnlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, op, fmt.Errorf("session %q", id))
	}
	return s, nil
}

func (uc *SessionUseCase) Get(_ context.Context, sessionID string) (domain.SessionState, error) {
	s, err := uc.lookup("get session", sessionID)
	if err != nil {
		return domain.SessionState{}, err
	}
	return s.snapshot(), nil
}

// Step answers the current node and advances the flow.
func (uc *SessionUseCase) Step(ctx context.Context, sessionID string) (domain.QAResult, error) {
	const op = "step session"
	s, err := uc.lookup(op, sessionID)
	if err != nil {
		return domain.QAResult{}, err
	}

	s.mu.Lock()
	if s.state.Status != domain.SessionActive {
		status := s.state.Status
		s.mu.Unlock()
		return domain.QAResult{}, domain.WrapError(domain.ErrFlowFinished, op, fmt.Errorf("session is %s", status))
	}
	if s.stepping {
		s.mu.Unlock()
		return domain.QAResult{}, domain.WrapError(domain.ErrStepInProgress, op, fmt.Errorf("session %q", sessionID))
	}
	s.stepping = true
	def := s.flow.def
	node := def.Nodes[def.IndexOf(s.state.CurrentID)]
	s.mu.Unlock()

	result, answerErr := uc.ask(ctx, s, domain.QueryRequest{
		Question: node.Text,
		TopK:     def.TopK,
		Mode:     def.Mode,
	})

	s.mu.Lock()
	s.stepping = false
	if answerErr != nil {
		s.mu.Unlock()
		return domain.QAResult{}, fmt.Errorf("%s: node %s: %w", op, node.ID, answerErr)
	}
	if s.state.Status != domain.SessionActive {
		s.mu.Unlock()
		return domain.QAResult{}, domain.WrapError(domain.ErrFlowFinished, op, fmt.Errorf("session was %s during the step", s.state.Status))
	}

	result.NodeID = node.ID
	result.Category = node.Category
	result.AnswerCategory = s.flow.classifier.Classify(result)
	seq := s.appendResult(result)
	next := nextNode(def, node, result.AnswerCategory)
	if next == "" {
		s.state.Status = domain.SessionFinished
		s.state.CurrentID = ""
	} else {
		s.state.CurrentID = next
	}
	finished := s.state.Status == domain.SessionFinished
	s.mu.Unlock()

	uc.logger.Info("session_step",
		"session_id", sessionID,
		"node_id", node.ID,
		"answer_category", result.AnswerCategory,
		"next", next,
		"finished", finished,
	)
	uc.persist(ctx, sessionID, seq, result)
	return result, nil
}

// nextNode returns "" when the flow is over.
func nextNode(def domain.FlowDefinition, node domain.QuestionNode, category string) string {
	if target, ok := node.NextOnAnswer[category]; ok {
		if target == domain.FlowEnd {
			return ""
		}
		return target
	}
	i := def.IndexOf(node.ID) + 1
	if i >= len(def.Nodes) {
		return ""
	}
	return def.Nodes[i].ID
}

// Run steps the session until it reaches a terminal node.
func (uc *SessionUseCase) Run(ctx context.Context, sessionID string) (domain.SessionState, error) {
	s, err := uc.lookup("run session", sessionID)
	if err != nil {
		return domain.SessionState{}, err
	}
	for {
		state := s.snapshot()
		if state.Status != domain.SessionActive {
			return state, nil
		}
		if _, err := uc.Step(ctx, sessionID); err != nil {
			return s.snapshot(), err
		}
	}
}

// FollowUp answers an ad-hoc question without moving the flow. Finished
// sessions still accept follow-ups; aborted ones do not.
func (uc *SessionUseCase) FollowUp(ctx context.Context, sessionID string, req domain.QueryRequest) (domain.QAResult, error) {
	const op = "follow-up"
	s, err := uc.lookup(op, sessionID)
	if err != nil {
		return domain.QAResult{}, err
	}
	if strings.TrimSpace(req.Question) == "" {
		return domain.QAResult{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("question is required"))
	}

	s.mu.Lock()
	if s.state.Status == domain.SessionAborted {
		s.mu.Unlock()
		return domain.QAResult{}, domain.WrapError(domain.ErrFlowFinished, op, errors.New("session was aborted"))
	}
	def := s.flow.def
	s.mu.Unlock()

	if req.Mode == "" {
		req.Mode = def.Mode
	}
	if req.TopK == 0 {
		req.TopK = def.TopK
	}
	result, err := uc.ask(ctx, s, req)
	if err != nil {
		return domain.QAResult{}, fmt.Errorf("%s: %w", op, err)
	}
	result.FollowUp = true
	result.AnswerCategory = s.flow.classifier.Classify(result)

	s.mu.Lock()
	if s.state.Status == domain.SessionAborted {
		s.mu.Unlock()
		return domain.QAResult{}, domain.WrapError(domain.ErrFlowFinished, op, errors.New("session was aborted"))
	}
	seq := s.appendResult(result)
	s.mu.Unlock()

	uc.persist(ctx, sessionID, seq, result)
	return result, nil
}

// ask runs one question under a context that ends with either the caller's
// ctx or the session.
func (uc *SessionUseCase) ask(ctx context.Context, s *session, req domain.QueryRequest) (domain.QAResult, error) {
	askCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	return uc.queries.Answer(askCtx, req)
}

// Abort cancels in-flight questions of the session. Results collected so
// far stay readable.
func (uc *SessionUseCase) Abort(_ context.Context, sessionID string) error {
	s, err := uc.lookup("abort session", sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state.Status == domain.SessionActive {
		s.state.Status = domain.SessionAborted
		s.state.UpdatedAt = time.Now().UTC()
	}
	s.mu.Unlock()
	s.cancel()
	uc.logger.Info("session_aborted", "session_id", sessionID)
	return nil
}

func (uc *SessionUseCase) Export(_ context.Context, sessionID string, w io.Writer) error {
	const op = "export session"
	if uc.exporter == nil {
		return domain.WrapError(domain.ErrInvalidConfig, op, errors.New("no exporter configured"))
	}
	s, err := uc.lookup(op, sessionID)
	if err != nil {
		return err
	}
	if err := uc.exporter.Export(w, s.snapshot()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ExportContentType is the media type Export writes, or "" without an exporter.
func (uc *SessionUseCase) ExportContentType() string {
	if uc.exporter == nil {
		return ""
	}
	return uc.exporter.ContentType()
}

func (uc *SessionUseCase) persist(ctx context.Context, sessionID string, seq int, result domain.QAResult) {
	if uc.results == nil {
		return
	}
	if err := uc.results.AppendResult(context.WithoutCancel(ctx), sessionID, seq, result); err != nil {
		uc.logger.Warn("session_result_persist_failed", "session_id", sessionID, "seq", seq, "error", err)
	}
}
