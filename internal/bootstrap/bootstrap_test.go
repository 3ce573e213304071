package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/config"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/ports"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.RetrievalAlgorithms = []string{"lexical"}
	cfg.OllamaGenModel = ""
	cfg.SnapshotBackend = config.SnapshotBackendFile
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "snapshots")
	cfg.PostgresDSN = ""
	cfg.NATSURL = ""
	cfg.CorpusDir = t.TempDir()
	cfg.CorpusWatch = false
	cfg.FlowPath = ""
	return cfg
}

func TestAppBuildsFromSourceAndAnswers(t *testing.T) {
	cfg := offlineConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.CorpusDir, "complaint.txt"), []byte("Plaintiff John Doe brings this action for negligence."), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	ctx := context.Background()
	app, err := New(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	status, err := app.BuildFromSource(ctx, "test")
	if err != nil {
		t.Fatalf("BuildFromSource() error = %v", err)
	}
	if !status.Ready || status.Documents != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	result, err := app.Queries.Answer(ctx, domain.QueryRequest{Question: "who is the plaintiff"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(result.Answer, "John Doe") {
		t.Fatalf("expected extracted answer, got %q", result.Answer)
	}

	entries, err := os.ReadDir(cfg.SnapshotPath)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one persisted snapshot, got %v (%v)", entries, err)
	}
}

func TestAppLoadsFlows(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.FlowPath = filepath.Join(t.TempDir(), "intake.yaml")
	flow := "nodes:\n  - id: parties\n    text: Who are the parties?\n"
	if err := os.WriteFile(cfg.FlowPath, []byte(flow), 0o644); err != nil {
		t.Fatalf("write flow: %v", err)
	}

	app, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if flows := app.Sessions.Flows(); len(flows) != 1 || flows[0] != "intake" {
		t.Fatalf("unexpected flows %v", flows)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.ChunkOverlap = cfg.ChunkTargetSize
	if _, err := New(context.Background(), cfg, Options{}); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuildFromSourceRequiresCorpusDir(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.CorpusDir = ""
	app, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if _, err := app.BuildFromSource(context.Background(), "test"); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// gatedSource holds its first load open until release is closed.
type gatedSource struct {
	inner   ports.CorpusSource
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *gatedSource) Load(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.inner.Load(ctx)
	if s.calls.Add(1) == 1 {
		close(s.started)
		<-s.release
	}
	return docs, err
}

func TestCorpusEventDuringRebuildIsQueued(t *testing.T) {
	cfg := offlineConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.CorpusDir, "complaint.txt"), []byte("Plaintiff John Doe brings this action for negligence."), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	ctx := context.Background()
	app, err := New(ctx, cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	source := &gatedSource{inner: app.source, started: make(chan struct{}), release: make(chan struct{})}
	app.source = source

	type outcome struct {
		status domain.CorpusStatus
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		status, err := app.BuildFromSource(ctx, "startup")
		done <- outcome{status, err}
	}()
	<-source.started

	if err := os.WriteFile(filepath.Join(cfg.CorpusDir, "answer.txt"), []byte("Defendant Acme Corp denies every allegation."), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	event := domain.CorpusEvent{Source: cfg.CorpusDir, Reason: "answer.txt"}
	if err := app.HandleCorpusEvent(ctx, "watch", event); err != nil {
		t.Fatalf("HandleCorpusEvent() error = %v", err)
	}
	close(source.release)

	var got outcome
	select {
	case got = <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("rebuild did not finish")
	}
	if got.err != nil {
		t.Fatalf("BuildFromSource() error = %v", got.err)
	}
	if calls := source.calls.Load(); calls != 2 {
		t.Fatalf("expected the queued event to reload the source, got %d loads", calls)
	}
	if got.status.Documents != 2 || app.Corpus.Status().Documents != 2 {
		t.Fatalf("expected both documents indexed, got %+v", got.status)
	}
}

func TestBuildFromSourceAfterQueuedRebuildRunsAgain(t *testing.T) {
	cfg := offlineConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.CorpusDir, "complaint.txt"), []byte("Plaintiff John Doe brings this action."), 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	app, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	for i := 0; i < 2; i++ {
		if _, err := app.BuildFromSource(context.Background(), "manual"); err != nil {
			t.Fatalf("BuildFromSource() #%d error = %v", i+1, err)
		}
	}
	if app.rebuildPending.Load() {
		t.Fatalf("no rebuild should stay pending after sequential builds")
	}
}
