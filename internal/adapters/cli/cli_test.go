package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/hybrid-qa-engine/internal/config"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const intakeFlow = `name: intake
nodes:
  - id: plaintiff
    text: Who is the plaintiff?
  - id: claim
    text: What is the claim for?
`

func offlineConfig(t *testing.T) func() config.Config {
	t.Helper()
	corpus := t.TempDir()
	writeFile(t, filepath.Join(corpus, "complaint.txt"), "Plaintiff John Doe brings this action for negligence. The claim is for unpaid wages.")
	return func() config.Config {
		cfg := config.Load()
		cfg.RetrievalAlgorithms = []string{"lexical"}
		cfg.OllamaGenModel = ""
		cfg.QADefaultMode = string(domain.ModeExtraction)
		cfg.SnapshotBackend = config.SnapshotBackendNone
		cfg.PostgresDSN = ""
		cfg.NATSURL = ""
		cfg.CorpusDir = corpus
		cfg.FlowPath = ""
		cfg.DefaultFlow = ""
		return cfg
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func execute(t *testing.T, load func() config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(load)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootRegistersSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"ask", "flow", "flows", "publish", "mcp"} {
		found, _, err := cmd.Find([]string{name})
		if err != nil || found.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (%v)", name, found, err)
		}
	}
	if flag := cmd.PersistentFlags().Lookup("dir"); flag == nil || flag.Shorthand != "d" {
		t.Fatalf("expected persistent --dir/-d flag")
	}
}

func TestAskAnswersFromCorpusDirectory(t *testing.T) {
	out, err := execute(t, offlineConfig(t), "ask", "who is the plaintiff")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	if !strings.Contains(out, "John Doe") || !strings.Contains(out, "complaint.txt#000000") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestAskJSONOutput(t *testing.T) {
	out, err := execute(t, offlineConfig(t), "ask", "--json", "who is the plaintiff")
	if err != nil {
		t.Fatalf("ask error = %v", err)
	}
	var result domain.QAResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if result.Mode != domain.ModeExtraction || len(result.Sources) == 0 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAskRequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, offlineConfig(t), "ask")
	if err == nil || !strings.Contains(err.Error(), "accepts 1 arg(s)") {
		t.Fatalf("expected arg count error, got %v", err)
	}
}

func TestAskRejectsUnknownMode(t *testing.T) {
	_, err := execute(t, offlineConfig(t), "ask", "--mode", "poetry", "who is the plaintiff")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFlowRunsToCompletionAndExports(t *testing.T) {
	flows := filepath.Join(t.TempDir(), "intake.yaml")
	writeFile(t, flows, intakeFlow)
	export := filepath.Join(t.TempDir(), "results.xlsx")

	out, err := execute(t, offlineConfig(t), "flow", "intake", "--flows", flows, "--export", export)
	if err != nil {
		t.Fatalf("flow error = %v", err)
	}
	if !strings.Contains(out, "Flow intake (finished)") {
		t.Fatalf("expected finished flow header, got %q", out)
	}
	if !strings.Contains(out, "[1] plaintiff") || !strings.Contains(out, "[2] claim") {
		t.Fatalf("expected both nodes answered, got %q", out)
	}

	f, err := excelize.OpenFile(export)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two results, got %d rows", len(rows))
	}
}

func TestFlowRejectsUnknownName(t *testing.T) {
	flows := filepath.Join(t.TempDir(), "intake.yaml")
	writeFile(t, flows, intakeFlow)

	_, err := execute(t, offlineConfig(t), "flow", "missing", "--flows", flows)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFlowsListsLoadedFlows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "intake.yaml"), intakeFlow)
	writeFile(t, filepath.Join(dir, "damages.toml"), "[[nodes]]\nid = \"amount\"\ntext = \"What amount is claimed?\"\n")

	out, err := execute(t, offlineConfig(t), "flows", "--flows", dir)
	if err != nil {
		t.Fatalf("flows error = %v", err)
	}
	if out != "damages\nintake\n" {
		t.Fatalf("unexpected flow list %q", out)
	}
}

func TestPublishRequiresNATSURL(t *testing.T) {
	_, err := execute(t, offlineConfig(t), "publish")
	if err == nil || !strings.Contains(err.Error(), "NATS_URL") {
		t.Fatalf("expected NATS_URL error, got %v", err)
	}
}
