package flowdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const yamlFlow = `
name: intake
mode: extraction
top_k: 3
categories:
  - name: contract
    keywords: ["breach of contract", "agreement"]
nodes:
  - id: has_claim
    text: Is there a claim?
    category: screening
    next_on_answer:
      negative: end
  - id: parties
    text: Who are the parties?
    category: parties
`

const tomlFlow = `
mode = "synthesis"

[[nodes]]
id = "damages"
text = "What damages are claimed?"
category = "damages"

[nodes.next_on_answer]
insufficient = "end"

[[nodes]]
id = "court"
text = "Which court hears the case?"
category = "venue"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "intake.yaml", yamlFlow)
	def, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if def.Name != "intake" || def.TopK != 3 || def.Mode != domain.ModeExtraction {
		t.Fatalf("unexpected flow header %+v", def)
	}
	if len(def.Nodes) != 2 || def.Nodes[0].NextOnAnswer["negative"] != domain.FlowEnd {
		t.Fatalf("unexpected nodes %+v", def.Nodes)
	}
	if len(def.Categories) != 1 || def.Categories[0].Keywords[0] != "breach of contract" {
		t.Fatalf("unexpected categories %+v", def.Categories)
	}
}

func TestLoadFileTOMLTakesNameFromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "damages.toml", tomlFlow)
	def, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if def.Name != "damages" || def.Mode != domain.ModeSynthesis || def.RootID() != "damages" {
		t.Fatalf("unexpected flow %+v", def)
	}
	if def.Nodes[0].NextOnAnswer["insufficient"] != domain.FlowEnd {
		t.Fatalf("expected branch to end, got %v", def.Nodes[0].NextOnAnswer)
	}
}

func TestLoadFileRejectsDanglingTarget(t *testing.T) {
	broken := `
nodes:
  - id: a
    text: First?
    next_on_answer:
      answered: missing
`
	path := writeFile(t, t.TempDir(), "broken.yml", broken)
	if _, err := LoadFile(path); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDecodeRejectsUnknownFieldsAndFormats(t *testing.T) {
	if _, err := Decode(".yaml", []byte("nodez: []\n")); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown yaml field, got %v", err)
	}
	if _, err := Decode(".json", []byte("{}")); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unsupported format, got %v", err)
	}
}

func TestLoadPathDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_intake.yaml", yamlFlow)
	writeFile(t, dir, "a_damages.toml", tomlFlow)
	writeFile(t, dir, "notes.txt", "ignored")

	defs, err := LoadPath(dir)
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "a_damages" || defs[1].Name != "intake" {
		t.Fatalf("unexpected flows %+v", defs)
	}
}
