package plaintext

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func writeCorpusFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestDirSourceLoadsSupportedFilesInIDOrder(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "pleadings/complaint.txt", "  Plaintiff John Doe alleges negligence.\n")
	writeCorpusFile(t, root, "answer.md", "# Answer\nDefendant denies all allegations.")
	writeCorpusFile(t, root, "exhibit.pdf", "%PDF-1.4")
	writeCorpusFile(t, root, ".drafts/secret.txt", "hidden")
	writeCorpusFile(t, root, "empty.txt", "   \n")

	docs, err := NewDirSource(root).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %+v", docs)
	}
	if docs[0].ID != "answer.md" || docs[1].ID != "pleadings/complaint.txt" {
		t.Fatalf("unexpected document order %s, %s", docs[0].ID, docs[1].ID)
	}
	if docs[1].Text != "Plaintiff John Doe alleges negligence." {
		t.Fatalf("expected trimmed text, got %q", docs[1].Text)
	}
}

func TestDirSourceRejectsBinaryText(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "broken.txt", string([]byte{0xff, 0xfe, 0x00}))

	_, err := NewDirSource(root).Load(context.Background())
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDirSourceRequiresDirectory(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "file.txt", "text")

	if _, err := NewDirSource(filepath.Join(root, "missing")).Load(context.Background()); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing dir, got %v", err)
	}
	if _, err := NewDirSource(filepath.Join(root, "file.txt")).Load(context.Background()); !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for a file root, got %v", err)
	}
}
