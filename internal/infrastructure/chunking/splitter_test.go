package chunking

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const sampleText = `Plaintiff John Doe alleges negligence against the defendant. The incident occurred on March 3rd at the loading dock.

Defendant denies all allegations. Defendant further asserts that the plaintiff was warned twice! Did the plaintiff sign the waiver? The record is unclear.

Damages sought include medical expenses, lost wages, and punitive damages in an amount to be determined at trial.`

func reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		runes := []rune(c.Text)
		skip := 0
		if i > 0 {
			skip = prevEnd - c.Offset
		}
		b.WriteString(string(runes[skip:]))
		prevEnd = c.Offset + c.Length
	}
	return b.String()
}

func TestSplitRoundTripIsLossless(t *testing.T) {
	inputs := []string{
		sampleText,
		strings.Repeat("word ", 400),
		strings.Repeat("x", 1234),
		"  \n\n  leading blank paragraph then text.\n\n\n",
		"Кириллица тоже работает. Вторая фраза! " + strings.Repeat("ж", 300),
	}
	params := []domain.ChunkingParams{
		{TargetSize: 500, Overlap: 50},
		{TargetSize: 80, Overlap: 20},
		{TargetSize: 40, Overlap: 0},
		{TargetSize: 10, Overlap: 9},
	}

	s := NewSplitter(domain.DefaultChunkingParams())
	for _, input := range inputs {
		for _, p := range params {
			chunks, err := s.Split(domain.Document{ID: "doc", Text: input}, p)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if got := reconstruct(chunks); got != input {
				t.Fatalf("params %+v: round trip mismatch\nwant %q\ngot  %q", p, input, got)
			}
			for _, c := range chunks {
				if strings.TrimSpace(c.Text) == "" {
					t.Fatalf("params %+v: blank chunk %s", p, c.ID)
				}
				if string([]rune(input)[c.Offset:c.Offset+c.Length]) != c.Text {
					t.Fatalf("params %+v: chunk %s offset/length do not match text", p, c.ID)
				}
			}
		}
	}
}

func TestSplitRespectsTargetSize(t *testing.T) {
	s := NewSplitter(domain.DefaultChunkingParams())
	p := domain.ChunkingParams{TargetSize: 120, Overlap: 30}
	chunks, err := s.Split(domain.Document{ID: "doc", Text: sampleText}, p)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Length > p.TargetSize {
			t.Fatalf("chunk %s has %d chars, target %d", c.ID, c.Length, p.TargetSize)
		}
	}
	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].Offset + chunks[i-1].Length
		if overlap := prevEnd - chunks[i].Offset; overlap != p.Overlap {
			t.Fatalf("chunk %d overlap = %d, want %d", i, overlap, p.Overlap)
		}
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(domain.DefaultChunkingParams())
	text := "First paragraph here.\n\nSecond paragraph here."
	chunks, err := s.Split(domain.Document{ID: "d", Text: text}, domain.ChunkingParams{TargetSize: 30, Overlap: 5})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0].Text, "First paragraph") || !strings.HasSuffix(chunks[1].Text, "Second paragraph here.") {
		t.Fatalf("unexpected split: %q | %q", chunks[0].Text, chunks[1].Text)
	}
}

func TestSplitIsDeterministicWithOrderedIDs(t *testing.T) {
	s := NewSplitter(domain.DefaultChunkingParams())
	doc := domain.Document{ID: "case-7", Text: sampleText}
	p := domain.ChunkingParams{TargetSize: 60, Overlap: 10}

	first, err := s.Split(doc, p)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	second, _ := s.Split(doc, p)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("split output is not deterministic")
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].ID >= first[i].ID {
			t.Fatalf("ids not ordered: %s >= %s", first[i-1].ID, first[i].ID)
		}
		if first[i].DocumentID != "case-7" {
			t.Fatalf("unexpected document id %q", first[i].DocumentID)
		}
	}
}

func TestSplitWhitespaceOnlyYieldsNoChunks(t *testing.T) {
	s := NewSplitter(domain.DefaultChunkingParams())
	for _, input := range []string{"", "   ", "\n\n\t \n"} {
		chunks, err := s.Split(domain.Document{ID: "d", Text: input}, domain.ChunkingParams{})
		if err != nil {
			t.Fatalf("Split(%q) error = %v", input, err)
		}
		if len(chunks) != 0 {
			t.Fatalf("Split(%q) = %d chunks, want 0", input, len(chunks))
		}
	}
}

func TestSplitRejectsInvalidParams(t *testing.T) {
	s := NewSplitter(domain.DefaultChunkingParams())
	_, err := s.Split(domain.Document{ID: "d", Text: "text"}, domain.ChunkingParams{TargetSize: 10, Overlap: 10})
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
