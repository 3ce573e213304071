package lexical

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

func testChunks() []domain.Chunk {
	texts := []string{
		"plaintiff John Doe alleges negligence",
		"defendant denies all allegations",
		"the court scheduled a hearing for the motion to dismiss",
		"negligence requires a duty of care and a breach of that duty",
		"the defendant filed a motion to dismiss the complaint",
	}
	out := make([]domain.Chunk, 0, len(texts))
	for i, t := range texts {
		out = append(out, domain.Chunk{ID: fmt.Sprintf("doc#%04d", i), DocumentID: "doc", Text: t})
	}
	return out
}

func mustBuild(t *testing.T, chunks []domain.Chunk) *Index {
	t.Helper()
	idx, err := Build(context.Background(), chunks, DefaultParams(), text.DefaultAnalyzer)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return idx
}

func topID(scores map[string]float64) string {
	best := ""
	bestScore := -1.0
	for id, s := range scores {
		if s > bestScore || (s == bestScore && id < best) {
			best, bestScore = id, s
		}
	}
	return best
}

func TestScoreExactChunkTextRanksChunkFirst(t *testing.T) {
	chunks := testChunks()
	idx := mustBuild(t, chunks)

	for _, chunk := range chunks {
		scores := idx.Score(chunk.Text)
		if got := topID(scores); got != chunk.ID {
			t.Fatalf("query %q: expected %s on top, got %s (%v)", chunk.Text, chunk.ID, got, scores)
		}
	}
}

func TestScoreUnmatchedQueryReturnsEmptyMap(t *testing.T) {
	idx := mustBuild(t, testChunks())
	scores := idx.Score("zebra xylophone")
	if scores == nil || len(scores) != 0 {
		t.Fatalf("expected empty non-nil map, got %v", scores)
	}
}

func TestScoreTermInEveryChunkStaysPositive(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "a", Text: "contract clause one"},
		{ID: "b", Text: "contract clause two"},
		{ID: "c", Text: "contract appendix"},
	}
	idx := mustBuild(t, chunks)
	scores := idx.Score("contract")
	if len(scores) != 3 {
		t.Fatalf("expected all chunks to match, got %v", scores)
	}
	for id, s := range scores {
		if s <= 0 {
			t.Fatalf("chunk %s scored %v, expected positive", id, s)
		}
	}
}

func TestBuildRejectsDuplicateChunkIDs(t *testing.T) {
	_, err := Build(context.Background(), []domain.Chunk{{ID: "x", Text: "a"}, {ID: "x", Text: "b"}}, DefaultParams(), text.DefaultAnalyzer)
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEmptyIndexScoresNothing(t *testing.T) {
	idx := mustBuild(t, nil)
	if got := idx.Score("anything"); len(got) != 0 {
		t.Fatalf("expected no scores, got %v", got)
	}
}

func TestStateRoundTripProducesIdenticalScores(t *testing.T) {
	idx := mustBuild(t, testChunks())

	raw, err := json.Marshal(idx.State())
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	restored, err := FromState(state, text.DefaultAnalyzer)
	if err != nil {
		t.Fatalf("FromState() error = %v", err)
	}

	for _, q := range []string{"negligence", "motion to dismiss", "defendant denies"} {
		want := idx.Score(q)
		got := restored.Score(q)
		if len(want) != len(got) {
			t.Fatalf("query %q: result size %d != %d", q, len(got), len(want))
		}
		for id, s := range want {
			if got[id] != s {
				t.Fatalf("query %q chunk %s: restored score %v != %v", q, id, got[id], s)
			}
		}
	}
}
