package usecase

import (
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

const defaultAnswerBudget = 600

type sentenceCandidate struct {
	rank     int
	position int
	chunkID  string
	text     string
	matched  []string
}

// extractAnswer builds a deterministic answer from the sentences of the
// ranked chunks that share the most keywords with the question.
func extractAnswer(analyzer text.Analyzer, question string, chunks []domain.ScoredChunk, budget int) domain.QAResult {
	if budget <= 0 {
		budget = defaultAnswerBudget
	}
	keywords := analyzer.Keywords(question)
	if len(chunks) == 0 || len(keywords) == 0 {
		return domain.NewInsufficientResult(question, domain.ModeExtraction)
	}

	seen := make(map[string]struct{})
	candidates := make([]sentenceCandidate, 0, len(chunks)*4)
	for rank, sc := range chunks {
		if sc.Chunk == nil {
			continue
		}
		for pos, sentence := range text.Sentences(sc.Chunk.Text) {
			// Overlapping chunks repeat sentences; keep the best-ranked copy.
			if _, dup := seen[sentence]; dup {
				continue
			}
			tokens := analyzer.TokenSet(sentence)
			matched := make([]string, 0, len(keywords))
			for _, kw := range keywords {
				if _, ok := tokens[kw]; ok {
					matched = append(matched, kw)
				}
			}
			if len(matched) == 0 {
				continue
			}
			seen[sentence] = struct{}{}
			candidates = append(candidates, sentenceCandidate{
				rank:     rank,
				position: pos,
				chunkID:  sc.ChunkID,
				text:     sentence,
				matched:  matched,
			})
		}
	}
	if len(candidates) == 0 {
		return domain.NewInsufficientResult(question, domain.ModeExtraction)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].matched) != len(candidates[j].matched) {
			return len(candidates[i].matched) > len(candidates[j].matched)
		}
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].position < candidates[j].position
	})

	selected := make([]sentenceCandidate, 0, 4)
	used := 0
	for _, c := range candidates {
		n := len([]rune(c.text))
		if len(selected) > 0 {
			n++
		}
		if used+n > budget {
			if len(selected) == 0 {
				c.text = string([]rune(c.text)[:budget])
				selected = append(selected, c)
				break
			}
			continue
		}
		selected = append(selected, c)
		used += n
	}

	covered := make(map[string]struct{}, len(keywords))
	parts := make([]string, 0, len(selected))
	contributing := make(map[string]int, len(selected))
	for _, c := range selected {
		parts = append(parts, c.text)
		for _, kw := range c.matched {
			covered[kw] = struct{}{}
		}
		if r, ok := contributing[c.chunkID]; !ok || c.rank < r {
			contributing[c.chunkID] = c.rank
		}
	}

	sources := make([]string, 0, len(contributing))
	for id := range contributing {
		sources = append(sources, id)
	}
	sort.Slice(sources, func(i, j int) bool {
		return contributing[sources[i]] < contributing[sources[j]]
	})

	return domain.QAResult{
		Question:   question,
		Answer:     strings.Join(parts, " "),
		Confidence: float64(len(covered)) / float64(len(keywords)),
		Sources:    sources,
		Mode:       domain.ModeExtraction,
		CreatedAt:  time.Now().UTC(),
	}
}
