package chunking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

// Splitter cuts documents at paragraph, then sentence, then character
// boundaries. Every chunk after the first repeats up to Overlap characters
// of the text before it.
type Splitter struct {
	defaults domain.ChunkingParams
}

func NewSplitter(defaults domain.ChunkingParams) *Splitter {
	if defaults.Validate() != nil {
		defaults = domain.DefaultChunkingParams()
	}
	return &Splitter{defaults: defaults}
}

// Split is deterministic for identical input. Whitespace-only text yields
// no chunks. Zero params fall back to the splitter defaults.
func (s *Splitter) Split(doc domain.Document, params domain.ChunkingParams) ([]domain.Chunk, error) {
	if params == (domain.ChunkingParams{}) {
		params = s.defaults
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	runes := []rune(doc.Text)
	budget := params.TargetSize - params.Overlap

	units := make([]text.Span, 0, 16)
	for _, para := range paragraphSpans(runes) {
		if para.Len() <= budget {
			units = append(units, para)
			continue
		}
		for _, sentence := range sentenceSpans(runes, para) {
			if sentence.Len() <= budget {
				units = append(units, sentence)
				continue
			}
			units = append(units, hardSplit(runes, sentence, budget)...)
		}
	}

	cores := absorbBlank(runes, pack(runes, units, budget))

	chunks := make([]domain.Chunk, 0, len(cores))
	for i, core := range cores {
		start := core.Start
		if i > 0 {
			start = max(0, core.Start-params.Overlap)
		}
		chunks = append(chunks, domain.Chunk{
			ID:         fmt.Sprintf("%s#%06d", doc.ID, i),
			DocumentID: doc.ID,
			Text:       string(runes[start:core.End]),
			Offset:     start,
			Length:     core.End - start,
		})
	}
	return chunks, nil
}

// paragraphSpans tiles runes into paragraphs; a whitespace run holding two
// or more line breaks closes the paragraph it follows.
func paragraphSpans(runes []rune) []text.Span {
	spans := make([]text.Span, 0, 8)
	start := 0
	i := 0
	for i < len(runes) {
		if runes[i] != '\n' {
			i++
			continue
		}
		j := i
		newlines := 0
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			if runes[j] == '\n' {
				newlines++
			}
			j++
		}
		if newlines >= 2 {
			spans = append(spans, text.Span{Start: start, End: j})
			start = j
		}
		i = j
	}
	if start < len(runes) {
		spans = append(spans, text.Span{Start: start, End: len(runes)})
	}
	return spans
}

func sentenceSpans(runes []rune, within text.Span) []text.Span {
	local := text.SentenceSpans(runes[within.Start:within.End])
	for i := range local {
		local[i].Start += within.Start
		local[i].End += within.Start
	}
	return local
}

// hardSplit cuts an oversized span into pieces of at most budget runes,
// preferring the last whitespace in the second half of each window.
func hardSplit(runes []rune, span text.Span, budget int) []text.Span {
	out := make([]text.Span, 0, span.Len()/budget+1)
	start := span.Start
	for start < span.End {
		end := start + budget
		if end >= span.End {
			out = append(out, text.Span{Start: start, End: span.End})
			break
		}
		for k := end; k > start+budget/2; k-- {
			if unicode.IsSpace(runes[k-1]) {
				end = k
				break
			}
		}
		out = append(out, text.Span{Start: start, End: end})
		start = end
	}
	return out
}

// pack greedily merges consecutive units while they fit the budget.
// Whitespace-only units always join the current span.
func pack(runes []rune, units []text.Span, budget int) []text.Span {
	out := make([]text.Span, 0, len(units))
	var cur text.Span
	open := false
	for _, u := range units {
		switch {
		case !open:
			cur, open = u, true
		case cur.Len()+u.Len() <= budget || isBlank(runes, u):
			cur.End = u.End
		default:
			out = append(out, cur)
			cur = u
		}
	}
	if open {
		out = append(out, cur)
	}
	return out
}

// absorbBlank folds whitespace-only spans into a neighbour so that no
// chunk is blank while the spans still tile the text.
func absorbBlank(runes []rune, spans []text.Span) []text.Span {
	out := make([]text.Span, 0, len(spans))
	pending := -1
	for _, span := range spans {
		if isBlank(runes, span) {
			if len(out) > 0 {
				out[len(out)-1].End = span.End
			} else if pending < 0 {
				pending = span.Start
			}
			continue
		}
		if pending >= 0 {
			span.Start = pending
			pending = -1
		}
		out = append(out, span)
	}
	return out
}

func isBlank(runes []rune, span text.Span) bool {
	for _, r := range runes[span.Start:span.End] {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
