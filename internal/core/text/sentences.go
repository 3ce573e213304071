package text

import (
	"strings"
	"unicode"
)

// Span is a half-open [Start, End) range of rune offsets.
type Span struct {
	Start int
	End   int
}

func (s Span) Len() int { return s.End - s.Start }

// SentenceSpans splits runes into sentence spans that tile the input with
// no gaps. A sentence ends after terminal punctuation (plus any closing
// quotes or brackets) that is followed by whitespace, or after a line
// break. Trailing whitespace belongs to the sentence it follows.
func SentenceSpans(runes []rune) []Span {
	if len(runes) == 0 {
		return nil
	}

	spans := make([]Span, 0, len(runes)/80+1)
	start := 0
	i := 0
	for i < len(runes) {
		r := runes[i]
		boundary := false
		switch {
		case r == '\n':
			boundary = true
			i++
		case r == '.' || r == '!' || r == '?':
			j := i + 1
			for j < len(runes) && isClosing(runes[j]) {
				j++
			}
			if j == len(runes) || unicode.IsSpace(runes[j]) {
				boundary = true
				i = j
			} else {
				i++
			}
		default:
			i++
		}
		if !boundary {
			continue
		}
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		spans = append(spans, Span{Start: start, End: i})
		start = i
	}
	if start < len(runes) {
		spans = append(spans, Span{Start: start, End: len(runes)})
	}
	return spans
}

// Sentences returns the trimmed, non-empty sentences of s in order.
func Sentences(s string) []string {
	runes := []rune(s)
	spans := SentenceSpans(runes)
	out := make([]string, 0, len(spans))
	for _, span := range spans {
		sentence := strings.TrimSpace(string(runes[span.Start:span.End]))
		if sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	default:
		return false
	}
}
