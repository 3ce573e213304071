// Package text holds the tokenization and sentence segmentation shared by
// indexing, querying and answer extraction.
package text

import (
	"strings"
	"unicode"
)

// Analyzer turns text into index terms. Stem, when set, is applied to every
// token at both index and query time.
type Analyzer struct {
	Stem func(string) string
}

// DefaultAnalyzer lowercases and splits on anything that is not a letter or digit.
var DefaultAnalyzer = Analyzer{}

func (a Analyzer) Tokenize(s string) []string {
	tokens := splitAlphaNumLower(s)
	if a.Stem == nil {
		return tokens
	}
	out := tokens[:0]
	for _, token := range tokens {
		if stemmed := a.Stem(token); stemmed != "" {
			out = append(out, stemmed)
		}
	}
	return out
}

// Keywords returns the distinct non-stop-word terms of s in first-seen
// order. When every token is a stop word, all distinct tokens are returned
// so that a question is never left without keywords.
func (a Analyzer) Keywords(s string) []string {
	tokens := splitAlphaNumLower(s)
	keep := func(filter bool) []string {
		seen := make(map[string]struct{}, len(tokens))
		out := make([]string, 0, len(tokens))
		for _, token := range tokens {
			if filter {
				if _, stop := stopWords[token]; stop {
					continue
				}
			}
			if a.Stem != nil {
				token = a.Stem(token)
				if token == "" {
					continue
				}
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, token)
		}
		return out
	}

	if out := keep(true); len(out) > 0 {
		return out
	}
	return keep(false)
}

// TokenSet is Tokenize collapsed into a set.
func (a Analyzer) TokenSet(s string) map[string]struct{} {
	tokens := a.Tokenize(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

var stopWords = func() map[string]struct{} {
	words := []string{
		"a", "about", "all", "an", "and", "any", "are", "as", "at", "be", "been", "by",
		"can", "did", "do", "does", "for", "from", "had", "has", "have", "how", "i",
		"if", "in", "into", "is", "it", "its", "me", "my", "of", "on", "or", "our",
		"so", "that", "the", "their", "them", "there", "these", "they", "this", "those",
		"to", "was", "we", "were", "what", "when", "where", "which", "who", "whom",
		"whose", "why", "will", "with", "would", "you", "your",
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}()

// IsStopWord reports whether token is ignored when extracting keywords.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
