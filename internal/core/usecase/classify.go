package usecase

import (
	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
	"github.com/kirillkom/hybrid-qa-engine/internal/core/text"
)

const (
	CategoryInsufficient = "insufficient"
	CategoryAffirmative  = "affirmative"
	CategoryNegative     = "negative"
	CategoryAnswered     = "answered"
)

var builtinCategoryRules = []domain.CategoryRule{
	{Name: CategoryNegative, Keywords: []string{"no", "not", "never", "none", "neither", "nor", "denied", "denies", "without", "absent"}},
	{Name: CategoryAffirmative, Keywords: []string{"yes", "confirmed", "confirms", "agreed", "agrees", "approved", "granted", "true", "indeed"}},
}

type compiledRule struct {
	name string
	// phrases match when every token of one phrase occurs in the answer.
	phrases [][]string
}

// KeywordClassifier assigns an answer category to a QAResult. Flow rules
// are tried first in declaration order, then the built-in negative and
// affirmative rules; anything else is "answered".
type KeywordClassifier struct {
	analyzer text.Analyzer
	rules    []compiledRule
}

func NewKeywordClassifier(analyzer text.Analyzer, rules []domain.CategoryRule) *KeywordClassifier {
	all := make([]domain.CategoryRule, 0, len(rules)+len(builtinCategoryRules))
	all = append(all, rules...)
	all = append(all, builtinCategoryRules...)

	compiled := make([]compiledRule, 0, len(all))
	for _, rule := range all {
		cr := compiledRule{name: rule.Name}
		for _, kw := range rule.Keywords {
			tokens := analyzer.Tokenize(kw)
			if len(tokens) > 0 {
				cr.phrases = append(cr.phrases, tokens)
			}
		}
		compiled = append(compiled, cr)
	}
	return &KeywordClassifier{analyzer: analyzer, rules: compiled}
}

func (c *KeywordClassifier) Classify(result domain.QAResult) string {
	if result.Insufficient() {
		return CategoryInsufficient
	}
	tokens := c.analyzer.TokenSet(result.Answer)
	for _, rule := range c.rules {
		for _, phrase := range rule.phrases {
			if containsAll(tokens, phrase) {
				return rule.name
			}
		}
	}
	return CategoryAnswered
}

func containsAll(set map[string]struct{}, tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}
