package offer

import (
	"strings"

	"github.com/churnai/retention-engine/pkg/playbook"
)

// Matcher is one (predicate, outcome) pair of the keyword fallback.
// Predicates receive the lower-cased reason.
type Matcher struct {
	Name      string
	Predicate func(lowerReason string) bool
	ReasonKey string
}

// KeywordMatcher matches when the reason contains any of keywords.
func KeywordMatcher(name, reasonKey string, keywords ...string) Matcher {
	kws := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kws = append(kws, strings.ToLower(kw))
	}

	return Matcher{
		Name:      name,
		ReasonKey: reasonKey,
		Predicate: func(lowerReason string) bool {
			for _, kw := range kws {
				if strings.Contains(lowerReason, kw) {
					return true
				}
			}
			return false
		},
	}
}

// DefaultMatchers returns the built-in keyword groups in evaluation order.
// Order matters: the first group that matches decides the outcome.
func DefaultMatchers() []Matcher {
	return []Matcher{
		KeywordMatcher("price", playbook.ReasonTooExpensive, "expensive", "cost", "price"),
		KeywordMatcher("usage", playbook.ReasonNotUsing, "using", "need"),
		KeywordMatcher("competition", playbook.ReasonFoundAlternative, "alternative", "competitor"),
	}
}
