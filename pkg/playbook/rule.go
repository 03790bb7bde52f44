package playbook

import "strings"

// OfferType identifies the kind of retention incentive a rule proposes.
type OfferType string

const (
	OfferDiscount  OfferType = "discount"
	OfferPause     OfferType = "pause"
	OfferDowngrade OfferType = "downgrade"
	OfferNone      OfferType = "none"

	// OfferNudge is accepted from older widget builds and behaves like OfferNone.
	OfferNudge OfferType = "nudge"
)

// DefaultDiscountMonths is the discount duration used when a rule does not set one.
const DefaultDiscountMonths = 3

// Valid reports whether t is one of the known offer types.
func (t OfferType) Valid() bool {
	switch t {
	case OfferDiscount, OfferPause, OfferDowngrade, OfferNone, OfferNudge:
		return true
	}
	return false
}

// Rule maps a cancellation reason to a retention offer.
// Rules are typically loaded from config/playbooks.yaml or from the store.
type Rule struct {
	ReasonKey      string    `yaml:"reason" json:"reason"`
	OfferType      OfferType `yaml:"offer_type" json:"offerType"`
	OfferValue     string    `yaml:"value" json:"value"`
	Message        string    `yaml:"message" json:"message"`
	Priority       int       `yaml:"priority" json:"priority"`
	DurationMonths int       `yaml:"duration_months,omitempty" json:"durationMonths,omitempty"`

	// Keywords are optional tenant-authored fallback terms, matched
	// case-insensitively against free-text reasons.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// EffectiveDurationMonths returns the discount duration, defaulting when unset.
func (r Rule) EffectiveDurationMonths() int {
	if r.DurationMonths > 0 {
		return r.DurationMonths
	}
	return DefaultDiscountMonths
}

// MatchesKeywords reports whether the lower-cased reason contains any of the
// rule's keywords.
func (r Rule) MatchesKeywords(lowerReason string) bool {
	for _, kw := range r.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lowerReason, kw) {
			return true
		}
	}
	return false
}

func (r Rule) clone() Rule {
	c := r
	if r.Keywords != nil {
		c.Keywords = append([]string(nil), r.Keywords...)
	}
	return c
}
