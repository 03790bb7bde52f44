package offer

import (
	"context"
	"strings"

	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/sirupsen/logrus"
)

// MatchKind records how an offer was chosen.
type MatchKind string

const (
	MatchExact         MatchKind = "exact"
	MatchKeyword       MatchKind = "keyword"
	MatchTenantKeyword MatchKind = "tenant_keyword"
	MatchDefault       MatchKind = "default"
)

// Default offer used when nothing in the playbook matches.
const (
	DefaultOfferValue    = "20"
	DefaultOfferMonths   = 3
	DefaultOfferPriority = 3
	DefaultOfferMessage  = "We'd love to keep you! How about 20% off your next 3 months?"
)

// ResolvedOffer is the offer chosen for a cancellation reason.
type ResolvedOffer struct {
	OfferType      playbook.OfferType `json:"offerType"`
	OfferValue     string             `json:"offerValue"`
	DurationMonths int                `json:"durationMonths"`
	Message        string             `json:"message"`
	Priority       int                `json:"priority"`

	// MatchedReasonKey is nil when the default offer was used.
	MatchedReasonKey *string   `json:"matchedReasonKey"`
	MatchKind        MatchKind `json:"matchKind"`
}

// IsDefault reports whether the offer is the synthesized fallback.
func (o ResolvedOffer) IsDefault() bool {
	return o.MatchedReasonKey == nil
}

// Resolver maps free-text cancellation reasons to offers.
type Resolver struct {
	provider playbook.Provider
	matchers []Matcher
}

// NewResolver creates a resolver. A nil provider serves the built-in table;
// nil matchers means DefaultMatchers.
func NewResolver(provider playbook.Provider, matchers []Matcher) *Resolver {
	if provider == nil {
		provider, _ = playbook.NewStaticProvider(nil)
	}
	if matchers == nil {
		matchers = DefaultMatchers()
	}
	return &Resolver{
		provider: provider,
		matchers: matchers,
	}
}

// Resolve never fails: every reason yields a usable offer.
//
// Resolution order:
//  1. exact, case-sensitive reason key match in the tenant table
//  2. built-in keyword groups, first hit decides (a hit whose target rule is
//     missing goes straight to the default)
//  3. tenant rule keywords, lowest priority wins, then table order
//  4. the default discount
func (r *Resolver) Resolve(ctx context.Context, reason, tenantID string) ResolvedOffer {
	table := r.provider.TableFor(ctx, tenantID)

	if rule, ok := table.Lookup(reason); ok {
		return fromRule(rule, MatchExact)
	}

	lower := strings.ToLower(reason)

	for _, m := range r.matchers {
		if !m.Predicate(lower) {
			continue
		}
		if rule, ok := table.Lookup(m.ReasonKey); ok {
			logrus.Debugf("reason %q matched keyword group %s for tenant %s", reason, m.Name, tenantID)
			return fromRule(rule, MatchKeyword)
		}
		logrus.Debugf("keyword group %s matched but tenant %s has no %s rule", m.Name, tenantID, m.ReasonKey)
		return defaultOffer()
	}

	if rule, ok := bestKeywordRule(table, lower); ok {
		return fromRule(rule, MatchTenantKeyword)
	}

	return defaultOffer()
}

func bestKeywordRule(table *playbook.Table, lowerReason string) (playbook.Rule, bool) {
	var (
		best  playbook.Rule
		found bool
	)
	for _, rule := range table.Rules() {
		if len(rule.Keywords) == 0 || !rule.MatchesKeywords(lowerReason) {
			continue
		}
		if !found || rule.Priority < best.Priority {
			best = rule
			found = true
		}
	}
	return best, found
}

func fromRule(rule playbook.Rule, kind MatchKind) ResolvedOffer {
	key := rule.ReasonKey
	o := ResolvedOffer{
		OfferType:        rule.OfferType,
		OfferValue:       rule.OfferValue,
		Message:          rule.Message,
		Priority:         rule.Priority,
		MatchedReasonKey: &key,
		MatchKind:        kind,
	}
	if rule.OfferType == playbook.OfferDiscount {
		o.DurationMonths = rule.EffectiveDurationMonths()
	}
	return o
}

func defaultOffer() ResolvedOffer {
	return ResolvedOffer{
		OfferType:      playbook.OfferDiscount,
		OfferValue:     DefaultOfferValue,
		DurationMonths: DefaultOfferMonths,
		Message:        DefaultOfferMessage,
		Priority:       DefaultOfferPriority,
		MatchKind:      MatchDefault,
	}
}
