package playbook

import (
	"fmt"
	"strconv"
	"strings"
)

// Table is an immutable, validated rule set for a single tenant.
// It is safe for concurrent use.
type Table struct {
	rules   []Rule
	byKey   map[string]int
	tenant  string
	builtin bool
}

// NewTable validates rules and builds a table for tenantID.
// Rule order is preserved and used as the final tie-break during keyword fallback.
func NewTable(tenantID string, rules []Rule) (*Table, error) {
	t := &Table{
		rules:  make([]Rule, 0, len(rules)),
		byKey:  make(map[string]int, len(rules)),
		tenant: tenantID,
	}

	for i, r := range rules {
		if err := ValidateRule(r); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if _, exists := t.byKey[r.ReasonKey]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReason, r.ReasonKey)
		}
		t.byKey[r.ReasonKey] = len(t.rules)
		t.rules = append(t.rules, r.clone())
	}

	return t, nil
}

// ValidateRule checks a single rule in isolation.
func ValidateRule(r Rule) error {
	if r.ReasonKey == "" {
		return fmt.Errorf("%w: empty reason key", ErrInvalidRule)
	}
	if !r.OfferType.Valid() {
		return fmt.Errorf("%w: reason %s has unknown offer type %q", ErrInvalidRule, r.ReasonKey, r.OfferType)
	}
	if r.Priority < 0 {
		return fmt.Errorf("%w: reason %s has negative priority", ErrInvalidRule, r.ReasonKey)
	}
	if r.DurationMonths < 0 {
		return fmt.Errorf("%w: reason %s has negative duration", ErrInvalidRule, r.ReasonKey)
	}

	switch r.OfferType {
	case OfferDiscount:
		pct, err := strconv.Atoi(strings.TrimSpace(r.OfferValue))
		if err != nil || pct <= 0 || pct > 100 {
			return fmt.Errorf("%w: reason %s discount value %q must be a percentage in 1-100", ErrInvalidRule, r.ReasonKey, r.OfferValue)
		}
	case OfferPause:
		months, err := strconv.Atoi(strings.TrimSpace(r.OfferValue))
		if err != nil || months <= 0 {
			return fmt.Errorf("%w: reason %s pause value %q must be a positive month count", ErrInvalidRule, r.ReasonKey, r.OfferValue)
		}
	case OfferDowngrade:
		if strings.TrimSpace(r.OfferValue) == "" {
			return fmt.Errorf("%w: reason %s downgrade needs a plan name", ErrInvalidRule, r.ReasonKey)
		}
	}

	return nil
}

// Lookup returns the rule whose reason key equals key exactly.
func (t *Table) Lookup(key string) (Rule, bool) {
	idx, ok := t.byKey[key]
	if !ok {
		return Rule{}, false
	}
	return t.rules[idx].clone(), true
}

// Rules returns a copy of the rules in table order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.clone()
	}
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// TenantID returns the tenant the table was loaded for.
func (t *Table) TenantID() string {
	return t.tenant
}

// Builtin reports whether the table is the built-in fallback.
func (t *Table) Builtin() bool {
	return t.builtin
}
