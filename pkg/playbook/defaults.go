package playbook

// Reason keys targeted by the built-in keyword groups.
const (
	ReasonTooExpensive     = "too-expensive"
	ReasonNotUsing         = "not-using"
	ReasonFoundAlternative = "found-alternative"
	ReasonTooComplex       = "too-complex"
	ReasonBudgetCuts       = "budget-cuts"
)

// DefaultRules returns the built-in playbook used for tenants without their own.
func DefaultRules() []Rule {
	return []Rule{
		{
			ReasonKey:      ReasonTooExpensive,
			OfferType:      OfferDiscount,
			OfferValue:     "25",
			DurationMonths: 3,
			Message:        "We understand budget is important! How about 25% off for the next 3 months?",
			Priority:       1,
		},
		{
			ReasonKey:  ReasonNotUsing,
			OfferType:  OfferPause,
			OfferValue: "2",
			Message:    "No problem! We can pause your subscription for 2 months so you can come back when ready.",
			Priority:   1,
		},
		{
			ReasonKey:      ReasonFoundAlternative,
			OfferType:      OfferDiscount,
			OfferValue:     "30",
			DurationMonths: 6,
			Message:        "We hate to see you go! How about 30% off for 6 months to reconsider?",
			Priority:       1,
		},
		{
			ReasonKey:  ReasonTooComplex,
			OfferType:  OfferDowngrade,
			OfferValue: "basic",
			Message:    "Let's simplify things! We can move you to our basic plan at 50% off.",
			Priority:   2,
		},
		{
			ReasonKey:  ReasonBudgetCuts,
			OfferType:  OfferPause,
			OfferValue: "3",
			Message:    "We understand! We can pause your subscription for 3 months until things improve.",
			Priority:   1,
		},
	}
}

// DefaultTable returns the built-in table. The default rules are known valid.
func DefaultTable() *Table {
	t, err := NewTable("", DefaultRules())
	if err != nil {
		panic("playbook: built-in rules are invalid: " + err.Error())
	}
	t.builtin = true
	return t
}
