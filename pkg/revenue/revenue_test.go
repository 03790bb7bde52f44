package revenue

import (
	"errors"
	"testing"

	"github.com/churnai/retention-engine/pkg/playbook"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		offerType playbook.OfferType
		terms     Terms
		monthly   int64
		expected  int64
	}{
		{"discount 25% for 3 months", playbook.OfferDiscount, Terms{Percent: 25, Months: 3}, 10000, 7500},
		{"discount at 99.00", playbook.OfferDiscount, Terms{Percent: 25, Months: 3}, 9900, 7425},
		{"discount rounds half up once", playbook.OfferDiscount, Terms{Percent: 30, Months: 6}, 999, 1798},
		{"discount capped at 100%", playbook.OfferDiscount, Terms{Percent: 150, Months: 1}, 5000, 5000},
		{"pause 2 months", playbook.OfferPause, Terms{Months: 2}, 5000, 10000},
		{"downgrade", playbook.OfferDowngrade, Terms{}, 5000, 0},
		{"none", playbook.OfferNone, Terms{}, 5000, 0},
		{"nudge", playbook.OfferNudge, Terms{}, 5000, 0},
		{"negative monthly", playbook.OfferPause, Terms{Months: 2}, -100, 0},
		{"negative months", playbook.OfferDiscount, Terms{Percent: 20, Months: -3}, 5000, 0},
		{"unknown type", playbook.OfferType("refund"), Terms{Percent: 10, Months: 1}, 5000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.offerType, tt.terms, tt.monthly); got != tt.expected {
				t.Errorf("Compute() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestParseTerms(t *testing.T) {
	tests := []struct {
		name      string
		offerType playbook.OfferType
		value     string
		duration  int
		expected  Terms
		wantErr   bool
	}{
		{"discount with duration", playbook.OfferDiscount, "25", 6, Terms{Percent: 25, Months: 6}, false},
		{"discount default duration", playbook.OfferDiscount, "20", 0, Terms{Percent: 20, Months: 3}, false},
		{"pause", playbook.OfferPause, " 2 ", 0, Terms{Months: 2}, false},
		{"downgrade has no terms", playbook.OfferDowngrade, "basic", 0, Terms{}, false},
		{"discount not a number", playbook.OfferDiscount, "lots", 3, Terms{}, true},
		{"pause not a number", playbook.OfferPause, "two", 0, Terms{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTerms(tt.offerType, tt.value, tt.duration)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTerms) {
					t.Fatalf("ParseTerms() error = %v, expected ErrInvalidTerms", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTerms() unexpected error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("ParseTerms() = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}

func TestMonthlyAmount(t *testing.T) {
	tests := []struct {
		name     string
		unit     int64
		quantity int64
		interval string
		count    int64
		expected int64
	}{
		{"monthly", 9900, 1, "month", 1, 9900},
		{"quantity", 1000, 3, "month", 1, 3000},
		{"zero quantity counts as one", 1000, 0, "month", 1, 1000},
		{"quarterly", 30000, 1, "month", 3, 10000},
		{"yearly", 120000, 1, "year", 1, 10000},
		{"weekly", 1200, 1, "week", 1, 5200},
		{"unknown interval treated as monthly", 500, 1, "", 0, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthlyAmount(tt.unit, tt.quantity, tt.interval, tt.count); got != tt.expected {
				t.Errorf("MonthlyAmount() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestToMajor(t *testing.T) {
	tests := []struct {
		minor    int64
		currency string
		expected int64
	}{
		{7425, "usd", 74},
		{7450, "usd", 75},
		{7500, "eur", 75},
		{0, "usd", 0},
		{-10, "usd", 0},
		{7425, "", 74},
		{7425, "jpy", 7425},
		{7425, "JPY", 7425},
		{1500, "krw", 1500},
		{12345, "kwd", 12},
		{12500, "bhd", 13},
	}

	for _, tt := range tests {
		if got := ToMajor(tt.minor, tt.currency); got != tt.expected {
			t.Errorf("ToMajor(%d, %q) = %d, expected %d", tt.minor, tt.currency, got, tt.expected)
		}
	}
}
