package revenue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/churnai/retention-engine/pkg/playbook"
)

// ErrInvalidTerms is returned when an offer value cannot be decoded.
var ErrInvalidTerms = errors.New("invalid offer terms")

// Terms are the numeric magnitudes of an offer.
type Terms struct {
	Percent int64
	Months  int64
}

// ParseTerms decodes the string-encoded offer value. Discounts carry a percent
// in value and their duration in durationMonths; pauses carry months in value.
// Other offer types have no numeric terms.
func ParseTerms(offerType playbook.OfferType, offerValue string, durationMonths int) (Terms, error) {
	switch offerType {
	case playbook.OfferDiscount:
		pct, err := strconv.ParseInt(strings.TrimSpace(offerValue), 10, 64)
		if err != nil {
			return Terms{}, fmt.Errorf("%w: discount percent %q", ErrInvalidTerms, offerValue)
		}
		months := int64(durationMonths)
		if months <= 0 {
			months = playbook.DefaultDiscountMonths
		}
		return Terms{Percent: pct, Months: months}, nil

	case playbook.OfferPause:
		months, err := strconv.ParseInt(strings.TrimSpace(offerValue), 10, 64)
		if err != nil {
			return Terms{}, fmt.Errorf("%w: pause months %q", ErrInvalidTerms, offerValue)
		}
		return Terms{Months: months}, nil
	}

	return Terms{}, nil
}

// Compute returns the revenue retained by an accepted offer, in minor units.
//
//	discount: monthly * percent * months / 100, rounded half-up once
//	pause:    monthly * months
//	others:   0
//
// Negative inputs are treated as zero, so the result is never negative.
func Compute(offerType playbook.OfferType, terms Terms, monthlyMinor int64) int64 {
	monthly := clamp(monthlyMinor)
	months := clamp(terms.Months)

	switch offerType {
	case playbook.OfferDiscount:
		pct := clamp(terms.Percent)
		if pct > 100 {
			pct = 100
		}
		return divRound(monthly*pct*months, 100)
	case playbook.OfferPause:
		return monthly * months
	default:
		return 0
	}
}

// MonthlyAmount normalises a recurring price to a monthly figure in minor units.
// interval is the billing interval name ("day", "week", "month", "year").
func MonthlyAmount(unitAmount, quantity int64, interval string, intervalCount int64) int64 {
	if quantity <= 0 {
		quantity = 1
	}
	if intervalCount <= 0 {
		intervalCount = 1
	}
	total := clamp(unitAmount) * quantity

	switch interval {
	case "year":
		return divRound(total, 12*intervalCount)
	case "week":
		return divRound(total*52, 12*intervalCount)
	case "day":
		return divRound(total*365, 12*intervalCount)
	default:
		return divRound(total, intervalCount)
	}
}

// Currencies whose smallest unit is not a hundredth, as billed by Stripe.
var (
	zeroDecimal = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimal = map[string]bool{
		"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
	}
)

// MinorPerMajor returns how many minor units make one unit of currency.
// Unknown and empty currencies are treated as two-decimal.
func MinorPerMajor(currency string) int64 {
	c := strings.ToLower(strings.TrimSpace(currency))
	switch {
	case zeroDecimal[c]:
		return 1
	case threeDecimal[c]:
		return 1000
	default:
		return 100
	}
}

// ToMajor rounds a minor-unit amount to whole currency units for display.
func ToMajor(minor int64, currency string) int64 {
	return divRound(clamp(minor), MinorPerMajor(currency))
}

func divRound(n, d int64) int64 {
	return (n + d/2) / d
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
