package conversation

import (
	"context"
	"time"

	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/sirupsen/logrus"
)

// DefaultPauseMonthDays is the length of a paused month.
const DefaultPauseMonthDays = 30

// DiscountApplier creates a repeating coupon and attaches it to the subscription.
type DiscountApplier struct {
	billing Billing
}

func NewDiscountApplier(billing Billing) *DiscountApplier {
	return &DiscountApplier{billing: billing}
}

func (a *DiscountApplier) OfferType() playbook.OfferType { return playbook.OfferDiscount }
func (a *DiscountApplier) RequiresSubscription() bool    { return true }
func (a *DiscountApplier) RequiresPrice() bool           { return true }

func (a *DiscountApplier) Apply(ctx context.Context, req *ApplyRequest) (*Outcome, error) {
	couponID, err := a.billing.CreateDiscountCoupon(ctx, req.Terms.Percent, req.Terms.Months)
	if err != nil {
		return nil, &BillingError{Op: "create coupon", Err: err}
	}

	status, err := a.billing.ApplyCouponToSubscription(ctx, req.SubscriptionID, couponID)
	if err != nil {
		return nil, &BillingError{Op: "apply coupon", Err: err}
	}

	logrus.Infof("applied %d%% coupon %s for %d months to subscription %s",
		req.Terms.Percent, couponID, req.Terms.Months, req.SubscriptionID)

	return &Outcome{BillingStatus: status, CouponID: couponID}, nil
}

// PauseApplier pauses collection until the offer's months have elapsed.
type PauseApplier struct {
	billing   Billing
	monthDays int
}

func NewPauseApplier(billing Billing, monthDays int) *PauseApplier {
	if monthDays <= 0 {
		monthDays = DefaultPauseMonthDays
	}
	return &PauseApplier{billing: billing, monthDays: monthDays}
}

func (a *PauseApplier) OfferType() playbook.OfferType { return playbook.OfferPause }
func (a *PauseApplier) RequiresSubscription() bool    { return true }
func (a *PauseApplier) RequiresPrice() bool           { return true }

func (a *PauseApplier) Apply(ctx context.Context, req *ApplyRequest) (*Outcome, error) {
	resumeAt := req.Now.Add(time.Duration(req.Terms.Months) * time.Duration(a.monthDays) * 24 * time.Hour)

	status, err := a.billing.PauseSubscription(ctx, req.SubscriptionID, resumeAt)
	if err != nil {
		return nil, &BillingError{Op: "pause subscription", Err: err}
	}

	logrus.Infof("paused subscription %s until %s", req.SubscriptionID, resumeAt.Format(time.RFC3339))

	return &Outcome{BillingStatus: status, ResumesAt: &resumeAt}, nil
}

// DowngradeApplier records the request; plan changes are completed manually.
type DowngradeApplier struct{}

func NewDowngradeApplier() *DowngradeApplier { return &DowngradeApplier{} }

func (a *DowngradeApplier) OfferType() playbook.OfferType { return playbook.OfferDowngrade }
func (a *DowngradeApplier) RequiresSubscription() bool    { return false }
func (a *DowngradeApplier) RequiresPrice() bool           { return false }

func (a *DowngradeApplier) Apply(_ context.Context, req *ApplyRequest) (*Outcome, error) {
	logrus.Infof("downgrade to %s requested for conversation %s, manual follow-up required",
		req.Conversation.OfferValue, req.Conversation.ID)
	return &Outcome{ManualFollowup: true}, nil
}

// NoopApplier accepts the offer without any billing action.
type NoopApplier struct {
	offerType playbook.OfferType
}

func NewNoopApplier(t playbook.OfferType) *NoopApplier {
	return &NoopApplier{offerType: t}
}

func (a *NoopApplier) OfferType() playbook.OfferType { return a.offerType }
func (a *NoopApplier) RequiresSubscription() bool    { return false }
func (a *NoopApplier) RequiresPrice() bool           { return false }

func (a *NoopApplier) Apply(_ context.Context, req *ApplyRequest) (*Outcome, error) {
	logrus.Debugf("no billing action for %s offer on conversation %s", req.Conversation.OfferType, req.Conversation.ID)
	return &Outcome{}, nil
}
