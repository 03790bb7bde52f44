package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/metrics"
	"github.com/churnai/retention-engine/pkg/revenue"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// ErrNoPrice is returned when a subscription has no recurring price to read.
var ErrNoPrice = errors.New("subscription has no priced items")

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string

	// APIURL overrides the Stripe API endpoint; empty means api.stripe.com.
	APIURL            string
	MaxNetworkRetries int64
}

// StripeClient implements conversation.Billing on top of the Stripe API.
type StripeClient struct {
	api           *client.API
	webhookSecret string
}

var _ conversation.Billing = (*StripeClient)(nil)

func NewStripeClient(cfg StripeConfig) *StripeClient {
	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     logrus.WithField("component", "stripe"),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeClient{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// CreateDiscountCoupon creates a percent-off coupon. Multi-month coupons repeat,
// a single month is applied once.
func (c *StripeClient) CreateDiscountCoupon(ctx context.Context, percent, months int64) (_ string, err error) {
	defer observe("create_coupon", time.Now(), &err)

	params := &stripe.CouponParams{
		PercentOff: stripe.Float64(float64(percent)),
		Name:       stripe.String(fmt.Sprintf("ChurnAI Retention Discount %d%%", percent)),
	}
	if months > 1 {
		params.Duration = stripe.String(string(stripe.CouponDurationRepeating))
		params.DurationInMonths = stripe.Int64(months)
	} else {
		params.Duration = stripe.String(string(stripe.CouponDurationOnce))
	}
	params.Context = ctx

	coupon, err := c.api.Coupons.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create coupon: %w", err)
	}

	logrus.Debugf("created coupon %s (%d%% for %d months)", coupon.ID, percent, months)
	return coupon.ID, nil
}

func (c *StripeClient) ApplyCouponToSubscription(ctx context.Context, subscriptionID, couponID string) (_ string, err error) {
	defer observe("apply_coupon", time.Now(), &err)

	params := &stripe.SubscriptionParams{
		Coupon: stripe.String(couponID),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return "", fmt.Errorf("failed to apply coupon %s to %s: %w", couponID, subscriptionID, err)
	}

	return string(sub.Status), nil
}

// PauseSubscription voids invoices until resumeAt.
func (c *StripeClient) PauseSubscription(ctx context.Context, subscriptionID string, resumeAt time.Time) (_ string, err error) {
	defer observe("pause_subscription", time.Now(), &err)

	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior:  stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
			ResumesAt: stripe.Int64(resumeAt.Unix()),
		},
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return "", fmt.Errorf("failed to pause %s: %w", subscriptionID, err)
	}

	return string(sub.Status), nil
}

// GetSubscriptionPriceInfo returns the monthly equivalent of the first item's price.
func (c *StripeClient) GetSubscriptionPriceInfo(ctx context.Context, subscriptionID string) (_ *conversation.PriceInfo, err error) {
	defer observe("get_subscription", time.Now(), &err)

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", subscriptionID, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return nil, fmt.Errorf("%s: %w", subscriptionID, ErrNoPrice)
	}

	item := sub.Items.Data[0]
	price := item.Price

	interval, count := "month", int64(1)
	if price.Recurring != nil {
		interval = string(price.Recurring.Interval)
		count = price.Recurring.IntervalCount
	}

	currency := string(price.Currency)
	if currency == "" {
		currency = string(sub.Currency)
	}

	return &conversation.PriceInfo{
		MonthlyAmountMinor: revenue.MonthlyAmount(price.UnitAmount, item.Quantity, interval, count),
		Currency:           currency,
	}, nil
}

func observe(op string, start time.Time, err *error) {
	result := "ok"
	if *err != nil {
		result = "error"
	}
	metrics.BillingRequestDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}
