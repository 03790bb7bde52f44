// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"github.com/churnai/retention-engine/internal/config"
	"github.com/churnai/retention-engine/pkg/billing"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/offer"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/sirupsen/logrus"
)

// InitBilling creates the Stripe adapter, or returns nil when no secret key
// is configured. Without billing, accepted discount and pause offers fail
// with a billing error and can be retried once a key is set.
func InitBilling(cfg *config.Config) *billing.StripeClient {
	if !cfg.BillingEnabled() {
		logrus.Warn("STRIPE_SECRET_KEY not set, offers will not be applied to subscriptions")
		return nil
	}

	c := billing.NewStripeClient(billing.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		WebhookSecret:     cfg.StripeWebhookSecret,
		APIURL:            cfg.StripeAPIURL,
		MaxNetworkRetries: cfg.StripeMaxRetries,
	})
	logrus.Info("Stripe billing client initialized")
	return c
}

// InitManager wires the conversation manager.
//
// ============================================================
// DEVELOPER: Offer appliers
// ============================================================
// The built-in appliers (discount, pause, downgrade, none) are
// registered by conversation.NewManager. To add an offer type,
// build a conversation.Registry, call RegisterBuiltinAppliers,
// register your applier and pass the registry as Appliers.
// ============================================================
func InitManager(
	cfg *config.Config,
	provider playbook.Provider,
	backend Backend,
	events *EventPipeline,
	stripe *billing.StripeClient,
) (*conversation.Manager, error) {
	deps := conversation.ManagerDeps{
		Resolver: offer.NewResolver(provider, nil),
		Store:    backend,
		Events:   backend,
		Emitter:  events.Emitter,
	}
	// a typed nil would hide the unconfigured billing fallback
	if stripe != nil {
		deps.Billing = stripe
	}

	return conversation.NewManager(deps, conversation.Config{
		BillingTimeout:  cfg.BillingTimeout,
		PauseMonthDays:  cfg.PauseMonthDays,
		DefaultCurrency: cfg.DefaultCurrency,
	})
}
