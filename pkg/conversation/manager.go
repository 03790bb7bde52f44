package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/churnai/retention-engine/pkg/metrics"
	"github.com/churnai/retention-engine/pkg/offer"
	"github.com/churnai/retention-engine/pkg/revenue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBillingTimeout bounds every billing side effect.
	DefaultBillingTimeout = 10 * time.Second
	// DefaultCurrency is used when the subscription price is not consulted.
	DefaultCurrency = "usd"
)

// Config tunes the lifecycle manager.
type Config struct {
	BillingTimeout  time.Duration
	PauseMonthDays  int
	DefaultCurrency string
}

// ManagerDeps are the collaborators of a Manager. Store and Resolver are required.
type ManagerDeps struct {
	Resolver *offer.Resolver
	Store    Store
	Events   EventStore
	Emitter  Emitter
	Billing  Billing
	Appliers *Registry
}

// Manager drives conversations from creation to a terminal response.
type Manager struct {
	resolver *offer.Resolver
	store    Store
	events   EventStore
	emitter  Emitter
	billing  Billing
	appliers *Registry
	cfg      Config
	now      func() time.Time
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. When deps.Appliers is nil the built-in
// appliers are registered against deps.Billing.
func NewManager(deps ManagerDeps, cfg Config, opts ...ManagerOption) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("offer resolver is required")
	}
	if cfg.BillingTimeout <= 0 {
		cfg.BillingTimeout = DefaultBillingTimeout
	}
	if cfg.PauseMonthDays <= 0 {
		cfg.PauseMonthDays = DefaultPauseMonthDays
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = DefaultCurrency
	}

	m := &Manager{
		resolver: deps.Resolver,
		store:    deps.Store,
		events:   deps.Events,
		emitter:  deps.Emitter,
		billing:  deps.Billing,
		appliers: deps.Appliers,
		cfg:      cfg,
		now:      time.Now,
	}
	if m.emitter == nil {
		m.emitter = noopEmitter{}
	}
	if m.billing == nil {
		m.billing = unconfiguredBilling{}
	}
	if m.appliers == nil {
		m.appliers = NewRegistry()
		if err := RegisterBuiltinAppliers(m.appliers, Dependencies{
			Billing:        m.billing,
			PauseMonthDays: cfg.PauseMonthDays,
		}); err != nil {
			return nil, fmt.Errorf("failed to register appliers: %w", err)
		}
	}
	for _, opt := range opts {
		opt(m)
	}

	logrus.Infof("conversation manager initialized with %d appliers (billing timeout %v)",
		m.appliers.Count(), cfg.BillingTimeout)

	return m, nil
}

// CreateRequest starts a conversation.
type CreateRequest struct {
	TenantID       string
	CustomerRef    string
	SubscriptionID string
	Reason         string
}

// Decision is the offer made for a cancellation attempt.
type Decision struct {
	Offer        offer.ResolvedOffer
	Conversation *Conversation
	// Persisted is false when the conversation could not be stored.
	Persisted bool
}

// CreateConversation resolves an offer and stores a pending conversation.
// A storage failure does not fail the decision.
func (m *Manager) CreateConversation(ctx context.Context, req CreateRequest) (*Decision, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	o := m.resolver.Resolve(ctx, req.Reason, req.TenantID)
	metrics.DecisionsTotal.WithLabelValues(string(o.OfferType), string(o.MatchKind)).Inc()

	conv := newConversation(uuid.NewString(), req, o, m.now())
	decision := &Decision{Offer: o, Conversation: conv, Persisted: true}

	if err := m.store.InsertConversation(ctx, conv); err != nil {
		logrus.Errorf("failed to store conversation %s for tenant %s: %v", conv.ID, conv.TenantID, err)
		metrics.PersistenceFailuresTotal.WithLabelValues("insert_conversation").Inc()
		decision.Persisted = false
		m.emit(ctx, conv, EventConversationPersistFailed, map[string]any{
			"reason":    conv.Reason,
			"offerType": string(conv.OfferType),
			"error":     err.Error(),
		})
		return decision, nil
	}

	logrus.Infof("conversation %s created for tenant %s: %s offer (%s)", conv.ID, conv.TenantID, o.OfferType, o.MatchKind)
	m.emit(ctx, conv, EventConversationCreated, map[string]any{
		"reason":     conv.Reason,
		"offerType":  string(conv.OfferType),
		"offerValue": conv.OfferValue,
		"matchKind":  string(o.MatchKind),
	})

	return decision, nil
}

func validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.TenantID) == "" {
		return &ValidationError{Field: "tenantId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.CustomerRef) == "" {
		return &ValidationError{Field: "customerEmail", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return &ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	return nil
}

// ResponseRequest records a customer's answer to an offer.
type ResponseRequest struct {
	ConversationID string
	// TenantID, when set, must own the conversation.
	TenantID       string
	Accepted       bool
	SubscriptionID string
}

// ApplyResult describes the outcome of a response.
type ApplyResult struct {
	Conversation      *Conversation
	RevenueSavedMinor int64
	Currency          string
	// AlreadyResponded is set when the conversation had left pending before this call.
	AlreadyResponded bool
	BillingStatus    string
	CouponID         string
	ResumesAt        *time.Time
	ManualFollowup   bool
}

// RecordResponse dispatches a response to ApplyOffer or DeclineOffer.
// Responses to conversations that are no longer pending have no side effects.
// While an accept is being billed the conversation is applying and every other
// response gets ErrInProgress.
func (m *Manager) RecordResponse(ctx context.Context, req ResponseRequest) (*ApplyResult, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, &ValidationError{Field: "conversationId", Reason: "must not be empty"}
	}

	conv, err := m.load(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if req.TenantID != "" && conv.TenantID != req.TenantID {
		return nil, ErrNotFound
	}

	switch conv.Status {
	case StatusPending:
	case StatusApplying:
		return nil, ErrInProgress
	default:
		return alreadyResponded(conv), nil
	}

	if req.Accepted {
		return m.ApplyOffer(ctx, conv, req.SubscriptionID)
	}
	return m.DeclineOffer(ctx, conv)
}

// ApplyOffer performs the offer's billing side effect and marks the
// conversation accepted. The conversation is claimed before billing so
// concurrent accepts bill at most once.
func (m *Manager) ApplyOffer(ctx context.Context, conv *Conversation, subscriptionID string) (*ApplyResult, error) {
	applier, known := m.appliers.Get(conv.OfferType)
	if !known {
		logrus.Warnf("conversation %s: %v, accepting without billing action",
			conv.ID, &UnknownOfferTypeError{OfferType: string(conv.OfferType)})
	}

	subID := strings.TrimSpace(subscriptionID)
	if subID == "" {
		subID = conv.SubscriptionID
	}
	if applier.RequiresSubscription() && subID == "" {
		return nil, &ValidationError{
			Field:  "subscriptionId",
			Reason: fmt.Sprintf("required for %s offers", conv.OfferType),
		}
	}

	terms, err := revenue.ParseTerms(conv.OfferType, conv.OfferValue, conv.DurationMonths)
	if err != nil {
		return nil, &ValidationError{Field: "offerValue", Reason: err.Error()}
	}

	claimed, err := m.store.UpdateConversation(ctx, conv.ID, Patch{Status: StatusApplying}, StatusPending)
	if errors.Is(err, ErrStatusConflict) {
		return m.reloadResponded(ctx, conv)
	}
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("claim_conversation").Inc()
		return nil, &PersistenceError{Op: "claim conversation", Err: err}
	}

	now := m.now()
	price := PriceInfo{Currency: m.cfg.DefaultCurrency}

	billingCtx, cancel := context.WithTimeout(ctx, m.cfg.BillingTimeout)
	defer cancel()

	if applier.RequiresPrice() {
		p, err := m.billing.GetSubscriptionPriceInfo(billingCtx, subID)
		if err != nil {
			return nil, m.releaseClaim(ctx, claimed, &BillingError{Op: "get price", Err: err})
		}
		price = *p
		if price.Currency == "" {
			price.Currency = m.cfg.DefaultCurrency
		}
	}

	outcome, err := applier.Apply(billingCtx, &ApplyRequest{
		Conversation:   claimed,
		SubscriptionID: subID,
		Terms:          terms,
		Now:            now,
	})
	if err != nil {
		var berr *BillingError
		if !errors.As(err, &berr) {
			berr = &BillingError{Op: string(conv.OfferType), Err: err}
		}
		return nil, m.releaseClaim(ctx, claimed, berr)
	}

	saved := revenue.Compute(conv.OfferType, terms, price.MonthlyAmountMinor)
	patch := Patch{
		Status:            StatusAccepted,
		RevenueSavedMinor: &saved,
		Currency:          &price.Currency,
		RespondedAt:       &now,
	}
	if subID != claimed.SubscriptionID {
		patch.SubscriptionID = &subID
	}

	result := &ApplyResult{
		RevenueSavedMinor: saved,
		Currency:          price.Currency,
		BillingStatus:     outcome.BillingStatus,
		CouponID:          outcome.CouponID,
		ResumesAt:         outcome.ResumesAt,
		ManualFollowup:    outcome.ManualFollowup,
	}

	final, err := m.store.UpdateConversation(context.WithoutCancel(ctx), conv.ID, patch, StatusApplying)
	persisted := err == nil
	m.emit(ctx, claimed, EventOfferApplied, appliedEventData(claimed, subID, result, persisted))
	if !persisted {
		// The billing side effect happened; the claim stays so the offer is never re-billed.
		logrus.Errorf("offer on conversation %s was billed but acceptance was not recorded: %v", conv.ID, err)
		metrics.PersistenceFailuresTotal.WithLabelValues("record_acceptance").Inc()
		return nil, &PersistenceError{Op: "record acceptance", Err: err}
	}

	metrics.ResponsesTotal.WithLabelValues(string(conv.OfferType), string(StatusAccepted)).Inc()
	metrics.RevenueSavedMinorTotal.WithLabelValues(price.Currency).Add(float64(saved))

	if outcome.ManualFollowup {
		m.emit(ctx, final, EventOfferManualFollowup, map[string]any{
			"offerType":      string(final.OfferType),
			"offerValue":     final.OfferValue,
			"subscriptionId": subID,
		})
	}

	logrus.Infof("conversation %s accepted: %s offer, revenue saved %d %s", conv.ID, conv.OfferType, saved, price.Currency)

	result.Conversation = final
	return result, nil
}

func appliedEventData(conv *Conversation, subID string, r *ApplyResult, persisted bool) map[string]any {
	data := map[string]any{
		"offerType":         string(conv.OfferType),
		"offerValue":        conv.OfferValue,
		"subscriptionId":    subID,
		"revenueSavedMinor": r.RevenueSavedMinor,
		"currency":          r.Currency,
		"persisted":         persisted,
	}
	if r.BillingStatus != "" {
		data["billingStatus"] = r.BillingStatus
	}
	if r.CouponID != "" {
		data["couponId"] = r.CouponID
	}
	if r.ResumesAt != nil {
		data["resumesAt"] = r.ResumesAt.UTC().Format(time.RFC3339)
	}
	return data
}

// releaseClaim returns a claimed conversation to pending after a billing failure.
func (m *Manager) releaseClaim(ctx context.Context, conv *Conversation, berr *BillingError) error {
	logrus.Errorf("failed to apply %s offer on conversation %s: %v", conv.OfferType, conv.ID, berr)
	metrics.OfferApplicationFailuresTotal.WithLabelValues(string(conv.OfferType)).Inc()

	if _, err := m.store.UpdateConversation(context.WithoutCancel(ctx), conv.ID, Patch{Status: StatusPending}, StatusApplying); err != nil {
		logrus.Errorf("failed to release claim on conversation %s: %v", conv.ID, err)
		metrics.PersistenceFailuresTotal.WithLabelValues("release_claim").Inc()
	}

	m.emit(ctx, conv, EventOfferApplicationFailed, map[string]any{
		"tenantId":       conv.TenantID,
		"conversationId": conv.ID,
		"offerType":      string(conv.OfferType),
		"operation":      berr.Op,
		"error":          berr.Error(),
	})

	return berr
}

// DeclineOffer marks a pending conversation declined. A storage failure is
// logged and does not fail the response.
func (m *Manager) DeclineOffer(ctx context.Context, conv *Conversation) (*ApplyResult, error) {
	now := m.now()
	var zero int64
	patch := Patch{Status: StatusDeclined, RevenueSavedMinor: &zero, RespondedAt: &now}

	updated, err := m.store.UpdateConversation(ctx, conv.ID, patch, StatusPending)
	switch {
	case errors.Is(err, ErrStatusConflict):
		return m.reloadResponded(ctx, conv)
	case err != nil:
		logrus.Errorf("failed to record decline for conversation %s: %v", conv.ID, err)
		metrics.PersistenceFailuresTotal.WithLabelValues("record_decline").Inc()
		updated = conv.Clone()
		updated.Apply(patch)
	}

	metrics.ResponsesTotal.WithLabelValues(string(conv.OfferType), string(StatusDeclined)).Inc()

	m.emit(ctx, updated, EventOfferDeclined, map[string]any{
		"offerType":  string(updated.OfferType),
		"offerValue": updated.OfferValue,
	})
	m.emit(ctx, updated, EventOfferResponse, map[string]any{
		"accepted":  false,
		"offerType": string(updated.OfferType),
	})

	logrus.Infof("conversation %s declined", conv.ID)

	return &ApplyResult{Conversation: updated, Currency: updated.Currency}, nil
}

// RecordBillingNotification logs an inbound billing lifecycle notification.
func (m *Manager) RecordBillingNotification(ctx context.Context, n Notification) {
	data := make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	if n.ID != "" {
		data["stripeEventId"] = n.ID
	}

	logrus.Infof("billing notification %s (%s)", n.Type, n.ID)
	m.emitter.Emit(ctx, &Event{
		ID:        uuid.NewString(),
		TenantID:  BillingTenant,
		Type:      n.Type,
		Data:      data,
		CreatedAt: m.now(),
	})
}

// ClientEvent is an event reported by the widget or dashboard.
type ClientEvent struct {
	TenantID    string
	Type        string
	Data        map[string]any
	CustomerRef string
	UserAgent   string
	ClientIP    string
}

// RecordClientEvent enriches and logs a client-reported event.
func (m *Manager) RecordClientEvent(ctx context.Context, ev ClientEvent) error {
	if strings.TrimSpace(ev.TenantID) == "" {
		return &ValidationError{Field: "tenantId", Reason: "must not be empty"}
	}
	if strings.TrimSpace(ev.Type) == "" {
		return &ValidationError{Field: "eventType", Reason: "must not be empty"}
	}

	now := m.now()
	data := make(map[string]any, len(ev.Data)+4)
	for k, v := range ev.Data {
		data[k] = v
	}
	if ev.CustomerRef != "" {
		data["customerEmail"] = ev.CustomerRef
	}
	data["timestamp"] = now.UTC().Format(time.RFC3339)
	data["userAgent"] = ev.UserAgent
	data["ip"] = ev.ClientIP

	m.emitter.Emit(ctx, &Event{
		ID:        uuid.NewString(),
		TenantID:  ev.TenantID,
		Type:      ev.Type,
		Data:      data,
		CreatedAt: now,
	})
	return nil
}

func (m *Manager) load(ctx context.Context, id string) (*Conversation, error) {
	conv, err := m.store.GetConversation(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load conversation", Err: err}
	}
	return conv, nil
}

// reloadResponded reports the current state after losing a status race.
func (m *Manager) reloadResponded(ctx context.Context, conv *Conversation) (*ApplyResult, error) {
	current, err := m.store.GetConversation(ctx, conv.ID)
	if err != nil {
		logrus.Warnf("failed to reload conversation %s after status conflict: %v", conv.ID, err)
		return nil, ErrInProgress
	}
	if current.Status == StatusApplying || current.Status == StatusPending {
		return nil, ErrInProgress
	}
	return alreadyResponded(current), nil
}

func alreadyResponded(conv *Conversation) *ApplyResult {
	return &ApplyResult{
		Conversation:      conv,
		RevenueSavedMinor: conv.RevenueSavedMinor,
		Currency:          conv.Currency,
		AlreadyResponded:  true,
	}
}

func (m *Manager) emit(ctx context.Context, conv *Conversation, eventType string, data map[string]any) {
	m.emitter.Emit(ctx, &Event{
		ID:             uuid.NewString(),
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		Type:           eventType,
		Data:           data,
		CreatedAt:      m.now(),
	})
}

var errBillingNotConfigured = errors.New("billing is not configured")

type unconfiguredBilling struct{}

func (unconfiguredBilling) CreateDiscountCoupon(context.Context, int64, int64) (string, error) {
	return "", errBillingNotConfigured
}

func (unconfiguredBilling) ApplyCouponToSubscription(context.Context, string, string) (string, error) {
	return "", errBillingNotConfigured
}

func (unconfiguredBilling) PauseSubscription(context.Context, string, time.Time) (string, error) {
	return "", errBillingNotConfigured
}

func (unconfiguredBilling) GetSubscriptionPriceInfo(context.Context, string) (*PriceInfo, error) {
	return nil, errBillingNotConfigured
}
