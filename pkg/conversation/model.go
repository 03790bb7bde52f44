package conversation

import (
	"time"

	"github.com/churnai/retention-engine/pkg/offer"
	"github.com/churnai/retention-engine/pkg/playbook"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusPending Status = "pending"
	// StatusApplying marks a conversation whose billing side effect is in flight.
	StatusApplying Status = "applying"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Terminal reports whether no further response can be recorded.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Event types written to the event log.
const (
	EventConversationCreated       = "conversation_created"
	EventConversationPersistFailed = "conversation_persist_failed"
	EventOfferApplied              = "offer_applied"
	EventOfferApplicationFailed    = "offer_application_failed"
	EventOfferDeclined             = "offer_declined"
	EventOfferResponse             = "offer_response"
	EventOfferManualFollowup       = "offer_manual_followup"
)

// ClientEventTypes are the event types accepted from the widget and dashboard.
var ClientEventTypes = []string{
	"widget_loaded",
	"cancel_attempt",
	"offer_shown",
	"offer_accepted",
	"offer_declined",
	"page_view",
}

// BillingTenant is the tenant id billing notifications are logged under.
const BillingTenant = "stripe-webhook"

// Conversation is one cancellation attempt and the offer made in response.
type Conversation struct {
	ID               string             `json:"id"`
	TenantID         string             `json:"tenantId"`
	CustomerRef      string             `json:"customerRef"`
	SubscriptionID   string             `json:"subscriptionId,omitempty"`
	Reason           string             `json:"reason"`
	OfferType        playbook.OfferType `json:"offerType"`
	OfferValue       string             `json:"offerValue"`
	DurationMonths   int                `json:"durationMonths,omitempty"`
	Message          string             `json:"message"`
	MatchedReasonKey string             `json:"matchedReasonKey,omitempty"`

	Status            Status     `json:"status"`
	RevenueSavedMinor int64      `json:"revenueSavedMinor"`
	Currency          string     `json:"currency,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	RespondedAt       *time.Time `json:"respondedAt,omitempty"`
}

// Accepted mirrors the boolean flag older dashboards read.
func (c *Conversation) Accepted() bool {
	return c.Status == StatusAccepted
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.RespondedAt != nil {
		t := *c.RespondedAt
		out.RespondedAt = &t
	}
	return &out
}

// Apply writes the non-nil fields of p onto c.
func (c *Conversation) Apply(p Patch) {
	c.Status = p.Status
	if p.RevenueSavedMinor != nil {
		c.RevenueSavedMinor = *p.RevenueSavedMinor
	}
	if p.Currency != nil {
		c.Currency = *p.Currency
	}
	if p.SubscriptionID != nil {
		c.SubscriptionID = *p.SubscriptionID
	}
	if p.RespondedAt != nil {
		t := *p.RespondedAt
		c.RespondedAt = &t
	}
}

func newConversation(id string, req CreateRequest, o offer.ResolvedOffer, now time.Time) *Conversation {
	c := &Conversation{
		ID:             id,
		TenantID:       req.TenantID,
		CustomerRef:    req.CustomerRef,
		SubscriptionID: req.SubscriptionID,
		Reason:         req.Reason,
		OfferType:      o.OfferType,
		OfferValue:     o.OfferValue,
		DurationMonths: o.DurationMonths,
		Message:        o.Message,
		Status:         StatusPending,
		CreatedAt:      now,
	}
	if o.MatchedReasonKey != nil {
		c.MatchedReasonKey = *o.MatchedReasonKey
	}
	return c
}

// Patch is a conditional update of a conversation. Status is always written.
type Patch struct {
	Status            Status
	RevenueSavedMinor *int64
	Currency          *string
	SubscriptionID    *string
	RespondedAt       *time.Time
}

// Event is an append-only analytics record.
type Event struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	ConversationID string         `json:"conversationId,omitempty"`
	Type           string         `json:"type"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Analytics aggregates a tenant's conversations.
type Analytics struct {
	Attempts          int64   `json:"attempts"`
	Saves             int64   `json:"saves"`
	Declines          int64   `json:"declines"`
	Pending           int64   `json:"pending"`
	SaveRate          float64 `json:"saveRate"`
	RevenueSavedMinor int64   `json:"revenueSavedMinor"`
	Demo              bool    `json:"demo,omitempty"`
}

// ComputeSaveRate sets SaveRate to saves/attempts as a percentage with one decimal.
func (a *Analytics) ComputeSaveRate() {
	if a.Attempts == 0 {
		a.SaveRate = 0
		return
	}
	permille := (a.Saves*1000 + a.Attempts/2) / a.Attempts
	a.SaveRate = float64(permille) / 10
}

// Notification is an inbound billing lifecycle message.
type Notification struct {
	ID   string
	Type string
	Data map[string]any
}

// PriceInfo is the recurring price of a subscription.
type PriceInfo struct {
	MonthlyAmountMinor int64
	Currency           string
}
