package conversation

import (
	"context"
	"time"
)

// Store persists conversations. Implementations must make UpdateConversation
// atomic: the patch is written only if the stored status equals expected,
// otherwise ErrStatusConflict is returned.
type Store interface {
	InsertConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, id string, patch Patch, expected Status) (*Conversation, error)
	QueryConversations(ctx context.Context, tenantID string, limit int) ([]*Conversation, error)
	QueryTenantAnalytics(ctx context.Context, tenantID string) (*Analytics, error)
}

// EventStore persists events.
type EventStore interface {
	InsertEvent(ctx context.Context, e *Event) error
	QueryEvents(ctx context.Context, tenantID string, limit int) ([]*Event, error)
}

// Emitter records events without blocking the caller.
type Emitter interface {
	Emit(ctx context.Context, e *Event)
}

// Billing performs side effects on the payment processor.
type Billing interface {
	CreateDiscountCoupon(ctx context.Context, percent, months int64) (string, error)
	ApplyCouponToSubscription(ctx context.Context, subscriptionID, couponID string) (string, error)
	PauseSubscription(ctx context.Context, subscriptionID string, resumeAt time.Time) (string, error)
	GetSubscriptionPriceInfo(ctx context.Context, subscriptionID string) (*PriceInfo, error)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *Event) {}
