package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/churnai/retention-engine/pkg/revenue"
)

// Applier performs the billing side effect of an accepted offer.
// Appliers are registered in a Registry and dispatched by offer type.
type Applier interface {
	// OfferType returns the offer type handled by this applier.
	OfferType() playbook.OfferType

	// RequiresSubscription reports whether a subscription id is needed.
	RequiresSubscription() bool

	// RequiresPrice reports whether revenue depends on the subscription price.
	RequiresPrice() bool

	// Apply performs the side effect. It must be safe to abandon when ctx is done.
	Apply(ctx context.Context, req *ApplyRequest) (*Outcome, error)
}

// ApplyRequest is the input to an Applier.
type ApplyRequest struct {
	Conversation   *Conversation
	SubscriptionID string
	Terms          revenue.Terms
	Now            time.Time
}

// Outcome describes what an applier did.
type Outcome struct {
	BillingStatus string
	CouponID      string
	ResumesAt     *time.Time
	// ManualFollowup is set when the offer needs a human to complete it.
	ManualFollowup bool
}

// Registry manages appliers by offer type. Lookups of unregistered types
// return the fallback applier.
type Registry struct {
	appliers map[playbook.OfferType]Applier
	fallback Applier
	mu       sync.RWMutex
}

// NewRegistry creates a registry whose fallback is a no-op applier.
func NewRegistry() *Registry {
	return &Registry{
		appliers: make(map[playbook.OfferType]Applier),
		fallback: NewNoopApplier(""),
	}
}

// Register adds an applier. Returns an error if its type is already taken.
func (r *Registry) Register(a Applier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.appliers[a.OfferType()]; exists {
		return fmt.Errorf("%w: %s", ErrApplierExists, a.OfferType())
	}

	r.appliers[a.OfferType()] = a
	return nil
}

// Get returns the applier for t and whether it was registered.
func (r *Registry) Get(t playbook.OfferType) (Applier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.appliers[t]; ok {
		return a, true
	}
	return r.fallback, false
}

// Count returns the number of registered appliers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.appliers)
}

// Dependencies holds the collaborators the built-in appliers need.
type Dependencies struct {
	Billing        Billing
	PauseMonthDays int
}

// RegisterBuiltinAppliers registers discount, pause, downgrade, none and nudge.
func RegisterBuiltinAppliers(r *Registry, deps Dependencies) error {
	appliers := []Applier{
		NewDiscountApplier(deps.Billing),
		NewPauseApplier(deps.Billing, deps.PauseMonthDays),
		NewDowngradeApplier(),
		NewNoopApplier(playbook.OfferNone),
		NewNoopApplier(playbook.OfferNudge),
	}
	for _, a := range appliers {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
