package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/churnai/retention-engine/pkg/offer"
)

// memStore is an in-memory Store with the same conditional-update contract as
// the real stores.
type memStore struct {
	mu        sync.Mutex
	convs     map[string]*Conversation
	insertErr error
	updateErr func(patch Patch) error
	queryErr  error
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*Conversation)}
}

func (s *memStore) InsertConversation(_ context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.convs[c.ID] = c.Clone()
	return nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *memStore) UpdateConversation(_ context.Context, id string, patch Patch, expected Status) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		if err := s.updateErr(patch); err != nil {
			return nil, err
		}
	}
	c, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != expected {
		return nil, ErrStatusConflict
	}
	c.Apply(patch)
	return c.Clone(), nil
}

func (s *memStore) QueryConversations(_ context.Context, tenantID string, limit int) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []*Conversation
	for _, c := range s.convs {
		if c.TenantID == tenantID && len(out) < limit {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *memStore) QueryTenantAnalytics(_ context.Context, tenantID string) (*Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	a := &Analytics{}
	for _, c := range s.convs {
		if c.TenantID != tenantID {
			continue
		}
		a.Attempts++
		switch c.Status {
		case StatusAccepted:
			a.Saves++
			a.RevenueSavedMinor += c.RevenueSavedMinor
		case StatusDeclined:
			a.Declines++
		default:
			a.Pending++
		}
	}
	return a, nil
}

func (s *memStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[id].Status
}

// fakeBilling records calls and returns canned results.
type fakeBilling struct {
	monthly  int64
	currency string
	delay    time.Duration
	err      error
	priceErr error

	// when set, billing calls signal entered and wait for release
	entered chan struct{}
	release chan struct{}

	couponCalls atomic.Int32
	applyCalls  atomic.Int32
	pauseCalls  atomic.Int32

	mu        sync.Mutex
	resumeAt  time.Time
	lastPct   int64
	lastMonth int64
}

func (b *fakeBilling) wait(ctx context.Context) error {
	if b.release != nil {
		b.entered <- struct{}{}
		select {
		case <-b.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.delay == 0 {
		return nil
	}
	select {
	case <-time.After(b.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *fakeBilling) CreateDiscountCoupon(ctx context.Context, percent, months int64) (string, error) {
	b.couponCalls.Add(1)
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	b.lastPct, b.lastMonth = percent, months
	b.mu.Unlock()
	return "coupon_123", nil
}

func (b *fakeBilling) ApplyCouponToSubscription(ctx context.Context, _, _ string) (string, error) {
	b.applyCalls.Add(1)
	return "active", nil
}

func (b *fakeBilling) PauseSubscription(ctx context.Context, _ string, resumeAt time.Time) (string, error) {
	b.pauseCalls.Add(1)
	if err := b.wait(ctx); err != nil {
		return "", err
	}
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	b.resumeAt = resumeAt
	b.mu.Unlock()
	return "active", nil
}

func (b *fakeBilling) GetSubscriptionPriceInfo(_ context.Context, _ string) (*PriceInfo, error) {
	if b.priceErr != nil {
		return nil, b.priceErr
	}
	return &PriceInfo{MonthlyAmountMinor: b.monthly, Currency: b.currency}, nil
}

// recordingEmitter keeps emitted events in memory.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*Event
}

func (e *recordingEmitter) Emit(_ context.Context, ev *Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) ofType(t string) []*Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

var errBillingDown = errors.New("card_declined")

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, store Store, billing Billing, emitter Emitter, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(ManagerDeps{
		Resolver: offer.NewResolver(nil, nil),
		Store:    store,
		Emitter:  emitter,
		Billing:  billing,
	}, cfg, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}
