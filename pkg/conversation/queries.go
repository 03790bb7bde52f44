package conversation

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultListLimit is the page size when the caller does not set one.
	DefaultListLimit = 10
	// MaxListLimit caps dashboard list requests.
	MaxListLimit = 100
	// analyticsConversations is the number of conversations returned with analytics.
	analyticsConversations = 10
)

// AnalyticsReport is a tenant's analytics plus its latest conversations.
type AnalyticsReport struct {
	Analytics
	// Totals are summed in minor units and displayed in the default currency.
	Currency      string          `json:"currency"`
	Conversations []*Conversation `json:"conversations"`
}

// DemoAnalytics is served when the store cannot be reached.
func DemoAnalytics() Analytics {
	a := Analytics{
		Attempts:          120,
		Saves:             88,
		Declines:          32,
		RevenueSavedMinor: 2634000,
		Demo:              true,
	}
	a.ComputeSaveRate()
	return a
}

// Analytics loads aggregate counters and recent conversations concurrently.
// Any store failure yields demo data rather than an error.
func (m *Manager) Analytics(ctx context.Context, tenantID string) *AnalyticsReport {
	var (
		stats *Analytics
		convs []*Conversation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = m.store.QueryTenantAnalytics(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		convs, err = m.store.QueryConversations(gctx, tenantID, analyticsConversations)
		return err
	})

	if err := g.Wait(); err != nil {
		logrus.Warnf("analytics for tenant %s unavailable, serving demo data: %v", tenantID, err)
		return &AnalyticsReport{Analytics: DemoAnalytics(), Currency: m.cfg.DefaultCurrency, Conversations: []*Conversation{}}
	}

	stats.ComputeSaveRate()
	if convs == nil {
		convs = []*Conversation{}
	}
	return &AnalyticsReport{Analytics: *stats, Currency: m.cfg.DefaultCurrency, Conversations: convs}
}

// RecentConversations lists a tenant's conversations, newest first.
func (m *Manager) RecentConversations(ctx context.Context, tenantID string, limit int) ([]*Conversation, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenantId", Reason: "must not be empty"}
	}
	convs, err := m.store.QueryConversations(ctx, tenantID, clampLimit(limit))
	if err != nil {
		return nil, &PersistenceError{Op: "query conversations", Err: err}
	}
	return convs, nil
}

// RecentEvents lists a tenant's events, newest first.
func (m *Manager) RecentEvents(ctx context.Context, tenantID string, limit int) ([]*Event, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenantId", Reason: "must not be empty"}
	}
	if m.events == nil {
		return []*Event{}, nil
	}
	events, err := m.events.QueryEvents(ctx, tenantID, clampLimit(limit))
	if err != nil {
		return nil, &PersistenceError{Op: "query events", Err: err}
	}
	return events, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
