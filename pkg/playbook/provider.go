package playbook

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Provider returns the rule table that applies to a tenant.
// Implementations never return nil: a tenant without rules gets the fallback table.
type Provider interface {
	TableFor(ctx context.Context, tenantID string) *Table
}

// Source loads tenant-authored rules from storage.
type Source interface {
	GetPlaybookRules(ctx context.Context, tenantID string) ([]Rule, error)
}

// StaticProvider serves tables built once from configuration.
type StaticProvider struct {
	fallback *Table
	tenants  map[string]*Table
}

// NewStaticProvider builds tables from cfg. A nil cfg yields the built-in table for everyone.
func NewStaticProvider(cfg *Config) (*StaticProvider, error) {
	p := &StaticProvider{
		fallback: DefaultTable(),
		tenants:  make(map[string]*Table),
	}
	if cfg == nil {
		return p, nil
	}

	if len(cfg.Default) > 0 {
		t, err := NewTable("", cfg.Default)
		if err != nil {
			return nil, err
		}
		p.fallback = t
	}

	for tenantID, rules := range cfg.Tenants {
		t, err := NewTable(tenantID, rules)
		if err != nil {
			return nil, err
		}
		p.tenants[tenantID] = t
	}

	return p, nil
}

// TableFor returns the tenant's configured table or the fallback.
func (p *StaticProvider) TableFor(_ context.Context, tenantID string) *Table {
	if t, ok := p.tenants[tenantID]; ok {
		return t
	}
	return p.fallback
}

// TenantCount returns the number of tenants with a dedicated table.
func (p *StaticProvider) TenantCount() int {
	return len(p.tenants)
}

// StoreProvider prefers rules saved by the tenant and falls back to next.
type StoreProvider struct {
	source Source
	next   Provider
}

// NewStoreProvider creates a provider reading from source.
func NewStoreProvider(source Source, next Provider) *StoreProvider {
	if next == nil {
		next = &StaticProvider{fallback: DefaultTable(), tenants: map[string]*Table{}}
	}
	return &StoreProvider{source: source, next: next}
}

// TableFor loads the tenant's stored rules. Storage failures and invalid
// stored tables degrade to the next provider.
func (p *StoreProvider) TableFor(ctx context.Context, tenantID string) *Table {
	if tenantID == "" || p.source == nil {
		return p.next.TableFor(ctx, tenantID)
	}

	rules, err := p.source.GetPlaybookRules(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrNoRules) {
			logrus.Warnf("failed to load playbook for tenant %s, using fallback: %v", tenantID, err)
		}
		return p.next.TableFor(ctx, tenantID)
	}
	if len(rules) == 0 {
		return p.next.TableFor(ctx, tenantID)
	}

	t, err := NewTable(tenantID, rules)
	if err != nil {
		logrus.Errorf("stored playbook for tenant %s is invalid, using fallback: %v", tenantID, err)
		return p.next.TableFor(ctx, tenantID)
	}

	return t
}
