package playbook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "playbooks.yaml")

	t.Setenv("ACME_DISCOUNT", "40")

	configContent := `
tenants:
  acme:
    - reason: too-expensive
      offer_type: discount
      value: "${ACME_DISCOUNT:25}"
      duration_months: 2
      message: "40% off for two months"
      priority: 1
    - reason: missing-feature
      offer_type: downgrade
      value: "${ACME_PLAN:starter}"
      message: "Try starter"
      priority: 2
      keywords: ["feature", "integration"]
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	rules := cfg.Tenants["acme"]
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].OfferValue != "40" {
		t.Errorf("expected env expansion to 40, got %q", rules[0].OfferValue)
	}
	if rules[1].OfferValue != "starter" {
		t.Errorf("expected default expansion to starter, got %q", rules[1].OfferValue)
	}
	if len(rules[1].Keywords) != 2 {
		t.Errorf("expected 2 keywords, got %v", rules[1].Keywords)
	}
}

func TestParseConfig_KeepsLiteralDollars(t *testing.T) {
	t.Setenv("PLAN", "enterprise")

	cfg, err := ParseConfig([]byte(`
tenants:
  acme:
    - reason: too-expensive
      offer_type: discount
      value: "${ACME_PERCENT:20}"
      message: "Get $20 off your next $PLAN renewal, ${PLAN} stays"
`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	rule := cfg.Tenants["acme"][0]
	if rule.OfferValue != "20" {
		t.Errorf("OfferValue = %q, expected 20", rule.OfferValue)
	}
	expected := "Get $20 off your next $PLAN renewal, enterprise stays"
	if rule.Message != expected {
		t.Errorf("Message = %q, expected %q", rule.Message, expected)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "duplicate reason",
			content: `
tenants:
  acme:
    - {reason: a, offer_type: none}
    - {reason: a, offer_type: none}
`,
		},
		{
			name: "bad default table",
			content: `
default:
  - {reason: a, offer_type: discount, value: "0"}
`,
		},
		{
			name: "empty tenant table",
			content: `
tenants:
  acme: []
`,
		},
		{
			name:    "malformed yaml",
			content: "tenants: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestStaticProvider(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
tenants:
  acme:
    - {reason: too-expensive, offer_type: pause, value: "1", message: "pause"}
`))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	p, err := NewStaticProvider(cfg)
	if err != nil {
		t.Fatalf("NewStaticProvider failed: %v", err)
	}

	ctx := context.Background()

	acme := p.TableFor(ctx, "acme")
	r, ok := acme.Lookup("too-expensive")
	if !ok || r.OfferType != OfferPause {
		t.Errorf("expected tenant override, got %+v", r)
	}

	other := p.TableFor(ctx, "globex")
	if !other.Builtin() {
		t.Error("expected built-in table for tenant without config")
	}
	if p.TenantCount() != 1 {
		t.Errorf("TenantCount() = %d, expected 1", p.TenantCount())
	}
}

type fakeSource struct {
	rules map[string][]Rule
	err   error
	calls int
}

func (f *fakeSource) GetPlaybookRules(_ context.Context, tenantID string) ([]Rule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rules, ok := f.rules[tenantID]
	if !ok {
		return nil, ErrNoRules
	}
	return rules, nil
}

func TestStoreProvider(t *testing.T) {
	ctx := context.Background()
	static, _ := NewStaticProvider(nil)

	t.Run("stored rules win", func(t *testing.T) {
		src := &fakeSource{rules: map[string][]Rule{
			"acme": {{ReasonKey: "custom", OfferType: OfferNone}},
		}}
		p := NewStoreProvider(src, static)

		table := p.TableFor(ctx, "acme")
		if _, ok := table.Lookup("custom"); !ok {
			t.Error("expected stored rule")
		}
		if table.TenantID() != "acme" {
			t.Errorf("TenantID() = %q", table.TenantID())
		}
	})

	t.Run("missing tenant falls back", func(t *testing.T) {
		p := NewStoreProvider(&fakeSource{}, static)
		if !p.TableFor(ctx, "acme").Builtin() {
			t.Error("expected fallback table")
		}
	})

	t.Run("storage error falls back", func(t *testing.T) {
		p := NewStoreProvider(&fakeSource{err: errors.New("connection refused")}, static)
		if !p.TableFor(ctx, "acme").Builtin() {
			t.Error("expected fallback table")
		}
	})

	t.Run("invalid stored table falls back", func(t *testing.T) {
		src := &fakeSource{rules: map[string][]Rule{
			"acme": {{ReasonKey: "a", OfferType: "bogus"}},
		}}
		p := NewStoreProvider(src, static)
		if !p.TableFor(ctx, "acme").Builtin() {
			t.Error("expected fallback table")
		}
	})

	t.Run("empty tenant skips the source", func(t *testing.T) {
		src := &fakeSource{}
		p := NewStoreProvider(src, nil)
		p.TableFor(ctx, "")
		if src.calls != 0 {
			t.Errorf("expected no source calls, got %d", src.calls)
		}
	})
}
