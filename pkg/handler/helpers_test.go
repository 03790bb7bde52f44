package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/offer"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/churnai/retention-engine/pkg/store"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

type testBilling struct {
	err        error
	currency   string
	couponCall int
}

func (b *testBilling) CreateDiscountCoupon(context.Context, int64, int64) (string, error) {
	b.couponCall++
	if b.err != nil {
		return "", b.err
	}
	return "coupon_test", nil
}

func (b *testBilling) ApplyCouponToSubscription(context.Context, string, string) (string, error) {
	return "active", b.err
}

func (b *testBilling) PauseSubscription(context.Context, string, time.Time) (string, error) {
	return "active", b.err
}

func (b *testBilling) GetSubscriptionPriceInfo(context.Context, string) (*conversation.PriceInfo, error) {
	if b.err != nil {
		return nil, b.err
	}
	currency := b.currency
	if currency == "" {
		currency = "usd"
	}
	return &conversation.PriceInfo{MonthlyAmountMinor: 9900, Currency: currency}, nil
}

// syncEmitter writes events straight to the store so tests can read them back.
type syncEmitter struct {
	events conversation.EventStore
}

func (e syncEmitter) Emit(ctx context.Context, ev *conversation.Event) {
	_ = e.events.InsertEvent(ctx, ev)
}

type fakeWebhooks struct {
	n   conversation.Notification
	err error
}

func (f fakeWebhooks) ParseWebhook([]byte, string) (conversation.Notification, error) {
	return f.n, f.err
}

type testEnv struct {
	mr      *miniredis.Miniredis
	store   *store.RedisStore
	billing *testBilling
	router  *mux.Router
}

func setupTestAPI(t *testing.T, webhooks WebhookParser) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	rs := store.NewRedisStore(client, store.RedisStoreConfig{})
	provider := playbook.NewStoreProvider(rs, nil)
	billing := &testBilling{}

	m, err := conversation.NewManager(conversation.ManagerDeps{
		Resolver: offer.NewResolver(provider, nil),
		Store:    rs,
		Events:   rs,
		Emitter:  syncEmitter{events: rs},
		Billing:  billing,
	}, conversation.Config{BillingTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	router := mux.NewRouter()
	NewAPI(m, provider, rs, webhooks).Register(router)

	return &testEnv{mr: mr, store: rs, billing: billing, router: router}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

func (e *testEnv) decide(t *testing.T, reason string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/decision", map[string]any{
		"tenantId":       "tenant-1",
		"reason":         reason,
		"customerEmail":  "sarah@techcorp.com",
		"subscriptionId": "sub_123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /decision = %d: %s", rec.Code, rec.Body.String())
	}
	return decode(t, rec)["conversationId"].(string)
}
