package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/churnai/retention-engine/pkg/billing"
	"github.com/churnai/retention-engine/pkg/conversation"
)

func TestDecision(t *testing.T) {
	env := setupTestAPI(t, nil)

	rec := env.do(t, http.MethodPost, "/decision", map[string]any{
		"tenantId":      "tenant-1",
		"reason":        "the cost is too high",
		"customerEmail": "sarah@techcorp.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["success"] != true || body["persisted"] != true {
		t.Errorf("body = %v", body)
	}
	if body["offerType"] != "discount" || body["offerValue"] != "25" {
		t.Errorf("offer = %v/%v, expected discount/25", body["offerType"], body["offerValue"])
	}
	meta := body["metadata"].(map[string]any)
	if meta["matchedReasonKey"] != "too-expensive" || meta["matchKind"] != "keyword" {
		t.Errorf("metadata = %v", meta)
	}
	if body["conversationId"] == "" {
		t.Error("expected conversation id")
	}
}

func TestDecision_DefaultOfferHasNullReasonKey(t *testing.T) {
	env := setupTestAPI(t, nil)

	rec := env.do(t, http.MethodPost, "/decision", map[string]any{
		"tenantId":      "tenant-1",
		"reason":        "moving abroad",
		"customerEmail": "sarah@techcorp.com",
	})
	meta := decode(t, rec)["metadata"].(map[string]any)
	if v, ok := meta["matchedReasonKey"]; !ok || v != nil {
		t.Errorf("matchedReasonKey = %v, expected null", v)
	}
}

func TestDecision_Validation(t *testing.T) {
	env := setupTestAPI(t, nil)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing tenant", map[string]any{"reason": "x", "customerEmail": "a@b.co"}},
		{"missing reason", map[string]any{"tenantId": "t", "customerEmail": "a@b.co"}},
		{"missing email", map[string]any{"tenantId": "t", "reason": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, "/decision", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, expected 400", rec.Code)
			}
		})
	}
}

func TestDescriptors(t *testing.T) {
	env := setupTestAPI(t, nil)

	tests := []struct {
		path    string
		message string
	}{
		{"/decision", "ChurnAI Decision API"},
		{"/apply-offer", "ChurnAI Apply Offer API"},
		{"/events", "ChurnAI Events API"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			body := decode(t, env.do(t, http.MethodGet, tt.path, nil))
			if body["message"] != tt.message || body["version"] != "1.0.0" {
				t.Errorf("GET %s = %v", tt.path, body)
			}
			if _, ok := body["endpoints"].(map[string]any)["POST"]; !ok {
				t.Error("expected POST endpoint description")
			}
		})
	}

	events := decode(t, env.do(t, http.MethodGet, "/events", nil))
	if len(events["supportedEvents"].([]any)) != len(conversation.ClientEventTypes) {
		t.Errorf("supportedEvents = %v", events["supportedEvents"])
	}
}

func TestApplyOffer_Accept(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "too-expensive")

	rec := env.do(t, http.MethodPost, "/apply-offer", map[string]any{
		"conversationId": id,
		"accepted":       true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["status"] != "accepted" {
		t.Errorf("status = %v, expected accepted", body["status"])
	}
	if body["revenueSavedMinor"] != float64(7425) || body["revenueSaved"] != float64(74) {
		t.Errorf("revenue = %v/%v, expected 7425/74", body["revenueSavedMinor"], body["revenueSaved"])
	}
	if body["couponId"] != "coupon_test" || body["alreadyResponded"] != false {
		t.Errorf("body = %v", body)
	}

	again := decode(t, env.do(t, http.MethodPost, "/apply-offer", map[string]any{
		"conversationId": id,
		"accepted":       true,
	}))
	if again["alreadyResponded"] != true {
		t.Error("expected second accept to report alreadyResponded")
	}
	if env.billing.couponCall != 1 {
		t.Errorf("coupon calls = %d, expected 1", env.billing.couponCall)
	}
}

func TestApplyOffer_ZeroDecimalCurrency(t *testing.T) {
	env := setupTestAPI(t, nil)
	env.billing.currency = "jpy"
	id := env.decide(t, "too-expensive")

	body := decode(t, env.do(t, http.MethodPost, "/apply-offer", map[string]any{
		"conversationId": id,
		"accepted":       true,
	}))
	if body["currency"] != "jpy" {
		t.Errorf("currency = %v, expected jpy", body["currency"])
	}
	if body["revenueSavedMinor"] != float64(7425) || body["revenueSaved"] != float64(7425) {
		t.Errorf("revenue = %v/%v, expected 7425/7425 for a zero-decimal currency", body["revenueSavedMinor"], body["revenueSaved"])
	}
}

func TestApplyOffer_Decline(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "not-using")

	body := decode(t, env.do(t, http.MethodPost, "/apply-offer", map[string]any{
		"conversationId": id,
		"accepted":       false,
	}))
	if body["status"] != "declined" || body["revenueSaved"] != float64(0) {
		t.Errorf("body = %v", body)
	}
}

func TestApplyOffer_BillingFailure(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "too-expensive")
	env.billing.err = errors.New("card_declined")

	rec := env.do(t, http.MethodPost, "/apply-offer", map[string]any{
		"conversationId": id,
		"accepted":       true,
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, expected 502", rec.Code)
	}
	if decode(t, rec)["error"] != billingFailureMessage {
		t.Errorf("body = %s", rec.Body.String())
	}

	conv, err := env.store.GetConversation(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Status != conversation.StatusPending {
		t.Errorf("status = %s, expected pending after billing failure", conv.Status)
	}
}

func TestApplyOffer_InProgress(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "too-expensive")

	if _, err := env.store.UpdateConversation(t.Context(), id,
		conversation.Patch{Status: conversation.StatusApplying}, conversation.StatusPending); err != nil {
		t.Fatal(err)
	}

	for _, accepted := range []bool{true, false} {
		rec := env.do(t, http.MethodPost, "/apply-offer", map[string]any{
			"conversationId": id,
			"accepted":       accepted,
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("accepted=%v: status = %d, expected 409: %s", accepted, rec.Code, rec.Body.String())
		}
		body := decode(t, rec)
		if body["success"] != false || body["status"] != "applying" {
			t.Errorf("accepted=%v: body = %v, expected success false while applying", accepted, body)
		}
	}

	if env.billing.couponCall != 0 {
		t.Errorf("coupon calls = %d, expected 0", env.billing.couponCall)
	}
	conv, err := env.store.GetConversation(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Status != conversation.StatusApplying {
		t.Errorf("status = %s, expected the claim untouched", conv.Status)
	}
}

func TestApplyOffer_Errors(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "too-expensive")

	tests := []struct {
		name     string
		body     map[string]any
		expected int
	}{
		{"missing accepted", map[string]any{"conversationId": id}, http.StatusBadRequest},
		{"missing id", map[string]any{"accepted": true}, http.StatusBadRequest},
		{"unknown conversation", map[string]any{"conversationId": "nope", "accepted": true}, http.StatusNotFound},
		{"other tenant", map[string]any{"conversationId": id, "accepted": true, "tenantId": "tenant-2"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, "/apply-offer", tt.body); rec.Code != tt.expected {
				t.Errorf("status = %d, expected %d: %s", rec.Code, tt.expected, rec.Body.String())
			}
		})
	}
}

func TestApplyOffer_StorageDown(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "too-expensive")
	env.mr.SetError("LOADING")

	rec := env.do(t, http.MethodPost, "/apply-offer", map[string]any{
		"conversationId": id,
		"accepted":       true,
	})
	if rec.Code == http.StatusOK {
		t.Errorf("expected failure while storage is down, got %s", rec.Body.String())
	}
}

func TestEvents(t *testing.T) {
	env := setupTestAPI(t, nil)

	rec := env.do(t, http.MethodPost, "/events", map[string]any{
		"tenantId":      "tenant-1",
		"eventType":     "widget_loaded",
		"eventData":     map[string]any{"page": "/settings"},
		"customerEmail": "sarah@techcorp.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["message"] != "Event logged successfully" {
		t.Errorf("body = %v", body)
	}

	list := decode(t, env.do(t, http.MethodGet, "/events?tenantId=tenant-1", nil))
	events := list["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	data := events[0].(map[string]any)["data"].(map[string]any)
	if data["page"] != "/settings" || data["customerEmail"] != "sarah@techcorp.com" {
		t.Errorf("event data = %v", data)
	}
	if _, ok := data["timestamp"]; !ok {
		t.Error("expected timestamp enrichment")
	}

	if rec := env.do(t, http.MethodPost, "/events", map[string]any{"tenantId": "tenant-1"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing eventType: status = %d, expected 400", rec.Code)
	}
}

func TestAnalyticsAndConversations(t *testing.T) {
	env := setupTestAPI(t, nil)
	id := env.decide(t, "too-expensive")
	env.decide(t, "not-using")
	env.do(t, http.MethodPost, "/apply-offer", map[string]any{"conversationId": id, "accepted": true})

	a := decode(t, env.do(t, http.MethodGet, "/analytics?tenantId=tenant-1", nil))
	if a["attempts"] != float64(2) || a["saves"] != float64(1) || a["saveRate"] != float64(50) {
		t.Errorf("analytics = %v", a)
	}
	if a["revenueSaved"] != float64(74) {
		t.Errorf("revenueSaved = %v, expected 74", a["revenueSaved"])
	}
	if len(a["conversations"].([]any)) != 2 {
		t.Errorf("conversations = %v", a["conversations"])
	}

	c := decode(t, env.do(t, http.MethodGet, "/conversations?tenantId=tenant-1&limit=1", nil))
	if c["count"] != float64(1) {
		t.Errorf("count = %v, expected 1", c["count"])
	}

	if rec := env.do(t, http.MethodGet, "/conversations?tenantId=tenant-1&limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, expected 400", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/analytics", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing tenant: status = %d, expected 400", rec.Code)
	}
}

func TestAnalytics_DemoFallback(t *testing.T) {
	env := setupTestAPI(t, nil)
	env.mr.SetError("LOADING")

	a := decode(t, env.do(t, http.MethodGet, "/analytics?tenantId=tenant-1", nil))
	if a["demo"] != true || a["attempts"] != float64(120) || a["revenueSaved"] != float64(26340) {
		t.Errorf("analytics = %v, expected demo data", a)
	}
}

func TestPlaybook(t *testing.T) {
	env := setupTestAPI(t, nil)

	before := decode(t, env.do(t, http.MethodGet, "/playbook?tenantId=acme", nil))
	if before["builtin"] != true {
		t.Errorf("expected built-in playbook, got %v", before)
	}

	rec := env.do(t, http.MethodPut, "/playbook?tenantId=acme", map[string]any{
		"rules": []map[string]any{
			{"reason": "too-expensive", "offerType": "pause", "value": "1", "message": "Take a month off"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /playbook = %d: %s", rec.Code, rec.Body.String())
	}

	after := decode(t, env.do(t, http.MethodGet, "/playbook?tenantId=acme", nil))
	if after["builtin"] != false || len(after["rules"].([]any)) != 1 {
		t.Errorf("playbook = %v", after)
	}

	rec = env.do(t, http.MethodPost, "/decision", map[string]any{
		"tenantId": "acme", "reason": "too-expensive", "customerEmail": "a@b.co",
	})
	if body := decode(t, rec); body["offerType"] != "pause" {
		t.Errorf("decision after playbook update = %v", body)
	}

	invalid := []map[string]any{
		{"rules": []map[string]any{}},
		{"rules": []map[string]any{{"reason": "a", "offerType": "refund"}}},
		{"rules": []map[string]any{{"reason": "a", "offerType": "none"}, {"reason": "a", "offerType": "none"}}},
	}
	for _, body := range invalid {
		if rec := env.do(t, http.MethodPut, "/playbook?tenantId=acme", body); rec.Code != http.StatusBadRequest {
			t.Errorf("PUT %v: status = %d, expected 400", body, rec.Code)
		}
	}
}

func TestStripeWebhook(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := setupTestAPI(t, nil)
		if rec := env.do(t, http.MethodPost, "/webhooks/stripe", map[string]any{}); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, expected 503", rec.Code)
		}
	})

	t.Run("logged", func(t *testing.T) {
		env := setupTestAPI(t, fakeWebhooks{n: conversation.Notification{
			ID:   "evt_1",
			Type: "payment_failed",
			Data: map[string]any{"invoiceId": "in_1"},
		}})
		rec := env.do(t, http.MethodPost, "/webhooks/stripe", map[string]any{})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		events, err := env.store.QueryEvents(t.Context(), conversation.BillingTenant, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Type != "payment_failed" || events[0].Data["stripeEventId"] != "evt_1" {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		env := setupTestAPI(t, fakeWebhooks{err: billing.ErrInvalidSignature})
		if rec := env.do(t, http.MethodPost, "/webhooks/stripe", map[string]any{}); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, expected 400", rec.Code)
		}
	})

	t.Run("unhandled type", func(t *testing.T) {
		env := setupTestAPI(t, fakeWebhooks{
			n:   conversation.Notification{Type: "charge.refunded"},
			err: billing.ErrUnhandledEvent,
		})
		if rec := env.do(t, http.MethodPost, "/webhooks/stripe", map[string]any{}); rec.Code != http.StatusOK {
			t.Errorf("status = %d, expected 200", rec.Code)
		}
		events, _ := env.store.QueryEvents(t.Context(), conversation.BillingTenant, 10)
		if len(events) != 0 {
			t.Errorf("unhandled events must not be logged, got %d", len(events))
		}
	})
}
