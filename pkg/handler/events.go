package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/churnai/retention-engine/pkg/billing"
	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/conversation"
)

type eventRequest struct {
	TenantID      string         `json:"tenantId"`
	EventType     string         `json:"eventType"`
	EventData     map[string]any `json:"eventData"`
	CustomerEmail string         `json:"customerEmail"`
}

type eventResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	EventType string `json:"eventType"`
	TenantID  string `json:"tenantId"`
}

// Event logs a widget or dashboard event.
func (a *API) Event(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.Event")
	defer scope.Finish()

	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	scope.WithTenant(req.TenantID)

	err := a.manager.RecordClientEvent(scope.Ctx, conversation.ClientEvent{
		TenantID:    req.TenantID,
		Type:        req.EventType,
		Data:        req.EventData,
		CustomerRef: req.CustomerEmail,
		UserAgent:   r.UserAgent(),
		ClientIP:    common.ClientIP(r),
	})
	if err != nil {
		writeLifecycleError(w, scope.Log, err)
		return
	}

	writeJSON(w, http.StatusOK, eventResponse{
		Success:   true,
		Message:   "Event logged successfully",
		EventType: req.EventType,
		TenantID:  req.TenantID,
	})
}

// ListEvents returns a tenant's most recent events.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.ListEvents")
	defer scope.Finish()

	tenantID, limit, ok := tenantAndLimit(w, r)
	if !ok {
		return
	}
	scope.WithTenant(tenantID)

	events, err := a.manager.RecentEvents(scope.Ctx, tenantID, limit)
	if err != nil {
		scope.TraceError(err)
		scope.Log.Errorf("failed to list events: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId": tenantID,
		"events":   events,
		"count":    len(events),
	})
}

// StripeWebhook logs verified billing lifecycle notifications.
func (a *API) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.StripeWebhook")
	defer scope.Finish()

	if a.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "Billing webhooks are not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Webhook payload too large")
		return
	}

	n, err := a.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrUnhandledEvent):
		scope.Log.Infof("unhandled webhook event type: %s", n.Type)
	case err != nil:
		scope.Log.Warnf("rejected webhook: %v", err)
		writeError(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	default:
		a.manager.RecordBillingNotification(scope.Ctx, n)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func tenantAndLimit(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query()
	tenantID := q.Get("tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid tenantId: must not be empty")
		return "", 0, false
	}

	limit := conversation.DefaultListLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: must be a positive integer")
			return "", 0, false
		}
		limit = v
	}
	return tenantID, limit, true
}
