package handler

import (
	"errors"
	"net/http"

	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/churnai/retention-engine/pkg/revenue"
)

type analyticsResponse struct {
	*conversation.AnalyticsReport
	RevenueSaved int64 `json:"revenueSaved"`
}

// Analytics returns a tenant's save rate, revenue and latest conversations.
// Demo figures are served when storage is unavailable.
func (a *API) Analytics(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.Analytics")
	defer scope.Finish()

	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid tenantId: must not be empty")
		return
	}
	scope.WithTenant(tenantID)

	report := a.manager.Analytics(scope.Ctx, tenantID)
	scope.SetAttributes("analytics.demo", report.Demo)

	writeJSON(w, http.StatusOK, analyticsResponse{
		AnalyticsReport: report,
		RevenueSaved:    revenue.ToMajor(report.RevenueSavedMinor, report.Currency),
	})
}

// Conversations lists a tenant's conversations, newest first.
func (a *API) Conversations(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.Conversations")
	defer scope.Finish()

	tenantID, limit, ok := tenantAndLimit(w, r)
	if !ok {
		return
	}
	scope.WithTenant(tenantID)

	convs, err := a.manager.RecentConversations(scope.Ctx, tenantID, limit)
	if err != nil {
		scope.TraceError(err)
		scope.Log.Errorf("failed to list conversations: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId":      tenantID,
		"conversations": convs,
		"count":         len(convs),
	})
}

type playbookResponse struct {
	TenantID string          `json:"tenantId"`
	Builtin  bool            `json:"builtin"`
	Rules    []playbook.Rule `json:"rules"`
}

type playbookRequest struct {
	Rules []playbook.Rule `json:"rules"`
}

// GetPlaybook returns the rules currently applied to a tenant.
func (a *API) GetPlaybook(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid tenantId: must not be empty")
		return
	}

	table := a.playbooks.TableFor(r.Context(), tenantID)
	writeJSON(w, http.StatusOK, playbookResponse{
		TenantID: tenantID,
		Builtin:  table.Builtin(),
		Rules:    table.Rules(),
	})
}

// PutPlaybook replaces a tenant's rules.
func (a *API) PutPlaybook(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.PutPlaybook")
	defer scope.Finish()

	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid tenantId: must not be empty")
		return
	}
	scope.WithTenant(tenantID)

	var req playbookRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Rules) == 0 {
		writeError(w, http.StatusBadRequest, "invalid rules: must not be empty")
		return
	}

	if err := a.rules.SavePlaybookRules(scope.Ctx, tenantID, req.Rules); err != nil {
		if errors.Is(err, playbook.ErrInvalidRule) || errors.Is(err, playbook.ErrDuplicateReason) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scope.TraceError(err)
		scope.Log.Errorf("failed to save playbook: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"tenantId": tenantID,
		"count":    len(req.Rules),
	})
}
