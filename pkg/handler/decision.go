package handler

import (
	"net/http"

	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/offer"
	"github.com/churnai/retention-engine/pkg/playbook"
)

type decisionRequest struct {
	TenantID       string `json:"tenantId"`
	Reason         string `json:"reason"`
	CustomerEmail  string `json:"customerEmail"`
	SubscriptionID string `json:"subscriptionId"`
}

type decisionMetadata struct {
	Reason           string          `json:"reason"`
	Priority         int             `json:"priority"`
	TenantID         string          `json:"tenantId"`
	MatchedReasonKey *string         `json:"matchedReasonKey"`
	MatchKind        offer.MatchKind `json:"matchKind"`
}

type decisionResponse struct {
	Success        bool               `json:"success"`
	OfferType      playbook.OfferType `json:"offerType"`
	OfferValue     string             `json:"offerValue"`
	DurationMonths int                `json:"durationMonths,omitempty"`
	Message        string             `json:"message"`
	ConversationID string             `json:"conversationId"`
	Persisted      bool               `json:"persisted"`
	Metadata       decisionMetadata   `json:"metadata"`
}

// Decision picks a retention offer for a cancellation reason and opens a conversation.
func (a *API) Decision(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.Decision")
	defer scope.Finish()

	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	scope.WithTenant(req.TenantID)

	d, err := a.manager.CreateConversation(scope.Ctx, conversation.CreateRequest{
		TenantID:       req.TenantID,
		CustomerRef:    req.CustomerEmail,
		SubscriptionID: req.SubscriptionID,
		Reason:         req.Reason,
	})
	if err != nil {
		scope.TraceError(err)
		writeLifecycleError(w, scope.Log, err)
		return
	}

	scope.SetAttributes("offer.type", string(d.Offer.OfferType))
	scope.SetAttributes("offer.match_kind", string(d.Offer.MatchKind))
	if !d.Persisted {
		scope.TraceEvent("conversation not persisted")
	}

	writeJSON(w, http.StatusOK, decisionResponse{
		Success:        true,
		OfferType:      d.Offer.OfferType,
		OfferValue:     d.Offer.OfferValue,
		DurationMonths: d.Offer.DurationMonths,
		Message:        d.Offer.Message,
		ConversationID: d.Conversation.ID,
		Persisted:      d.Persisted,
		Metadata: decisionMetadata{
			Reason:           req.Reason,
			Priority:         d.Offer.Priority,
			TenantID:         req.TenantID,
			MatchedReasonKey: d.Offer.MatchedReasonKey,
			MatchKind:        d.Offer.MatchKind,
		},
	})
}
