package handler

import (
	"net/http"
	"time"

	"github.com/churnai/retention-engine/pkg/common"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/churnai/retention-engine/pkg/revenue"
)

type applyOfferRequest struct {
	ConversationID string `json:"conversationId"`
	Accepted       *bool  `json:"accepted"`
	SubscriptionID string `json:"subscriptionId"`
	TenantID       string `json:"tenantId"`
}

type applyOfferResponse struct {
	Success           bool                `json:"success"`
	Status            conversation.Status `json:"status"`
	ConversationID    string              `json:"conversationId"`
	OfferType         playbook.OfferType  `json:"offerType"`
	RevenueSaved      int64               `json:"revenueSaved"`
	RevenueSavedMinor int64               `json:"revenueSavedMinor"`
	Currency          string              `json:"currency,omitempty"`
	AlreadyResponded  bool                `json:"alreadyResponded"`
	CouponID          string              `json:"couponId,omitempty"`
	ResumesAt         *time.Time          `json:"resumesAt,omitempty"`
	ManualFollowup    bool                `json:"manualFollowup,omitempty"`
}

// ApplyOffer records the customer's answer and, on acceptance, applies the offer.
func (a *API) ApplyOffer(w http.ResponseWriter, r *http.Request) {
	scope := common.GetScopeFromContext(r.Context(), "API.ApplyOffer")
	defer scope.Finish()

	var req applyOfferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Accepted == nil {
		writeError(w, http.StatusBadRequest, "invalid accepted: must be set")
		return
	}
	scope.WithTenant(req.TenantID)
	scope.SetAttributes("conversation.id", req.ConversationID)

	res, err := a.manager.RecordResponse(scope.Ctx, conversation.ResponseRequest{
		ConversationID: req.ConversationID,
		TenantID:       req.TenantID,
		Accepted:       *req.Accepted,
		SubscriptionID: req.SubscriptionID,
	})
	if err != nil {
		scope.TraceError(err)
		writeLifecycleError(w, scope.Log, err)
		return
	}

	conv := res.Conversation
	writeJSON(w, http.StatusOK, applyOfferResponse{
		Success:           true,
		Status:            conv.Status,
		ConversationID:    conv.ID,
		OfferType:         conv.OfferType,
		RevenueSaved:      revenue.ToMajor(res.RevenueSavedMinor, res.Currency),
		RevenueSavedMinor: res.RevenueSavedMinor,
		Currency:          res.Currency,
		AlreadyResponded:  res.AlreadyResponded,
		CouponID:          res.CouponID,
		ResumesAt:         res.ResumesAt,
		ManualFollowup:    res.ManualFollowup,
	})
}
