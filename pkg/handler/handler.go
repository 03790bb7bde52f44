package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/playbook"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	apiVersion = "1.0.0"

	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 1 << 20
	// maxWebhookBytes matches the payload size Stripe documents for webhooks.
	maxWebhookBytes = 65536

	billingFailureMessage = "We couldn't complete your request"
)

// PlaybookStore persists tenant-authored rules.
type PlaybookStore interface {
	SavePlaybookRules(ctx context.Context, tenantID string, rules []playbook.Rule) error
}

// WebhookParser verifies and decodes billing webhooks.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (conversation.Notification, error)
}

// API serves the decision, offer, event and dashboard endpoints.
type API struct {
	manager   *conversation.Manager
	playbooks playbook.Provider
	rules     PlaybookStore
	webhooks  WebhookParser
}

// NewAPI creates the HTTP API. webhooks may be nil when no webhook secret is configured.
func NewAPI(
	manager *conversation.Manager,
	playbooks playbook.Provider,
	rules PlaybookStore,
	webhooks WebhookParser,
) *API {
	return &API{
		manager:   manager,
		playbooks: playbooks,
		rules:     rules,
		webhooks:  webhooks,
	}
}

// Register mounts all routes on r.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/decision", a.Decision).Methods(http.MethodPost)
	r.HandleFunc("/decision", describe(decisionDescriptor)).Methods(http.MethodGet)

	r.HandleFunc("/apply-offer", a.ApplyOffer).Methods(http.MethodPost)
	r.HandleFunc("/apply-offer", describe(applyOfferDescriptor)).Methods(http.MethodGet)

	r.HandleFunc("/events", a.Event).Methods(http.MethodPost)
	r.HandleFunc("/events", a.ListEvents).Methods(http.MethodGet).Queries("tenantId", "{tenantId}")
	r.HandleFunc("/events", describe(eventsDescriptor)).Methods(http.MethodGet)

	r.HandleFunc("/analytics", a.Analytics).Methods(http.MethodGet)
	r.HandleFunc("/conversations", a.Conversations).Methods(http.MethodGet)
	r.HandleFunc("/playbook", a.GetPlaybook).Methods(http.MethodGet)
	r.HandleFunc("/playbook", a.PutPlaybook).Methods(http.MethodPut)

	r.HandleFunc("/webhooks/stripe", a.StripeWebhook).Methods(http.MethodPost)
}

// WritePaths lists the routes that create or change state.
func WritePaths() []string {
	return []string{"/decision", "/apply-offer", "/events", "/playbook"}
}

type errorResponse struct {
	Error string `json:"error"`
}

type inProgressResponse struct {
	Success bool                `json:"success"`
	Status  conversation.Status `json:"status"`
	Error   string              `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeLifecycleError maps conversation errors to HTTP responses.
func writeLifecycleError(w http.ResponseWriter, log *logrus.Entry, err error) {
	var (
		verr *conversation.ValidationError
		berr *conversation.BillingError
		perr *conversation.PersistenceError
	)

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, conversation.ErrInProgress):
		writeJSON(w, http.StatusConflict, inProgressResponse{
			Success: false,
			Status:  conversation.StatusApplying,
			Error:   "Offer is still being applied, retry shortly",
		})
	case errors.As(err, &berr):
		log.Errorf("billing failed: %v", err)
		writeError(w, http.StatusBadGateway, billingFailureMessage)
	case errors.As(err, &perr):
		log.Errorf("persistence failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable")
	default:
		log.Errorf("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type descriptor struct {
	Message         string            `json:"message"`
	Version         string            `json:"version"`
	Endpoints       map[string]string `json:"endpoints"`
	SupportedOffers []string          `json:"supportedOffers,omitempty"`
	SupportedEvents []string          `json:"supportedEvents,omitempty"`
}

var (
	decisionDescriptor = descriptor{
		Message:   "ChurnAI Decision API",
		Version:   apiVersion,
		Endpoints: map[string]string{"POST": "Match cancellation reason to retention offer"},
	}
	applyOfferDescriptor = descriptor{
		Message:   "ChurnAI Apply Offer API",
		Version:   apiVersion,
		Endpoints: map[string]string{"POST": "Record a response and apply the accepted offer"},
		SupportedOffers: []string{
			string(playbook.OfferDiscount),
			string(playbook.OfferPause),
			string(playbook.OfferDowngrade),
		},
	}
	eventsDescriptor = descriptor{
		Message:         "ChurnAI Events API",
		Version:         apiVersion,
		Endpoints:       map[string]string{"POST": "Log widget and dashboard events for analytics"},
		SupportedEvents: conversation.ClientEventTypes,
	}
)

func describe(d descriptor) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, d)
	}
}
