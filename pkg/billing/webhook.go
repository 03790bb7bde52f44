package billing

import (
	"errors"
	"fmt"

	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/stripe/stripe-go/v74/webhook"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	// ErrUnhandledEvent is returned for Stripe event types that are not logged.
	ErrUnhandledEvent = errors.New("unhandled webhook event type")
)

// Stripe event type to logged event type.
var notificationTypes = map[string]string{
	"checkout.session.completed":    "checkout_completed",
	"customer.subscription.created": "subscription_created",
	"customer.subscription.updated": "subscription_updated",
	"customer.subscription.deleted": "subscription_deleted",
	"invoice.payment_succeeded":     "payment_succeeded",
	"invoice.payment_failed":        "payment_failed",
}

// ParseWebhook verifies a webhook payload against the Stripe-Signature header
// and extracts the fields worth logging.
func (c *StripeClient) ParseWebhook(payload []byte, signature string) (conversation.Notification, error) {
	return ParseWebhook(payload, signature, c.webhookSecret)
}

func ParseWebhook(payload []byte, signature, secret string) (conversation.Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return conversation.Notification{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	stripeType := string(event.Type)
	notificationType, ok := notificationTypes[stripeType]
	if !ok {
		return conversation.Notification{ID: event.ID, Type: stripeType}, ErrUnhandledEvent
	}

	var obj object
	if event.Data != nil {
		obj = event.Data.Object
	}

	return conversation.Notification{
		ID:   event.ID,
		Type: notificationType,
		Data: extract(notificationType, obj),
	}, nil
}

func extract(notificationType string, obj object) map[string]any {
	switch notificationType {
	case "checkout_completed":
		return map[string]any{
			"sessionId":      obj.get("id"),
			"customerId":     obj.get("customer"),
			"subscriptionId": obj.get("subscription"),
			"amount":         obj.get("amount_total"),
			"currency":       obj.get("currency"),
			"customerEmail":  obj.get("customer_details", "email"),
		}
	case "subscription_created":
		return map[string]any{
			"subscriptionId": obj.get("id"),
			"customerId":     obj.get("customer"),
			"status":         obj.get("status"),
			"priceId":        obj.firstItem().get("price", "id"),
			"amount":         obj.firstItem().get("price", "unit_amount"),
			"interval":       obj.firstItem().get("price", "recurring", "interval"),
		}
	case "subscription_updated":
		return map[string]any{
			"subscriptionId":    obj.get("id"),
			"customerId":        obj.get("customer"),
			"status":            obj.get("status"),
			"priceId":           obj.firstItem().get("price", "id"),
			"cancelAtPeriodEnd": obj.get("cancel_at_period_end"),
		}
	case "subscription_deleted":
		return map[string]any{
			"subscriptionId": obj.get("id"),
			"customerId":     obj.get("customer"),
			"status":         obj.get("status"),
			"canceledAt":     obj.get("canceled_at"),
		}
	case "payment_succeeded":
		return map[string]any{
			"invoiceId":      obj.get("id"),
			"subscriptionId": obj.get("subscription"),
			"customerId":     obj.get("customer"),
			"amount":         obj.get("amount_paid"),
			"currency":       obj.get("currency"),
		}
	case "payment_failed":
		return map[string]any{
			"invoiceId":      obj.get("id"),
			"subscriptionId": obj.get("subscription"),
			"customerId":     obj.get("customer"),
			"amount":         obj.get("amount_due"),
			"currency":       obj.get("currency"),
			"attemptCount":   obj.get("attempt_count"),
		}
	}
	return map[string]any{}
}

// object is a decoded Stripe API object.
type object map[string]interface{}

// get walks nested keys, returning nil for any missing step.
func (o object) get(path ...string) any {
	var cur any = map[string]interface{}(o)
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func (o object) firstItem() object {
	data, _ := o.get("items", "data").([]interface{})
	if len(data) == 0 {
		return nil
	}
	item, _ := data[0].(map[string]interface{})
	return item
}
