package gateway

import (
	"encoding/json"
	"time"

	"fullsound/internal/apperr"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// acceptedEvents are the notifications that can change a payment
var acceptedEvents = map[stripe.EventType]bool{
	"payment_intent.succeeded":      true,
	"payment_intent.canceled":       true,
	"payment_intent.payment_failed": true,
	"payment_intent.processing":     true,
}

// WebhookEvent is a verified Stripe notification about a payment intent
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
}

// WebhookVerifier checks Stripe-Signature headers against the endpoint secret
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse verifies the payload and extracts the intent id.
// ok is false for well-signed events of a type the service does not act on.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (event *WebhookEvent, ok bool, err error) {
	if v.secret == "" {
		return nil, false, apperr.Validation("webhook secret is not configured")
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, false, apperr.Validation("invalid webhook signature")
	}

	if !acceptedEvents[evt.Type] {
		return &WebhookEvent{ID: evt.ID, Type: string(evt.Type)}, false, nil
	}

	if evt.Data == nil {
		return nil, false, apperr.Validation("webhook event has no data")
	}
	var intent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil || intent.ID == "" {
		return nil, false, apperr.Validation("webhook event has no payment intent")
	}

	return &WebhookEvent{ID: evt.ID, Type: string(evt.Type), IntentID: intent.ID}, true, nil
}
