package models

import (
	"time"
)

// Webhook event types delivered by the payment provider.
const (
	WebhookSubscriptionCreated   = "subscription.created"
	WebhookPaymentCreated        = "payment.created"
	WebhookSubscriptionCancelled = "subscription.cancelled"
	WebhookSubscriptionExpired   = "subscription.expired"
)

// ProcessedWebhookEvent is one row in the append-only idempotency ledger.
// Keyed by the provider's event ID; a unique constraint guarantees an event
// is processed at most once. Rows are never mutated or deleted.
type ProcessedWebhookEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}

// WebhookEvent is the decoded payment provider payload.
type WebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	PlanID  string `json:"plan_id,omitempty"`
	Created int64  `json:"created,omitempty"`
}
