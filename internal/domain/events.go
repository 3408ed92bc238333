/**
 * @description
 * This file defines the event-side domain models: the transactional outbox
 * event written alongside every payout state change, the webhook payload
 * pushed to merchants, and the per-attempt delivery audit record.
 *
 * @notes
 * - OutboxEvent rows are produced in the same database transaction as the
 *   state change they announce. That co-transactional write is what makes
 *   webhook delivery survive a crash between "state changed" and "notified".
 * - WebhookDelivery rows are purely observational; one row per attempt,
 *   never mutated after insert.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox event types.
const (
	EventPayoutCreated     = "PAYOUT_CREATED"
	EventPayoutUpdated     = "PAYOUT_UPDATED"
	EventPayoutReinitiated = "PAYOUT_REINITIATED"
)

// Webhook delivery attempt outcomes.
const (
	DeliveryStatusSuccess = "SUCCESS"
	DeliveryStatusFailed  = "FAILED"
)

// OutboxEvent is a durably persisted "something happened" record, drained by
// the worker loop and delivered to the merchant's webhook endpoint.
type OutboxEvent struct {
	ID          uuid.UUID       `json:"id"`
	MerchantID  uuid.UUID       `json:"merchant_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// WebhookPayload is the JSON body POSTed to a merchant's webhook endpoint.
type WebhookPayload struct {
	Event     string         `json:"event"`
	Payout    PayoutResponse `json:"payout"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
}

// WebhookDelivery records one delivery attempt against a merchant endpoint.
type WebhookDelivery struct {
	ID          uuid.UUID `json:"id"`
	MerchantID  uuid.UUID `json:"merchant_id"`
	EventID     uuid.UUID `json:"event_id"`
	EventType   string    `json:"event_type"`
	Payload     string    `json:"payload"`
	Signature   string    `json:"signature"`
	Status      string    `json:"status"`
	StatusCode  *int      `json:"status_code,omitempty"`
	Response    *string   `json:"response,omitempty"`
	Attempt     int       `json:"attempt"`
	DeliveredAt time.Time `json:"delivered_at"`
	CreatedAt   time.Time `json:"created_at"`
}
