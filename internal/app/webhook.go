/**
 * @description
 * Webhook delivery for outbox events. The sender builds the JSON payload from
 * the payout snapshot stored in the event, signs it with the merchant's
 * webhook secret (HMAC-SHA256, hex), POSTs it to the registered endpoint, and
 * records every attempt as a WebhookDelivery audit row.
 *
 * Retries happen synchronously within one dispatch cycle with a fixed
 * inter-attempt delay. When the cycle's attempts are exhausted the event stays
 * unprocessed and is picked up again on a later worker tick, so delivery is
 * at-least-once and survives partner downtime.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For payload signing.
 * - net/http: For the outbound POST.
 * - internal/domain, internal/store: Models and delivery-attempt persistence.
 */

package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

// Webhook request headers.
const (
	HeaderSignature = "X-MyPay-Signature"
	HeaderEvent     = "X-MyPay-Event"
)

const deliveryResponseLimit = 2048

// ErrMalformedEventPayload marks an outbox event whose stored payload cannot
// be decoded. Such an event can never be delivered, so retrying it is
// pointless; the worker drops it from the queue instead.
var ErrMalformedEventPayload = errors.New("malformed outbox event payload")

// Deliverer pushes one outbox event to a merchant endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, merchant *domain.Merchant, event domain.OutboxEvent) error
}

// WebhookSender is the HTTP implementation of Deliverer.
type WebhookSender struct {
	repo        store.Repository
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration)
}

// NewWebhookSender creates a sender with the given per-cycle attempt budget.
// The HTTP timeout is a hard bound on each individual attempt.
func NewWebhookSender(repo store.Repository, timeout time.Duration, maxAttempts int, retryDelay time.Duration) *WebhookSender {
	return &WebhookSender{
		repo:        repo,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// SignPayload computes the hex HMAC-SHA256 signature for a webhook body.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver pushes the event, retrying within this cycle up to the configured
// attempt count. Returns nil once a 2xx response is received; otherwise the
// last delivery error.
func (s *WebhookSender) Deliver(ctx context.Context, merchant *domain.Merchant, event domain.OutboxEvent) error {
	body, signature, err := s.buildRequest(merchant, event)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			s.sleep(ctx, s.retryDelay)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		statusCode, responseBody, attemptErr := s.attempt(ctx, merchant, event, body, signature)
		s.recordAttempt(ctx, merchant, event, body, signature, attempt, statusCode, responseBody, attemptErr)

		if attemptErr == nil {
			log.Printf("level=info component=webhook outcome=delivered event_id=%s merchant_id=%s event_type=%s attempt=%d",
				event.ID, merchant.ID, event.EventType, attempt)
			return nil
		}
		lastErr = attemptErr
		log.Printf("level=warn component=webhook outcome=attempt_failed event_id=%s merchant_id=%s attempt=%d err=%v",
			event.ID, merchant.ID, attempt, attemptErr)
	}
	return lastErr
}

func (s *WebhookSender) buildRequest(merchant *domain.Merchant, event domain.OutboxEvent) ([]byte, string, error) {
	var snapshot domain.PayoutResponse
	if err := json.Unmarshal(event.Payload, &snapshot); err != nil {
		return nil, "", fmt.Errorf("%w: event %s: %v", ErrMalformedEventPayload, event.ID, err)
	}

	payload := domain.WebhookPayload{
		Event:     event.EventType,
		Payout:    snapshot,
		Message:   domain.StatusMessage(snapshot.Status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return body, SignPayload(merchant.WebhookSecret, body), nil
}

func (s *WebhookSender) attempt(ctx context.Context, merchant *domain.Merchant, event domain.OutboxEvent, body []byte, signature string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *merchant.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event.EventType)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	responseBytes, _ := io.ReadAll(io.LimitReader(resp.Body, deliveryResponseLimit))
	responseBody := string(responseBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, responseBody, fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, responseBody, nil
}

func (s *WebhookSender) recordAttempt(ctx context.Context, merchant *domain.Merchant, event domain.OutboxEvent, body []byte, signature string, attempt, statusCode int, responseBody string, attemptErr error) {
	delivery := &domain.WebhookDelivery{
		ID:          uuid.New(),
		MerchantID:  merchant.ID,
		EventID:     event.ID,
		EventType:   event.EventType,
		Payload:     string(body),
		Signature:   signature,
		Status:      domain.DeliveryStatusSuccess,
		Attempt:     attempt,
		DeliveredAt: time.Now().UTC(),
	}
	if statusCode > 0 {
		code := statusCode
		delivery.StatusCode = &code
	}
	if attemptErr != nil {
		delivery.Status = domain.DeliveryStatusFailed
		detail := attemptErr.Error()
		if responseBody != "" {
			detail = responseBody
		}
		delivery.Response = &detail
	} else if responseBody != "" {
		delivery.Response = &responseBody
	}

	// Audit only: a failure to persist the attempt never affects delivery.
	if err := s.repo.CreateWebhookDelivery(ctx, delivery); err != nil {
		log.Printf("level=error component=webhook msg=\"failed to record delivery attempt\" event_id=%s err=%v", event.ID, err)
	}
}
