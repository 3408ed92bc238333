package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

type webhookRepoStub struct {
	store.Repository

	deliveries []*domain.WebhookDelivery
}

func (s *webhookRepoStub) CreateWebhookDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	s.deliveries = append(s.deliveries, delivery)
	return nil
}

func webhookTestEvent(t *testing.T) domain.OutboxEvent {
	t.Helper()
	payout := domain.Payout{
		ID:                uuid.New(),
		MerchantID:        uuid.New(),
		MerchantReference: "ref-hook",
		Currency:          domain.Currency,
		DestType:          domain.DestTypeBank,
		AccountNumber:     "1234567890",
		Status:            domain.PayoutStatusSuccess,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	payload, err := json.Marshal(domain.NewPayoutResponse(payout))
	if err != nil {
		t.Fatalf("failed to marshal payout snapshot: %v", err)
	}
	return domain.OutboxEvent{
		ID:         uuid.New(),
		MerchantID: payout.MerchantID,
		EventType:  domain.EventPayoutUpdated,
		Payload:    payload,
	}
}

func TestWebhookDeliver_SignsAndPostsPayload(t *testing.T) {
	var gotSignature, gotEventHeader string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(HeaderSignature)
		gotEventHeader = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &webhookRepoStub{}
	sender := NewWebhookSender(repo, 2*time.Second, 3, time.Millisecond)
	merchant := &domain.Merchant{
		ID:            uuid.New(),
		WebhookURL:    &server.URL,
		WebhookSecret: "whsec_test",
	}
	event := webhookTestEvent(t)

	if err := sender.Deliver(context.Background(), merchant, event); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if gotEventHeader != domain.EventPayoutUpdated {
		t.Fatalf("expected event header %s, got %s", domain.EventPayoutUpdated, gotEventHeader)
	}
	if gotSignature != SignPayload("whsec_test", gotBody) {
		t.Fatal("expected the signature to match the delivered body")
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("failed to decode webhook payload: %v", err)
	}
	if payload.Event != domain.EventPayoutUpdated {
		t.Fatalf("expected payload event %s, got %s", domain.EventPayoutUpdated, payload.Event)
	}
	if payload.Message != domain.StatusMessage(domain.PayoutStatusSuccess) {
		t.Fatalf("unexpected payload message %q", payload.Message)
	}

	if len(repo.deliveries) != 1 {
		t.Fatalf("expected 1 delivery record, got %d", len(repo.deliveries))
	}
	if repo.deliveries[0].Status != domain.DeliveryStatusSuccess {
		t.Fatalf("expected SUCCESS delivery record, got %s", repo.deliveries[0].Status)
	}
}

func TestWebhookDeliver_RetriesUntilSuccessWithinCycle(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &webhookRepoStub{}
	sender := NewWebhookSender(repo, 2*time.Second, 3, time.Millisecond)
	sender.sleep = func(ctx context.Context, d time.Duration) {}
	merchant := &domain.Merchant{ID: uuid.New(), WebhookURL: &server.URL, WebhookSecret: "whsec_test"}

	if err := sender.Deliver(context.Background(), merchant, webhookTestEvent(t)); err != nil {
		t.Fatalf("expected delivery to succeed on the third attempt, got %v", err)
	}
	if requests != 3 {
		t.Fatalf("expected 3 requests, got %d", requests)
	}
	if len(repo.deliveries) != 3 {
		t.Fatalf("expected 3 delivery records, got %d", len(repo.deliveries))
	}
	if repo.deliveries[0].Status != domain.DeliveryStatusFailed || repo.deliveries[2].Status != domain.DeliveryStatusSuccess {
		t.Fatal("expected failed attempts recorded before the successful one")
	}
}

func TestWebhookDeliver_ExhaustedAttemptsReturnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := &webhookRepoStub{}
	sender := NewWebhookSender(repo, 2*time.Second, 2, time.Millisecond)
	sender.sleep = func(ctx context.Context, d time.Duration) {}
	merchant := &domain.Merchant{ID: uuid.New(), WebhookURL: &server.URL, WebhookSecret: "whsec_test"}

	if err := sender.Deliver(context.Background(), merchant, webhookTestEvent(t)); err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if len(repo.deliveries) != 2 {
		t.Fatalf("expected 2 delivery records, got %d", len(repo.deliveries))
	}
	for _, delivery := range repo.deliveries {
		if delivery.Status != domain.DeliveryStatusFailed {
			t.Fatalf("expected FAILED record, got %s", delivery.Status)
		}
	}
}

func TestWebhookDeliver_MalformedPayloadIsNotAttempted(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &webhookRepoStub{}
	sender := NewWebhookSender(repo, 2*time.Second, 3, time.Millisecond)
	merchant := &domain.Merchant{ID: uuid.New(), WebhookURL: &server.URL, WebhookSecret: "whsec_test"}
	event := domain.OutboxEvent{
		ID:         uuid.New(),
		MerchantID: merchant.ID,
		EventType:  domain.EventPayoutUpdated,
		Payload:    []byte("{broken"),
	}

	err := sender.Deliver(context.Background(), merchant, event)
	if !errors.Is(err, ErrMalformedEventPayload) {
		t.Fatalf("expected ErrMalformedEventPayload, got %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected no HTTP attempts, got %d", requests)
	}
	if len(repo.deliveries) != 0 {
		t.Fatalf("expected no delivery records, got %d", len(repo.deliveries))
	}
}

func TestSignPayload_DeterministicHex(t *testing.T) {
	body := []byte(`{"event":"PAYOUT_UPDATED"}`)
	first := SignPayload("secret", body)
	if first != SignPayload("secret", body) {
		t.Fatal("expected a deterministic signature")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
	if first == SignPayload("other-secret", body) {
		t.Fatal("expected different secrets to produce different signatures")
	}
}
