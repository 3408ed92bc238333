/**
 * @description
 * The perpetual worker loop of the payout-service. On a fixed interval it
 * claims a batch of PENDING payouts and drives each through the mock
 * settlement state machine, then drains a batch of unprocessed outbox events
 * through webhook delivery.
 *
 * Key features:
 * - Sequential single-loop design: batches are processed one payout/event at
 *   a time per tick, which bounds per-tick latency and keeps a single
 *   merchant's balance from being mutated concurrently by multiple workers.
 * - Every payout that enters PROCESSING reaches a terminal or explicitly
 *   retryable state: any processing error forces FAILED with reason
 *   "Processing error" instead of leaving the payout stuck.
 * - The sleep function is injected so tests can run ticks without real time.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - internal/domain, internal/store: Models and data access.
 * - pkg/rabbitmq: Optional AMQP mirror for processed events.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
	"github.com/mypay/payout-service/pkg/rabbitmq"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 10
	defaultRetryDelay   = 30 * time.Second
)

// Worker polls for pending payouts and unprocessed outbox events.
type Worker struct {
	repo         store.Repository
	service      *Service
	sender       Deliverer
	producer     rabbitmq.Publisher
	exchange     string
	pollInterval time.Duration
	batchSize    int
	retryDelay   time.Duration
	sleep        func(ctx context.Context, d time.Duration)
}

// NewWorker creates the worker loop. producer may be nil when the AMQP mirror
// is not configured.
func NewWorker(repo store.Repository, service *Service, sender Deliverer, producer rabbitmq.Publisher, exchange string) *Worker {
	return &Worker{
		repo:         repo,
		service:      service,
		sender:       sender,
		producer:     producer,
		exchange:     exchange,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		retryDelay:   defaultRetryDelay,
		sleep:        sleepContext,
	}
}

// Configure overrides the polling interval, batch size and settlement retry
// delay. Zero values keep the defaults.
func (w *Worker) Configure(pollInterval time.Duration, batchSize int, retryDelay time.Duration) {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if retryDelay > 0 {
		w.retryDelay = retryDelay
	}
}

// Run executes ticks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	log.Printf("level=info component=worker msg=\"worker loop started\" interval=%s batch_size=%d", w.pollInterval, w.batchSize)
	for {
		select {
		case <-ctx.Done():
			log.Println("level=info component=worker msg=\"worker loop stopped\"")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one worker cycle: the pending-payout batch, then the outbox batch.
func (w *Worker) Tick(ctx context.Context) {
	w.processPendingPayouts(ctx)
	w.dispatchOutbox(ctx)
}

func (w *Worker) processPendingPayouts(ctx context.Context) {
	payouts, err := w.repo.ClaimPendingPayouts(ctx, w.batchSize)
	if err != nil {
		log.Printf("level=error component=worker msg=\"failed to claim pending payouts\" err=%v", err)
		return
	}

	for i := range payouts {
		payout := payouts[i]
		if err := w.processPayout(ctx, &payout); err != nil {
			log.Printf("level=error component=worker msg=\"payout processing failed; forcing FAILED\" payout_id=%s err=%v", payout.ID, err)
			outcome := SettlementOutcome{Status: domain.PayoutStatusFailed, FailureReason: FailureReasonProcessing}
			if forceErr := w.service.ApplySettlement(ctx, &payout, outcome, domain.EventPayoutUpdated); forceErr != nil {
				log.Printf("level=error component=worker msg=\"failed to force payout to FAILED\" payout_id=%s err=%v", payout.ID, forceErr)
			}
		}
	}
}

// processPayout runs the mock settlement determination for one claimed payout.
// A RETRY outcome re-runs the determination once after the configured delay;
// the single retry hop then resolves to SUCCESS so every processed payout
// reaches a terminal state within bounded ticks.
func (w *Worker) processPayout(ctx context.Context, payout *domain.Payout) error {
	outcome := DetermineSettlement(payout.AccountNumber, payout.Amount, w.service.reviewThreshold)

	if outcome.Status == domain.PayoutStatusRetry {
		log.Printf("level=info component=worker msg=\"retry outcome; re-running determination\" payout_id=%s delay=%s", payout.ID, w.retryDelay)
		w.sleep(ctx, w.retryDelay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome = DetermineSettlement(payout.AccountNumber, payout.Amount, w.service.reviewThreshold)
		if outcome.Status == domain.PayoutStatusRetry {
			outcome = SettlementOutcome{Status: domain.PayoutStatusSuccess, PSPReference: NewPSPReference()}
		}
	}

	switch outcome.Status {
	case domain.PayoutStatusPending:
		// Suffix 0004: the payout simulates hanging in PENDING.
		return w.repo.MarkPayoutPending(ctx, payout.ID)
	default:
		return w.service.ApplySettlement(ctx, payout, outcome, domain.EventPayoutUpdated)
	}
}

func (w *Worker) dispatchOutbox(ctx context.Context) {
	events, err := w.repo.FindUnprocessedEvents(ctx, w.batchSize)
	if err != nil {
		log.Printf("level=error component=worker msg=\"failed to load outbox events\" err=%v", err)
		return
	}

	for _, event := range events {
		merchant, err := w.repo.FindMerchantByID(ctx, event.MerchantID)
		if err != nil {
			log.Printf("level=error component=worker msg=\"failed to load merchant for event\" event_id=%s merchant_id=%s err=%v", event.ID, event.MerchantID, err)
			continue
		}

		if merchant.WebhookURL == nil || *merchant.WebhookURL == "" {
			if err := w.repo.MarkOutboxEventProcessed(ctx, event.ID); err != nil {
				log.Printf("level=error component=worker msg=\"failed to mark event processed\" event_id=%s err=%v", event.ID, err)
			}
			continue
		}

		if err := w.sender.Deliver(ctx, merchant, event); err != nil {
			if errors.Is(err, ErrMalformedEventPayload) {
				// Undeliverable no matter how often it is retried; drop it
				// so the outbox keeps draining.
				log.Printf("level=error component=worker msg=\"dropping undeliverable outbox event\" event_id=%s err=%v", event.ID, err)
				if markErr := w.repo.MarkOutboxEventProcessed(ctx, event.ID); markErr != nil {
					log.Printf("level=error component=worker msg=\"failed to mark event processed\" event_id=%s err=%v", event.ID, markErr)
				}
				continue
			}
			// Event stays unprocessed; a later tick retries delivery.
			log.Printf("level=warn component=worker msg=\"delivery attempts exhausted for this cycle\" event_id=%s err=%v", event.ID, err)
			continue
		}

		if err := w.repo.MarkOutboxEventProcessed(ctx, event.ID); err != nil {
			log.Printf("level=error component=worker msg=\"failed to mark event processed\" event_id=%s err=%v", event.ID, err)
			continue
		}
		w.mirrorEvent(ctx, event)
	}
}

// mirrorEvent republishes a delivered event to the AMQP exchange for the
// admin portal feed. Best-effort: failures are logged, never retried.
func (w *Worker) mirrorEvent(ctx context.Context, event domain.OutboxEvent) {
	if w.producer == nil {
		return
	}
	var payload interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		log.Printf("level=warn component=worker msg=\"cannot mirror event with malformed payload\" event_id=%s err=%v", event.ID, err)
		return
	}
	routingKey := "payout." + event.EventType
	if err := w.producer.Publish(ctx, w.exchange, routingKey, payload); err != nil {
		log.Printf("level=warn component=worker msg=\"event mirror publish failed\" event_id=%s routing_key=%s err=%v", event.ID, routingKey, err)
	}
}
