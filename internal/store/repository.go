/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access performed by the payout-service. The interface decouples the business
 * logic from the PostgreSQL implementation and lets the service and worker be
 * tested against in-memory stubs.
 *
 * The multi-row invariants of the system (balance + ledger + outbox written
 * together, payout + ledger + outbox written together) are expressed here as
 * single transactional methods rather than as composable primitives, so a
 * caller cannot accidentally split an atomic unit.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: For IDs and money.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mypay/payout-service/internal/domain"
)

// CreatePayoutParams carries everything written by the payout-creation
// transaction: the payout row, the reservation ledger entry, the
// PAYOUT_CREATED outbox event, and the balance version the reservation is
// conditioned on.
type CreatePayoutParams struct {
	Payout          *domain.Payout
	ExpectedVersion int64
	LedgerEntry     *domain.LedgerEntry
	Event           *domain.OutboxEvent
}

// SettlePayoutParams carries the terminal outcome applied by the worker.
// Status must be SUCCESS or FAILED; the balance mutation differs per outcome
// and is conditioned on ExpectedVersion.
type SettlePayoutParams struct {
	PayoutID        uuid.UUID
	MerchantID      uuid.UUID
	Amount          decimal.Decimal
	Status          string
	PSPReference    *string
	FailureReason   *string
	ProcessedAt     time.Time
	ExpectedVersion int64
	LedgerEntry     *domain.LedgerEntry
	Event           *domain.OutboxEvent
}

// UpdatePayoutStatusParams carries a status-only transition (IN_REVIEW,
// ON_HOLD, or a revert to PENDING) together with its outbox event. No balance
// row is touched.
type UpdatePayoutStatusParams struct {
	PayoutID      uuid.UUID
	Status        string
	FailureReason *string
	Event         *domain.OutboxEvent
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Merchant methods
	FindMerchantByID(ctx context.Context, merchantID uuid.UUID) (*domain.Merchant, error)

	// Balance ledger methods
	GetMerchantBalance(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantBalance, error)
	ListLedgerEntries(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error)

	// Payout methods
	CreatePayoutWithReservation(ctx context.Context, params CreatePayoutParams) error
	FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error)
	FindPayoutForMerchant(ctx context.Context, payoutID, merchantID uuid.UUID) (*domain.Payout, error)
	ListPayouts(ctx context.Context, merchantID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error)
	ClaimPendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error)
	SettlePayout(ctx context.Context, params SettlePayoutParams) error
	UpdatePayoutStatusWithEvent(ctx context.Context, params UpdatePayoutStatusParams) error
	MarkPayoutPending(ctx context.Context, payoutID uuid.UUID) error
	ReinitiatePayout(ctx context.Context, payoutID, merchantID uuid.UUID) (*domain.Payout, error)
	RequeueStaleProcessingPayouts(ctx context.Context, olderThan time.Time) (int64, error)

	// Outbox and webhook delivery methods
	FindUnprocessedEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, eventID uuid.UUID) error
	CreateWebhookDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error

	// Idempotency methods
	GetIdempotencyKey(ctx context.Context, merchantID, key uuid.UUID) (*domain.IdempotencyKey, error)
	InsertIdempotencyKey(ctx context.Context, record *domain.IdempotencyKey) error
	StoreIdempotentResponse(ctx context.Context, merchantID, key uuid.UUID, statusCode int, body string) error
	DeleteIdempotencyKey(ctx context.Context, merchantID, key uuid.UUID) error
	DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error)

	// Directory methods
	ListDirectoryEntries(ctx context.Context) ([]domain.DirectoryEntry, error)
	FindDirectoryEntry(ctx context.Context, kind, code string) (*domain.DirectoryEntry, error)
}
