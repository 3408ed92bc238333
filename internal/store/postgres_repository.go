/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL for merchants, balances, payouts, ledger
 * entries, outbox events, webhook deliveries, idempotency keys, and the
 * bank/wallet directory.
 *
 * Key features:
 * - Optimistic concurrency on merchant balances: every balance mutation is a
 *   conditional UPDATE on the stored version; zero affected rows signals a
 *   lost race (ErrVersionConflict) which the caller retries or surfaces.
 * - Transactional outbox: payout state changes, ledger entries and outbox
 *   events are written in one transaction so none can exist without the
 *   others.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mypay/payout-service/internal/domain"
)

var (
	ErrMerchantNotFound       = errors.New("merchant not found")
	ErrBalanceNotFound        = errors.New("merchant balance not found")
	ErrPayoutNotFound         = errors.New("payout not found")
	ErrVersionConflict        = errors.New("balance version conflict")
	ErrInsufficientFunds      = errors.New("insufficient available funds")
	ErrDuplicateReference     = errors.New("duplicate merchant reference")
	ErrInvalidPayoutStatus    = errors.New("payout is not in a valid status for this operation")
	ErrIdempotencyKeyExists   = errors.New("idempotency key already exists")
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	ErrDirectoryEntryNotFound = errors.New("directory entry not found")
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

// FindMerchantByID retrieves a merchant by its ID.
func (r *PostgresRepository) FindMerchantByID(ctx context.Context, merchantID uuid.UUID) (*domain.Merchant, error) {
	var m domain.Merchant
	query := `
		SELECT id, name, email, api_key_hash, webhook_url, webhook_secret, active, created_at, updated_at
		FROM merchants
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, merchantID).Scan(
		&m.ID, &m.Name, &m.Email, &m.APIKeyHash, &m.WebhookURL, &m.WebhookSecret, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetMerchantBalance retrieves the balance row for a merchant.
func (r *PostgresRepository) GetMerchantBalance(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantBalance, error) {
	var b domain.MerchantBalance
	query := `
		SELECT merchant_id, balance, locked_balance, version, updated_at
		FROM merchant_balances
		WHERE merchant_id = $1
	`
	err := r.db.QueryRow(ctx, query, merchantID).Scan(
		&b.MerchantID, &b.Balance, &b.LockedBalance, &b.Version, &b.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListLedgerEntries returns a merchant's ledger entries, newest first.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, merchant_id, payout_id, type, amount, balance_after, description, metadata, created_at
		FROM ledger_entries
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, merchantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		var metadata []byte
		if err := rows.Scan(
			&entry.ID, &entry.MerchantID, &entry.PayoutID, &entry.Type,
			&entry.Amount, &entry.BalanceAfter, &entry.Description, &metadata, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO ledger_entries (id, merchant_id, payout_id, type, amount, balance_after, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, query,
		entry.ID, entry.MerchantID, entry.PayoutID, entry.Type,
		entry.Amount, entry.BalanceAfter, entry.Description, metadata,
	)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, merchant_id, event_type, payload, processed)
		VALUES ($1, $2, $3, $4, FALSE)
	`
	_, err := tx.Exec(ctx, query, event.ID, event.MerchantID, event.EventType, event.Payload)
	return err
}

// CreatePayoutWithReservation atomically inserts the payout row, increments
// the merchant's locked balance via a version-checked update, and records the
// reservation ledger entry plus the PAYOUT_CREATED outbox event. A lost
// version race returns ErrVersionConflict; a duplicate merchant reference
// returns ErrDuplicateReference.
func (r *PostgresRepository) CreatePayoutWithReservation(ctx context.Context, params CreatePayoutParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p := params.Payout
	payoutQuery := `
		INSERT INTO payouts (
			id, merchant_id, merchant_reference, amount, currency, dest_type,
			bank_code, wallet_code, account_number, account_title, status, reinitiated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE)
	`
	if _, err := tx.Exec(ctx, payoutQuery,
		p.ID, p.MerchantID, p.MerchantReference, p.Amount, p.Currency, p.DestType,
		p.BankCode, p.WalletCode, p.AccountNumber, p.AccountTitle, p.Status,
	); err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateReference
		}
		return err
	}

	reserveQuery := `
		UPDATE merchant_balances
		SET locked_balance = locked_balance + $1, version = version + 1, updated_at = NOW()
		WHERE merchant_id = $2 AND version = $3
	`
	result, err := tx.Exec(ctx, reserveQuery, p.Amount, p.MerchantID, params.ExpectedVersion)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if err := insertLedgerEntry(ctx, tx, params.LedgerEntry); err != nil {
		return err
	}
	if err := insertOutboxEvent(ctx, tx, params.Event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanPayout(row pgx.Row, p *domain.Payout) error {
	return row.Scan(
		&p.ID, &p.MerchantID, &p.MerchantReference, &p.Amount, &p.Currency, &p.DestType,
		&p.BankCode, &p.WalletCode, &p.AccountNumber, &p.AccountTitle, &p.Status,
		&p.FailureReason, &p.PSPReference, &p.Reinitiated, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt,
	)
}

const payoutColumns = `id, merchant_id, merchant_reference, amount, currency, dest_type,
	bank_code, wallet_code, account_number, account_title, status,
	failure_reason, psp_reference, reinitiated, processed_at, created_at, updated_at`

// FindPayoutByID retrieves a payout regardless of owning merchant. Used by the
// worker loop and the IPN callback.
func (r *PostgresRepository) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	var p domain.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`
	if err := scanPayout(r.db.QueryRow(ctx, query, payoutID), &p); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindPayoutForMerchant retrieves a payout scoped to its owning merchant.
func (r *PostgresRepository) FindPayoutForMerchant(ctx context.Context, payoutID, merchantID uuid.UUID) (*domain.Payout, error) {
	var p domain.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1 AND merchant_id = $2`
	if err := scanPayout(r.db.QueryRow(ctx, query, payoutID, merchantID), &p); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListPayouts returns a merchant's payouts, newest first, optionally filtered
// by status.
func (r *PostgresRepository) ListPayouts(ctx context.Context, merchantID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE merchant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, merchantID, opts.Status, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		var p domain.Payout
		if err := scanPayout(rows, &p); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// ClaimPendingPayouts atomically flips up to `limit` PENDING payouts to
// PROCESSING, oldest first, and returns them. SKIP LOCKED keeps a concurrent
// claimer from double-processing the same payout.
func (r *PostgresRepository) ClaimPendingPayouts(ctx context.Context, limit int) ([]domain.Payout, error) {
	query := `
		UPDATE payouts
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM payouts
			WHERE status = $2
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + payoutColumns
	rows, err := r.db.Query(ctx, query, domain.PayoutStatusProcessing, domain.PayoutStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		var p domain.Payout
		if err := scanPayout(rows, &p); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// SettlePayout applies a terminal SUCCESS/FAILED outcome in one transaction:
// payout update, version-checked balance mutation, ledger entry, outbox event.
// On SUCCESS both balance and locked balance decrease; on FAILED only the
// locked balance decreases so funds return to the available balance.
func (r *PostgresRepository) SettlePayout(ctx context.Context, params SettlePayoutParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	payoutQuery := `
		UPDATE payouts
		SET status = $1, psp_reference = $2, failure_reason = $3, processed_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	result, err := tx.Exec(ctx, payoutQuery,
		params.Status, params.PSPReference, params.FailureReason, params.ProcessedAt, params.PayoutID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}

	var balanceQuery string
	if params.Status == domain.PayoutStatusSuccess {
		balanceQuery = `
			UPDATE merchant_balances
			SET balance = balance - $1, locked_balance = locked_balance - $1, version = version + 1, updated_at = NOW()
			WHERE merchant_id = $2 AND version = $3
		`
	} else {
		balanceQuery = `
			UPDATE merchant_balances
			SET locked_balance = locked_balance - $1, version = version + 1, updated_at = NOW()
			WHERE merchant_id = $2 AND version = $3
		`
	}
	result, err = tx.Exec(ctx, balanceQuery, params.Amount, params.MerchantID, params.ExpectedVersion)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	if err := insertLedgerEntry(ctx, tx, params.LedgerEntry); err != nil {
		return err
	}
	if err := insertOutboxEvent(ctx, tx, params.Event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// UpdatePayoutStatusWithEvent applies a status-only transition (IN_REVIEW,
// ON_HOLD) and writes its outbox event in the same transaction. Locked funds
// are intentionally left untouched.
func (r *PostgresRepository) UpdatePayoutStatusWithEvent(ctx context.Context, params UpdatePayoutStatusParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE payouts
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := tx.Exec(ctx, query, params.Status, params.FailureReason, params.PayoutID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}

	if err := insertOutboxEvent(ctx, tx, params.Event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkPayoutPending reverts a claimed payout to PENDING without emitting an
// event. Used when the mock settlement leaves a payout in the pending state.
func (r *PostgresRepository) MarkPayoutPending(ctx context.Context, payoutID uuid.UUID) error {
	query := `UPDATE payouts SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, domain.PayoutStatusPending, payoutID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPayoutNotFound
	}
	return nil
}

// ReinitiatePayout resets a FAILED payout to PENDING exactly once and clears
// its failure reason. The FAILED settlement released the reservation, so the
// same transaction re-reserves the payout amount: the available balance is
// re-checked, the locked balance is incremented via a version-checked update,
// and a fresh reservation ledger entry is recorded alongside the
// PAYOUT_REINITIATED outbox event. Returns ErrInvalidPayoutStatus when the
// payout exists but is not reinitiable, ErrInsufficientFunds when the balance
// no longer covers the amount, and ErrVersionConflict on a lost balance race.
func (r *PostgresRepository) ReinitiatePayout(ctx context.Context, payoutID, merchantID uuid.UUID) (*domain.Payout, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var p domain.Payout
	query := `
		UPDATE payouts
		SET status = $1, failure_reason = NULL, reinitiated = TRUE, updated_at = NOW()
		WHERE id = $2 AND merchant_id = $3 AND status = $4 AND reinitiated = FALSE
		RETURNING ` + payoutColumns
	err = scanPayout(tx.QueryRow(ctx, query, domain.PayoutStatusPending, payoutID, merchantID, domain.PayoutStatusFailed), &p)
	if err != nil {
		if err != pgx.ErrNoRows {
			return nil, err
		}
		// Distinguish "not found" from "wrong status".
		var exists bool
		checkErr := tx.QueryRow(ctx, `SELECT TRUE FROM payouts WHERE id = $1 AND merchant_id = $2`, payoutID, merchantID).Scan(&exists)
		if checkErr == pgx.ErrNoRows {
			return nil, ErrPayoutNotFound
		}
		if checkErr != nil {
			return nil, checkErr
		}
		return nil, ErrInvalidPayoutStatus
	}

	var balance domain.MerchantBalance
	balanceQuery := `
		SELECT merchant_id, balance, locked_balance, version, updated_at
		FROM merchant_balances
		WHERE merchant_id = $1
	`
	err = tx.QueryRow(ctx, balanceQuery, merchantID).Scan(
		&balance.MerchantID, &balance.Balance, &balance.LockedBalance, &balance.Version, &balance.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	if balance.Available().LessThan(p.Amount) {
		return nil, ErrInsufficientFunds
	}

	reserveQuery := `
		UPDATE merchant_balances
		SET locked_balance = locked_balance + $1, version = version + 1, updated_at = NOW()
		WHERE merchant_id = $2 AND version = $3
	`
	result, err := tx.Exec(ctx, reserveQuery, p.Amount, merchantID, balance.Version)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected() == 0 {
		return nil, ErrVersionConflict
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.New(),
		MerchantID:   merchantID,
		PayoutID:     p.ID,
		Type:         domain.LedgerEntryDebit,
		Amount:       p.Amount,
		BalanceAfter: balance.Balance,
		Description:  fmt.Sprintf("Funds reserved for reinitiated payout %s", p.MerchantReference),
		Metadata:     map[string]string{"stage": "reinitiation"},
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(domain.NewPayoutResponse(p))
	if err != nil {
		return nil, err
	}
	event := &domain.OutboxEvent{
		ID:         uuid.New(),
		MerchantID: merchantID,
		EventType:  domain.EventPayoutReinitiated,
		Payload:    payload,
	}
	if err := insertOutboxEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

// RequeueStaleProcessingPayouts flips payouts stuck in PROCESSING since before
// `olderThan` back to PENDING so the worker picks them up again. This persists
// retries that would otherwise be lost to a process restart mid-delay.
func (r *PostgresRepository) RequeueStaleProcessingPayouts(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE payouts
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`
	result, err := r.db.Exec(ctx, query, domain.PayoutStatusPending, domain.PayoutStatusProcessing, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// FindUnprocessedEvents returns up to `limit` unprocessed outbox events,
// oldest first. The worker loop is the only consumer, so no claim marker is
// needed; events stay unprocessed until a delivery cycle succeeds.
func (r *PostgresRepository) FindUnprocessedEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `
		SELECT id, merchant_id, event_type, payload, processed, processed_at, created_at
		FROM outbox_events
		WHERE processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(&e.ID, &e.MerchantID, &e.EventType, &e.Payload, &e.Processed, &e.ProcessedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkOutboxEventProcessed marks an outbox event as successfully delivered.
func (r *PostgresRepository) MarkOutboxEventProcessed(ctx context.Context, eventID uuid.UUID) error {
	query := `UPDATE outbox_events SET processed = TRUE, processed_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, eventID)
	return err
}

// CreateWebhookDelivery appends one delivery-attempt audit row.
func (r *PostgresRepository) CreateWebhookDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, merchant_id, event_id, event_type, payload, signature, status, status_code, response, attempt, delivered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		delivery.ID, delivery.MerchantID, delivery.EventID, delivery.EventType,
		delivery.Payload, delivery.Signature, delivery.Status, delivery.StatusCode,
		delivery.Response, delivery.Attempt, delivery.DeliveredAt,
	)
	return err
}

// GetIdempotencyKey retrieves the record for one (merchant, key) pair.
func (r *PostgresRepository) GetIdempotencyKey(ctx context.Context, merchantID, key uuid.UUID) (*domain.IdempotencyKey, error) {
	var record domain.IdempotencyKey
	query := `
		SELECT merchant_id, key, request_hash, status_code, response, expires_at, created_at
		FROM idempotency_keys
		WHERE merchant_id = $1 AND key = $2
	`
	err := r.db.QueryRow(ctx, query, merchantID, key).Scan(
		&record.MerchantID, &record.Key, &record.RequestHash,
		&record.StatusCode, &record.Response, &record.ExpiresAt, &record.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIdempotencyKeyNotFound
		}
		return nil, err
	}
	return &record, nil
}

// InsertIdempotencyKey inserts the placeholder record for a fresh request.
// A concurrent duplicate insert returns ErrIdempotencyKeyExists.
func (r *PostgresRepository) InsertIdempotencyKey(ctx context.Context, record *domain.IdempotencyKey) error {
	query := `
		INSERT INTO idempotency_keys (merchant_id, key, request_hash, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, record.MerchantID, record.Key, record.RequestHash, record.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrIdempotencyKeyExists
		}
		return err
	}
	return nil
}

// StoreIdempotentResponse attaches the handler's response to the placeholder.
func (r *PostgresRepository) StoreIdempotentResponse(ctx context.Context, merchantID, key uuid.UUID, statusCode int, body string) error {
	query := `
		UPDATE idempotency_keys
		SET status_code = $1, response = $2
		WHERE merchant_id = $3 AND key = $4
	`
	result, err := r.db.Exec(ctx, query, statusCode, body, merchantID, key)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteIdempotencyKey removes an expired record so the retry is treated as a
// fresh request.
func (r *PostgresRepository) DeleteIdempotencyKey(ctx context.Context, merchantID, key uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE merchant_id = $1 AND key = $2`, merchantID, key)
	return err
}

// DeleteExpiredIdempotencyKeys purges all records past their TTL.
func (r *PostgresRepository) DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListDirectoryEntries returns all active banks and wallets.
func (r *PostgresRepository) ListDirectoryEntries(ctx context.Context) ([]domain.DirectoryEntry, error) {
	query := `
		SELECT id, kind, code, name, active
		FROM directory_entries
		WHERE active = TRUE
		ORDER BY kind, name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.DirectoryEntry
	for rows.Next() {
		var entry domain.DirectoryEntry
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Code, &entry.Name, &entry.Active); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindDirectoryEntry looks up an active destination code of the given kind.
func (r *PostgresRepository) FindDirectoryEntry(ctx context.Context, kind, code string) (*domain.DirectoryEntry, error) {
	var entry domain.DirectoryEntry
	query := `
		SELECT id, kind, code, name, active
		FROM directory_entries
		WHERE kind = $1 AND code = $2 AND active = TRUE
	`
	err := r.db.QueryRow(ctx, query, kind, code).Scan(&entry.ID, &entry.Kind, &entry.Code, &entry.Name, &entry.Active)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDirectoryEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}
