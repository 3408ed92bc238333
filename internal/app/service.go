/**
 * @description
 * This file contains the core business logic for the payout-service. The
 * `Service` struct orchestrates payout creation and reservation, the balance
 * ledger contract, reinitiation, account verification, and the IPN callback
 * path, coordinating between the repository and the optional AMQP producer.
 *
 * Key features:
 * - Reservation via optimistic concurrency: the available balance is checked
 *   on decimal values and the lock is taken with a version-checked update; a
 *   lost race surfaces as ErrBalanceConflict (HTTP 409, safe to retry).
 * - Transactional integrity: payout + ledger entry + outbox event are created
 *   in a single repository transaction, so none can exist without the others.
 *
 * @dependencies
 * - context, errors, fmt, log, regexp, time: Standard Go libraries.
 * - github.com/google/uuid, github.com/shopspring/decimal: IDs and money.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

// settleRetryAttempts bounds the worker-side retry of a lost balance-version
// race. Each attempt re-reads the balance before re-applying the update.
const settleRetryAttempts = 3

var accountNumberPattern = regexp.MustCompile(`^[0-9]{10,16}$`)

// RateLimitDecision is the outcome of one limiter check: the running count
// inside the current window and how long until the window resets.
type RateLimitDecision struct {
	Count      int
	RetryAfter time.Duration
}

// RateLimiter is the contract for the optional distributed rate limiter.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error)
}

// Service provides the core business logic for payouts.
type Service struct {
	repo            store.Repository
	reviewThreshold decimal.Decimal
	rateLimiter     RateLimiter
	createRateLimit int
}

// NewService creates a new payout service instance.
func NewService(repo store.Repository, reviewThreshold decimal.Decimal) *Service {
	return &Service{
		repo:            repo,
		reviewThreshold: reviewThreshold,
	}
}

// SetRateLimiter wires the optional per-merchant creation rate limiter.
func (s *Service) SetRateLimiter(limiter RateLimiter, createPerMinute int) {
	s.rateLimiter = limiter
	s.createRateLimit = createPerMinute
}

func (s *Service) consumeRateLimit(ctx context.Context, scope string, merchantID uuid.UUID) error {
	if s.rateLimiter == nil || s.createRateLimit <= 0 {
		return nil
	}
	decision, err := s.rateLimiter.Allow(ctx, scope, merchantID.String(), s.createRateLimit, time.Minute)
	if err != nil {
		// A limiter outage must not block payouts.
		log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing request\" scope=%s merchant_id=%s err=%v", scope, merchantID, err)
		return nil
	}
	if decision.Count > s.createRateLimit {
		retryAfter := int(decision.RetryAfter.Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// CreatePayout validates the request, reserves funds against the merchant's
// available balance, and atomically creates the payout, its reservation
// ledger entry, and the PAYOUT_CREATED outbox event.
func (s *Service) CreatePayout(ctx context.Context, merchantID uuid.UUID, req domain.CreatePayoutRequest) (*domain.Payout, error) {
	if err := s.consumeRateLimit(ctx, "payout_create", merchantID); err != nil {
		return nil, err
	}

	amount, err := s.validateCreateRequest(ctx, &req)
	if err != nil {
		return nil, err
	}

	balance, err := s.repo.GetMerchantBalance(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant balance: %w", err)
	}
	if balance.Available().LessThan(amount) {
		log.Printf("level=warn component=service op=create_payout outcome=reject reason=insufficient_balance merchant_id=%s available=%s amount=%s",
			merchantID, balance.Available().StringFixed(2), amount.StringFixed(2))
		return nil, ErrInsufficientBalance
	}

	now := time.Now().UTC()
	payout := &domain.Payout{
		ID:                uuid.New(),
		MerchantID:        merchantID,
		MerchantReference: req.MerchantReference,
		Amount:            amount,
		Currency:          domain.Currency,
		DestType:          req.DestType,
		BankCode:          req.BankCode,
		WalletCode:        req.WalletCode,
		AccountNumber:     req.AccountNumber,
		AccountTitle:      req.AccountTitle,
		Status:            domain.PayoutStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	payload, err := json.Marshal(domain.NewPayoutResponse(*payout))
	if err != nil {
		return nil, err
	}

	params := store.CreatePayoutParams{
		Payout:          payout,
		ExpectedVersion: balance.Version,
		LedgerEntry: &domain.LedgerEntry{
			ID:           uuid.New(),
			MerchantID:   merchantID,
			PayoutID:     payout.ID,
			Type:         domain.LedgerEntryDebit,
			Amount:       amount,
			BalanceAfter: balance.Balance,
			Description:  fmt.Sprintf("Funds reserved for payout %s", payout.MerchantReference),
			Metadata:     map[string]string{"stage": "reservation"},
		},
		Event: &domain.OutboxEvent{
			ID:         uuid.New(),
			MerchantID: merchantID,
			EventType:  domain.EventPayoutCreated,
			Payload:    payload,
		},
	}

	if err := s.repo.CreatePayoutWithReservation(ctx, params); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, ErrBalanceConflict
		}
		if errors.Is(err, store.ErrDuplicateReference) {
			return nil, store.ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	log.Printf("level=info component=service op=create_payout outcome=created payout_id=%s merchant_id=%s amount=%s dest_type=%s",
		payout.ID, merchantID, amount.StringFixed(2), payout.DestType)
	return payout, nil
}

func (s *Service) validateCreateRequest(ctx context.Context, req *domain.CreatePayoutRequest) (decimal.Decimal, error) {
	if req.MerchantReference == "" {
		return decimal.Zero, validationErrorf("merchant_reference is required")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return decimal.Zero, validationErrorf("amount must be a decimal string")
	}
	if !amount.IsPositive() {
		return decimal.Zero, validationErrorf("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, validationErrorf("amount must have at most 2 decimal places")
	}
	if req.Currency != "" && req.Currency != domain.Currency {
		return decimal.Zero, validationErrorf("currency must be PKR")
	}
	if err := s.validateDestination(ctx, req.DestType, req.BankCode, req.WalletCode, req.AccountNumber); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (s *Service) validateDestination(ctx context.Context, destType string, bankCode, walletCode *string, accountNumber string) error {
	if !accountNumberPattern.MatchString(accountNumber) {
		return validationErrorf("account_number must be 10-16 digits")
	}

	switch destType {
	case domain.DestTypeBank:
		if bankCode == nil || *bankCode == "" {
			return validationErrorf("bank_code is required for BANK payouts")
		}
		if _, err := s.repo.FindDirectoryEntry(ctx, domain.DestTypeBank, *bankCode); err != nil {
			if errors.Is(err, store.ErrDirectoryEntryNotFound) {
				return validationErrorf("bank_code is not a known active bank")
			}
			return err
		}
	case domain.DestTypeWallet:
		if walletCode == nil || *walletCode == "" {
			return validationErrorf("wallet_code is required for WALLET payouts")
		}
		if _, err := s.repo.FindDirectoryEntry(ctx, domain.DestTypeWallet, *walletCode); err != nil {
			if errors.Is(err, store.ErrDirectoryEntryNotFound) {
				return validationErrorf("wallet_code is not a known active wallet")
			}
			return err
		}
	default:
		return validationErrorf("dest_type must be BANK or WALLET")
	}
	return nil
}

// GetPayout retrieves a payout scoped to the requesting merchant.
func (s *Service) GetPayout(ctx context.Context, merchantID, payoutID uuid.UUID) (*domain.Payout, error) {
	return s.repo.FindPayoutForMerchant(ctx, payoutID, merchantID)
}

// ListPayouts lists the merchant's payouts with pagination and an optional
// status filter.
func (s *Service) ListPayouts(ctx context.Context, merchantID uuid.UUID, opts domain.PayoutListOptions) ([]domain.Payout, error) {
	return s.repo.ListPayouts(ctx, merchantID, opts)
}

// ReinitiatePayout resets a FAILED payout to PENDING exactly once. The failed
// settlement already released the reservation, so the repository re-reserves
// the amount in the same transaction; an available balance that no longer
// covers the payout surfaces as ErrInsufficientBalance and a lost version
// race as ErrBalanceConflict, same as creation.
func (s *Service) ReinitiatePayout(ctx context.Context, merchantID, payoutID uuid.UUID) (*domain.Payout, error) {
	payout, err := s.repo.ReinitiatePayout(ctx, payoutID, merchantID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidPayoutStatus):
			return nil, ErrInvalidStatus
		case errors.Is(err, store.ErrInsufficientFunds):
			log.Printf("level=warn component=service op=reinitiate outcome=reject reason=insufficient_balance payout_id=%s merchant_id=%s", payoutID, merchantID)
			return nil, ErrInsufficientBalance
		case errors.Is(err, store.ErrVersionConflict):
			return nil, ErrBalanceConflict
		}
		return nil, err
	}
	log.Printf("level=info component=service op=reinitiate outcome=requeued payout_id=%s merchant_id=%s", payoutID, merchantID)
	return payout, nil
}

// GetBalance returns the merchant's balance row.
func (s *Service) GetBalance(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantBalance, error) {
	return s.repo.GetMerchantBalance(ctx, merchantID)
}

// BalanceHistory lists the merchant's ledger entries, newest first.
func (s *Service) BalanceHistory(ctx context.Context, merchantID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, merchantID, limit, offset)
}

// ListDirectory returns the active banks and wallets.
func (s *Service) ListDirectory(ctx context.Context) ([]domain.DirectoryEntry, error) {
	return s.repo.ListDirectoryEntries(ctx)
}

// VerifyAccount performs the pre-flight destination check using the same
// suffix-based mock rules as settlement. The amount is not part of the check,
// so the review threshold never triggers here.
func (s *Service) VerifyAccount(ctx context.Context, merchantID uuid.UUID, req domain.VerifyAccountRequest) (*domain.VerifyAccountResponse, error) {
	if err := s.consumeRateLimit(ctx, "verify_account", merchantID); err != nil {
		return nil, err
	}
	if err := s.validateDestination(ctx, req.DestType, req.BankCode, req.WalletCode, req.AccountNumber); err != nil {
		return nil, err
	}

	outcome := DetermineSettlement(req.AccountNumber, decimal.Zero, s.reviewThreshold)
	switch outcome.Status {
	case domain.PayoutStatusFailed, domain.PayoutStatusOnHold:
		return &domain.VerifyAccountResponse{
			IsValid: false,
			Message: outcome.FailureReason,
		}, nil
	default:
		title := "MYPAY SANDBOX ACCOUNT"
		return &domain.VerifyAccountResponse{
			IsValid:      true,
			AccountTitle: &title,
			Message:      "Account verified",
		}, nil
	}
}

// HandleIPNCallback applies an externally determined settlement outcome to a
// payout and emits a PAYOUT_UPDATED outbox event. Used by the settlement
// simulator as an alternate path to the internal worker-driven determination.
func (s *Service) HandleIPNCallback(ctx context.Context, req domain.IPNCallbackRequest) (*domain.Payout, error) {
	payoutID, err := uuid.Parse(req.PayoutID)
	if err != nil {
		return nil, validationErrorf("payout_id must be a valid UUID")
	}

	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.PayoutStatusPending && payout.Status != domain.PayoutStatusProcessing {
		return nil, ErrInvalidStatus
	}

	outcome := SettlementOutcome{Status: req.Status}
	if req.FailureReason != nil {
		outcome.FailureReason = *req.FailureReason
	}
	if req.PSPReference != nil {
		outcome.PSPReference = *req.PSPReference
	}

	switch req.Status {
	case domain.PayoutStatusSuccess:
		if outcome.PSPReference == "" {
			outcome.PSPReference = NewPSPReference()
		}
	case domain.PayoutStatusFailed:
		if outcome.FailureReason == "" {
			outcome.FailureReason = FailureReasonValidation
		}
	case domain.PayoutStatusInReview, domain.PayoutStatusOnHold:
		// Status-only transitions, applied below.
	default:
		return nil, ErrUnknownIPNStatus
	}

	if err := s.ApplySettlement(ctx, payout, outcome, domain.EventPayoutUpdated); err != nil {
		return nil, err
	}
	return s.repo.FindPayoutByID(ctx, payoutID)
}

// ApplySettlement transitions a payout to the given outcome and performs the
// matching balance settlement. SUCCESS and FAILED settle the reservation in
// one transaction (with a bounded retry of lost version races); IN_REVIEW and
// ON_HOLD are status-only and leave the funds locked.
func (s *Service) ApplySettlement(ctx context.Context, payout *domain.Payout, outcome SettlementOutcome, eventType string) error {
	updated := *payout
	updated.Status = outcome.Status
	updated.UpdatedAt = time.Now().UTC()
	if outcome.FailureReason != "" {
		reason := outcome.FailureReason
		updated.FailureReason = &reason
	} else {
		updated.FailureReason = nil
	}

	switch outcome.Status {
	case domain.PayoutStatusSuccess, domain.PayoutStatusFailed:
		return s.settleTerminal(ctx, &updated, outcome, eventType)
	case domain.PayoutStatusInReview, domain.PayoutStatusOnHold:
		payload, err := json.Marshal(domain.NewPayoutResponse(updated))
		if err != nil {
			return err
		}
		return s.repo.UpdatePayoutStatusWithEvent(ctx, store.UpdatePayoutStatusParams{
			PayoutID:      payout.ID,
			Status:        outcome.Status,
			FailureReason: updated.FailureReason,
			Event: &domain.OutboxEvent{
				ID:         uuid.New(),
				MerchantID: payout.MerchantID,
				EventType:  eventType,
				Payload:    payload,
			},
		})
	default:
		return fmt.Errorf("unsupported settlement status %q", outcome.Status)
	}
}

func (s *Service) settleTerminal(ctx context.Context, payout *domain.Payout, outcome SettlementOutcome, eventType string) error {
	processedAt := time.Now().UTC()
	payout.ProcessedAt = &processedAt
	if outcome.Status == domain.PayoutStatusSuccess && outcome.PSPReference != "" {
		ref := outcome.PSPReference
		payout.PSPReference = &ref
	}

	payload, err := json.Marshal(domain.NewPayoutResponse(*payout))
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= settleRetryAttempts; attempt++ {
		balance, err := s.repo.GetMerchantBalance(ctx, payout.MerchantID)
		if err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			ID:         uuid.New(),
			MerchantID: payout.MerchantID,
			PayoutID:   payout.ID,
			Amount:     payout.Amount,
			Metadata:   map[string]string{"stage": "settlement"},
		}
		if outcome.Status == domain.PayoutStatusSuccess {
			entry.Type = domain.LedgerEntryDebit
			entry.BalanceAfter = balance.Balance.Sub(payout.Amount)
			entry.Description = fmt.Sprintf("Payout %s settled", payout.MerchantReference)
		} else {
			entry.Type = domain.LedgerEntryRelease
			entry.BalanceAfter = balance.Balance
			entry.Description = fmt.Sprintf("Reservation released for failed payout %s", payout.MerchantReference)
		}

		err = s.repo.SettlePayout(ctx, store.SettlePayoutParams{
			PayoutID:        payout.ID,
			MerchantID:      payout.MerchantID,
			Amount:          payout.Amount,
			Status:          outcome.Status,
			PSPReference:    payout.PSPReference,
			FailureReason:   payout.FailureReason,
			ProcessedAt:     processedAt,
			ExpectedVersion: balance.Version,
			LedgerEntry:     entry,
			Event: &domain.OutboxEvent{
				ID:         uuid.New(),
				MerchantID: payout.MerchantID,
				EventType:  eventType,
				Payload:    payload,
			},
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		lastErr = err
		log.Printf("level=warn component=service op=settle outcome=version_conflict payout_id=%s attempt=%d", payout.ID, attempt)
	}
	return lastErr
}
