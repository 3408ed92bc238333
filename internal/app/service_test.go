package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

type serviceRepoStub struct {
	store.Repository

	balance      *domain.MerchantBalance
	createErr    error
	createCalled bool
	createParams store.CreatePayoutParams

	directory map[string]*domain.DirectoryEntry

	reinitiateErr    error
	reinitiatePayout *domain.Payout
}

func (s *serviceRepoStub) GetMerchantBalance(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantBalance, error) {
	if s.balance == nil {
		return nil, store.ErrBalanceNotFound
	}
	return s.balance, nil
}

func (s *serviceRepoStub) CreatePayoutWithReservation(ctx context.Context, params store.CreatePayoutParams) error {
	s.createCalled = true
	s.createParams = params
	return s.createErr
}

func (s *serviceRepoStub) FindDirectoryEntry(ctx context.Context, kind, code string) (*domain.DirectoryEntry, error) {
	if entry, ok := s.directory[kind+":"+code]; ok {
		return entry, nil
	}
	return nil, store.ErrDirectoryEntryNotFound
}

func (s *serviceRepoStub) ReinitiatePayout(ctx context.Context, payoutID, merchantID uuid.UUID) (*domain.Payout, error) {
	if s.reinitiateErr != nil {
		return nil, s.reinitiateErr
	}
	return s.reinitiatePayout, nil
}

func stubBankDirectory() map[string]*domain.DirectoryEntry {
	return map[string]*domain.DirectoryEntry{
		"BANK:HBL": {ID: uuid.New(), Kind: domain.DestTypeBank, Code: "HBL", Name: "Habib Bank", Active: true},
	}
}

func bankCreateRequest(amount string) domain.CreatePayoutRequest {
	bankCode := "HBL"
	return domain.CreatePayoutRequest{
		MerchantReference: "ref-001",
		Amount:            amount,
		DestType:          domain.DestTypeBank,
		BankCode:          &bankCode,
		AccountNumber:     "1234567890",
	}
}

func TestCreatePayout_ReservesFundsAndWritesOutbox(t *testing.T) {
	merchantID := uuid.New()
	repo := &serviceRepoStub{
		balance: &domain.MerchantBalance{
			MerchantID:    merchantID,
			Balance:       decimal.NewFromInt(10000),
			LockedBalance: decimal.NewFromInt(2000),
			Version:       7,
		},
		directory: stubBankDirectory(),
	}
	service := NewService(repo, decimal.NewFromInt(100000))

	payout, err := service.CreatePayout(context.Background(), merchantID, bankCreateRequest("5000.00"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payout.Status != domain.PayoutStatusPending {
		t.Fatalf("expected PENDING, got %s", payout.Status)
	}
	if !repo.createCalled {
		t.Fatal("expected the reservation transaction to run")
	}
	if repo.createParams.ExpectedVersion != 7 {
		t.Fatalf("expected reservation conditioned on version 7, got %d", repo.createParams.ExpectedVersion)
	}
	if repo.createParams.LedgerEntry.Type != domain.LedgerEntryDebit {
		t.Fatalf("expected DEBIT ledger entry, got %s", repo.createParams.LedgerEntry.Type)
	}
	if repo.createParams.Event.EventType != domain.EventPayoutCreated {
		t.Fatalf("expected PAYOUT_CREATED event, got %s", repo.createParams.Event.EventType)
	}
}

func TestCreatePayout_RejectsInsufficientAvailableBalance(t *testing.T) {
	merchantID := uuid.New()
	repo := &serviceRepoStub{
		balance: &domain.MerchantBalance{
			MerchantID:    merchantID,
			Balance:       decimal.NewFromInt(10000),
			LockedBalance: decimal.NewFromInt(8000),
			Version:       1,
		},
		directory: stubBankDirectory(),
	}
	service := NewService(repo, decimal.NewFromInt(100000))

	// Available is 2000; total balance alone must not be enough.
	_, err := service.CreatePayout(context.Background(), merchantID, bankCreateRequest("5000.00"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if repo.createCalled {
		t.Fatal("did not expect a reservation attempt")
	}
}

func TestCreatePayout_MapsVersionConflict(t *testing.T) {
	merchantID := uuid.New()
	repo := &serviceRepoStub{
		balance: &domain.MerchantBalance{
			MerchantID: merchantID,
			Balance:    decimal.NewFromInt(10000),
			Version:    1,
		},
		directory: stubBankDirectory(),
		createErr: store.ErrVersionConflict,
	}
	service := NewService(repo, decimal.NewFromInt(100000))

	_, err := service.CreatePayout(context.Background(), merchantID, bankCreateRequest("5000.00"))
	if !errors.Is(err, ErrBalanceConflict) {
		t.Fatalf("expected ErrBalanceConflict, got %v", err)
	}
}

func TestCreatePayout_Validation(t *testing.T) {
	merchantID := uuid.New()
	repo := &serviceRepoStub{
		balance: &domain.MerchantBalance{
			MerchantID: merchantID,
			Balance:    decimal.NewFromInt(1000000),
			Version:    1,
		},
		directory: stubBankDirectory(),
	}
	service := NewService(repo, decimal.NewFromInt(100000))

	walletCode := "JAZZ"
	unknownBank := "NOPE"

	tests := []struct {
		name    string
		mutate  func(*domain.CreatePayoutRequest)
		message string
	}{
		{
			name:    "missing merchant reference",
			mutate:  func(r *domain.CreatePayoutRequest) { r.MerchantReference = "" },
			message: "merchant_reference is required",
		},
		{
			name:    "non-numeric amount",
			mutate:  func(r *domain.CreatePayoutRequest) { r.Amount = "abc" },
			message: "amount must be a decimal string",
		},
		{
			name:    "zero amount",
			mutate:  func(r *domain.CreatePayoutRequest) { r.Amount = "0" },
			message: "amount must be greater than zero",
		},
		{
			name:    "negative amount",
			mutate:  func(r *domain.CreatePayoutRequest) { r.Amount = "-10" },
			message: "amount must be greater than zero",
		},
		{
			name:    "too many decimal places",
			mutate:  func(r *domain.CreatePayoutRequest) { r.Amount = "10.999" },
			message: "amount must have at most 2 decimal places",
		},
		{
			name:    "unsupported currency",
			mutate:  func(r *domain.CreatePayoutRequest) { r.Currency = "USD" },
			message: "currency must be PKR",
		},
		{
			name:    "short account number",
			mutate:  func(r *domain.CreatePayoutRequest) { r.AccountNumber = "12345" },
			message: "account_number must be 10-16 digits",
		},
		{
			name:    "non-digit account number",
			mutate:  func(r *domain.CreatePayoutRequest) { r.AccountNumber = "12345abcde" },
			message: "account_number must be 10-16 digits",
		},
		{
			name:    "bank payout without bank code",
			mutate:  func(r *domain.CreatePayoutRequest) { r.BankCode = nil },
			message: "bank_code is required for BANK payouts",
		},
		{
			name:    "unknown bank code",
			mutate:  func(r *domain.CreatePayoutRequest) { r.BankCode = &unknownBank },
			message: "bank_code is not a known active bank",
		},
		{
			name: "wallet payout without wallet code",
			mutate: func(r *domain.CreatePayoutRequest) {
				r.DestType = domain.DestTypeWallet
				r.BankCode = nil
			},
			message: "wallet_code is required for WALLET payouts",
		},
		{
			name: "unknown wallet code",
			mutate: func(r *domain.CreatePayoutRequest) {
				r.DestType = domain.DestTypeWallet
				r.BankCode = nil
				r.WalletCode = &walletCode
			},
			message: "wallet_code is not a known active wallet",
		},
		{
			name:    "invalid destination type",
			mutate:  func(r *domain.CreatePayoutRequest) { r.DestType = "CASH" },
			message: "dest_type must be BANK or WALLET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bankCreateRequest("100.00")
			tt.mutate(&req)

			_, err := service.CreatePayout(context.Background(), merchantID, req)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if validationErr.Message != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, validationErr.Message)
			}
		})
	}
}

func TestReinitiatePayout_MapsInvalidStatus(t *testing.T) {
	repo := &serviceRepoStub{reinitiateErr: store.ErrInvalidPayoutStatus}
	service := NewService(repo, decimal.NewFromInt(100000))

	_, err := service.ReinitiatePayout(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestReinitiatePayout_MapsInsufficientFunds(t *testing.T) {
	repo := &serviceRepoStub{reinitiateErr: store.ErrInsufficientFunds}
	service := NewService(repo, decimal.NewFromInt(100000))

	_, err := service.ReinitiatePayout(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestReinitiatePayout_MapsVersionConflict(t *testing.T) {
	repo := &serviceRepoStub{reinitiateErr: store.ErrVersionConflict}
	service := NewService(repo, decimal.NewFromInt(100000))

	_, err := service.ReinitiatePayout(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrBalanceConflict) {
		t.Fatalf("expected ErrBalanceConflict, got %v", err)
	}
}

func TestReinitiatePayout_ReturnsRequeuedPayout(t *testing.T) {
	requeued := &domain.Payout{ID: uuid.New(), Status: domain.PayoutStatusPending, Reinitiated: true}
	repo := &serviceRepoStub{reinitiatePayout: requeued}
	service := NewService(repo, decimal.NewFromInt(100000))

	payout, err := service.ReinitiatePayout(context.Background(), uuid.New(), requeued.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payout.Status != domain.PayoutStatusPending || !payout.Reinitiated {
		t.Fatalf("expected a reinitiated PENDING payout, got status=%s reinitiated=%t", payout.Status, payout.Reinitiated)
	}
}

func TestVerifyAccount_SuffixOutcomes(t *testing.T) {
	repo := &serviceRepoStub{directory: stubBankDirectory()}
	service := NewService(repo, decimal.NewFromInt(100000))
	bankCode := "HBL"

	tests := []struct {
		name          string
		accountNumber string
		wantValid     bool
	}{
		{name: "failing suffix is invalid", accountNumber: "1234560003", wantValid: false},
		{name: "on-hold suffix is invalid", accountNumber: "1234560005", wantValid: false},
		{name: "retry suffix is valid", accountNumber: "1234560002", wantValid: true},
		{name: "default suffix is valid", accountNumber: "1234567890", wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.VerifyAccount(context.Background(), uuid.New(), domain.VerifyAccountRequest{
				DestType:      domain.DestTypeBank,
				BankCode:      &bankCode,
				AccountNumber: tt.accountNumber,
			})
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if resp.IsValid != tt.wantValid {
				t.Fatalf("expected is_valid=%t, got %t", tt.wantValid, resp.IsValid)
			}
			if tt.wantValid && (resp.AccountTitle == nil || *resp.AccountTitle == "") {
				t.Fatal("expected an account title for a valid account")
			}
		})
	}
}

type rateLimiterStub struct {
	decision RateLimitDecision
	err      error
}

func (r *rateLimiterStub) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error) {
	return r.decision, r.err
}

func TestCreatePayout_RateLimitExceeded(t *testing.T) {
	repo := &serviceRepoStub{directory: stubBankDirectory()}
	service := NewService(repo, decimal.NewFromInt(100000))
	service.SetRateLimiter(&rateLimiterStub{decision: RateLimitDecision{Count: 61, RetryAfter: 30 * time.Second}}, 60)

	_, err := service.CreatePayout(context.Background(), uuid.New(), bankCreateRequest("100.00"))
	var rateLimitErr *RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("expected a rate limit error, got %v", err)
	}
	if rateLimitErr.RetryAfterSeconds != 30 {
		t.Fatalf("expected retry-after 30, got %d", rateLimitErr.RetryAfterSeconds)
	}
}

func TestCreatePayout_RateLimiterOutageAllowsRequest(t *testing.T) {
	merchantID := uuid.New()
	repo := &serviceRepoStub{
		balance: &domain.MerchantBalance{
			MerchantID: merchantID,
			Balance:    decimal.NewFromInt(10000),
			Version:    1,
		},
		directory: stubBankDirectory(),
	}
	service := NewService(repo, decimal.NewFromInt(100000))
	service.SetRateLimiter(&rateLimiterStub{err: errors.New("redis down")}, 60)

	if _, err := service.CreatePayout(context.Background(), merchantID, bankCreateRequest("100.00")); err != nil {
		t.Fatalf("expected limiter outage to fail open, got %v", err)
	}
}
