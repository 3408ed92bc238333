/**
 * @description
 * This file defines the merchant-side domain models for the payout-service:
 * the merchant identity, the per-merchant balance row used for optimistic
 * concurrency, and the append-only ledger entry recorded with every balance
 * mutation.
 *
 * @notes
 * - Amounts use shopspring/decimal so monetary comparisons and arithmetic are
 *   exact fixed-point operations; raw floats never touch money.
 * - The `Version` field on MerchantBalance is the sole contention-resolution
 *   mechanism: every balance mutation is a conditional update on the version.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Merchant represents an onboarded merchant account.
type Merchant struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	APIKeyHash    string    `json:"-"`
	WebhookURL    *string   `json:"webhook_url,omitempty"`
	WebhookSecret string    `json:"-"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MerchantBalance is the single balance row per merchant. `Balance` is the
// total funds; `LockedBalance` is the portion reserved against in-flight
// payouts. Invariant: 0 <= LockedBalance <= Balance.
type MerchantBalance struct {
	MerchantID    uuid.UUID       `json:"merchant_id"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Version       int64           `json:"version"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available returns the spendable portion of the balance, floored at zero.
func (b MerchantBalance) Available() decimal.Decimal {
	available := b.Balance.Sub(b.LockedBalance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// Ledger entry types. DEBIT records a reservation or a settled debit; RELEASE
// records locked funds returning to the available balance after a failure.
const (
	LedgerEntryDebit   = "DEBIT"
	LedgerEntryRelease = "RELEASE"
)

// LedgerEntry is an immutable audit record of one balance mutation. Rows are
// only ever inserted, in the same transaction as the mutation they document.
type LedgerEntry struct {
	ID           uuid.UUID         `json:"id"`
	MerchantID   uuid.UUID         `json:"merchant_id"`
	PayoutID     uuid.UUID         `json:"payout_id"`
	Type         string            `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`
	BalanceAfter decimal.Decimal   `json:"balance_after"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// BalanceResponse is the wire representation of a merchant balance. All
// amounts are decimal strings fixed to two fractional digits.
type BalanceResponse struct {
	Balance          string `json:"balance"`
	LockedBalance    string `json:"locked_balance"`
	AvailableBalance string `json:"available_balance"`
}

// NewBalanceResponse serializes a MerchantBalance for the API.
func NewBalanceResponse(b MerchantBalance) BalanceResponse {
	return BalanceResponse{
		Balance:          b.Balance.StringFixed(2),
		LockedBalance:    b.LockedBalance.StringFixed(2),
		AvailableBalance: b.Available().StringFixed(2),
	}
}

// LedgerEntryResponse is the wire representation of a ledger entry.
type LedgerEntryResponse struct {
	ID           string            `json:"id"`
	PayoutID     string            `json:"payout_id"`
	Type         string            `json:"type"`
	Amount       string            `json:"amount"`
	BalanceAfter string            `json:"balance_after"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

// NewLedgerEntryResponse serializes a LedgerEntry for the API.
func NewLedgerEntryResponse(e LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:           e.ID.String(),
		PayoutID:     e.PayoutID.String(),
		Type:         e.Type,
		Amount:       e.Amount.StringFixed(2),
		BalanceAfter: e.BalanceAfter.StringFixed(2),
		Description:  e.Description,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
