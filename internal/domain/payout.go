/**
 * @description
 * This file defines the core payout domain model for the payout-service: the
 * payout record itself, its status machine constants, and the API request and
 * response DTOs.
 *
 * @notes
 * - Using distinct types for API requests, database models, and webhook
 *   payloads keeps the web layer, business logic, and wire formats decoupled.
 * - Amounts are `decimal.Decimal` (2dp fixed-point, PKR only). On the wire
 *   they are always decimal strings, never raw floats.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payout statuses. PENDING payouts are claimed by the worker, which flips them
// to PROCESSING and drives them to a terminal outcome. FAILED payouts may be
// reinitiated back to PENDING exactly once.
const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusSuccess    = "SUCCESS"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusRetry      = "RETRY"
	PayoutStatusInReview   = "IN_REVIEW"
	PayoutStatusOnHold     = "ON_HOLD"
)

// Payout destination types.
const (
	DestTypeBank   = "BANK"
	DestTypeWallet = "WALLET"
)

// Currency is the only settlement currency the sandbox supports.
const Currency = "PKR"

// statusMessages maps a payout status to the human-readable message carried in
// webhook payloads and the verify-account response.
var statusMessages = map[string]string{
	PayoutStatusPending:    "Payout is pending processing",
	PayoutStatusProcessing: "Payout is being processed",
	PayoutStatusSuccess:    "Payout completed successfully",
	PayoutStatusFailed:     "Payout failed",
	PayoutStatusRetry:      "Payout will be retried",
	PayoutStatusInReview:   "Payout is under review",
	PayoutStatusOnHold:     "Payout is on hold",
}

// StatusMessage returns the display message for a payout status.
func StatusMessage(status string) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "Unknown payout status"
}

// Payout is the unit of work: one merchant-initiated disbursement to a bank
// account or mobile wallet. Maps directly to the `payouts` table.
type Payout struct {
	ID                uuid.UUID       `json:"id"`
	MerchantID        uuid.UUID       `json:"merchant_id"`
	MerchantReference string          `json:"merchant_reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	DestType          string          `json:"dest_type"`
	BankCode          *string         `json:"bank_code,omitempty"`
	WalletCode        *string         `json:"wallet_code,omitempty"`
	AccountNumber     string          `json:"account_number"`
	AccountTitle      *string         `json:"account_title,omitempty"`
	Status            string          `json:"status"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	PSPReference      *string         `json:"psp_reference,omitempty"`
	Reinitiated       bool            `json:"reinitiated"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CreatePayoutRequest is the DTO for POST /payouts. Amount arrives as a
// decimal string so precision is never lost to JSON float parsing.
type CreatePayoutRequest struct {
	MerchantReference string  `json:"merchant_reference"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency,omitempty"`
	DestType          string  `json:"dest_type"`
	BankCode          *string `json:"bank_code,omitempty"`
	WalletCode        *string `json:"wallet_code,omitempty"`
	AccountNumber     string  `json:"account_number"`
	AccountTitle      *string `json:"account_title,omitempty"`
}

// PayoutListOptions carries pagination and filtering for payout listings.
type PayoutListOptions struct {
	Status string
	Limit  int
	Offset int
}

// VerifyAccountRequest is the DTO for POST /verify-account.
type VerifyAccountRequest struct {
	DestType      string  `json:"dest_type"`
	BankCode      *string `json:"bank_code,omitempty"`
	WalletCode    *string `json:"wallet_code,omitempty"`
	AccountNumber string  `json:"account_number"`
}

// VerifyAccountResponse is the pre-flight validation result.
type VerifyAccountResponse struct {
	IsValid      bool    `json:"is_valid"`
	AccountTitle *string `json:"account_title,omitempty"`
	Message      string  `json:"message"`
}

// IPNCallbackRequest is the payload posted by an external settlement
// simulator to /ipn/callback.
type IPNCallbackRequest struct {
	PayoutID      string  `json:"payout_id"`
	Status        string  `json:"status"`
	PSPReference  *string `json:"psp_reference,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
}

// PayoutResponse is the wire representation of a payout. Decimal and time
// fields are string-serialized.
type PayoutResponse struct {
	ID                string  `json:"id"`
	MerchantID        string  `json:"merchant_id"`
	MerchantReference string  `json:"merchant_reference"`
	Amount            string  `json:"amount"`
	Currency          string  `json:"currency"`
	DestType          string  `json:"dest_type"`
	BankCode          *string `json:"bank_code,omitempty"`
	WalletCode        *string `json:"wallet_code,omitempty"`
	AccountNumber     string  `json:"account_number"`
	AccountTitle      *string `json:"account_title,omitempty"`
	Status            string  `json:"status"`
	FailureReason     *string `json:"failure_reason,omitempty"`
	PSPReference      *string `json:"psp_reference,omitempty"`
	ProcessedAt       *string `json:"processed_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// NewPayoutResponse serializes a Payout for the API and webhook payloads.
func NewPayoutResponse(p Payout) PayoutResponse {
	resp := PayoutResponse{
		ID:                p.ID.String(),
		MerchantID:        p.MerchantID.String(),
		MerchantReference: p.MerchantReference,
		Amount:            p.Amount.StringFixed(2),
		Currency:          p.Currency,
		DestType:          p.DestType,
		BankCode:          p.BankCode,
		WalletCode:        p.WalletCode,
		AccountNumber:     p.AccountNumber,
		AccountTitle:      p.AccountTitle,
		Status:            p.Status,
		FailureReason:     p.FailureReason,
		PSPReference:      p.PSPReference,
		CreatedAt:         p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.ProcessedAt != nil {
		processedAt := p.ProcessedAt.UTC().Format(time.RFC3339)
		resp.ProcessedAt = &processedAt
	}
	return resp
}
