/**
 * @description
 * Mock settlement rules for the sandbox. The outcome of a payout is derived
 * deterministically from the last four digits of the destination account
 * number and the amount, so integrators can script every outcome in their
 * tests.
 *
 * The rules are part of the public sandbox contract and must not change:
 * amounts at or above the review threshold always land IN_REVIEW; otherwise
 * the account-number suffix selects the outcome, with unknown suffixes
 * settling successfully.
 */

package app

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mypay/payout-service/internal/domain"
)

// Canned failure reasons surfaced by the mock settlement.
const (
	FailureReasonValidation = "Account validation failed"
	FailureReasonOnHold     = "Account temporarily on hold"
	FailureReasonProcessing = "Processing error"
)

// suffixOutcomes is the fixed suffix -> outcome table of the sandbox.
var suffixOutcomes = map[string]string{
	"0001": domain.PayoutStatusSuccess,
	"0002": domain.PayoutStatusRetry,
	"0003": domain.PayoutStatusFailed,
	"0004": domain.PayoutStatusPending,
	"0005": domain.PayoutStatusOnHold,
}

// SettlementOutcome is the result of one mock settlement determination.
type SettlementOutcome struct {
	Status        string
	FailureReason string
	PSPReference  string
}

// DetermineSettlement derives the settlement outcome for an account number and
// amount. Amounts at or above reviewThreshold force IN_REVIEW regardless of
// the suffix.
func DetermineSettlement(accountNumber string, amount decimal.Decimal, reviewThreshold decimal.Decimal) SettlementOutcome {
	if amount.GreaterThanOrEqual(reviewThreshold) {
		return SettlementOutcome{Status: domain.PayoutStatusInReview}
	}

	suffix := accountNumber
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}

	status, ok := suffixOutcomes[suffix]
	if !ok {
		status = domain.PayoutStatusSuccess
	}

	outcome := SettlementOutcome{Status: status}
	switch status {
	case domain.PayoutStatusSuccess:
		outcome.PSPReference = NewPSPReference()
	case domain.PayoutStatusFailed:
		outcome.FailureReason = FailureReasonValidation
	case domain.PayoutStatusOnHold:
		outcome.FailureReason = FailureReasonOnHold
	}
	return outcome
}

// NewPSPReference generates a synthetic settlement-network reference.
func NewPSPReference() string {
	return "PSP-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:20]
}
