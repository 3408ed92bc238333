package app

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mypay/payout-service/internal/domain"
)

func TestDetermineSettlement(t *testing.T) {
	threshold := decimal.NewFromInt(100000)

	tests := []struct {
		name          string
		accountNumber string
		amount        string
		wantStatus    string
		wantReason    string
	}{
		{
			name:          "unknown suffix settles successfully",
			accountNumber: "1234567890",
			amount:        "5000.00",
			wantStatus:    domain.PayoutStatusSuccess,
		},
		{
			name:          "suffix 0001 settles successfully",
			accountNumber: "1234560001",
			amount:        "5000.00",
			wantStatus:    domain.PayoutStatusSuccess,
		},
		{
			name:          "suffix 0002 requests a retry",
			accountNumber: "1234560002",
			amount:        "5000.00",
			wantStatus:    domain.PayoutStatusRetry,
		},
		{
			name:          "suffix 0003 fails with validation reason",
			accountNumber: "1234560003",
			amount:        "5000.00",
			wantStatus:    domain.PayoutStatusFailed,
			wantReason:    FailureReasonValidation,
		},
		{
			name:          "suffix 0004 hangs in pending",
			accountNumber: "1234560004",
			amount:        "5000.00",
			wantStatus:    domain.PayoutStatusPending,
		},
		{
			name:          "suffix 0005 goes on hold",
			accountNumber: "1234560005",
			amount:        "5000.00",
			wantStatus:    domain.PayoutStatusOnHold,
			wantReason:    FailureReasonOnHold,
		},
		{
			name:          "amount at threshold forces review",
			accountNumber: "1234560001",
			amount:        "100000.00",
			wantStatus:    domain.PayoutStatusInReview,
		},
		{
			name:          "amount above threshold forces review over failing suffix",
			accountNumber: "1234560003",
			amount:        "250000.00",
			wantStatus:    domain.PayoutStatusInReview,
		},
		{
			name:          "amount just under threshold uses suffix",
			accountNumber: "1234560003",
			amount:        "99999.99",
			wantStatus:    domain.PayoutStatusFailed,
			wantReason:    FailureReasonValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("invalid test amount %q: %v", tt.amount, err)
			}

			outcome := DetermineSettlement(tt.accountNumber, amount, threshold)
			if outcome.Status != tt.wantStatus {
				t.Fatalf("expected status=%s, got %s", tt.wantStatus, outcome.Status)
			}
			if outcome.FailureReason != tt.wantReason {
				t.Fatalf("expected failure reason=%q, got %q", tt.wantReason, outcome.FailureReason)
			}
			if tt.wantStatus == domain.PayoutStatusSuccess && outcome.PSPReference == "" {
				t.Fatal("expected a psp reference on success")
			}
		})
	}
}

func TestNewPSPReference(t *testing.T) {
	ref := NewPSPReference()
	if !strings.HasPrefix(ref, "PSP-") {
		t.Fatalf("expected PSP- prefix, got %q", ref)
	}
	if len(ref) != 24 {
		t.Fatalf("expected 24 characters, got %d (%q)", len(ref), ref)
	}
	if ref == NewPSPReference() {
		t.Fatal("expected unique references across calls")
	}
}
