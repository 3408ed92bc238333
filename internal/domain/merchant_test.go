package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestMerchantBalanceAvailable(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		locked  string
		want    string
	}{
		{name: "nothing locked", balance: "1000.00", locked: "0", want: "1000"},
		{name: "partially locked", balance: "1000.00", locked: "250.50", want: "749.5"},
		{name: "fully locked", balance: "1000.00", locked: "1000.00", want: "0"},
		{name: "over-locked floors at zero", balance: "1000.00", locked: "1200.00", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := MerchantBalance{
				Balance:       decimal.RequireFromString(tt.balance),
				LockedBalance: decimal.RequireFromString(tt.locked),
			}
			if got := b.Available(); got.String() != tt.want {
				t.Fatalf("expected available=%s, got %s", tt.want, got.String())
			}
		})
	}
}

func TestNewPayoutResponse_FormatsAmountsAndTimes(t *testing.T) {
	processedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	payout := Payout{
		ID:                uuid.New(),
		MerchantID:        uuid.New(),
		MerchantReference: "ref-42",
		Amount:            decimal.RequireFromString("1234.5"),
		Currency:          Currency,
		DestType:          DestTypeBank,
		AccountNumber:     "1234567890",
		Status:            PayoutStatusSuccess,
		ProcessedAt:       &processedAt,
		CreatedAt:         processedAt.Add(-time.Hour),
		UpdatedAt:         processedAt,
	}

	resp := NewPayoutResponse(payout)
	if resp.Amount != "1234.50" {
		t.Fatalf("expected amount 1234.50, got %s", resp.Amount)
	}
	if resp.ProcessedAt == nil || *resp.ProcessedAt != "2026-03-14T09:30:00Z" {
		t.Fatalf("expected RFC3339 processed_at, got %v", resp.ProcessedAt)
	}
	if resp.CreatedAt != "2026-03-14T08:30:00Z" {
		t.Fatalf("expected RFC3339 created_at, got %s", resp.CreatedAt)
	}
}

func TestStatusMessage(t *testing.T) {
	if got := StatusMessage(PayoutStatusSuccess); got != "Payout completed successfully" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := StatusMessage("BOGUS"); got != "Unknown payout status" {
		t.Fatalf("expected the unknown fallback, got %q", got)
	}
}
