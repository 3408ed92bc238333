/**
 * @description
 * Directory models: the registry of bank and wallet destination codes that
 * payout destinations are validated against, and the idempotency-key record
 * backing the idempotency guard on mutating requests.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DirectoryEntry is one active bank or wallet destination code.
type DirectoryEntry struct {
	ID     uuid.UUID `json:"id"`
	Kind   string    `json:"kind"` // BANK or WALLET
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// IdempotencyKey is the persisted record for one (merchant, key) pair. The
// placeholder row is inserted before the guarded handler executes; the cached
// response is attached best-effort once the handler finishes.
type IdempotencyKey struct {
	MerchantID  uuid.UUID `json:"merchant_id"`
	Key         uuid.UUID `json:"key"`
	RequestHash string    `json:"request_hash"`
	StatusCode  *int      `json:"status_code,omitempty"`
	Response    *string   `json:"response,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
