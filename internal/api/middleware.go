/**
 * @description
 * This file contains custom middleware for the HTTP router: merchant
 * authentication by static API key. The key is never stored in clear; the
 * middleware compares the presented key against the merchant's bcrypt hash
 * and injects the merchant into the request context for handlers.
 *
 * @dependencies
 * - context, net/http: Standard Go libraries.
 * - golang.org/x/crypto/bcrypt: API key hash comparison.
 * - internal/domain, internal/store: Merchant model and lookup.
 */

package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

// merchantContextKey is a custom type for the context key to avoid collisions.
type merchantContextKey string

const merchantKey merchantContextKey = "merchant"

// Authentication headers.
const (
	HeaderMerchantID = "X-Merchant-Id"
	HeaderAPIKey     = "X-Api-Key"
)

// MerchantAuthMiddleware authenticates requests by merchant ID and static API
// key and stores the merchant in the request context.
func MerchantAuthMiddleware(repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			merchantIDHeader := r.Header.Get(HeaderMerchantID)
			apiKey := r.Header.Get(HeaderAPIKey)
			if merchantIDHeader == "" || apiKey == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Merchant credentials required")
				return
			}

			merchantID, err := uuid.Parse(merchantIDHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid merchant credentials")
				return
			}

			merchant, err := repo.FindMerchantByID(r.Context(), merchantID)
			if err != nil {
				if !errors.Is(err, store.ErrMerchantNotFound) {
					log.Printf("level=error component=api msg=\"merchant lookup failed\" merchant_id=%s err=%v", merchantID, err)
					writeError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
					return
				}
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid merchant credentials")
				return
			}
			if !merchant.Active {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Merchant account is disabled")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(merchant.APIKeyHash), []byte(apiKey)); err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid merchant credentials")
				return
			}

			ctx := context.WithValue(r.Context(), merchantKey, merchant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MerchantFromContext retrieves the authenticated merchant from the request
// context. Handlers behind MerchantAuthMiddleware should use this.
func MerchantFromContext(ctx context.Context) (*domain.Merchant, bool) {
	merchant, ok := ctx.Value(merchantKey).(*domain.Merchant)
	return merchant, ok
}
