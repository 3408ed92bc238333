/**
 * @description
 * This file sets up the HTTP router for the payout-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, merchant authentication, and the idempotency guard on
 * mutating endpoints.
 */
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mypay/payout-service/internal/store"
)

// NewRouter creates a new Chi router and registers the payout-service routes.
func NewRouter(h *PayoutHandlers, repo store.Repository, guard *IdempotencyGuard, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", HeaderMerchantID, HeaderAPIKey, HeaderIdempotencyKey},
		ExposedHeaders:   []string{HeaderIdempotentReplay, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Public endpoints
	r.Get("/health", h.Health)
	r.Post("/ipn/callback", h.IPNCallback)

	// Merchant-authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(MerchantAuthMiddleware(repo))

		r.Get("/payouts", h.ListPayouts)
		r.Get("/payouts/{payoutID}", h.GetPayout)
		r.Get("/balance", h.Balance)
		r.Get("/balance/history", h.BalanceHistory)
		r.Get("/directory", h.Directory)

		// Mutating endpoints sit behind the idempotency guard
		r.Group(func(r chi.Router) {
			r.Use(guard.Middleware)

			r.Post("/payouts", h.CreatePayout)
			r.Post("/payouts/{payoutID}/reinitiate", h.ReinitiatePayout)
			r.Post("/verify-account", h.VerifyAccount)
		})
	})

	return r
}
