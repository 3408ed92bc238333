/**
 * @description
 * This file contains the HTTP handlers for the payout endpoints and the shared
 * response helpers for the whole api package. Every error response uses the
 * same envelope: {"error": {"message": ..., "code": ..., "timestamp": ...}}.
 *
 * Handlers translate service and store errors to HTTP status codes with
 * errors.Is / errors.As; business rules never leak raw database errors to
 * clients.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: For URL parameter extraction.
 * - internal/app, internal/domain, internal/store: Business logic and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mypay/payout-service/internal/app"
	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

// Machine-readable error codes carried in the error envelope.
const (
	codeValidationError     = "VALIDATION_ERROR"
	codeUnauthorized        = "UNAUTHORIZED"
	codeDuplicateReference  = "DUPLICATE_REFERENCE"
	codeInsufficientBalance = "INSUFFICIENT_BALANCE"
	codeBalanceConflict     = "BALANCE_CONFLICT"
	codeNotFound            = "NOT_FOUND"
	codeInvalidStatus       = "INVALID_STATUS"
	codeIdempotencyConflict = "IDEMPOTENCY_KEY_CONFLICT"
	codeRateLimited         = "RATE_LIMITED"
	codeInternalError       = "INTERNAL_ERROR"
)

// Pagination bounds for list endpoints.
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type errorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}})
}

// writeServiceError maps service and store errors onto the error envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *app.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, codeValidationError, validationErr.Message)
		return
	}
	var rateLimitErr *app.RateLimitError
	if errors.As(err, &rateLimitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests, slow down")
		return
	}

	switch {
	case errors.Is(err, app.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, codeInsufficientBalance, "Available balance is insufficient for this payout")
	case errors.Is(err, app.ErrBalanceConflict):
		writeError(w, http.StatusConflict, codeBalanceConflict, "Balance was modified concurrently, please retry")
	case errors.Is(err, app.ErrInvalidStatus), errors.Is(err, app.ErrUnknownIPNStatus):
		writeError(w, http.StatusBadRequest, codeInvalidStatus, "Payout is not in a valid status for this operation")
	case errors.Is(err, store.ErrDuplicateReference):
		writeError(w, http.StatusConflict, codeDuplicateReference, "merchant_reference was already used")
	case errors.Is(err, store.ErrPayoutNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Payout not found")
	case errors.Is(err, store.ErrMerchantNotFound), errors.Is(err, store.ErrBalanceNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Merchant not found")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
	}
}

// PayoutHandlers holds the dependencies for the payout endpoints.
type PayoutHandlers struct {
	service   *app.Service
	ipnSecret string
}

// NewPayoutHandlers creates a new PayoutHandlers instance. ipnSecret may be
// empty, in which case the IPN callback accepts unauthenticated requests.
func NewPayoutHandlers(service *app.Service, ipnSecret string) *PayoutHandlers {
	return &PayoutHandlers{service: service, ipnSecret: ipnSecret}
}

// CreatePayout handles POST /payouts.
func (h *PayoutHandlers) CreatePayout(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
		return
	}

	var req domain.CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "Invalid request body")
		return
	}

	payout, err := h.service.CreatePayout(r.Context(), merchant.ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewPayoutResponse(*payout))
}

// GetPayout handles GET /payouts/{payoutID}.
func (h *PayoutHandlers) GetPayout(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
		return
	}

	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "payout id must be a valid UUID")
		return
	}

	payout, err := h.service.GetPayout(r.Context(), merchant.ID, payoutID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewPayoutResponse(*payout))
}

// ListPayouts handles GET /payouts with page/limit pagination and an optional
// status filter.
func (h *PayoutHandlers) ListPayouts(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, codeValidationError, "page must be a positive integer")
			return
		}
		page = parsed
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, codeValidationError, "limit must be a positive integer")
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	opts := domain.PayoutListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	payouts, err := h.service.ListPayouts(r.Context(), merchant.ID, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	responses := make([]domain.PayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		responses = append(responses, domain.NewPayoutResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  responses,
		"page":  page,
		"limit": limit,
	})
}

// ReinitiatePayout handles POST /payouts/{payoutID}/reinitiate.
func (h *PayoutHandlers) ReinitiatePayout(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
		return
	}

	payoutID, err := uuid.Parse(chi.URLParam(r, "payoutID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "payout id must be a valid UUID")
		return
	}

	payout, err := h.service.ReinitiatePayout(r.Context(), merchant.ID, payoutID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewPayoutResponse(*payout))
}

// VerifyAccount handles POST /verify-account.
func (h *PayoutHandlers) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
		return
	}

	var req domain.VerifyAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "Invalid request body")
		return
	}

	resp, err := h.service.VerifyAccount(r.Context(), merchant.ID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// IPNCallback handles POST /ipn/callback from the settlement simulator. The
// endpoint sits outside merchant auth; when an IPN secret is configured the
// caller must present it in X-IPN-Secret.
func (h *PayoutHandlers) IPNCallback(w http.ResponseWriter, r *http.Request) {
	if h.ipnSecret != "" && r.Header.Get("X-IPN-Secret") != h.ipnSecret {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Invalid IPN credentials")
		return
	}

	var req domain.IPNCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationError, "Invalid request body")
		return
	}

	payout, err := h.service.HandleIPNCallback(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewPayoutResponse(*payout))
}
