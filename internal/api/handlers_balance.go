/**
 * @description
 * HTTP handlers for the balance, ledger history, directory, and health
 * endpoints.
 */

package api

import (
	"net/http"
	"strconv"

	"github.com/mypay/payout-service/internal/domain"
)

// Balance handles GET /balance.
func (h *PayoutHandlers) Balance(w http.ResponseWriter, r *http.Request) {
	merchant, ok := MerchantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), merchant.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewBalanceResponse(*balance))
}

// BalanceHistory handles GET /balance/history, newest entries first.
func (h *PayoutHandlers) BalanceHistory(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.service.BalanceHistory(r.Context(), merchant.ID, limit, (page-1)*limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	responses := make([]domain.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, domain.NewLedgerEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  responses,
		"page":  page,
		"limit": limit,
	})
}

// Directory handles GET /directory, listing active banks and wallets.
func (h *PayoutHandlers) Directory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListDirectory(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
}

// Health handles GET /health.
func (h *PayoutHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
