/**
 * @description
 * The idempotency guard middleware applied to all mutating endpoints. A client
 * supplies a UUID X-Idempotency-Key with each mutating request; the guard
 * deduplicates retries so side effects (payout creation, reinitiation) run at
 * most once per key.
 *
 * Behaviour per (merchant, key):
 * - unseen: a placeholder record with a TTL is inserted before the handler
 *   runs, and the handler's response is cached against it best-effort.
 * - seen with the same request hash: the cached status and body are replayed
 *   verbatim without re-executing the handler.
 * - seen with a different hash: 409, the key was reused for a different
 *   request.
 * - expired: the record is deleted and the request treated as unseen.
 *
 * @dependencies
 * - bytes, crypto/sha256, io, net/http: Standard Go libraries.
 * - internal/domain, internal/store: Idempotency record persistence.
 */

package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mypay/payout-service/internal/domain"
	"github.com/mypay/payout-service/internal/store"
)

// HeaderIdempotencyKey carries the client-supplied deduplication key.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// HeaderIdempotentReplay marks a response served from the idempotency cache.
const HeaderIdempotentReplay = "X-Idempotent-Replay"

// IdempotencyGuard wraps mutating handlers with the deduplication logic.
type IdempotencyGuard struct {
	repo store.Repository
	ttl  time.Duration
}

// NewIdempotencyGuard creates a guard with the given record TTL.
func NewIdempotencyGuard(repo store.Repository, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo, ttl: ttl}
}

// responseRecorder captures the handler's status and body so they can be
// cached against the idempotency record while still streaming to the client.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func requestHash(merchantID uuid.UUID, key uuid.UUID, body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:", merchantID, key)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Middleware applies the idempotency guard to the wrapped handler.
func (g *IdempotencyGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		merchant, ok := MerchantFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusInternalServerError, codeInternalError, "Could not get merchant from context")
			return
		}

		keyHeader := r.Header.Get(HeaderIdempotencyKey)
		if keyHeader == "" {
			writeError(w, http.StatusBadRequest, codeValidationError, "X-Idempotency-Key header is required")
			return
		}
		key, err := uuid.Parse(keyHeader)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationError, "X-Idempotency-Key must be a valid UUID")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationError, "Cannot read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(merchant.ID, key, body)

		record, err := g.repo.GetIdempotencyKey(r.Context(), merchant.ID, key)
		if err != nil && !errors.Is(err, store.ErrIdempotencyKeyNotFound) {
			log.Printf("level=error component=idempotency msg=\"key lookup failed\" merchant_id=%s key=%s err=%v", merchant.ID, key, err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
			return
		}

		if record != nil && time.Now().UTC().After(record.ExpiresAt) {
			if err := g.repo.DeleteIdempotencyKey(r.Context(), merchant.ID, key); err != nil {
				log.Printf("level=warn component=idempotency msg=\"failed to delete expired key\" merchant_id=%s key=%s err=%v", merchant.ID, key, err)
			}
			record = nil
		}

		if record != nil {
			g.handleReplay(w, merchant, key, record, hash)
			return
		}

		if err := g.repo.InsertIdempotencyKey(r.Context(), &domain.IdempotencyKey{
			MerchantID:  merchant.ID,
			Key:         key,
			RequestHash: hash,
			ExpiresAt:   time.Now().UTC().Add(g.ttl),
		}); err != nil {
			if errors.Is(err, store.ErrIdempotencyKeyExists) {
				// Lost a race with a concurrent retry carrying the same key.
				record, fetchErr := g.repo.GetIdempotencyKey(r.Context(), merchant.ID, key)
				if fetchErr == nil {
					g.handleReplay(w, merchant, key, record, hash)
					return
				}
			}
			log.Printf("level=error component=idempotency msg=\"placeholder insert failed\" merchant_id=%s key=%s err=%v", merchant.ID, key, err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "Internal server error")
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// Best-effort: a failure to cache the response must not fail the
		// request that already executed.
		if err := g.repo.StoreIdempotentResponse(r.Context(), merchant.ID, key, recorder.status, recorder.body.String()); err != nil {
			log.Printf("level=warn component=idempotency msg=\"failed to store cached response\" merchant_id=%s key=%s err=%v", merchant.ID, key, err)
		}
	})
}

func (g *IdempotencyGuard) handleReplay(w http.ResponseWriter, merchant *domain.Merchant, key uuid.UUID, record *domain.IdempotencyKey, hash string) {
	if record.RequestHash != hash {
		writeError(w, http.StatusConflict, codeIdempotencyConflict, "Idempotency key was already used for a different request")
		return
	}
	if record.StatusCode == nil || record.Response == nil {
		// Original request is still executing; the client should retry later.
		writeError(w, http.StatusConflict, codeIdempotencyConflict, "A request with this idempotency key is still in progress")
		return
	}

	log.Printf("level=info component=idempotency msg=\"replaying cached response\" merchant_id=%s key=%s status=%d", merchant.ID, key, *record.StatusCode)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderIdempotentReplay, "true")
	w.WriteHeader(*record.StatusCode)
	w.Write([]byte(*record.Response))
}
