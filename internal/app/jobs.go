/**
 * @description
 * Scheduled maintenance job implementations for the payout-service.
 */

package app

import (
	"context"
	"log/slog"
	"time"
)

// JobsRepository defines the database operations needed by the jobs.
type JobsRepository interface {
	DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int64, error)
	RequeueStaleProcessingPayouts(ctx context.Context, olderThan time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled maintenance tasks.
type Jobs struct {
	repo       JobsRepository
	logger     *slog.Logger
	staleAfter time.Duration
}

// NewJobs creates a new Jobs runner. staleAfter is how long a payout may sit
// in PROCESSING before it is considered abandoned and requeued.
func NewJobs(repo JobsRepository, logger *slog.Logger, staleAfter time.Duration) *Jobs {
	return &Jobs{
		repo:       repo,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// CleanupExpiredIdempotencyKeys purges idempotency records past their TTL.
func (j *Jobs) CleanupExpiredIdempotencyKeys() {
	j.logger.Info("starting idempotency key cleanup job")
	ctx := context.Background()

	deleted, err := j.repo.DeleteExpiredIdempotencyKeys(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("failed to delete expired idempotency keys", "error", err)
		return
	}

	j.logger.Info("idempotency key cleanup job finished", "deleted", deleted)
}

// RequeueStaleProcessingPayouts returns payouts abandoned mid-processing
// (for example by a restart during a retry delay) to the PENDING queue.
func (j *Jobs) RequeueStaleProcessingPayouts() {
	j.logger.Info("starting stale processing requeue job")
	ctx := context.Background()

	cutoff := time.Now().UTC().Add(-j.staleAfter)
	requeued, err := j.repo.RequeueStaleProcessingPayouts(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to requeue stale processing payouts", "error", err)
		return
	}

	if requeued > 0 {
		j.logger.Info("requeued stale processing payouts", "count", requeued, "older_than", cutoff)
	}
	j.logger.Info("stale processing requeue job finished")
}
