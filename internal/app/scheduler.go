/**
 * @description
 * Cron scheduler setup for the maintenance jobs.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SchedulerConfig carries the cron expressions for the maintenance jobs.
type SchedulerConfig struct {
	IdempotencyCleanupSchedule string
	StaleRequeueSchedule       string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config SchedulerConfig
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.IdempotencyCleanupSchedule, s.jobs.CleanupExpiredIdempotencyKeys); err != nil {
		s.logger.Error("failed to schedule idempotency cleanup job", "error", err)
	} else {
		s.logger.Info("scheduled idempotency cleanup job", "schedule", s.config.IdempotencyCleanupSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.StaleRequeueSchedule, s.jobs.RequeueStaleProcessingPayouts); err != nil {
		s.logger.Error("failed to schedule stale processing requeue job", "error", err)
	} else {
		s.logger.Info("scheduled stale processing requeue job", "schedule", s.config.StaleRequeueSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
