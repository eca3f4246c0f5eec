/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/meridianfunds/settlement-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
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
	if _, err := s.cron.AddFunc(s.config.DistributionSchedule, s.jobs.RunMonthlyDistribution); err != nil {
		s.logger.Error("failed to schedule monthly distribution job", "error", err)
	} else {
		s.logger.Info("scheduled monthly distribution job", "schedule", s.config.DistributionSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.ReleaseSweepSchedule, s.jobs.ReleaseDueWithdrawals); err != nil {
		s.logger.Error("failed to schedule withdrawal release sweep", "error", err)
	} else {
		s.logger.Info("scheduled withdrawal release sweep", "schedule", s.config.ReleaseSweepSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.IntegritySweepSchedule, s.jobs.RunIntegritySweep); err != nil {
		s.logger.Error("failed to schedule integrity sweep job", "error", err)
	} else {
		s.logger.Info("scheduled integrity sweep job", "schedule", s.config.IntegritySweepSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
