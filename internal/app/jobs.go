/**
 * @description
 * Scheduled job implementations: the monthly distribution run, the daily
 * withdrawal release sweep, and the nightly integrity sweep.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridianfunds/settlement-service/internal/config"
	"github.com/meridianfunds/settlement-service/internal/domain"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	distributor *CommissionDistributor
	withdrawals *WithdrawalStateMachine
	integrity   *IntegrityValidator
	logger      *slog.Logger
	config      config.Config
	now         func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(distributor *CommissionDistributor, withdrawals *WithdrawalStateMachine, integrity *IntegrityValidator, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		distributor: distributor,
		withdrawals: withdrawals,
		integrity:   integrity,
		logger:      logger,
		config:      cfg,
		now:         time.Now,
	}
}

// RunMonthlyDistribution settles every account for the current month.
func (j *Jobs) RunMonthlyDistribution() {
	month := domain.MonthOf(j.now().UTC())
	j.logger.Info("starting monthly distribution job", "month", month)
	ctx := context.Background()

	result, err := j.distributor.Run(ctx, month)
	if err != nil {
		j.logger.Error("monthly distribution job failed", "month", month, "error", err)
		return
	}

	j.logger.Info("monthly distribution job finished",
		"month", month,
		"distributed", result.Distributed,
		"already_settled", result.AlreadySettled,
		"failed", len(result.Failed))
}

// ReleaseDueWithdrawals completes approved withdrawals whose release date
// has arrived. The job runs daily but only acts on the release day of the
// month, so a misconfigured schedule cannot release early.
func (j *Jobs) ReleaseDueWithdrawals() {
	now := j.now().UTC()
	if now.Day() != j.config.ReleaseDayOfMonth {
		j.logger.Debug("skipping withdrawal release sweep", "day", now.Day(), "release_day", j.config.ReleaseDayOfMonth)
		return
	}

	j.logger.Info("starting withdrawal release sweep")
	ctx := context.Background()

	released, err := j.withdrawals.ReleaseDue(ctx)
	if err != nil {
		j.logger.Error("withdrawal release sweep failed", "error", err)
		return
	}

	j.logger.Info("withdrawal release sweep finished", "released", released)
}

// RunIntegritySweep scans every account for balance drift and orphaned
// ledger entries. Read-only; findings are reported, never repaired here.
func (j *Jobs) RunIntegritySweep() {
	j.logger.Info("starting integrity sweep job")
	ctx := context.Background()

	result, err := j.integrity.Sweep(ctx)
	if err != nil {
		j.logger.Error("integrity sweep job failed", "error", err)
		return
	}

	if result.Healthy {
		j.logger.Info("integrity sweep job finished, all accounts healthy",
			"accounts_checked", result.AccountsChecked)
		return
	}
	j.logger.Warn("integrity sweep job found issues",
		"accounts_checked", result.AccountsChecked,
		"issues", len(result.Issues))
}
