package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfunds/settlement-service/internal/config"
	"github.com/meridianfunds/settlement-service/internal/domain"
)

func TestReleaseDueWithdrawals_OnlyRunsOnReleaseDay(t *testing.T) {
	mem, sm, account, _ := withdrawalFixture(t)
	ctx := context.Background()

	sm.now = func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) }
	req, err := sm.Request(ctx, account.ID, dec("300.00"), "bank_transfer")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Approve(ctx, req.ID); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{ReleaseDayOfMonth: 10}
	jobs := NewJobs(nil, sm, nil, testLogger(), cfg)

	// The request is past its release date, but the sweep only acts on
	// the configured day of the month.
	sm.now = func() time.Time { return time.Date(2026, 8, 11, 9, 0, 0, 0, time.UTC) }
	jobs.now = sm.now
	jobs.ReleaseDueWithdrawals()
	if mem.withdrawals[req.ID].Status != domain.WithdrawalApproved {
		t.Fatal("sweep must not release off the configured day")
	}

	sm.now = func() time.Time { return time.Date(2026, 9, 10, 9, 0, 0, 0, time.UTC) }
	jobs.now = sm.now
	jobs.ReleaseDueWithdrawals()
	if mem.withdrawals[req.ID].Status != domain.WithdrawalCompleted {
		t.Fatal("expected the sweep to complete the request on the release day")
	}
}

func TestRunMonthlyDistribution_UsesCurrentMonth(t *testing.T) {
	f := newDistributionFixture(t, domain.AccountFixedRate, "10000.00", "2500.00", true)
	d := f.distributor()

	jobs := NewJobs(d, nil, nil, testLogger(), config.Config{})
	jobs.now = func() time.Time { return time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC) }
	jobs.RunMonthlyDistribution()

	if _, ok := f.mem.distributions[distributionKey(f.account.ID, "2026-08")]; !ok {
		t.Fatal("expected a distribution record keyed to the job month")
	}
}

func TestRunIntegritySweep(t *testing.T) {
	mem := newMemStore()
	memberID := uuid.New()
	// The stored balance has no backing entries, so the sweep flags it.
	mem.addAccount(verifiedAccount(memberID, domain.AccountFixedRate, "100.00", "100.00"))

	validator := NewIntegrityValidator(mem, &capturingPublisher{}, testLogger())
	jobs := NewJobs(nil, nil, validator, testLogger(), config.Config{})
	jobs.RunIntegritySweep()

	sweep, err := validator.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sweep.Healthy {
		t.Fatal("expected the drifted account to be flagged")
	}
}
