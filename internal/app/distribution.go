/**
 * @description
 * The Periodic Commission Distributor: the monthly batch that walks every
 * active funded account, picks a policy branch by account kind and lockup
 * state, and fans the computed shares out to the member, referrers, reserve
 * fund and house beneficiaries through the Ledger Writer.
 *
 * Each account's distribution record is inserted first as an idempotency
 * claim for (account, month); a duplicate claim means the account was
 * already settled and is skipped. Individual credits after the claim are
 * independently atomic but not wrapped in one cross-account transaction, so
 * a credit failure is logged and absorbed rather than unwinding the run.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
	"github.com/meridianfunds/settlement-service/internal/store"
)

// DistributionStore is the persistence subset the monthly distributor needs.
type DistributionStore interface {
	ListActiveAccountsWithBalance(ctx context.Context) ([]domain.Account, error)
	CreateCommissionDistribution(ctx context.Context, rec *domain.CommissionDistribution) error
	GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error)
	FindPrimaryAccountByMemberID(ctx context.Context, memberID uuid.UUID) (*domain.Account, error)
	CreateReserveEntry(ctx context.Context, e *domain.ReserveEntry) error
	ReserveBalance(ctx context.Context) (decimal.Decimal, error)
}

// OverrideCalculator pays founder overrides on top of a standard split.
type OverrideCalculator interface {
	ComputeOverride(ctx context.Context, account *domain.Account, memberInterest decimal.Decimal, month string) error
}

// CommissionDistributor runs the monthly settlement over all accounts.
type CommissionDistributor struct {
	store     DistributionStore
	ledger    *LedgerWriter
	overrides OverrideCalculator
	publisher EventPublisher
	settings  Settings
	logger    *slog.Logger
}

// NewCommissionDistributor creates a monthly distributor.
func NewCommissionDistributor(store DistributionStore, ledger *LedgerWriter, overrides OverrideCalculator, publisher EventPublisher, settings Settings, logger *slog.Logger) *CommissionDistributor {
	return &CommissionDistributor{
		store:     store,
		ledger:    ledger,
		overrides: overrides,
		publisher: publisher,
		settings:  settings,
		logger:    logger,
	}
}

// distributionPlan is the computed split for one account before any ledger
// writes happen. All shares are rounded to cents and sum to GrossAmount.
type distributionPlan struct {
	GrossRate   decimal.Decimal
	GrossAmount decimal.Decimal
	Member      decimal.Decimal
	Referrer1   decimal.Decimal
	Referrer2   decimal.Decimal
	Slush       decimal.Decimal
	House1      decimal.Decimal
	House2      decimal.Decimal
	House3      decimal.Decimal
	FloorTopUp  decimal.Decimal
}

var six = decimal.NewFromInt(6)

// splitSix divides a remainder into six equal cent-rounded shares for
// referrer-1, referrer-2, reserve and the three houses. Rounding residue
// lands in the reserve share so the six shares sum to the remainder
// exactly. A missing level-2 referrer redirects that share to house 3.
func (p *distributionPlan) splitSix(remainder decimal.Decimal, hasReferrer2 bool) {
	share := remainder.Div(six).RoundDown(2)
	p.Referrer1 = share
	p.House1 = share
	p.House2 = share
	if hasReferrer2 {
		p.Referrer2 = share
		p.House3 = share
	} else {
		p.Referrer2 = decimal.Zero
		p.House3 = share.Mul(decimal.NewFromInt(2))
	}
	paid := p.Referrer1.Add(p.Referrer2).Add(p.House1).Add(p.House2).Add(p.House3)
	p.Slush = remainder.Sub(paid)
}

// total returns the sum of every share in the plan.
func (p *distributionPlan) total() decimal.Decimal {
	return p.Member.Add(p.Referrer1).Add(p.Referrer2).Add(p.Slush).
		Add(p.House1).Add(p.House2).Add(p.House3)
}

// Run settles every active funded account for the given month and returns
// the per-run summary. A failed account is recorded in the result and the
// run continues; re-running the same month only settles accounts that were
// skipped, the (account, month) claim shields the rest.
func (d *CommissionDistributor) Run(ctx context.Context, month string) (*domain.DistributionRunResult, error) {
	accounts, err := d.store.ListActiveAccountsWithBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts for distribution: %w", err)
	}

	result := &domain.DistributionRunResult{
		Month:     month,
		TotalPaid: decimal.Zero,
	}

	for i := range accounts {
		account := &accounts[i]
		result.AccountsSeen++

		paid, err := d.distributeAccount(ctx, account, month)
		switch {
		case errors.Is(err, store.ErrDistributionExists):
			result.AlreadySettled++
		case err != nil:
			d.logger.Error("account distribution failed",
				"account_id", account.ID, "month", month, "error", err)
			result.Failed = append(result.Failed, domain.AccountFailure{
				AccountID: account.ID,
				Error:     err.Error(),
			})
		default:
			result.Distributed++
			result.TotalPaid = result.TotalPaid.Add(paid)
		}
	}

	d.logger.Info("monthly distribution run finished",
		"month", month,
		"accounts_seen", result.AccountsSeen,
		"distributed", result.Distributed,
		"already_settled", result.AlreadySettled,
		"failed", len(result.Failed),
		"total_paid", result.TotalPaid.StringFixed(2))

	if d.publisher != nil {
		event := domain.DistributionCompletedEvent{
			Month:       month,
			Distributed: result.Distributed,
			FailedCount: len(result.Failed),
			TotalPaid:   result.TotalPaid,
			CompletedAt: time.Now().UTC(),
		}
		if err := d.publisher.Publish(ctx, SettlementExchange, domain.EventDistributionCompleted, event); err != nil {
			d.logger.Error("failed to publish distribution completed event", "error", err)
		}
	}
	return result, nil
}

// distributeAccount settles one account for one month and returns the total
// amount distributed. Returns store.ErrDistributionExists when the month's
// claim is already held.
func (d *CommissionDistributor) distributeAccount(ctx context.Context, account *domain.Account, month string) (decimal.Decimal, error) {
	chain, err := d.store.GetReferralChain(ctx, account.MemberID)
	if err != nil && !errors.Is(err, store.ErrChainNotFound) {
		return decimal.Zero, fmt.Errorf("load referral chain: %w", err)
	}

	var referrer1, referrer2 *uuid.UUID
	if chain != nil {
		referrer1 = chain.LevelAt(1)
		referrer2 = chain.LevelAt(2)
	}

	plan, err := d.buildPlan(ctx, account, referrer2 != nil)
	if err != nil {
		return decimal.Zero, err
	}

	if err := d.store.CreateCommissionDistribution(ctx, &domain.CommissionDistribution{
		ID:             uuid.New(),
		AccountID:      account.ID,
		Month:          month,
		GrossRate:      plan.GrossRate,
		GrossAmount:    plan.GrossAmount,
		MemberShare:    plan.Member,
		Referrer1Share: plan.Referrer1,
		Referrer2Share: plan.Referrer2,
		SlushShare:     plan.Slush,
		House1Share:    plan.House1,
		House2Share:    plan.House2,
		House3Share:    plan.House3,
	}); err != nil {
		return decimal.Zero, err
	}

	d.applyPlan(ctx, account, plan, referrer1, referrer2, month)

	if d.overrides != nil && plan.Member.GreaterThan(decimal.Zero) {
		if err := d.overrides.ComputeOverride(ctx, account, plan.Member, month); err != nil {
			d.logger.Error("founder override failed",
				"account_id", account.ID, "month", month, "error", err)
		}
	}
	return plan.total(), nil
}

// buildPlan picks the policy branch for an account and computes its split.
func (d *CommissionDistributor) buildPlan(ctx context.Context, account *domain.Account, hasReferrer2 bool) (*distributionPlan, error) {
	now := time.Now().UTC()

	switch account.Kind {
	case domain.AccountFixedRate:
		plan := &distributionPlan{GrossRate: d.settings.FixedGrossRate}
		plan.Member = account.Balance.Mul(d.settings.tierRate(account.InitialBalance)).Round(2)
		gross := account.Balance.Mul(d.settings.FixedGrossRate).Round(2)
		remainder := gross.Sub(plan.Member)
		if remainder.LessThanOrEqual(decimal.Zero) {
			plan.GrossAmount = plan.Member
			return plan, nil
		}
		plan.splitSix(remainder, hasReferrer2)
		plan.GrossAmount = gross
		return plan, nil

	case domain.AccountVariableRate:
		if account.InLockup(now) {
			plan := &distributionPlan{GrossRate: d.settings.LockupMemberRate}
			plan.Member = account.Balance.Mul(d.settings.LockupMemberRate).Round(2)
			plan.GrossAmount = plan.Member
			return plan, nil
		}

		plan := &distributionPlan{GrossRate: d.settings.VariableGrossRate}
		total := account.Balance.Mul(d.settings.VariableGrossRate).Round(2)
		slice := total.Div(decimal.NewFromInt(12)).RoundDown(2)
		plan.Member = slice.Mul(six)
		plan.splitSix(total.Sub(plan.Member), hasReferrer2)
		plan.GrossAmount = total

		// Floor guarantee: the member never receives less than the floor
		// fraction of balance. The shortfall is topped up from the reserve,
		// capped by the reserve's actual balance, and folded into the gross
		// amount so the audit record still reconciles to the shares paid.
		floor := account.Balance.Mul(d.settings.FloorRate).Round(2)
		if plan.Member.LessThan(floor) {
			shortfall := floor.Sub(plan.Member)
			available, err := d.store.ReserveBalance(ctx)
			if err != nil {
				return nil, fmt.Errorf("check reserve balance for floor top-up: %w", err)
			}
			topUp := decimal.Min(shortfall, decimal.Max(available, decimal.Zero))
			if topUp.LessThan(shortfall) {
				d.logger.Warn("reserve cannot cover full floor top-up",
					"account_id", account.ID,
					"shortfall", shortfall.StringFixed(2),
					"reserve_balance", available.StringFixed(2))
			}
			plan.FloorTopUp = topUp
			plan.Member = plan.Member.Add(topUp)
			plan.GrossAmount = plan.GrossAmount.Add(topUp)
		}
		return plan, nil

	default:
		return nil, fmt.Errorf("%w: unknown account kind %q", ErrValidation, account.Kind)
	}
}

// applyPlan writes the plan's credits. Each write is independently atomic;
// failures are logged and do not stop the remaining credits.
func (d *CommissionDistributor) applyPlan(ctx context.Context, account *domain.Account, plan *distributionPlan, referrer1, referrer2 *uuid.UUID, month string) {
	meta := map[string]string{"reason": "monthly_distribution", "month": month}

	if plan.Member.GreaterThan(decimal.Zero) {
		if _, err := d.ledger.ApplyDelta(ctx, account.ID, plan.Member, domain.EntryInterest, meta); err != nil {
			d.logger.Error("member interest credit failed",
				"account_id", account.ID, "month", month, "error", err)
		}
	}

	d.creditReferrer(ctx, account.ID, referrer1, 1, plan.Referrer1, month)
	d.creditReferrer(ctx, account.ID, referrer2, 2, plan.Referrer2, month)

	d.creditHouse(ctx, account.ID, d.settings.HouseAccounts.House1, plan.House1, month)
	d.creditHouse(ctx, account.ID, d.settings.HouseAccounts.House2, plan.House2, month)
	d.creditHouse(ctx, account.ID, d.settings.HouseAccounts.House3, plan.House3, month)

	if plan.Slush.GreaterThan(decimal.Zero) {
		if err := d.store.CreateReserveEntry(ctx, &domain.ReserveEntry{
			ID:        uuid.New(),
			AccountID: account.ID,
			Amount:    plan.Slush,
			Kind:      domain.ReserveCommissionShare,
			Month:     month,
		}); err != nil {
			d.logger.Error("reserve share entry failed",
				"account_id", account.ID, "month", month, "error", err)
		}
	}

	if plan.FloorTopUp.GreaterThan(decimal.Zero) {
		if err := d.store.CreateReserveEntry(ctx, &domain.ReserveEntry{
			ID:        uuid.New(),
			AccountID: account.ID,
			Amount:    plan.FloorTopUp.Neg(),
			Kind:      domain.ReserveFloorTopUp,
			Month:     month,
		}); err != nil {
			d.logger.Error("reserve floor top-up entry failed",
				"account_id", account.ID, "month", month, "error", err)
		}
	}
}

func (d *CommissionDistributor) creditReferrer(ctx context.Context, sourceAccountID uuid.UUID, referrerID *uuid.UUID, level int, amount decimal.Decimal, month string) {
	if referrerID == nil || !amount.GreaterThan(decimal.Zero) {
		return
	}
	refAccount, err := d.store.FindPrimaryAccountByMemberID(ctx, *referrerID)
	if err != nil {
		d.logger.Warn("referrer commission skipped",
			"referrer_id", *referrerID, "level", level, "month", month, "error", err)
		return
	}
	if _, err := d.ledger.ApplyDelta(ctx, refAccount.ID, amount, domain.EntryCommission, map[string]string{
		"reason":         "referral_commission",
		"month":          month,
		"level":          fmt.Sprintf("%d", level),
		"source_account": sourceAccountID.String(),
	}); err != nil {
		d.logger.Error("referrer commission credit failed",
			"referrer_id", *referrerID, "level", level, "month", month, "error", err)
	}
}

func (d *CommissionDistributor) creditHouse(ctx context.Context, sourceAccountID, houseAccountID uuid.UUID, amount decimal.Decimal, month string) {
	if houseAccountID == uuid.Nil || !amount.GreaterThan(decimal.Zero) {
		return
	}
	if _, err := d.ledger.ApplyDelta(ctx, houseAccountID, amount, domain.EntryCommission, map[string]string{
		"reason":         "house_commission",
		"month":          month,
		"source_account": sourceAccountID.String(),
	}); err != nil {
		d.logger.Error("house commission credit failed",
			"house_account_id", houseAccountID, "month", month, "error", err)
	}
}
