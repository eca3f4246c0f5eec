/**
 * @description
 * The Founder Override Calculator: an additive commission paid to the first
 * founding-member ancestor in a downstream account's referral chain. Only
 * ancestors sitting at levels 3 through 5 qualify; levels 1 and 2 already
 * participate in the standard remainder split. The payout is funded
 * independently of the six-way split and never reduces it.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
	"github.com/meridianfunds/settlement-service/internal/store"
)

// OverrideStore is the persistence subset the override calculator needs.
type OverrideStore interface {
	GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error)
	FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	FindPrimaryAccountByMemberID(ctx context.Context, memberID uuid.UUID) (*domain.Account, error)
	UpsertFounderOverridePayout(ctx context.Context, p *domain.FounderOverridePayout) (bool, error)
}

// FounderOverrideCalculator pays founding-member overrides.
type FounderOverrideCalculator struct {
	store    OverrideStore
	ledger   *LedgerWriter
	settings Settings
	logger   *slog.Logger
}

// NewFounderOverrideCalculator creates an override calculator.
func NewFounderOverrideCalculator(store OverrideStore, ledger *LedgerWriter, settings Settings, logger *slog.Logger) *FounderOverrideCalculator {
	return &FounderOverrideCalculator{store: store, ledger: ledger, settings: settings, logger: logger}
}

// ComputeOverride walks the account owner's ancestry from level 1 outward
// and pays the first founding member found, provided they sit at level 3,
// 4 or 5. The (founder, account, level, month) upsert makes re-running a
// month a no-op.
func (c *FounderOverrideCalculator) ComputeOverride(ctx context.Context, account *domain.Account, memberInterest decimal.Decimal, month string) error {
	chain, err := c.store.GetReferralChain(ctx, account.MemberID)
	if errors.Is(err, store.ErrChainNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load referral chain: %w", err)
	}

	founderID, level, err := c.firstFounder(ctx, chain)
	if err != nil {
		return err
	}
	if founderID == nil || level < 3 {
		return nil
	}

	rate, ok := c.settings.OverrideRates[level]
	if !ok {
		return nil
	}
	amount := memberInterest.Mul(rate).Round(2)
	if !amount.GreaterThan(decimal.Zero) {
		return nil
	}

	created, err := c.store.UpsertFounderOverridePayout(ctx, &domain.FounderOverridePayout{
		ID:        uuid.New(),
		FounderID: *founderID,
		AccountID: account.ID,
		Level:     level,
		Month:     month,
		Rate:      rate,
		Amount:    amount,
	})
	if err != nil {
		return fmt.Errorf("record founder override: %w", err)
	}
	if !created {
		return nil
	}

	founderAccount, err := c.store.FindPrimaryAccountByMemberID(ctx, *founderID)
	if err != nil {
		return fmt.Errorf("resolve founder account: %w", err)
	}
	if _, err := c.ledger.ApplyDelta(ctx, founderAccount.ID, amount, domain.EntryCommission, map[string]string{
		"reason":         "founder_override",
		"month":          month,
		"level":          fmt.Sprintf("%d", level),
		"source_account": account.ID.String(),
	}); err != nil {
		return fmt.Errorf("credit founder override: %w", err)
	}

	c.logger.Info("founder override paid",
		"founder_id", *founderID,
		"account_id", account.ID,
		"level", level,
		"month", month,
		"amount", amount.StringFixed(2))
	return nil
}

// firstFounder returns the first founding-member ancestor in level order,
// and the level they occupy. A missing member record at some level is
// skipped, not fatal.
func (c *FounderOverrideCalculator) firstFounder(ctx context.Context, chain *domain.ReferralChain) (*uuid.UUID, int, error) {
	for level := 1; level <= domain.ChainDepth; level++ {
		ancestorID := chain.LevelAt(level)
		if ancestorID == nil {
			continue
		}
		member, err := c.store.FindMemberByID(ctx, *ancestorID)
		if errors.Is(err, store.ErrMemberNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("look up ancestor at level %d: %w", level, err)
		}
		if member.IsFoundingMember {
			return ancestorID, level, nil
		}
	}
	return nil, 0, nil
}
