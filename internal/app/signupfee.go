/**
 * @description
 * The Signup Fee Distributor: a one-time split of a member's first
 * qualifying deposit into house/referrer/reserve shares. The SignupFeeRecord
 * is claimed before any money moves, so a retried call can never credit
 * twice. Deposits at or above the exemption threshold are exempt entirely:
 * no fee, no credit, no record.
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

// SignupFeeStore is the persistence subset the fee distributor needs.
type SignupFeeStore interface {
	FindPrimaryAccountByMemberID(ctx context.Context, memberID uuid.UUID) (*domain.Account, error)
	GetSignupFeeRecord(ctx context.Context, memberID uuid.UUID) (*domain.SignupFeeRecord, error)
	CreateSignupFeeRecord(ctx context.Context, rec *domain.SignupFeeRecord) error
	GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error)
	CreateReserveEntry(ctx context.Context, e *domain.ReserveEntry) error
}

// SignupFeeDistributor applies the first-deposit fee schedule.
type SignupFeeDistributor struct {
	store    SignupFeeStore
	ledger   *LedgerWriter
	settings Settings
	logger   *slog.Logger
}

// NewSignupFeeDistributor creates a signup fee distributor.
func NewSignupFeeDistributor(store SignupFeeStore, ledger *LedgerWriter, settings Settings, logger *slog.Logger) *SignupFeeDistributor {
	return &SignupFeeDistributor{store: store, ledger: ledger, settings: settings, logger: logger}
}

// ProcessFirstDeposit settles the fee on a member's first funding. The
// declared deposit is the account's initial-balance snapshot written at
// funding time; the account balance itself is only credited here, net of
// the fee. Calling this twice is a no-op the second time, as is calling it
// for an exempt deposit at or above the threshold.
func (d *SignupFeeDistributor) ProcessFirstDeposit(ctx context.Context, memberID uuid.UUID) error {
	if _, err := d.store.GetSignupFeeRecord(ctx, memberID); err == nil {
		d.logger.Info("signup fee already processed", "member_id", memberID)
		return nil
	} else if !errors.Is(err, store.ErrSignupFeeNotFound) {
		return err
	}

	account, err := d.store.FindPrimaryAccountByMemberID(ctx, memberID)
	if err != nil {
		return err
	}

	deposit := account.InitialBalance
	if deposit.LessThan(d.settings.MinimumDeposit) {
		return fmt.Errorf("%w: deposit %s below minimum %s",
			ErrDepositBelowMinimum, deposit.StringFixed(2), d.settings.MinimumDeposit.StringFixed(2))
	}

	if deposit.GreaterThanOrEqual(d.settings.ExemptionThreshold) {
		d.logger.Info("signup fee exempt",
			"member_id", memberID, "deposit", deposit.StringFixed(2))
		return nil
	}

	band := d.settings.feeBand(deposit)
	if band == nil {
		return fmt.Errorf("%w: no fee band covers deposit %s", ErrValidation, deposit.StringFixed(2))
	}

	// The record is the re-entry claim: it goes in before the net credit so
	// a failed record write cannot leave a credited deposit behind to be
	// credited again on retry.
	if err := d.store.CreateSignupFeeRecord(ctx, &domain.SignupFeeRecord{
		MemberID:       memberID,
		InitialDeposit: deposit,
		FeeAmount:      band.Fee,
		Referrer1Share: band.Referrer1,
		Referrer2Share: band.Referrer2,
		SlushFundShare: band.Slush,
	}); err != nil {
		return err
	}

	net := deposit.Sub(band.Fee)
	if _, err := d.ledger.ApplyDelta(ctx, account.ID, net, domain.EntryDeposit, map[string]string{
		"reason": "first_deposit",
		"gross":  deposit.StringFixed(2),
		"fee":    band.Fee.StringFixed(2),
	}); err != nil {
		return fmt.Errorf("credit net deposit: %w", err)
	}

	chain, err := d.store.GetReferralChain(ctx, memberID)
	if err != nil && !errors.Is(err, store.ErrChainNotFound) {
		return err
	}
	if chain != nil {
		d.creditReferrer(ctx, memberID, chain.LevelAt(1), 1, band.Referrer1)
		// Referrer-2 is only paid when the level-2 slot is populated; the
		// signup split does not redirect an unclaimed share.
		d.creditReferrer(ctx, memberID, chain.LevelAt(2), 2, band.Referrer2)
	}

	if err := d.store.CreateReserveEntry(ctx, &domain.ReserveEntry{
		ID:        uuid.New(),
		AccountID: account.ID,
		Amount:    band.Slush,
		Kind:      domain.ReserveSignupFee,
	}); err != nil {
		return err
	}

	d.logger.Info("signup fee processed",
		"member_id", memberID,
		"deposit", deposit.StringFixed(2),
		"fee", band.Fee.StringFixed(2),
		"net_credited", net.StringFixed(2))
	return nil
}

// creditReferrer pays one referrer share. Failures are logged and absorbed:
// a referrer without an active account does not block the member's funding.
func (d *SignupFeeDistributor) creditReferrer(ctx context.Context, sourceMemberID uuid.UUID, referrerID *uuid.UUID, level int, amount decimal.Decimal) {
	if referrerID == nil {
		return
	}
	refAccount, err := d.store.FindPrimaryAccountByMemberID(ctx, *referrerID)
	if err != nil {
		d.logger.Warn("signup fee referrer share skipped",
			"referrer_id", *referrerID, "level", level, "error", err)
		return
	}
	if _, err := d.ledger.ApplyDelta(ctx, refAccount.ID, amount, domain.EntryCommission, map[string]string{
		"reason":        "signup_fee_referral",
		"source_member": sourceMemberID.String(),
		"level":         fmt.Sprintf("%d", level),
	}); err != nil {
		d.logger.Error("signup fee referrer credit failed",
			"referrer_id", *referrerID, "level", level, "error", err)
	}
}
