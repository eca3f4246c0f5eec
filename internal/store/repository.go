/**
 * @description
 * Repository contract for the settlement engine's persistence layer, plus
 * the sentinel errors callers match on with errors.Is.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrMemberNotFound        = errors.New("member not found")
	ErrChainNotFound         = errors.New("referral chain not found")
	ErrSignupFeeNotFound     = errors.New("signup fee record not found")
	ErrReferralCodeTaken     = errors.New("referral code already taken")
	ErrDistributionExists    = errors.New("distribution already recorded for account and month")
	ErrWithdrawalNotFound    = errors.New("withdrawal request not found")
	ErrWithdrawalNotPending  = errors.New("withdrawal request is not pending")
	ErrWithdrawalNotApproved = errors.New("withdrawal request is not approved")

	// ErrIntegrityViolation is returned when the post-write balance check
	// fails; the offending write has already been rolled back in full.
	ErrIntegrityViolation = errors.New("ledger integrity violation")
)

// Repository is the full persistence surface of the engine. The engine
// components each declare the narrow subset they consume; this interface
// documents the union implemented by PostgresRepository.
type Repository interface {
	// Accounts
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindPrimaryAccountByMemberID(ctx context.Context, memberID uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	ListActiveAccountsWithBalance(ctx context.Context) ([]domain.Account, error)

	// Ledger
	ApplyLedgerDelta(ctx context.Context, m domain.LedgerMutation) (*domain.LedgerResult, error)
	SumCompletedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	ListOrphanedEntries(ctx context.Context) ([]domain.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, accountID uuid.UUID, metadata map[string]string) (*domain.LedgerResult, error)

	// Members and referral chains
	FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error)
	FindMemberByReferralCode(ctx context.Context, code string) (*domain.Member, error)
	SetMemberReferralCode(ctx context.Context, memberID uuid.UUID, code string) error
	GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error)
	UpsertReferralChain(ctx context.Context, chain *domain.ReferralChain) error

	// Signup fees
	GetSignupFeeRecord(ctx context.Context, memberID uuid.UUID) (*domain.SignupFeeRecord, error)
	CreateSignupFeeRecord(ctx context.Context, rec *domain.SignupFeeRecord) error

	// Commission distribution
	CreateCommissionDistribution(ctx context.Context, rec *domain.CommissionDistribution) error
	UpsertFounderOverridePayout(ctx context.Context, p *domain.FounderOverridePayout) (bool, error)

	// Reserve fund
	CreateReserveEntry(ctx context.Context, e *domain.ReserveEntry) error
	ReserveBalance(ctx context.Context) (decimal.Decimal, error)

	// Withdrawals
	CreateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	MarkWithdrawalApproved(ctx context.Context, id uuid.UUID, scheduledReleaseAt time.Time) error
	RevertWithdrawalApproval(ctx context.Context, id uuid.UUID) error
	MarkWithdrawalDenied(ctx context.Context, id uuid.UUID) error
	MarkWithdrawalCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	ListDueWithdrawals(ctx context.Context, now time.Time) ([]domain.WithdrawalRequest, error)
}
