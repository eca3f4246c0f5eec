/**
 * @description
 * The Withdrawal Release State Machine. Requests move
 * pending -> approved -> completed, or pending -> denied. Approval claims
 * the pending row first (a guarded status transition), then debits the
 * account once and schedules the release date; a failed debit reverts the
 * claim back to pending. The scheduled sweep only flips approved rows to
 * completed, because the money already left at approval.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

// WithdrawalStore is the persistence subset the state machine needs.
type WithdrawalStore interface {
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	MarkWithdrawalApproved(ctx context.Context, id uuid.UUID, scheduledReleaseAt time.Time) error
	RevertWithdrawalApproval(ctx context.Context, id uuid.UUID) error
	MarkWithdrawalDenied(ctx context.Context, id uuid.UUID) error
	MarkWithdrawalCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	ListDueWithdrawals(ctx context.Context, now time.Time) ([]domain.WithdrawalRequest, error)
}

// WithdrawalStateMachine drives withdrawal requests through their states.
type WithdrawalStateMachine struct {
	store      WithdrawalStore
	ledger     *LedgerWriter
	publisher  EventPublisher
	logger     *slog.Logger
	releaseDay int
	now        func() time.Time
}

// NewWithdrawalStateMachine creates a withdrawal state machine. releaseDay
// is the day of the month withdrawals are paid out; the sweep job gates on
// the same configured value.
func NewWithdrawalStateMachine(store WithdrawalStore, ledger *LedgerWriter, publisher EventPublisher, logger *slog.Logger, releaseDay int) *WithdrawalStateMachine {
	return &WithdrawalStateMachine{
		store:      store,
		ledger:     ledger,
		publisher:  publisher,
		logger:     logger,
		releaseDay: releaseDay,
		now:        time.Now,
	}
}

// Request opens a pending withdrawal. The amount must be positive and must
// leave the account at or above its minimum balance.
func (m *WithdrawalStateMachine) Request(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, method string) (*domain.WithdrawalRequest, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidAmount)
	}

	account, err := m.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	remaining := account.Balance.Sub(amount)
	if remaining.LessThan(account.MinimumBalance) {
		return nil, fmt.Errorf("%w: withdrawing %s would leave %s, below the minimum balance %s",
			ErrInsufficientBalance, amount.StringFixed(2), remaining.StringFixed(2), account.MinimumBalance.StringFixed(2))
	}

	req := &domain.WithdrawalRequest{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Method:      method,
		Status:      domain.WithdrawalPending,
		RequestedAt: m.now().UTC(),
	}
	if err := m.store.CreateWithdrawalRequest(ctx, req); err != nil {
		return nil, err
	}

	m.logger.Info("withdrawal requested",
		"request_id", req.ID, "account_id", accountID, "amount", amount.StringFixed(2))
	return req, nil
}

// Approve moves a pending request to approved, schedules its release date,
// and debits the account. The guarded status transition runs first so a
// retried approval cannot debit twice.
func (m *WithdrawalStateMachine) Approve(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	req, err := m.store.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	releaseAt := ScheduleRelease(req.RequestedAt, m.releaseDay)
	if err := m.store.MarkWithdrawalApproved(ctx, requestID, releaseAt); err != nil {
		return nil, err
	}

	if _, err := m.ledger.ApplyDelta(ctx, req.AccountID, req.Amount.Neg(), domain.EntryWithdrawal, map[string]string{
		"reason":     "withdrawal_approved",
		"request_id": requestID.String(),
	}); err != nil {
		// An approved row with no debit would be released as a free payout
		// by the sweep, so the transition is compensated back to pending.
		if revertErr := m.store.RevertWithdrawalApproval(ctx, requestID); revertErr != nil {
			m.logger.Error("failed to revert withdrawal approval after debit failure",
				"request_id", requestID, "error", revertErr)
		}
		return nil, fmt.Errorf("debit withdrawal amount: %w", err)
	}

	req.Status = domain.WithdrawalApproved
	req.ScheduledReleaseAt = &releaseAt

	m.logger.Info("withdrawal approved",
		"request_id", requestID,
		"account_id", req.AccountID,
		"amount", req.Amount.StringFixed(2),
		"scheduled_release_at", releaseAt.Format("2006-01-02"))

	if m.publisher != nil {
		event := domain.WithdrawalApprovedEvent{
			RequestID:          requestID,
			AccountID:          req.AccountID,
			Amount:             req.Amount,
			ScheduledReleaseAt: releaseAt,
		}
		if err := m.publisher.Publish(ctx, SettlementExchange, domain.EventWithdrawalApproved, event); err != nil {
			m.logger.Error("failed to publish withdrawal approved event", "error", err)
		}
	}
	return req, nil
}

// Deny moves a pending request to its terminal denied state. No balance
// change: nothing was debited yet.
func (m *WithdrawalStateMachine) Deny(ctx context.Context, requestID uuid.UUID) error {
	if err := m.store.MarkWithdrawalDenied(ctx, requestID); err != nil {
		return err
	}
	m.logger.Info("withdrawal denied", "request_id", requestID)
	return nil
}

// ReleaseDue flips every approved request whose release date has arrived to
// completed. Balances were debited at approval, so this is bookkeeping
// only. Returns the number of requests released.
func (m *WithdrawalStateMachine) ReleaseDue(ctx context.Context) (int, error) {
	now := m.now().UTC()
	due, err := m.store.ListDueWithdrawals(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due withdrawals: %w", err)
	}

	released := 0
	for _, req := range due {
		if err := m.store.MarkWithdrawalCompleted(ctx, req.ID, now); err != nil {
			m.logger.Error("failed to complete withdrawal",
				"request_id", req.ID, "error", err)
			continue
		}
		released++
		m.logger.Info("withdrawal released",
			"request_id", req.ID,
			"account_id", req.AccountID,
			"amount", req.Amount.StringFixed(2))
	}
	return released, nil
}

// ScheduleRelease computes the payout date for a request: the release day
// of the same month when requested on or before the 1st, otherwise the
// release day of the next month.
func ScheduleRelease(requestedAt time.Time, releaseDay int) time.Time {
	t := requestedAt.UTC()
	year, month := t.Year(), t.Month()
	if t.Day() > 1 {
		month++
	}
	return time.Date(year, month, releaseDay, 0, 0, 0, 0, time.UTC)
}
