/**
 * @description
 * The Integrity Validator: recomputes balances from completed ledger
 * history and compares against the stored totals. The sweep is strictly
 * read-only; Reconcile is the explicit, admin-invoked correction path.
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

// IntegrityStore is the persistence subset the validator needs.
type IntegrityStore interface {
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	SumCompletedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	ListOrphanedEntries(ctx context.Context) ([]domain.LedgerEntry, error)
	ReconcileBalance(ctx context.Context, accountID uuid.UUID, metadata map[string]string) (*domain.LedgerResult, error)
}

// ValidationResult is the outcome of a single-account check.
type ValidationResult struct {
	AccountID         uuid.UUID       `json:"account_id"`
	Valid             bool            `json:"valid"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	RecordedBalance   decimal.Decimal `json:"recorded_balance"`
}

// SweepIssue is one problem found by the system-wide sweep.
type SweepIssue struct {
	Kind      string     `json:"kind"` // balance_mismatch or orphaned_entry
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	EntryID   *uuid.UUID `json:"entry_id,omitempty"`
	Detail    string     `json:"detail"`
}

// SweepResult summarizes a system-wide integrity sweep.
type SweepResult struct {
	Healthy         bool         `json:"healthy"`
	Issues          []SweepIssue `json:"issues,omitempty"`
	AccountsChecked int          `json:"accounts_checked"`
}

// IntegrityValidator checks and, on explicit request, repairs ledger
// consistency.
type IntegrityValidator struct {
	store     IntegrityStore
	publisher EventPublisher
	logger    *slog.Logger
}

// NewIntegrityValidator creates a validator. The publisher may be a no-op
// fallback; sweep findings are published as integrity-violation events.
func NewIntegrityValidator(store IntegrityStore, publisher EventPublisher, logger *slog.Logger) *IntegrityValidator {
	return &IntegrityValidator{store: store, publisher: publisher, logger: logger}
}

// Validate recomputes one account's balance from completed history and
// compares it against the stored balance within the engine tolerance.
func (v *IntegrityValidator) Validate(ctx context.Context, accountID uuid.UUID) (*ValidationResult, error) {
	account, err := v.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	calculated, err := v.store.SumCompletedEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		AccountID:         accountID,
		Valid:             calculated.Sub(account.Balance).Abs().LessThanOrEqual(domain.BalanceTolerance),
		CalculatedBalance: calculated,
		RecordedBalance:   account.Balance,
	}, nil
}

// Sweep checks every account and flags ledger entries that reference no
// active account. It mutates nothing, ever; corrections go through
// Reconcile.
func (v *IntegrityValidator) Sweep(ctx context.Context) (*SweepResult, error) {
	accounts, err := v.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Healthy: true, AccountsChecked: len(accounts)}
	for i := range accounts {
		account := &accounts[i]
		calculated, err := v.store.SumCompletedEntries(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		drift := calculated.Sub(account.Balance)
		if drift.Abs().GreaterThan(domain.BalanceTolerance) {
			id := account.ID
			result.Issues = append(result.Issues, SweepIssue{
				Kind:      "balance_mismatch",
				AccountID: &id,
				Detail:    fmt.Sprintf("recorded %s, calculated %s", account.Balance.StringFixed(2), calculated.StringFixed(2)),
			})
		}
	}

	orphans, err := v.store.ListOrphanedEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orphans {
		entry := &orphans[i]
		entryID := entry.ID
		accountID := entry.AccountID
		result.Issues = append(result.Issues, SweepIssue{
			Kind:      "orphaned_entry",
			AccountID: &accountID,
			EntryID:   &entryID,
			Detail:    fmt.Sprintf("%s entry of %s references no active account", entry.Type, entry.Amount.StringFixed(2)),
		})
	}

	if len(result.Issues) > 0 {
		result.Healthy = false
		v.logger.Warn("integrity sweep found issues", "count", len(result.Issues), "accounts_checked", result.AccountsChecked)
		for _, issue := range result.Issues {
			if err := v.publisher.Publish(ctx, SettlementExchange, domain.EventIntegrityViolation, domain.IntegrityViolationEvent{
				AccountID: issue.AccountID,
				Kind:      issue.Kind,
				Detail:    issue.Detail,
				FoundAt:   time.Now().UTC(),
			}); err != nil {
				v.logger.Error("failed to publish integrity violation event", "error", err)
			}
		}
	}
	return result, nil
}

// Reconcile drives a drifted account balance back to the value its
// completed history supports, leaving a zero-amount ADMIN_ADJUSTMENT marker
// with the admin id and reason. Within tolerance it changes nothing.
func (v *IntegrityValidator) Reconcile(ctx context.Context, accountID uuid.UUID, adminID, reason string) (*domain.LedgerResult, error) {
	if reason == "" {
		reason = "integrity_reconciliation"
	}
	result, err := v.store.ReconcileBalance(ctx, accountID, map[string]string{
		"admin_id": adminID,
		"reason":   reason,
	})
	if err != nil {
		return nil, err
	}
	if result.NoOp {
		v.logger.Info("reconcile skipped, balance within tolerance", "account_id", accountID)
		return result, nil
	}
	v.logger.Info("account balance reconciled",
		"account_id", accountID,
		"old_balance", result.OldBalance.StringFixed(2),
		"new_balance", result.NewBalance.StringFixed(2),
		"admin_id", adminID)
	return result, nil
}
