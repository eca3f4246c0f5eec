/**
 * @description
 * The Ledger Writer: the single entry point for balance mutation. Every
 * other engine component posts deltas through here; nothing else in the
 * system touches an account balance.
 */

package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
	"github.com/meridianfunds/settlement-service/internal/store"
)

// LedgerStore is the persistence subset the writer needs.
type LedgerStore interface {
	ApplyLedgerDelta(ctx context.Context, m domain.LedgerMutation) (*domain.LedgerResult, error)
}

// LedgerWriter posts signed deltas to accounts as immutable completed
// entries. Deltas below the rounding-noise threshold succeed without
// touching anything.
type LedgerWriter struct {
	store  LedgerStore
	logger *slog.Logger
}

// NewLedgerWriter creates a ledger writer.
func NewLedgerWriter(store LedgerStore, logger *slog.Logger) *LedgerWriter {
	return &LedgerWriter{store: store, logger: logger}
}

// ApplyDelta appends one completed ledger entry and applies the delta to
// the account balance, atomically and integrity-gated. On an integrity
// violation the underlying write has been rolled back in full; the error is
// reported to the caller and never retried here.
func (w *LedgerWriter) ApplyDelta(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, entryType domain.EntryType, metadata map[string]string) (*domain.LedgerResult, error) {
	if amount.Abs().LessThan(domain.NoiseThreshold) {
		w.logger.Debug("ledger delta below noise threshold, skipping",
			"account_id", accountID, "amount", amount.String(), "type", string(entryType))
		return &domain.LedgerResult{NoOp: true}, nil
	}

	result, err := w.store.ApplyLedgerDelta(ctx, domain.LedgerMutation{
		AccountID: accountID,
		Amount:    amount,
		Type:      entryType,
		Metadata:  metadata,
	})
	if err != nil {
		if errors.Is(err, store.ErrIntegrityViolation) {
			w.logger.Error("ledger write rolled back on integrity violation",
				"account_id", accountID, "amount", amount.StringFixed(2), "type", string(entryType))
		}
		return nil, err
	}

	w.logger.Info("ledger delta applied",
		"account_id", accountID,
		"transaction_id", result.TransactionID,
		"type", string(entryType),
		"amount", amount.StringFixed(2),
		"new_balance", result.NewBalance.StringFixed(2))
	return result, nil
}
