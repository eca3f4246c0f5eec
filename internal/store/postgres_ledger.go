/**
 * @description
 * Ledger persistence: the atomic delta application, balance recomputation,
 * orphan detection, and the explicit reconciliation path.
 *
 * ApplyLedgerDelta is the only operation in the system that requires
 * atomicity. The read, the entry insert, the balance update and the
 * post-write integrity check all run inside one database transaction with
 * the account row locked, so concurrent writers to the same account cannot
 * interleave a read with another writer's update.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

// ApplyLedgerDelta appends one completed ledger entry and applies the delta
// to the account balance. If the recomputed balance disagrees with the
// stored one beyond tolerance, the whole write is rolled back — no entry
// row persists and the balance is untouched — and ErrIntegrityViolation is
// returned.
func (r *PostgresRepository) ApplyLedgerDelta(ctx context.Context, m domain.LedgerMutation) (*domain.LedgerResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var oldBalance decimal.Decimal
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", m.AccountID).Scan(&oldBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	newBalance := oldBalance.Add(m.Amount)

	meta := make(map[string]string, len(m.Metadata)+2)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta["old_balance"] = oldBalance.StringFixed(2)
	meta["new_balance"] = newBalance.StringFixed(2)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal entry metadata: %w", err)
	}

	// The entry is inserted before the balance mutation so that a rejected
	// balance update can never leave a counted entry behind.
	entryID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount, status, metadata)
		VALUES ($1, $2, $3, $4, 'completed', $5)
	`, entryID, m.AccountID, string(m.Type), m.Amount, metaJSON)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2", m.Amount, m.AccountID)
	if err != nil {
		return nil, err
	}

	var calculated decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND status = 'completed'
	`, m.AccountID).Scan(&calculated)
	if err != nil {
		return nil, err
	}

	if calculated.Sub(newBalance).Abs().GreaterThan(domain.BalanceTolerance) {
		return nil, ErrIntegrityViolation
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.LedgerResult{
		TransactionID: entryID,
		OldBalance:    oldBalance,
		NewBalance:    newBalance,
	}, nil
}

// SumCompletedEntries recomputes an account's balance from its completed
// ledger history. Withdrawal and negative-adjustment amounts are stored
// negative, so a plain sum is the whole calculation.
func (r *PostgresRepository) SumCompletedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND status = 'completed'
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// ListOrphanedEntries returns ledger entries whose account references no
// active account. Used by the integrity sweep; read-only.
func (r *PostgresRepository) ListOrphanedEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT le.id, le.account_id, le.type, le.amount, le.status, le.metadata, le.created_at
		FROM ledger_entries le
		LEFT JOIN accounts a ON a.id = le.account_id AND a.is_active = true
		WHERE a.id IS NULL
		ORDER BY le.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ReconcileBalance drives a drifted stored balance back to the value the
// completed history supports. The correction updates the balance and leaves
// a zero-amount ADMIN_ADJUSTMENT marker carrying the old and corrected
// values; a non-zero compensating entry would move the history sum along
// with the balance and leave the mismatch in place.
func (r *PostgresRepository) ReconcileBalance(ctx context.Context, accountID uuid.UUID, metadata map[string]string) (*domain.LedgerResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var recorded decimal.Decimal
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&recorded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	var calculated decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND status = 'completed'
	`, accountID).Scan(&calculated)
	if err != nil {
		return nil, err
	}

	if calculated.Sub(recorded).Abs().LessThanOrEqual(domain.BalanceTolerance) {
		return &domain.LedgerResult{OldBalance: recorded, NewBalance: recorded, NoOp: true}, nil
	}

	meta := make(map[string]string, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["old_balance"] = recorded.StringFixed(2)
	meta["new_balance"] = calculated.StringFixed(2)
	meta["drift"] = recorded.Sub(calculated).StringFixed(2)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal reconciliation metadata: %w", err)
	}

	entryID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount, status, metadata)
		VALUES ($1, $2, $3, 0, 'completed', $4)
	`, entryID, accountID, string(domain.EntryAdminAdjustment), metaJSON)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2", calculated, accountID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.LedgerResult{
		TransactionID: entryID,
		OldBalance:    recorded,
		NewBalance:    calculated,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e        domain.LedgerEntry
		typ      string
		status   string
		metaJSON []byte
		created  time.Time
	)
	if err := row.Scan(&e.ID, &e.AccountID, &typ, &e.Amount, &status, &metaJSON, &created); err != nil {
		return nil, err
	}
	e.Type = domain.EntryType(typ)
	e.Status = domain.EntryStatus(status)
	e.CreatedAt = created
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
		}
	}
	return &e, nil
}
