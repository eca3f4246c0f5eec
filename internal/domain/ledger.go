/**
 * @description
 * Ledger entry and reserve-fund models. A ledger entry is an immutable fact
 * about a balance change: once it reaches status completed its amount and
 * account are never edited, corrections are posted as compensating entries.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceTolerance is the absolute mismatch tolerated between a stored
// balance and the sum of its completed entries. NoiseThreshold is the
// magnitude below which a requested delta is treated as rounding noise and
// not posted at all. Both sit at the engine's two-decimal precision floor.
var (
	BalanceTolerance = decimal.NewFromFloat(0.01)
	NoiseThreshold   = decimal.NewFromFloat(0.01)
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryDeposit         EntryType = "DEPOSIT"
	EntryWithdrawal      EntryType = "WITHDRAWAL"
	EntryInterest        EntryType = "INTEREST"
	EntryCommission      EntryType = "COMMISSION"
	EntryAdminAdjustment EntryType = "ADMIN_ADJUSTMENT"
)

// EntryStatus is the lifecycle state of a ledger entry. Only completed
// entries count toward an account's balance.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryDenied    EntryStatus = "denied"
)

// LedgerEntry maps to the `ledger_entries` table. Amounts are signed:
// withdrawals and negative adjustments carry negative amounts.
type LedgerEntry struct {
	ID        uuid.UUID         `json:"id"`
	AccountID uuid.UUID         `json:"account_id"`
	Type      EntryType         `json:"type"`
	Amount    decimal.Decimal   `json:"amount"`
	Status    EntryStatus       `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// LedgerMutation describes one balance delta to be applied atomically.
type LedgerMutation struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Type      EntryType
	Metadata  map[string]string
}

// LedgerResult reports the outcome of a posted delta.
type LedgerResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	OldBalance    decimal.Decimal `json:"old_balance"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	NoOp          bool            `json:"no_op,omitempty"` // amount below rounding-noise threshold
}

// ReserveEntryKind tags why a reserve-fund row exists.
type ReserveEntryKind string

const (
	ReserveSignupFee       ReserveEntryKind = "signup_fee"
	ReserveCommissionShare ReserveEntryKind = "commission_share"
	ReserveFloorTopUp      ReserveEntryKind = "floor_topup"
)

// ReserveEntry is a ledger-adjacent row in the pooled reserve (slush) fund.
// Amounts are signed: inflows positive, floor top-up payouts negative.
// The source account is kept for traceability only.
type ReserveEntry struct {
	ID        uuid.UUID        `json:"id"`
	AccountID uuid.UUID        `json:"account_id"`
	Amount    decimal.Decimal  `json:"amount"`
	Kind      ReserveEntryKind `json:"kind"`
	Month     string           `json:"month,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MonthOf formats a time as the calendar-month key used by distribution
// and override records, e.g. "2026-09".
func MonthOf(t time.Time) string {
	return t.Format("2006-01")
}
