/**
 * @description
 * Withdrawal request model and its state machine vocabulary:
 * pending -> approved -> completed, or pending -> denied (terminal).
 * The balance is debited at approval; release is bookkeeping only.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalDenied    WithdrawalStatus = "denied"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

// WithdrawalRequest maps to the `withdrawal_requests` table.
// Immutable once completed.
type WithdrawalRequest struct {
	ID                 uuid.UUID        `json:"id"`
	AccountID          uuid.UUID        `json:"account_id"`
	Amount             decimal.Decimal  `json:"amount"`
	Method             string           `json:"method"`
	Status             WithdrawalStatus `json:"status"`
	RequestedAt        time.Time        `json:"requested_at"`
	ScheduledReleaseAt *time.Time       `json:"scheduled_release_at,omitempty"`
	ProcessedAt        *time.Time       `json:"processed_at,omitempty"`
}
