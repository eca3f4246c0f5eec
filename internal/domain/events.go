/**
 * @description
 * Event payloads published to the message broker after engine operations.
 * Consumed by the notification and reporting layers outside this service.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys on the settlement topic exchange.
const (
	EventDistributionCompleted = "settlement.distribution.completed"
	EventWithdrawalApproved    = "settlement.withdrawal.approved"
	EventIntegrityViolation    = "settlement.integrity.violation"
)

// DistributionCompletedEvent is published once per monthly run.
type DistributionCompletedEvent struct {
	Month        string          `json:"month"`
	Distributed  int             `json:"distributed"`
	FailedCount  int             `json:"failed_count"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// WithdrawalApprovedEvent is published when an admin approves a request.
type WithdrawalApprovedEvent struct {
	RequestID          uuid.UUID       `json:"request_id"`
	AccountID          uuid.UUID       `json:"account_id"`
	Amount             decimal.Decimal `json:"amount"`
	ScheduledReleaseAt time.Time       `json:"scheduled_release_at"`
}

// IntegrityViolationEvent is published when a sweep finds a mismatch or an
// orphaned ledger entry.
type IntegrityViolationEvent struct {
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	Kind      string     `json:"kind"`
	Detail    string     `json:"detail"`
	FoundAt   time.Time  `json:"found_at"`
}
