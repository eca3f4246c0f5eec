/**
 * @description
 * Monthly commission distribution audit models: the per-account split
 * snapshot, the founder override payout, and the per-run result surfaced to
 * callers under the engine's partial-failure semantics.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionDistribution is the append-only audit snapshot of one account's
// monthly split. Unique on (account, month); inserting a duplicate claims
// nothing and signals the account was already settled for that month.
type CommissionDistribution struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Month          string          `json:"month"`
	GrossRate      decimal.Decimal `json:"gross_rate"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	MemberShare    decimal.Decimal `json:"member_share"`
	Referrer1Share decimal.Decimal `json:"referrer1_share"`
	Referrer2Share decimal.Decimal `json:"referrer2_share"`
	SlushShare     decimal.Decimal `json:"slush_share"`
	House1Share    decimal.Decimal `json:"house1_share"`
	House2Share    decimal.Decimal `json:"house2_share"`
	House3Share    decimal.Decimal `json:"house3_share"`
	CreatedAt      time.Time       `json:"created_at"`
}

// FounderOverridePayout records an additive override commission paid to a
// qualifying founding-member ancestor. Unique on
// (founder, account, level, month), which makes re-runs idempotent.
type FounderOverridePayout struct {
	ID        uuid.UUID       `json:"id"`
	FounderID uuid.UUID       `json:"founder_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Level     int             `json:"level"`
	Month     string          `json:"month"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// AccountFailure captures one account skipped by a monthly run.
type AccountFailure struct {
	AccountID uuid.UUID `json:"account_id"`
	Error     string    `json:"error"`
}

// DistributionRunResult summarizes one monthly run. A failed account is
// simply absent from the month's distribution and must be re-run manually.
type DistributionRunResult struct {
	Month          string           `json:"month"`
	AccountsSeen   int              `json:"accounts_seen"`
	Distributed    int              `json:"distributed"`
	AlreadySettled int              `json:"already_settled"`
	Failed         []AccountFailure `json:"failed,omitempty"`
	TotalPaid      decimal.Decimal  `json:"total_paid"`
}
