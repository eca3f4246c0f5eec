/**
 * @description
 * Core domain models for member accounts and the member directory view
 * consumed by the settlement engine.
 *
 * @notes
 * - Monetary amounts use shopspring/decimal with an effective precision of
 *   two decimal places. The stored balance is the authoritative running
 *   total and must always equal the sum of the account's completed ledger
 *   entries.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountKind selects which distribution policy applies to an account.
type AccountKind string

const (
	AccountFixedRate    AccountKind = "fixed_rate"
	AccountVariableRate AccountKind = "variable_rate"
)

// Account represents one investment position held by a member.
// Maps directly to the `accounts` table.
type Account struct {
	ID             uuid.UUID       `json:"id"`
	MemberID       uuid.UUID       `json:"member_id"`
	Kind           AccountKind     `json:"kind"`
	Balance        decimal.Decimal `json:"balance"`
	InitialBalance decimal.Decimal `json:"initial_balance"` // snapshot at funding, used for tiering
	ReservedAmount decimal.Decimal `json:"reserved_amount"`
	MinimumBalance decimal.Decimal `json:"minimum_balance"`
	StartDate      time.Time       `json:"start_date"`
	LockupEndDate  *time.Time      `json:"lockup_end_date,omitempty"`
	VerifiedAt     *time.Time      `json:"verified_at,omitempty"` // nil means pending admin verification
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// InLockup reports whether the account is still inside its lockup window.
func (a *Account) InLockup(now time.Time) bool {
	return a.LockupEndDate != nil && now.Before(*a.LockupEndDate)
}

// Member is the simplified member-directory view the engine needs:
// referral identity and founding-member status.
type Member struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	ReferralCode     *string   `json:"referral_code,omitempty"`
	IsFoundingMember bool      `json:"is_founding_member"`
	CreatedAt        time.Time `json:"created_at"`
}
