/**
 * @description
 * Referral ancestry and signup-fee models.
 *
 * The ancestry is a materialized snapshot: a fixed five-slot array of
 * ancestor member ids computed once at signup from the direct referrer's own
 * row. Lookups at distribution time are O(1); the trade-off is that the
 * snapshot goes stale if an admin later reassigns a referrer upstream.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChainDepth is the maximum number of ancestors tracked per member.
const ChainDepth = 5

// ReferralChain is one member's ancestry row. Levels[0] is the direct
// referrer (level 1), Levels[4] the most distant tracked ancestor (level 5).
// A nil slot means no ancestor at that level.
type ReferralChain struct {
	MemberID  uuid.UUID              `json:"member_id"`
	Levels    [ChainDepth]*uuid.UUID `json:"levels"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// LevelAt returns the ancestor at a 1-based level, or nil.
func (c *ReferralChain) LevelAt(level int) *uuid.UUID {
	if level < 1 || level > ChainDepth {
		return nil
	}
	return c.Levels[level-1]
}

// SignupFeeRecord is the one-per-member audit row for the first-deposit fee
// split. Its existence gates re-processing.
type SignupFeeRecord struct {
	MemberID       uuid.UUID       `json:"member_id"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	FeeAmount      decimal.Decimal `json:"fee_amount"`
	Referrer1Share decimal.Decimal `json:"referrer1_share"`
	Referrer2Share decimal.Decimal `json:"referrer2_share"`
	SlushFundShare decimal.Decimal `json:"slush_fund_share"`
	CreatedAt      time.Time       `json:"created_at"`
}
