/**
 * @description
 * Engine settings: the commission rates, fixed-rate tiers, signup fee bands
 * and house beneficiary mapping consumed by the distributors. Built once at
 * startup from configuration and injected — house accounts are an explicit
 * mapping here, never resolved from the environment at call sites.
 */

package app

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/config"
)

// FixedTier maps an initial-deposit threshold to the member rate paid on
// fixed-rate accounts. Tiers are ordered ascending; the last tier whose
// threshold is at or below the account's initial balance wins.
type FixedTier struct {
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

// FeeBand is one row of the signup fee schedule: deposits from MinDeposit
// up to the next band's MinDeposit pay Fee, split three ways.
type FeeBand struct {
	MinDeposit decimal.Decimal
	Fee        decimal.Decimal
	Referrer1  decimal.Decimal
	Referrer2  decimal.Decimal
	Slush      decimal.Decimal
}

// HouseAccounts holds the three fixed house beneficiary accounts.
type HouseAccounts struct {
	House1 uuid.UUID
	House2 uuid.UUID
	House3 uuid.UUID
}

// Settings is the full rate/schedule configuration of the engine.
type Settings struct {
	FixedGrossRate     decimal.Decimal
	FixedTiers         []FixedTier
	VariableGrossRate  decimal.Decimal
	LockupMemberRate   decimal.Decimal
	FloorRate          decimal.Decimal
	OverrideRates      map[int]decimal.Decimal // ancestry level -> rate
	MinimumDeposit     decimal.Decimal
	ExemptionThreshold decimal.Decimal
	FeeBands           []FeeBand
	HouseAccounts      HouseAccounts
}

// DefaultSettings returns the standing product schedule. Rates that vary
// month to month (the gross rates) are overridden from configuration.
func DefaultSettings() Settings {
	return Settings{
		FixedGrossRate: decimal.NewFromFloat(0.03),
		FixedTiers: []FixedTier{
			{Threshold: decimal.Zero, Rate: decimal.NewFromFloat(0.01)},
			{Threshold: decimal.NewFromInt(10000), Rate: decimal.NewFromFloat(0.0125)},
			{Threshold: decimal.NewFromInt(50000), Rate: decimal.NewFromFloat(0.015)},
		},
		VariableGrossRate: decimal.NewFromFloat(0.036),
		LockupMemberRate:  decimal.NewFromFloat(0.0025),
		FloorRate:         decimal.NewFromFloat(0.005),
		OverrideRates: map[int]decimal.Decimal{
			3: decimal.NewFromFloat(0.05),
			4: decimal.NewFromFloat(0.03),
			5: decimal.NewFromFloat(0.01),
		},
		MinimumDeposit:     decimal.NewFromInt(500),
		ExemptionThreshold: decimal.NewFromInt(10000),
		FeeBands: []FeeBand{
			{MinDeposit: decimal.NewFromInt(500), Fee: decimal.NewFromInt(75), Referrer1: decimal.NewFromInt(15), Referrer2: decimal.NewFromInt(15), Slush: decimal.NewFromInt(45)},
			{MinDeposit: decimal.NewFromInt(1500), Fee: decimal.NewFromInt(125), Referrer1: decimal.NewFromInt(25), Referrer2: decimal.NewFromInt(25), Slush: decimal.NewFromInt(75)},
			{MinDeposit: decimal.NewFromInt(3000), Fee: decimal.NewFromInt(200), Referrer1: decimal.NewFromInt(40), Referrer2: decimal.NewFromInt(40), Slush: decimal.NewFromInt(120)},
			{MinDeposit: decimal.NewFromInt(5000), Fee: decimal.NewFromInt(300), Referrer1: decimal.NewFromInt(60), Referrer2: decimal.NewFromInt(60), Slush: decimal.NewFromInt(180)},
		},
	}
}

// SettingsFromConfig builds validated settings from the loaded config.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	s := DefaultSettings()

	if cfg.FixedGrossRate > 0 {
		s.FixedGrossRate = decimal.NewFromFloat(cfg.FixedGrossRate)
	}
	if cfg.VariableGrossRate > 0 {
		s.VariableGrossRate = decimal.NewFromFloat(cfg.VariableGrossRate)
	}
	if cfg.LockupMemberRate > 0 {
		s.LockupMemberRate = decimal.NewFromFloat(cfg.LockupMemberRate)
	}
	if cfg.FloorRate > 0 {
		s.FloorRate = decimal.NewFromFloat(cfg.FloorRate)
	}
	if cfg.MinimumDeposit > 0 {
		s.MinimumDeposit = decimal.NewFromFloat(cfg.MinimumDeposit)
	}
	if cfg.ExemptionThreshold > 0 {
		s.ExemptionThreshold = decimal.NewFromFloat(cfg.ExemptionThreshold)
	}

	house1, err := uuid.Parse(cfg.HouseAccount1)
	if err != nil {
		return Settings{}, fmt.Errorf("parse HOUSE_ACCOUNT_1: %w", err)
	}
	house2, err := uuid.Parse(cfg.HouseAccount2)
	if err != nil {
		return Settings{}, fmt.Errorf("parse HOUSE_ACCOUNT_2: %w", err)
	}
	house3, err := uuid.Parse(cfg.HouseAccount3)
	if err != nil {
		return Settings{}, fmt.Errorf("parse HOUSE_ACCOUNT_3: %w", err)
	}
	s.HouseAccounts = HouseAccounts{House1: house1, House2: house2, House3: house3}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the schedule for internal consistency: rates inside
// (0, 1], tiers and bands ascending, and every band's three-way split
// summing to the band fee exactly.
func (s Settings) Validate() error {
	one := decimal.NewFromInt(1)
	rates := map[string]decimal.Decimal{
		"fixed gross rate":    s.FixedGrossRate,
		"variable gross rate": s.VariableGrossRate,
		"lockup member rate":  s.LockupMemberRate,
		"floor rate":          s.FloorRate,
	}
	for name, rate := range rates {
		if rate.LessThanOrEqual(decimal.Zero) || rate.GreaterThan(one) {
			return fmt.Errorf("%w: %s %s outside (0, 1]", ErrValidation, name, rate)
		}
	}

	for i := 1; i < len(s.FixedTiers); i++ {
		prev, cur := s.FixedTiers[i-1], s.FixedTiers[i]
		if !cur.Threshold.GreaterThan(prev.Threshold) || !cur.Rate.GreaterThan(prev.Rate) {
			return fmt.Errorf("%w: fixed tiers must ascend in threshold and rate", ErrValidation)
		}
	}

	for i, band := range s.FeeBands {
		split := band.Referrer1.Add(band.Referrer2).Add(band.Slush)
		if !split.Equal(band.Fee) {
			return fmt.Errorf("%w: fee band %d split %s does not sum to fee %s", ErrValidation, i, split, band.Fee)
		}
		if i > 0 && !band.MinDeposit.GreaterThan(s.FeeBands[i-1].MinDeposit) {
			return fmt.Errorf("%w: fee bands must ascend by minimum deposit", ErrValidation)
		}
	}
	if len(s.FeeBands) > 0 {
		if !s.FeeBands[0].MinDeposit.Equal(s.MinimumDeposit) {
			return fmt.Errorf("%w: first fee band must start at the minimum deposit", ErrValidation)
		}
		if !s.ExemptionThreshold.GreaterThan(s.FeeBands[len(s.FeeBands)-1].MinDeposit) {
			return fmt.Errorf("%w: exemption threshold must sit above the last fee band", ErrValidation)
		}
	}

	for level := range s.OverrideRates {
		if level < 3 || level > 5 {
			return fmt.Errorf("%w: override rate configured for ineligible level %d", ErrValidation, level)
		}
	}
	return nil
}

// tierRate returns the member rate for a fixed-rate account by its initial
// balance.
func (s Settings) tierRate(initialBalance decimal.Decimal) decimal.Decimal {
	rate := decimal.Zero
	for _, tier := range s.FixedTiers {
		if initialBalance.GreaterThanOrEqual(tier.Threshold) {
			rate = tier.Rate
		}
	}
	return rate
}

// feeBand returns the signup fee band covering a deposit, or nil when the
// deposit sits below the first band.
func (s Settings) feeBand(deposit decimal.Decimal) *FeeBand {
	var match *FeeBand
	for i := range s.FeeBands {
		if deposit.GreaterThanOrEqual(s.FeeBands[i].MinDeposit) {
			match = &s.FeeBands[i]
		}
	}
	return match
}
