package app

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

type overrideFixture struct {
	mem            *memStore
	calc           *FounderOverrideCalculator
	account        *domain.Account
	founderID      uuid.UUID
	founderAccount *domain.Account
}

// newOverrideFixture builds a member whose ancestry places a founding
// member at the given level; the other slots hold plain members.
func newOverrideFixture(t *testing.T, founderLevel int) *overrideFixture {
	t.Helper()
	mem := newMemStore()

	memberID := uuid.New()
	mem.addMember(domain.Member{ID: memberID, Email: "member@example.com"})
	account := mem.addAccount(verifiedAccount(memberID, domain.AccountVariableRate, "50000.00", "50000.00"))

	founderID := uuid.New()
	mem.addMember(domain.Member{ID: founderID, Email: "founder@example.com", IsFoundingMember: true})
	founderAccount := mem.addAccount(verifiedAccount(founderID, domain.AccountFixedRate, "0.00", "1000.00"))

	chain := &domain.ReferralChain{MemberID: memberID}
	for level := 1; level <= domain.ChainDepth; level++ {
		if level == founderLevel {
			id := founderID
			chain.Levels[level-1] = &id
			continue
		}
		plainID := uuid.New()
		mem.addMember(domain.Member{ID: plainID, Email: "plain@example.com"})
		id := plainID
		chain.Levels[level-1] = &id
	}
	if err := mem.UpsertReferralChain(context.Background(), chain); err != nil {
		t.Fatal(err)
	}

	ledger := NewLedgerWriter(mem, testLogger())
	return &overrideFixture{
		mem:            mem,
		calc:           NewFounderOverrideCalculator(mem, ledger, DefaultSettings(), testLogger()),
		account:        account,
		founderID:      founderID,
		founderAccount: founderAccount,
	}
}

func TestComputeOverride_PaysFounderAtLevel4(t *testing.T) {
	f := newOverrideFixture(t, 4)
	ctx := context.Background()

	if err := f.calc.ComputeOverride(ctx, f.account, dec("1000.00"), "2026-08"); err != nil {
		t.Fatalf("ComputeOverride returned error: %v", err)
	}

	// Level 4 pays 3% of the member's interest.
	if !f.founderAccount.Balance.Equal(dec("30.00")) {
		t.Fatalf("expected override 30.00, got %s", f.founderAccount.Balance)
	}
	if len(f.mem.overrides) != 1 {
		t.Fatalf("expected one payout record, got %d", len(f.mem.overrides))
	}
	for _, p := range f.mem.overrides {
		if p.FounderID != f.founderID || p.Level != 4 || p.Month != "2026-08" {
			t.Fatalf("unexpected payout record: %+v", p)
		}
		if !p.Amount.Equal(dec("30.00")) {
			t.Fatalf("expected recorded amount 30.00, got %s", p.Amount)
		}
	}
}

func TestComputeOverride_IdempotentPerMonth(t *testing.T) {
	f := newOverrideFixture(t, 4)
	ctx := context.Background()

	if err := f.calc.ComputeOverride(ctx, f.account, dec("1000.00"), "2026-08"); err != nil {
		t.Fatal(err)
	}
	if err := f.calc.ComputeOverride(ctx, f.account, dec("1000.00"), "2026-08"); err != nil {
		t.Fatalf("re-run returned error: %v", err)
	}

	if !f.founderAccount.Balance.Equal(dec("30.00")) {
		t.Fatalf("re-run must not double-pay, got %s", f.founderAccount.Balance)
	}
	if len(f.mem.overrides) != 1 {
		t.Fatalf("expected one payout record after re-run, got %d", len(f.mem.overrides))
	}

	// A different month pays again.
	if err := f.calc.ComputeOverride(ctx, f.account, dec("1000.00"), "2026-09"); err != nil {
		t.Fatal(err)
	}
	if !f.founderAccount.Balance.Equal(dec("60.00")) {
		t.Fatalf("expected a second month's payout, got %s", f.founderAccount.Balance)
	}
}

func TestComputeOverride_RateDecreasesWithLevel(t *testing.T) {
	cases := []struct {
		level int
		want  string
	}{
		{3, "50.00"},
		{4, "30.00"},
		{5, "10.00"},
	}
	for _, tc := range cases {
		f := newOverrideFixture(t, tc.level)
		if err := f.calc.ComputeOverride(context.Background(), f.account, dec("1000.00"), "2026-08"); err != nil {
			t.Fatalf("level %d: %v", tc.level, err)
		}
		if !f.founderAccount.Balance.Equal(dec(tc.want)) {
			t.Fatalf("level %d: expected %s, got %s", tc.level, tc.want, f.founderAccount.Balance)
		}
	}
}

func TestComputeOverride_ShallowFounderIneligible(t *testing.T) {
	// Levels 1 and 2 already share in the standard split; the first
	// founder found there blocks deeper payouts rather than passing
	// eligibility down the chain.
	for _, level := range []int{1, 2} {
		f := newOverrideFixture(t, level)
		if err := f.calc.ComputeOverride(context.Background(), f.account, dec("1000.00"), "2026-08"); err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if !f.founderAccount.Balance.IsZero() {
			t.Fatalf("level %d founder must not be paid, got %s", level, f.founderAccount.Balance)
		}
		if len(f.mem.overrides) != 0 {
			t.Fatalf("level %d: expected no payout record", level)
		}
	}
}

func TestComputeOverride_NoChainIsNoOp(t *testing.T) {
	mem := newMemStore()
	memberID := uuid.New()
	mem.addMember(domain.Member{ID: memberID, Email: "member@example.com"})
	account := mem.addAccount(verifiedAccount(memberID, domain.AccountVariableRate, "50000.00", "50000.00"))

	ledger := NewLedgerWriter(mem, testLogger())
	calc := NewFounderOverrideCalculator(mem, ledger, DefaultSettings(), testLogger())

	if err := calc.ComputeOverride(context.Background(), account, dec("1000.00"), "2026-08"); err != nil {
		t.Fatalf("expected no-op without a chain, got %v", err)
	}
	if len(mem.overrides) != 0 || len(mem.entries) != 0 {
		t.Fatal("no chain must mean no payout")
	}
}
