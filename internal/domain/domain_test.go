package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMonthOf(t *testing.T) {
	at := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := MonthOf(at); got != "2026-09" {
		t.Fatalf("expected 2026-09, got %q", got)
	}
	at = time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	if got := MonthOf(at); got != "2026-12" {
		t.Fatalf("expected 2026-12, got %q", got)
	}
}

func TestAccountInLockup(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	a := Account{}
	if a.InLockup(now) {
		t.Fatal("no lockup end date means no lockup")
	}

	future := now.Add(24 * time.Hour)
	a.LockupEndDate = &future
	if !a.InLockup(now) {
		t.Fatal("expected account inside lockup window")
	}

	past := now.Add(-24 * time.Hour)
	a.LockupEndDate = &past
	if a.InLockup(now) {
		t.Fatal("expected account past lockup")
	}
}

func TestReferralChainLevelAt(t *testing.T) {
	direct := uuid.New()
	chain := ReferralChain{MemberID: uuid.New()}
	chain.Levels[0] = &direct

	if got := chain.LevelAt(1); got == nil || *got != direct {
		t.Fatalf("expected direct referrer at level 1, got %v", got)
	}
	if chain.LevelAt(2) != nil {
		t.Fatal("expected empty level 2")
	}
	for _, level := range []int{0, -1, ChainDepth + 1} {
		if chain.LevelAt(level) != nil {
			t.Fatalf("level %d must be nil", level)
		}
	}
}
