package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

func signupFixture(t *testing.T) (*memStore, *SignupFeeDistributor, *domain.Account, *domain.Account, *domain.Account) {
	t.Helper()
	mem := newMemStore()

	memberID := uuid.New()
	ref1ID := uuid.New()
	ref2ID := uuid.New()
	mem.addMember(domain.Member{ID: memberID, Email: "new@example.com"})
	mem.addMember(domain.Member{ID: ref1ID, Email: "ref1@example.com"})
	mem.addMember(domain.Member{ID: ref2ID, Email: "ref2@example.com"})

	account := mem.addAccount(verifiedAccount(memberID, domain.AccountFixedRate, "0.00", "2500.00"))
	ref1Account := mem.addAccount(verifiedAccount(ref1ID, domain.AccountFixedRate, "0.00", "1000.00"))
	ref2Account := mem.addAccount(verifiedAccount(ref2ID, domain.AccountFixedRate, "0.00", "1000.00"))

	chain := &domain.ReferralChain{MemberID: memberID}
	chain.Levels[0] = &ref1ID
	chain.Levels[1] = &ref2ID
	if err := mem.UpsertReferralChain(context.Background(), chain); err != nil {
		t.Fatal(err)
	}

	ledger := NewLedgerWriter(mem, testLogger())
	distributor := NewSignupFeeDistributor(mem, ledger, DefaultSettings(), testLogger())
	return mem, distributor, account, ref1Account, ref2Account
}

func TestProcessFirstDeposit_SplitsBandFee(t *testing.T) {
	mem, distributor, account, ref1Account, ref2Account := signupFixture(t)

	// 2,500 lands in the 1,500 band: fee 125 split 25 / 25 / 75.
	if err := distributor.ProcessFirstDeposit(context.Background(), account.MemberID); err != nil {
		t.Fatalf("ProcessFirstDeposit returned error: %v", err)
	}

	if !account.Balance.Equal(dec("2375.00")) {
		t.Fatalf("expected net 2375.00 credited, got %s", account.Balance)
	}
	if !ref1Account.Balance.Equal(dec("25.00")) {
		t.Fatalf("expected referrer-1 share 25.00, got %s", ref1Account.Balance)
	}
	if !ref2Account.Balance.Equal(dec("25.00")) {
		t.Fatalf("expected referrer-2 share 25.00, got %s", ref2Account.Balance)
	}

	rec, err := mem.GetSignupFeeRecord(context.Background(), account.MemberID)
	if err != nil {
		t.Fatalf("fee record missing: %v", err)
	}
	if !rec.FeeAmount.Equal(dec("125.00")) || !rec.SlushFundShare.Equal(dec("75.00")) {
		t.Fatalf("unexpected record: fee %s slush %s", rec.FeeAmount, rec.SlushFundShare)
	}

	if len(mem.reserve) != 1 {
		t.Fatalf("expected one reserve entry, got %d", len(mem.reserve))
	}
	if mem.reserve[0].Kind != domain.ReserveSignupFee || !mem.reserve[0].Amount.Equal(dec("75.00")) {
		t.Fatalf("unexpected reserve entry: %s %s", mem.reserve[0].Kind, mem.reserve[0].Amount)
	}
}

func TestProcessFirstDeposit_Idempotent(t *testing.T) {
	mem, distributor, account, _, _ := signupFixture(t)
	ctx := context.Background()

	if err := distributor.ProcessFirstDeposit(ctx, account.MemberID); err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	entriesAfterFirst := len(mem.entries)

	if err := distributor.ProcessFirstDeposit(ctx, account.MemberID); err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if len(mem.entries) != entriesAfterFirst {
		t.Fatalf("second run posted entries: %d -> %d", entriesAfterFirst, len(mem.entries))
	}
	if !account.Balance.Equal(dec("2375.00")) {
		t.Fatalf("second run moved the balance: %s", account.Balance)
	}
}

func TestProcessFirstDeposit_BelowMinimumRejected(t *testing.T) {
	mem := newMemStore()
	memberID := uuid.New()
	mem.addMember(domain.Member{ID: memberID, Email: "small@example.com"})
	mem.addAccount(verifiedAccount(memberID, domain.AccountFixedRate, "0.00", "400.00"))

	ledger := NewLedgerWriter(mem, testLogger())
	distributor := NewSignupFeeDistributor(mem, ledger, DefaultSettings(), testLogger())

	err := distributor.ProcessFirstDeposit(context.Background(), memberID)
	if !errors.Is(err, ErrDepositBelowMinimum) {
		t.Fatalf("expected ErrDepositBelowMinimum, got %v", err)
	}
	if len(mem.entries) != 0 {
		t.Fatal("rejected deposit must not post entries")
	}
}

func TestProcessFirstDeposit_ExemptAboveThreshold(t *testing.T) {
	mem := newMemStore()
	memberID := uuid.New()
	mem.addMember(domain.Member{ID: memberID, Email: "whale@example.com"})
	account := mem.addAccount(verifiedAccount(memberID, domain.AccountFixedRate, "0.00", "10000.00"))

	ledger := NewLedgerWriter(mem, testLogger())
	distributor := NewSignupFeeDistributor(mem, ledger, DefaultSettings(), testLogger())
	ctx := context.Background()

	// Exempt deposits are a no-op however often the call repeats: no fee is
	// taken, no credit is posted, no record or reserve entry is written.
	for i := 0; i < 2; i++ {
		if err := distributor.ProcessFirstDeposit(ctx, memberID); err != nil {
			t.Fatalf("ProcessFirstDeposit returned error: %v", err)
		}
	}
	if !account.Balance.IsZero() {
		t.Fatalf("exempt deposits must not move the balance, got %s", account.Balance)
	}
	if len(mem.entries) != 0 {
		t.Fatalf("exempt deposits must not post entries, got %d", len(mem.entries))
	}
	if _, err := mem.GetSignupFeeRecord(ctx, memberID); err == nil {
		t.Fatal("exempt deposits must not create a fee record")
	}
	if len(mem.reserve) != 0 {
		t.Fatal("exempt deposits must not feed the reserve")
	}
}

func TestProcessFirstDeposit_RecordClaimedBeforeCredit(t *testing.T) {
	mem, distributor, account, _, _ := signupFixture(t)
	ctx := context.Background()

	mem.applyErrFor[account.ID] = errors.New("connection reset")
	if err := distributor.ProcessFirstDeposit(ctx, account.MemberID); err == nil {
		t.Fatal("expected the failed net credit to surface")
	}
	if _, err := mem.GetSignupFeeRecord(ctx, account.MemberID); err != nil {
		t.Fatalf("expected the record claimed before the credit: %v", err)
	}

	// The claim blocks the retry, so a transient credit failure can never
	// turn into a double credit.
	delete(mem.applyErrFor, account.ID)
	if err := distributor.ProcessFirstDeposit(ctx, account.MemberID); err != nil {
		t.Fatalf("retry returned error: %v", err)
	}
	if !account.Balance.IsZero() {
		t.Fatalf("retry after a claimed record must not credit, got %s", account.Balance)
	}
}

func TestProcessFirstDeposit_NoReferrer2(t *testing.T) {
	mem := newMemStore()
	memberID := uuid.New()
	ref1ID := uuid.New()
	mem.addMember(domain.Member{ID: memberID, Email: "new@example.com"})
	mem.addMember(domain.Member{ID: ref1ID, Email: "ref1@example.com"})
	account := mem.addAccount(verifiedAccount(memberID, domain.AccountFixedRate, "0.00", "2500.00"))
	ref1Account := mem.addAccount(verifiedAccount(ref1ID, domain.AccountFixedRate, "0.00", "1000.00"))

	chain := &domain.ReferralChain{MemberID: memberID}
	chain.Levels[0] = &ref1ID
	if err := mem.UpsertReferralChain(context.Background(), chain); err != nil {
		t.Fatal(err)
	}

	ledger := NewLedgerWriter(mem, testLogger())
	distributor := NewSignupFeeDistributor(mem, ledger, DefaultSettings(), testLogger())

	if err := distributor.ProcessFirstDeposit(context.Background(), memberID); err != nil {
		t.Fatalf("ProcessFirstDeposit returned error: %v", err)
	}
	if !account.Balance.Equal(dec("2375.00")) {
		t.Fatalf("expected net 2375.00, got %s", account.Balance)
	}
	if !ref1Account.Balance.Equal(dec("25.00")) {
		t.Fatalf("expected referrer-1 share 25.00, got %s", ref1Account.Balance)
	}

	// The record still captures the full band split, paid or not.
	rec, err := mem.GetSignupFeeRecord(context.Background(), memberID)
	if err != nil {
		t.Fatalf("fee record missing: %v", err)
	}
	if !rec.Referrer2Share.Equal(dec("25.00")) {
		t.Fatalf("expected recorded referrer-2 share 25.00, got %s", rec.Referrer2Share)
	}
}
