package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
	"github.com/meridianfunds/settlement-service/internal/store"
)

// memStore is an in-memory stand-in for the Postgres repository, shared by
// the app package tests. Ledger writes mimic the real store's contract:
// completed entries accumulate and the balance moves with them atomically.
type memStore struct {
	accounts      map[uuid.UUID]*domain.Account
	accountOrder  []uuid.UUID
	members       map[uuid.UUID]*domain.Member
	chains        map[uuid.UUID]*domain.ReferralChain
	feeRecords    map[uuid.UUID]*domain.SignupFeeRecord
	distributions map[string]*domain.CommissionDistribution
	overrides     map[string]*domain.FounderOverridePayout
	reserve       []*domain.ReserveEntry
	entries       []*domain.LedgerEntry
	withdrawals   map[uuid.UUID]*domain.WithdrawalRequest
	codes         map[string]uuid.UUID

	applyErrFor map[uuid.UUID]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:      make(map[uuid.UUID]*domain.Account),
		members:       make(map[uuid.UUID]*domain.Member),
		chains:        make(map[uuid.UUID]*domain.ReferralChain),
		feeRecords:    make(map[uuid.UUID]*domain.SignupFeeRecord),
		distributions: make(map[string]*domain.CommissionDistribution),
		overrides:     make(map[string]*domain.FounderOverridePayout),
		withdrawals:   make(map[uuid.UUID]*domain.WithdrawalRequest),
		codes:         make(map[string]uuid.UUID),
		applyErrFor:   make(map[uuid.UUID]error),
	}
}

func (s *memStore) addAccount(a domain.Account) *domain.Account {
	stored := a
	s.accounts[a.ID] = &stored
	s.accountOrder = append(s.accountOrder, a.ID)
	return &stored
}

func (s *memStore) addMember(m domain.Member) *domain.Member {
	stored := m
	s.members[m.ID] = &stored
	if m.ReferralCode != nil {
		s.codes[*m.ReferralCode] = m.ID
	}
	return &stored
}

// Ledger

func (s *memStore) ApplyLedgerDelta(ctx context.Context, m domain.LedgerMutation) (*domain.LedgerResult, error) {
	if err := s.applyErrFor[m.AccountID]; err != nil {
		return nil, err
	}
	account, ok := s.accounts[m.AccountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	old := account.Balance
	s.entries = append(s.entries, &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: m.AccountID,
		Type:      m.Type,
		Amount:    m.Amount,
		Status:    domain.EntryCompleted,
		Metadata:  m.Metadata,
		CreatedAt: time.Now(),
	})
	account.Balance = old.Add(m.Amount)
	return &domain.LedgerResult{
		TransactionID: s.entries[len(s.entries)-1].ID,
		OldBalance:    old,
		NewBalance:    account.Balance,
	}, nil
}

func (s *memStore) SumCompletedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range s.entries {
		if e.AccountID == accountID && e.Status == domain.EntryCompleted {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (s *memStore) ListOrphanedEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	var orphans []domain.LedgerEntry
	for _, e := range s.entries {
		account, ok := s.accounts[e.AccountID]
		if !ok || !account.IsActive {
			orphans = append(orphans, *e)
		}
	}
	return orphans, nil
}

func (s *memStore) ReconcileBalance(ctx context.Context, accountID uuid.UUID, metadata map[string]string) (*domain.LedgerResult, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	sum, _ := s.SumCompletedEntries(ctx, accountID)
	old := account.Balance
	if old.Sub(sum).Abs().LessThanOrEqual(domain.BalanceTolerance) {
		return &domain.LedgerResult{OldBalance: old, NewBalance: old, NoOp: true}, nil
	}
	s.entries = append(s.entries, &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      domain.EntryAdminAdjustment,
		Amount:    decimal.Zero,
		Status:    domain.EntryCompleted,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	})
	account.Balance = sum
	return &domain.LedgerResult{OldBalance: old, NewBalance: sum}, nil
}

// Accounts

func (s *memStore) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *memStore) FindPrimaryAccountByMemberID(ctx context.Context, memberID uuid.UUID) (*domain.Account, error) {
	for _, id := range s.accountOrder {
		account := s.accounts[id]
		if account.MemberID == memberID && account.IsActive {
			return account, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (s *memStore) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	for _, id := range s.accountOrder {
		out = append(out, *s.accounts[id])
	}
	return out, nil
}

func (s *memStore) ListActiveAccountsWithBalance(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	for _, id := range s.accountOrder {
		account := s.accounts[id]
		if account.IsActive && account.VerifiedAt != nil && account.Balance.GreaterThan(decimal.Zero) {
			out = append(out, *account)
		}
	}
	return out, nil
}

// Members and referral chains

func (s *memStore) FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	member, ok := s.members[id]
	if !ok {
		return nil, store.ErrMemberNotFound
	}
	return member, nil
}

func (s *memStore) FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	for _, m := range s.members {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, store.ErrMemberNotFound
}

func (s *memStore) FindMemberByReferralCode(ctx context.Context, code string) (*domain.Member, error) {
	id, ok := s.codes[code]
	if !ok {
		return nil, store.ErrMemberNotFound
	}
	return s.members[id], nil
}

func (s *memStore) SetMemberReferralCode(ctx context.Context, memberID uuid.UUID, code string) error {
	if owner, taken := s.codes[code]; taken && owner != memberID {
		return store.ErrReferralCodeTaken
	}
	member, ok := s.members[memberID]
	if !ok {
		return store.ErrMemberNotFound
	}
	s.codes[code] = memberID
	member.ReferralCode = &code
	return nil
}

func (s *memStore) GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error) {
	chain, ok := s.chains[memberID]
	if !ok {
		return nil, store.ErrChainNotFound
	}
	return chain, nil
}

func (s *memStore) UpsertReferralChain(ctx context.Context, chain *domain.ReferralChain) error {
	s.chains[chain.MemberID] = chain
	return nil
}

// Signup fees

func (s *memStore) GetSignupFeeRecord(ctx context.Context, memberID uuid.UUID) (*domain.SignupFeeRecord, error) {
	rec, ok := s.feeRecords[memberID]
	if !ok {
		return nil, store.ErrSignupFeeNotFound
	}
	return rec, nil
}

func (s *memStore) CreateSignupFeeRecord(ctx context.Context, rec *domain.SignupFeeRecord) error {
	s.feeRecords[rec.MemberID] = rec
	return nil
}

// Commission distribution

func distributionKey(accountID uuid.UUID, month string) string {
	return accountID.String() + "|" + month
}

func (s *memStore) CreateCommissionDistribution(ctx context.Context, rec *domain.CommissionDistribution) error {
	key := distributionKey(rec.AccountID, rec.Month)
	if _, exists := s.distributions[key]; exists {
		return store.ErrDistributionExists
	}
	s.distributions[key] = rec
	return nil
}

func (s *memStore) UpsertFounderOverridePayout(ctx context.Context, p *domain.FounderOverridePayout) (bool, error) {
	key := fmt.Sprintf("%s|%s|%d|%s", p.FounderID, p.AccountID, p.Level, p.Month)
	if _, exists := s.overrides[key]; exists {
		return false, nil
	}
	s.overrides[key] = p
	return true, nil
}

// Reserve fund

func (s *memStore) CreateReserveEntry(ctx context.Context, e *domain.ReserveEntry) error {
	s.reserve = append(s.reserve, e)
	return nil
}

func (s *memStore) ReserveBalance(ctx context.Context) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range s.reserve {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

// Withdrawals

func (s *memStore) CreateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	s.withdrawals[req.ID] = req
	return nil
}

func (s *memStore) GetWithdrawalRequest(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	req, ok := s.withdrawals[id]
	if !ok {
		return nil, store.ErrWithdrawalNotFound
	}
	return req, nil
}

func (s *memStore) MarkWithdrawalApproved(ctx context.Context, id uuid.UUID, scheduledReleaseAt time.Time) error {
	req, ok := s.withdrawals[id]
	if !ok {
		return store.ErrWithdrawalNotFound
	}
	if req.Status != domain.WithdrawalPending {
		return store.ErrWithdrawalNotPending
	}
	req.Status = domain.WithdrawalApproved
	req.ScheduledReleaseAt = &scheduledReleaseAt
	return nil
}

func (s *memStore) RevertWithdrawalApproval(ctx context.Context, id uuid.UUID) error {
	req, ok := s.withdrawals[id]
	if !ok {
		return store.ErrWithdrawalNotFound
	}
	if req.Status != domain.WithdrawalApproved {
		return store.ErrWithdrawalNotApproved
	}
	req.Status = domain.WithdrawalPending
	req.ScheduledReleaseAt = nil
	return nil
}

func (s *memStore) MarkWithdrawalDenied(ctx context.Context, id uuid.UUID) error {
	req, ok := s.withdrawals[id]
	if !ok {
		return store.ErrWithdrawalNotFound
	}
	if req.Status != domain.WithdrawalPending {
		return store.ErrWithdrawalNotPending
	}
	req.Status = domain.WithdrawalDenied
	return nil
}

func (s *memStore) MarkWithdrawalCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	req, ok := s.withdrawals[id]
	if !ok {
		return store.ErrWithdrawalNotFound
	}
	req.Status = domain.WithdrawalCompleted
	req.ProcessedAt = &processedAt
	return nil
}

func (s *memStore) ListDueWithdrawals(ctx context.Context, now time.Time) ([]domain.WithdrawalRequest, error) {
	var due []domain.WithdrawalRequest
	for _, req := range s.withdrawals {
		if req.Status == domain.WithdrawalApproved && req.ScheduledReleaseAt != nil && !req.ScheduledReleaseAt.After(now) {
			due = append(due, *req)
		}
	}
	return due, nil
}
