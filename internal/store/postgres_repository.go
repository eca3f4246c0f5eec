/**
 * @description
 * PostgreSQL implementation of the Repository interface: accounts, members,
 * referral chains, signup fee records, commission audit rows, the reserve
 * fund and withdrawal requests. Ledger mutation lives in postgres_ledger.go.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresRepository is the pgx-backed Repository implementation.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a repository over a pgx connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `
	id, member_id, kind, balance, initial_balance, reserved_amount,
	minimum_balance, start_date, lockup_end_date, verified_at, is_active,
	created_at, updated_at
`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a    domain.Account
		kind string
	)
	err := row.Scan(
		&a.ID, &a.MemberID, &kind, &a.Balance, &a.InitialBalance,
		&a.ReservedAmount, &a.MinimumBalance, &a.StartDate, &a.LockupEndDate,
		&a.VerifiedAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Kind = domain.AccountKind(kind)
	return &a, nil
}

// FindAccountByID retrieves one account.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// FindPrimaryAccountByMemberID retrieves a member's primary (oldest active)
// account, which is where referral and override commissions are credited.
func (r *PostgresRepository) FindPrimaryAccountByMemberID(ctx context.Context, memberID uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE member_id = $1 AND is_active = true
		ORDER BY created_at
		LIMIT 1
	`, memberID)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// ListAccounts returns every account, active or not. Used by the integrity
// sweep.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return r.listAccounts(ctx, "SELECT "+accountColumns+" FROM accounts ORDER BY created_at")
}

// ListActiveAccountsWithBalance returns the monthly distribution universe:
// active, verified accounts with a positive balance.
func (r *PostgresRepository) ListActiveAccountsWithBalance(ctx context.Context) ([]domain.Account, error) {
	return r.listAccounts(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE is_active = true AND verified_at IS NOT NULL AND balance > 0
		ORDER BY created_at
	`)
}

func (r *PostgresRepository) listAccounts(ctx context.Context, query string) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// FindMemberByID retrieves a member-directory row.
func (r *PostgresRepository) FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	return r.findMember(ctx, "SELECT id, email, referral_code, is_founding_member, created_at FROM members WHERE id = $1", id)
}

// FindMemberByEmail resolves a member by email, case-insensitively.
func (r *PostgresRepository) FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	return r.findMember(ctx, "SELECT id, email, referral_code, is_founding_member, created_at FROM members WHERE lower(email) = lower($1)", email)
}

// FindMemberByReferralCode resolves a member by their referral code.
func (r *PostgresRepository) FindMemberByReferralCode(ctx context.Context, code string) (*domain.Member, error) {
	return r.findMember(ctx, "SELECT id, email, referral_code, is_founding_member, created_at FROM members WHERE referral_code = $1", code)
}

func (r *PostgresRepository) findMember(ctx context.Context, query string, arg any) (*domain.Member, error) {
	var m domain.Member
	err := r.db.QueryRow(ctx, query, arg).Scan(&m.ID, &m.Email, &m.ReferralCode, &m.IsFoundingMember, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

// SetMemberReferralCode assigns a referral code to a member. A unique
// violation on the code column maps to ErrReferralCodeTaken so the caller
// can retry with a fresh code.
func (r *PostgresRepository) SetMemberReferralCode(ctx context.Context, memberID uuid.UUID, code string) error {
	result, err := r.db.Exec(ctx, "UPDATE members SET referral_code = $1, updated_at = NOW() WHERE id = $2", code, memberID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrReferralCodeTaken
		}
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// GetReferralChain retrieves a member's materialized ancestry row.
func (r *PostgresRepository) GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error) {
	var c domain.ReferralChain
	err := r.db.QueryRow(ctx, `
		SELECT member_id, level1, level2, level3, level4, level5, created_at, updated_at
		FROM referral_chains
		WHERE member_id = $1
	`, memberID).Scan(&c.MemberID, &c.Levels[0], &c.Levels[1], &c.Levels[2], &c.Levels[3], &c.Levels[4], &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChainNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpsertReferralChain writes a member's ancestry row, replacing any
// previous snapshot. Only the one row is touched; descendants keep the
// chain they captured at their own signup.
func (r *PostgresRepository) UpsertReferralChain(ctx context.Context, chain *domain.ReferralChain) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO referral_chains (member_id, level1, level2, level3, level4, level5)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (member_id)
		DO UPDATE SET
			level1 = EXCLUDED.level1,
			level2 = EXCLUDED.level2,
			level3 = EXCLUDED.level3,
			level4 = EXCLUDED.level4,
			level5 = EXCLUDED.level5,
			updated_at = NOW()
	`, chain.MemberID, chain.Levels[0], chain.Levels[1], chain.Levels[2], chain.Levels[3], chain.Levels[4])
	return err
}

// GetSignupFeeRecord retrieves the one-per-member fee split record.
func (r *PostgresRepository) GetSignupFeeRecord(ctx context.Context, memberID uuid.UUID) (*domain.SignupFeeRecord, error) {
	var rec domain.SignupFeeRecord
	err := r.db.QueryRow(ctx, `
		SELECT member_id, initial_deposit, fee_amount, referrer1_share, referrer2_share, slush_fund_share, created_at
		FROM signup_fee_records
		WHERE member_id = $1
	`, memberID).Scan(&rec.MemberID, &rec.InitialDeposit, &rec.FeeAmount, &rec.Referrer1Share, &rec.Referrer2Share, &rec.SlushFundShare, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSignupFeeNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// CreateSignupFeeRecord inserts the fee split record. The primary key on
// member_id backs the processor's idempotency guarantee.
func (r *PostgresRepository) CreateSignupFeeRecord(ctx context.Context, rec *domain.SignupFeeRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO signup_fee_records (member_id, initial_deposit, fee_amount, referrer1_share, referrer2_share, slush_fund_share)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.MemberID, rec.InitialDeposit, rec.FeeAmount, rec.Referrer1Share, rec.Referrer2Share, rec.SlushFundShare)
	return err
}

// CreateCommissionDistribution inserts the monthly audit snapshot for an
// account. The unique (account_id, month) constraint is the idempotency key
// for partial re-runs: a conflict maps to ErrDistributionExists.
func (r *PostgresRepository) CreateCommissionDistribution(ctx context.Context, rec *domain.CommissionDistribution) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO commission_distributions (
			id, account_id, month, gross_rate, gross_amount, member_share,
			referrer1_share, referrer2_share, slush_share,
			house1_share, house2_share, house3_share
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, rec.AccountID, rec.Month, rec.GrossRate, rec.GrossAmount, rec.MemberShare,
		rec.Referrer1Share, rec.Referrer2Share, rec.SlushShare,
		rec.House1Share, rec.House2Share, rec.House3Share,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDistributionExists
		}
		return err
	}
	return nil
}

// UpsertFounderOverridePayout inserts an override payout if none exists for
// the (founder, account, level, month) tuple. Returns false when the payout
// was already recorded, which makes re-runs of the same month no-ops.
func (r *PostgresRepository) UpsertFounderOverridePayout(ctx context.Context, p *domain.FounderOverridePayout) (bool, error) {
	result, err := r.db.Exec(ctx, `
		INSERT INTO founder_override_payouts (id, founder_id, account_id, level, month, rate, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (founder_id, account_id, level, month) DO NOTHING
	`, p.ID, p.FounderID, p.AccountID, p.Level, p.Month, p.Rate, p.Amount)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// CreateReserveEntry appends one row to the reserve (slush) fund.
func (r *PostgresRepository) CreateReserveEntry(ctx context.Context, e *domain.ReserveEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reserve_entries (id, account_id, amount, kind, month)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.AccountID, e.Amount, string(e.Kind), e.Month)
	return err
}

// ReserveBalance returns the pooled reserve balance: signup-fee and
// commission inflows minus floor top-up payouts.
func (r *PostgresRepository) ReserveBalance(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, "SELECT COALESCE(SUM(amount), 0) FROM reserve_entries").Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

const withdrawalColumns = "id, account_id, amount, method, status, requested_at, scheduled_release_at, processed_at"

func scanWithdrawal(row rowScanner) (*domain.WithdrawalRequest, error) {
	var (
		w      domain.WithdrawalRequest
		status string
	)
	err := row.Scan(&w.ID, &w.AccountID, &w.Amount, &w.Method, &status, &w.RequestedAt, &w.ScheduledReleaseAt, &w.ProcessedAt)
	if err != nil {
		return nil, err
	}
	w.Status = domain.WithdrawalStatus(status)
	return &w, nil
}

// CreateWithdrawalRequest inserts a new pending request.
func (r *PostgresRepository) CreateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO withdrawal_requests (id, account_id, amount, method, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.AccountID, req.Amount, req.Method, string(req.Status), req.RequestedAt)
	return err
}

// GetWithdrawalRequest retrieves one request.
func (r *PostgresRepository) GetWithdrawalRequest(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRow(ctx, "SELECT "+withdrawalColumns+" FROM withdrawal_requests WHERE id = $1", id)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return w, nil
}

// MarkWithdrawalApproved transitions pending -> approved and stamps the
// scheduled release date. Guarded in SQL so a request can only leave
// pending once.
func (r *PostgresRepository) MarkWithdrawalApproved(ctx context.Context, id uuid.UUID, scheduledReleaseAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = 'approved', scheduled_release_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, scheduledReleaseAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotPending
	}
	return nil
}

// RevertWithdrawalApproval compensates an approval whose debit failed,
// putting the row back to pending with no scheduled release.
func (r *PostgresRepository) RevertWithdrawalApproval(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = 'pending', scheduled_release_at = NULL
		WHERE id = $1 AND status = 'approved'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotApproved
	}
	return nil
}

// MarkWithdrawalDenied transitions pending -> denied (terminal).
func (r *PostgresRepository) MarkWithdrawalDenied(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = 'denied', processed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotPending
	}
	return nil
}

// MarkWithdrawalCompleted closes an approved request once its release date
// has arrived. The balance was already debited at approval.
func (r *PostgresRepository) MarkWithdrawalCompleted(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = 'completed', processed_at = $2
		WHERE id = $1 AND status = 'approved'
	`, id, processedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

// ListDueWithdrawals returns approved requests whose scheduled release has
// arrived.
func (r *PostgresRepository) ListDueWithdrawals(ctx context.Context, now time.Time) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE status = 'approved' AND scheduled_release_at <= $1
		ORDER BY scheduled_release_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []domain.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *w)
	}
	return due, rows.Err()
}
