/**
 * @description
 * The Referral Chain Builder: resolves referrers by code or email, issues
 * referral codes, and materializes the fixed-depth ancestry snapshot each
 * member carries.
 *
 * Ancestry is copied, not traversed: a new member's level 1 is the direct
 * referrer and levels 2-5 are the referrer's own levels 1-4. Distribution
 * never walks a graph.
 */

package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfunds/settlement-service/internal/domain"
	"github.com/meridianfunds/settlement-service/internal/store"
)

// referralAlphabet deliberately excludes 0/O, 1/I and L.
const referralAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	referralCodeLength   = 8
	codeCollisionRetries = 5
)

// ReferralStore is the persistence subset the builder needs.
type ReferralStore interface {
	FindMemberByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error)
	FindMemberByReferralCode(ctx context.Context, code string) (*domain.Member, error)
	SetMemberReferralCode(ctx context.Context, memberID uuid.UUID, code string) error
	GetReferralChain(ctx context.Context, memberID uuid.UUID) (*domain.ReferralChain, error)
	UpsertReferralChain(ctx context.Context, chain *domain.ReferralChain) error
}

// ReferralChainBuilder maintains referral codes and ancestry rows.
type ReferralChainBuilder struct {
	store  ReferralStore
	logger *slog.Logger
}

// NewReferralChainBuilder creates a chain builder.
func NewReferralChainBuilder(store ReferralStore, logger *slog.Logger) *ReferralChainBuilder {
	return &ReferralChainBuilder{store: store, logger: logger}
}

// ResolveReferrer resolves a referral code or email address to a member id.
// An empty or unresolvable reference yields (nil, nil): signing up without
// a referrer is not an error.
func (b *ReferralChainBuilder) ResolveReferrer(ctx context.Context, codeOrEmail string) (*uuid.UUID, error) {
	ref := strings.TrimSpace(codeOrEmail)
	if ref == "" {
		return nil, nil
	}

	var (
		member *domain.Member
		err    error
	)
	if strings.Contains(ref, "@") {
		member, err = b.store.FindMemberByEmail(ctx, ref)
	} else {
		member, err = b.store.FindMemberByReferralCode(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return nil, nil
		}
		return nil, err
	}
	id := member.ID
	return &id, nil
}

// EnsureReferralCode returns the member's referral code, generating one if
// missing. Generation retries on collision a few times and then falls back
// to a time-seeded code, which cannot collide with a concurrent generator
// at this code length.
func (b *ReferralChainBuilder) EnsureReferralCode(ctx context.Context, memberID uuid.UUID) (string, error) {
	member, err := b.store.FindMemberByID(ctx, memberID)
	if err != nil {
		return "", err
	}
	if member.ReferralCode != nil && *member.ReferralCode != "" {
		return *member.ReferralCode, nil
	}

	for attempt := 0; attempt < codeCollisionRetries; attempt++ {
		code, err := randomReferralCode()
		if err != nil {
			return "", err
		}
		err = b.store.SetMemberReferralCode(ctx, memberID, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, store.ErrReferralCodeTaken) {
			return "", err
		}
	}

	code := timeSeededReferralCode(time.Now())
	if err := b.store.SetMemberReferralCode(ctx, memberID, code); err != nil {
		return "", fmt.Errorf("assign fallback referral code: %w", err)
	}
	b.logger.Warn("referral code generation exhausted retries, used time-seeded fallback", "member_id", memberID)
	return code, nil
}

// BuildChain materializes the ancestry row for a new member. With no
// referrer the row is written with all slots empty so later lookups are
// uniform.
func (b *ReferralChainBuilder) BuildChain(ctx context.Context, memberID uuid.UUID, directReferrerID *uuid.UUID) error {
	chain := &domain.ReferralChain{MemberID: memberID}
	if directReferrerID != nil {
		ref := *directReferrerID
		chain.Levels[0] = &ref

		parent, err := b.store.GetReferralChain(ctx, ref)
		if err != nil && !errors.Is(err, store.ErrChainNotFound) {
			return err
		}
		if parent != nil {
			for level := 1; level < domain.ChainDepth; level++ {
				chain.Levels[level] = parent.Levels[level-1]
			}
		}
	}
	return b.store.UpsertReferralChain(ctx, chain)
}

// ReassignReferrer rebuilds one member's ancestry under a new direct
// referrer. Descendants keep the snapshot they captured at signup; the
// staleness is accepted rather than cascading a rebuild.
func (b *ReferralChainBuilder) ReassignReferrer(ctx context.Context, memberID uuid.UUID, newReferrerID *uuid.UUID) error {
	if err := b.BuildChain(ctx, memberID, newReferrerID); err != nil {
		return err
	}
	b.logger.Info("referrer reassigned", "member_id", memberID, "new_referrer", newReferrerID)
	return nil
}

func randomReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	code := make([]byte, referralCodeLength)
	for i, b := range buf {
		code[i] = referralAlphabet[int(b)%len(referralAlphabet)]
	}
	return string(code), nil
}

func timeSeededReferralCode(t time.Time) string {
	n := t.UnixNano()
	if n < 0 {
		n = -n
	}
	base := int64(len(referralAlphabet))
	code := make([]byte, referralCodeLength)
	for i := referralCodeLength - 1; i >= 0; i-- {
		code[i] = referralAlphabet[n%base]
		n /= base
	}
	return string(code)
}
