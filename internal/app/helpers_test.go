package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capturingPublisher records every published event for assertions.
type capturingPublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

func (p *capturingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func verifiedAccount(memberID uuid.UUID, kind domain.AccountKind, balance, initial string) domain.Account {
	now := time.Now().UTC().Add(-24 * time.Hour)
	return domain.Account{
		ID:             uuid.New(),
		MemberID:       memberID,
		Kind:           kind,
		Balance:        dec(balance),
		InitialBalance: dec(initial),
		MinimumBalance: decimal.Zero,
		StartDate:      now,
		VerifiedAt:     &now,
		IsActive:       true,
	}
}
