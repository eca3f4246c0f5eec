package app

import "context"

// SettlementExchange is the topic exchange settlement events are published
// on.
const SettlementExchange = "settlement.events"

// EventPublisher publishes engine events to the message broker. Satisfied
// by pkg/rabbitmq and by its no-op fallback.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}
