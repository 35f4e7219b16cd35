package events

import (
	"context"
	"log/slog"
)

// NopPublisher drops events after logging them. It stands in for RabbitMQ
// when no broker is configured or the broker was unreachable at startup.
type NopPublisher struct {
	log *slog.Logger
}

func NewNopPublisher(log *slog.Logger) *NopPublisher {
	return &NopPublisher{log: log}
}

func (p *NopPublisher) Publish(ctx context.Context, routingKey string, _ any) error {
	p.log.DebugContext(ctx, "event publish skipped", "routing_key", routingKey, "mode", "fallback")
	return nil
}

func (p *NopPublisher) Close() error { return nil }
