package asn

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis channels carrying domain events for downstream consumers (billing,
// replenishment, labor planning).
const (
	ChannelLineProcessed = "atlas:asn:line_processed"
	ChannelCompleted     = "atlas:asn:completed"
)

// EventPublisher relays domain events over Redis pub/sub. Delivery is fire
// and forget: the receipt itself is already committed when an event fires,
// so a publish failure is logged, never propagated.
type EventPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewEventPublisher constructs the publisher.
func NewEventPublisher(client *redis.Client, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{client: client, logger: logger}
}

// HandleLineProcessed publishes a line processed event.
func (p *EventPublisher) HandleLineProcessed(ctx context.Context, evt LineProcessedEvent) error {
	return p.publish(ctx, ChannelLineProcessed, map[string]any{
		"asn_id":    evt.ASNID,
		"line_id":   evt.LineID,
		"sku":       evt.SKU,
		"quantity":  evt.Quantity,
		"condition": evt.Condition,
		"location":  evt.Location,
		"actor_id":  evt.ActorID,
	})
}

// HandleASNCompleted publishes a completion event.
func (p *EventPublisher) HandleASNCompleted(ctx context.Context, evt CompletedEvent) error {
	return p.publish(ctx, ChannelCompleted, map[string]any{
		"asn_id":       evt.ASNID,
		"number":       evt.Number,
		"supplier_id":  evt.SupplierID,
		"completed_at": evt.CompletedAt,
	})
}

func (p *EventPublisher) publish(ctx context.Context, channel string, payload map[string]any) error {
	if p == nil || p.client == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Warn("publish event", slog.String("channel", channel), slog.Any("error", err))
		return err
	}
	return nil
}

var _ IntegrationHandler = (*EventPublisher)(nil)
