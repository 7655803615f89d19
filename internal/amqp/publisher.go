package amqp

import (
	"context"
	"log/slog"

	"carteira/internal/notify"
)

// EventPublisher forwards committed change events to the broker. A nil
// client (AMQP not configured) or a publish failure is logged and
// swallowed: the ledger write already succeeded and export sync can
// catch up later.
type EventPublisher struct {
	client *Client
}

func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, ev notify.Event) {
	if p == nil || p.client == nil {
		return
	}
	msg := NewChangeMessage(string(ev.Kind), ev.OwnerID, ev.CardID, ev.IDs)
	if err := p.client.PublishChange(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Change event not published, continuing without export sync",
			"kind", string(ev.Kind), "owner_id", ev.OwnerID, "error", err)
	}
}
