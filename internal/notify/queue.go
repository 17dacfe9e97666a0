package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueDispatcher publishes lead events to a topic exchange. The actual
// message content (email/SMS templates) is rendered by external delivery
// workers consuming these events.
type QueueDispatcher struct {
	ch       *amqp.Channel
	exchange string
}

const (
	routingKeyLeadAssigned = "lead.assigned"
	routingKeyLeadUnserved = "lead.unserved"
	routingKeyCreditsLow   = "credits.low"
)

func NewQueueDispatcher(ch *amqp.Channel, exchange string) (*QueueDispatcher, error) {
	if ch == nil {
		return nil, fmt.Errorf("notify: amqp channel is required")
	}
	if exchange == "" {
		exchange = "leadmarket.events"
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("notify: exchange declare failed: %w", err)
	}
	return &QueueDispatcher{ch: ch, exchange: exchange}, nil
}

// LeadEvent is the wire payload for lead notifications.
type LeadEvent struct {
	LeadID      string `json:"lead_id"`
	LeadName    string `json:"lead_name"`
	LeadPhone   string `json:"lead_phone"`
	Zip         string `json:"zip"`
	State       string `json:"state"`
	Urgency     string `json:"urgency"`
	PriceCents  int64  `json:"price_cents"`
	ChargeCents int64  `json:"charge_cents"`

	ProviderID    string `json:"provider_id,omitempty"`
	ProviderEmail string `json:"provider_email,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

func (d *QueueDispatcher) NotifyProviderOfLead(ctx context.Context, p directory.Provider, l leads.Lead, chargeCents int64) error {
	return d.publish(ctx, routingKeyLeadAssigned, LeadEvent{
		LeadID:        l.ID,
		LeadName:      l.Name,
		LeadPhone:     l.Phone,
		Zip:           l.Zip,
		State:         l.State,
		Urgency:       string(l.Urgency),
		PriceCents:    l.PriceCents,
		ChargeCents:   chargeCents,
		ProviderID:    p.ID,
		ProviderEmail: p.Email,
		OccurredAt:    time.Now().UTC(),
	})
}

func (d *QueueDispatcher) NotifyAdminUnservedLead(ctx context.Context, l leads.Lead) error {
	return d.publish(ctx, routingKeyLeadUnserved, LeadEvent{
		LeadID:     l.ID,
		LeadName:   l.Name,
		LeadPhone:  l.Phone,
		Zip:        l.Zip,
		State:      l.State,
		Urgency:    string(l.Urgency),
		PriceCents: l.PriceCents,
		OccurredAt: time.Now().UTC(),
	})
}

func (d *QueueDispatcher) NotifyProviderLowCredits(ctx context.Context, p directory.Provider, l leads.Lead) error {
	return d.publish(ctx, routingKeyCreditsLow, LeadEvent{
		LeadID:        l.ID,
		Zip:           l.Zip,
		State:         l.State,
		Urgency:       string(l.Urgency),
		PriceCents:    l.PriceCents,
		ProviderID:    p.ID,
		ProviderEmail: p.Email,
		OccurredAt:    time.Now().UTC(),
	})
}

func (d *QueueDispatcher) publish(ctx context.Context, key string, ev LeadEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: payload marshal failed: %w", err)
	}
	err = d.ch.PublishWithContext(ctx,
		d.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("notify: publish %s failed: %w", key, err)
	}
	return nil
}
