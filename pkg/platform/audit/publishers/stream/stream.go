// Package stream forwards audit events to a message broker topic.
// Events are keyed by user so a consumer sees each user's events in order.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	audit "voiceid/pkg/platform/audit"
)

// Producer is the subset of the Kafka producer this sink needs.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

type Publisher struct {
	producer Producer
}

func New(producer Producer) *Publisher {
	return &Publisher{producer: producer}
}

// Forward serializes the event as JSON and produces it.
func (p *Publisher) Forward(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := p.producer.Produce(ctx, []byte(event.UserID.String()), value); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
