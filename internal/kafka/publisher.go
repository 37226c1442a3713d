package kafka

import (
	"context"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
)

// ChangePublisher produces committed change events to the changes topic.
type ChangePublisher struct {
	Producer *Producer
}

func (p *ChangePublisher) Publish(ctx context.Context, evs ...orders.Envelope) error {
	for _, e := range evs {
		key, value, headers, err := EncodeEnvelope(e)
		if err != nil {
			return err
		}
		if err := p.Producer.Publish(ctx, key, value, headers...); err != nil {
			return err
		}
	}
	return nil
}
