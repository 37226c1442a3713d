package realtime

import (
	"context"

	kafkax "github.com/ariefcatur/go-realtime-bowls/internal/kafka"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Deduper remembers event ids; FirstSeen is true only the first time an id is
// offered.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

type Sink interface {
	Publish(ctx context.Context, evs ...orders.Envelope) error
}

// Relay feeds envelopes consumed from the broker into the local hub. The
// broker delivers at least once; the deduper turns that into at most once
// per process.
type Relay struct {
	Sink  Sink
	Dedup Deduper
	Log   logrus.FieldLogger
}

// HandleMessage is installed as the consumer handler.
func (r *Relay) HandleMessage(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		// poison message: log and let the offset move on
		r.Log.WithError(err).WithField("offset", m.Offset).Error("relay: undecodable envelope")
		return nil
	}
	if env.EventID == "" || (env.Order == nil && env.Bowl == nil) {
		r.Log.WithFields(logrus.Fields{
			"offset": m.Offset, "event_type": kafkax.Header(m, kafkax.HeaderEventType),
		}).Warn("relay: envelope without after-image")
		return nil
	}

	if r.Dedup != nil {
		first, err := r.Dedup.FirstSeen(ctx, env.EventID)
		if err != nil {
			// dedup is best effort; views merge by version anyway
			r.Log.WithError(err).Warn("relay: dedup unavailable")
		} else if !first {
			return nil
		}
	}

	if err := r.Sink.Publish(ctx, env); err != nil {
		return errors.Wrapf(err, "relay %s", env.EventID)
	}
	return nil
}
