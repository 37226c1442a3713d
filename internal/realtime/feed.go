package realtime

import (
	"context"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/pkg/errors"
)

// Feed opens a reconciled stream for one topic: it subscribes first, then
// takes the snapshot with the topic's own query, so no committed change can
// fall between the two.
type Feed struct {
	Hub    *Hub
	Reader orders.Reader
}

// Stream is an open feed. View starts out holding the snapshot; Next yields
// only deltas that change it.
type Stream struct {
	View *View
	sub  *Subscription
	hub  *Hub
	// envelopes that arrived before the snapshot was read
	early []orders.Envelope
	// deltas already applied to View but not yet returned by Next
	pending []Delta
	rd      orders.Reader
}

func (f *Feed) Open(ctx context.Context, t Topic) (*Stream, error) {
	sub := f.Hub.Subscribe(t)
	s := &Stream{View: NewView(t), sub: sub, hub: f.Hub, rd: f.Reader}
	if err := s.snapshot(ctx); err != nil {
		f.Hub.Unsubscribe(sub)
		return nil, err
	}
	return s, nil
}

func (s *Stream) snapshot(ctx context.Context) error {
	t := s.View.Topic()
	switch t.Kind {
	case KindKitchen, KindCashier:
		list, err := s.rd.ListOrders(ctx, t.Query())
		if err != nil {
			return errors.Wrapf(err, "snapshot %s", t)
		}
		s.View.Seed(list)
	case KindOrder:
		o, err := s.rd.GetOrder(ctx, t.ID)
		if err != nil {
			return err
		}
		s.View.Seed([]orders.Order{o})
	case KindBowl:
		b, err := s.rd.GetBowl(ctx, t.ID)
		if err != nil {
			return err
		}
		s.View.SeedBowl(b)
	}

	// Drain what queued up while the snapshot was running.
	for {
		select {
		case e, ok := <-s.sub.C:
			if !ok {
				return nil
			}
			// part of the snapshot the client is about to receive
			if _, _, err := s.reconcile(ctx, e); err != nil {
				return err
			}
			s.early = append(s.early, e)
		default:
			return nil
		}
	}
}

// reconcile handles an event for an order a list view has never seen. The
// snapshot may have left it out because it already moved past the topic, and
// the event may predate that move, so the current record is applied first.
// The event itself is merged afterwards and only wins if it is newer.
func (s *Stream) reconcile(ctx context.Context, e orders.Envelope) (Delta, bool, error) {
	t := s.View.Topic()
	if t.Kind != KindKitchen && t.Kind != KindCashier {
		return Delta{}, false, nil
	}
	if e.Entity != orders.EntityOrder || s.View.Knows(e.EntityID) {
		return Delta{}, false, nil
	}
	cur, err := s.rd.GetOrder(ctx, e.EntityID)
	if err != nil {
		if ctx.Err() != nil {
			return Delta{}, false, ctx.Err()
		}
		return Delta{}, false, nil // fall back to the event alone
	}
	d, changed := s.View.Apply(orders.OrderChanged(orders.OpUpdate, cur, "", ""))
	return d, changed, nil
}

// Next blocks until the view changes. ok is false when the subscription was
// closed; Dropped tells whether the hub dropped it.
func (s *Stream) Next(ctx context.Context) (Delta, bool, error) {
	for {
		if len(s.pending) > 0 {
			d := s.pending[0]
			s.pending = s.pending[1:]
			return d, true, nil
		}

		var e orders.Envelope
		if len(s.early) > 0 {
			e = s.early[0]
			s.early = s.early[1:]
		} else {
			select {
			case <-ctx.Done():
				return Delta{}, false, ctx.Err()
			case got, ok := <-s.sub.C:
				if !ok {
					return Delta{}, false, nil
				}
				e = got
			}
		}

		d, changed, err := s.reconcile(ctx, e)
		if err != nil {
			// keep e for the next call
			s.early = append([]orders.Envelope{e}, s.early...)
			return Delta{}, false, err
		}
		if changed {
			s.pending = append(s.pending, d)
		}
		if d, changed := s.View.Apply(e); changed {
			s.pending = append(s.pending, d)
		}
	}
}

func (s *Stream) Dropped() bool { return s.sub.Dropped() }

func (s *Stream) Close() { s.hub.Unsubscribe(s.sub) }
