package memstore

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
)

type tx struct {
	st  state
	now func() time.Time
}

func (t *tx) Bowls() orders.BowlRegistry { return bowlRegistry{t} }
func (t *tx) Orders() orders.OrderStore { return orderStore{t} }
func (t *tx) Payments() orders.PaymentStore { return paymentStore{t} }

type bowlRegistry struct{ t *tx }

func (r bowlRegistry) Reserve(_ context.Context, bowlID string) (orders.Bowl, error) {
	b, ok := r.t.st.bowls[bowlID]
	if !ok {
		return orders.Bowl{}, apperr.New(apperr.CodeNotFound, "bowl not found")
	}
	if b.IsActive {
		return orders.Bowl{}, apperr.New(apperr.CodeConflict, "bowl is in use")
	}
	b.IsActive = true
	b.Version++
	b.UpdatedAt = r.t.now()
	r.t.st.bowls[bowlID] = b
	return b, nil
}

func (r bowlRegistry) Release(_ context.Context, bowlID string) (orders.Bowl, bool, error) {
	b, ok := r.t.st.bowls[bowlID]
	if !ok {
		return orders.Bowl{}, false, apperr.New(apperr.CodeNotFound, "bowl not found")
	}
	if !b.IsActive {
		return b, false, nil
	}
	b.IsActive = false
	b.Version++
	b.UpdatedAt = r.t.now()
	r.t.st.bowls[bowlID] = b
	return b, true, nil
}

type orderStore struct{ t *tx }

func (s orderStore) Create(_ context.Context, o orders.Order) (orders.Order, error) {
	if _, ok := s.t.st.bowls[o.BowlID]; !ok {
		return orders.Order{}, apperr.New(apperr.CodeNotFound, "bowl not found")
	}
	if _, ok := s.t.st.orders[o.ID]; ok {
		return orders.Order{}, apperr.New(apperr.CodeConflict, "order already exists")
	}
	for _, other := range s.t.st.orders {
		if other.BowlID == o.BowlID && other.Status == orders.StatusWaiting {
			return orders.Order{}, apperr.New(apperr.CodeConflict, "bowl already has a waiting order")
		}
	}
	s.t.st.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}

func (s orderStore) mutate(id string, apply func(o *orders.Order) error) (orders.Order, error) {
	o, ok := s.t.st.orders[id]
	if !ok {
		return orders.Order{}, apperr.New(apperr.CodeNotFound, "order not found")
	}
	o = o.Clone()
	if err := apply(&o); err != nil {
		return orders.Order{}, err
	}
	s.t.st.orders[id] = o
	return o.Clone(), nil
}

func (s orderStore) SetPrice(_ context.Context, orderID string, price int64) (orders.Order, error) {
	now := s.t.now()
	return s.mutate(orderID, func(o *orders.Order) error { return o.ApplyPrice(price, now) })
}

func (s orderStore) AdvanceStatus(_ context.Context, orderID string, target orders.Status) (orders.Order, error) {
	now := s.t.now()
	return s.mutate(orderID, func(o *orders.Order) error { return o.Advance(target, now) })
}

func (s orderStore) ConfirmCashPayment(_ context.Context, orderID string) (orders.Order, error) {
	now := s.t.now()
	return s.mutate(orderID, func(o *orders.Order) error { return o.MarkPaidCash(now) })
}

type paymentStore struct{ t *tx }

func (s paymentStore) Create(_ context.Context, p orders.Payment) (orders.Payment, error) {
	if _, ok := s.t.st.payments[p.OrderID]; ok {
		return orders.Payment{}, apperr.New(apperr.CodeInvalidTransition, "order is already paid")
	}
	s.t.st.payments[p.OrderID] = p
	return p, nil
}
