package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/pkg/errors"
)

type tx struct {
	q   querier
	now func() time.Time
}

func (t *tx) Bowls() orders.BowlRegistry { return bowlRegistry{t} }
func (t *tx) Orders() orders.OrderStore { return orderStore{t} }
func (t *tx) Payments() orders.PaymentStore { return paymentStore{t} }

type bowlRegistry struct{ t *tx }

// lock reads the bowl row FOR UPDATE; concurrent reservations on the same
// bowl queue here until the holder commits or rolls back.
func (r bowlRegistry) lock(ctx context.Context, id string) (orders.Bowl, error) {
	b, err := scanBowl(r.t.q.QueryRow(ctx, `SELECT `+bowlColumns+` FROM bowls WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return orders.Bowl{}, notFound(err, "bowl not found")
	}
	return b, nil
}

func (r bowlRegistry) set(ctx context.Context, id string, active bool) (orders.Bowl, error) {
	b, err := scanBowl(r.t.q.QueryRow(ctx, `
		UPDATE bowls SET is_active=$2, version=version+1, updated_at=$3
		WHERE id=$1
		RETURNING `+bowlColumns, id, active, r.t.now()))
	if err != nil {
		return orders.Bowl{}, errors.Wrapf(err, "update bowl %s", id)
	}
	return b, nil
}

func (r bowlRegistry) Reserve(ctx context.Context, bowlID string) (orders.Bowl, error) {
	b, err := r.lock(ctx, bowlID)
	if err != nil {
		return orders.Bowl{}, err
	}
	if b.IsActive {
		return orders.Bowl{}, apperr.New(apperr.CodeConflict, "bowl is in use")
	}
	return r.set(ctx, bowlID, true)
}

func (r bowlRegistry) Release(ctx context.Context, bowlID string) (orders.Bowl, bool, error) {
	b, err := r.lock(ctx, bowlID)
	if err != nil {
		return orders.Bowl{}, false, err
	}
	if !b.IsActive {
		return b, false, nil
	}
	b, err = r.set(ctx, bowlID, false)
	if err != nil {
		return orders.Bowl{}, false, err
	}
	return b, true, nil
}

type orderStore struct{ t *tx }

func (s orderStore) Create(ctx context.Context, o orders.Order) (orders.Order, error) {
	out, err := scanOrder(s.t.q.QueryRow(ctx, `
		INSERT INTO orders(id, bowl_id, customer_name, preferences, total_price,
			payment_status, payment_method, status, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NULL,$5,NULL,$6,$7,$8,$9)
		RETURNING `+orderColumns,
		o.ID, o.BowlID, o.CustomerName, o.Preferences,
		string(o.PaymentStatus), string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt))
	if err != nil {
		if name, ok := uniqueConstraint(err); ok {
			if name == "orders_one_waiting_per_bowl" {
				return orders.Order{}, apperr.New(apperr.CodeConflict, "bowl already has a waiting order")
			}
			return orders.Order{}, apperr.New(apperr.CodeConflict, "order already exists")
		}
		return orders.Order{}, errors.Wrap(err, "insert order")
	}
	return out, nil
}

// mutate locks the order row, applies one of the domain transitions and
// writes the result back.
func (s orderStore) mutate(ctx context.Context, id string, apply func(o *orders.Order) error) (orders.Order, error) {
	o, err := scanOrder(s.t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return orders.Order{}, notFound(err, "order not found")
	}
	if err := apply(&o); err != nil {
		return orders.Order{}, err
	}

	var method *string
	if o.PaymentMethod != nil {
		m := string(*o.PaymentMethod)
		method = &m
	}
	ct, err := s.t.q.Exec(ctx, `
		UPDATE orders
		SET total_price=$2, payment_status=$3, payment_method=$4, status=$5, version=$6, updated_at=$7
		WHERE id=$1`,
		o.ID, o.TotalPrice, string(o.PaymentStatus), method, string(o.Status), o.Version, o.UpdatedAt)
	if err != nil {
		return orders.Order{}, errors.Wrapf(err, "update order %s", id)
	}
	if ct.RowsAffected() != 1 {
		return orders.Order{}, errors.Errorf("update order %s: %d rows", id, ct.RowsAffected())
	}
	return o, nil
}

func (s orderStore) SetPrice(ctx context.Context, orderID string, price int64) (orders.Order, error) {
	now := s.t.now()
	return s.mutate(ctx, orderID, func(o *orders.Order) error { return o.ApplyPrice(price, now) })
}

func (s orderStore) AdvanceStatus(ctx context.Context, orderID string, target orders.Status) (orders.Order, error) {
	now := s.t.now()
	return s.mutate(ctx, orderID, func(o *orders.Order) error { return o.Advance(target, now) })
}

func (s orderStore) ConfirmCashPayment(ctx context.Context, orderID string) (orders.Order, error) {
	now := s.t.now()
	return s.mutate(ctx, orderID, func(o *orders.Order) error { return o.MarkPaidCash(now) })
}

type paymentStore struct{ t *tx }

func (s paymentStore) Create(ctx context.Context, p orders.Payment) (orders.Payment, error) {
	var out orders.Payment
	var method string
	err := s.t.q.QueryRow(ctx, `
		INSERT INTO payments(id, order_id, amount, payment_method, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, order_id, amount, payment_method, created_at`,
		p.ID, p.OrderID, p.Amount, string(p.PaymentMethod), p.CreatedAt).
		Scan(&out.ID, &out.OrderID, &out.Amount, &method, &out.CreatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return orders.Payment{}, apperr.New(apperr.CodeInvalidTransition, "order is already paid")
		}
		return orders.Payment{}, errors.Wrap(err, "insert payment")
	}
	out.PaymentMethod = orders.PaymentMethod(method)
	return out, nil
}
