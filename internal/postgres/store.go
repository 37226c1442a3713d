// Package postgres persists bowls, orders and payments with pgx. Reservation
// exclusivity rests on SELECT ... FOR UPDATE row locks, backed by a partial
// unique index that allows one waiting order per bowl.
package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var (
	_ orders.UnitOfWork = (*Store)(nil)
	_ orders.Reader     = (*Store)(nil)
	_ orders.Seeder     = (*Store)(nil)
)

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	pgtx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(ctx, &tx{q: pgtx, now: s.Now}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// SeedBowls inserts the given bowls as available; ids already present keep
// their state.
func (s *Store) SeedBowls(ctx context.Context, ids []string) (int, error) {
	created := 0
	err := s.Do(ctx, func(ctx context.Context, t orders.Tx) error {
		q := t.(*tx).q
		for _, id := range ids {
			ct, err := q.Exec(ctx, `
				INSERT INTO bowls(id, is_active, version, updated_at)
				VALUES ($1, FALSE, 1, $2)
				ON CONFLICT (id) DO NOTHING`, id, s.Now())
			if err != nil {
				return errors.Wrapf(err, "seed bowl %s", id)
			}
			created += int(ct.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

const bowlColumns = `id, is_active, version, updated_at`

func scanBowl(row pgx.Row) (orders.Bowl, error) {
	var b orders.Bowl
	err := row.Scan(&b.ID, &b.IsActive, &b.Version, &b.UpdatedAt)
	return b, err
}

const orderColumns = `id, bowl_id, customer_name, preferences, total_price,
	payment_status, payment_method, status, version, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o                 orders.Order
		payStatus, status string
		method            *string
	)
	err := row.Scan(&o.ID, &o.BowlID, &o.CustomerName, &o.Preferences, &o.TotalPrice,
		&payStatus, &method, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, err
	}
	o.PaymentStatus = orders.PaymentStatus(payStatus)
	o.Status = orders.Status(status)
	if method != nil {
		m := orders.PaymentMethod(*method)
		o.PaymentMethod = &m
	}
	return o, nil
}

func (s *Store) GetBowl(ctx context.Context, id string) (orders.Bowl, error) {
	b, err := scanBowl(s.DB.QueryRow(ctx, `SELECT `+bowlColumns+` FROM bowls WHERE id=$1`, id))
	if err != nil {
		return orders.Bowl{}, notFound(err, "bowl not found")
	}
	return b, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return orders.Order{}, notFound(err, "order not found")
	}
	return o, nil
}

func (s *Store) ActiveOrderForBowl(ctx context.Context, bowlID string) (*orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE bowl_id=$1 AND status <> 'completed'
		ORDER BY created_at DESC LIMIT 1`, bowlID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "active order for bowl")
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, q orders.ListQuery) ([]orders.Order, error) {
	statuses := make([]string, 0, len(q.Statuses))
	for _, st := range q.Statuses {
		statuses = append(statuses, string(st))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = orders.DefaultListLimit
	}
	dir := "DESC"
	if q.Sort == orders.OldestFirst {
		dir = "ASC"
	}

	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = ANY($1)
		ORDER BY created_at `+dir+`, id ASC
		LIMIT $2`, statuses, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	out := make([]orders.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		out = append(out, o)
	}
	return out, errors.Wrap(rows.Err(), "list orders")
}

func (s *Store) PaymentForOrder(ctx context.Context, orderID string) (orders.Payment, error) {
	var (
		p      orders.Payment
		method string
	)
	err := s.DB.QueryRow(ctx, `
		SELECT id, order_id, amount, payment_method, created_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.Amount, &method, &p.CreatedAt)
	if err != nil {
		return orders.Payment{}, notFound(err, "payment not found")
	}
	p.PaymentMethod = orders.PaymentMethod(method)
	return p, nil
}

// notFound maps pgx.ErrNoRows to NOT_FOUND and wraps anything else.
func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.CodeNotFound, msg)
	}
	return errors.Wrap(err, msg)
}

const uniqueViolation = "23505"

func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
