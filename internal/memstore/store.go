// Package memstore is an in-memory implementation of the order and bowl
// persistence used by tests and by STORE=memory development runs.
//
// A unit of work holds the store lock for its whole duration and mutates a
// cloned copy of the state, which replaces the live state only on commit.
// Transactions are therefore serializable.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
)

var (
	_ orders.UnitOfWork = (*Store)(nil)
	_ orders.Reader     = (*Store)(nil)
	_ orders.Seeder     = (*Store)(nil)
)

type state struct {
	bowls    map[string]orders.Bowl
	orders   map[string]orders.Order
	payments map[string]orders.Payment // by order id
}

func (s state) clone() state {
	c := state{
		bowls:    make(map[string]orders.Bowl, len(s.bowls)),
		orders:   make(map[string]orders.Order, len(s.orders)),
		payments: make(map[string]orders.Payment, len(s.payments)),
	}
	for k, v := range s.bowls {
		c.bowls[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

type Store struct {
	mu  sync.RWMutex
	st  state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: state{
			bowls:    map[string]orders.Bowl{},
			orders:   map[string]orders.Order{},
			payments: map[string]orders.Payment{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for UpdatedAt stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := &tx{st: s.st.clone(), now: s.now}
	if err := fn(ctx, work); err != nil {
		return err // work copy dropped = rollback
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work.st
	return nil
}

func (s *Store) SeedBowls(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, id := range ids {
		if _, ok := s.st.bowls[id]; ok {
			continue
		}
		s.st.bowls[id] = orders.Bowl{ID: id, Version: 1, UpdatedAt: s.now()}
		created++
	}
	return created, nil
}

func (s *Store) GetBowl(_ context.Context, id string) (orders.Bowl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.bowls[id]
	if !ok {
		return orders.Bowl{}, apperr.New(apperr.CodeNotFound, "bowl not found")
	}
	return b, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.st.orders[id]
	if !ok {
		return orders.Order{}, apperr.New(apperr.CodeNotFound, "order not found")
	}
	return o.Clone(), nil
}

func (s *Store) ActiveOrderForBowl(_ context.Context, bowlID string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *orders.Order
	for _, o := range s.st.orders {
		if o.BowlID != bowlID || o.Status == orders.StatusCompleted {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			c := o.Clone()
			latest = &c
		}
	}
	return latest, nil
}

func (s *Store) ListOrders(_ context.Context, q orders.ListQuery) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[orders.Status]bool, len(q.Statuses))
	for _, st := range q.Statuses {
		want[st] = true
	}
	out := make([]orders.Order, 0)
	for _, o := range s.st.orders {
		if want[o.Status] {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if q.Sort == orders.OldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	limit := q.Limit
	if limit <= 0 {
		limit = orders.DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PaymentForOrder(_ context.Context, orderID string) (orders.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.payments[orderID]
	if !ok {
		return orders.Payment{}, apperr.New(apperr.CodeNotFound, "payment not found")
	}
	return p, nil
}
