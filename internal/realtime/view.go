package realtime

import (
	"sort"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
)

type DeltaKind string

const (
	DeltaUpsert DeltaKind = "upsert"
	DeltaRemove DeltaKind = "remove"
)

// Delta is a change to a view produced by applying an envelope.
type Delta struct {
	Kind    DeltaKind     `json:"kind"`
	ID      string        `json:"id"`
	Version int64         `json:"version"`
	Order   *orders.Order `json:"order,omitempty"`
	Bowl    *orders.Bowl  `json:"bowl,omitempty"`
	// Evicted names an order pushed out of a full list window by this upsert.
	Evicted string `json:"evicted,omitempty"`
}

// View is a topic's materialized state. Every key remembers the highest
// version seen, including keys that left the view, so duplicates and late
// arrivals never regress it.
//
// List views hold the same window the snapshot query returns: at most limit
// orders, the first ones in display order. An order that would sort past a
// full window stays out; one that sorts inside it evicts the last. A slot
// freed by a removal is not refilled until the client re-snapshots.
type View struct {
	topic  Topic
	limit  int
	orders map[string]orders.Order
	bowl   *orders.Bowl
	seen   map[string]int64
}

func NewView(t Topic) *View {
	v := &View{
		topic:  t,
		orders: map[string]orders.Order{},
		seen:   map[string]int64{},
	}
	if t.Kind == KindKitchen || t.Kind == KindCashier {
		v.limit = t.Query().Limit
	}
	return v
}

func (v *View) Topic() Topic { return v.topic }

// Seed loads a snapshot taken with the topic's own query. Records older than
// what the view already knows are ignored.
func (v *View) Seed(snapshot []orders.Order) {
	for _, o := range snapshot {
		v.Apply(orders.OrderChanged(orders.OpUpdate, o, "", ""))
	}
}

func (v *View) SeedBowl(b orders.Bowl) {
	v.Apply(orders.BowlChanged(b, "", ""))
}

// Knows reports whether any version of the entity has been applied.
func (v *View) Knows(id string) bool {
	_, ok := v.seen[id]
	return ok
}

// Apply merges e and returns the resulting delta; ok is false when the view
// did not change.
func (v *View) Apply(e orders.Envelope) (d Delta, ok bool) {
	if !v.topic.Relevant(e) {
		return Delta{}, false
	}
	if last, known := v.seen[e.EntityID]; known && e.Version <= last {
		return Delta{}, false
	}
	v.seen[e.EntityID] = e.Version

	if e.Entity == orders.EntityBowl {
		b := *e.Bowl
		v.bowl = &b
		return Delta{Kind: DeltaUpsert, ID: b.ID, Version: b.Version, Bowl: &b}, true
	}

	o := e.Order.Clone()
	if v.topic.Admits(o) {
		_, present := v.orders[o.ID]
		var evicted string
		if !present && v.limit > 0 && len(v.orders) >= v.limit {
			last := v.last()
			if !v.before(o, last) {
				return Delta{}, false
			}
			delete(v.orders, last.ID)
			evicted = last.ID
		}
		v.orders[o.ID] = o
		return Delta{Kind: DeltaUpsert, ID: o.ID, Version: o.Version, Order: &o, Evicted: evicted}, true
	}
	if _, present := v.orders[o.ID]; present {
		delete(v.orders, o.ID)
		return Delta{Kind: DeltaRemove, ID: o.ID, Version: o.Version}, true
	}
	return Delta{}, false
}

func (v *View) Len() int { return len(v.orders) }

func (v *View) Get(id string) (orders.Order, bool) {
	o, ok := v.orders[id]
	return o.Clone(), ok
}

func (v *View) Bowl() *orders.Bowl {
	if v.bowl == nil {
		return nil
	}
	b := *v.bowl
	return &b
}

// Orders returns the view's orders in the topic's display order.
func (v *View) Orders() []orders.Order {
	out := make([]orders.Order, 0, len(v.orders))
	for _, o := range v.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return v.before(out[i], out[j]) })
	return out
}

// before is the display order, matching the snapshot query's ORDER BY.
func (v *View) before(a, b orders.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if v.topic.Sort() == orders.OldestFirst {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (v *View) last() orders.Order {
	var out orders.Order
	first := true
	for _, o := range v.orders {
		if first || v.before(out, o) {
			out, first = o, false
		}
	}
	return out
}
