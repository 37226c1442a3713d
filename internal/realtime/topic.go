// Package realtime distributes committed changes to subscribers. Each topic
// owns one filter that serves both the snapshot query and the live stream.
package realtime

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
)

type Kind string

const (
	KindKitchen Kind = "kitchen"
	KindCashier Kind = "cashier"
	KindOrder   Kind = "order"
	KindBowl    Kind = "bowl"
)

type Topic struct {
	Kind Kind
	ID   string // order or bowl id for tracker topics
}

var (
	Kitchen = Topic{Kind: KindKitchen}
	Cashier = Topic{Kind: KindCashier}
)

func OrderTopic(id string) Topic { return Topic{Kind: KindOrder, ID: id} }
func BowlTopic(id string) Topic  { return Topic{Kind: KindBowl, ID: id} }

var (
	kitchenStatuses = []orders.Status{orders.StatusConfirmed, orders.StatusPreparing}
	cashierStatuses = []orders.Status{orders.StatusWaiting, orders.StatusConfirmed, orders.StatusPreparing, orders.StatusServed}
)

// ParseTopic accepts "kitchen", "cashier", "order:<id>" and "bowl:<id>".
func ParseTopic(s string) (Topic, error) {
	switch s {
	case string(KindKitchen):
		return Kitchen, nil
	case string(KindCashier):
		return Cashier, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if ok && id != "" {
		switch Kind(kind) {
		case KindOrder:
			return OrderTopic(id), nil
		case KindBowl:
			return BowlTopic(id), nil
		}
	}
	return Topic{}, fmt.Errorf("unknown topic %q", s)
}

func (t Topic) String() string {
	if t.ID != "" {
		return string(t.Kind) + ":" + t.ID
	}
	return string(t.Kind)
}

// Statuses is the status set of a list topic; nil for tracker topics.
func (t Topic) Statuses() []orders.Status {
	switch t.Kind {
	case KindKitchen:
		return slices.Clone(kitchenStatuses)
	case KindCashier:
		return slices.Clone(cashierStatuses)
	}
	return nil
}

// Sort is the display order of a list topic: the kitchen works its queue
// oldest first, the cashier sees new orders on top.
func (t Topic) Sort() orders.SortOrder {
	if t.Kind == KindKitchen {
		return orders.OldestFirst
	}
	return orders.NewestFirst
}

// Query is the snapshot query for a list topic.
func (t Topic) Query() orders.ListQuery {
	return orders.ListQuery{Statuses: t.Statuses(), Sort: t.Sort(), Limit: orders.DefaultListLimit}
}

// Relevant reports whether an envelope concerns this topic at all.
func (t Topic) Relevant(e orders.Envelope) bool {
	switch t.Kind {
	case KindKitchen, KindCashier:
		return e.Entity == orders.EntityOrder && e.Order != nil
	case KindOrder:
		return e.Entity == orders.EntityOrder && e.Order != nil && e.EntityID == t.ID
	case KindBowl:
		return e.Entity == orders.EntityBowl && e.Bowl != nil && e.EntityID == t.ID
	}
	return false
}

// Admits reports whether the order belongs in this topic's view.
func (t Topic) Admits(o orders.Order) bool {
	switch t.Kind {
	case KindKitchen:
		return slices.Contains(kitchenStatuses, o.Status)
	case KindCashier:
		return slices.Contains(cashierStatuses, o.Status)
	case KindOrder:
		return o.ID == t.ID
	}
	return false
}
