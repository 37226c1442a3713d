package orders

import (
	"time"

	"github.com/google/uuid"
)

type Entity string

const (
	EntityOrder Entity = "order"
	EntityBowl  Entity = "bowl"
)

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
)

// Envelope is one committed mutation with the entity's after-image. Version
// is the entity's own counter; consumers order by it, never by arrival.
type Envelope struct {
	EventID    string    `json:"event_id"`
	Entity     Entity    `json:"entity"`
	Operation  Operation `json:"operation"`
	EntityID   string    `json:"entity_id"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	Order      *Order    `json:"order,omitempty"`
	Bowl       *Bowl     `json:"bowl,omitempty"`
}

func OrderChanged(op Operation, o Order, producer, trace string) Envelope {
	after := o.Clone()
	return Envelope{
		EventID:    uuid.NewString(),
		Entity:     EntityOrder,
		Operation:  op,
		EntityID:   o.ID,
		Version:    o.Version,
		OccurredAt: o.UpdatedAt.UTC(),
		Producer:   producer,
		TraceID:    trace,
		Order:      &after,
	}
}

func BowlChanged(b Bowl, producer, trace string) Envelope {
	after := b
	return Envelope{
		EventID:    uuid.NewString(),
		Entity:     EntityBowl,
		Operation:  OpUpdate,
		EntityID:   b.ID,
		Version:    b.Version,
		OccurredAt: b.UpdatedAt.UTC(),
		Producer:   producer,
		TraceID:    trace,
		Bowl:       &after,
	}
}

// Key is the per-entity identity used for partitioning and view merging.
func (e Envelope) Key() string { return string(e.Entity) + ":" + e.EntityID }
