package orders

import "context"

// BowlRegistry tracks bowl availability. It only exists on a Tx handle: the
// registry never commits on its own.
type BowlRegistry interface {
	// Reserve marks an available bowl active. NOT_FOUND for unknown ids,
	// CONFLICT when the bowl is already active.
	Reserve(ctx context.Context, bowlID string) (Bowl, error)
	// Release marks the bowl available. Releasing an available bowl is a
	// no-op and reports changed=false.
	Release(ctx context.Context, bowlID string) (b Bowl, changed bool, err error)
}

type OrderStore interface {
	Create(ctx context.Context, o Order) (Order, error)
	SetPrice(ctx context.Context, orderID string, price int64) (Order, error)
	AdvanceStatus(ctx context.Context, orderID string, target Status) (Order, error)
	ConfirmCashPayment(ctx context.Context, orderID string) (Order, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p Payment) (Payment, error)
}

// Tx is the transactional handle handed to a unit of work.
type Tx interface {
	Bowls() BowlRegistry
	Orders() OrderStore
	Payments() PaymentStore
}

// UnitOfWork runs fn inside one atomic transaction: everything fn did is
// committed when it returns nil and rolled back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Within is Do with a result value.
func Within[T any](ctx context.Context, uow UnitOfWork, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var out T
	err := uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

type SortOrder int

const (
	NewestFirst SortOrder = iota
	OldestFirst
)

// ListQuery selects orders by status; Statuses must come from the same topic
// filter the live stream uses.
type ListQuery struct {
	Statuses []Status
	Sort     SortOrder
	Limit    int
}

const DefaultListLimit = 50

// Reader serves read-only queries outside any unit of work.
type Reader interface {
	GetBowl(ctx context.Context, id string) (Bowl, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	// ActiveOrderForBowl returns the most recent order for the bowl whose
	// status is still before completed, or nil.
	ActiveOrderForBowl(ctx context.Context, bowlID string) (*Order, error)
	ListOrders(ctx context.Context, q ListQuery) ([]Order, error)
	PaymentForOrder(ctx context.Context, orderID string) (Payment, error)
}

// Seeder provisions the bootstrap bowl inventory; existing ids are left alone.
type Seeder interface {
	SeedBowls(ctx context.Context, ids []string) (created int, err error)
}
