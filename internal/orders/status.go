package orders

import "fmt"

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusServed    Status = "served"
	StatusCompleted Status = "completed"
)

// Transition names the operation allowed to move an order between statuses.
type Transition string

const (
	ByPricing Transition = "setPrice"
	ByKitchen Transition = "advanceStatus"
	ByPayment Transition = "confirmCashPayment"
)

// lifecycle is forward-only. Cash payment closes an order from any priced
// stage.
var lifecycle = map[Status]map[Status]Transition{
	StatusWaiting:   {StatusConfirmed: ByPricing},
	StatusConfirmed: {StatusPreparing: ByKitchen, StatusCompleted: ByPayment},
	StatusPreparing: {StatusServed: ByKitchen, StatusCompleted: ByPayment},
	StatusServed:    {StatusCompleted: ByPayment},
	StatusCompleted: {},
}

// CanTransition reports whether op may move an order from -> to.
func CanTransition(op Transition, from, to Status) bool {
	by, ok := lifecycle[from][to]
	return ok && by == op
}

func (s Status) Valid() bool {
	_, ok := lifecycle[s]
	return ok
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentQRIS PaymentMethod = "qris"
)
