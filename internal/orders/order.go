package orders

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/google/uuid"
)

// Build returns the initial record for a freshly reserved bowl.
func Build(in NewOrder, now time.Time) Order {
	return Order{
		ID:            uuid.NewString(),
		BowlID:        in.BowlID,
		CustomerName:  in.CustomerName,
		Preferences:   in.Preferences,
		PaymentStatus: PaymentPending,
		Status:        StatusWaiting,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// The transition methods below are the single definition of the lifecycle
// rules; every store implementation applies them to a locked row and persists
// the result. On error the receiver is left untouched.

func (o *Order) ApplyPrice(price int64, now time.Time) error {
	if !CanTransition(ByPricing, o.Status, StatusConfirmed) || o.TotalPrice != nil {
		return apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("order %s is %s, price can only be set while waiting", o.ID, o.Status))
	}
	p := price
	o.TotalPrice = &p
	o.Status = StatusConfirmed
	o.touch(now)
	return nil
}

func (o *Order) Advance(target Status, now time.Time) error {
	if !CanTransition(ByKitchen, o.Status, target) {
		return apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("order %s cannot move from %s to %s", o.ID, o.Status, target))
	}
	o.Status = target
	o.touch(now)
	return nil
}

func (o *Order) MarkPaidCash(now time.Time) error {
	if o.TotalPrice == nil {
		return apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("order %s has no price yet", o.ID))
	}
	if o.PaymentStatus == PaymentPaid {
		return apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("order %s is already paid", o.ID))
	}
	if !CanTransition(ByPayment, o.Status, StatusCompleted) {
		return apperr.New(apperr.CodeInvalidTransition,
			fmt.Sprintf("order %s is %s and cannot be completed", o.ID, o.Status))
	}
	m := PaymentCash
	o.PaymentStatus = PaymentPaid
	o.PaymentMethod = &m
	o.Status = StatusCompleted
	o.touch(now)
	return nil
}

func (o *Order) touch(now time.Time) {
	o.Version++
	o.UpdatedAt = now
}

// Clone returns a deep copy; pointer fields are not shared.
func (o Order) Clone() Order {
	if o.TotalPrice != nil {
		p := *o.TotalPrice
		o.TotalPrice = &p
	}
	if o.PaymentMethod != nil {
		m := *o.PaymentMethod
		o.PaymentMethod = &m
	}
	return o
}
