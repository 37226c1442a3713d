// Package service is the transaction coordinator: every operation passes the
// access gate and validation, runs its linked writes in one unit of work and
// publishes the committed after-images.
package service

import (
	"context"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/auth"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher receives envelopes after commit. Failures are logged, never
// returned to the caller: the mutation is already durable.
type Publisher interface {
	Publish(ctx context.Context, evs ...orders.Envelope) error
}

type Service struct {
	UoW       orders.UnitOfWork
	Reader    orders.Reader
	Publisher Publisher
	Policy    auth.Policy
	Log       logrus.FieldLogger
	Producer  string // service name stamped on envelopes
	Now       func() time.Time
}

type traceKey struct{}

// WithTrace attaches a request id that is copied into emitted envelopes.
func WithTrace(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceFrom(ctx context.Context) string {
	s, _ := ctx.Value(traceKey{}).(string)
	return s
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateOrder reserves the bowl and creates the waiting order in the same
// unit of work.
func (s *Service) CreateOrder(ctx context.Context, in orders.NewOrder) (orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpCreateOrder); err != nil {
		return orders.Order{}, err
	}
	in, err := orders.ValidateNewOrder(in)
	if err != nil {
		return orders.Order{}, err
	}

	var bowl orders.Bowl
	order, err := orders.Within(ctx, s.UoW, func(ctx context.Context, tx orders.Tx) (orders.Order, error) {
		b, err := tx.Bowls().Reserve(ctx, in.BowlID)
		if err != nil {
			return orders.Order{}, err
		}
		bowl = b
		return tx.Orders().Create(ctx, orders.Build(in, s.now()))
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.Log.WithFields(logrus.Fields{"order_id": order.ID, "bowl_id": bowl.ID}).Info("order created, bowl reserved")
	s.publish(ctx,
		orders.BowlChanged(bowl, s.Producer, traceFrom(ctx)),
		orders.OrderChanged(orders.OpInsert, order, s.Producer, traceFrom(ctx)),
	)
	return order, nil
}

// SetPrice confirms the order and returns its bowl to circulation in the same
// unit of work. The bowl is free from here on even though the order keeps
// moving through the kitchen.
func (s *Service) SetPrice(ctx context.Context, orderID string, price int64) (orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpSetPrice); err != nil {
		return orders.Order{}, err
	}
	if err := orders.ValidateID("orderId", orderID); err != nil {
		return orders.Order{}, err
	}
	if err := orders.ValidatePrice(price); err != nil {
		return orders.Order{}, err
	}

	var (
		bowl     orders.Bowl
		released bool
	)
	order, err := orders.Within(ctx, s.UoW, func(ctx context.Context, tx orders.Tx) (orders.Order, error) {
		o, err := tx.Orders().SetPrice(ctx, orderID, price)
		if err != nil {
			return orders.Order{}, err
		}
		bowl, released, err = tx.Bowls().Release(ctx, o.BowlID)
		if err != nil {
			return orders.Order{}, err
		}
		return o, nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.Log.WithFields(logrus.Fields{
		"order_id": order.ID, "bowl_id": order.BowlID, "price": price, "released": released,
	}).Info("order priced")
	evs := []orders.Envelope{orders.OrderChanged(orders.OpUpdate, order, s.Producer, traceFrom(ctx))}
	if released {
		evs = append(evs, orders.BowlChanged(bowl, s.Producer, traceFrom(ctx)))
	}
	s.publish(ctx, evs...)
	return order, nil
}

// AdvanceStatus moves a confirmed order to preparing, or preparing to served.
func (s *Service) AdvanceStatus(ctx context.Context, orderID string, target orders.Status) (orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpAdvanceStatus); err != nil {
		return orders.Order{}, err
	}
	if err := orders.ValidateID("orderId", orderID); err != nil {
		return orders.Order{}, err
	}
	if !target.Valid() {
		return orders.Order{}, apperr.Validation(map[string]string{"status": "unknown status"})
	}

	order, err := orders.Within(ctx, s.UoW, func(ctx context.Context, tx orders.Tx) (orders.Order, error) {
		return tx.Orders().AdvanceStatus(ctx, orderID, target)
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.Log.WithFields(logrus.Fields{"order_id": order.ID, "status": order.Status}).Info("order advanced")
	s.publish(ctx, orders.OrderChanged(orders.OpUpdate, order, s.Producer, traceFrom(ctx)))
	return order, nil
}

// ConfirmCashPayment records the cash payment and completes the order in the
// same unit of work.
func (s *Service) ConfirmCashPayment(ctx context.Context, orderID string) (orders.Payment, orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpConfirmCashPayment); err != nil {
		return orders.Payment{}, orders.Order{}, err
	}
	if err := orders.ValidateID("orderId", orderID); err != nil {
		return orders.Payment{}, orders.Order{}, err
	}

	var payment orders.Payment
	order, err := orders.Within(ctx, s.UoW, func(ctx context.Context, tx orders.Tx) (orders.Order, error) {
		o, err := tx.Orders().ConfirmCashPayment(ctx, orderID)
		if err != nil {
			return orders.Order{}, err
		}
		payment, err = tx.Payments().Create(ctx, orders.Payment{
			ID:            uuid.NewString(),
			OrderID:       o.ID,
			Amount:        *o.TotalPrice,
			PaymentMethod: orders.PaymentCash,
			CreatedAt:     o.UpdatedAt,
		})
		if err != nil {
			return orders.Order{}, err
		}
		return o, nil
	})
	if err != nil {
		return orders.Payment{}, orders.Order{}, err
	}

	s.Log.WithFields(logrus.Fields{
		"order_id": order.ID, "payment_id": payment.ID, "amount": payment.Amount,
	}).Info("cash payment confirmed")
	s.publish(ctx, orders.OrderChanged(orders.OpUpdate, order, s.Producer, traceFrom(ctx)))
	return payment, order, nil
}

func (s *Service) publish(ctx context.Context, evs ...orders.Envelope) {
	if s.Publisher == nil {
		return
	}
	// detach from request cancellation; the commit already happened
	if err := s.Publisher.Publish(context.WithoutCancel(ctx), evs...); err != nil {
		s.Log.WithError(err).WithField("events", len(evs)).Error("publish change events")
	}
}
