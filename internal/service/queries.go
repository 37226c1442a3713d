package service

import (
	"context"

	"github.com/ariefcatur/go-realtime-bowls/internal/auth"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	"github.com/ariefcatur/go-realtime-bowls/internal/realtime"
)

// Read-only operations go straight to the reader.

func (s *Service) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpGetOrder); err != nil {
		return orders.Order{}, err
	}
	if err := orders.ValidateID("orderId", id); err != nil {
		return orders.Order{}, err
	}
	return s.Reader.GetOrder(ctx, id)
}

func (s *Service) GetBowl(ctx context.Context, id string) (orders.Bowl, error) {
	if err := s.Policy.Authorize(ctx, auth.OpGetBowl); err != nil {
		return orders.Bowl{}, err
	}
	if err := orders.ValidateID("bowlId", id); err != nil {
		return orders.Bowl{}, err
	}
	return s.Reader.GetBowl(ctx, id)
}

// ActiveOrderForBowl returns nil when the bowl has no order in flight.
func (s *Service) ActiveOrderForBowl(ctx context.Context, bowlID string) (*orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpActiveOrderForBowl); err != nil {
		return nil, err
	}
	if err := orders.ValidateID("bowlId", bowlID); err != nil {
		return nil, err
	}
	return s.Reader.ActiveOrderForBowl(ctx, bowlID)
}

// ListKitchenQueue uses the kitchen topic's query, the same filter its live
// stream applies.
func (s *Service) ListKitchenQueue(ctx context.Context) ([]orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpListKitchenQueue); err != nil {
		return nil, err
	}
	return s.Reader.ListOrders(ctx, realtime.Kitchen.Query())
}

func (s *Service) ListCashierFeed(ctx context.Context) ([]orders.Order, error) {
	if err := s.Policy.Authorize(ctx, auth.OpListCashierFeed); err != nil {
		return nil, err
	}
	return s.Reader.ListOrders(ctx, realtime.Cashier.Query())
}

// Subscribe opens a reconciled stream for a topic. The kitchen and cashier
// topics carry the same data as their listings and need the same role.
func (s *Service) Subscribe(ctx context.Context, feed *realtime.Feed, t realtime.Topic) (*realtime.Stream, error) {
	if err := s.Policy.Authorize(ctx, auth.OpSubscribe); err != nil {
		return nil, err
	}
	switch t.Kind {
	case realtime.KindKitchen:
		if err := s.Policy.Authorize(ctx, auth.OpListKitchenQueue); err != nil {
			return nil, err
		}
	case realtime.KindCashier:
		if err := s.Policy.Authorize(ctx, auth.OpListCashierFeed); err != nil {
			return nil, err
		}
	}
	return feed.Open(ctx, t)
}
