package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/memstore"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T, buf int) (*Hub, *logtest.Hook) {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	return NewHub(buf, log), hook
}

func TestHubRoutesByTopic(t *testing.T) {
	hub, _ := newHub(t, 8)
	kitchen := hub.Subscribe(Kitchen)
	tracker := hub.Subscribe(OrderTopic("o1"))
	bowl := hub.Subscribe(BowlTopic("bowl-A1"))

	require.NoError(t, hub.Publish(context.Background(),
		ev(orders.OpInsert, order("o2", orders.StatusWaiting, 1, t0)),
		orders.BowlChanged(orders.Bowl{ID: "bowl-A1", IsActive: true, Version: 2}, "t", ""),
	))

	assert.Len(t, kitchen.C, 1, "list topics see every order event")
	assert.Len(t, tracker.C, 0)
	assert.Len(t, bowl.C, 1)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub, hook := newHub(t, 2)
	slow := hub.Subscribe(Cashier)
	fast := hub.Subscribe(Cashier)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), ev(orders.OpUpdate, order("o1", orders.StatusWaiting, i, t0))))
		<-fast.C
	}

	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, 2, n, "buffered events are still delivered before close")
	assert.True(t, slow.Dropped())
	assert.Equal(t, 1, hub.Len())
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "dropped slow subscriber")
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	hub, _ := newHub(t, 4)
	a := hub.Subscribe(Kitchen)
	b := hub.Subscribe(Cashier)

	hub.Unsubscribe(a)
	_, open := <-a.C
	assert.False(t, open)
	assert.False(t, a.Dropped())
	hub.Unsubscribe(a) // second call is harmless

	hub.Close()
	_, open = <-b.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.Len())
}

func TestHubConcurrentPublish(t *testing.T) {
	hub, _ := newHub(t, 1024)
	sub := hub.Subscribe(Cashier)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := int64(1); i <= 50; i++ {
				_ = hub.Publish(context.Background(), ev(orders.OpUpdate, order("o", orders.StatusWaiting, i, t0)))
			}
		}(w)
	}
	wg.Wait()
	assert.Len(t, sub.C, 400)
}

// --- relay ---

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *memDedup) FirstSeen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func message(t *testing.T, e orders.Envelope) kafkago.Message {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return kafkago.Message{Key: orders.PartitionKey(e), Value: b}
}

func TestRelayDedupsRedelivery(t *testing.T) {
	hub, _ := newHub(t, 8)
	sub := hub.Subscribe(Cashier)
	log, _ := logtest.NewNullLogger()
	r := &Relay{Sink: hub, Dedup: &memDedup{seen: map[string]bool{}}, Log: log}

	e := ev(orders.OpInsert, order("o1", orders.StatusWaiting, 1, t0))
	require.NoError(t, r.HandleMessage(context.Background(), message(t, e)))
	require.NoError(t, r.HandleMessage(context.Background(), message(t, e)))

	require.Len(t, sub.C, 1)
	got := <-sub.C
	assert.Equal(t, e.EventID, got.EventID)
	assert.Equal(t, "o1", got.Order.ID)
}

func TestRelayFallsBackWithoutDedup(t *testing.T) {
	hub, _ := newHub(t, 8)
	sub := hub.Subscribe(Cashier)
	log, hook := logtest.NewNullLogger()
	r := &Relay{Sink: hub, Dedup: &memDedup{err: errors.New("redis down")}, Log: log}

	e := ev(orders.OpInsert, order("o1", orders.StatusWaiting, 1, t0))
	require.NoError(t, r.HandleMessage(context.Background(), message(t, e)))
	assert.Len(t, sub.C, 1)
	assert.Contains(t, hook.LastEntry().Message, "dedup unavailable")
}

func TestRelaySkipsPoisonMessages(t *testing.T) {
	hub, _ := newHub(t, 8)
	sub := hub.Subscribe(Cashier)
	log, hook := logtest.NewNullLogger()
	r := &Relay{Sink: hub, Log: log}

	assert.NoError(t, r.HandleMessage(context.Background(), kafkago.Message{Value: []byte("{not json")}))
	assert.NoError(t, r.HandleMessage(context.Background(), kafkago.Message{Value: []byte(`{"event_id":"x"}`)}))
	assert.Len(t, sub.C, 0)
	assert.Len(t, hook.AllEntries(), 2)
}

// --- feed ---

func TestFeedSnapshotThenDeltas(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.SeedBowls(ctx, []string{"bowl-A1", "bowl-A2"})
	require.NoError(t, err)

	create := func(bowl string) orders.Order {
		o := orders.Build(orders.NewOrder{BowlID: bowl, CustomerName: "c"}, time.Now())
		require.NoError(t, store.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
			_, err := tx.Orders().Create(ctx, o)
			return err
		}))
		return o
	}
	price := func(id string) orders.Order {
		var out orders.Order
		require.NoError(t, store.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
			var err error
			out, err = tx.Orders().SetPrice(ctx, id, 5000)
			return err
		}))
		return out
	}

	first := price(create("bowl-A1").ID)
	hub, _ := newHub(t, 8)
	feed := &Feed{Hub: hub, Reader: store}

	stream, err := feed.Open(ctx, Kitchen)
	require.NoError(t, err)
	defer stream.Close()
	require.Equal(t, 1, stream.View.Len())

	// a duplicate of what the snapshot already shows changes nothing
	require.NoError(t, hub.Publish(ctx, ev(orders.OpUpdate, first)))
	second := price(create("bowl-A2").ID)
	require.NoError(t, hub.Publish(ctx, ev(orders.OpUpdate, second)))

	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	d, ok, err := stream.Next(wctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DeltaUpsert, d.Kind)
	assert.Equal(t, second.ID, d.ID)
	assert.Equal(t, 2, stream.View.Len())
}

func TestFeedReconcilesEarlyEventsForUnknownOrders(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.SeedBowls(ctx, []string{"bowl-A1"})
	require.NoError(t, err)

	o := orders.Build(orders.NewOrder{BowlID: "bowl-A1", CustomerName: "c"}, time.Now())
	var confirmed, preparing, served orders.Order
	require.NoError(t, store.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		var err error
		if confirmed, err = tx.Orders().SetPrice(ctx, o.ID, 5000); err != nil {
			return err
		}
		if preparing, err = tx.Orders().AdvanceStatus(ctx, o.ID, orders.StatusPreparing); err != nil {
			return err
		}
		served, err = tx.Orders().AdvanceStatus(ctx, o.ID, orders.StatusServed)
		return err
	}))
	_ = confirmed

	hub, _ := newHub(t, 8)
	// The preparing event is still in flight when the stream opens; the
	// snapshot (served) no longer lists the order.
	stub := &lateReader{Reader: store, before: func() {
		_ = hub.Publish(ctx, ev(orders.OpUpdate, preparing))
	}}
	stream, err := (&Feed{Hub: hub, Reader: stub}).Open(ctx, Kitchen)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, hub.Publish(ctx, ev(orders.OpUpdate, served)))
	wctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, ok, err := stream.Next(wctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Equal(t, 0, stream.View.Len(), "served order must not reappear in the kitchen queue")
}

func TestFeedReconcilesLateEventsAfterOpen(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.SeedBowls(ctx, []string{"bowl-A1"})
	require.NoError(t, err)

	o := orders.Build(orders.NewOrder{BowlID: "bowl-A1", CustomerName: "c"}, time.Now())
	var preparing orders.Order
	require.NoError(t, store.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		if _, err := tx.Orders().SetPrice(ctx, o.ID, 5000); err != nil {
			return err
		}
		var err error
		if preparing, err = tx.Orders().AdvanceStatus(ctx, o.ID, orders.StatusPreparing); err != nil {
			return err
		}
		_, err = tx.Orders().AdvanceStatus(ctx, o.ID, orders.StatusServed)
		return err
	}))

	hub, _ := newHub(t, 8)
	stream, err := (&Feed{Hub: hub, Reader: store}).Open(ctx, Kitchen)
	require.NoError(t, err)
	defer stream.Close()
	require.Equal(t, 0, stream.View.Len())

	// the preparing publish loses the race against the stream opening
	require.NoError(t, hub.Publish(ctx, ev(orders.OpUpdate, preparing)))

	wctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, ok, err := stream.Next(wctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
	assert.Equal(t, 0, stream.View.Len(), "served order must not reappear in the kitchen queue")
}

func TestFeedAdmitsNewOrdersAfterOpen(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	_, err := store.SeedBowls(ctx, []string{"bowl-A1"})
	require.NoError(t, err)

	hub, _ := newHub(t, 8)
	stream, err := (&Feed{Hub: hub, Reader: store}).Open(ctx, Cashier)
	require.NoError(t, err)
	defer stream.Close()

	o := orders.Build(orders.NewOrder{BowlID: "bowl-A1", CustomerName: "c"}, time.Now())
	var priced orders.Order
	require.NoError(t, store.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		var err error
		priced, err = tx.Orders().SetPrice(ctx, o.ID, 5000)
		return err
	}))
	// insert event delivered after the store already moved on
	require.NoError(t, hub.Publish(ctx, ev(orders.OpInsert, o), ev(orders.OpUpdate, priced)))

	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	d, ok, err := stream.Next(wctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DeltaUpsert, d.Kind)
	require.NotNil(t, d.Order)
	assert.Equal(t, orders.StatusConfirmed, d.Order.Status)
	assert.Equal(t, priced.Version, d.Version)
	assert.Equal(t, 1, stream.View.Len())
}

type lateReader struct {
	orders.Reader
	before func()
}

func (r *lateReader) ListOrders(ctx context.Context, q orders.ListQuery) ([]orders.Order, error) {
	out, err := r.Reader.ListOrders(ctx, q)
	r.before()
	return out, err
}
