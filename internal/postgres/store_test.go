package postgres

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-bowls/internal/apperr"
	"github.com/ariefcatur/go-realtime-bowls/internal/orders"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore runs against a real database when POSTGRES_TEST_DSN is set.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	log, _ := logtest.NewNullLogger()
	require.NoError(t, Migrate(dsn, log))

	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE payments, orders, bowls`)
	require.NoError(t, err)

	s := New(pool)
	_, err = s.SeedBowls(ctx, []string{"bowl-A1", "bowl-A2"})
	require.NoError(t, err)
	return s
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://h/db", migrateURL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", migrateURL("pgx5://h/db"))
}

func createOrder(ctx context.Context, s *Store, bowl string) (orders.Order, error) {
	in := orders.NewOrder{
		BowlID:       bowl,
		CustomerName: "Budi",
		Preferences:  orders.Preferences{Broth: orders.BrothSoup, SpicyLevel: 3, Taste: orders.TasteSavory},
	}
	return orders.Within(ctx, s, func(ctx context.Context, tx orders.Tx) (orders.Order, error) {
		if _, err := tx.Bowls().Reserve(ctx, bowl); err != nil {
			return orders.Order{}, err
		}
		return tx.Orders().Create(ctx, orders.Build(in, time.Now().UTC()))
	})
}

func TestSeedIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.SeedBowls(ctx, []string{"bowl-A1", "bowl-A3"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLifecycleRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	o, err := createOrder(ctx, s, "bowl-A1")
	require.NoError(t, err)

	b, err := s.GetBowl(ctx, "bowl-A1")
	require.NoError(t, err)
	assert.True(t, b.IsActive)

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.BrothSoup, got.Preferences.Broth)
	assert.Nil(t, got.TotalPrice)

	err = s.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.Orders().SetPrice(ctx, o.ID, 15000); err != nil {
			return err
		}
		_, changed, err := tx.Bowls().Release(ctx, "bowl-A1")
		assert.True(t, changed)
		return err
	})
	require.NoError(t, err)

	for _, st := range []orders.Status{orders.StatusPreparing, orders.StatusServed} {
		require.NoError(t, s.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
			_, err := tx.Orders().AdvanceStatus(ctx, o.ID, st)
			return err
		}))
	}

	err = s.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
		paid, err := tx.Orders().ConfirmCashPayment(ctx, o.ID)
		if err != nil {
			return err
		}
		_, err = tx.Payments().Create(ctx, orders.Payment{
			ID: "pay-1", OrderID: paid.ID, Amount: *paid.TotalPrice,
			PaymentMethod: orders.PaymentCash, CreatedAt: paid.UpdatedAt,
		})
		return err
	})
	require.NoError(t, err)

	final, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, final.Status)
	assert.Equal(t, orders.PaymentPaid, final.PaymentStatus)
	require.NotNil(t, final.PaymentMethod)
	assert.Equal(t, orders.PaymentCash, *final.PaymentMethod)
	assert.Equal(t, int64(5), final.Version)

	p, err := s.PaymentForOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), p.Amount)

	active, err := s.ActiveOrderForBowl(ctx, "bowl-A1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestFailedUnitOfWorkRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Do(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.Bowls().Reserve(ctx, "bowl-A1"); err != nil {
			return err
		}
		_, err := tx.Orders().Create(ctx, orders.Order{ID: "x", BowlID: "bowl-missing"})
		return err
	})
	require.Error(t, err)

	b, err := s.GetBowl(ctx, "bowl-A1")
	require.NoError(t, err)
	assert.False(t, b.IsActive)
}

func TestConcurrentReservationsOnOneBowl(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		ok, confl atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := createOrder(ctx, s, "bowl-A2")
			switch {
			case err == nil:
				ok.Add(1)
			case apperr.CodeOf(err) == apperr.CodeConflict:
				confl.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 15, confl.Load())

	list, err := s.ListOrders(ctx, orders.ListQuery{Statuses: []orders.Status{orders.StatusWaiting}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetBowl(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = createOrder(ctx, s, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
