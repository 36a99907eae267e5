package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

func TestRunInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Products().Upsert(ctx, domain.Product{ID: "p1", Stock: 10}))

	errAbort := errors.New("abort")
	err := store.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.Products().AdjustInventory(ctx, "p1", -3, 3))
		require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o1", OrderNumber: "ORD-1"}))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	product, err := store.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 10, product.Stock)
	require.Equal(t, 0, product.Sales)

	_, err = store.Orders().FindByID(ctx, "o1")
	requireNotFound(t, err)
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Products().Upsert(ctx, domain.Product{ID: "p1", Stock: 4}))

	require.Panics(t, func() {
		_ = store.RunInTx(ctx, func(ctx context.Context) error {
			_ = store.Products().AdjustInventory(ctx, "p1", -4, 4)
			panic("boom")
		})
	})

	product, err := store.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 4, product.Stock)
}

func TestRunInTxNestedJoinsOuter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Products().Upsert(ctx, domain.Product{ID: "p1", Stock: 1}))

	err := store.RunInTx(ctx, func(ctx context.Context) error {
		return store.RunInTx(ctx, func(ctx context.Context) error {
			return store.Products().AdjustInventory(ctx, "p1", 1, 0)
		})
	})
	require.NoError(t, err)

	product, err := store.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 2, product.Stock)
}

func TestOrderInsertRejectsDuplicateNumber(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o1", OrderNumber: "ORD-AAAA1111"}))

	err := store.Orders().Insert(ctx, domain.Order{ID: "o2", OrderNumber: "ORD-AAAA1111"})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsConflict())
}

func TestOrderInsertReservesPaymentIntent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o1", OrderNumber: "ORD-AAAA1111", PaymentIntentID: "pi_1"}))

	err := store.Orders().Insert(ctx, domain.Order{ID: "o2", OrderNumber: "ORD-BBBB2222", PaymentIntentID: "pi_1"})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsConflict())

	// The rejected insert must not leave its order number reserved.
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o3", OrderNumber: "ORD-BBBB2222"}))

	found, err := store.Orders().FindByPaymentIntent(ctx, "pi_1")
	require.NoError(t, err)
	require.Equal(t, "o1", found.ID)
}

func TestOrdersAreCopiedOnReadAndWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	order := domain.Order{ID: "o1", Items: []domain.OrderItem{{ProductID: "p1", Quantity: 1}}}
	require.NoError(t, store.Orders().Insert(ctx, order))

	order.Items[0].Quantity = 50
	stored, err := store.Orders().FindByID(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, 1, stored.Items[0].Quantity)

	stored.Items[0].Quantity = 7
	again, err := store.Orders().FindByID(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, 1, again.Items[0].Quantity)
}

func TestOrderListPaginatesNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		status := domain.OrderStatusPending
		if id == "c" {
			status = domain.OrderStatusCancelled
		}
		require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: id, Status: status, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	filter := repositories.OrderListFilter{
		Status:     []domain.OrderStatus{domain.OrderStatusPending},
		Pagination: domain.Pagination{PageSize: 2},
	}
	first, err := store.Orders().List(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, []string{"e", "d"}, orderIDs(first.Items))
	require.NotEmpty(t, first.NextPageToken)

	filter.Pagination.PageToken = first.NextPageToken
	second, err := store.Orders().List(ctx, filter)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, orderIDs(second.Items))
	require.Empty(t, second.NextPageToken)
}

func TestFindRecentByCustomer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "old", CustomerID: "u1", CreatedAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "new", CustomerID: "u1", CreatedAt: now.Add(-10 * time.Second)}))
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "other", CustomerID: "u2", CreatedAt: now}))

	orders, err := store.Orders().FindRecentByCustomer(ctx, "u1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"new"}, orderIDs(orders))
}

func TestCouponLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Coupons().Upsert(ctx, domain.Coupon{ID: "c1", Code: "save10", Active: true}))

	coupon, err := store.Coupons().FindByCode(ctx, " SAVE10 ")
	require.NoError(t, err)
	require.Equal(t, "c1", coupon.ID)

	require.NoError(t, store.Coupons().IncrementUsage(ctx, "c1", 1))
	coupon, err = store.Coupons().FindByCode(ctx, "save10")
	require.NoError(t, err)
	require.Equal(t, 1, coupon.UsedCount)

	_, err = store.Coupons().FindByCode(ctx, "missing")
	requireNotFound(t, err)
}

func TestRateLimitApplyIsAtomicPerKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	increment := func(current *domain.RateLimitRecord) (domain.RateLimitRecord, error) {
		next := domain.RateLimitRecord{Count: 1, LastRequest: 1}
		if current != nil {
			next.Count = current.Count + 1
		}
		return next, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RateLimits().Apply(ctx, "k", time.Minute, increment)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	record, err := store.RateLimits().Apply(ctx, "k", time.Minute, increment)
	require.NoError(t, err)
	require.Equal(t, 51, record.Count)
	require.Equal(t, "k", record.Key)
}

func TestSweepRateLimitsDropsExpiredEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	set := func(at time.Time) repositories.RateLimitMutation {
		return func(*domain.RateLimitRecord) (domain.RateLimitRecord, error) {
			return domain.RateLimitRecord{Count: 1, LastRequest: at.UnixMilli()}, nil
		}
	}
	_, err := store.RateLimits().Apply(ctx, "stale", time.Minute, set(now.Add(-2*time.Minute)))
	require.NoError(t, err)
	_, err = store.RateLimits().Apply(ctx, "fresh", time.Minute, set(now))
	require.NoError(t, err)

	require.Equal(t, 1, store.SweepRateLimits(now))
}

func TestBlocklist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Blocklist().Block(ctx, domain.BlockedAddress{Address: "203.0.113.9"}))

	blocked, err := store.Blocklist().IsBlocked(ctx, "203.0.113.9")
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = store.Blocklist().IsBlocked(ctx, "198.51.100.1")
	require.NoError(t, err)
	require.False(t, blocked)
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	require.True(t, repoErr.IsNotFound())
}

func orderIDs(orders []domain.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	return ids
}
