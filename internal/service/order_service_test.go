package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderSnapshotsBeats(t *testing.T) {
	f := newFixture()
	a := f.beat("Night Drive", 1000)
	b := f.beat("Sunset Trap", 1500)

	order, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:  f.user.ID,
		BeatIDs: []int64{b.ID, a.ID},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2500), order.TotalAmount)
	assert.Equal(t, order.ItemsTotal(), order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentMethodStripe, order.PaymentMethod)
	assert.Regexp(t, `^FS-\d{8}-\d{6}$`, order.OrderNumber)

	require.Len(t, order.Items, 2)
	assert.Equal(t, b.ID, order.Items[0].BeatID)
	assert.Equal(t, "Sunset Trap", order.Items[0].ItemName)
	assert.Equal(t, int64(1500), order.Items[0].UnitPrice)
	assert.Equal(t, 1, order.Items[0].Quantity)

	// Creating an order leaves availability alone
	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(a.ID).Status)
	assert.Equal(t, 1, f.publisher.count(models.EventTypeOrderCreated))

	// A later price change does not touch the snapshot
	changed := f.mem.Beat(a.ID)
	changed.Price = 9999
	require.NoError(t, f.mem.UpdateBeat(context.Background(), &changed))

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), stored.TotalAmount)
	assert.Equal(t, stored.ItemsTotal(), stored.TotalAmount)
}

func TestCreateOrderRejections(t *testing.T) {
	f := newFixture()
	available := f.beat("Available", 1000)
	sold := f.mem.AddBeat(models.Beat{Title: "Sold Out", Price: 1000, Status: models.BeatStatusSold})

	tests := []struct {
		name string
		req  CreateOrderRequest
		kind apperr.Kind
		msg  string
	}{
		{"empty", CreateOrderRequest{UserID: f.user.ID}, apperr.KindValidation, "at least one beat"},
		{"duplicate", CreateOrderRequest{UserID: f.user.ID, BeatIDs: []int64{available.ID, available.ID}}, apperr.KindValidation, "more than once"},
		{"bad method", CreateOrderRequest{UserID: f.user.ID, BeatIDs: []int64{available.ID}, PaymentMethod: "BITCOIN"}, apperr.KindValidation, "payment method"},
		{"unknown beat", CreateOrderRequest{UserID: f.user.ID, BeatIDs: []int64{available.ID, 999}}, apperr.KindNotFound, "999"},
		{"unavailable beat", CreateOrderRequest{UserID: f.user.ID, BeatIDs: []int64{available.ID, sold.ID}}, apperr.KindConflict, "Sold Out"},
		{"unknown user", CreateOrderRequest{UserID: 999, BeatIDs: []int64{available.ID}}, apperr.KindNotFound, "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.orders.CreateOrder(context.Background(), &req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, apperr.Message(err), tt.msg)
		})
	}

	assert.Equal(t, 0, f.mem.OrderCount())
	assert.Equal(t, 0, f.publisher.count(models.EventTypeOrderCreated))
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	f := newFixture()
	beat := f.beat("Loop", 1000)
	req := &CreateOrderRequest{UserID: f.user.ID, BeatIDs: []int64{beat.ID}, IdempotencyKey: "checkout-1"}

	first, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orders.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.mem.OrderCount())

	other := f.mem.AddUser(models.User{Username: "other", Email: "other@fullsound.test"})
	_, err = f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: other.ID, BeatIDs: []int64{beat.ID}, IdempotencyKey: "checkout-1",
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCreateOrderRetriesNumberCollision(t *testing.T) {
	f := newFixture()
	beat := f.beat("Collide", 1000)

	fixed := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	f.orders.numbers.now = func() time.Time { return fixed }

	taken := NewOrderNumberGenerator()
	taken.now = func() time.Time { return fixed }
	require.NoError(t, f.mem.CreateOrder(context.Background(), &models.Order{
		OrderNumber: taken.Next(), UserID: f.user.ID, Status: models.OrderStatusPending,
	}))

	order, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{UserID: f.user.ID, BeatIDs: []int64{beat.ID}})
	require.NoError(t, err)
	assert.Equal(t, taken.Next(), order.OrderNumber)
}

func TestOrderNumbersAreDistinctWithinOneMillisecond(t *testing.T) {
	g := NewOrderNumberGenerator()
	fixed := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		n := g.Next()
		assert.False(t, seen[n], "duplicate number %s", n)
		assert.Regexp(t, `^FS-20250314-\d{6}$`, n)
		seen[n] = true
	}
}

func TestUpdateStatusCompletedSellsBeats(t *testing.T) {
	f := newFixture()
	a := f.beat("A", 1000)
	b := f.beat("B", 1500)
	order := f.order(a.ID, b.ID)
	ctx := context.Background()

	_, err := f.orders.UpdateStatus(ctx, order.ID, "processing", "admin")
	require.NoError(t, err)
	updated, err := f.orders.UpdateStatus(ctx, order.ID, "COMPLETED", "admin")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	assert.Equal(t, models.BeatStatusSold, f.mem.Beat(a.ID).Status)
	assert.Equal(t, models.BeatStatusSold, f.mem.Beat(b.ID).Status)
	assert.Equal(t, 2, f.publisher.count(models.EventTypeOrderStatusChanged))
	assert.Empty(t, f.locker.held)
}

func TestUpdateStatusCancelReleasesSoldBeats(t *testing.T) {
	f := newFixture()
	a := f.beat("A", 1000)
	b := f.beat("B", 1500)
	order := f.order(a.ID, b.ID)
	ctx := context.Background()

	for _, s := range []string{"PROCESSING", "COMPLETED", "CANCELLED"} {
		_, err := f.orders.UpdateStatus(ctx, order.ID, s, "admin")
		require.NoError(t, err)
	}

	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(a.ID).Status)
	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(b.ID).Status)
}

func TestUpdateStatusReleaseLeavesOtherStatuses(t *testing.T) {
	f := newFixture()
	reserved := f.beat("Reserved", 1000)
	inactive := f.beat("Inactive", 1000)
	order := f.order(reserved.ID, inactive.ID)
	ctx := context.Background()

	require.NoError(t, f.mem.UpdateBeatStatus(ctx, reserved.ID, models.BeatStatusReserved))
	require.NoError(t, f.mem.UpdateBeatStatus(ctx, inactive.ID, models.BeatStatusInactive))

	_, err := f.orders.UpdateStatus(ctx, order.ID, "CANCELLED", "admin")
	require.NoError(t, err)

	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(reserved.ID).Status)
	assert.Equal(t, models.BeatStatusInactive, f.mem.Beat(inactive.ID).Status)
}

func TestUpdateStatusRejectsIllegalTransitions(t *testing.T) {
	f := newFixture()
	beat := f.beat("A", 1000)
	order := f.order(beat.ID)
	ctx := context.Background()

	_, err := f.orders.UpdateStatus(ctx, order.ID, "COMPLETED", "admin")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(beat.ID).Status)

	_, err = f.orders.UpdateStatus(ctx, order.ID, "CANCELLED", "admin")
	require.NoError(t, err)
	_, err = f.orders.UpdateStatus(ctx, order.ID, "PENDING", "admin")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.orders.UpdateStatus(ctx, order.ID, "SHIPPED", "admin")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.orders.UpdateStatus(ctx, 999, "CANCELLED", "admin")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	f := newFixture()
	beat := f.beat("A", 1000)
	order := f.order(beat.ID)

	updated, err := f.orders.UpdateStatus(context.Background(), order.ID, "PENDING", "admin")
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, updated.Status)
	assert.Equal(t, 0, f.publisher.count(models.EventTypeOrderStatusChanged))
}

func TestUpdateStatusRollsBackOnBeatFailure(t *testing.T) {
	f := newFixture()
	a := f.beat("A", 1000)
	b := f.beat("B", 1000)
	order := f.order(a.ID, b.ID)
	ctx := context.Background()

	_, err := f.orders.UpdateStatus(ctx, order.ID, "PROCESSING", "admin")
	require.NoError(t, err)

	f.mem.FailBeatStatusUpdate = map[int64]error{b.ID: errors.New("disk full")}
	_, err = f.orders.UpdateStatus(ctx, order.ID, "COMPLETED", "admin")
	require.Error(t, err)

	stored, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, stored.Status)
	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(a.ID).Status)
}

func TestUpdateStatusFallsBackWhenLockerFails(t *testing.T) {
	f := newFixture()
	beat := f.beat("A", 1000)
	order := f.order(beat.ID)
	f.locker.err = errors.New("redis down")

	updated, err := f.orders.UpdateStatus(context.Background(), order.ID, "CANCELLED", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
}

func TestListOrders(t *testing.T) {
	f := newFixture()
	first := f.order(f.beat("A", 1000).ID)
	second := f.order(f.beat("B", 1000).ID)
	other := f.mem.AddUser(models.User{Username: "other", Email: "other@fullsound.test"})
	_, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{UserID: other.ID, BeatIDs: []int64{f.beat("C", 1000).ID}})
	require.NoError(t, err)

	mine, err := f.orders.ListOrdersForUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := f.orders.ListAllOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byNumber, err := f.orders.GetOrderByNumber(context.Background(), first.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byNumber.ID)

	_, err = f.orders.GetOrderByNumber(context.Background(), "FS-00000000-000000")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestConcurrentCreateOrderWithSameIdempotencyKey(t *testing.T) {
	f := newFixture()
	beat := f.beat("Loop", 1000)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]int64, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
				UserID: f.user.ID, BeatIDs: []int64{beat.ID}, IdempotencyKey: "double-click",
			})
			errs[i] = err
			if order != nil {
				ids[i] = order.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, f.mem.OrderCount())
}

func TestConcurrentCreateOrdersOnSameBeat(t *testing.T) {
	f := newFixture()
	beat := f.beat("Shared", 1000)
	other := f.mem.AddUser(models.User{Username: "other", Email: "other@fullsound.test"})

	var wg sync.WaitGroup
	orders := make([]*models.Order, 2)
	errs := make([]error, 2)
	for i, userID := range []int64{f.user.ID, other.ID} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			orders[i], errs[i] = f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
				UserID: userID, BeatIDs: []int64{beat.ID},
			})
		}(i, userID)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, orders[0].OrderNumber, orders[1].OrderNumber)
	assert.Equal(t, 2, f.mem.OrderCount())
	// creation does not reserve; the beat is claimed when an order completes
	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(beat.ID).Status)
}

func TestUpdateStatusCancelKeepsBeatOfCompletedOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	beat := f.beat("A", 1000)
	abandoned := f.order(beat.ID)
	paid := f.order(beat.ID)

	for _, s := range []string{"PROCESSING", "COMPLETED"} {
		_, err := f.orders.UpdateStatus(ctx, paid.ID, s, "admin")
		require.NoError(t, err)
	}
	_, err := f.orders.UpdateStatus(ctx, abandoned.ID, "CANCELLED", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.BeatStatusSold, f.mem.Beat(beat.ID).Status)

	_, err = f.orders.UpdateStatus(ctx, paid.ID, "REFUNDED", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.BeatStatusAvailable, f.mem.Beat(beat.ID).Status)
}
