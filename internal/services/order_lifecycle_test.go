package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
		domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
		domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
		domain.OrderStatusDelivered:  {domain.OrderStatusCompleted, domain.OrderStatusRefunded},
		domain.OrderStatusCompleted:  {domain.OrderStatusRefunded},
	}

	for _, from := range domain.OrderStatuses {
		for _, to := range domain.OrderStatuses {
			want := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					want = true
				}
			}
			require.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionPaymentTable(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{domain.PaymentStatusPending, domain.PaymentStatusPaid, true},
		{domain.PaymentStatusPending, domain.PaymentStatusFailed, true},
		{domain.PaymentStatusFailed, domain.PaymentStatusPaid, true},
		{domain.PaymentStatusFailed, domain.PaymentStatusPending, true},
		{domain.PaymentStatusPaid, domain.PaymentStatusRefunded, true},
		{domain.PaymentStatusPaid, domain.PaymentStatusPending, false},
		{domain.PaymentStatusPending, domain.PaymentStatusRefunded, false},
		{domain.PaymentStatusRefunded, domain.PaymentStatusPaid, false},
		{domain.PaymentStatusPaid, domain.PaymentStatusPaid, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.want, CanTransitionPayment(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStampMilestoneKeepsFirstValue(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	order := Order{ShippedAt: timePtr(first)}
	stampMilestone(&order, domain.OrderStatusShipped, later)
	require.True(t, order.ShippedAt.Equal(first))

	stampMilestone(&order, domain.OrderStatusDelivered, later)
	require.NotNil(t, order.DeliveredAt)
	require.True(t, order.DeliveredAt.Equal(later))

	stampMilestone(&order, domain.OrderStatusProcessing, later)
	require.Nil(t, order.CompletedAt)
}

func TestUpdateOrderStatusWalksLifecycle(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.placeOrder(t, domain.Order{ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPaid})

	steps := []OrderStatus{
		domain.OrderStatusProcessing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCompleted,
	}
	for _, status := range steps {
		f.clock.Advance(time.Hour)
		order, err := f.service.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_1", Status: status, ActorID: "staff-1"})
		require.NoError(t, err, status)
		require.Equal(t, status, order.Status)
		require.Equal(t, "staff-1", order.UpdatedBy)
	}

	stored := f.order(t, "ord_1")
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.True(t, stored.ShippedAt.Equal(start.Add(2*time.Hour)))
	require.True(t, stored.DeliveredAt.Equal(start.Add(3*time.Hour)))
	require.True(t, stored.CompletedAt.Equal(start.Add(4*time.Hour)))
	require.Nil(t, stored.CancelledAt)

	require.Equal(t, []string{
		"PENDING->PROCESSING", "PROCESSING->SHIPPED", "SHIPPED->DELIVERED", "DELIVERED->COMPLETED",
	}, f.metrics.transitions)
	require.Len(t, f.events.types(), 4)
}

func TestUpdateOrderStatusRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		from OrderStatus
		to   OrderStatus
	}{
		{"cancelled to shipped", domain.OrderStatusCancelled, domain.OrderStatusShipped},
		{"same state", domain.OrderStatusProcessing, domain.OrderStatusProcessing},
		{"skip ahead", domain.OrderStatusPending, domain.OrderStatusDelivered},
		{"backwards", domain.OrderStatusShipped, domain.OrderStatusPending},
		{"refunded is terminal", domain.OrderStatusRefunded, domain.OrderStatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t)
			f.placeOrder(t, domain.Order{ID: "ord_1", OrderNumber: "ORD-1", Status: tc.from, PaymentStatus: domain.PaymentStatusPending})

			_, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: tc.to})
			require.ErrorIs(t, err, ErrOrderInvalidTransition)
			var transition *TransitionError
			require.True(t, errors.As(err, &transition))
			require.Equal(t, string(tc.from), transition.From)
			require.Equal(t, string(tc.to), transition.To)

			require.Equal(t, tc.from, f.order(t, "ord_1").Status)
			require.Empty(t, f.events.types())
		})
	}
}

func TestUpdateOrderStatusRecordsCancelReason(t *testing.T) {
	f := newOrderFixture(t)
	f.placeOrder(t, domain.Order{ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusShipped, PaymentStatus: domain.PaymentStatusPaid})

	order, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1", Status: domain.OrderStatusCancelled, Reason: "<i>Lost</i> in transit",
	})
	require.NoError(t, err)
	require.Equal(t, "Lost in transit", order.CancelReason)
	require.NotNil(t, order.CancelledAt)
	require.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "nope", Status: domain.OrderStatusProcessing})
	require.ErrorIs(t, err, ErrOrderNotFound)
	require.Equal(t, ErrorKindNotFound, ClassifyError(err))
}

func TestUpdateOrderStatusValidatesInput(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: "LOST"})
	require.ErrorIs(t, err, ErrOrderInvalidInput)

	_, err = f.service.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{Status: domain.OrderStatusProcessing})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}

func editForm(order domain.Order) OrderForm {
	return OrderForm{
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		Customer:        order.Customer,
		Items:           order.Items,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Discount:        order.Discount,
		Total:           order.Total,
		Currency:        order.Currency,
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
	}
}

func TestUpdateOrderRecomputesTotals(t *testing.T) {
	f := newOrderFixture(t)
	created, err := f.service.ProcessOrderCreation(context.Background(), validPayload())
	require.NoError(t, err)

	form := editForm(created)
	form.Shipping = 120
	form.Discount = 20
	form.Total = 1
	form.Notes = "<b>Gift</b> wrap"
	form.Status = domain.OrderStatusProcessing

	f.clock.Advance(time.Minute)
	updated, err := f.service.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID: created.ID, Form: form, ExpectedUpdatedAt: &created.UpdatedAt, ActorID: "staff-1",
	})
	require.NoError(t, err)
	require.Equal(t, 1000.0, updated.Subtotal)
	require.Equal(t, 1100.0, updated.Total)
	require.Len(t, updated.Items, 1)
	require.Equal(t, 1000.0, updated.Items[0].Total)
	require.Equal(t, "Gift wrap", updated.Notes)
	require.Equal(t, domain.OrderStatusProcessing, updated.Status)
	require.Equal(t, created.OrderNumber, updated.OrderNumber)
	require.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	require.Equal(t, 8, f.product(t, "p1").Stock, "edits do not move inventory")
	require.Contains(t, f.events.types(), orderEventUpdated)
	require.Contains(t, f.events.types(), orderEventStatusChanged)
}

func TestUpdateOrderRejectsLineItemChanges(t *testing.T) {
	cases := map[string]func(*OrderForm){
		"quantity":   func(f *OrderForm) { f.Items[0].Quantity = 7 },
		"price":      func(f *OrderForm) { f.Items[0].Price = 1 },
		"product":    func(f *OrderForm) { f.Items[0].ProductID = "p2" },
		"added line": func(f *OrderForm) { f.Items = append(f.Items, OrderItem{ProductID: "p2", ProductName: "Canvas Tote", Quantity: 1, Price: 250}) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newOrderFixture(t)
			created, err := f.service.ProcessOrderCreation(context.Background(), validPayload())
			require.NoError(t, err)

			form := editForm(created)
			form.Items = append([]OrderItem(nil), created.Items...)
			mutate(&form)
			_, err = f.service.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: created.ID, Form: form})
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			require.Contains(t, validation.Fields, "items")

			stored := f.order(t, created.ID)
			require.Equal(t, created.Items, stored.Items)
			require.Equal(t, created.Total, stored.Total)
			require.Equal(t, 8, f.product(t, "p1").Stock)
		})
	}
}

func TestUpdateOrderRejectsStaleEdit(t *testing.T) {
	f := newOrderFixture(t)
	created, err := f.service.ProcessOrderCreation(context.Background(), validPayload())
	require.NoError(t, err)

	stale := created.UpdatedAt.Add(-time.Second)
	_, err = f.service.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: created.ID, Form: editForm(created), ExpectedUpdatedAt: &stale})
	require.ErrorIs(t, err, ErrOrderConflict)
	require.Equal(t, ErrorKindConflict, ClassifyError(err))
}

func TestUpdateOrderChecksTransitionAgainstStoredStatus(t *testing.T) {
	f := newOrderFixture(t)
	f.placeOrder(t, domain.Order{
		ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusCancelled, PaymentStatus: domain.PaymentStatusPending,
		Customer: Customer{Name: "Jane"}, Items: []OrderItem{{ProductID: "p1", ProductName: "Linen Shirt", Quantity: 1, Price: 500, Total: 500}},
		Subtotal: 500, Total: 500, ShippingAddress: testAddress(),
	})

	form := editForm(f.order(t, "ord_1"))
	form.Status = domain.OrderStatusShipped
	_, err := f.service.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: "ord_1", Form: form})
	require.ErrorIs(t, err, ErrOrderInvalidTransition)
	require.Equal(t, domain.OrderStatusCancelled, f.order(t, "ord_1").Status)
}

func TestUpdateOrderRejectsNegativeTotal(t *testing.T) {
	f := newOrderFixture(t)
	created, err := f.service.ProcessOrderCreation(context.Background(), validPayload())
	require.NoError(t, err)

	form := editForm(created)
	form.Discount = 5000
	_, err = f.service.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: created.ID, Form: form})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Contains(t, validation.Fields, "discount")
}

func TestUpdatePaymentStatus(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	f.placeOrder(t, domain.Order{ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending, PaymentIntentID: "pi_123"})

	order, err := f.service.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{PaymentIntentID: "pi_123", PaymentStatus: domain.PaymentStatusFailed})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, order.PaymentStatus)

	order, err = f.service.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: "ord_1", PaymentStatus: domain.PaymentStatusPaid})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)

	before := f.order(t, "ord_1")
	f.clock.Advance(time.Minute)
	again, err := f.service.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{PaymentIntentID: "pi_123", PaymentStatus: domain.PaymentStatusPaid})
	require.NoError(t, err, "redelivered webhook is a no-op")
	if diff := cmp.Diff(before, again); diff != "" {
		t.Fatalf("repeated status changed order (-want +got):\n%s", diff)
	}
	require.Len(t, f.events.types(), 2)

	_, err = f.service.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: "ord_1", PaymentStatus: domain.PaymentStatusPending})
	require.ErrorIs(t, err, ErrOrderInvalidTransition)

	_, err = f.service.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: "ord_1", PaymentStatus: domain.PaymentStatusRefunded})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}

func TestUpdatePaymentStatusUnknownIntent(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.service.UpdatePaymentStatus(context.Background(), UpdatePaymentStatusCommand{PaymentIntentID: "pi_missing", PaymentStatus: domain.PaymentStatusPaid})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrdersValidatesFilter(t *testing.T) {
	f := newOrderFixture(t)
	_, err := f.service.ListOrders(context.Background(), OrderListFilter{Status: []OrderStatus{"LOST"}})
	require.ErrorIs(t, err, ErrOrderInvalidInput)

	f.placeOrder(t, domain.Order{ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending})
	f.placeOrder(t, domain.Order{ID: "ord_2", OrderNumber: "ORD-2", Status: domain.OrderStatusShipped, PaymentStatus: domain.PaymentStatusPaid})
	page, err := f.service.ListOrders(context.Background(), OrderListFilter{Status: []OrderStatus{domain.OrderStatusShipped}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "ord_2", page.Items[0].ID)
}

func TestGetOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.placeOrder(t, domain.Order{ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusPending})

	order, err := f.service.GetOrder(context.Background(), " ord_1 ")
	require.NoError(t, err)
	require.Equal(t, "ORD-1", order.OrderNumber)

	_, err = f.service.GetOrder(context.Background(), "")
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}
