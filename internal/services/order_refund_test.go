package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

func TestRefundOrderRestoresInventory(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateOrder(ctx, CreateOrderInput{Actor: Actor{ID: "staff-1", Staff: true}, Payload: validPayload()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.product(t, "p1"); got.Stock != 8 || got.Sales != 2 {
		t.Fatalf("expected stock 8 sales 2 after order, got %d/%d", got.Stock, got.Sales)
	}

	refunded, err := f.service.RefundOrder(ctx, RefundCommand{OrderID: created.ID, Reason: "Damaged on arrival", ActorID: "staff-1"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != domain.OrderStatusRefunded || refunded.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("expected refunded order, got %s/%s", refunded.Status, refunded.PaymentStatus)
	}
	if refunded.RefundedAt == nil || refunded.RefundReason != "Damaged on arrival" {
		t.Fatalf("expected refund milestone and reason, got %v %q", refunded.RefundedAt, refunded.RefundReason)
	}
	if got := f.product(t, "p1"); got.Stock != 10 || got.Sales != 0 {
		t.Fatalf("expected stock 10 sales 0 after refund, got %d/%d", got.Stock, got.Sales)
	}
	if f.metrics.refunds != 1 {
		t.Fatalf("expected refund metric")
	}
	types := f.events.types()
	if types[len(types)-1] != orderEventRefunded {
		t.Fatalf("expected refunded event last, got %v", types)
	}
}

func TestRefundOrderConservesInventoryAcrossProducts(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	payload := validPayload()
	payload.Items = []OrderItem{
		{ProductID: "p1", Quantity: 3, Price: 500},
		{ProductID: "p2", Quantity: 2, Price: 250},
		{ProductID: "p1", VariantID: "xl", Quantity: 1, Price: 500},
	}
	payload.Subtotal = 2500
	payload.Total = 2500
	order, err := f.service.CreateOrder(ctx, CreateOrderInput{Actor: Actor{ID: "staff-1", Staff: true}, Payload: payload})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	initial := map[string]int{"p1": 10, "p2": 5}
	for id, want := range map[string]int{"p1": 6, "p2": 3} {
		got := f.product(t, id)
		if got.Stock != want || got.Stock+got.Sales != initial[id] {
			t.Fatalf("%s: stock %d sales %d", id, got.Stock, got.Sales)
		}
	}

	if _, err := f.service.RefundOrder(ctx, RefundCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	for id, want := range map[string]int{"p1": 10, "p2": 5} {
		if got := f.product(t, id); got.Stock != want || got.Sales != 0 {
			t.Fatalf("%s: expected stock %d sales 0, got %d/%d", id, want, got.Stock, got.Sales)
		}
	}
}

func TestRefundOrderAfterAdminEditRestoresOriginalInventory(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateOrder(ctx, CreateOrderInput{Actor: Actor{ID: "staff-1", Staff: true}, Payload: validPayload()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	form := editForm(created)
	form.Items = []OrderItem{{ProductID: "p1", ProductName: "Linen Shirt", Quantity: 7, Price: 500}}
	var validation *ValidationError
	if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.ID, Form: form, ActorID: "staff-1"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for item edit, got %v", err)
	}

	form = editForm(created)
	form.Notes = "Leave at reception"
	edited, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.ID, Form: form, ActorID: "staff-1"})
	if err != nil {
		t.Fatalf("edit notes: %v", err)
	}
	if edited.Items[0].Quantity != 2 {
		t.Fatalf("expected stored quantity 2, got %d", edited.Items[0].Quantity)
	}

	if _, err := f.service.RefundOrder(ctx, RefundCommand{OrderID: created.ID, ActorID: "staff-1"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := f.product(t, "p1"); got.Stock != 10 || got.Sales != 0 {
		t.Fatalf("expected stock 10 sales 0 after refund, got %d/%d", got.Stock, got.Sales)
	}
}

func TestRefundOrderKeepsCouponUsage(t *testing.T) {
	f := newOrderFixture(t)
	seedCoupon(t, f.store, domain.Coupon{ID: "c1", Code: "SAVE10", Active: true, DiscountType: domain.DiscountTypeFixed, DiscountValue: 100})
	payload := validPayload()
	payload.CouponCode = "SAVE10"
	payload.Total = 900

	order, err := f.service.CreateOrder(context.Background(), CreateOrderInput{Actor: Actor{ID: "staff-1", Staff: true}, Payload: payload})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.service.RefundOrder(context.Background(), RefundCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := f.coupon(t, "SAVE10").UsedCount; got != 1 {
		t.Fatalf("expected coupon usage to stay 1, got %d", got)
	}
}

func TestRefundOrderRequiresPaidOrder(t *testing.T) {
	f := newOrderFixture(t)
	order, err := f.service.ProcessOrderCreation(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.service.RefundOrder(context.Background(), RefundCommand{OrderID: order.ID})
	if !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("expected refund not allowed, got %v", err)
	}
	if ClassifyError(err) != ErrorKindBusinessRule {
		t.Fatalf("expected business rule kind, got %s", ClassifyError(err))
	}
	if got := f.product(t, "p1").Stock; got != 8 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestRefundOrderTwiceRestocksOnce(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	order, err := f.service.CreateOrder(ctx, CreateOrderInput{Actor: Actor{ID: "staff-1", Staff: true}, Payload: validPayload()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.service.RefundOrder(ctx, RefundCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := f.service.RefundOrder(ctx, RefundCommand{OrderID: order.ID}); !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("expected second refund rejected, got %v", err)
	}
	if got := f.product(t, "p1").Stock; got != 10 {
		t.Fatalf("expected stock 10, got %d", got)
	}
}

func TestRefundOrderCallsPaymentProvider(t *testing.T) {
	refunder := &stubRefunder{}
	f := newOrderFixture(t, func(deps *OrderServiceDeps) { deps.Payments = refunder })
	f.placeOrder(t, domain.Order{
		ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusDelivered, PaymentStatus: domain.PaymentStatusPaid,
		PaymentIntentID: "pi_42", Items: []OrderItem{{ProductID: "p2", Quantity: 1, Price: 250, Total: 250}},
	})

	if _, err := f.service.RefundOrder(context.Background(), RefundCommand{OrderID: "ord_1", Reason: "Customer request"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(refunder.calls) != 1 {
		t.Fatalf("expected one provider call, got %d", len(refunder.calls))
	}
	call := refunder.calls[0]
	if call.PaymentIntentID != "pi_42" || call.IdempotencyKey != "refund-ord_1" || call.Metadata["orderNumber"] != "ORD-1" {
		t.Fatalf("unexpected provider request %+v", call)
	}
	if got := f.product(t, "p2").Stock; got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}
}

func TestRefundOrderStopsWhenProviderFails(t *testing.T) {
	refunder := &stubRefunder{err: errors.New("card_declined")}
	f := newOrderFixture(t, func(deps *OrderServiceDeps) { deps.Payments = refunder })
	f.placeOrder(t, domain.Order{
		ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusCompleted, PaymentStatus: domain.PaymentStatusPaid,
		PaymentIntentID: "pi_42", Items: []OrderItem{{ProductID: "p2", Quantity: 1, Price: 250, Total: 250}},
	})

	_, err := f.service.RefundOrder(context.Background(), RefundCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrPaymentRefundFailed) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	if got := f.order(t, "ord_1"); got.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("order must stay paid, got %s", got.PaymentStatus)
	}
	if got := f.product(t, "p2").Stock; got != 5 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestRefundOrderSkipsDeletedProducts(t *testing.T) {
	f := newOrderFixture(t)
	f.placeOrder(t, domain.Order{
		ID: "ord_1", OrderNumber: "ORD-1", Status: domain.OrderStatusCompleted, PaymentStatus: domain.PaymentStatusPaid,
		Items: []OrderItem{
			{ProductID: "gone", Quantity: 4, Price: 10, Total: 40},
			{ProductID: "p1", Quantity: 1, Price: 500, Total: 500},
		},
	})

	order, err := f.service.RefundOrder(context.Background(), RefundCommand{OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if order.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", order.Status)
	}
	if got := f.product(t, "p1").Stock; got != 11 {
		t.Fatalf("expected stock 11, got %d", got)
	}
}

func TestRefundOrderValidatesInput(t *testing.T) {
	f := newOrderFixture(t)
	if _, err := f.service.RefundOrder(context.Background(), RefundCommand{}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.service.RefundOrder(context.Background(), RefundCommand{OrderID: "missing"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
