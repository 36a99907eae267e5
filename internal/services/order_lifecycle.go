package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/textutil"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {domain.OrderStatusCompleted, domain.OrderStatusRefunded},
	domain.OrderStatusCompleted:  {domain.OrderStatusRefunded},
}

// REFUNDED is reachable only through RefundOrder.
var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
	domain.PaymentStatusFailed:  {domain.PaymentStatusPending, domain.PaymentStatusPaid},
	domain.PaymentStatusPaid:    {domain.PaymentStatusRefunded},
}

// CanTransition reports whether the order may move from one status to another. Same-state moves
// are never legal.
func CanTransition(from, to OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[from], to)
}

// CanTransitionPayment reports whether the payment status may move from one value to another.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(paymentStatusTransitions[from], to)
}

// OrderForm is the full set of admin-editable order fields.
type OrderForm struct {
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	Customer        Customer
	Items           []OrderItem
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Discount        float64
	Total           float64
	Currency        string
	ShippingAddress Address
	BillingAddress  *Address
	Notes           string
	CancelReason    string
}

// UpdateOrderCommand edits an order and optionally advances its status.
type UpdateOrderCommand struct {
	OrderID string
	Form    OrderForm
	// ExpectedUpdatedAt rejects the edit when the stored order changed since it was read.
	ExpectedUpdatedAt *time.Time
	ActorID           string
}

// UpdateOrderStatusCommand requests a single status transition.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	Reason  string
	ActorID string
}

// UpdatePaymentStatusCommand changes the payment axis. The order is addressed by ID or by the
// payment intent recorded at checkout.
type UpdatePaymentStatusCommand struct {
	OrderID         string
	PaymentIntentID string
	PaymentStatus   PaymentStatus
	ActorID         string
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, invalidField("orderId", "Order id is required")
	}
	if !cmd.Status.Valid() {
		return Order{}, invalidField("status", "Status is not recognised")
	}
	if err := s.requireStaffBudget(ctx, cmd.ActorID); err != nil {
		return Order{}, err
	}

	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()
	var (
		order      Order
		prevStatus OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		prevStatus = current.Status
		if err := applyStatusTransition(&current, cmd.Status, cmd.Reason, actor, now); err != nil {
			return err
		}
		if err := s.orders.Update(txCtx, current); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.afterStatusChange(ctx, order, prevStatus, actor, now, strings.TrimSpace(cmd.Reason))
	return order, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, invalidField("orderId", "Order id is required")
	}
	if errs := ValidateOrderForm(cmd.Form); !errs.Empty() {
		return Order{}, errs.Err()
	}
	if err := s.requireStaffBudget(ctx, cmd.ActorID); err != nil {
		return Order{}, err
	}

	form := cmd.Form
	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()
	var (
		order      Order
		prevStatus OrderStatus
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if cmd.ExpectedUpdatedAt != nil && !current.UpdatedAt.Equal(*cmd.ExpectedUpdatedAt) {
			return fmt.Errorf("%w: order %s was updated at %s", ErrOrderConflict, orderID, current.UpdatedAt.Format(time.RFC3339Nano))
		}
		prevStatus = current.Status

		// Inventory was committed against the stored lines, so they cannot be edited.
		if !sameLineItems(current.Items, form.Items) {
			return invalidField("items", "Line items cannot be changed after the order is placed")
		}
		subtotal := itemsSubtotal(current.Items)
		total := domain.OrderTotal(subtotal, form.Tax, form.Shipping, form.Discount)
		if total < 0 {
			return invalidField("discount", "Discount cannot exceed subtotal plus tax and shipping")
		}

		// The transition check uses the stored status, never one implied by other edits.
		if form.Status != current.Status {
			if err := applyStatusTransition(&current, form.Status, form.CancelReason, actor, now); err != nil {
				return err
			}
		}
		if form.PaymentStatus != current.PaymentStatus {
			if err := checkPaymentTransition(current.PaymentStatus, form.PaymentStatus); err != nil {
				return err
			}
			current.PaymentStatus = form.PaymentStatus
		}

		current.Customer = Customer{
			Name:  textutil.StripMarkup(form.Customer.Name),
			Email: strings.TrimSpace(form.Customer.Email),
			Phone: strings.TrimSpace(form.Customer.Phone),
		}
		current.Subtotal = subtotal
		current.Tax = domain.RoundMoney(form.Tax)
		current.Shipping = domain.RoundMoney(form.Shipping)
		current.Discount = domain.RoundMoney(form.Discount)
		current.Total = total
		current.ShippingAddress = sanitizeAddress(form.ShippingAddress)
		if form.BillingAddress != nil {
			billing := sanitizeAddress(*form.BillingAddress)
			current.BillingAddress = &billing
		} else {
			current.BillingAddress = nil
		}
		if form.PaymentMethod != "" {
			current.PaymentMethod = form.PaymentMethod
		}
		if currency := strings.ToUpper(strings.TrimSpace(form.Currency)); currency != "" {
			current.Currency = currency
		}
		current.Notes = textutil.StripMarkup(form.Notes)
		current.UpdatedAt = now
		current.UpdatedBy = actor

		if err := s.orders.Update(txCtx, current); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventUpdated,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
	})
	if order.Status != prevStatus {
		s.afterStatusChange(ctx, order, prevStatus, actor, now, order.CancelReason)
	}
	return order, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	intentID := strings.TrimSpace(cmd.PaymentIntentID)
	if orderID == "" && intentID == "" {
		return Order{}, invalidField("orderId", "Order id or payment intent is required")
	}
	if !cmd.PaymentStatus.Valid() {
		return Order{}, invalidField("paymentStatus", "Payment status is not recognised")
	}
	if cmd.PaymentStatus == domain.PaymentStatusRefunded {
		return Order{}, invalidField("paymentStatus", "Use the refund operation to refund an order")
	}

	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()
	var (
		order    Order
		previous PaymentStatus
		changed  bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var (
			current Order
			err     error
		)
		if orderID != "" {
			current, err = s.orders.FindByID(txCtx, orderID)
		} else {
			current, err = s.orders.FindByPaymentIntent(txCtx, intentID)
		}
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		previous = current.PaymentStatus
		order = current
		// Provider webhooks are redelivered; repeating the current value is a no-op.
		if current.PaymentStatus == cmd.PaymentStatus {
			return nil
		}
		if err := checkPaymentTransition(current.PaymentStatus, cmd.PaymentStatus); err != nil {
			return err
		}
		current.PaymentStatus = cmd.PaymentStatus
		current.UpdatedAt = now
		current.UpdatedBy = actor
		if err := s.orders.Update(txCtx, current); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		order = current
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if changed {
		s.publishEvent(ctx, OrderEvent{
			Type:          orderEventPaymentChanged,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CurrentStatus: string(order.Status),
			ActorID:       actor,
			OccurredAt:    now,
			Metadata: map[string]any{
				"previousPaymentStatus": string(previous),
				"paymentStatus":         string(order.PaymentStatus),
			},
		})
		s.logger(ctx, "order.payment.changed", map[string]any{
			"order": order.ID,
			"from":  string(previous),
			"to":    string(order.PaymentStatus),
		})
	}
	return order, nil
}

func (s *orderService) afterStatusChange(ctx context.Context, order Order, prev OrderStatus, actor string, now time.Time, reason string) {
	s.metrics.StatusChanged(ctx, string(prev), string(order.Status))
	var metadata map[string]any
	if reason != "" {
		metadata = map[string]any{"reason": reason}
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})
	s.logger(ctx, "order.status.changed", map[string]any{
		"order": order.ID,
		"from":  string(prev),
		"to":    string(order.Status),
		"actor": actor,
	})
}

// applyStatusTransition moves order to target and stamps the milestone on first entry.
func applyStatusTransition(order *Order, target OrderStatus, reason, actor string, now time.Time) error {
	if !CanTransition(order.Status, target) {
		return &TransitionError{Field: "status", From: string(order.Status), To: string(target)}
	}
	order.Status = target
	stampMilestone(order, target, now)

	reason = textutil.StripMarkup(reason)
	switch target {
	case domain.OrderStatusCancelled:
		if reason != "" {
			order.CancelReason = reason
		}
	case domain.OrderStatusRefunded:
		if reason != "" {
			order.RefundReason = reason
		}
	}
	order.UpdatedAt = now
	order.UpdatedBy = actor
	return nil
}

// stampMilestone sets the milestone for status unless it is already recorded.
func stampMilestone(order *Order, status OrderStatus, now time.Time) {
	var slot **time.Time
	switch status {
	case domain.OrderStatusShipped:
		slot = &order.ShippedAt
	case domain.OrderStatusDelivered:
		slot = &order.DeliveredAt
	case domain.OrderStatusCompleted:
		slot = &order.CompletedAt
	case domain.OrderStatusCancelled:
		slot = &order.CancelledAt
	case domain.OrderStatusRefunded:
		slot = &order.RefundedAt
	default:
		return
	}
	if *slot == nil {
		*slot = timePtr(now)
	}
}

func checkPaymentTransition(from, to PaymentStatus) error {
	if to == domain.PaymentStatusRefunded {
		return invalidField("paymentStatus", "Use the refund operation to refund an order")
	}
	if !CanTransitionPayment(from, to) {
		return &TransitionError{Field: "payment status", From: string(from), To: string(to)}
	}
	return nil
}

func sanitizeAddress(addr Address) Address {
	return Address{
		FullName:     textutil.StripMarkup(addr.FullName),
		AddressLine1: textutil.StripMarkup(addr.AddressLine1),
		AddressLine2: textutil.StripMarkup(addr.AddressLine2),
		City:         textutil.StripMarkup(addr.City),
		State:        textutil.StripMarkup(addr.State),
		PostalCode:   strings.TrimSpace(addr.PostalCode),
		Country:      textutil.StripMarkup(addr.Country),
		Phone:        strings.TrimSpace(addr.Phone),
	}
}

// sameLineItems reports whether edited carries the same product, variant,
// quantity and unit price per line as stored, in the same order.
func sameLineItems(stored, edited []OrderItem) bool {
	if len(stored) != len(edited) {
		return false
	}
	for i := range stored {
		a, b := stored[i], edited[i]
		if strings.TrimSpace(a.ProductID) != strings.TrimSpace(b.ProductID) ||
			strings.TrimSpace(a.VariantID) != strings.TrimSpace(b.VariantID) ||
			a.Quantity != b.Quantity ||
			domain.RoundMoney(a.Price) != domain.RoundMoney(b.Price) {
			return false
		}
	}
	return true
}

func itemsSubtotal(items []OrderItem) float64 {
	var subtotal float64
	for _, item := range items {
		subtotal += domain.LineTotal(item.Quantity, item.Price)
	}
	return domain.RoundMoney(subtotal)
}

// requireStaffBudget rate limits back-office mutations per staff actor. An empty actor falls back
// to the client address.
func (s *orderService) requireStaffBudget(ctx context.Context, actorID string) error {
	if s.rateGuard == nil {
		return nil
	}
	return s.rateGuard.Require(ctx, RateLimitRequest{Identifier: staffRateLimitKey(actorID)})
}

func staffRateLimitKey(actorID string) string {
	if actorID = strings.TrimSpace(actorID); actorID == "" {
		return ""
	}
	return "admin:" + actorID
}
