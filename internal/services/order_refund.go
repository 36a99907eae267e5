package services

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/textutil"
)

// RefundCommand refunds a paid order in full.
type RefundCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// RefundOrder marks a PAID order refunded and returns its units to stock. Coupon usage stays consumed.
// When the order carries a payment intent the provider refund is issued before the database changes.
func (s *orderService) RefundOrder(ctx context.Context, cmd RefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, invalidField("orderId", "Order id is required")
	}
	reason := textutil.StripMarkup(cmd.Reason)
	if len([]rune(reason)) > maxReasonLength {
		return Order{}, invalidField("reason", fmt.Sprintf("Must be at most %d characters", maxReasonLength))
	}
	if err := s.requireStaffBudget(ctx, cmd.ActorID); err != nil {
		return Order{}, err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		return Order{}, fmt.Errorf("%w: order %s payment is %s", ErrRefundNotAllowed, order.ID, order.PaymentStatus)
	}

	if order.PaymentIntentID != "" && s.payments != nil {
		refund, err := s.payments.RefundPayment(ctx, PaymentRefundRequest{
			PaymentIntentID: order.PaymentIntentID,
			IdempotencyKey:  "refund-" + order.ID,
			Reason:          reason,
			Metadata: map[string]string{
				"orderId":     order.ID,
				"orderNumber": order.OrderNumber,
			},
		})
		if err != nil {
			s.logger(ctx, "order.refund.provider_failed", map[string]any{"order": order.ID, "error": err.Error()})
			return Order{}, fmt.Errorf("%w: %v", ErrPaymentRefundFailed, err)
		}
		s.logger(ctx, "order.refund.provider_succeeded", map[string]any{"order": order.ID, "refund": refund.RefundID, "status": refund.Status})
	}

	actor := strings.TrimSpace(cmd.ActorID)
	now := s.now()
	prevStatus := order.Status
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		// Re-checked inside the transaction so concurrent refunds restock once.
		if current.PaymentStatus != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: order %s payment is %s", ErrRefundNotAllowed, current.ID, current.PaymentStatus)
		}
		prevStatus = current.Status

		productIDs, quantities := aggregateQuantities(current.Items)
		restock := make([]string, 0, len(productIDs))
		for _, productID := range productIDs {
			if _, err := s.products.FindByID(txCtx, productID); err != nil {
				if isRepositoryNotFound(err) {
					s.logger(ctx, "order.refund.product_missing", map[string]any{"order": current.ID, "product": productID})
					continue
				}
				return mapRepositoryError(err, ErrProductNotFound)
			}
			restock = append(restock, productID)
		}

		current.Status = domain.OrderStatusRefunded
		current.PaymentStatus = domain.PaymentStatusRefunded
		if reason != "" {
			current.RefundReason = reason
		}
		stampMilestone(&current, domain.OrderStatusRefunded, now)
		current.UpdatedAt = now
		current.UpdatedBy = actor

		if err := s.orders.Update(txCtx, current); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		for _, productID := range restock {
			q := quantities[productID]
			if err := s.products.AdjustInventory(txCtx, productID, q, -q); err != nil {
				return mapRepositoryError(err, ErrProductNotFound)
			}
		}
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.metrics.OrderRefunded(ctx)
	s.metrics.StatusChanged(ctx, string(prevStatus), string(order.Status))
	var metadata map[string]any
	if reason != "" {
		metadata = map[string]any{"reason": reason}
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventRefunded,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})
	s.logger(ctx, "order.refunded", map[string]any{"order": order.ID, "actor": actor, "from": string(prevStatus)})
	return order, nil
}
