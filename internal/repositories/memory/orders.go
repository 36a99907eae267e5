package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/pagination"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

type orderRepository struct{ s *Store }

func (r orderRepository) Insert(ctx context.Context, order domain.Order) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.state.orders[order.ID]; exists {
		return conflict("orders.insert", "order %s already exists", order.ID)
	}
	number := strings.TrimSpace(order.OrderNumber)
	if _, taken := r.s.state.orderNumbers[number]; number != "" && taken {
		return conflict("orders.insert", "order number %s already exists", number)
	}
	intentID := strings.TrimSpace(order.PaymentIntentID)
	if _, taken := r.s.state.paymentIntents[intentID]; intentID != "" && taken {
		return conflict("orders.insert", "payment intent %s already has an order", intentID)
	}
	if number != "" {
		r.s.state.orderNumbers[number] = order.ID
	}
	if intentID != "" {
		r.s.state.paymentIntents[intentID] = order.ID
	}
	r.s.state.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.state.orders[order.ID]; !exists {
		return notFound("orders.update", "order %s not found", order.ID)
	}
	r.s.state.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	defer r.s.lock(ctx)()

	order, ok := r.s.state.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	defer r.s.lock(ctx)()

	if orderID, ok := r.s.state.paymentIntents[strings.TrimSpace(intentID)]; ok {
		if order, ok := r.s.state.orders[orderID]; ok {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, notFound("orders.find_by_intent", "no order for payment intent %s", intentID)
}

func (r orderRepository) FindRecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]domain.Order, error) {
	defer r.s.lock(ctx)()

	var out []domain.Order
	for _, order := range r.s.state.orders {
		if order.CustomerID == customerID && !order.CreatedAt.Before(since) {
			out = append(out, cloneOrder(order))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	unlock := r.s.lock(ctx)
	matches := make([]domain.Order, 0, len(r.s.state.orders))
	for _, order := range r.s.state.orders {
		if matchesFilter(order, filter) {
			matches = append(matches, cloneOrder(order))
		}
	}
	unlock()

	sortNewestFirst(matches)

	start := 0
	if !cursor.IsZero() {
		start = len(matches)
		for i, order := range matches {
			if isAfterCursor(order, cursor) {
				start = i
				break
			}
		}
	}

	end := start + pageSize
	page := domain.CursorPage[domain.Order]{}
	if end < len(matches) {
		last := matches[end-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	} else {
		end = len(matches)
	}
	page.Items = matches[start:end]
	return page, nil
}

func matchesFilter(order domain.Order, filter repositories.OrderListFilter) bool {
	if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
		return false
	}
	if len(filter.Status) > 0 && !containsValue(filter.Status, order.Status) {
		return false
	}
	if len(filter.PaymentStatus) > 0 && !containsValue(filter.PaymentStatus, order.PaymentStatus) {
		return false
	}
	return true
}

func containsValue[T comparable](values []T, target T) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// isAfterCursor reports whether order sorts strictly after the cursor in newest-first order.
func isAfterCursor(order domain.Order, cursor pagination.Cursor) bool {
	if order.CreatedAt.Equal(cursor.CreatedAt) {
		return order.ID < cursor.ID
	}
	return order.CreatedAt.Before(cursor.CreatedAt)
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	if order.Items != nil {
		out.Items = append([]domain.OrderItem(nil), order.Items...)
	}
	if order.BillingAddress != nil {
		addr := *order.BillingAddress
		out.BillingAddress = &addr
	}
	out.ShippedAt = cloneTime(order.ShippedAt)
	out.DeliveredAt = cloneTime(order.DeliveredAt)
	out.CompletedAt = cloneTime(order.CompletedAt)
	out.CancelledAt = cloneTime(order.CancelledAt)
	out.RefundedAt = cloneTime(order.RefundedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
