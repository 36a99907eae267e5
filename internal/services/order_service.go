package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventUpdated        = "order.updated"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"
	orderEventRefunded       = "order.refunded"

	orderIDPrefix = "ord_"

	defaultDuplicateWindow = 60 * time.Second
	defaultOrderCurrency   = "KES"
)

// OrderSettings tunes order creation.
type OrderSettings struct {
	NumberPrefix    string
	DuplicateWindow time.Duration
	// AllowOversell disables the stock sufficiency check so stock may go negative.
	AllowOversell bool
	Currency      string
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Coupons     repositories.CouponRepository
	Tokens      repositories.OrderTokenRepository
	UnitOfWork  repositories.UnitOfWork
	RateGuard   RateGuard
	Payments    PaymentRefunder
	Events      OrderEventPublisher
	Metrics     OrderMetrics
	Settings    OrderSettings
	Clock       func() time.Time
	IDGenerator func() string
	// NumberGenerator overrides the random order number source.
	NumberGenerator func() (string, error)
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	coupons    repositories.CouponRepository
	tokens     repositories.OrderTokenRepository
	unitOfWork repositories.UnitOfWork
	rateGuard  RateGuard
	payments   PaymentRefunder
	events     OrderEventPublisher
	metrics    OrderMetrics
	settings   OrderSettings
	clock      func() time.Time
	newID      func() string
	newNumber  func() (string, error)
	logger     func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	settings := deps.Settings
	if strings.TrimSpace(settings.NumberPrefix) == "" {
		settings.NumberPrefix = defaultOrderNumberPrefix
	}
	if settings.DuplicateWindow <= 0 {
		settings.DuplicateWindow = defaultDuplicateWindow
	}
	settings.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	if settings.Currency == "" {
		settings.Currency = defaultOrderCurrency
	}

	numberGen := deps.NumberGenerator
	if numberGen == nil {
		numberGen = NewCodeGenerator(settings.NumberPrefix)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		coupons:    deps.Coupons,
		tokens:     deps.Tokens,
		unitOfWork: unit,
		rateGuard:  deps.RateGuard,
		payments:   deps.Payments,
		events:     deps.Events,
		metrics:    metrics,
		settings:   settings,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		newNumber: numberGen,
		logger:    logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, invalidField("orderId", "Order id is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, invalidField("status", fmt.Sprintf("Unknown status %q", status))
		}
	}
	for _, status := range filter.PaymentStatus {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, invalidField("paymentStatus", fmt.Sprintf("Unknown payment status %q", status))
		}
	}
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return page, nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

// aggregateQuantities sums quantities per product, keeping first-seen order.
func aggregateQuantities(items []OrderItem) ([]string, map[string]int) {
	ids := make([]string, 0, len(items))
	quantities := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if _, seen := quantities[id]; !seen {
			ids = append(ids, id)
		}
		quantities[id] += item.Quantity
	}
	return ids, quantities
}

func cloneOrderItems(items []OrderItem) []OrderItem {
	if items == nil {
		return nil
	}
	return append([]OrderItem(nil), items...)
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	copied := *addr
	return &copied
}

func timePtr(t time.Time) *time.Time {
	return &t
}
