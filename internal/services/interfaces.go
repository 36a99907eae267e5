package services

import (
	"context"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentMethod      = domain.PaymentMethod
	Address            = domain.Address
	Customer           = domain.Customer
	Invoice            = domain.Invoice
	InvoiceItem        = domain.InvoiceItem
	SystemHealthReport = domain.SystemHealthReport
	OrderListFilter    = repositories.OrderListFilter
)

// OrderService owns order creation, the status state machine, and refunds.
type OrderService interface {
	ProcessOrderCreation(ctx context.Context, payload OrderCreationPayload) (Order, error)
	CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error)
	CheckoutFromCart(ctx context.Context, req CheckoutRequest) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
	RefundOrder(ctx context.Context, cmd RefundCommand) (Order, error)
}

// InvoiceService derives, records, and ages invoices.
type InvoiceService interface {
	CreateInvoiceFromOrder(ctx context.Context, cmd CreateInvoiceFromOrderCommand) (Invoice, error)
	CreateInvoice(ctx context.Context, form InvoiceForm) (Invoice, error)
	MarkOverdueInvoices(ctx context.Context, now time.Time) (int, error)
}

// RateGuard throttles mutating calls per caller.
type RateGuard interface {
	Require(ctx context.Context, req RateLimitRequest) error
}

// SystemService exposes operational metadata such as health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers such as listing caches.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// PaymentRefunder issues refunds with the payment service provider.
type PaymentRefunder interface {
	RefundPayment(ctx context.Context, req PaymentRefundRequest) (PaymentRefundResult, error)
}

// PaymentRefundRequest identifies the captured payment to refund in full.
type PaymentRefundRequest struct {
	PaymentIntentID string
	IdempotencyKey  string
	Reason          string
	Metadata        map[string]string
}

// PaymentRefundResult reports the provider refund reference.
type PaymentRefundResult struct {
	RefundID string
	Status   string
}

// InvoiceArchiver stores an immutable copy of issued invoices.
type InvoiceArchiver interface {
	ArchiveInvoice(ctx context.Context, invoice Invoice) (string, error)
}

// OrderMetrics records order counters. Implementations must be safe for concurrent use.
type OrderMetrics interface {
	OrderCreated(ctx context.Context, source string)
	StatusChanged(ctx context.Context, from, to string)
	OrderRefunded(ctx context.Context)
	RateLimited(ctx context.Context, blocked bool)
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) OrderCreated(context.Context, string)          {}
func (noopOrderMetrics) StatusChanged(context.Context, string, string) {}
func (noopOrderMetrics) OrderRefunded(context.Context)                 {}
func (noopOrderMetrics) RateLimited(context.Context, bool)             {}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noopLogger(context.Context, string, map[string]any) {}
