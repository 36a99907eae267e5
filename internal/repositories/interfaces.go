package repositories

import (
	"context"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Coupons() CouponRepository
	Invoices() InvoiceRepository
	OrderTokens() OrderTokenRepository
	RateLimits() RateLimitRepository
	Blocklist() BlocklistRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one atomic boundary. Repository calls made with
// the ctx handed to fn join the transaction; nested RunInTx calls join the outer one.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates.
type OrderRepository interface {
	// Insert creates the order. It returns a conflict error when the ID or order number is taken.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	// FindRecentByCustomer returns orders of customerID created at or after since.
	FindRecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows admin order listings. Results are ordered by creation time, newest first.
type OrderListFilter struct {
	Status        []domain.OrderStatus
	PaymentStatus []domain.PaymentStatus
	CustomerID    string
	Pagination    domain.Pagination
}

// ProductRepository exposes the catalog fields order flows read and the atomic inventory adjustment.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustInventory applies relative deltas to stock and sales without reading current values.
	AdjustInventory(ctx context.Context, productID string, stockDelta, salesDelta int) error
	Upsert(ctx context.Context, product domain.Product) error
}

// CouponRepository exposes coupon lookups and the atomic usage counter.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	IncrementUsage(ctx context.Context, couponID string, delta int) error
	Upsert(ctx context.Context, coupon domain.Coupon) error
}

// InvoiceRepository persists invoices. Insert reports a conflict when the invoice number, or the
// order for an order-derived invoice, is already taken.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error)
	// ListPendingDueBefore returns up to limit PENDING invoices whose due date is before cutoff.
	ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID string, status domain.InvoiceStatus, updatedAt time.Time) error
}

// OrderToken maps a caller supplied idempotency token to the order it created.
type OrderToken struct {
	ID        string
	OrderID   string
	CreatedAt time.Time
}

// OrderTokenRepository stores order creation tokens with create-once semantics.
type OrderTokenRepository interface {
	Get(ctx context.Context, tokenID string) (OrderToken, error)
	// Create fails with a conflict error when the token already exists.
	Create(ctx context.Context, token OrderToken) error
}

// RateLimitMutation computes the next record from the current one. current is nil when the key has
// no record. Returning an error aborts the write.
type RateLimitMutation func(current *domain.RateLimitRecord) (domain.RateLimitRecord, error)

// RateLimitRepository applies fixed-window counter updates as one atomic read-check-write per key.
type RateLimitRepository interface {
	Apply(ctx context.Context, key string, ttl time.Duration, mutate RateLimitMutation) (domain.RateLimitRecord, error)
}

// BlocklistRepository stores network addresses rejected before rate accounting.
type BlocklistRepository interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
	Block(ctx context.Context, entry domain.BlockedAddress) error
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
