package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and is awaiting processing.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the order has reached the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCompleted indicates the order is closed after delivery.
	OrderStatusCompleted OrderStatus = "COMPLETED"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded indicates the order was refunded. Terminal.
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// Valid reports whether the status is one of the enumerated values.
func (s OrderStatus) Valid() bool {
	for _, status := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// PaymentStatus tracks the payment axis of an order independently from its lifecycle status.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentStatuses lists every payment status.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// Valid reports whether the payment status is one of the enumerated values.
func (s PaymentStatus) Valid() bool {
	for _, status := range PaymentStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// PaymentMethod identifies how the customer intends to pay.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodMpesa          PaymentMethod = "MPESA"
	PaymentMethodPayPal         PaymentMethod = "PAYPAL"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodBankTransfer   PaymentMethod = "BANK_TRANSFER"
)

// PaymentMethods lists the accepted payment methods.
var PaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodMpesa,
	PaymentMethodPayPal,
	PaymentMethodCashOnDelivery,
	PaymentMethodBankTransfer,
}

// Valid reports whether the payment method is accepted.
func (m PaymentMethod) Valid() bool {
	for _, method := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Address is a value snapshot; orders and invoices keep their own copy.
type Address struct {
	FullName     string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	Phone        string
}

// Customer captures the buyer details denormalised onto an order.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// OrderItem is embedded in an order. Name, SKU and price are captured at order time.
type OrderItem struct {
	ProductID   string
	ProductName string
	VariantID   string
	VariantName string
	SKU         string
	Quantity    int
	Price       float64
	Total       float64
}

// Order is the central aggregate of the order subsystem.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	Guest           bool
	Customer        Customer
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	Currency        string
	Items           []OrderItem
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Discount        float64
	Total           float64
	ShippingAddress Address
	BillingAddress  *Address
	CouponID        string
	CouponCode      string
	Notes           string
	CancelReason    string
	RefundReason    string
	IdempotencyKey  string
	CreatedBy       string
	UpdatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	RefundedAt      *time.Time
}

// Product holds the catalog fields touched by order operations.
type Product struct {
	ID        string
	Name      string
	SKU       string
	Price     float64
	Stock     int
	Sales     int
	Active    bool
	UpdatedAt time.Time
}

// DiscountType determines how a coupon value is applied.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// Coupon is a promotion code with optional expiry and usage cap.
type Coupon struct {
	ID             string
	Code           string
	Active         bool
	DiscountType   DiscountType
	DiscountValue  float64
	MinOrderAmount float64
	ExpiresAt      *time.Time
	MaxUsage       *int
	UsedCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InvoiceStatus tracks invoice settlement.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// Valid reports whether the invoice status is enumerated.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	default:
		return false
	}
}

// InvoiceItem is a line of an invoice copied from an order or authored directly.
type InvoiceItem struct {
	Description string
	SKU         string
	Quantity    int
	UnitPrice   float64
	Total       float64
}

// Invoice is issued from an order or authored by staff. It never references live order data.
type Invoice struct {
	ID              string
	InvoiceNumber   string
	OrderID         string
	OrderNumber     string
	Customer        Customer
	BillingAddress  Address
	ShippingAddress *Address
	Items           []InvoiceItem
	Currency        string
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Discount        float64
	Total           float64
	PaymentStatus   InvoiceStatus
	InvoiceDate     time.Time
	DueDate         time.Time
	Notes           string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RateLimitRecord is the fixed-window counter stored per key.
type RateLimitRecord struct {
	Key         string
	Count       int
	LastRequest int64
}

// BlockedAddress is a network address rejected before any rate accounting.
type BlockedAddress struct {
	Address   string
	Reason    string
	CreatedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
