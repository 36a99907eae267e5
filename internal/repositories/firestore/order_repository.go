package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/pagination"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

const (
	ordersCollection         = "orders"
	orderNumbersCollection   = "orderNumbers"
	paymentIntentsCollection = "paymentIntents"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	CustomerID      string              `firestore:"customerId"`
	Guest           bool                `firestore:"guest"`
	Customer        customerDocument    `firestore:"customer"`
	Status          string              `firestore:"status"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	PaymentIntentID string              `firestore:"paymentIntentId,omitempty"`
	Currency        string              `firestore:"currency"`
	Items           []orderItemDocument `firestore:"items"`
	Subtotal        float64             `firestore:"subtotal"`
	Tax             float64             `firestore:"tax"`
	Shipping        float64             `firestore:"shipping"`
	Discount        float64             `firestore:"discount"`
	Total           float64             `firestore:"total"`
	ShippingAddress addressDocument     `firestore:"shippingAddress"`
	BillingAddress  *addressDocument    `firestore:"billingAddress,omitempty"`
	CouponID        string              `firestore:"couponId,omitempty"`
	CouponCode      string              `firestore:"couponCode,omitempty"`
	Notes           string              `firestore:"notes,omitempty"`
	CancelReason    string              `firestore:"cancelReason,omitempty"`
	RefundReason    string              `firestore:"refundReason,omitempty"`
	IdempotencyKey  string              `firestore:"idempotencyKey,omitempty"`
	CreatedBy       string              `firestore:"createdBy,omitempty"`
	UpdatedBy       string              `firestore:"updatedBy,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ShippedAt       *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time          `firestore:"deliveredAt,omitempty"`
	CompletedAt     *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
	RefundedAt      *time.Time          `firestore:"refundedAt,omitempty"`
}

type orderItemDocument struct {
	ProductID   string  `firestore:"productId"`
	ProductName string  `firestore:"productName"`
	VariantID   string  `firestore:"variantId,omitempty"`
	VariantName string  `firestore:"variantName,omitempty"`
	SKU         string  `firestore:"sku,omitempty"`
	Quantity    int     `firestore:"quantity"`
	Price       float64 `firestore:"price"`
	Total       float64 `firestore:"total"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone,omitempty"`
}

type addressDocument struct {
	FullName     string `firestore:"fullName"`
	AddressLine1 string `firestore:"addressLine1"`
	AddressLine2 string `firestore:"addressLine2,omitempty"`
	City         string `firestore:"city"`
	State        string `firestore:"state,omitempty"`
	PostalCode   string `firestore:"postalCode,omitempty"`
	Country      string `firestore:"country"`
	Phone        string `firestore:"phone,omitempty"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository persists orders into the orders collection. Order numbers and payment intents
// are reserved in orderNumbers and paymentIntents so each maps to exactly one order.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
	intents  *pfirestore.BaseRepository[orderNumberDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil),
		intents:  pfirestore.NewBaseRepository[orderNumberDocument](provider, paymentIntentsCollection, nil),
	}, nil
}

// Insert creates the order with its number and payment intent reservations atomically.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	number := strings.TrimSpace(order.OrderNumber)
	if orderID == "" || number == "" {
		return errors.New("order insert: id and order number are required")
	}
	reservation := orderNumberDocument{OrderID: orderID, CreatedAt: order.CreatedAt.UTC()}
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.numbers.Create(ctx, number, reservation); err != nil {
			return err
		}
		if intentID := strings.TrimSpace(order.PaymentIntentID); intentID != "" {
			if err := r.intents.Create(ctx, intentID, reservation); err != nil {
				return err
			}
		}
		return r.orders.Create(ctx, orderID, encodeOrder(order))
	})
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order update: id is required")
	}
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		// Set would silently create a missing order.
		if _, err := r.orders.Get(ctx, orderID); err != nil {
			return err
		}
		return r.orders.Set(ctx, orderID, encodeOrder(order))
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

func (r *OrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, notFoundError("orders.find_by_payment_intent", "payment intent id is empty")
	}
	reservation, err := r.intents.Get(ctx, intentID)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, reservation.Data.OrderID)
}

func (r *OrderRepository) FindRecentByCustomer(ctx context.Context, customerID string, since time.Time) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", strings.TrimSpace(customerID)).
			Where("createdAt", ">=", since.UTC())
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// List returns orders newest first. Status filters use Firestore "in" queries, which require
// composite indexes on (status, createdAt) and (paymentStatus, createdAt).
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	pageSize := filter.Pagination.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultOrderPageSize
	case pageSize > maxOrderPageSize:
		pageSize = maxOrderPageSize
	}

	var cursor pagination.Cursor
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		cursor = decoded
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.Status) > 0 {
			values := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				values = append(values, string(status))
			}
			q = q.Where("status", "in", values)
		}
		if len(filter.PaymentStatus) > 0 {
			values := make([]string, 0, len(filter.PaymentStatus))
			for _, status := range filter.PaymentStatus {
				values = append(values, string(status))
			}
			q = q.Where("paymentStatus", "in", values)
		}
		if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	if len(docs) > pageSize {
		docs = docs[:pageSize]
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	page.Items = make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:     strings.TrimSpace(order.OrderNumber),
		CustomerID:      order.CustomerID,
		Guest:           order.Guest,
		Customer:        customerDocument(order.Customer),
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   string(order.PaymentMethod),
		PaymentIntentID: order.PaymentIntentID,
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Discount:        order.Discount,
		Total:           order.Total,
		ShippingAddress: addressDocument(order.ShippingAddress),
		CouponID:        order.CouponID,
		CouponCode:      order.CouponCode,
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		RefundReason:    order.RefundReason,
		IdempotencyKey:  order.IdempotencyKey,
		CreatedBy:       order.CreatedBy,
		UpdatedBy:       order.UpdatedBy,
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
		ShippedAt:       utcPtr(order.ShippedAt),
		DeliveredAt:     utcPtr(order.DeliveredAt),
		CompletedAt:     utcPtr(order.CompletedAt),
		CancelledAt:     utcPtr(order.CancelledAt),
		RefundedAt:      utcPtr(order.RefundedAt),
	}
	if order.BillingAddress != nil {
		billing := addressDocument(*order.BillingAddress)
		doc.BillingAddress = &billing
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:              id,
		OrderNumber:     doc.OrderNumber,
		CustomerID:      doc.CustomerID,
		Guest:           doc.Guest,
		Customer:        domain.Customer(doc.Customer),
		Status:          domain.OrderStatus(doc.Status),
		PaymentStatus:   domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		PaymentIntentID: doc.PaymentIntentID,
		Currency:        doc.Currency,
		Subtotal:        doc.Subtotal,
		Tax:             doc.Tax,
		Shipping:        doc.Shipping,
		Discount:        doc.Discount,
		Total:           doc.Total,
		ShippingAddress: domain.Address(doc.ShippingAddress),
		CouponID:        doc.CouponID,
		CouponCode:      doc.CouponCode,
		Notes:           doc.Notes,
		CancelReason:    doc.CancelReason,
		RefundReason:    doc.RefundReason,
		IdempotencyKey:  doc.IdempotencyKey,
		CreatedBy:       doc.CreatedBy,
		UpdatedBy:       doc.UpdatedBy,
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
		ShippedAt:       utcPtr(doc.ShippedAt),
		DeliveredAt:     utcPtr(doc.DeliveredAt),
		CompletedAt:     utcPtr(doc.CompletedAt),
		CancelledAt:     utcPtr(doc.CancelledAt),
		RefundedAt:      utcPtr(doc.RefundedAt),
	}
	if doc.BillingAddress != nil {
		billing := domain.Address(*doc.BillingAddress)
		order.BillingAddress = &billing
	}
	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	return order
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
