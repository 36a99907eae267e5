package handlers

import (
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type addressPayload struct {
	FullName     string `json:"fullName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

type orderItemPayload struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	VariantID   string  `json:"variantId,omitempty"`
	VariantName string  `json:"variantName,omitempty"`
	SKU         string  `json:"sku,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Total       float64 `json:"total"`
}

type orderResponse struct {
	ID              string             `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	CustomerID      string             `json:"customerId,omitempty"`
	Guest           bool               `json:"guest"`
	Customer        customerPayload    `json:"customer"`
	Status          string             `json:"status"`
	PaymentStatus   string             `json:"paymentStatus"`
	PaymentMethod   string             `json:"paymentMethod"`
	Currency        string             `json:"currency"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        float64            `json:"subtotal"`
	Tax             float64            `json:"tax"`
	Shipping        float64            `json:"shipping"`
	Discount        float64            `json:"discount"`
	Total           float64            `json:"total"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	BillingAddress  *addressPayload    `json:"billingAddress,omitempty"`
	CouponCode      string             `json:"couponCode,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	CancelReason    string             `json:"cancelReason,omitempty"`
	RefundReason    string             `json:"refundReason,omitempty"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt"`
	ShippedAt       string             `json:"shippedAt,omitempty"`
	DeliveredAt     string             `json:"deliveredAt,omitempty"`
	CompletedAt     string             `json:"completedAt,omitempty"`
	CancelledAt     string             `json:"cancelledAt,omitempty"`
	RefundedAt      string             `json:"refundedAt,omitempty"`
}

type orderListResponse struct {
	Orders        []orderResponse `json:"orders"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

type invoiceItemPayload struct {
	Description string  `json:"description"`
	SKU         string  `json:"sku,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
}

type invoiceResponse struct {
	ID              string               `json:"id"`
	InvoiceNumber   string               `json:"invoiceNumber"`
	OrderID         string               `json:"orderId,omitempty"`
	OrderNumber     string               `json:"orderNumber,omitempty"`
	Customer        customerPayload      `json:"customer"`
	BillingAddress  addressPayload       `json:"billingAddress"`
	ShippingAddress *addressPayload      `json:"shippingAddress,omitempty"`
	Items           []invoiceItemPayload `json:"items"`
	Currency        string               `json:"currency"`
	Subtotal        float64              `json:"subtotal"`
	Tax             float64              `json:"tax"`
	Shipping        float64              `json:"shipping"`
	Discount        float64              `json:"discount"`
	Total           float64              `json:"total"`
	PaymentStatus   string               `json:"paymentStatus"`
	InvoiceDate     string               `json:"invoiceDate"`
	DueDate         string               `json:"dueDate"`
	Notes           string               `json:"notes,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func (p customerPayload) toDomain() domain.Customer {
	return domain.Customer{Name: p.Name, Email: p.Email, Phone: p.Phone}
}

func newCustomerPayload(c domain.Customer) customerPayload {
	return customerPayload{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		FullName:     p.FullName,
		AddressLine1: p.AddressLine1,
		AddressLine2: p.AddressLine2,
		City:         p.City,
		State:        p.State,
		PostalCode:   p.PostalCode,
		Country:      p.Country,
		Phone:        p.Phone,
	}
}

func (p *addressPayload) toDomainPtr() *domain.Address {
	if p == nil {
		return nil
	}
	addr := p.toDomain()
	return &addr
}

func newAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		FullName:     a.FullName,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Phone:        a.Phone,
	}
}

func newAddressPayloadPtr(a *domain.Address) *addressPayload {
	if a == nil {
		return nil
	}
	payload := newAddressPayload(*a)
	return &payload
}

func orderItemsToDomain(items []orderItemPayload) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Total:       item.Total,
		})
	}
	return out
}

func newOrderResponse(order services.Order) orderResponse {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Total:       item.Total,
		})
	}
	return orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		Guest:           order.Guest,
		Customer:        newCustomerPayload(order.Customer),
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		PaymentMethod:   string(order.PaymentMethod),
		Currency:        order.Currency,
		Items:           items,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Discount:        order.Discount,
		Total:           order.Total,
		ShippingAddress: newAddressPayload(order.ShippingAddress),
		BillingAddress:  newAddressPayloadPtr(order.BillingAddress),
		CouponCode:      order.CouponCode,
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		RefundReason:    order.RefundReason,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		ShippedAt:       formatTimePtr(order.ShippedAt),
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CompletedAt:     formatTimePtr(order.CompletedAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
		RefundedAt:      formatTimePtr(order.RefundedAt),
	}
}

func newInvoiceResponse(invoice services.Invoice) invoiceResponse {
	items := make([]invoiceItemPayload, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		items = append(items, invoiceItemPayload{
			Description: item.Description,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
		})
	}
	return invoiceResponse{
		ID:              invoice.ID,
		InvoiceNumber:   invoice.InvoiceNumber,
		OrderID:         invoice.OrderID,
		OrderNumber:     invoice.OrderNumber,
		Customer:        newCustomerPayload(invoice.Customer),
		BillingAddress:  newAddressPayload(invoice.BillingAddress),
		ShippingAddress: newAddressPayloadPtr(invoice.ShippingAddress),
		Items:           items,
		Currency:        invoice.Currency,
		Subtotal:        invoice.Subtotal,
		Tax:             invoice.Tax,
		Shipping:        invoice.Shipping,
		Discount:        invoice.Discount,
		Total:           invoice.Total,
		PaymentStatus:   string(invoice.PaymentStatus),
		InvoiceDate:     formatTime(invoice.InvoiceDate),
		DueDate:         formatTime(invoice.DueDate),
		Notes:           invoice.Notes,
	}
}

func normaliseEnum(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// parseTimeField accepts RFC3339 timestamps or plain dates.
func parseTimeField(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), true
	}
	if ts, err := time.Parse(time.DateOnly, value); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}
