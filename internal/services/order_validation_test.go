package services

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

func TestValidateOrderCreation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*OrderCreationPayload)
		fields []string
	}{
		{name: "valid", mutate: func(*OrderCreationPayload) {}},
		{name: "missing customer", mutate: func(p *OrderCreationPayload) { p.Customer = Customer{} }, fields: []string{"customer.name", "customer.email"}},
		{name: "malformed email", mutate: func(p *OrderCreationPayload) { p.Customer.Email = "Jane <jane@example.com>" }, fields: []string{"customer.email"}},
		{name: "no items", mutate: func(p *OrderCreationPayload) { p.Items = nil }, fields: []string{"items"}},
		{name: "quantity bounds", mutate: func(p *OrderCreationPayload) { p.Items[0].Quantity = 1000 }, fields: []string{"items.0.quantity", "subtotal"}},
		{name: "negative price", mutate: func(p *OrderCreationPayload) { p.Items[0].Price = -1 }, fields: []string{"items.0.price"}},
		{name: "nan tax", mutate: func(p *OrderCreationPayload) { p.Tax = math.NaN() }, fields: []string{"tax"}},
		{name: "subtotal mismatch", mutate: func(p *OrderCreationPayload) { p.Subtotal = 999 }, fields: []string{"subtotal"}},
		{name: "total above components", mutate: func(p *OrderCreationPayload) { p.Total = 1200 }, fields: []string{"total"}},
		{name: "payment method", mutate: func(p *OrderCreationPayload) { p.PaymentMethod = "BARTER" }, fields: []string{"paymentMethod"}},
		{name: "shipping address", mutate: func(p *OrderCreationPayload) { p.ShippingAddress.PostalCode = "" }, fields: []string{"shippingAddress.postalCode"}},
		{name: "billing address", mutate: func(p *OrderCreationPayload) { p.BillingAddress = &Address{FullName: "X"} }, fields: []string{"billingAddress.addressLine1", "billingAddress.city"}},
		{name: "currency", mutate: func(p *OrderCreationPayload) { p.Currency = "SHILLINGS" }, fields: []string{"currency"}},
		{name: "notes length", mutate: func(p *OrderCreationPayload) { p.Notes = strings.Repeat("ñ", maxNotesLength+1) }, fields: []string{"notes"}},
		{name: "idempotency length", mutate: func(p *OrderCreationPayload) { p.IdempotencyKey = strings.Repeat("k", maxIdempotencyLength+1) }, fields: []string{"idempotencyKey"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := validPayload()
			tc.mutate(&payload)
			errs := ValidateOrderCreation(payload)
			if len(tc.fields) == 0 {
				require.True(t, errs.Empty(), "unexpected errors %v", errs)
				return
			}
			for _, field := range tc.fields {
				require.Contains(t, errs, field)
			}
		})
	}
}

func TestValidateOrderCreationCountsRunes(t *testing.T) {
	payload := validPayload()
	payload.Notes = strings.Repeat("ñ", maxNotesLength)
	require.True(t, ValidateOrderCreation(payload).Empty())
}

func TestValidateOrderForm(t *testing.T) {
	form := OrderForm{
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		Items:           []OrderItem{{ProductID: "p1", ProductName: "Linen Shirt", Quantity: 1, Price: 10, Total: 10}},
		Subtotal:        10,
		Total:           10,
		ShippingAddress: testAddress(),
	}
	require.True(t, ValidateOrderForm(form).Empty())

	form.Status = "LOST"
	form.Items[0].ProductName = ""
	form.Customer.Email = "nope"
	errs := ValidateOrderForm(form)
	require.Contains(t, errs, "status")
	require.Contains(t, errs, "items.0.productName")
	require.Contains(t, errs, "customer.email")
}

func TestValidateAddress(t *testing.T) {
	require.True(t, ValidateAddress(testAddress()).Empty())

	addr := testAddress()
	addr.Phone = ""
	addr.AddressLine2 = ""
	require.True(t, ValidateAddress(addr).Empty(), "phone and second line are optional")

	addr.FullName = "   "
	addr.Country = strings.Repeat("x", maxCountryLength+1)
	errs := ValidateAddress(addr)
	require.Contains(t, errs, "fullName")
	require.Contains(t, errs, "country")
}

func TestValidateOrderItem(t *testing.T) {
	require.True(t, ValidateOrderItem(OrderItem{ProductID: "p1", ProductName: "Shirt", Quantity: 1, Price: 1, Total: 1}).Empty())

	errs := ValidateOrderItem(OrderItem{Quantity: 0, Price: math.Inf(1)})
	require.Contains(t, errs, "productId")
	require.Contains(t, errs, "productName")
	require.Contains(t, errs, "quantity")
	require.Contains(t, errs, "price")
}
