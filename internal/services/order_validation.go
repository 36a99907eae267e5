package services

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/currency"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

const (
	minItemQuantity = 1
	maxItemQuantity = 999

	maxFullNameLength    = 100
	maxAddressLineLength = 200
	maxCityLength        = 100
	maxStateLength       = 100
	maxPostalCodeLength  = 20
	maxCountryLength     = 56
	maxPhoneLength       = 30
	maxEmailLength       = 254
	maxCouponCodeLength  = 40
	maxIdempotencyLength = 128
	maxNotesLength       = 1000
	maxReasonLength      = 500
)

// ValidateOrderItem checks a single line item. The returned map is empty when the item is valid.
func ValidateOrderItem(item OrderItem) ValidationErrors {
	return validateOrderItem(item, true)
}

func validateOrderItem(item OrderItem, requireName bool) ValidationErrors {
	errs := ValidationErrors{}
	if strings.TrimSpace(item.ProductID) == "" {
		errs.Add("productId", "Product is required")
	}
	if requireName && strings.TrimSpace(item.ProductName) == "" {
		errs.Add("productName", "Product name is required")
	}
	if item.Quantity < minItemQuantity || item.Quantity > maxItemQuantity {
		errs.Add("quantity", fmt.Sprintf("Quantity must be between %d and %d", minItemQuantity, maxItemQuantity))
	}
	checkAmount(errs, "price", item.Price)
	checkAmount(errs, "total", item.Total)
	return errs
}

// ValidateAddress checks a postal address snapshot. Phone is the only optional field.
func ValidateAddress(addr Address) ValidationErrors {
	errs := ValidationErrors{}
	checkRequired(errs, "fullName", "Full name", addr.FullName, maxFullNameLength)
	checkRequired(errs, "addressLine1", "Address", addr.AddressLine1, maxAddressLineLength)
	checkLength(errs, "addressLine2", addr.AddressLine2, maxAddressLineLength)
	checkRequired(errs, "city", "City", addr.City, maxCityLength)
	checkRequired(errs, "state", "State", addr.State, maxStateLength)
	checkRequired(errs, "postalCode", "Postal code", addr.PostalCode, maxPostalCodeLength)
	checkRequired(errs, "country", "Country", addr.Country, maxCountryLength)
	checkLength(errs, "phone", addr.Phone, maxPhoneLength)
	return errs
}

// ValidateOrderForm checks an admin order edit as a whole.
func ValidateOrderForm(form OrderForm) ValidationErrors {
	errs := ValidationErrors{}
	if !form.Status.Valid() {
		errs.Add("status", "Status is not recognised")
	}
	if !form.PaymentStatus.Valid() {
		errs.Add("paymentStatus", "Payment status is not recognised")
	}
	if form.PaymentMethod != "" && !form.PaymentMethod.Valid() {
		errs.Add("paymentMethod", "Payment method is not recognised")
	}
	validateItems(errs, form.Items, true)
	checkAmount(errs, "subtotal", form.Subtotal)
	checkAmount(errs, "tax", form.Tax)
	checkAmount(errs, "shipping", form.Shipping)
	checkAmount(errs, "discount", form.Discount)
	checkAmount(errs, "total", form.Total)
	errs.Merge("shippingAddress", ValidateAddress(form.ShippingAddress))
	if form.BillingAddress != nil {
		errs.Merge("billingAddress", ValidateAddress(*form.BillingAddress))
	}
	if email := strings.TrimSpace(form.Customer.Email); email != "" {
		checkEmail(errs, "customer.email", email)
	}
	checkLength(errs, "customer.name", form.Customer.Name, maxFullNameLength)
	checkLength(errs, "customer.phone", form.Customer.Phone, maxPhoneLength)
	checkCurrency(errs, form.Currency)
	checkLength(errs, "notes", form.Notes, maxNotesLength)
	checkLength(errs, "cancelReason", form.CancelReason, maxReasonLength)
	return errs
}

// ValidateOrderCreation checks a creation payload, including the totals arithmetic. Product names
// are optional because they are captured from the catalog inside the transaction.
func ValidateOrderCreation(payload OrderCreationPayload) ValidationErrors {
	errs := ValidationErrors{}
	checkRequired(errs, "customer.name", "Customer name", payload.Customer.Name, maxFullNameLength)
	if email := strings.TrimSpace(payload.Customer.Email); email == "" {
		errs.Add("customer.email", "Email is required")
	} else {
		checkEmail(errs, "customer.email", email)
	}
	checkLength(errs, "customer.phone", payload.Customer.Phone, maxPhoneLength)
	if !payload.PaymentMethod.Valid() {
		errs.Add("paymentMethod", "Payment method is not recognised")
	}

	validateItems(errs, payload.Items, false)
	checkAmount(errs, "subtotal", payload.Subtotal)
	checkAmount(errs, "tax", payload.Tax)
	checkAmount(errs, "shipping", payload.Shipping)
	checkAmount(errs, "total", payload.Total)
	if _, failed := errs["subtotal"]; !failed && len(payload.Items) > 0 {
		var sum float64
		for _, item := range payload.Items {
			sum += domain.LineTotal(item.Quantity, item.Price)
		}
		if !domain.MoneyEqual(sum, payload.Subtotal) {
			errs.Add("subtotal", "Subtotal must equal the sum of item totals")
		}
	}
	if _, failed := errs["total"]; !failed {
		if domain.RoundMoney(payload.Subtotal+payload.Tax+payload.Shipping-payload.Total) < 0 {
			errs.Add("total", "Total cannot exceed subtotal plus tax and shipping")
		}
	}

	errs.Merge("shippingAddress", ValidateAddress(payload.ShippingAddress))
	if payload.BillingAddress != nil {
		errs.Merge("billingAddress", ValidateAddress(*payload.BillingAddress))
	}
	checkLength(errs, "couponCode", payload.CouponCode, maxCouponCodeLength)
	checkLength(errs, "idempotencyKey", payload.IdempotencyKey, maxIdempotencyLength)
	checkCurrency(errs, payload.Currency)
	checkLength(errs, "notes", payload.Notes, maxNotesLength)
	return errs
}

func validateItems(errs ValidationErrors, items []OrderItem, requireName bool) {
	if len(items) == 0 {
		errs.Add("items", "At least one item is required")
		return
	}
	for i, item := range items {
		errs.Merge("items."+strconv.Itoa(i), validateOrderItem(item, requireName))
	}
}

func checkRequired(errs ValidationErrors, field, label, value string, max int) {
	value = strings.TrimSpace(value)
	if value == "" {
		errs.Add(field, label+" is required")
		return
	}
	checkLength(errs, field, value, max)
}

func checkLength(errs ValidationErrors, field, value string, max int) {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > max {
		errs.Add(field, fmt.Sprintf("Must be at most %d characters", max))
	}
}

func checkAmount(errs ValidationErrors, field string, amount float64) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		errs.Add(field, "Must be a non-negative amount")
	}
}

func checkEmail(errs ValidationErrors, field, email string) {
	if utf8.RuneCountInString(email) > maxEmailLength {
		errs.Add(field, fmt.Sprintf("Must be at most %d characters", maxEmailLength))
		return
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		errs.Add(field, "Email address is invalid")
	}
}

func checkCurrency(errs ValidationErrors, code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	if _, err := currency.ParseISO(code); err != nil {
		errs.Add("currency", "Currency must be an ISO 4217 code")
	}
}
