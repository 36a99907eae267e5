package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/auth"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

// CheckoutHandlers turns storefront carts into orders for signed-in customers and guests.
type CheckoutHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	cfg    handlerConfig
}

// NewCheckoutHandlers constructs checkout handlers. Authentication is optional.
func NewCheckoutHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, orders: orders, cfg: newHandlerConfig(opts)}
}

// Routes registers the /checkout endpoint.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalFirebaseAuth())
	}
	h.cfg.mutating(group).Post("/", h.checkout)
}

type checkoutItemRequest struct {
	ProductID   string `json:"productId"`
	VariantID   string `json:"variantId"`
	VariantName string `json:"variantName"`
	Quantity    int    `json:"quantity"`
}

type checkoutRequest struct {
	Customer        customerPayload       `json:"customer"`
	Items           []checkoutItemRequest `json:"items"`
	CouponCode      string                `json:"couponCode"`
	Tax             float64               `json:"tax"`
	Shipping        float64               `json:"shipping"`
	Currency        string                `json:"currency"`
	PaymentMethod   string                `json:"paymentMethod"`
	PaymentIntentID string                `json:"paymentIntentId"`
	ShippingAddress addressPayload        `json:"shippingAddress"`
	BillingAddress  *addressPayload       `json:"billingAddress"`
	Notes           string                `json:"notes"`
}

func (h *CheckoutHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CheckoutItem{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			VariantName: item.VariantName,
			Quantity:    item.Quantity,
		})
	}

	customer := req.Customer.toDomain()
	customerID := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		customerID = identity.UID
		if strings.TrimSpace(customer.Email) == "" {
			customer.Email = identity.Email
		}
		if strings.TrimSpace(customer.Name) == "" {
			customer.Name = identity.Name
		}
	}

	order, err := h.orders.CheckoutFromCart(r.Context(), services.CheckoutRequest{
		CustomerID:      customerID,
		Customer:        customer,
		Items:           items,
		CouponCode:      req.CouponCode,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Currency:        req.Currency,
		PaymentMethod:   domain.PaymentMethod(normaliseEnum(req.PaymentMethod)),
		PaymentIntentID: strings.TrimSpace(req.PaymentIntentID),
		ShippingAddress: req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomainPtr(),
		Notes:           req.Notes,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(h.cfg.idempotencyHeader)),
	})
	writeResult(w, r, http.StatusCreated, "Order placed successfully.", newOrderResponse(order), err)
}
