package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/auth"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/idempotency"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

// OrderHandlers exposes order endpoints for signed-in customers and staff.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	cfg    handlerConfig
}

type handlerConfig struct {
	idempotencyHeader string
	mutation          []func(http.Handler) http.Handler
}

// OrderHandlersOption customises the order, checkout, and admin handlers.
type OrderHandlersOption func(*handlerConfig)

// WithIdempotencyHeader names the header whose value is stored as the order idempotency token.
func WithIdempotencyHeader(name string) OrderHandlersOption {
	return func(cfg *handlerConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.idempotencyHeader = name
		}
	}
}

// WithMutationMiddleware wraps mutating routes after authentication has attached the caller.
func WithMutationMiddleware(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(cfg *handlerConfig) {
		for _, m := range mw {
			if m != nil {
				cfg.mutation = append(cfg.mutation, m)
			}
		}
	}
}

func newHandlerConfig(opts []OrderHandlersOption) handlerConfig {
	cfg := handlerConfig{idempotencyHeader: idempotency.DefaultHeader}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func (c handlerConfig) mutating(r chi.Router) chi.Router {
	if len(c.mutation) == 0 {
		return r
	}
	return r.With(c.mutation...)
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, cfg: newHandlerConfig(opts)}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	h.cfg.mutating(r).Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
}

type createOrderRequest struct {
	Customer        customerPayload    `json:"customer"`
	Items           []orderItemPayload `json:"items"`
	Subtotal        float64            `json:"subtotal"`
	Tax             float64            `json:"tax"`
	Shipping        float64            `json:"shipping"`
	Total           float64            `json:"total"`
	Currency        string             `json:"currency"`
	PaymentMethod   string             `json:"paymentMethod"`
	PaymentIntentID string             `json:"paymentIntentId"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	BillingAddress  *addressPayload    `json:"billingAddress"`
	CouponCode      string             `json:"couponCode"`
	Notes           string             `json:"notes"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), services.CreateOrderInput{
		Actor: actorFromContext(r.Context()),
		Payload: services.OrderCreationPayload{
			Customer:        req.Customer.toDomain(),
			Items:           orderItemsToDomain(req.Items),
			Subtotal:        req.Subtotal,
			Tax:             req.Tax,
			Shipping:        req.Shipping,
			Total:           req.Total,
			Currency:        req.Currency,
			PaymentMethod:   domain.PaymentMethod(normaliseEnum(req.PaymentMethod)),
			PaymentIntentID: strings.TrimSpace(req.PaymentIntentID),
			ShippingAddress: req.ShippingAddress.toDomain(),
			BillingAddress:  req.BillingAddress.toDomainPtr(),
			CouponCode:      req.CouponCode,
			Notes:           req.Notes,
			IdempotencyKey:  strings.TrimSpace(r.Header.Get(h.cfg.idempotencyHeader)),
		},
	})
	writeResult(w, r, http.StatusCreated, "Order created successfully.", newOrderResponse(order), err)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err == nil {
		identity, _ := auth.IdentityFromContext(ctx)
		// Other customers' orders are reported as missing.
		if !identity.IsStaff() && (identity == nil || order.CustomerID != identity.UID) {
			order, err = services.Order{}, services.ErrOrderNotFound
		}
	}
	writeResult(w, r, http.StatusOK, "Order retrieved.", newOrderResponse(order), err)
}
