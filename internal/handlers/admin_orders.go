package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/auth"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/pagination"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

const defaultAdminOrderPageSize = 25

// AdminOrderHandlers exposes back-office order and invoice management to staff.
type AdminOrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	invoices services.InvoiceService
	cfg      handlerConfig
}

// NewAdminOrderHandlers constructs admin handlers restricted to staff and admin roles.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, invoices services.InvoiceService, opts ...OrderHandlersOption) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders, invoices: invoices, cfg: newHandlerConfig(opts)}
}

// Routes registers the /admin endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)

	mutating := h.cfg.mutating(r)
	mutating.Put("/orders/{orderID}", h.updateOrder)
	mutating.Post("/orders/{orderID}/status", h.updateStatus)
	mutating.Post("/orders/{orderID}/refund", h.refundOrder)
	mutating.Post("/orders/{orderID}/invoice", h.createInvoiceFromOrder)
	mutating.Post("/invoices", h.createInvoice)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := pagination.Parse(query, pagination.Options{DefaultPageSize: defaultAdminOrderPageSize})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, services.ActionResult[struct{}]{
			Message: "Please correct the highlighted fields.",
			Errors:  services.ValidationErrors{"pagination": {err.Error()}},
		})
		return
	}

	filter := services.OrderListFilter{
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Pagination: domain.Pagination{PageSize: page.PageSize, PageToken: page.PageToken},
	}
	for _, raw := range splitQueryValues(query["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(normaliseEnum(raw)))
	}
	for _, raw := range splitQueryValues(query["paymentStatus"]) {
		filter.PaymentStatus = append(filter.PaymentStatus, domain.PaymentStatus(normaliseEnum(raw)))
	}

	result, err := h.orders.ListOrders(r.Context(), filter)
	response := orderListResponse{Orders: make([]orderResponse, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, order := range result.Items {
		response.Orders = append(response.Orders, newOrderResponse(order))
	}
	writeResult(w, r, http.StatusOK, "Orders retrieved.", response, err)
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	writeResult(w, r, http.StatusOK, "Order retrieved.", newOrderResponse(order), err)
}

type orderFormRequest struct {
	Status            string             `json:"status"`
	PaymentStatus     string             `json:"paymentStatus"`
	PaymentMethod     string             `json:"paymentMethod"`
	Customer          customerPayload    `json:"customer"`
	Items             []orderItemPayload `json:"items"`
	Subtotal          float64            `json:"subtotal"`
	Tax               float64            `json:"tax"`
	Shipping          float64            `json:"shipping"`
	Discount          float64            `json:"discount"`
	Total             float64            `json:"total"`
	Currency          string             `json:"currency"`
	ShippingAddress   addressPayload     `json:"shippingAddress"`
	BillingAddress    *addressPayload    `json:"billingAddress"`
	Notes             string             `json:"notes"`
	CancelReason      string             `json:"cancelReason"`
	ExpectedUpdatedAt string             `json:"expectedUpdatedAt"`
}

func (h *AdminOrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderFormRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	var expected *time.Time
	if raw := strings.TrimSpace(req.ExpectedUpdatedAt); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, services.ActionResult[struct{}]{
				Message: "Please correct the highlighted fields.",
				Errors:  services.ValidationErrors{"expectedUpdatedAt": {"Must be an RFC3339 timestamp"}},
			})
			return
		}
		expected = &ts
	}

	order, err := h.orders.UpdateOrder(r.Context(), services.UpdateOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Form: services.OrderForm{
			Status:          domain.OrderStatus(normaliseEnum(req.Status)),
			PaymentStatus:   domain.PaymentStatus(normaliseEnum(req.PaymentStatus)),
			PaymentMethod:   domain.PaymentMethod(normaliseEnum(req.PaymentMethod)),
			Customer:        req.Customer.toDomain(),
			Items:           orderItemsToDomain(req.Items),
			Subtotal:        req.Subtotal,
			Tax:             req.Tax,
			Shipping:        req.Shipping,
			Discount:        req.Discount,
			Total:           req.Total,
			Currency:        req.Currency,
			ShippingAddress: req.ShippingAddress.toDomain(),
			BillingAddress:  req.BillingAddress.toDomainPtr(),
			Notes:           req.Notes,
			CancelReason:    req.CancelReason,
		},
		ExpectedUpdatedAt: expected,
		ActorID:           auth.ActorID(r.Context()),
	})
	writeResult(w, r, http.StatusOK, "Order updated successfully.", newOrderResponse(order), err)
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	order, err := h.orders.UpdateOrderStatus(r.Context(), services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  domain.OrderStatus(normaliseEnum(req.Status)),
		Reason:  req.Reason,
		ActorID: auth.ActorID(r.Context()),
	})
	writeResult(w, r, http.StatusOK, "Order status updated.", newOrderResponse(order), err)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	order, err := h.orders.RefundOrder(r.Context(), services.RefundCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  req.Reason,
		ActorID: auth.ActorID(r.Context()),
	})
	writeResult(w, r, http.StatusOK, "Order refunded successfully.", newOrderResponse(order), err)
}

func (h *AdminOrderHandlers) createInvoiceFromOrder(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.invoices.CreateInvoiceFromOrder(r.Context(), services.CreateInvoiceFromOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: auth.ActorID(r.Context()),
	})
	writeResult(w, r, http.StatusCreated, "Invoice created successfully.", newInvoiceResponse(invoice), err)
}

type invoiceFormRequest struct {
	Customer        customerPayload      `json:"customer"`
	BillingAddress  addressPayload       `json:"billingAddress"`
	ShippingAddress *addressPayload      `json:"shippingAddress"`
	Items           []invoiceItemPayload `json:"items"`
	Currency        string               `json:"currency"`
	Tax             float64              `json:"tax"`
	Shipping        float64              `json:"shipping"`
	Discount        float64              `json:"discount"`
	PaymentStatus   string               `json:"paymentStatus"`
	InvoiceDate     string               `json:"invoiceDate"`
	DueDate         string               `json:"dueDate"`
	Notes           string               `json:"notes"`
}

func (h *AdminOrderHandlers) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceFormRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	fieldErrs := services.ValidationErrors{}
	invoiceDate, ok := parseTimeField(req.InvoiceDate)
	if !ok {
		fieldErrs.Add("invoiceDate", "Must be a date or RFC3339 timestamp")
	}
	dueDate, ok := parseTimeField(req.DueDate)
	if !ok {
		fieldErrs.Add("dueDate", "Must be a date or RFC3339 timestamp")
	}
	if !fieldErrs.Empty() {
		writeResult(w, r, http.StatusCreated, "", invoiceResponse{}, fieldErrs.Err())
		return
	}

	items := make([]domain.InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.InvoiceItem{
			Description: item.Description,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
		})
	}

	invoice, err := h.invoices.CreateInvoice(r.Context(), services.InvoiceForm{
		Customer:        req.Customer.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		ShippingAddress: req.ShippingAddress.toDomainPtr(),
		Items:           items,
		Currency:        req.Currency,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Discount:        req.Discount,
		PaymentStatus:   domain.InvoiceStatus(normaliseEnum(req.PaymentStatus)),
		InvoiceDate:     invoiceDate,
		DueDate:         dueDate,
		Notes:           req.Notes,
		ActorID:         auth.ActorID(r.Context()),
	})
	writeResult(w, r, http.StatusCreated, "Invoice created successfully.", newInvoiceResponse(invoice), err)
}

func splitQueryValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
