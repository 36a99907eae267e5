package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/auth"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

const (
	customerToken = "customer-token"
	staffToken    = "staff-token"
)

type tokenTable map[string]*firebaseauth.Token

func (t tokenTable) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	if token, ok := t[idToken]; ok {
		return token, nil
	}
	return nil, errors.New("token rejected")
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(tokenTable{
		customerToken: {UID: "cust-1", Claims: map[string]any{"email": "jane@example.com", "name": "Jane Doe"}},
		staffToken:    {UID: "staff-1", Claims: map[string]any{"role": "staff", "email": "ops@example.com"}},
	})
}

type stubOrderService struct {
	order   services.Order
	page    domain.CursorPage[services.Order]
	err     error
	calls   []string
	last    any
	payCmds []services.UpdatePaymentStatusCommand
}

func (s *stubOrderService) record(name string, arg any) {
	s.calls = append(s.calls, name)
	s.last = arg
}

func (s *stubOrderService) ProcessOrderCreation(_ context.Context, payload services.OrderCreationPayload) (services.Order, error) {
	s.record("ProcessOrderCreation", payload)
	return s.order, s.err
}

func (s *stubOrderService) CreateOrder(_ context.Context, input services.CreateOrderInput) (services.Order, error) {
	s.record("CreateOrder", input)
	return s.order, s.err
}

func (s *stubOrderService) CheckoutFromCart(_ context.Context, req services.CheckoutRequest) (services.Order, error) {
	s.record("CheckoutFromCart", req)
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, orderID string) (services.Order, error) {
	s.record("GetOrder", orderID)
	return s.order, s.err
}

func (s *stubOrderService) ListOrders(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	s.record("ListOrders", filter)
	return s.page, s.err
}

func (s *stubOrderService) UpdateOrder(_ context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	s.record("UpdateOrder", cmd)
	return s.order, s.err
}

func (s *stubOrderService) UpdateOrderStatus(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	s.record("UpdateOrderStatus", cmd)
	return s.order, s.err
}

func (s *stubOrderService) UpdatePaymentStatus(_ context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error) {
	s.record("UpdatePaymentStatus", cmd)
	s.payCmds = append(s.payCmds, cmd)
	return s.order, s.err
}

func (s *stubOrderService) RefundOrder(_ context.Context, cmd services.RefundCommand) (services.Order, error) {
	s.record("RefundOrder", cmd)
	return s.order, s.err
}

type stubInvoiceService struct {
	invoice services.Invoice
	count   int
	err     error
	last    any
	now     time.Time
}

func (s *stubInvoiceService) CreateInvoiceFromOrder(_ context.Context, cmd services.CreateInvoiceFromOrderCommand) (services.Invoice, error) {
	s.last = cmd
	return s.invoice, s.err
}

func (s *stubInvoiceService) CreateInvoice(_ context.Context, form services.InvoiceForm) (services.Invoice, error) {
	s.last = form
	return s.invoice, s.err
}

func (s *stubInvoiceService) MarkOverdueInvoices(_ context.Context, now time.Time) (int, error) {
	s.now = now
	return s.count, s.err
}

var (
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.InvoiceService = (*stubInvoiceService)(nil)
)

func sampleOrder() services.Order {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "ord_1",
		OrderNumber:   "ORD-ABC123",
		CustomerID:    "cust-1",
		Customer:      domain.Customer{Name: "Jane Doe", Email: "jane@example.com"},
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		Currency:      "USD",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", ProductName: "Mug", Quantity: 2, Price: 10, Total: 20},
		},
		Subtotal:  20,
		Total:     20,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func serve(t *testing.T, routes RouteRegistrar, mount, method, target, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var opts []Option
	switch mount {
	case "orders":
		opts = append(opts, WithOrderRoutes(routes))
	case "checkout":
		opts = append(opts, WithCheckoutRoutes(routes))
	case "admin":
		opts = append(opts, WithAdminRoutes(routes))
	case "webhooks":
		opts = append(opts, WithWebhookRoutes(routes))
	case "internal":
		opts = append(opts, WithInternalRoutes(routes))
	default:
		t.Fatalf("unknown mount %q", mount)
	}
	router := NewRouter(opts...)

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, target, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope %q: %v", rr.Body.String(), err)
	}
	return env
}
