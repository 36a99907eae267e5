package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	created     []string
	transitions []string
	refunds     int
	limited     int
	blocked     int
}

func (m *recordingMetrics) OrderCreated(_ context.Context, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, source)
}

func (m *recordingMetrics) StatusChanged(_ context.Context, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+"->"+to)
}

func (m *recordingMetrics) OrderRefunded(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refunds++
}

func (m *recordingMetrics) RateLimited(_ context.Context, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blocked {
		m.blocked++
		return
	}
	m.limited++
}

type stubRefunder struct {
	calls []PaymentRefundRequest
	err   error
}

func (s *stubRefunder) RefundPayment(_ context.Context, req PaymentRefundRequest) (PaymentRefundResult, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return PaymentRefundResult{}, s.err
	}
	return PaymentRefundResult{RefundID: "re_" + req.PaymentIntentID, Status: "succeeded"}, nil
}

// sequenceNumbers returns the given numbers in order and then repeats the last one.
func sequenceNumbers(numbers ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[i]
		if i < len(numbers)-1 {
			i++
		}
		return n, nil
	}
}

type orderFixture struct {
	store   *memory.Store
	clock   *testClock
	events  *recordingPublisher
	metrics *recordingMetrics
	service OrderService
}

func newOrderFixture(t *testing.T, mutate ...func(*OrderServiceDeps)) *orderFixture {
	t.Helper()

	clock := newTestClock()
	store := memory.NewStore(memory.WithClock(clock.Now))
	events := &recordingPublisher{}
	metrics := &recordingMetrics{}

	seedProduct(t, store, domain.Product{ID: "p1", Name: "Linen Shirt", SKU: "SKU-P1", Price: 500, Stock: 10, Active: true})
	seedProduct(t, store, domain.Product{ID: "p2", Name: "Canvas Tote", SKU: "SKU-P2", Price: 250, Stock: 5, Active: true})

	counter := 0
	deps := OrderServiceDeps{
		Orders:     store.Orders(),
		Products:   store.Products(),
		Coupons:    store.Coupons(),
		Tokens:     store.OrderTokens(),
		UnitOfWork: store,
		Events:     events,
		Metrics:    metrics,
		Clock:      clock.Now,
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("%04d", counter)
		},
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return &orderFixture{store: store, clock: clock, events: events, metrics: metrics, service: svc}
}

func seedProduct(t *testing.T, store *memory.Store, product domain.Product) {
	t.Helper()
	if err := store.Products().Upsert(context.Background(), product); err != nil {
		t.Fatalf("seed product %s: %v", product.ID, err)
	}
}

func seedCoupon(t *testing.T, store *memory.Store, coupon domain.Coupon) {
	t.Helper()
	if err := store.Coupons().Upsert(context.Background(), coupon); err != nil {
		t.Fatalf("seed coupon %s: %v", coupon.Code, err)
	}
}

func (f *orderFixture) product(t *testing.T, id string) domain.Product {
	t.Helper()
	product, err := f.store.Products().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find product %s: %v", id, err)
	}
	return product
}

func (f *orderFixture) coupon(t *testing.T, code string) domain.Coupon {
	t.Helper()
	coupon, err := f.store.Coupons().FindByCode(context.Background(), code)
	if err != nil {
		t.Fatalf("find coupon %s: %v", code, err)
	}
	return coupon
}

func (f *orderFixture) order(t *testing.T, id string) domain.Order {
	t.Helper()
	order, err := f.store.Orders().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find order %s: %v", id, err)
	}
	return order
}

func (f *orderFixture) orderCount(t *testing.T) int {
	t.Helper()
	page, err := f.store.Orders().List(context.Background(), OrderListFilter{Pagination: domain.Pagination{PageSize: 100}})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	return len(page.Items)
}

// placeOrder stores an order directly, bypassing creation rules.
func (f *orderFixture) placeOrder(t *testing.T, order domain.Order) domain.Order {
	t.Helper()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = f.clock.Now()
		order.UpdatedAt = order.CreatedAt
	}
	if err := f.store.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("insert order %s: %v", order.ID, err)
	}
	return order
}

func testAddress() Address {
	return Address{
		FullName:     "Jane Doe",
		AddressLine1: "12 Moi Avenue",
		City:         "Nairobi",
		State:        "Nairobi County",
		PostalCode:   "00100",
		Country:      "Kenya",
		Phone:        "+254700000000",
	}
}

// validPayload orders two units of p1 for customer cust-1.
func validPayload() OrderCreationPayload {
	return OrderCreationPayload{
		CustomerID: "cust-1",
		Customer:   Customer{Name: "Jane Doe", Email: "jane@example.com"},
		Items: []OrderItem{
			{ProductID: "p1", Quantity: 2, Price: 500},
		},
		Subtotal:        1000,
		Total:           1000,
		PaymentMethod:   domain.PaymentMethodCard,
		ShippingAddress: testAddress(),
		ActorID:         "cust-1",
	}
}

func intPtr(v int) *int { return &v }
