// Package memory provides process-local repositories backed by maps. A single mutex serialises
// every operation; RunInTx holds it for the whole unit of work and restores a snapshot on failure.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

// Error implements repositories.RepositoryError for the memory store.
type Error struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.op, e.msg)
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), notFound: true}
}

func invalid(op, msg string) error {
	return &Error{op: op, msg: msg}
}

func conflict(op, format string, args ...any) error {
	return &Error{op: op, msg: fmt.Sprintf(format, args...), conflict: true}
}

type rateLimitEntry struct {
	record    domain.RateLimitRecord
	expiresAt time.Time
}

type state struct {
	orders         map[string]domain.Order
	orderNumbers   map[string]string
	paymentIntents map[string]string
	products       map[string]domain.Product
	coupons        map[string]domain.Coupon
	couponCodes    map[string]string
	invoices       map[string]domain.Invoice
	invoiceNumbers map[string]string
	orderInvoices  map[string]string
	tokens         map[string]repositories.OrderToken
	rateLimits     map[string]rateLimitEntry
	blocked        map[string]domain.BlockedAddress
}

func newState() state {
	return state{
		orders:         make(map[string]domain.Order),
		orderNumbers:   make(map[string]string),
		paymentIntents: make(map[string]string),
		products:       make(map[string]domain.Product),
		coupons:        make(map[string]domain.Coupon),
		couponCodes:    make(map[string]string),
		invoices:       make(map[string]domain.Invoice),
		invoiceNumbers: make(map[string]string),
		orderInvoices:  make(map[string]string),
		tokens:         make(map[string]repositories.OrderToken),
		rateLimits:     make(map[string]rateLimitEntry),
		blocked:        make(map[string]domain.BlockedAddress),
	}
}

// Stored values are never mutated in place, so copying the maps is a full snapshot.
func (s state) clone() state {
	return state{
		orders:         cloneMap(s.orders),
		orderNumbers:   cloneMap(s.orderNumbers),
		paymentIntents: cloneMap(s.paymentIntents),
		products:       cloneMap(s.products),
		coupons:        cloneMap(s.coupons),
		couponCodes:    cloneMap(s.couponCodes),
		invoices:       cloneMap(s.invoices),
		invoiceNumbers: cloneMap(s.invoiceNumbers),
		orderInvoices:  cloneMap(s.orderInvoices),
		tokens:         cloneMap(s.tokens),
		rateLimits:     cloneMap(s.rateLimits),
		blocked:        cloneMap(s.blocked),
	}
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type txContextKey struct{}

// Store is an in-memory repositories.Registry.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

var _ repositories.Registry = (*Store)(nil)

// Option customises the Store.
type Option func(*Store)

// WithClock overrides the clock used to expire rate limit entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newState(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunInTx runs fn while holding the store lock. Any error or panic restores the pre-transaction state.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("memory: unit of work function is nil")
	}
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	committed := false
	defer func() {
		if !committed {
			s.state = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txContextKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txContextKey{}).(*Store)
	return owner == s
}

// lock acquires the store mutex unless ctx already runs inside this store's transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Orders() repositories.OrderRepository           { return orderRepository{s} }
func (s *Store) Products() repositories.ProductRepository       { return productRepository{s} }
func (s *Store) Coupons() repositories.CouponRepository         { return couponRepository{s} }
func (s *Store) Invoices() repositories.InvoiceRepository       { return invoiceRepository{s} }
func (s *Store) OrderTokens() repositories.OrderTokenRepository { return tokenRepository{s} }
func (s *Store) RateLimits() repositories.RateLimitRepository   { return rateLimitRepository{s} }
func (s *Store) Blocklist() repositories.BlocklistRepository    { return blocklistRepository{s} }

// SweepRateLimits removes counter entries whose window expired before now and reports how many were dropped.
func (s *Store) SweepRateLimits(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.state.rateLimits {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.state.rateLimits, key)
			removed++
		}
	}
	return removed
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
