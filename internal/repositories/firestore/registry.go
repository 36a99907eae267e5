package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

// Registry assembles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider

	orders     *OrderRepository
	products   *ProductRepository
	coupons    *CouponRepository
	invoices   *InvoiceRepository
	tokens     *OrderTokenRepository
	rateLimits *RateLimitRepository
	blocklist  *BlocklistRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository over the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, fmt.Errorf("coupons: %w", err)
	}
	if reg.invoices, err = NewInvoiceRepository(provider); err != nil {
		return nil, fmt.Errorf("invoices: %w", err)
	}
	if reg.tokens, err = NewOrderTokenRepository(provider); err != nil {
		return nil, fmt.Errorf("order tokens: %w", err)
	}
	if reg.rateLimits, err = NewRateLimitRepository(provider); err != nil {
		return nil, fmt.Errorf("rate limits: %w", err)
	}
	if reg.blocklist, err = NewBlocklistRepository(provider); err != nil {
		return nil, fmt.Errorf("blocklist: %w", err)
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository           { return r.orders }
func (r *Registry) Products() repositories.ProductRepository       { return r.products }
func (r *Registry) Coupons() repositories.CouponRepository         { return r.coupons }
func (r *Registry) Invoices() repositories.InvoiceRepository       { return r.invoices }
func (r *Registry) OrderTokens() repositories.OrderTokenRepository { return r.tokens }
func (r *Registry) RateLimits() repositories.RateLimitRepository   { return r.rateLimits }
func (r *Registry) Blocklist() repositories.BlocklistRepository    { return r.blocklist }

// Provider exposes the underlying client provider for health checks.
func (r *Registry) Provider() *pfirestore.Provider {
	if r == nil {
		return nil
	}
	return r.provider
}
