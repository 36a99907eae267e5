package memory

import (
	"context"
	"strings"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

type productRepository struct{ s *Store }

func (r productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	defer r.s.lock(ctx)()

	product, ok := r.s.state.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", "product %s not found", productID)
	}
	return product, nil
}

func (r productRepository) AdjustInventory(ctx context.Context, productID string, stockDelta, salesDelta int) error {
	defer r.s.lock(ctx)()

	product, ok := r.s.state.products[productID]
	if !ok {
		return notFound("products.adjust", "product %s not found", productID)
	}
	product.Stock += stockDelta
	product.Sales += salesDelta
	product.UpdatedAt = r.s.now().UTC()
	r.s.state.products[productID] = product
	return nil
}

func (r productRepository) Upsert(ctx context.Context, product domain.Product) error {
	defer r.s.lock(ctx)()

	if strings.TrimSpace(product.ID) == "" {
		return invalid("products.upsert", "product id is required")
	}
	r.s.state.products[product.ID] = product
	return nil
}

type couponRepository struct{ s *Store }

func (r couponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.state.couponCodes[normalizeCode(code)]
	if !ok {
		return domain.Coupon{}, notFound("coupons.find_by_code", "coupon %s not found", code)
	}
	return cloneCoupon(r.s.state.coupons[id]), nil
}

func (r couponRepository) IncrementUsage(ctx context.Context, couponID string, delta int) error {
	defer r.s.lock(ctx)()

	coupon, ok := r.s.state.coupons[couponID]
	if !ok {
		return notFound("coupons.increment", "coupon %s not found", couponID)
	}
	coupon.UsedCount += delta
	coupon.UpdatedAt = r.s.now().UTC()
	r.s.state.coupons[couponID] = coupon
	return nil
}

func (r couponRepository) Upsert(ctx context.Context, coupon domain.Coupon) error {
	defer r.s.lock(ctx)()

	if strings.TrimSpace(coupon.ID) == "" {
		return invalid("coupons.upsert", "coupon id is required")
	}
	code := normalizeCode(coupon.Code)
	if owner, taken := r.s.state.couponCodes[code]; taken && owner != coupon.ID {
		return conflict("coupons.upsert", "coupon code %s already exists", code)
	}
	if previous, ok := r.s.state.coupons[coupon.ID]; ok {
		delete(r.s.state.couponCodes, normalizeCode(previous.Code))
	}
	coupon.Code = code
	r.s.state.coupons[coupon.ID] = cloneCoupon(coupon)
	r.s.state.couponCodes[code] = coupon.ID
	return nil
}

func cloneCoupon(coupon domain.Coupon) domain.Coupon {
	out := coupon
	out.ExpiresAt = cloneTime(coupon.ExpiresAt)
	if coupon.MaxUsage != nil {
		v := *coupon.MaxUsage
		out.MaxUsage = &v
	}
	return out
}
