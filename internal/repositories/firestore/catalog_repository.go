package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
)

const (
	productsCollection = "products"
	couponsCollection  = "coupons"
)

type productDocument struct {
	Name      string    `firestore:"name"`
	SKU       string    `firestore:"sku,omitempty"`
	Price     float64   `firestore:"price"`
	Stock     int       `firestore:"stock"`
	Sales     int       `firestore:"sales"`
	Active    bool      `firestore:"active"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ProductRepository reads catalog entries and adjusts their inventory counters.
type ProductRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:        doc.ID,
		Name:      doc.Data.Name,
		SKU:       doc.Data.SKU,
		Price:     doc.Data.Price,
		Stock:     doc.Data.Stock,
		Sales:     doc.Data.Sales,
		Active:    doc.Data.Active,
		UpdatedAt: doc.Data.UpdatedAt.UTC(),
	}, nil
}

// AdjustInventory uses server-side increments so concurrent writers never lose an update.
func (r *ProductRepository) AdjustInventory(ctx context.Context, productID string, stockDelta, salesDelta int) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Update(ctx, strings.TrimSpace(productID), []firestore.Update{
		{Path: "stock", Value: firestore.Increment(stockDelta)},
		{Path: "sales", Value: firestore.Increment(salesDelta)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
}

func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return invalidError("products.upsert", "product id is required")
	}
	updatedAt := product.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return r.products.Set(ctx, id, productDocument{
		Name:      product.Name,
		SKU:       product.SKU,
		Price:     product.Price,
		Stock:     product.Stock,
		Sales:     product.Sales,
		Active:    product.Active,
		UpdatedAt: updatedAt.UTC(),
	})
}

type couponDocument struct {
	Code           string     `firestore:"code"`
	Active         bool       `firestore:"active"`
	DiscountType   string     `firestore:"discountType"`
	DiscountValue  float64    `firestore:"discountValue"`
	MinOrderAmount float64    `firestore:"minOrderAmount"`
	ExpiresAt      *time.Time `firestore:"expiresAt,omitempty"`
	MaxUsage       *int       `firestore:"maxUsage,omitempty"`
	UsedCount      int        `firestore:"usedCount"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// CouponRepository stores coupons keyed by ID with an upper-cased code field for lookups.
type CouponRepository struct {
	coupons *pfirestore.BaseRepository[couponDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		coupons: pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil),
	}, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, notFoundError("coupons.find_by_code", "coupon "+normalized+" not found")
	}
	doc := docs[0]
	return domain.Coupon{
		ID:             doc.ID,
		Code:           doc.Data.Code,
		Active:         doc.Data.Active,
		DiscountType:   domain.DiscountType(doc.Data.DiscountType),
		DiscountValue:  doc.Data.DiscountValue,
		MinOrderAmount: doc.Data.MinOrderAmount,
		ExpiresAt:      utcPtr(doc.Data.ExpiresAt),
		MaxUsage:       doc.Data.MaxUsage,
		UsedCount:      doc.Data.UsedCount,
		CreatedAt:      doc.Data.CreatedAt.UTC(),
		UpdatedAt:      doc.Data.UpdatedAt.UTC(),
	}, nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string, delta int) error {
	if r == nil || r.coupons == nil {
		return errors.New("coupon repository not initialised")
	}
	return r.coupons.Update(ctx, strings.TrimSpace(couponID), []firestore.Update{
		{Path: "usedCount", Value: firestore.Increment(delta)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
}

func (r *CouponRepository) Upsert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.coupons == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(coupon.ID)
	if id == "" {
		return invalidError("coupons.upsert", "coupon id is required")
	}
	now := time.Now().UTC()
	createdAt := coupon.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := coupon.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return r.coupons.Set(ctx, id, couponDocument{
		Code:           strings.ToUpper(strings.TrimSpace(coupon.Code)),
		Active:         coupon.Active,
		DiscountType:   string(coupon.DiscountType),
		DiscountValue:  coupon.DiscountValue,
		MinOrderAmount: coupon.MinOrderAmount,
		ExpiresAt:      utcPtr(coupon.ExpiresAt),
		MaxUsage:       coupon.MaxUsage,
		UsedCount:      coupon.UsedCount,
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	})
}
