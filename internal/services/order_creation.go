package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/textutil"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

const maxOrderNumberAttempts = 3

// OrderCreationPayload is the validated input of the creation transaction. Totals are supplied by
// the caller; discount is derived from them.
type OrderCreationPayload struct {
	CustomerID      string
	Customer        Customer
	Items           []OrderItem
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Total           float64
	Currency        string
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	ShippingAddress Address
	BillingAddress  *Address
	CouponCode      string
	Notes           string
	IdempotencyKey  string
	// AdminOriginated records the order as COMPLETED and PAID.
	AdminOriginated bool
	// CatalogPricing requires unit prices to match the catalog and limits the
	// discount to what the coupon grants.
	CatalogPricing bool
	ActorID        string
	Source         string
}

// Actor is the authenticated caller of an entry point.
type Actor struct {
	ID    string
	Staff bool
}

// CreateOrderInput is the authenticated wrapper around ProcessOrderCreation.
type CreateOrderInput struct {
	Actor   Actor
	Payload OrderCreationPayload
}

// CheckoutItem references a catalog product; price and name come from the catalog.
type CheckoutItem struct {
	ProductID   string
	VariantID   string
	VariantName string
	Quantity    int
}

// CheckoutRequest turns cart lines into an order. CustomerID is empty for guests.
type CheckoutRequest struct {
	CustomerID      string
	Customer        Customer
	Items           []CheckoutItem
	CouponCode      string
	Tax             float64
	Shipping        float64
	Currency        string
	PaymentMethod   PaymentMethod
	PaymentIntentID string
	ShippingAddress Address
	BillingAddress  *Address
	Notes           string
	IdempotencyKey  string
}

func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	actorID := strings.TrimSpace(input.Actor.ID)
	if actorID == "" {
		return Order{}, ErrUnauthenticated
	}
	if s.rateGuard != nil {
		if err := s.rateGuard.Require(ctx, RateLimitRequest{Identifier: "orders.create:" + actorID}); err != nil {
			return Order{}, err
		}
	}

	payload := input.Payload
	payload.ActorID = actorID
	payload.Source = "api"
	if input.Actor.Staff {
		payload.AdminOriginated = true
		payload.Source = "admin"
	} else {
		payload.CustomerID = actorID
		payload.AdminOriginated = false
		payload.CatalogPricing = true
	}
	return s.ProcessOrderCreation(ctx, payload)
}

func (s *orderService) CheckoutFromCart(ctx context.Context, req CheckoutRequest) (Order, error) {
	errs := ValidationErrors{}
	if len(req.Items) == 0 {
		errs.Add("items", "At least one item is required")
	}
	for i, item := range req.Items {
		key := fmt.Sprintf("items.%d", i)
		if strings.TrimSpace(item.ProductID) == "" {
			errs.Add(key+".productId", "Product is required")
		}
		if item.Quantity < minItemQuantity || item.Quantity > maxItemQuantity {
			errs.Add(key+".quantity", fmt.Sprintf("Quantity must be between %d and %d", minItemQuantity, maxItemQuantity))
		}
	}
	checkAmount(errs, "tax", req.Tax)
	checkAmount(errs, "shipping", req.Shipping)
	checkLength(errs, "couponCode", req.CouponCode, maxCouponCodeLength)
	if !errs.Empty() {
		return Order{}, errs.Err()
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if s.rateGuard != nil {
		identifier := ""
		if customerID != "" {
			identifier = "checkout:" + customerID
		}
		if err := s.rateGuard.Require(ctx, RateLimitRequest{Identifier: identifier}); err != nil {
			return Order{}, err
		}
	}

	items := make([]OrderItem, 0, len(req.Items))
	var subtotal float64
	for _, line := range req.Items {
		product, err := s.products.FindByID(ctx, strings.TrimSpace(line.ProductID))
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrProductNotFound)
		}
		if !product.Active {
			return Order{}, fmt.Errorf("%w: %s", ErrProductUnavailable, product.ID)
		}
		item := OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			VariantID:   strings.TrimSpace(line.VariantID),
			VariantName: textutil.StripMarkup(line.VariantName),
			SKU:         product.SKU,
			Quantity:    line.Quantity,
			Price:       domain.RoundMoney(product.Price),
		}
		item.Total = domain.LineTotal(item.Quantity, item.Price)
		subtotal += item.Total
		items = append(items, item)
	}
	subtotal = domain.RoundMoney(subtotal)

	var discount float64
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, err := s.coupons.FindByCode(ctx, code)
		if err != nil {
			return Order{}, mapRepositoryError(err, ErrCouponNotFound)
		}
		discount, err = CouponDiscount(coupon, subtotal)
		if err != nil {
			return Order{}, err
		}
	}

	return s.ProcessOrderCreation(ctx, OrderCreationPayload{
		CustomerID:      customerID,
		Customer:        req.Customer,
		Items:           items,
		Subtotal:        subtotal,
		Tax:             domain.RoundMoney(req.Tax),
		Shipping:        domain.RoundMoney(req.Shipping),
		Total:           domain.OrderTotal(subtotal, req.Tax, req.Shipping, discount),
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		PaymentIntentID: req.PaymentIntentID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CouponCode:      req.CouponCode,
		Notes:           req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
		CatalogPricing:  true,
		ActorID:         customerID,
		Source:          "checkout",
	})
}

// CouponDiscount computes the discount a coupon grants on subtotal, capped at subtotal.
func CouponDiscount(coupon domain.Coupon, subtotal float64) (float64, error) {
	if coupon.MinOrderAmount > 0 && subtotal < coupon.MinOrderAmount {
		return 0, fmt.Errorf("%w: minimum %.2f, subtotal %.2f", ErrCouponMinimumNotMet, coupon.MinOrderAmount, subtotal)
	}
	var discount float64
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		discount = subtotal * coupon.DiscountValue / 100
	case domain.DiscountTypeFixed:
		discount = coupon.DiscountValue
	default:
		return 0, fmt.Errorf("coupon %s: unknown discount type %q", coupon.Code, coupon.DiscountType)
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return domain.RoundMoney(discount), nil
}

func (s *orderService) ProcessOrderCreation(ctx context.Context, payload OrderCreationPayload) (Order, error) {
	if errs := ValidateOrderCreation(payload); !errs.Empty() {
		return Order{}, errs.Err()
	}

	now := s.now()
	draft := s.draftOrder(payload, now)
	tokenID := orderTokenID(draft.CustomerID, draft.Customer.Email, draft.IdempotencyKey)

	var (
		order    Order
		replayed bool
	)
	for attempt := 1; ; attempt++ {
		number, err := s.newNumber()
		if err != nil {
			return Order{}, fmt.Errorf("order: generate number: %w", err)
		}
		draft.OrderNumber = number

		order, replayed, err = s.createOnce(ctx, draft, tokenID, now, payload.CatalogPricing)
		if err == nil {
			break
		}
		// Everything else in the transaction is read-checked first, so a conflict at insert
		// means the random number is taken.
		if isRepositoryConflict(err) && attempt < maxOrderNumberAttempts {
			s.logger(ctx, "order.number.collision", map[string]any{"number": number, "attempt": attempt})
			continue
		}
		if isRepositoryConflict(err) {
			return Order{}, fmt.Errorf("order: allocate order number after %d attempts: %w", attempt, err)
		}
		return Order{}, err
	}

	if replayed {
		s.logger(ctx, "order.create.replayed", map[string]any{"order": order.ID, "customer": order.CustomerID})
		return order, nil
	}

	s.metrics.OrderCreated(ctx, payload.Source)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       order.CreatedBy,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":    order.Total,
			"currency": order.Currency,
			"items":    len(order.Items),
			"guest":    order.Guest,
		},
	})
	s.logger(ctx, "order.created", map[string]any{
		"order":    order.ID,
		"number":   order.OrderNumber,
		"customer": order.CustomerID,
		"total":    order.Total,
		"admin":    payload.AdminOriginated,
	})
	return order, nil
}

// draftOrder builds the order fields that do not depend on catalog or coupon state.
func (s *orderService) draftOrder(payload OrderCreationPayload, now time.Time) Order {
	customerID := strings.TrimSpace(payload.CustomerID)
	currency := strings.ToUpper(strings.TrimSpace(payload.Currency))
	if currency == "" {
		currency = s.settings.Currency
	}

	items := make([]OrderItem, len(payload.Items))
	for i, item := range payload.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.ProductName = textutil.StripMarkup(item.ProductName)
		item.VariantID = strings.TrimSpace(item.VariantID)
		item.VariantName = textutil.StripMarkup(item.VariantName)
		item.SKU = strings.TrimSpace(item.SKU)
		item.Price = domain.RoundMoney(item.Price)
		item.Total = domain.LineTotal(item.Quantity, item.Price)
		items[i] = item
	}

	order := Order{
		ID:         s.nextOrderID(),
		CustomerID: customerID,
		Guest:      customerID == "",
		Customer: Customer{
			Name:  textutil.StripMarkup(payload.Customer.Name),
			Email: strings.ToLower(strings.TrimSpace(payload.Customer.Email)),
			Phone: strings.TrimSpace(payload.Customer.Phone),
		},
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   payload.PaymentMethod,
		PaymentIntentID: strings.TrimSpace(payload.PaymentIntentID),
		Currency:        currency,
		Items:           items,
		Tax:             domain.RoundMoney(payload.Tax),
		Shipping:        domain.RoundMoney(payload.Shipping),
		ShippingAddress: sanitizeAddress(payload.ShippingAddress),
		CouponCode:      strings.ToUpper(strings.TrimSpace(payload.CouponCode)),
		Notes:           textutil.StripMarkup(payload.Notes),
		IdempotencyKey:  strings.TrimSpace(payload.IdempotencyKey),
		CreatedBy:       strings.TrimSpace(payload.ActorID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if payload.BillingAddress != nil {
		billing := sanitizeAddress(*payload.BillingAddress)
		order.BillingAddress = &billing
	}
	if payload.AdminOriginated {
		order.Status = domain.OrderStatusCompleted
		order.PaymentStatus = domain.PaymentStatusPaid
		order.CompletedAt = timePtr(now)
	}

	var subtotal float64
	for _, item := range items {
		subtotal += item.Total
	}
	order.Subtotal = domain.RoundMoney(subtotal)
	order.Discount = domain.RoundMoney(order.Subtotal + order.Tax + order.Shipping - payload.Total)
	order.Total = domain.OrderTotal(order.Subtotal, order.Tax, order.Shipping, order.Discount)
	return order
}

// createOnce runs the creation transaction. Firestore needs every read before the first write, so
// the token, duplicate, payment intent, coupon, and product reads come first.
func (s *orderService) createOnce(ctx context.Context, draft Order, tokenID string, now time.Time, catalogPricing bool) (Order, bool, error) {
	var (
		order    Order
		replayed bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order = draft
		order.Items = cloneOrderItems(draft.Items)
		replayed = false

		if tokenID != "" && s.tokens != nil {
			token, err := s.tokens.Get(txCtx, tokenID)
			switch {
			case err == nil:
				existing, err := s.orders.FindByID(txCtx, token.OrderID)
				if err != nil {
					return mapRepositoryError(err, ErrOrderNotFound)
				}
				order = existing
				replayed = true
				return nil
			case !isRepositoryNotFound(err):
				return fmt.Errorf("order: read idempotency token: %w", err)
			}
		}

		if !order.Guest {
			recent, err := s.orders.FindRecentByCustomer(txCtx, order.CustomerID, now.Add(-s.settings.DuplicateWindow))
			if err != nil {
				return fmt.Errorf("order: duplicate lookup: %w", err)
			}
			for _, candidate := range recent {
				if domain.MoneyEqual(candidate.Total, order.Total) {
					return fmt.Errorf("%w: order %s placed at %s", ErrDuplicateOrder, candidate.OrderNumber, candidate.CreatedAt.Format(time.RFC3339))
				}
			}
		}

		if order.PaymentIntentID != "" {
			existing, err := s.orders.FindByPaymentIntent(txCtx, order.PaymentIntentID)
			switch {
			case err == nil:
				return fmt.Errorf("%w: payment intent %s already belongs to order %s", ErrDuplicateOrder, order.PaymentIntentID, existing.OrderNumber)
			case !isRepositoryNotFound(err):
				return fmt.Errorf("order: payment intent lookup: %w", err)
			}
		}

		var coupon *domain.Coupon
		if order.CouponCode != "" {
			found, err := s.coupons.FindByCode(txCtx, order.CouponCode)
			if err != nil {
				return mapRepositoryError(err, ErrCouponNotFound)
			}
			if err := checkCouponUsable(found, now); err != nil {
				return err
			}
			coupon = &found
			order.CouponID = found.ID
			order.CouponCode = found.Code
		}

		productIDs, quantities := aggregateQuantities(order.Items)
		products := make(map[string]domain.Product, len(productIDs))
		for _, productID := range productIDs {
			product, err := s.products.FindByID(txCtx, productID)
			if err != nil {
				return mapRepositoryError(err, ErrProductNotFound)
			}
			if !s.settings.AllowOversell && product.Stock < quantities[productID] {
				return fmt.Errorf("%w: product %s has %d left, %d requested", ErrInsufficientStock, productID, product.Stock, quantities[productID])
			}
			products[productID] = product
		}
		if catalogPricing {
			if err := checkCatalogPricing(order, products, coupon); err != nil {
				return err
			}
		}
		for i := range order.Items {
			product := products[order.Items[i].ProductID]
			if name := strings.TrimSpace(product.Name); name != "" {
				order.Items[i].ProductName = name
			}
			if sku := strings.TrimSpace(product.SKU); sku != "" {
				order.Items[i].SKU = sku
			}
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return err
		}
		if tokenID != "" && s.tokens != nil {
			if err := s.tokens.Create(txCtx, repositories.OrderToken{ID: tokenID, OrderID: order.ID, CreatedAt: now}); err != nil {
				return err
			}
		}
		for _, productID := range productIDs {
			q := quantities[productID]
			if err := s.products.AdjustInventory(txCtx, productID, -q, q); err != nil {
				return mapRepositoryError(err, ErrProductNotFound)
			}
		}
		if coupon != nil {
			if err := s.coupons.IncrementUsage(txCtx, coupon.ID, 1); err != nil {
				return mapRepositoryError(err, ErrCouponNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}
	return order, replayed, nil
}

// checkCatalogPricing rejects orders whose prices or discount were not derived from the
// catalog and coupon read in the same transaction.
func checkCatalogPricing(order Order, products map[string]domain.Product, coupon *domain.Coupon) error {
	for i, item := range order.Items {
		if !domain.MoneyEqual(item.Price, domain.RoundMoney(products[item.ProductID].Price)) {
			return invalidField(fmt.Sprintf("items.%d.price", i), "Price does not match the current catalog price")
		}
	}
	var allowed float64
	if coupon != nil {
		discount, err := CouponDiscount(*coupon, order.Subtotal)
		if err != nil {
			return err
		}
		allowed = discount
	}
	if order.Discount > allowed && !domain.MoneyEqual(order.Discount, allowed) {
		return invalidField("total", "Total does not match catalog prices and coupon discount")
	}
	return nil
}

func checkCouponUsable(coupon domain.Coupon, now time.Time) error {
	switch {
	case !coupon.Active:
		return fmt.Errorf("%w: %s", ErrCouponInactive, coupon.Code)
	case coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt):
		return fmt.Errorf("%w: %s expired at %s", ErrCouponExpired, coupon.Code, coupon.ExpiresAt.Format(time.RFC3339))
	case coupon.MaxUsage != nil && coupon.UsedCount >= *coupon.MaxUsage:
		return fmt.Errorf("%w: %s used %d of %d", ErrCouponExhausted, coupon.Code, coupon.UsedCount, *coupon.MaxUsage)
	}
	return nil
}

// orderTokenID scopes the caller key to the customer so two customers never share a token.
func orderTokenID(customerID, email, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	owner := customerID
	if owner == "" {
		owner = "guest:" + strings.ToLower(strings.TrimSpace(email))
	}
	sum := sha256.Sum256([]byte(owner + "|" + key))
	return hex.EncodeToString(sum[:])
}
