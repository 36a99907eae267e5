package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrNotFound is the parent of every missing-record error.
	ErrNotFound = errors.New("not found")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrProductNotFound indicates an order line references a product that does not exist.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrCouponNotFound indicates the supplied coupon code does not exist.
	ErrCouponNotFound = fmt.Errorf("coupon %w", ErrNotFound)
	// ErrInvoiceNotFound indicates the invoice could not be located.
	ErrInvoiceNotFound = fmt.Errorf("invoice %w", ErrNotFound)
	// ErrOrderInvalidTransition indicates a status change outside the transition table.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates the order changed concurrently.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrDuplicateOrder indicates a likely double submission.
	ErrDuplicateOrder = errors.New("order: duplicate submission")

	// ErrBusinessRule is the parent of every rule rejection.
	ErrBusinessRule = errors.New("business rule violated")
	// ErrCouponInactive rejects coupons that are switched off.
	ErrCouponInactive = fmt.Errorf("%w: coupon is not active", ErrBusinessRule)
	// ErrCouponExpired rejects coupons past their expiry.
	ErrCouponExpired = fmt.Errorf("%w: coupon has expired", ErrBusinessRule)
	// ErrCouponExhausted rejects coupons at their usage cap.
	ErrCouponExhausted = fmt.Errorf("%w: coupon usage limit reached", ErrBusinessRule)
	// ErrCouponMinimumNotMet rejects coupons whose minimum order amount is not reached.
	ErrCouponMinimumNotMet = fmt.Errorf("%w: order does not reach the coupon minimum", ErrBusinessRule)
	// ErrRefundNotAllowed rejects refunds of orders that are not paid.
	ErrRefundNotAllowed = fmt.Errorf("%w: only paid orders can be refunded", ErrBusinessRule)
	// ErrInsufficientStock rejects orders that would drive stock negative.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrBusinessRule)
	// ErrProductUnavailable rejects checkout lines for inactive products.
	ErrProductUnavailable = fmt.Errorf("%w: product is not available", ErrBusinessRule)
	// ErrPaymentRefundFailed reports that the payment provider declined the refund.
	ErrPaymentRefundFailed = fmt.Errorf("%w: payment provider refund failed", ErrBusinessRule)
	// ErrInvoiceNotAllowed rejects invoicing cancelled or refunded orders.
	ErrInvoiceNotAllowed = fmt.Errorf("%w: order cannot be invoiced", ErrBusinessRule)
	// ErrInvoiceExists rejects a second invoice for the same order.
	ErrInvoiceExists = fmt.Errorf("%w: order already has an invoice", ErrBusinessRule)

	// ErrRateLimited indicates the caller exceeded the request budget.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAddressBlocked indicates the caller address is on the blocklist.
	ErrAddressBlocked = fmt.Errorf("%w: address blocked", ErrRateLimited)
	// ErrUnauthenticated indicates an entry point that requires an identity was called anonymously.
	ErrUnauthenticated = errors.New("authentication required")
)

// ValidationErrors maps dotted field paths to messages.
type ValidationErrors map[string][]string

// Add records msg against field.
func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Merge copies child errors under prefix.
func (v ValidationErrors) Merge(prefix string, child ValidationErrors) {
	for field, msgs := range child {
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		v[key] = append(v[key], msgs...)
	}
}

// Empty reports whether no field failed.
func (v ValidationErrors) Empty() bool {
	return len(v) == 0
}

// Err returns a *ValidationError when any field failed, nil otherwise.
func (v ValidationErrors) Err() error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Fields: v}
}

// ValidationError carries field-keyed failures and matches ErrOrderInvalidInput.
type ValidationError struct {
	Fields ValidationErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("%s: %s", ErrOrderInvalidInput, strings.Join(fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrOrderInvalidInput }

// invalidField builds a single-field validation error.
func invalidField(field, msg string) error {
	errs := ValidationErrors{}
	errs.Add(field, msg)
	return errs.Err()
}

// TransitionError names both ends of a rejected status change.
type TransitionError struct {
	Field string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot change %s from %s to %s", ErrOrderInvalidTransition, e.Field, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrOrderInvalidTransition }

// RateLimitError reports a denied request and when the window reopens.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s for %s, retry after %s", ErrRateLimited, e.Key, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// mapRepositoryError translates repository categories into service sentinels.
// notFound is the sentinel to use for a missing record.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("repository unavailable: %w", err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepositoryConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
