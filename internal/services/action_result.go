package services

import (
	"errors"
)

// UnexpectedErrorMessage is the only text callers see for infrastructure failures.
const UnexpectedErrorMessage = "An unexpected error occurred. Please try again."

// ErrorKind classifies service errors for transport mapping.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindValidation        ErrorKind = "validation"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindInvalidTransition ErrorKind = "invalid_transition"
	ErrorKindDuplicate         ErrorKind = "duplicate"
	ErrorKindConflict          ErrorKind = "conflict"
	ErrorKindBusinessRule      ErrorKind = "business_rule"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindBlocked           ErrorKind = "blocked"
	ErrorKindUnauthenticated   ErrorKind = "unauthenticated"
	ErrorKindUnexpected        ErrorKind = "unexpected"
)

// ActionResult is the envelope returned by every mutating entry point.
type ActionResult[T any] struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *T               `json:"data,omitempty"`
	Errors  ValidationErrors `json:"errors,omitempty"`
}

// Succeed wraps data in a successful envelope.
func Succeed[T any](message string, data T) ActionResult[T] {
	return ActionResult[T]{Success: true, Message: message, Data: &data}
}

// ToActionResult converts the outcome of an operation into the envelope. A nil err yields
// Succeed(message, data).
func ToActionResult[T any](message string, data T, err error) ActionResult[T] {
	if err == nil {
		return Succeed(message, data)
	}
	result := ActionResult[T]{Message: PublicMessage(err)}
	var validation *ValidationError
	if errors.As(err, &validation) {
		result.Errors = validation.Fields
	}
	return result
}

// ClassifyError reports the kind of err. Unknown errors are unexpected.
func ClassifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrOrderInvalidInput):
		return ErrorKindValidation
	case errors.Is(err, ErrAddressBlocked):
		return ErrorKindBlocked
	case errors.Is(err, ErrRateLimited):
		return ErrorKindRateLimited
	case errors.Is(err, ErrUnauthenticated):
		return ErrorKindUnauthenticated
	case errors.Is(err, ErrOrderInvalidTransition):
		return ErrorKindInvalidTransition
	case errors.Is(err, ErrDuplicateOrder):
		return ErrorKindDuplicate
	case errors.Is(err, ErrOrderConflict):
		return ErrorKindConflict
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrBusinessRule):
		return ErrorKindBusinessRule
	default:
		return ErrorKindUnexpected
	}
}

var businessRuleMessages = []struct {
	err     error
	message string
}{
	{ErrCouponInactive, "This coupon is no longer active."},
	{ErrCouponExpired, "This coupon has expired."},
	{ErrCouponExhausted, "This coupon has reached its usage limit."},
	{ErrCouponMinimumNotMet, "The order total does not meet the coupon minimum."},
	{ErrRefundNotAllowed, "Only paid orders can be refunded."},
	{ErrInsufficientStock, "One or more items are out of stock."},
	{ErrProductUnavailable, "One or more items are no longer available."},
	{ErrPaymentRefundFailed, "The payment provider could not process the refund."},
	{ErrInvoiceNotAllowed, "Cancelled or refunded orders cannot be invoiced."},
	{ErrInvoiceExists, "This order already has an invoice."},
}

var notFoundMessages = []struct {
	err     error
	message string
}{
	{ErrOrderNotFound, "Order not found."},
	{ErrProductNotFound, "Product not found."},
	{ErrCouponNotFound, "Coupon not found."},
	{ErrInvoiceNotFound, "Invoice not found."},
}

// PublicMessage returns the caller-facing text for err. Infrastructure details never leak.
func PublicMessage(err error) string {
	switch ClassifyError(err) {
	case ErrorKindNone:
		return ""
	case ErrorKindValidation:
		return "Please correct the highlighted fields."
	case ErrorKindBlocked:
		return "Requests from this address are not allowed."
	case ErrorKindRateLimited:
		return "Too many requests. Please try again later."
	case ErrorKindUnauthenticated:
		return "Please sign in to continue."
	case ErrorKindInvalidTransition:
		var transition *TransitionError
		if errors.As(err, &transition) {
			return "Cannot change " + transition.Field + " from " + transition.From + " to " + transition.To + "."
		}
		return "This status change is not allowed."
	case ErrorKindDuplicate:
		return "A matching order was just placed. Please wait a moment before trying again."
	case ErrorKindConflict:
		return "The order was changed by someone else. Reload it and try again."
	case ErrorKindNotFound:
		for _, candidate := range notFoundMessages {
			if errors.Is(err, candidate.err) {
				return candidate.message
			}
		}
		return "Not found."
	case ErrorKindBusinessRule:
		for _, candidate := range businessRuleMessages {
			if errors.Is(err, candidate.err) {
				return candidate.message
			}
		}
		return "The request violates a business rule."
	default:
		return UnexpectedErrorMessage
	}
}
