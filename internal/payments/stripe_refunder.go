package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

// Logger matches the structured event logger used by the service layer.
type Logger func(ctx context.Context, event string, fields map[string]any)

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeConfig configures the StripeRefunder.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    Logger
	// Refunds overrides the Stripe refunds client.
	Refunds stripeRefundAPI
}

// StripeRefunder issues full refunds against captured Stripe payment intents.
type StripeRefunder struct {
	refunds stripeRefundAPI
	account string
	logger  Logger
}

var _ services.PaymentRefunder = (*StripeRefunder)(nil)

// NewStripeRefunder constructs a StripeRefunder from cfg.
func NewStripeRefunder(cfg StripeConfig) (*StripeRefunder, error) {
	refunds := cfg.Refunds
	if refunds == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		refunds = client.New(apiKey, cfg.Backends).Refunds
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeRefunder{
		refunds: refunds,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// RefundPayment refunds the full captured amount of req.PaymentIntentID. Retries with the same
// idempotency key return the refund created by the first attempt, and a payment already refunded
// on the Stripe side is reported as succeeded.
func (r *StripeRefunder) RefundPayment(ctx context.Context, req services.PaymentRefundRequest) (services.PaymentRefundResult, error) {
	if r == nil {
		return services.PaymentRefundResult{}, errors.New("stripe: refunder is nil")
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return services.PaymentRefundResult{}, errors.New("stripe: payment intent is required")
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if r.account != "" {
		params.SetStripeAccount(r.account)
	}
	if reason := mapRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = maps.Clone(req.Metadata)
	}

	refund, err := r.refunds.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			r.logger(ctx, "payments.stripe.refund.already_refunded", map[string]any{"paymentIntent": intentID})
			return services.PaymentRefundResult{Status: string(stripe.RefundStatusSucceeded)}, nil
		}
		return services.PaymentRefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	r.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": intentID,
		"refund":        refund.ID,
		"status":        string(refund.Status),
	})
	return services.PaymentRefundResult{RefundID: refund.ID, Status: string(refund.Status)}, nil
}

// mapRefundReason keeps Stripe's enumerated reasons and drops free text, which is carried on
// the order instead.
func mapRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer), "requested by customer":
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
