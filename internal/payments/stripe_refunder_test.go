package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"

	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

type fakeRefunds struct {
	params *stripe.RefundParams
	refund *stripe.Refund
	err    error
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.refund, nil
}

func TestStripeRefunderSendsIdempotentFullRefund(t *testing.T) {
	api := &fakeRefunds{refund: &stripe.Refund{ID: "re_123", Status: stripe.RefundStatusSucceeded}}
	var events []string
	refunder, err := NewStripeRefunder(StripeConfig{
		Refunds:   api,
		AccountID: "acct_1",
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("new refunder: %v", err)
	}

	result, err := refunder.RefundPayment(context.Background(), services.PaymentRefundRequest{
		PaymentIntentID: "pi_1",
		IdempotencyKey:  "refund-ord_1",
		Reason:          "requested_by_customer",
		Metadata:        map[string]string{"orderId": "ord_1"},
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.RefundID != "re_123" || result.Status != "succeeded" {
		t.Fatalf("unexpected result: %+v", result)
	}

	if api.params == nil || stripe.StringValue(api.params.PaymentIntent) != "pi_1" {
		t.Fatalf("expected payment intent to be sent, got %+v", api.params)
	}
	if api.params.Amount != nil {
		t.Fatalf("expected full refund without amount")
	}
	if got := stripe.StringValue(api.params.IdempotencyKey); got != "refund-ord_1" {
		t.Fatalf("expected idempotency key, got %q", got)
	}
	if got := stripe.StringValue(api.params.StripeAccount); got != "acct_1" {
		t.Fatalf("expected connected account, got %q", got)
	}
	if got := stripe.StringValue(api.params.Reason); got != "requested_by_customer" {
		t.Fatalf("expected reason, got %q", got)
	}
	if api.params.Metadata["orderId"] != "ord_1" {
		t.Fatalf("expected metadata, got %v", api.params.Metadata)
	}
	if len(events) != 1 || events[0] != "payments.stripe.refund.created" {
		t.Fatalf("unexpected log events %v", events)
	}
}

func TestStripeRefunderDropsFreeTextReason(t *testing.T) {
	api := &fakeRefunds{refund: &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusPending}}
	refunder, _ := NewStripeRefunder(StripeConfig{Refunds: api})

	if _, err := refunder.RefundPayment(context.Background(), services.PaymentRefundRequest{PaymentIntentID: "pi_1", Reason: "box arrived crushed"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if api.params.Reason != nil {
		t.Fatalf("expected free text reason to be omitted, got %q", *api.params.Reason)
	}
}

func TestStripeRefunderTreatsAlreadyRefundedAsSuccess(t *testing.T) {
	api := &fakeRefunds{err: &stripe.Error{Code: stripe.ErrorCodeChargeAlreadyRefunded, Msg: "already refunded"}}
	refunder, _ := NewStripeRefunder(StripeConfig{Refunds: api})

	result, err := refunder.RefundPayment(context.Background(), services.PaymentRefundRequest{PaymentIntentID: "pi_1"})
	if err != nil {
		t.Fatalf("expected already refunded to succeed, got %v", err)
	}
	if result.Status != "succeeded" {
		t.Fatalf("unexpected status %q", result.Status)
	}
}

func TestStripeRefunderWrapsProviderErrors(t *testing.T) {
	cause := errors.New("connection reset")
	refunder, _ := NewStripeRefunder(StripeConfig{Refunds: &fakeRefunds{err: cause}})

	_, err := refunder.RefundPayment(context.Background(), services.PaymentRefundRequest{PaymentIntentID: "pi_1"})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestStripeRefunderValidation(t *testing.T) {
	if _, err := NewStripeRefunder(StripeConfig{}); err == nil {
		t.Fatalf("expected api key to be required")
	}
	refunder, _ := NewStripeRefunder(StripeConfig{Refunds: &fakeRefunds{}})
	if _, err := refunder.RefundPayment(context.Background(), services.PaymentRefundRequest{}); err == nil {
		t.Fatalf("expected payment intent to be required")
	}
}
