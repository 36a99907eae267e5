package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrInvalidSignature reports a payload whose signature or timestamp does not verify.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrUnhandledEvent reports a verified event that carries no payment status change.
	ErrUnhandledEvent = errors.New("payments: unhandled webhook event")
)

// PaymentEvent is the payment status change carried by a verified webhook.
type PaymentEvent struct {
	EventID         string
	Type            string
	PaymentIntentID string
	OrderID         string
	PaymentStatus   domain.PaymentStatus
}

// WebhookVerifier authenticates Stripe webhook deliveries with the endpoint signing secret.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier constructs a verifier for secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: webhook signing secret is required")
	}
	return &WebhookVerifier{secret: secret}, nil
}

// ParsePaymentEvent verifies payload against signature and maps payment intent events to the
// payment status they imply.
func (v *WebhookVerifier) ParsePaymentEvent(payload []byte, signature string) (PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	status, ok := paymentStatusForEvent(event.Type)
	if !ok {
		return PaymentEvent{EventID: event.ID, Type: string(event.Type)}, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}

	var intent stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &intent) != nil || intent.ID == "" {
		return PaymentEvent{}, fmt.Errorf("payments: decode payment intent for event %s", event.ID)
	}

	return PaymentEvent{
		EventID:         event.ID,
		Type:            string(event.Type),
		PaymentIntentID: intent.ID,
		OrderID:         orderIDFromMetadata(intent.Metadata),
		PaymentStatus:   status,
	}, nil
}

func paymentStatusForEvent(eventType stripe.EventType) (domain.PaymentStatus, bool) {
	switch eventType {
	case stripe.EventTypePaymentIntentSucceeded:
		return domain.PaymentStatusPaid, true
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		return domain.PaymentStatusFailed, true
	case stripe.EventTypePaymentIntentProcessing, stripe.EventTypePaymentIntentRequiresAction:
		return domain.PaymentStatusPending, true
	default:
		return "", false
	}
}

func orderIDFromMetadata(metadata map[string]string) string {
	for _, key := range []string{"orderId", "order_id"} {
		if id := strings.TrimSpace(metadata[key]); id != "" {
			return id
		}
	}
	return ""
}
