package payments

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

const testSecret = "whsec_test_secret"

func signedHeader(payload []byte, secret string, at time.Time) string {
	signature := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(signature))
}

func intentEvent(eventType, metadata string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"pi_1","object":"payment_intent","metadata":%s}}}`, eventType, metadata))
}

func TestParsePaymentEventMapsIntentStatuses(t *testing.T) {
	verifier, err := NewWebhookVerifier(testSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	cases := map[string]domain.PaymentStatus{
		"payment_intent.succeeded":       domain.PaymentStatusPaid,
		"payment_intent.payment_failed":  domain.PaymentStatusFailed,
		"payment_intent.canceled":        domain.PaymentStatusFailed,
		"payment_intent.processing":      domain.PaymentStatusPending,
		"payment_intent.requires_action": domain.PaymentStatusPending,
	}
	for eventType, want := range cases {
		payload := intentEvent(eventType, `{"orderId":"ord_42"}`)
		event, err := verifier.ParsePaymentEvent(payload, signedHeader(payload, testSecret, time.Now()))
		if err != nil {
			t.Fatalf("%s: parse: %v", eventType, err)
		}
		if event.PaymentStatus != want || event.PaymentIntentID != "pi_1" || event.OrderID != "ord_42" || event.EventID != "evt_1" {
			t.Fatalf("%s: unexpected event %+v", eventType, event)
		}
	}
}

func TestParsePaymentEventAcceptsSnakeCaseMetadata(t *testing.T) {
	verifier, _ := NewWebhookVerifier(testSecret)
	payload := intentEvent("payment_intent.succeeded", `{"order_id":"ord_7"}`)

	event, err := verifier.ParsePaymentEvent(payload, signedHeader(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.OrderID != "ord_7" {
		t.Fatalf("expected order id from metadata, got %q", event.OrderID)
	}
}

func TestParsePaymentEventRejectsBadSignatures(t *testing.T) {
	verifier, _ := NewWebhookVerifier(testSecret)
	payload := intentEvent("payment_intent.succeeded", `{}`)

	headers := map[string]string{
		"wrong secret": signedHeader(payload, "whsec_other", time.Now()),
		"stale":        signedHeader(payload, testSecret, time.Now().Add(-time.Hour)),
		"garbage":      "t=1,v1=deadbeef",
		"missing":      "",
	}
	for name, header := range headers {
		if _, err := verifier.ParsePaymentEvent(payload, header); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}

func TestParsePaymentEventReportsUnhandledTypes(t *testing.T) {
	verifier, _ := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	event, err := verifier.ParsePaymentEvent(payload, signedHeader(payload, testSecret, time.Now()))
	if !errors.Is(err, ErrUnhandledEvent) {
		t.Fatalf("expected ErrUnhandledEvent, got %v", err)
	}
	if event.EventID != "evt_2" || event.Type != "customer.created" {
		t.Fatalf("expected event identity to be reported, got %+v", event)
	}
}

func TestNewWebhookVerifierRequiresSecret(t *testing.T) {
	if _, err := NewWebhookVerifier("  "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
