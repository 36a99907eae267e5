package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/payments"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

type stubEventParser struct {
	event     payments.PaymentEvent
	err       error
	signature string
	payload   string
}

func (s *stubEventParser) ParsePaymentEvent(payload []byte, signature string) (payments.PaymentEvent, error) {
	s.payload = string(payload)
	s.signature = signature
	return s.event, s.err
}

func postWebhook(t *testing.T, h *WebhookHandlers, body string, signature string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, h.Routes, "webhooks", http.MethodPost, "/api/v1/webhooks/stripe", "", body,
		map[string]string{payments.SignatureHeader: signature})
}

func TestWebhookHandlers_AppliesPaymentStatus(t *testing.T) {
	parser := &stubEventParser{event: payments.PaymentEvent{
		EventID:         "evt_1",
		Type:            "payment_intent.succeeded",
		PaymentIntentID: "pi_1",
		OrderID:         "ord_1",
		PaymentStatus:   domain.PaymentStatusPaid,
	}}
	orders := &stubOrderService{order: sampleOrder()}
	h := NewWebhookHandlers(parser, orders)

	rr := postWebhook(t, h, `{"id":"evt_1"}`, "t=1,v1=abc")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if parser.signature != "t=1,v1=abc" || parser.payload != `{"id":"evt_1"}` {
		t.Fatalf("parser received %q / %q", parser.signature, parser.payload)
	}
	if len(orders.payCmds) != 1 {
		t.Fatalf("expected one payment update, got %d", len(orders.payCmds))
	}
	cmd := orders.payCmds[0]
	if cmd.OrderID != "ord_1" || cmd.PaymentIntentID != "pi_1" || cmd.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if cmd.ActorID != webhookActorID {
		t.Fatalf("unexpected actor %q", cmd.ActorID)
	}
	var ack webhookAck
	if err := json.Unmarshal(rr.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != webhookAckStatus || ack.EventID != "evt_1" {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestWebhookHandlers_RejectsBadSignature(t *testing.T) {
	parser := &stubEventParser{err: fmt.Errorf("%w: no signatures", payments.ErrInvalidSignature)}
	orders := &stubOrderService{}
	h := NewWebhookHandlers(parser, orders)

	rr := postWebhook(t, h, `{}`, "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if len(orders.calls) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestWebhookHandlers_AcknowledgesUnhandledEvents(t *testing.T) {
	parser := &stubEventParser{
		event: payments.PaymentEvent{EventID: "evt_2", Type: "customer.created"},
		err:   fmt.Errorf("%w: customer.created", payments.ErrUnhandledEvent),
	}
	orders := &stubOrderService{}
	h := NewWebhookHandlers(parser, orders)

	rr := postWebhook(t, h, `{}`, "sig")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(orders.calls) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestWebhookHandlers_OutcomeMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown order", services.ErrOrderNotFound, http.StatusOK},
		{"invalid transition", &services.TransitionError{Field: "paymentStatus", From: "REFUNDED", To: "PAID"}, http.StatusOK},
		{"store failure", errors.New("firestore: unavailable"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parser := &stubEventParser{event: payments.PaymentEvent{
				EventID:         "evt_3",
				PaymentIntentID: "pi_3",
				PaymentStatus:   domain.PaymentStatusFailed,
			}}
			h := NewWebhookHandlers(parser, &stubOrderService{err: tc.err})

			rr := postWebhook(t, h, `{}`, "sig")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestWebhookHandlers_WithStripeVerifier(t *testing.T) {
	const secret = "whsec_test"
	verifier, err := payments.NewWebhookVerifier(secret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	orders := &stubOrderService{order: sampleOrder()}
	h := NewWebhookHandlers(verifier, orders)

	payload := `{"id":"evt_live","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_live","object":"payment_intent","metadata":{"orderId":"ord_9"}}}}`
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), secret)
	header := fmt.Sprintf("t=%d,v1=%x", now.Unix(), sig)

	router := chi.NewRouter()
	h.Routes(router)
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(payload))
	req.Header.Set(payments.SignatureHeader, header)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(orders.payCmds) != 1 || orders.payCmds[0].OrderID != "ord_9" || orders.payCmds[0].PaymentStatus != domain.PaymentStatusFailed {
		t.Fatalf("unexpected payment updates %+v", orders.payCmds)
	}
}
