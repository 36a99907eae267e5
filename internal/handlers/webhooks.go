package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/payments"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/httpx"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

const (
	maxWebhookBody       = 256 * 1024
	webhookActorID       = "webhook:stripe"
	webhookAckStatus     = "ok"
	webhookIgnoredStatus = "ignored"
)

// PaymentEventParser authenticates a provider delivery and extracts the payment status it carries.
type PaymentEventParser interface {
	ParsePaymentEvent(payload []byte, signature string) (payments.PaymentEvent, error)
}

// WebhookHandlers receives payment provider callbacks.
type WebhookHandlers struct {
	parser PaymentEventParser
	orders services.OrderService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(parser PaymentEventParser, orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

type webhookAck struct {
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.parser == nil || h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "payment webhooks are not configured", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "webhook body could not be read", http.StatusBadRequest))
		return
	}

	event, err := h.parser.ParsePaymentEvent(payload, r.Header.Get(payments.SignatureHeader))
	switch {
	case errors.Is(err, payments.ErrInvalidSignature):
		logger.Warn("webhook signature rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	case errors.Is(err, payments.ErrUnhandledEvent):
		logger.Debug("webhook event ignored", zap.String("event_id", event.EventID), zap.String("event_type", event.Type))
		writeJSON(w, http.StatusOK, webhookAck{Status: webhookIgnoredStatus, EventID: event.EventID})
		return
	case err != nil:
		logger.Warn("webhook payload rejected", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "webhook payload could not be decoded", http.StatusBadRequest))
		return
	}

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.Type),
		zap.String("payment_intent", event.PaymentIntentID),
		zap.String("order_id", event.OrderID),
		zap.String("payment_status", string(event.PaymentStatus)),
	}

	_, err = h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:         event.OrderID,
		PaymentIntentID: event.PaymentIntentID,
		PaymentStatus:   event.PaymentStatus,
		ActorID:         webhookActorID,
	})
	if err != nil {
		kind := services.ClassifyError(err)
		switch kind {
		case services.ErrorKindNotFound, services.ErrorKindInvalidTransition, services.ErrorKindValidation:
			// Redelivery cannot fix these, so the event is acknowledged.
			logger.Info("webhook event not applied", append(fields, zap.String("error_kind", string(kind)), zap.Error(err))...)
			writeJSON(w, http.StatusOK, webhookAck{Status: webhookIgnoredStatus, EventID: event.EventID})
		default:
			logger.Error("webhook event failed", append(fields, zap.Error(err))...)
			httpx.WriteError(ctx, w, httpx.NewError("webhook_failed", "payment update failed", http.StatusInternalServerError))
		}
		return
	}

	logger.Info("webhook event applied", fields...)
	writeJSON(w, http.StatusOK, webhookAck{Status: webhookAckStatus, EventID: event.EventID})
}
