package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/Ngumi22/zami-web-sub001/orders"

// OrderMetrics records order lifecycle counters on OpenTelemetry instruments.
// Instruments that fail to register are skipped so recording never fails a request.
type OrderMetrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	refunds     metric.Int64Counter
	denials     metric.Int64Counter
}

// NewOrderMetrics registers the order counters on meter, or on the global meter provider when meter is nil.
func NewOrderMetrics(meter metric.Meter, logger *zap.Logger) *OrderMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	register := func(name, description string) metric.Int64Counter {
		counter, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger.Warn("metrics: unable to register counter", zap.String("name", name), zap.Error(err))
			return nil
		}
		return counter
	}

	return &OrderMetrics{
		created:     register("orders.created", "Orders persisted, labelled by creation source"),
		transitions: register("orders.status.transitions", "Order status transitions, labelled by from and to status"),
		refunds:     register("orders.refunds", "Orders refunded through the payment provider"),
		denials:     register("orders.ratelimit.denials", "Mutating calls rejected by the rate guard"),
	}
}

// OrderCreated counts a persisted order.
func (m *OrderMetrics) OrderCreated(ctx context.Context, source string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// StatusChanged counts a status transition.
func (m *OrderMetrics) StatusChanged(ctx context.Context, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// OrderRefunded counts a completed refund.
func (m *OrderMetrics) OrderRefunded(ctx context.Context) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Add(ctx, 1)
}

// RateLimited counts a rejected call. blocked distinguishes blocklist hits from exhausted windows.
func (m *OrderMetrics) RateLimited(ctx context.Context, blocked bool) {
	if m == nil || m.denials == nil {
		return
	}
	m.denials.Add(ctx, 1, metric.WithAttributes(attribute.Bool("blocked", blocked)))
}
