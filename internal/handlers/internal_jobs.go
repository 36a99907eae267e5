package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/platform/httpx"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
	"github.com/Ngumi22/zami-web-sub001/internal/services"
)

// InternalHandlers serves endpoints invoked by Cloud Scheduler and other service accounts.
type InternalHandlers struct {
	invoices services.InvoiceService
	clock    func() time.Time
}

// NewInternalHandlers constructs internal job handlers.
func NewInternalHandlers(invoices services.InvoiceService, clock func() time.Time) *InternalHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{invoices: invoices, clock: clock}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/invoices/overdue", h.markOverdue)
}

type overdueResponse struct {
	Count int    `json:"count"`
	RanAt string `json:"ranAt"`
}

func (h *InternalHandlers) markOverdue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock().UTC()
	count, err := h.invoices.MarkOverdueInvoices(ctx, now)
	if err != nil {
		requestctx.Logger(ctx).Error("mark overdue invoices failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("job_failed", "overdue invoice sweep failed", http.StatusInternalServerError))
		return
	}
	requestctx.Logger(ctx).Info("overdue invoices marked", zap.Int("count", count))
	writeJSON(w, http.StatusOK, overdueResponse{Count: count, RanAt: formatTime(now)})
}
