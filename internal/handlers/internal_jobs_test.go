package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestInternalHandlers_MarkOverdue(t *testing.T) {
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	invoices := &stubInvoiceService{count: 4}
	h := NewInternalHandlers(invoices, func() time.Time { return now })

	rr := serve(t, h.Routes, "internal", http.MethodPost, "/api/v1/internal/invoices/overdue", "", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !invoices.now.Equal(now) {
		t.Fatalf("expected sweep at %v, got %v", now, invoices.now)
	}
	var body overdueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 4 || body.RanAt != "2024-06-01T03:00:00Z" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestInternalHandlers_MarkOverdueFailure(t *testing.T) {
	invoices := &stubInvoiceService{err: errors.New("query failed")}
	h := NewInternalHandlers(invoices, nil)

	rr := serve(t, h.Routes, "internal", http.MethodPost, "/api/v1/internal/invoices/overdue", "", "", nil)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
