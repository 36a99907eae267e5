package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/Ngumi22/zami-web-sub001/internal/domain"
)

type fakeWriter struct {
	objects map[string][]byte
	meta    map[string]map[string]string
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeWriter) CreateObject(_ context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	key := bucket + "/" + object
	if _, ok := f.objects[key]; ok {
		return ErrObjectExists
	}
	if contentType != invoiceContentType {
		return fmt.Errorf("unexpected content type %q", contentType)
	}
	f.objects[key] = data
	f.meta[key] = metadata
	return nil
}

func sampleInvoice() domain.Invoice {
	return domain.Invoice{
		ID:             "inv_0001",
		InvoiceNumber:  "INV-7KQ2M9XA",
		OrderID:        "ord_0001",
		OrderNumber:    "ORD-7KQ2M9XA",
		Customer:       domain.Customer{Name: "Jane Wanjiru", Email: "jane@example.com"},
		BillingAddress: domain.Address{FullName: "Jane Wanjiru", AddressLine1: "1 Moi Ave", City: "Nairobi", PostalCode: "00100", Country: "KE"},
		Items:          []domain.InvoiceItem{{Description: "Linen Shirt - M", SKU: "SKU-P1", Quantity: 2, UnitPrice: 500, Total: 1000}},
		Currency:       "KES",
		Subtotal:       1000,
		Total:          1000,
		PaymentStatus:  domain.InvoiceStatusPaid,
		InvoiceDate:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		DueDate:        time.Date(2024, 5, 31, 10, 0, 0, 0, time.UTC),
	}
}

func TestInvoiceArchiveWritesSnapshot(t *testing.T) {
	writer := newFakeWriter()
	archive, err := NewInvoiceArchive(writer, "orders-archive")
	if err != nil {
		t.Fatalf("NewInvoiceArchive: %v", err)
	}

	location, err := archive.ArchiveInvoice(context.Background(), sampleInvoice())
	if err != nil {
		t.Fatalf("ArchiveInvoice: %v", err)
	}
	expected := "gs://orders-archive/invoices/orders/ord_0001/INV-7KQ2M9XA.json"
	if location != expected {
		t.Fatalf("expected %s, got %s", expected, location)
	}

	key := "orders-archive/invoices/orders/ord_0001/INV-7KQ2M9XA.json"
	var doc map[string]any
	if err := json.Unmarshal(writer.objects[key], &doc); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if doc["invoiceNumber"] != "INV-7KQ2M9XA" || doc["paymentStatus"] != "PAID" || doc["total"] != 1000.0 {
		t.Fatalf("unexpected snapshot %v", doc)
	}
	if _, ok := doc["shippingAddress"]; ok {
		t.Fatalf("shippingAddress should be omitted when absent")
	}
	if writer.meta[key]["orderId"] != "ord_0001" {
		t.Fatalf("expected orderId metadata, got %v", writer.meta[key])
	}
}

func TestInvoiceArchiveIsIdempotent(t *testing.T) {
	writer := newFakeWriter()
	archive, _ := NewInvoiceArchive(writer, "orders-archive")
	first, err := archive.ArchiveInvoice(context.Background(), sampleInvoice())
	if err != nil {
		t.Fatalf("first archive: %v", err)
	}
	second, err := archive.ArchiveInvoice(context.Background(), sampleInvoice())
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical locations, got %s and %s", first, second)
	}
}

func TestInvoiceArchiveWrapsWriterErrors(t *testing.T) {
	writer := newFakeWriter()
	writer.err = errors.New("storage unavailable")
	archive, _ := NewInvoiceArchive(writer, "orders-archive")
	if _, err := archive.ArchiveInvoice(context.Background(), sampleInvoice()); !errors.Is(err, writer.err) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestInvoiceObjectPath(t *testing.T) {
	issued := time.Date(2024, 3, 9, 23, 0, 0, 0, time.FixedZone("EAT", 3*3600))

	path, err := InvoiceObjectPath("", "INV-001", issued)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "invoices/manual/2024/03/INV-001.json" {
		t.Fatalf("unexpected manual path %s", path)
	}

	for _, tc := range []struct{ order, number string }{
		{"ord_1", ""},
		{"../ord", "INV-1"},
		{"ord_1", "INV/1"},
	} {
		if _, err := InvoiceObjectPath(tc.order, tc.number, issued); err == nil {
			t.Fatalf("expected error for order %q number %q", tc.order, tc.number)
		}
	}
	if _, err := InvoiceObjectPath("", "INV-1", time.Time{}); err == nil {
		t.Fatalf("expected error for manual invoice without issue date")
	}
}

func TestMapWriteErrorDetectsPrecondition(t *testing.T) {
	err := mapWriteError(&googleapi.Error{Code: http.StatusPreconditionFailed})
	if !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
	if err := mapWriteError(&googleapi.Error{Code: http.StatusForbidden}); errors.Is(err, ErrObjectExists) {
		t.Fatalf("forbidden must not map to exists")
	}
}
