package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Ngumi22/zami-web-sub001/internal/domain"
)

const invoiceContentType = "application/json"

// ObjectWriter persists a single object. Writes must not overwrite an existing object.
type ObjectWriter interface {
	CreateObject(ctx context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error
}

// ErrObjectExists is returned by an ObjectWriter when the object is already present.
var ErrObjectExists = errors.New("storage: object already exists")

// InvoiceArchive stores an immutable JSON copy of every issued invoice.
type InvoiceArchive struct {
	writer ObjectWriter
	bucket string
}

// NewInvoiceArchive constructs an archive writing to bucket.
func NewInvoiceArchive(writer ObjectWriter, bucket string) (*InvoiceArchive, error) {
	if writer == nil {
		return nil, errors.New("invoice archive: writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("invoice archive: bucket is required")
	}
	return &InvoiceArchive{writer: writer, bucket: bucket}, nil
}

// ArchiveInvoice writes the invoice snapshot and returns its gs:// location. Archiving the same
// invoice number twice returns the existing location.
func (a *InvoiceArchive) ArchiveInvoice(ctx context.Context, invoice domain.Invoice) (string, error) {
	if a == nil || a.writer == nil {
		return "", errors.New("invoice archive: not initialised")
	}
	object, err := InvoiceObjectPath(invoice.OrderID, invoice.InvoiceNumber, invoice.InvoiceDate)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(newInvoiceDocument(invoice))
	if err != nil {
		return "", fmt.Errorf("invoice archive: marshal: %w", err)
	}

	metadata := map[string]string{
		"invoiceId":     invoice.ID,
		"invoiceNumber": invoice.InvoiceNumber,
	}
	if invoice.OrderID != "" {
		metadata["orderId"] = invoice.OrderID
	}

	location := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	if err := a.writer.CreateObject(ctx, a.bucket, object, invoiceContentType, data, metadata); err != nil {
		if errors.Is(err, ErrObjectExists) {
			return location, nil
		}
		return "", fmt.Errorf("invoice archive: write %s: %w", location, err)
	}
	return location, nil
}

// GCSWriter implements ObjectWriter on Cloud Storage using a does-not-exist precondition.
type GCSWriter struct {
	client *gcs.Client
}

// NewGCSWriter wraps a Cloud Storage client.
func NewGCSWriter(client *gcs.Client) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &GCSWriter{client: client}, nil
}

// CreateObject uploads data unless the object already exists.
func (w *GCSWriter) CreateObject(ctx context.Context, bucket, object, contentType string, data []byte, metadata map[string]string) error {
	obj := w.client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return mapWriteError(err)
	}
	return mapWriteError(writer.Close())
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %v", ErrObjectExists, err)
	}
	return err
}

type invoiceDocument struct {
	ID              string                `json:"id"`
	InvoiceNumber   string                `json:"invoiceNumber"`
	OrderID         string                `json:"orderId,omitempty"`
	OrderNumber     string                `json:"orderNumber,omitempty"`
	Customer        customerDocument      `json:"customer"`
	BillingAddress  addressDocument       `json:"billingAddress"`
	ShippingAddress *addressDocument      `json:"shippingAddress,omitempty"`
	Items           []invoiceItemDocument `json:"items"`
	Currency        string                `json:"currency"`
	Subtotal        float64               `json:"subtotal"`
	Tax             float64               `json:"tax"`
	Shipping        float64               `json:"shipping"`
	Discount        float64               `json:"discount"`
	Total           float64               `json:"total"`
	PaymentStatus   string                `json:"paymentStatus"`
	InvoiceDate     time.Time             `json:"invoiceDate"`
	DueDate         time.Time             `json:"dueDate"`
	Notes           string                `json:"notes,omitempty"`
	CreatedBy       string                `json:"createdBy,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
}

type customerDocument struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type addressDocument struct {
	FullName     string `json:"fullName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	Phone        string `json:"phone,omitempty"`
}

type invoiceItemDocument struct {
	Description string  `json:"description"`
	SKU         string  `json:"sku,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
}

func newInvoiceDocument(inv domain.Invoice) invoiceDocument {
	doc := invoiceDocument{
		ID:             inv.ID,
		InvoiceNumber:  inv.InvoiceNumber,
		OrderID:        inv.OrderID,
		OrderNumber:    inv.OrderNumber,
		Customer:       customerDocument{Name: inv.Customer.Name, Email: inv.Customer.Email, Phone: inv.Customer.Phone},
		BillingAddress: newAddressDocument(inv.BillingAddress),
		Items:          make([]invoiceItemDocument, 0, len(inv.Items)),
		Currency:       inv.Currency,
		Subtotal:       inv.Subtotal,
		Tax:            inv.Tax,
		Shipping:       inv.Shipping,
		Discount:       inv.Discount,
		Total:          inv.Total,
		PaymentStatus:  string(inv.PaymentStatus),
		InvoiceDate:    inv.InvoiceDate.UTC(),
		DueDate:        inv.DueDate.UTC(),
		Notes:          inv.Notes,
		CreatedBy:      inv.CreatedBy,
		CreatedAt:      inv.CreatedAt.UTC(),
	}
	if inv.ShippingAddress != nil {
		addr := newAddressDocument(*inv.ShippingAddress)
		doc.ShippingAddress = &addr
	}
	for _, item := range inv.Items {
		doc.Items = append(doc.Items, invoiceItemDocument{
			Description: item.Description,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
		})
	}
	return doc
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		FullName:     a.FullName,
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		Phone:        a.Phone,
	}
}
