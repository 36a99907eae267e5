package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
)

const (
	invoicesCollection       = "invoices"
	invoiceNumbersCollection = "invoiceNumbers"
	orderInvoicesCollection  = "orderInvoices"
)

type invoiceDocument struct {
	InvoiceNumber   string                `firestore:"invoiceNumber"`
	OrderID         string                `firestore:"orderId,omitempty"`
	OrderNumber     string                `firestore:"orderNumber,omitempty"`
	Customer        customerDocument      `firestore:"customer"`
	BillingAddress  addressDocument       `firestore:"billingAddress"`
	ShippingAddress *addressDocument      `firestore:"shippingAddress,omitempty"`
	Items           []invoiceItemDocument `firestore:"items"`
	Currency        string                `firestore:"currency"`
	Subtotal        float64               `firestore:"subtotal"`
	Tax             float64               `firestore:"tax"`
	Shipping        float64               `firestore:"shipping"`
	Discount        float64               `firestore:"discount"`
	Total           float64               `firestore:"total"`
	PaymentStatus   string                `firestore:"paymentStatus"`
	InvoiceDate     time.Time             `firestore:"invoiceDate"`
	DueDate         time.Time             `firestore:"dueDate"`
	Notes           string                `firestore:"notes,omitempty"`
	CreatedBy       string                `firestore:"createdBy,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type invoiceItemDocument struct {
	Description string  `firestore:"description"`
	SKU         string  `firestore:"sku,omitempty"`
	Quantity    int     `firestore:"quantity"`
	UnitPrice   float64 `firestore:"unitPrice"`
	Total       float64 `firestore:"total"`
}

type invoiceReservationDocument struct {
	InvoiceID string    `firestore:"invoiceId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// InvoiceRepository persists invoices into the invoices collection. Invoice numbers are reserved in
// invoiceNumbers and order-derived invoices in orderInvoices, keyed by order id.
type InvoiceRepository struct {
	provider *pfirestore.Provider
	invoices *pfirestore.BaseRepository[invoiceDocument]
	numbers  *pfirestore.BaseRepository[invoiceReservationDocument]
	byOrder  *pfirestore.BaseRepository[invoiceReservationDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	return &InvoiceRepository{
		provider: provider,
		invoices: pfirestore.NewBaseRepository[invoiceDocument](provider, invoicesCollection, nil),
		numbers:  pfirestore.NewBaseRepository[invoiceReservationDocument](provider, invoiceNumbersCollection, nil),
		byOrder:  pfirestore.NewBaseRepository[invoiceReservationDocument](provider, orderInvoicesCollection, nil),
	}, nil
}

// Insert creates the invoice with its number and order reservations atomically.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.invoices == nil {
		return errors.New("invoice repository not initialised")
	}
	invoiceID := strings.TrimSpace(invoice.ID)
	number := strings.TrimSpace(invoice.InvoiceNumber)
	if invoiceID == "" || number == "" {
		return errors.New("invoice insert: id and invoice number are required")
	}
	reservation := invoiceReservationDocument{InvoiceID: invoiceID, CreatedAt: invoice.CreatedAt.UTC()}
	return r.provider.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.numbers.Create(ctx, number, reservation); err != nil {
			return err
		}
		if orderID := strings.TrimSpace(invoice.OrderID); orderID != "" {
			if err := r.byOrder.Create(ctx, orderID, reservation); err != nil {
				return err
			}
		}
		return r.invoices.Create(ctx, invoiceID, encodeInvoice(invoice))
	})
}

func (r *InvoiceRepository) FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error) {
	if r == nil || r.byOrder == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Invoice{}, notFoundError("invoices.find_by_order", "order id is empty")
	}
	reservation, err := r.byOrder.Get(ctx, orderID)
	if err != nil {
		return domain.Invoice{}, err
	}
	return r.FindByID(ctx, reservation.Data.InvoiceID)
}

func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if r == nil || r.invoices == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	doc, err := r.invoices.Get(ctx, strings.TrimSpace(invoiceID))
	if err != nil {
		return domain.Invoice{}, err
	}
	return decodeInvoice(doc.ID, doc.Data), nil
}

func (r *InvoiceRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Invoice, error) {
	if r == nil || r.invoices == nil {
		return nil, errors.New("invoice repository not initialised")
	}
	docs, err := r.invoices.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("paymentStatus", "==", string(domain.InvoiceStatusPending)).
			Where("dueDate", "<", cutoff.UTC()).
			OrderBy("dueDate", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	invoices := make([]domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		invoices = append(invoices, decodeInvoice(doc.ID, doc.Data))
	}
	return invoices, nil
}

func (r *InvoiceRepository) UpdateStatus(ctx context.Context, invoiceID string, status domain.InvoiceStatus, updatedAt time.Time) error {
	if r == nil || r.invoices == nil {
		return errors.New("invoice repository not initialised")
	}
	return r.invoices.Update(ctx, strings.TrimSpace(invoiceID), []firestore.Update{
		{Path: "paymentStatus", Value: string(status)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

func encodeInvoice(invoice domain.Invoice) invoiceDocument {
	doc := invoiceDocument{
		InvoiceNumber:  invoice.InvoiceNumber,
		OrderID:        invoice.OrderID,
		OrderNumber:    invoice.OrderNumber,
		Customer:       customerDocument(invoice.Customer),
		BillingAddress: addressDocument(invoice.BillingAddress),
		Currency:       invoice.Currency,
		Subtotal:       invoice.Subtotal,
		Tax:            invoice.Tax,
		Shipping:       invoice.Shipping,
		Discount:       invoice.Discount,
		Total:          invoice.Total,
		PaymentStatus:  string(invoice.PaymentStatus),
		InvoiceDate:    invoice.InvoiceDate.UTC(),
		DueDate:        invoice.DueDate.UTC(),
		Notes:          invoice.Notes,
		CreatedBy:      invoice.CreatedBy,
		CreatedAt:      invoice.CreatedAt.UTC(),
		UpdatedAt:      invoice.UpdatedAt.UTC(),
	}
	if invoice.ShippingAddress != nil {
		shipping := addressDocument(*invoice.ShippingAddress)
		doc.ShippingAddress = &shipping
	}
	doc.Items = make([]invoiceItemDocument, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		doc.Items = append(doc.Items, invoiceItemDocument(item))
	}
	return doc
}

func decodeInvoice(id string, doc invoiceDocument) domain.Invoice {
	invoice := domain.Invoice{
		ID:             id,
		InvoiceNumber:  doc.InvoiceNumber,
		OrderID:        doc.OrderID,
		OrderNumber:    doc.OrderNumber,
		Customer:       domain.Customer(doc.Customer),
		BillingAddress: domain.Address(doc.BillingAddress),
		Currency:       doc.Currency,
		Subtotal:       doc.Subtotal,
		Tax:            doc.Tax,
		Shipping:       doc.Shipping,
		Discount:       doc.Discount,
		Total:          doc.Total,
		PaymentStatus:  domain.InvoiceStatus(doc.PaymentStatus),
		InvoiceDate:    doc.InvoiceDate.UTC(),
		DueDate:        doc.DueDate.UTC(),
		Notes:          doc.Notes,
		CreatedBy:      doc.CreatedBy,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}
	if doc.ShippingAddress != nil {
		shipping := domain.Address(*doc.ShippingAddress)
		invoice.ShippingAddress = &shipping
	}
	invoice.Items = make([]domain.InvoiceItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		invoice.Items = append(invoice.Items, domain.InvoiceItem(item))
	}
	return invoice
}
