package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
)

type invoiceRepository struct{ s *Store }

func (r invoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.state.invoices[invoice.ID]; exists {
		return conflict("invoices.insert", "invoice %s already exists", invoice.ID)
	}
	number := strings.TrimSpace(invoice.InvoiceNumber)
	if _, taken := r.s.state.invoiceNumbers[number]; number != "" && taken {
		return conflict("invoices.insert", "invoice number %s already exists", number)
	}
	orderID := strings.TrimSpace(invoice.OrderID)
	if _, taken := r.s.state.orderInvoices[orderID]; orderID != "" && taken {
		return conflict("invoices.insert", "order %s already has an invoice", orderID)
	}
	if number != "" {
		r.s.state.invoiceNumbers[number] = invoice.ID
	}
	if orderID != "" {
		r.s.state.orderInvoices[orderID] = invoice.ID
	}
	r.s.state.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r invoiceRepository) FindByOrder(ctx context.Context, orderID string) (domain.Invoice, error) {
	defer r.s.lock(ctx)()

	if invoiceID, ok := r.s.state.orderInvoices[strings.TrimSpace(orderID)]; ok {
		if invoice, ok := r.s.state.invoices[invoiceID]; ok {
			return cloneInvoice(invoice), nil
		}
	}
	return domain.Invoice{}, notFound("invoices.find_by_order", "no invoice for order %s", orderID)
}

func (r invoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	defer r.s.lock(ctx)()

	invoice, ok := r.s.state.invoices[invoiceID]
	if !ok {
		return domain.Invoice{}, notFound("invoices.get", "invoice %s not found", invoiceID)
	}
	return cloneInvoice(invoice), nil
}

func (r invoiceRepository) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Invoice, error) {
	defer r.s.lock(ctx)()

	var out []domain.Invoice
	for _, invoice := range r.s.state.invoices {
		if invoice.PaymentStatus == domain.InvoiceStatusPending && invoice.DueDate.Before(cutoff) {
			out = append(out, cloneInvoice(invoice))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r invoiceRepository) UpdateStatus(ctx context.Context, invoiceID string, status domain.InvoiceStatus, updatedAt time.Time) error {
	defer r.s.lock(ctx)()

	invoice, ok := r.s.state.invoices[invoiceID]
	if !ok {
		return notFound("invoices.update_status", "invoice %s not found", invoiceID)
	}
	invoice.PaymentStatus = status
	invoice.UpdatedAt = updatedAt
	r.s.state.invoices[invoiceID] = invoice
	return nil
}

func cloneInvoice(invoice domain.Invoice) domain.Invoice {
	out := invoice
	if invoice.Items != nil {
		out.Items = append([]domain.InvoiceItem(nil), invoice.Items...)
	}
	if invoice.ShippingAddress != nil {
		addr := *invoice.ShippingAddress
		out.ShippingAddress = &addr
	}
	return out
}
