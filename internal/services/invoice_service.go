package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/Ngumi22/zami-web-sub001/internal/domain"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/textutil"
	"github.com/Ngumi22/zami-web-sub001/internal/repositories"
)

const (
	invoiceIDPrefix          = "inv_"
	defaultInvoiceDueDays    = 30
	overdueBatchSize         = 100
	maxInvoiceNumberAttempts = 3
)

// InvoiceServiceDeps bundles collaborators for the invoice service.
type InvoiceServiceDeps struct {
	Invoices repositories.InvoiceRepository
	Orders   repositories.OrderRepository
	// Archiver is optional; when set every issued invoice is archived after it is stored.
	Archiver InvoiceArchiver
	// RateGuard is optional; when set issuing is rate limited per staff actor.
	RateGuard       RateGuard
	DueDays         int
	NumberPrefix    string
	Clock           func() time.Time
	IDGenerator     func() string
	NumberGenerator func() (string, error)
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

// CreateInvoiceFromOrderCommand issues an invoice snapshot of an order.
type CreateInvoiceFromOrderCommand struct {
	OrderID string
	ActorID string
}

// InvoiceForm is a staff-authored invoice not tied to an order.
type InvoiceForm struct {
	Customer        Customer
	BillingAddress  Address
	ShippingAddress *Address
	Items           []InvoiceItem
	Currency        string
	Tax             float64
	Shipping        float64
	Discount        float64
	PaymentStatus   domain.InvoiceStatus
	InvoiceDate     time.Time
	DueDate         time.Time
	Notes           string
	ActorID         string
}

type invoiceService struct {
	invoices  repositories.InvoiceRepository
	orders    repositories.OrderRepository
	archiver  InvoiceArchiver
	rateGuard RateGuard
	dueDays   int
	clock     func() time.Time
	newID     func() string
	newNumber func() (string, error)
	logger    func(context.Context, string, map[string]any)
}

var _ InvoiceService = (*invoiceService)(nil)

// NewInvoiceService constructs the invoice service.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("invoice service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	dueDays := deps.DueDays
	if dueDays <= 0 {
		dueDays = defaultInvoiceDueDays
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = defaultInvoiceNumberPrefix
	}
	numberGen := deps.NumberGenerator
	if numberGen == nil {
		numberGen = NewCodeGenerator(prefix)
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &invoiceService{
		invoices:  deps.Invoices,
		orders:    deps.Orders,
		archiver:  deps.Archiver,
		rateGuard: deps.RateGuard,
		dueDays:   dueDays,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		newNumber: numberGen,
		logger:    logger,
	}, nil
}

// DeriveInvoice builds an invoice snapshot of order dated at the order's creation. The result shares no
// slices or pointers with the order. ID and InvoiceNumber are left for the caller to assign.
func DeriveInvoice(order Order, now time.Time, dueDays int) Invoice {
	if dueDays <= 0 {
		dueDays = defaultInvoiceDueDays
	}
	now = now.UTC()
	invoiceDate := order.CreatedAt.UTC()
	if order.CreatedAt.IsZero() {
		invoiceDate = now
	}
	dueDate := invoiceDate.AddDate(0, 0, dueDays)

	status := domain.InvoiceStatusPending
	switch {
	case order.PaymentStatus == domain.PaymentStatusPaid:
		status = domain.InvoiceStatusPaid
	case now.After(dueDate):
		status = domain.InvoiceStatusOverdue
	}

	billing := order.ShippingAddress
	if order.BillingAddress != nil {
		billing = *order.BillingAddress
	}
	shipping := order.ShippingAddress

	items := make([]InvoiceItem, 0, len(order.Items))
	for _, item := range order.Items {
		description := item.ProductName
		if item.VariantName != "" {
			description += " - " + item.VariantName
		}
		items = append(items, InvoiceItem{
			Description: description,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			Total:       item.Total,
		})
	}

	return Invoice{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Customer:        order.Customer,
		BillingAddress:  billing,
		ShippingAddress: &shipping,
		Items:           items,
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Discount:        order.Discount,
		Total:           order.Total,
		PaymentStatus:   status,
		InvoiceDate:     invoiceDate,
		DueDate:         dueDate,
		Notes:           order.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *invoiceService) CreateInvoiceFromOrder(ctx context.Context, cmd CreateInvoiceFromOrderCommand) (Invoice, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Invoice{}, invalidField("orderId", "Order id is required")
	}
	if err := s.requireStaffBudget(ctx, cmd.ActorID); err != nil {
		return Invoice{}, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Invoice{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	switch order.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return Invoice{}, fmt.Errorf("%w: order %s is %s", ErrInvoiceNotAllowed, order.OrderNumber, order.Status)
	}
	if existing, err := s.invoices.FindByOrder(ctx, order.ID); err == nil {
		return Invoice{}, fmt.Errorf("%w: %s for order %s", ErrInvoiceExists, existing.InvoiceNumber, order.OrderNumber)
	} else if !isRepositoryNotFound(err) {
		return Invoice{}, fmt.Errorf("invoice: lookup by order: %w", err)
	}

	invoice := DeriveInvoice(order, s.clock(), s.dueDays)
	invoice.CreatedBy = strings.TrimSpace(cmd.ActorID)
	return s.issue(ctx, invoice)
}

func (s *invoiceService) CreateInvoice(ctx context.Context, form InvoiceForm) (Invoice, error) {
	if errs := ValidateInvoiceForm(form); !errs.Empty() {
		return Invoice{}, errs.Err()
	}
	if err := s.requireStaffBudget(ctx, form.ActorID); err != nil {
		return Invoice{}, err
	}

	now := s.clock()
	items := make([]InvoiceItem, 0, len(form.Items))
	var subtotal float64
	for _, item := range form.Items {
		item.Description = textutil.StripMarkup(item.Description)
		item.SKU = strings.TrimSpace(item.SKU)
		item.Total = domain.LineTotal(item.Quantity, item.UnitPrice)
		subtotal += item.Total
		items = append(items, item)
	}
	subtotal = domain.RoundMoney(subtotal)
	total := domain.OrderTotal(subtotal, form.Tax, form.Shipping, form.Discount)
	if total < 0 {
		return Invoice{}, invalidField("discount", "Discount cannot exceed the invoice amount")
	}

	status := form.PaymentStatus
	if status == "" {
		status = domain.InvoiceStatusPending
	}

	invoice := Invoice{
		Customer: Customer{
			Name:  textutil.StripMarkup(form.Customer.Name),
			Email: strings.ToLower(strings.TrimSpace(form.Customer.Email)),
			Phone: strings.TrimSpace(form.Customer.Phone),
		},
		BillingAddress:  sanitizeAddress(form.BillingAddress),
		ShippingAddress: nil,
		Items:           items,
		Currency:        strings.ToUpper(strings.TrimSpace(form.Currency)),
		Subtotal:        subtotal,
		Tax:             domain.RoundMoney(form.Tax),
		Shipping:        domain.RoundMoney(form.Shipping),
		Discount:        domain.RoundMoney(form.Discount),
		Total:           total,
		PaymentStatus:   status,
		InvoiceDate:     form.InvoiceDate.UTC(),
		DueDate:         form.DueDate.UTC(),
		Notes:           textutil.StripMarkup(form.Notes),
		CreatedBy:       strings.TrimSpace(form.ActorID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if form.ShippingAddress != nil {
		addr := sanitizeAddress(*form.ShippingAddress)
		invoice.ShippingAddress = &addr
	}
	return s.issue(ctx, invoice)
}

func (s *invoiceService) issue(ctx context.Context, invoice Invoice) (Invoice, error) {
	invoice.ID = invoiceIDPrefix + s.newID()
	for attempt := 1; ; attempt++ {
		number, err := s.newNumber()
		if err != nil {
			return Invoice{}, fmt.Errorf("invoice number: %w", err)
		}
		invoice.InvoiceNumber = number

		err = s.invoices.Insert(ctx, invoice)
		if err == nil {
			break
		}
		if !isRepositoryConflict(err) {
			return Invoice{}, mapRepositoryError(err, ErrInvoiceNotFound)
		}
		// The order reservation is read-checked before issuing, so a conflict here means the number is taken,
		// unless a concurrent request invoiced the same order first.
		if invoice.OrderID != "" {
			if existing, lookupErr := s.invoices.FindByOrder(ctx, invoice.OrderID); lookupErr == nil {
				return Invoice{}, fmt.Errorf("%w: %s for order %s", ErrInvoiceExists, existing.InvoiceNumber, invoice.OrderNumber)
			}
		}
		if attempt >= maxInvoiceNumberAttempts {
			return Invoice{}, fmt.Errorf("invoice: allocate invoice number after %d attempts: %w", attempt, err)
		}
		s.logger(ctx, "invoice.number.collision", map[string]any{"number": number, "attempt": attempt})
	}

	fields := map[string]any{
		"invoice": invoice.ID,
		"number":  invoice.InvoiceNumber,
		"order":   invoice.OrderID,
		"status":  string(invoice.PaymentStatus),
		"total":   FormatAmount(invoice.Currency, invoice.Total),
	}
	if s.archiver != nil {
		location, err := s.archiver.ArchiveInvoice(ctx, invoice)
		if err != nil {
			s.logger(ctx, "invoice.archive.failed", map[string]any{"invoice": invoice.ID, "error": err.Error()})
		} else {
			fields["archive"] = location
		}
	}
	s.logger(ctx, "invoice.issued", fields)
	return invoice, nil
}

func (s *invoiceService) requireStaffBudget(ctx context.Context, actorID string) error {
	if s.rateGuard == nil {
		return nil
	}
	return s.rateGuard.Require(ctx, RateLimitRequest{Identifier: staffRateLimitKey(actorID)})
}

// MarkOverdueInvoices flips PENDING invoices due before now to OVERDUE and returns how many changed.
func (s *invoiceService) MarkOverdueInvoices(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.clock()
	}
	now = now.UTC()

	marked := 0
	for {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		batch, err := s.invoices.ListPendingDueBefore(ctx, now, overdueBatchSize)
		if err != nil {
			return marked, mapRepositoryError(err, ErrInvoiceNotFound)
		}
		for _, invoice := range batch {
			if err := s.invoices.UpdateStatus(ctx, invoice.ID, domain.InvoiceStatusOverdue, now); err != nil {
				if isRepositoryNotFound(err) {
					continue
				}
				return marked, mapRepositoryError(err, ErrInvoiceNotFound)
			}
			marked++
		}
		if len(batch) < overdueBatchSize {
			break
		}
	}
	if marked > 0 {
		s.logger(ctx, "invoice.overdue.marked", map[string]any{"count": marked, "cutoff": now.Format(time.RFC3339)})
	}
	return marked, nil
}

// ValidateInvoiceForm checks a staff-authored invoice.
func ValidateInvoiceForm(form InvoiceForm) ValidationErrors {
	errs := ValidationErrors{}
	checkRequired(errs, "customer.name", "Customer name", form.Customer.Name, maxFullNameLength)
	if strings.TrimSpace(form.Customer.Email) == "" {
		errs.Add("customer.email", "Customer email is required")
	} else {
		checkEmail(errs, "customer.email", strings.TrimSpace(form.Customer.Email))
	}
	checkLength(errs, "customer.phone", form.Customer.Phone, maxPhoneLength)
	errs.Merge("billingAddress", ValidateAddress(form.BillingAddress))
	if form.ShippingAddress != nil {
		errs.Merge("shippingAddress", ValidateAddress(*form.ShippingAddress))
	}

	if len(form.Items) == 0 {
		errs.Add("items", "At least one item is required")
	}
	for i, item := range form.Items {
		prefix := fmt.Sprintf("items.%d", i)
		checkRequired(errs, prefix+".description", "Description", item.Description, maxAddressLineLength)
		if item.Quantity < minItemQuantity || item.Quantity > maxItemQuantity {
			errs.Add(prefix+".quantity", fmt.Sprintf("Quantity must be between %d and %d", minItemQuantity, maxItemQuantity))
		}
		checkAmount(errs, prefix+".unitPrice", item.UnitPrice)
	}

	checkAmount(errs, "tax", form.Tax)
	checkAmount(errs, "shipping", form.Shipping)
	checkAmount(errs, "discount", form.Discount)
	checkCurrency(errs, form.Currency)

	if form.PaymentStatus != "" && !form.PaymentStatus.Valid() {
		errs.Add("paymentStatus", fmt.Sprintf("Unknown invoice status %q", form.PaymentStatus))
	}
	switch {
	case form.InvoiceDate.IsZero():
		errs.Add("invoiceDate", "Invoice date is required")
	case form.DueDate.IsZero():
		errs.Add("dueDate", "Due date is required")
	case !form.DueDate.After(form.InvoiceDate):
		errs.Add("dueDate", "Due date must be after the invoice date")
	}
	checkLength(errs, "notes", form.Notes, maxNotesLength)
	return errs
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders amount with its ISO currency code, e.g. "KES 1,250.00". Unknown codes fall back to
// the bare number.
func FormatAmount(code string, amount float64) string {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return amountPrinter.Sprintf("%.2f", amount)
	}
	return amountPrinter.Sprint(unit.Amount(domain.RoundMoney(amount)))
}
