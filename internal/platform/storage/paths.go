package storage

import (
	"fmt"
	"strings"
	"time"
)

// InvoiceObjectPath composes the archive object key for an invoice. Invoices issued from an order
// are grouped under the order; manual invoices are grouped by issue month.
func InvoiceObjectPath(orderID, invoiceNumber string, issuedAt time.Time) (string, error) {
	number, err := validateSegment("invoiceNumber", invoiceNumber)
	if err != nil {
		return "", err
	}
	fileName := number + ".json"

	if strings.TrimSpace(orderID) != "" {
		id, err := validateSegment("orderID", orderID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("invoices/orders/%s/%s", id, fileName), nil
	}
	if issuedAt.IsZero() {
		return "", fmt.Errorf("storage: issuedAt is required for manual invoices")
	}
	issuedAt = issuedAt.UTC()
	return fmt.Sprintf("invoices/manual/%04d/%02d/%s", issuedAt.Year(), int(issuedAt.Month()), fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
