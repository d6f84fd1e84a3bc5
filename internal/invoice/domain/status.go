package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeriveStatus computes the invoice status from its amounts and due date.
// The stored status must never disagree with this derivation; every mutation
// of paid/due amounts goes through it.
func DeriveStatus(totalAmount, dueAmount decimal.Decimal, dueDate, now time.Time) InvoiceStatus {
	switch {
	case dueAmount.LessThanOrEqual(decimal.Zero):
		return InvoiceStatusPaid
	case dueAmount.LessThan(totalAmount):
		return InvoiceStatusPartialPaid
	case now.After(dueDate):
		return InvoiceStatusOverdue
	default:
		return InvoiceStatusPending
	}
}
