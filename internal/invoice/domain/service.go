package domain

import (
	"context"
	"errors"

	"github.com/openisp/netbill/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

// GenerationError records one customer's failure inside a generation run.
type GenerationError struct {
	CustomerID string `json:"customer_id"`
	Error      string `json:"error"`
}

// GenerationResult summarizes a monthly generation run. A run never aborts on
// a single customer's failure; failures are recorded here and counted as
// skipped.
type GenerationResult struct {
	Month     string            `json:"month"`
	Generated int               `json:"generated"`
	Skipped   int               `json:"skipped"`
	Errors    []GenerationError `json:"errors"`
}

type ListInvoicesRequest struct {
	pagination.Pagination
	Status     *InvoiceStatus
	CustomerID *string
	Month      *string
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type UpdateInvoiceRequest struct {
	Discount *decimal.Decimal `json:"discount"`
	Notes    *string          `json:"notes"`
}

type Service interface {
	// GenerateMonthly creates one invoice per eligible customer for the
	// period, idempotently. Per-customer failures are isolated.
	GenerateMonthly(ctx context.Context, month string) (GenerationResult, error)

	// MarkOverdue flips invoices past their due date with nothing paid to
	// OVERDUE, returning the number of rows updated.
	MarkOverdue(ctx context.Context) (int64, error)

	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)

	// Update applies administrative edits (discount, notes). Amount fields
	// other than discount are immutable after creation.
	Update(ctx context.Context, id string, req UpdateInvoiceRequest) (Invoice, error)
}

var (
	ErrInvalidPeriod    = errors.New("invalid_billing_period")
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrInvalidDiscount  = errors.New("invalid_discount")
)
