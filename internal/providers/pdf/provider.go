package pdf

import (
	"context"
	"io"
)

// InvoiceData is the render model for a printable invoice. Amounts arrive
// pre-formatted; the renderer does no arithmetic.
type InvoiceData struct {
	CompanyName   string
	CompanyEmail  string
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	BillingMonth  string

	CustomerName    string
	CustomerCode    string
	CustomerAddress string
	CustomerEmail   string

	Items []LineItem

	Subtotal  string
	VAT       string
	Discount  string
	Total     string
	AmountDue string
	Status    string
}

type LineItem struct {
	Description string
	Quantity    string
	UnitPrice   string
	Total       string
}

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error) {
	return nil, nil
}
