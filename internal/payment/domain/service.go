package domain

import (
	"context"
	"errors"
	"time"

	"github.com/openisp/netbill/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrCustomerNotFound   = errors.New("customer_not_found")
	ErrInvalidPaymentID   = errors.New("invalid_payment_id")
	ErrInvalidAmount      = errors.New("invalid_payment_amount")
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrInvalidPaidAt      = errors.New("invalid_payment_paid_at")
	ErrInvoiceAlreadyPaid = errors.New("invoice_already_paid")
	ErrNotRefundable      = errors.New("payment_not_refundable")
	ErrGatewayDeclined    = errors.New("gateway_declined")
)

// RecordPaymentRequest applies an offline payment. InvoiceID left empty
// records an unapplied payment that only credits the customer balance.
// PaidAt back-dates a manual entry; it defaults to the time of recording
// and may not lie in the future.
type RecordPaymentRequest struct {
	CustomerID string          `json:"customer_id" binding:"required"`
	InvoiceID  *string         `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
	Method     PaymentMethod   `json:"method" binding:"required"`
	Reference  string          `json:"reference"`
	Notes      string          `json:"notes"`
	PaidAt     *time.Time      `json:"paid_at"`
}

// GatewayPaymentRequest charges an online processor and applies the result.
type GatewayPaymentRequest struct {
	InvoiceID string          `json:"invoice_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Method    PaymentMethod   `json:"method" binding:"required"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason"`
}

type ListPaymentsRequest struct {
	pagination.Pagination
	CustomerID *string `form:"customer_id"`
	InvoiceID  *string `form:"invoice_id"`
	Method     *string `form:"method"`
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	// RecordPayment applies a manual payment against an invoice, or to the
	// customer balance alone when no invoice is targeted.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (Payment, error)

	// ProcessGatewayPayment charges the online processor first and applies
	// the confirmed amount like a recorded payment, keeping the processor's
	// reference.
	ProcessGatewayPayment(ctx context.Context, req GatewayPaymentRequest) (Payment, error)

	// RefundPayment reverses a prior payment with a compensating row. For
	// gateway payments the processor refund must succeed before any local
	// state changes.
	RefundPayment(ctx context.Context, paymentID string, req RefundPaymentRequest) (Payment, error)

	List(ctx context.Context, req ListPaymentsRequest) (ListPaymentsResponse, error)
	GetByID(ctx context.Context, id string) (Payment, error)
}
