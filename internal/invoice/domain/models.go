// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice payment lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending     InvoiceStatus = "PENDING"
	InvoiceStatusPartialPaid InvoiceStatus = "PARTIAL_PAID"
	InvoiceStatusPaid        InvoiceStatus = "PAID"
	InvoiceStatusOverdue     InvoiceStatus = "OVERDUE"
)

// Invoice is the authoritative billing record for one customer and one
// billing period. At most one invoice exists per (customer, month); the
// row is never deleted. TotalAmount = Amount + UsageCharge + LateFee + VAT
// − Discount, and DueAmount = TotalAmount − PaidAmount at all times.
type Invoice struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceNumber string          `gorm:"not null;uniqueIndex:ux_invoices_number" json:"invoice_number"`
	CustomerID    snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoices_customer_month" json:"customer_id"`
	Month         string          `gorm:"not null;uniqueIndex:ux_invoices_customer_month" json:"month"`
	IssueDate     time.Time       `gorm:"not null" json:"issue_date"`
	DueDate       time.Time       `gorm:"not null" json:"due_date"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	UsageCharge   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"usage_charge"`
	LateFee       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"late_fee"`
	VAT           decimal.Decimal `gorm:"column:vat;type:numeric(14,2);not null" json:"vat"`
	Discount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"discount"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_amount"`
	PaidAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"paid_amount"`
	DueAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"due_amount"`
	Status        InvoiceStatus   `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	Notes         *string         `gorm:"type:text" json:"notes,omitempty"`
	PDFURL        *string         `gorm:"column:pdf_url;type:text" json:"pdf_url,omitempty"`
	Items         []InvoiceItem   `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is an immutable breakdown row attached at creation time.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(14,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Total       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// NewInvoiceNumber returns a globally unique invoice number. The format is
// cosmetic; only uniqueness is contractual.
func NewInvoiceNumber() string {
	return "INV-" + ulid.Make().String()
}
