// Package domain contains persistence models for payments. A payment row is
// immutable once written; a refund is a new compensating row with a negated
// amount, never an edit of the original.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	MethodStripe       PaymentMethod = "STRIPE"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodStripe:
		return true
	}
	return false
}

// GatewayProvider returns the processor name for online methods, empty for
// offline ones.
func (m PaymentMethod) GatewayProvider() string {
	if m == MethodStripe {
		return "stripe"
	}
	return ""
}

const PaymentStatusCompleted = "COMPLETED"

// Payment records one money movement. Amount is signed: positive is a
// payment, negative a refund. InvoiceID is nil for unapplied payments that
// only credit the customer balance.
type Payment struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TransactionID string          `gorm:"not null;uniqueIndex:ux_payments_transaction_id" json:"transaction_id"`
	InvoiceID     *snowflake.ID   `gorm:"index" json:"invoice_id,omitempty"`
	CustomerID    snowflake.ID    `gorm:"not null;index" json:"customer_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Method        PaymentMethod   `gorm:"type:text;not null" json:"method"`
	Reference     string          `gorm:"not null;default:''" json:"reference"`
	Notes         string          `gorm:"not null;default:''" json:"notes"`
	Status        string          `gorm:"not null;default:'COMPLETED'" json:"status"`
	PaidAt        time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// IsRefund reports whether the row is a compensating entry.
func (p Payment) IsRefund() bool { return p.Amount.IsNegative() }

// NewTransactionID returns a unique transaction identifier.
func NewTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString())
}
