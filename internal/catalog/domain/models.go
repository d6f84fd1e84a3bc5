// Package domain contains persistence models for the service plan catalog.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UnlimitedDataLimit is the sentinel stored for plans without a data cap.
const UnlimitedDataLimit = "Unlimited"

// Package is a billable service plan. Price changes apply going forward only;
// invoices already issued keep their computed amounts.
type Package struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Code         string          `gorm:"not null;uniqueIndex:ux_packages_code" json:"code"`
	Name         string          `gorm:"not null" json:"name"`
	MonthlyPrice decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"monthly_price"`
	DataLimit    string          `gorm:"type:text;not null;default:'Unlimited'" json:"data_limit"`
	TaxRate      decimal.Decimal `gorm:"type:numeric(6,2);not null" json:"tax_rate"`
	SetupFee     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"setup_fee"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Package) TableName() string { return "packages" }

// AllowanceGB parses the data limit. The second return is false when the plan
// is unlimited or the stored value is not numeric; a malformed limit is
// treated as unlimited rather than failing a billing run.
func (p Package) AllowanceGB() (decimal.Decimal, bool) {
	raw := strings.TrimSpace(p.DataLimit)
	if raw == "" || strings.EqualFold(raw, UnlimitedDataLimit) {
		return decimal.Zero, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(value), true
}
