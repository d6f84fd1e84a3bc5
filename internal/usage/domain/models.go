// Package domain contains persistence models for bandwidth usage metering.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UsageRecord is one day of measured traffic for a customer, in megabytes.
// At most one record exists per (customer, date); re-ingestion accumulates.
type UsageRecord struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID    `gorm:"not null;uniqueIndex:ux_usage_records_customer_date" json:"customer_id"`
	Date       time.Time       `gorm:"type:date;not null;uniqueIndex:ux_usage_records_customer_date" json:"date"`
	DownloadMB decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"download_mb"`
	UploadMB   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"upload_mb"`
	TotalMB    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_mb"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// TotalGB converts the summed megabytes of records to gigabytes.
func TotalGB(records []UsageRecord) decimal.Decimal {
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.TotalMB)
	}
	return total.Div(decimal.NewFromInt(1024))
}
