package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type IngestUsageRequest struct {
	CustomerID string          `json:"customer_id" binding:"required"`
	Date       string          `json:"date" binding:"required"` // YYYY-MM-DD
	DownloadMB decimal.Decimal `json:"download_mb"`
	UploadMB   decimal.Decimal `json:"upload_mb"`
}

type Service interface {
	// Ingest records one day of traffic. A second ingest for the same
	// (customer, date) accumulates onto the existing record.
	Ingest(ctx context.Context, req IngestUsageRequest) (UsageRecord, error)

	// ForPeriod returns the customer's daily records within [start, end).
	ForPeriod(ctx context.Context, customerID string, start, end time.Time) ([]UsageRecord, error)
}

var (
	ErrInvalidCustomerID = errors.New("invalid_customer_id")
	ErrInvalidDate       = errors.New("invalid_usage_date")
	ErrInvalidVolume     = errors.New("invalid_usage_volume")
)
