package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openisp/netbill/internal/clock"
	usagedomain "github.com/openisp/netbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Ingest(ctx context.Context, req usagedomain.IngestUsageRequest) (usagedomain.UsageRecord, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return usagedomain.UsageRecord{}, usagedomain.ErrInvalidCustomerID
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		return usagedomain.UsageRecord{}, usagedomain.ErrInvalidDate
	}
	if req.DownloadMB.IsNegative() || req.UploadMB.IsNegative() {
		return usagedomain.UsageRecord{}, usagedomain.ErrInvalidVolume
	}

	total := req.DownloadMB.Add(req.UploadMB)
	now := s.clock.Now()
	record := usagedomain.UsageRecord{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Date:       date,
		DownloadMB: req.DownloadMB,
		UploadMB:   req.UploadMB,
		TotalMB:    total,
		CreatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE usage_records
			 SET download_mb = download_mb + ?,
			     upload_mb = upload_mb + ?,
			     total_mb = total_mb + ?
			 WHERE customer_id = ? AND date = ?`,
			req.DownloadMB,
			req.UploadMB,
			total,
			customerID,
			date,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return tx.Raw(
				`SELECT * FROM usage_records WHERE customer_id = ? AND date = ?`,
				customerID,
				date,
			).Scan(&record).Error
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return usagedomain.UsageRecord{}, err
	}
	return record, nil
}

func (s *Service) ForPeriod(ctx context.Context, customerID string, start, end time.Time) ([]usagedomain.UsageRecord, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(customerID))
	if err != nil {
		return nil, usagedomain.ErrInvalidCustomerID
	}

	var records []usagedomain.UsageRecord
	err = s.db.WithContext(ctx).
		Where("customer_id = ? AND date >= ? AND date < ?", id, start, end).
		Order("date").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
