package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/openisp/netbill/internal/clock"
	usagedomain "github.com/openisp/netbill/internal/usage/domain"
	usageservice "github.com/openisp/netbill/internal/usage/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (usagedomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_usage_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&usagedomain.UsageRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := usageservice.NewService(usageservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, time.February, 10, 8, 0, 0, 0, time.UTC)),
	})
	return svc, node
}

func TestIngestAccumulatesSameDay(t *testing.T) {
	ctx := context.Background()
	svc, node := newTestService(t)
	customerID := node.Generate().String()

	first, err := svc.Ingest(ctx, usagedomain.IngestUsageRequest{
		CustomerID: customerID,
		Date:       "2026-02-09",
		DownloadMB: decimal.RequireFromString("1000"),
		UploadMB:   decimal.RequireFromString("200"),
	})
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if !first.TotalMB.Equal(decimal.RequireFromString("1200")) {
		t.Fatalf("expected total 1200, got %s", first.TotalMB.String())
	}

	second, err := svc.Ingest(ctx, usagedomain.IngestUsageRequest{
		CustomerID: customerID,
		Date:       "2026-02-09",
		DownloadMB: decimal.RequireFromString("500"),
		UploadMB:   decimal.RequireFromString("100"),
	})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.TotalMB.Equal(decimal.RequireFromString("1800")) {
		t.Fatalf("expected accumulated total 1800, got %s", second.TotalMB.String())
	}
	if second.ID != first.ID {
		t.Fatalf("expected same record, got %s and %s", first.ID, second.ID)
	}
}

func TestIngestValidation(t *testing.T) {
	ctx := context.Background()
	svc, node := newTestService(t)
	customerID := node.Generate().String()

	_, err := svc.Ingest(ctx, usagedomain.IngestUsageRequest{
		CustomerID: "not-an-id",
		Date:       "2026-02-09",
	})
	if !errors.Is(err, usagedomain.ErrInvalidCustomerID) {
		t.Fatalf("expected ErrInvalidCustomerID, got %v", err)
	}

	_, err = svc.Ingest(ctx, usagedomain.IngestUsageRequest{
		CustomerID: customerID,
		Date:       "09/02/2026",
	})
	if !errors.Is(err, usagedomain.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	_, err = svc.Ingest(ctx, usagedomain.IngestUsageRequest{
		CustomerID: customerID,
		Date:       "2026-02-09",
		DownloadMB: decimal.RequireFromString("-1"),
	})
	if !errors.Is(err, usagedomain.ErrInvalidVolume) {
		t.Fatalf("expected ErrInvalidVolume, got %v", err)
	}
}

func TestForPeriodBounds(t *testing.T) {
	ctx := context.Background()
	svc, node := newTestService(t)
	customerID := node.Generate().String()

	for _, date := range []string{"2026-01-31", "2026-02-01", "2026-02-28", "2026-03-01"} {
		_, err := svc.Ingest(ctx, usagedomain.IngestUsageRequest{
			CustomerID: customerID,
			Date:       date,
			DownloadMB: decimal.RequireFromString("100"),
		})
		if err != nil {
			t.Fatalf("ingest %s: %v", date, err)
		}
	}

	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	records, err := svc.ForPeriod(ctx, customerID, start, end)
	if err != nil {
		t.Fatalf("for period: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records in window, got %d", len(records))
	}
}
