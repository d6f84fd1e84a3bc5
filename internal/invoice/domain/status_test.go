package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDeriveStatus(t *testing.T) {
	due := time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC)
	total := decimal.RequireFromString("52.50")

	cases := []struct {
		name      string
		dueAmount string
		now       time.Time
		want      InvoiceStatus
	}{
		{"fully paid", "0", due.AddDate(0, 0, -5), InvoiceStatusPaid},
		{"overpaid", "-1", due.AddDate(0, 0, -5), InvoiceStatusPaid},
		{"partially paid before due", "20", due.AddDate(0, 0, -5), InvoiceStatusPartialPaid},
		{"partially paid after due", "20", due.AddDate(0, 0, 5), InvoiceStatusPartialPaid},
		{"unpaid before due", "52.50", due.AddDate(0, 0, -5), InvoiceStatusPending},
		{"unpaid after due", "52.50", due.AddDate(0, 0, 5), InvoiceStatusOverdue},
		{"unpaid exactly at due", "52.50", due, InvoiceStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(total, decimal.RequireFromString(tc.dueAmount), due, tc.now)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
