package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2026-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Year != 2026 || p.Month != time.February {
		t.Fatalf("unexpected period %+v", p)
	}
	if p.String() != "2026-02" {
		t.Fatalf("unexpected string %s", p.String())
	}

	for _, raw := range []string{"", "2026", "2026-13", "Feb 2026", "2026-02-01"} {
		if _, err := ParsePeriod(raw); !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("expected ErrInvalidPeriod for %q, got %v", raw, err)
		}
	}
}

func TestPeriodWindow(t *testing.T) {
	p := Period{Year: 2026, Month: time.February}

	if got := p.Start(); !got.Equal(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", got)
	}
	if got := p.End(); !got.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", got)
	}
	if got := p.DueDate(28); !got.Equal(time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected due date %s", got)
	}
}

func TestPeriodPrevious(t *testing.T) {
	p := Period{Year: 2026, Month: time.January}
	prev := p.Previous()
	if prev.Year != 2025 || prev.Month != time.December {
		t.Fatalf("unexpected previous %+v", prev)
	}
}

func TestPeriodOf(t *testing.T) {
	p := PeriodOf(time.Date(2026, time.August, 29, 15, 4, 5, 0, time.FixedZone("EAT", 3*3600)))
	if p.String() != "2026-08" {
		t.Fatalf("unexpected period %s", p.String())
	}
}
