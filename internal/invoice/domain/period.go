package domain

import (
	"fmt"
	"time"
)

// Period identifies a calendar-month billing period (YYYY-MM).
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a YYYY-MM string.
func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following period; usage is aggregated over
// [Start, End).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// DueDate is the payment deadline, end of the given day of the billing month.
func (p Period) DueDate(day int) time.Time {
	return time.Date(p.Year, p.Month, day, 23, 59, 59, 0, time.UTC)
}

// Previous returns the preceding period.
func (p Period) Previous() Period {
	start := p.Start().AddDate(0, -1, 0)
	return Period{Year: start.Year(), Month: start.Month()}
}
