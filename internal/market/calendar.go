package market

import (
	"time"
)

// Calendar resolves trading-day boundaries. The boundary is wall-clock
// midnight in the configured timezone; strategies reset daily P&L on the
// first check that crosses it.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(tz string) (*Calendar, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &Calendar{loc: loc}, nil
}

// DayOpen returns the start of the trading day containing t.
func (c *Calendar) DayOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// SameTradingDay reports whether a and b fall within the same trading day.
func (c *Calendar) SameTradingDay(a, b time.Time) bool {
	return c.DayOpen(a).Equal(c.DayOpen(b))
}
