package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDayOpen(t *testing.T) {
	cal, err := NewCalendar("UTC")
	require.NoError(t, err)

	at := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	open := cal.DayOpen(at)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), open)
}

func TestCalendarSameTradingDay(t *testing.T) {
	cal, err := NewCalendar("UTC")
	require.NoError(t, err)

	morning := time.Date(2025, 3, 14, 0, 0, 1, 0, time.UTC)
	night := time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)
	nextDay := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, cal.SameTradingDay(morning, night))
	assert.False(t, cal.SameTradingDay(night, nextDay))
}

func TestCalendarTimezoneBoundary(t *testing.T) {
	cal, err := NewCalendar("America/New_York")
	require.NoError(t, err)

	// 03:00 UTC and 23:00 UTC the previous day are the same NY trading day.
	a := time.Date(2025, 3, 14, 3, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 13, 23, 0, 0, 0, time.UTC)
	assert.True(t, cal.SameTradingDay(a, b))
}

func TestCalendarRejectsBadTZ(t *testing.T) {
	_, err := NewCalendar("Not/AZone")
	assert.Error(t, err)
}
