package scheduler

import (
	"strings"
	"time"
)

// barDurations enumerates the bar timeframes the market source serves.
// Strategy timeframes are validated against this set at create/update time,
// so a typo like "7m" or "1x" never reaches the candle fetch path.
var barDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseIntervalDuration maps a supported bar timeframe ("15m", "1h", "1d")
// to its duration. Returns (0, false) for anything the source cannot serve.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	d, ok := barDurations[strings.ToLower(strings.TrimSpace(interval))]
	return d, ok
}
