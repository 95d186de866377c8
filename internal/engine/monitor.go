package engine

import (
	"context"
	"fmt"
	"time"

	"autotrader/internal/logger"
	"autotrader/internal/market"
	"autotrader/internal/strategy"
)

// actionableThreshold is the minimum strength for a BUY/SELL signal to be
// forwarded for execution. Weaker signals are recorded only.
const actionableThreshold = 0.6

// Observation is the result of one signal-monitor pass for one symbol.
type Observation struct {
	Signal strategy.Signal
	// Price is the close of the latest bar, used as the reference price for
	// sizing and paper fills.
	Price float64
	// Duplicate marks a signal identical to the strategy's last known signal
	// for the symbol; it is classified HOLD and produces no state change.
	Duplicate bool
	// Actionable signals are non-HOLD, at or above the strength threshold
	// and not duplicates.
	Actionable bool
}

// Monitor pulls market data, runs the strategy plugin and filters the raw
// signal into an observation the scheduler can act on.
type Monitor struct {
	source      market.Source
	maxAttempts int
	baseBackoff time.Duration

	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewMonitor(source market.Source) *Monitor {
	return &Monitor{
		source:      source,
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
		sleepFn:     sleepCtx,
	}
}

// Observe fetches the plugin's bar window for symbol, evaluates the plugin
// and applies the dedup and strength filters. lastKnown is the strategy's
// last recorded signal type for the symbol ("" if none).
func (m *Monitor) Observe(ctx context.Context, plugin strategy.Strategy, symbol, interval string, lastKnown strategy.SignalType) (Observation, error) {
	candles, err := m.fetchWindow(ctx, plugin, symbol, interval)
	if err != nil {
		return Observation{}, err
	}
	if len(candles) == 0 {
		return Observation{}, fmt.Errorf("no bars returned for %s %s", symbol, interval)
	}

	ind, err := plugin.ComputeIndicators(candles)
	if err != nil {
		return Observation{}, fmt.Errorf("indicator computation failed for %s: %w", symbol, err)
	}
	sig := plugin.GenerateSignal(ind)
	price := candles[len(candles)-1].Close

	obs := Observation{Signal: sig, Price: price}
	if lastKnown != "" && sig.Type == lastKnown {
		// Unchanged condition: classify as HOLD so it cannot re-execute and
		// produces no new history row. Repeated HOLDs dedup the same way, so
		// a quiet symbol is recorded once, not once per check.
		obs.Duplicate = true
		obs.Signal = strategy.Hold()
		return obs, nil
	}
	obs.Actionable = sig.Type != strategy.SignalHold && sig.Strength >= actionableThreshold
	return obs, nil
}

// fetchWindow retries transient market-data failures with exponential backoff
// within the same check. Exhausting the attempts surfaces as a per-strategy
// error; other strategies are unaffected.
func (m *Monitor) fetchWindow(ctx context.Context, plugin strategy.Strategy, symbol, interval string) ([]market.Candle, error) {
	limit := plugin.Lookback()
	var lastErr error
	backoff := m.baseBackoff
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		candles, err := m.source.FetchCandles(ctx, symbol, interval, limit)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if attempt == m.maxAttempts {
			break
		}
		logger.Warnf("market data fetch failed symbol=%s attempt=%d/%d: %v", symbol, attempt, m.maxAttempts, err)
		if err := m.sleepFn(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	return nil, fmt.Errorf("market data unavailable for %s after %d attempts: %w", symbol, m.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
