// Package strategy defines the plugin contract for signal generation.
// Concrete variants differ only in their internals; the scheduler and the
// signal monitor invoke the two methods uniformly and never branch on the
// variant identity, which is what allows new kinds to be added without
// touching the orchestration core.
package strategy

import (
	"autotrader/internal/market"
)

// IndicatorSet holds the latest computed indicator values keyed by name.
type IndicatorSet map[string]float64

// Strategy is the uniform two-method plugin contract.
type Strategy interface {
	// Kind identifies the plugin variant, e.g. "ma_cross".
	Kind() string

	// Lookback is the number of bars the plugin needs to compute.
	Lookback() int

	// ComputeIndicators derives the indicator set from a bar window. The
	// window is ordered oldest first and has at least Lookback bars.
	ComputeIndicators(candles []market.Candle) (IndicatorSet, error)

	// GenerateSignal maps an indicator set to a signal. Pure.
	GenerateSignal(ind IndicatorSet) Signal
}
