package strategy

import (
	"fmt"

	"autotrader/internal/market"

	talib "github.com/markcheno/go-talib"
)

// RSIReversal signals when RSI leaves the neutral band.
type RSIReversal struct {
	period     int
	oversold   float64
	overbought float64
}

func NewRSIReversal(period int, oversold, overbought float64) (*RSIReversal, error) {
	if period <= 0 {
		period = 14
	}
	if oversold <= 0 {
		oversold = 30
	}
	if overbought <= 0 {
		overbought = 70
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi_reversal: oversold %.1f must be below overbought %.1f", oversold, overbought)
	}
	return &RSIReversal{period: period, oversold: oversold, overbought: overbought}, nil
}

func (s *RSIReversal) Kind() string  { return "rsi_reversal" }
func (s *RSIReversal) Lookback() int { return s.period * 5 }

func (s *RSIReversal) ComputeIndicators(candles []market.Candle) (IndicatorSet, error) {
	if len(candles) <= s.period {
		return nil, fmt.Errorf("rsi_reversal: need > %d bars, got %d", s.period, len(candles))
	}
	rsi := talib.Rsi(market.Closes(candles), s.period)
	return IndicatorSet{"rsi": rsi[len(rsi)-1]}, nil
}

func (s *RSIReversal) GenerateSignal(ind IndicatorSet) Signal {
	rsi := ind["rsi"]
	switch {
	case rsi <= s.oversold:
		// Deeper oversold reads as a stronger buy.
		return Signal{Type: SignalBuy, Strength: clampStrength(0.6 + (s.oversold-rsi)/s.oversold)}
	case rsi >= s.overbought:
		return Signal{Type: SignalSell, Strength: clampStrength(0.6 + (rsi-s.overbought)/(100-s.overbought))}
	default:
		return Hold()
	}
}
