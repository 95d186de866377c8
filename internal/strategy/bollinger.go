package strategy

import (
	"fmt"

	"autotrader/internal/market"

	talib "github.com/markcheno/go-talib"
)

// BollingerReversion signals mean reversion at the band edges.
type BollingerReversion struct {
	period int
	stddev float64
}

func NewBollingerReversion(period int, stddev float64) (*BollingerReversion, error) {
	if period <= 0 {
		period = 20
	}
	if stddev <= 0 {
		stddev = 2.0
	}
	if period < 2 {
		return nil, fmt.Errorf("bollinger_reversion: period must be >= 2")
	}
	return &BollingerReversion{period: period, stddev: stddev}, nil
}

func (s *BollingerReversion) Kind() string  { return "bollinger_reversion" }
func (s *BollingerReversion) Lookback() int { return s.period * 3 }

func (s *BollingerReversion) ComputeIndicators(candles []market.Candle) (IndicatorSet, error) {
	if len(candles) < s.period {
		return nil, fmt.Errorf("bollinger_reversion: need >= %d bars, got %d", s.period, len(candles))
	}
	closes := market.Closes(candles)
	upper, middle, lower := talib.BBands(closes, s.period, s.stddev, s.stddev, talib.SMA)
	last := len(closes) - 1
	return IndicatorSet{
		"upper":  upper[last],
		"middle": middle[last],
		"lower":  lower[last],
		"close":  closes[last],
	}, nil
}

func (s *BollingerReversion) GenerateSignal(ind IndicatorSet) Signal {
	upper, lower, close := ind["upper"], ind["lower"], ind["close"]
	band := upper - lower
	if band <= 0 || close <= 0 {
		return Hold()
	}
	switch {
	case close <= lower:
		return Signal{Type: SignalBuy, Strength: clampStrength(0.6 + (lower-close)/band)}
	case close >= upper:
		return Signal{Type: SignalSell, Strength: clampStrength(0.6 + (close-upper)/band)}
	default:
		return Hold()
	}
}
