package strategy

import (
	"fmt"
	"math"

	"autotrader/internal/market"

	talib "github.com/markcheno/go-talib"
)

// MACDMomentum signals on MACD histogram zero crossings.
type MACDMomentum struct {
	fast   int
	slow   int
	signal int
}

func NewMACDMomentum(fast, slow, signal int) (*MACDMomentum, error) {
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if signal <= 0 {
		signal = 9
	}
	if fast >= slow {
		return nil, fmt.Errorf("macd_momentum: fast period %d must be below slow period %d", fast, slow)
	}
	return &MACDMomentum{fast: fast, slow: slow, signal: signal}, nil
}

func (s *MACDMomentum) Kind() string  { return "macd_momentum" }
func (s *MACDMomentum) Lookback() int { return (s.slow + s.signal) * 3 }

func (s *MACDMomentum) ComputeIndicators(candles []market.Candle) (IndicatorSet, error) {
	required := s.slow + s.signal
	if len(candles) < required {
		return nil, fmt.Errorf("macd_momentum: need >= %d bars, got %d", required, len(candles))
	}
	closes := market.Closes(candles)
	macd, sig, hist := talib.Macd(closes, s.fast, s.slow, s.signal)
	last := len(hist) - 1
	return IndicatorSet{
		"macd":      macd[last],
		"signal":    sig[last],
		"hist":      hist[last],
		"prev_hist": hist[last-1],
		"close":     closes[len(closes)-1],
	}, nil
}

func (s *MACDMomentum) GenerateSignal(ind IndicatorSet) Signal {
	hist, prev := ind["hist"], ind["prev_hist"]
	price := ind["close"]
	if price <= 0 {
		return Hold()
	}
	// Histogram magnitude relative to price, scaled into [0,1].
	momentum := clampStrength(math.Abs(hist) / price * 500)
	switch {
	case hist > 0 && prev <= 0:
		return Signal{Type: SignalBuy, Strength: clampStrength(0.65 + momentum)}
	case hist < 0 && prev >= 0:
		return Signal{Type: SignalSell, Strength: clampStrength(0.65 + momentum)}
	default:
		return Hold()
	}
}
