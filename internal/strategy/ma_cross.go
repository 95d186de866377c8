package strategy

import (
	"fmt"
	"math"

	"autotrader/internal/market"

	talib "github.com/markcheno/go-talib"
)

// MACross signals on exponential moving average crossovers.
type MACross struct {
	fast int
	slow int
}

func NewMACross(fast, slow int) (*MACross, error) {
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if fast >= slow {
		return nil, fmt.Errorf("ma_cross: fast period %d must be below slow period %d", fast, slow)
	}
	return &MACross{fast: fast, slow: slow}, nil
}

func (s *MACross) Kind() string  { return "ma_cross" }
func (s *MACross) Lookback() int { return s.slow * 3 }

func (s *MACross) ComputeIndicators(candles []market.Candle) (IndicatorSet, error) {
	if len(candles) < s.slow+1 {
		return nil, fmt.Errorf("ma_cross: need >= %d bars, got %d", s.slow+1, len(candles))
	}
	closes := market.Closes(candles)
	fast := talib.Ema(closes, s.fast)
	slow := talib.Ema(closes, s.slow)
	last := len(closes) - 1
	return IndicatorSet{
		"fast_ema":      fast[last],
		"slow_ema":      slow[last],
		"prev_fast_ema": fast[last-1],
		"prev_slow_ema": slow[last-1],
	}, nil
}

func (s *MACross) GenerateSignal(ind IndicatorSet) Signal {
	fast, slow := ind["fast_ema"], ind["slow_ema"]
	prevFast, prevSlow := ind["prev_fast_ema"], ind["prev_slow_ema"]
	if slow == 0 {
		return Hold()
	}
	spread := math.Abs(fast-slow) / slow
	crossedUp := fast > slow && prevFast <= prevSlow
	crossedDown := fast < slow && prevFast >= prevSlow
	switch {
	case crossedUp:
		return Signal{Type: SignalBuy, Strength: clampStrength(0.7 + spread*100)}
	case crossedDown:
		return Signal{Type: SignalSell, Strength: clampStrength(0.7 + spread*100)}
	case fast > slow:
		return Signal{Type: SignalBuy, Strength: clampStrength(spread * 50)}
	case fast < slow:
		return Signal{Type: SignalSell, Strength: clampStrength(spread * 50)}
	default:
		return Hold()
	}
}
