package strategy

import (
	"fmt"

	"autotrader/internal/market"

	talib "github.com/markcheno/go-talib"
)

// ChannelBreakout signals when price closes outside the prior N-bar channel.
type ChannelBreakout struct {
	period int
}

func NewChannelBreakout(period int) (*ChannelBreakout, error) {
	if period <= 0 {
		period = 20
	}
	if period < 2 {
		return nil, fmt.Errorf("channel_breakout: period must be >= 2")
	}
	return &ChannelBreakout{period: period}, nil
}

func (s *ChannelBreakout) Kind() string  { return "channel_breakout" }
func (s *ChannelBreakout) Lookback() int { return s.period * 2 }

func (s *ChannelBreakout) ComputeIndicators(candles []market.Candle) (IndicatorSet, error) {
	if len(candles) < s.period+1 {
		return nil, fmt.Errorf("channel_breakout: need >= %d bars, got %d", s.period+1, len(candles))
	}
	// Channel is built from the bars before the current one.
	window := candles[:len(candles)-1]
	highs := talib.Max(market.Highs(window), s.period)
	lows := talib.Min(market.Lows(window), s.period)
	last := candles[len(candles)-1]
	return IndicatorSet{
		"channel_high": highs[len(highs)-1],
		"channel_low":  lows[len(lows)-1],
		"close":        last.Close,
	}, nil
}

func (s *ChannelBreakout) GenerateSignal(ind IndicatorSet) Signal {
	high, low, close := ind["channel_high"], ind["channel_low"], ind["close"]
	width := high - low
	if width <= 0 || close <= 0 {
		return Hold()
	}
	switch {
	case close > high:
		return Signal{Type: SignalBuy, Strength: clampStrength(0.6 + (close-high)/width)}
	case close < low:
		return Signal{Type: SignalSell, Strength: clampStrength(0.6 + (low-close)/width)}
	default:
		return Hold()
	}
}
