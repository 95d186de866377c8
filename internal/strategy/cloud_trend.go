package strategy

import (
	"fmt"

	"autotrader/internal/market"

	talib "github.com/markcheno/go-talib"
)

// CloudTrend is an Ichimoku-style trend follower: it compares the conversion
// midpoint against the base midpoint and requires price above/below both.
type CloudTrend struct {
	conversion int
	base       int
}

func NewCloudTrend(conversion, base int) (*CloudTrend, error) {
	if conversion <= 0 {
		conversion = 9
	}
	if base <= 0 {
		base = 26
	}
	if conversion >= base {
		return nil, fmt.Errorf("cloud_trend: conversion period %d must be below base period %d", conversion, base)
	}
	return &CloudTrend{conversion: conversion, base: base}, nil
}

func (s *CloudTrend) Kind() string  { return "cloud_trend" }
func (s *CloudTrend) Lookback() int { return s.base * 2 }

func (s *CloudTrend) ComputeIndicators(candles []market.Candle) (IndicatorSet, error) {
	if len(candles) < s.base {
		return nil, fmt.Errorf("cloud_trend: need >= %d bars, got %d", s.base, len(candles))
	}
	highs := market.Highs(candles)
	lows := market.Lows(candles)
	convHigh := talib.Max(highs, s.conversion)
	convLow := talib.Min(lows, s.conversion)
	baseHigh := talib.Max(highs, s.base)
	baseLow := talib.Min(lows, s.base)
	last := len(candles) - 1
	return IndicatorSet{
		"conversion": (convHigh[last] + convLow[last]) / 2,
		"base":       (baseHigh[last] + baseLow[last]) / 2,
		"close":      candles[last].Close,
	}, nil
}

func (s *CloudTrend) GenerateSignal(ind IndicatorSet) Signal {
	conv, base, close := ind["conversion"], ind["base"], ind["close"]
	if base <= 0 || close <= 0 {
		return Hold()
	}
	spread := (conv - base) / base
	switch {
	case conv > base && close > conv:
		return Signal{Type: SignalBuy, Strength: clampStrength(0.6 + spread*50)}
	case conv < base && close < conv:
		return Signal{Type: SignalSell, Strength: clampStrength(0.6 - spread*50)}
	default:
		return Hold()
	}
}
