package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantityBasic(t *testing.T) {
	s := NewSizer()
	// floor(100000 * 0.02 / 50) = 40
	assert.Equal(t, 40.0, s.Quantity(100_000, 0.02, 50, 0))
}

func TestQuantityFloors(t *testing.T) {
	s := NewSizer()
	// 100000 * 0.02 / 300 = 6.66...
	assert.Equal(t, 6.0, s.Quantity(100_000, 0.02, 300, 0))
}

func TestQuantityClampsToSizeCap(t *testing.T) {
	s := NewSizer()
	// Uncapped: 40; cap 1000 notional at price 50 allows 20.
	assert.Equal(t, 20.0, s.Quantity(100_000, 0.02, 50, 1000))
}

func TestQuantityCapLargerThanBudgetIsIgnored(t *testing.T) {
	s := NewSizer()
	assert.Equal(t, 40.0, s.Quantity(100_000, 0.02, 50, 100_000))
}

func TestQuantityZeroIsNoOp(t *testing.T) {
	s := NewSizer()
	assert.Zero(t, s.Quantity(100_000, 0.02, 10_000_000, 0))
	assert.Zero(t, s.Quantity(0, 0.02, 50, 0))
	assert.Zero(t, s.Quantity(100_000, 0, 50, 0))
	assert.Zero(t, s.Quantity(100_000, 0.02, 0, 0))
}

func TestQuantityNeverExceedsBudget(t *testing.T) {
	s := NewSizer()
	cases := []struct {
		equity, pct, price, sizeCap float64
	}{
		{100_000, 0.02, 50, 0},
		{100_000, 0.5, 3.33, 1200},
		{250_000, 0.001, 7, 0},
		{99_999, 0.05, 123.45, 4000},
	}
	for _, tc := range cases {
		qty := s.Quantity(tc.equity, tc.pct, tc.price, tc.sizeCap)
		assert.LessOrEqual(t, qty*tc.price, tc.equity*tc.pct+1e-9)
		if tc.sizeCap > 0 {
			assert.LessOrEqual(t, qty*tc.price, tc.sizeCap+1e-9)
		}
	}
}
