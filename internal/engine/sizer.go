package engine

import (
	"github.com/shopspring/decimal"
)

// Sizer converts an approved signal and the account's equity into an order
// quantity: floor(equity * position_size_pct / price), clamped so the order's
// notional never exceeds the size cap. A zero quantity is a recorded no-op,
// not an error.
type Sizer struct{}

func NewSizer() *Sizer { return &Sizer{} }

// Quantity returns the whole-unit order quantity. sizeCap is the notional
// cap from the risk decision; 0 means no cap beyond position_size_pct.
func (s *Sizer) Quantity(equity, pct, price, sizeCap float64) float64 {
	if equity <= 0 || pct <= 0 || price <= 0 {
		return 0
	}
	dp := decimal.NewFromFloat(price)
	qty := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(pct)).
		Div(dp).
		Floor()
	if sizeCap > 0 {
		capQty := decimal.NewFromFloat(sizeCap).Div(dp).Floor()
		if capQty.LessThan(qty) {
			qty = capQty
		}
	}
	if qty.IsNegative() {
		return 0
	}
	f, _ := qty.Float64()
	return f
}
