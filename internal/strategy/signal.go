package strategy

import "strings"

type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is the output of one plugin evaluation. Strength is in [0, 1].
type Signal struct {
	Type     SignalType
	Strength float64
}

func Hold() Signal { return Signal{Type: SignalHold} }

// ParseSignalType normalizes a stored signal type; anything unknown is HOLD.
func ParseSignalType(s string) SignalType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SignalBuy
	case "SELL":
		return SignalSell
	default:
		return SignalHold
	}
}

func clampStrength(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
