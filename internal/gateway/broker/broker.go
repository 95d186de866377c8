// Package broker defines a common abstraction for order-submitting backends.
// The automation core only ever sees this interface; live trading and paper
// trading differ only in which implementation is wired in.
package broker

import (
	"context"
	"time"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Position is an open position as reported by the broker.
type Position struct {
	Symbol        string
	Side          string // "long" or "short"
	Quantity      float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
}

// AccountSnapshot is a read-only view of the account at one instant.
type AccountSnapshot struct {
	Equity      float64
	BuyingPower float64
	Positions   []Position
	UpdatedAt   time.Time
}

// OrderRequest describes a market order. ClientOrderID doubles as the
// idempotency key; Price is the reference price used by paper fills.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      float64
	Price         float64
	ClientOrderID string
}

type OrderResult struct {
	OrderRef  string
	FilledQty float64
	AvgPrice  float64
}

type Broker interface {
	Name() string

	AccountSnapshot(ctx context.Context) (AccountSnapshot, error)

	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	OpenPositions(ctx context.Context) ([]Position, error)
}
