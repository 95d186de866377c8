package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperBroker simulates fills at the request's reference price and tracks
// equity and positions in memory. Used for dry-run mode and tests.
type PaperBroker struct {
	mu        sync.Mutex
	equity    decimal.Decimal
	positions map[string]*Position
}

func NewPaper(startingEquity float64) *PaperBroker {
	if startingEquity <= 0 {
		startingEquity = 100_000
	}
	return &PaperBroker{
		equity:    decimal.NewFromFloat(startingEquity),
		positions: make(map[string]*Position),
	}
}

func (p *PaperBroker) Name() string { return "paper" }

func (p *PaperBroker) AccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	equity, _ := p.equity.Float64()
	snap := AccountSnapshot{
		Equity:      equity,
		BuyingPower: equity,
		UpdatedAt:   time.Now(),
	}
	for _, pos := range p.positions {
		snap.Positions = append(snap.Positions, *pos)
	}
	return snap, nil
}

func (p *PaperBroker) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return OrderResult{}, fmt.Errorf("order symbol is required")
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("order quantity must be positive")
	}
	if req.Price <= 0 {
		return OrderResult{}, fmt.Errorf("paper fills require a reference price")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.Side {
	case SideBuy:
		p.applyBuy(symbol, req.Quantity, req.Price)
	case SideSell:
		p.applySell(symbol, req.Quantity, req.Price)
	default:
		return OrderResult{}, fmt.Errorf("unknown order side %q", req.Side)
	}

	return OrderResult{
		OrderRef:  "paper-" + uuid.NewString(),
		FilledQty: req.Quantity,
		AvgPrice:  req.Price,
	}, nil
}

func (p *PaperBroker) OpenPositions(ctx context.Context) ([]Position, error) {
	snap, err := p.AccountSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Positions, nil
}

func (p *PaperBroker) applyBuy(symbol string, qty, price float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		p.positions[symbol] = &Position{
			Symbol:     symbol,
			Side:       "long",
			Quantity:   qty,
			EntryPrice: price,
			MarkPrice:  price,
		}
		return
	}
	// Average in.
	total := decimal.NewFromFloat(pos.EntryPrice).Mul(decimal.NewFromFloat(pos.Quantity)).
		Add(decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)))
	pos.Quantity += qty
	pos.EntryPrice, _ = total.Div(decimal.NewFromFloat(pos.Quantity)).Float64()
	pos.MarkPrice = price
}

func (p *PaperBroker) applySell(symbol string, qty, price float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}
	closed := qty
	if closed > pos.Quantity {
		closed = pos.Quantity
	}
	realized := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(pos.EntryPrice)).
		Mul(decimal.NewFromFloat(closed))
	p.equity = p.equity.Add(realized)
	pos.Quantity -= closed
	pos.MarkPrice = price
	if pos.Quantity <= 0 {
		delete(p.positions, symbol)
	}
}
