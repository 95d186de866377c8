package broker

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

type BinanceConfig struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	HTTPTimeout time.Duration
}

// BinanceBroker submits futures market orders through the Binance REST API.
type BinanceBroker struct {
	client *futures.Client
}

func NewBinance(cfg BinanceConfig) (*BinanceBroker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, fmt.Errorf("binance broker requires api key and secret")
	}
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceBroker{client: client}, nil
}

func (b *BinanceBroker) Name() string { return "binance" }

func (b *BinanceBroker) AccountSnapshot(ctx context.Context) (AccountSnapshot, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return AccountSnapshot{}, fmt.Errorf("binance account fetch failed: %w", err)
	}
	snap := AccountSnapshot{
		Equity:      parseFloat(acct.TotalMarginBalance),
		BuyingPower: parseFloat(acct.AvailableBalance),
		UpdatedAt:   time.Now(),
	}
	for _, p := range acct.Positions {
		if pos, ok := accountPosition(p); ok {
			snap.Positions = append(snap.Positions, pos)
		}
	}
	return snap, nil
}

// accountPosition converts one exchange position. The mark price is derived
// from the reported notional so downstream exposure math sees current value,
// not the entry value; a missing notional falls back to the entry price.
func accountPosition(p *futures.AccountPosition) (Position, bool) {
	if p == nil {
		return Position{}, false
	}
	qty := parseFloat(p.PositionAmt)
	if qty == 0 {
		return Position{}, false
	}
	side := "long"
	if qty < 0 {
		side = "short"
		qty = -qty
	}
	mark := math.Abs(parseFloat(p.Notional)) / qty
	if mark == 0 {
		mark = parseFloat(p.EntryPrice)
	}
	return Position{
		Symbol:        strings.ToUpper(p.Symbol),
		Side:          side,
		Quantity:      qty,
		EntryPrice:    parseFloat(p.EntryPrice),
		MarkPrice:     mark,
		UnrealizedPnL: parseFloat(p.UnrealizedProfit),
	}, true
}

func (b *BinanceBroker) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(req.Symbol)), "/", "")
	if symbol == "" {
		return OrderResult{}, fmt.Errorf("order symbol is required")
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("order quantity must be positive")
	}
	side := futures.SideTypeBuy
	if req.Side == SideSell {
		side = futures.SideTypeSell
	}
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if id := strings.TrimSpace(req.ClientOrderID); id != "" {
		svc = svc.NewClientOrderID(id)
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("binance order rejected: %w", err)
	}
	return OrderResult{
		OrderRef:  strconv.FormatInt(res.OrderID, 10),
		FilledQty: parseFloat(res.ExecutedQuantity),
		AvgPrice:  parseFloat(res.AvgPrice),
	}, nil
}

func (b *BinanceBroker) OpenPositions(ctx context.Context) ([]Position, error) {
	snap, err := b.AccountSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Positions, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
