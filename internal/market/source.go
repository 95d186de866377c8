package market

import "context"

// Quote is the latest traded price for a symbol.
type Quote struct {
	Symbol    string
	Price     float64
	UpdatedAt int64
}

type SourceStats struct {
	FetchErrors int
	LastError   string
}

// Source supplies OHLCV bars and live quotes. Implementations wrap a
// rate-limited external provider and must honor ctx cancellation.
type Source interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	GetQuote(ctx context.Context, symbol string) (Quote, error)

	Stats() SourceStats

	Close() error
}
