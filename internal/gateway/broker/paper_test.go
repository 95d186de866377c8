package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperBrokerBuyThenSell(t *testing.T) {
	b := NewPaper(100_000)
	ctx := context.Background()

	res, err := b.SubmitOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: SideBuy, Quantity: 2, Price: 50_000})
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderRef)
	assert.Equal(t, 2.0, res.FilledQty)

	positions, err := b.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, 50_000.0, positions[0].EntryPrice)

	// Sell at a profit: equity should grow by 2 * 1000.
	_, err = b.SubmitOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: SideSell, Quantity: 2, Price: 51_000})
	require.NoError(t, err)

	snap, err := b.AccountSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 102_000.0, snap.Equity)
	assert.Empty(t, snap.Positions)
}

func TestPaperBrokerAveragesIn(t *testing.T) {
	b := NewPaper(100_000)
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, OrderRequest{Symbol: "ETHUSDT", Side: SideBuy, Quantity: 1, Price: 3000})
	require.NoError(t, err)
	_, err = b.SubmitOrder(ctx, OrderRequest{Symbol: "ETHUSDT", Side: SideBuy, Quantity: 1, Price: 3100})
	require.NoError(t, err)

	positions, err := b.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 2.0, positions[0].Quantity)
	assert.Equal(t, 3050.0, positions[0].EntryPrice)
}

func TestPaperBrokerRejectsBadOrders(t *testing.T) {
	b := NewPaper(0)
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, OrderRequest{Symbol: "", Side: SideBuy, Quantity: 1, Price: 10})
	assert.Error(t, err)
	_, err = b.SubmitOrder(ctx, OrderRequest{Symbol: "X", Side: SideBuy, Quantity: 0, Price: 10})
	assert.Error(t, err)
	_, err = b.SubmitOrder(ctx, OrderRequest{Symbol: "X", Side: SideBuy, Quantity: 1, Price: 0})
	assert.Error(t, err)
}
