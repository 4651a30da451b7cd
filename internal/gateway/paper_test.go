package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "alpaca-trader/internal/errors"
	"alpaca-trader/internal/models"
)

func feedOneBar(p *Paper, symbol string, close float64) {
	p.FeedBars(symbol, []models.Bar{{
		Timestamp: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		Open:      close, High: close, Low: close, Close: close, Volume: 1000,
	}})
}

func TestPaperMarketOrderFills(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000)
	feedOneBar(p, "SPY", 100.0)

	fill, err := p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, fill.Status)
	assert.InDelta(t, 100.0, fill.Price, 1e-9)

	acct, err := p.GetAccountState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 90000.0, acct.Cash, 1e-9)
	assert.InDelta(t, 100000.0, acct.Equity, 1e-9)

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 100, positions[0].Quantity)
	assert.Equal(t, models.SideLong, positions[0].Side)
}

func TestPaperRoundTripPnL(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000)
	feedOneBar(p, "SPY", 100.0)

	_, err := p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 100,
	})
	require.NoError(t, err)

	p.SetPrice("SPY", 105.0)
	fill, err := p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: 100,
	})
	require.NoError(t, err)
	assert.InDelta(t, 105.0, fill.Price, 1e-9)

	acct, err := p.GetAccountState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100500.0, acct.Cash, 1e-9)

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperLimitOrderPendsUntilMarketable(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000)
	feedOneBar(p, "SPY", 100.0)

	fill, err := p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideBuy, Type: models.OrderTypeLimit,
		Quantity: 100, LimitPrice: 99.0,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, fill.Status)

	p.SetPrice("SPY", 98.5)
	got, err := p.GetOrder(ctx, fill.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, got.Status)
	assert.InDelta(t, 99.0, got.Price, 1e-9)
}

func TestPaperCancelPendingOrder(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000)
	feedOneBar(p, "SPY", 100.0)

	fill, err := p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideBuy, Type: models.OrderTypeLimit,
		Quantity: 100, LimitPrice: 95.0,
	})
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, fill.OrderID))

	got, err := p.GetOrder(ctx, fill.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
}

func TestPaperRejectsWithoutFundsOrData(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(1000)

	_, err := p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 10,
	})
	assert.ErrorIs(t, err, apperrors.ErrNoBars)

	feedOneBar(p, "SPY", 100.0)
	_, err = p.SubmitOrder(ctx, models.OrderIntent{
		Symbol: "SPY", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 100,
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
}

func TestPaperGetBarsRespectsLimit(t *testing.T) {
	p := NewPaper(100000)
	bars := make([]models.Bar, 50)
	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Close: 100}
	}
	p.FeedBars("SPY", bars)

	got, err := p.GetBars(context.Background(), "SPY", "1Min", 20)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.True(t, got[0].Timestamp.Equal(bars[30].Timestamp))
}
