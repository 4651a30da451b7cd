// Package gateway is the broker and market-data boundary. The engine
// core treats every call as slow and fallible; retry policy lives here,
// never in the decision core.
package gateway

import (
	"context"

	"alpaca-trader/internal/models"
)

// BrokerPosition is the broker's authoritative view of a holding, used
// for startup recovery and reconciliation.
type BrokerPosition struct {
	Symbol     string
	Side       models.Side
	Quantity   int
	EntryPrice float64
}

// Gateway is the broker contract the core consumes. SubmitOrder may
// return a pending fill; the caller re-checks on the next tick.
type Gateway interface {
	SubmitOrder(ctx context.Context, intent models.OrderIntent) (models.Fill, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (models.Fill, error)
	GetAccountState(ctx context.Context) (models.AccountState, error)
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error)
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	Close() error
}
