// Package executor translates order intents into gateway calls. In
// paper mode it applies slippage and commission to reported fills so
// simulated results do not flatter the strategy. It makes no decisions.
package executor

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"alpaca-trader/internal/config"
	"alpaca-trader/internal/gateway"
	"alpaca-trader/internal/models"
)

// Executor carries intents across the gateway boundary.
type Executor struct {
	gw  gateway.Gateway
	cfg config.ExecutionConfig
	log zerolog.Logger
}

// New returns an executor over the given gateway.
func New(gw gateway.Gateway, cfg config.ExecutionConfig, log zerolog.Logger) *Executor {
	return &Executor{gw: gw, cfg: cfg, log: log}
}

// Execute submits one intent. Cancel intents are tagged
// "cancel:<order-id>" and carry no quantity.
func (e *Executor) Execute(ctx context.Context, intent models.OrderIntent) (models.Fill, error) {
	if id, ok := strings.CutPrefix(intent.Tag, "cancel:"); ok {
		if err := e.gw.CancelOrder(ctx, id); err != nil {
			return models.Fill{}, err
		}
		return models.Fill{OrderID: id, Status: models.OrderStatusCancelled}, nil
	}

	fill, err := e.gw.SubmitOrder(ctx, intent)
	if err != nil {
		return models.Fill{}, err
	}
	if fill.Status == models.OrderStatusFilled && e.cfg.Paper {
		fill = e.simulate(intent, fill)
	}

	e.log.Debug().
		Str("symbol", intent.Symbol).
		Str("side", string(intent.Side)).
		Str("type", string(intent.Type)).
		Int("quantity", intent.Quantity).
		Str("status", string(fill.Status)).
		Float64("price", fill.Price).
		Msg("order executed")
	return fill, nil
}

// PollOrder re-checks a previously pending order.
func (e *Executor) PollOrder(ctx context.Context, orderID string, intent models.OrderIntent) (models.Fill, error) {
	fill, err := e.gw.GetOrder(ctx, orderID)
	if err != nil {
		return models.Fill{}, err
	}
	if fill.Status == models.OrderStatusFilled && e.cfg.Paper {
		fill = e.simulate(intent, fill)
	}
	return fill, nil
}

// simulate applies adverse slippage to the fill price and deducts
// commission on the traded notional.
func (e *Executor) simulate(intent models.OrderIntent, fill models.Fill) models.Fill {
	slip := e.cfg.SlippagePct / 100
	if intent.Side == models.OrderSideBuy {
		fill.Price *= 1 + slip
	} else {
		fill.Price *= 1 - slip
	}
	fill.Commission = fill.Price * float64(fill.Quantity) * e.cfg.CommissionPct / 100
	return fill
}
