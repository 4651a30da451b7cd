package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "alpaca-trader/internal/errors"
	"alpaca-trader/internal/models"
)

// Paper is an in-memory broker simulation. Market orders fill at the
// last known price; limit orders fill when marketable and otherwise
// stay pending until price reaches them. Prices advance as the caller
// feeds bars.
type Paper struct {
	mu sync.Mutex

	cash      float64
	positions map[string]*BrokerPosition
	orders    map[string]*paperOrder
	bars      map[string][]models.Bar
	last      map[string]float64
	nextID    int
}

type paperOrder struct {
	id     string
	intent models.OrderIntent
	status models.OrderStatus
}

// NewPaper returns a paper gateway with the given starting cash.
func NewPaper(startingCash float64) *Paper {
	return &Paper{
		cash:      startingCash,
		positions: make(map[string]*BrokerPosition),
		orders:    make(map[string]*paperOrder),
		bars:      make(map[string][]models.Bar),
		last:      make(map[string]float64),
	}
}

// FeedBars loads the bar history the simulation serves for symbol and
// moves the simulated price to the final close.
func (p *Paper) FeedBars(symbol string, bars []models.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = bars
	if len(bars) > 0 {
		p.last[symbol] = bars[len(bars)-1].Close
	}
	p.fillMarketable(symbol)
}

// SetPrice moves the simulated price without appending bars.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[symbol] = price
	p.fillMarketable(symbol)
}

func (p *Paper) SubmitOrder(ctx context.Context, intent models.OrderIntent) (models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.last[intent.Symbol]
	if !ok {
		return models.Fill{}, apperrors.ErrNoBars
	}
	if intent.Quantity <= 0 {
		return models.Fill{}, apperrors.ErrOrderRejected
	}

	p.nextID++
	id := fmt.Sprintf("paper-%d", p.nextID)

	if intent.Type == models.OrderTypeLimit && !marketable(intent, price) {
		p.orders[id] = &paperOrder{id: id, intent: intent, status: models.OrderStatusPending}
		return models.Fill{OrderID: id, Status: models.OrderStatusPending}, nil
	}

	fillPrice := price
	if intent.Type == models.OrderTypeLimit {
		fillPrice = intent.LimitPrice
	}
	fill, err := p.settle(id, intent, fillPrice)
	if err != nil {
		return models.Fill{}, err
	}
	p.orders[id] = &paperOrder{id: id, intent: intent, status: models.OrderStatusFilled}
	return fill, nil
}

func marketable(intent models.OrderIntent, price float64) bool {
	if intent.Side == models.OrderSideBuy {
		return price <= intent.LimitPrice
	}
	return price >= intent.LimitPrice
}

// settle applies a fill to cash and positions. Caller holds the lock.
func (p *Paper) settle(id string, intent models.OrderIntent, price float64) (models.Fill, error) {
	notional := price * float64(intent.Quantity)
	if intent.Side == models.OrderSideBuy && notional > p.cash {
		pos := p.positions[intent.Symbol]
		covering := pos != nil && pos.Side == models.SideShort
		if !covering {
			return models.Fill{}, apperrors.ErrInsufficientFunds
		}
	}

	signed := intent.Quantity
	if intent.Side == models.OrderSideSell {
		signed = -signed
	}

	pos := p.positions[intent.Symbol]
	if pos == nil {
		side := models.SideLong
		if signed < 0 {
			side = models.SideShort
		}
		p.positions[intent.Symbol] = &BrokerPosition{
			Symbol:     intent.Symbol,
			Side:       side,
			Quantity:   abs(signed),
			EntryPrice: price,
		}
	} else {
		cur := pos.Quantity
		if pos.Side == models.SideShort {
			cur = -cur
		}
		next := cur + signed
		switch {
		case next == 0:
			delete(p.positions, intent.Symbol)
		case next > 0:
			pos.Side = models.SideLong
			pos.Quantity = next
		default:
			pos.Side = models.SideShort
			pos.Quantity = -next
		}
	}

	if intent.Side == models.OrderSideBuy {
		p.cash -= notional
	} else {
		p.cash += notional
	}

	return models.Fill{
		OrderID:  id,
		Status:   models.OrderStatusFilled,
		Price:    price,
		Quantity: intent.Quantity,
		FilledAt: time.Now().UTC(),
	}, nil
}

// fillMarketable converts pending limit orders that have become
// marketable at the current price. Caller holds the lock.
func (p *Paper) fillMarketable(symbol string) {
	price := p.last[symbol]
	for _, o := range p.orders {
		if o.status != models.OrderStatusPending || o.intent.Symbol != symbol {
			continue
		}
		if marketable(o.intent, price) {
			if _, err := p.settle(o.id, o.intent, o.intent.LimitPrice); err == nil {
				o.status = models.OrderStatusFilled
			}
		}
	}
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if o.status == models.OrderStatusPending {
		o.status = models.OrderStatusCancelled
	}
	return nil
}

func (p *Paper) GetOrder(ctx context.Context, orderID string) (models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return models.Fill{}, apperrors.ErrOrderNotFound
	}
	fill := models.Fill{OrderID: o.id, Status: o.status}
	if o.status == models.OrderStatusFilled {
		fill.Price = o.intent.LimitPrice
		if o.intent.Type == models.OrderTypeMarket {
			fill.Price = p.last[o.intent.Symbol]
		}
		fill.Quantity = o.intent.Quantity
		fill.FilledAt = time.Now().UTC()
	}
	return fill, nil
}

func (p *Paper) GetAccountState(ctx context.Context) (models.AccountState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// short-sale proceeds sit in cash, so a short marks to market as a
	// liability at the current price
	equity := p.cash
	for sym, pos := range p.positions {
		price := p.last[sym]
		if pos.Side == models.SideShort {
			equity -= price * float64(pos.Quantity)
		} else {
			equity += price * float64(pos.Quantity)
		}
	}
	return models.AccountState{
		Equity:      equity,
		Cash:        p.cash,
		BuyingPower: p.cash,
	}, nil
}

func (p *Paper) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bars, ok := p.bars[symbol]
	if !ok || len(bars) == 0 {
		return nil, apperrors.ErrNoBars
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (p *Paper) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.last[symbol]
	if !ok {
		return models.Quote{}, apperrors.ErrNoBars
	}
	return models.Quote{
		Symbol:    symbol,
		BidPrice:  price,
		AskPrice:  price,
		LastPrice: price,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (p *Paper) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BrokerPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) Close() error { return nil }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
