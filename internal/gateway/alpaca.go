package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"alpaca-trader/internal/config"
	apperrors "alpaca-trader/internal/errors"
	"alpaca-trader/internal/models"
)

const (
	defaultDataURL = "https://data.alpaca.markets"
	maxRetries     = 3
	retryBackoff   = 2 * time.Second
)

// Alpaca is the REST broker gateway. It owns retry policy for transient
// failures; auth failures surface as permanent errors so the engine can
// stop instead of skipping forever.
type Alpaca struct {
	baseURL string
	dataURL string
	keyID   string
	secret  string
	client  *http.Client
	log     zerolog.Logger
}

// NewAlpaca returns a gateway using the given credentials.
func NewAlpaca(creds config.Credentials, log zerolog.Logger) *Alpaca {
	return &Alpaca{
		baseURL: creds.BaseURL,
		dataURL: defaultDataURL,
		keyID:   creds.APIKeyID,
		secret:  creds.APISecretKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

func (a *Alpaca) do(ctx context.Context, method, url string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, "encoding request")
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return apperrors.Wrap(err, "building request")
		}
		req.Header.Set("APCA-API-KEY-ID", a.keyID)
		req.Header.Set("APCA-API-SECRET-KEY", a.secret)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.client.Do(req)
		if err != nil {
			lastErr = &apperrors.GatewayError{Op: method + " " + url, Transient: true, Err: err}
			a.log.Warn().Err(err).Int("attempt", attempt+1).Msg("gateway request failed")
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &apperrors.GatewayError{Op: method + " " + url, Transient: true, Err: err}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &apperrors.GatewayError{Op: method + " " + url, Transient: false, Err: apperrors.ErrNotAuthenticated}
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &apperrors.GatewayError{
				Op:        method + " " + url,
				Transient: true,
				Err:       fmt.Errorf("status %d: %s", resp.StatusCode, data),
			}
			continue
		case resp.StatusCode >= 400:
			return &apperrors.GatewayError{
				Op:        method + " " + url,
				Transient: false,
				Err:       fmt.Errorf("status %d: %s", resp.StatusCode, data),
			}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.Wrap(err, "decoding response")
		}
		return nil
	}
	return lastErr
}

type alpacaOrder struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledAvgPrice string `json:"filled_avg_price"`
	FilledQty      string `json:"filled_qty"`
	FilledAt       string `json:"filled_at"`
}

func (o alpacaOrder) toFill() models.Fill {
	fill := models.Fill{OrderID: o.ID}
	switch o.Status {
	case "filled":
		fill.Status = models.OrderStatusFilled
	case "canceled", "expired":
		fill.Status = models.OrderStatusCancelled
	case "rejected":
		fill.Status = models.OrderStatusRejected
	default:
		fill.Status = models.OrderStatusPending
	}
	if fill.Status == models.OrderStatusFilled {
		fill.Price, _ = strconv.ParseFloat(o.FilledAvgPrice, 64)
		qty, _ := strconv.ParseFloat(o.FilledQty, 64)
		fill.Quantity = int(qty)
		if t, err := time.Parse(time.RFC3339, o.FilledAt); err == nil {
			fill.FilledAt = t
		}
	}
	return fill
}

func (a *Alpaca) SubmitOrder(ctx context.Context, intent models.OrderIntent) (models.Fill, error) {
	body := map[string]interface{}{
		"symbol":        intent.Symbol,
		"qty":           strconv.Itoa(intent.Quantity),
		"side":          "buy",
		"type":          "market",
		"time_in_force": "day",
	}
	if intent.Side == models.OrderSideSell {
		body["side"] = "sell"
	}
	if intent.Type == models.OrderTypeLimit {
		body["type"] = "limit"
		body["limit_price"] = strconv.FormatFloat(intent.LimitPrice, 'f', 2, 64)
	}

	var order alpacaOrder
	if err := a.do(ctx, http.MethodPost, a.baseURL+"/v2/orders", body, &order); err != nil {
		return models.Fill{}, err
	}
	fill := order.toFill()
	if fill.Status == models.OrderStatusPending {
		// market orders usually fill within a moment; poll briefly
		for i := 0; i < 3 && fill.Status == models.OrderStatusPending; i++ {
			select {
			case <-ctx.Done():
				return fill, ctx.Err()
			case <-time.After(time.Second):
			}
			f, err := a.GetOrder(ctx, order.ID)
			if err != nil {
				break
			}
			fill = f
		}
	}
	return fill, nil
}

func (a *Alpaca) CancelOrder(ctx context.Context, orderID string) error {
	return a.do(ctx, http.MethodDelete, a.baseURL+"/v2/orders/"+orderID, nil, nil)
}

func (a *Alpaca) GetOrder(ctx context.Context, orderID string) (models.Fill, error) {
	var order alpacaOrder
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/v2/orders/"+orderID, nil, &order); err != nil {
		return models.Fill{}, err
	}
	return order.toFill(), nil
}

func (a *Alpaca) GetAccountState(ctx context.Context) (models.AccountState, error) {
	var acct struct {
		Equity        string `json:"equity"`
		Cash          string `json:"cash"`
		BuyingPower   string `json:"buying_power"`
		DaytradeCount int    `json:"daytrade_count"`
	}
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/v2/account", nil, &acct); err != nil {
		return models.AccountState{}, err
	}
	out := models.AccountState{}
	out.Equity, _ = strconv.ParseFloat(acct.Equity, 64)
	out.Cash, _ = strconv.ParseFloat(acct.Cash, 64)
	out.BuyingPower, _ = strconv.ParseFloat(acct.BuyingPower, 64)
	return out, nil
}

func (a *Alpaca) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	url := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=%s&limit=%d&adjustment=raw",
		a.dataURL, symbol, timeframe, limit)

	var resp struct {
		Bars []struct {
			T string  `json:"t"`
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V int64   `json:"v"`
		} `json:"bars"`
	}
	if err := a.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Bars) == 0 {
		return nil, &apperrors.DataError{DataType: "bars", Symbol: symbol, Message: "empty response"}
	}

	bars := make([]models.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		ts, err := time.Parse(time.RFC3339, b.T)
		if err != nil {
			return nil, &apperrors.DataError{DataType: "bars", Symbol: symbol, Message: "bad timestamp", Err: err}
		}
		bars = append(bars, models.Bar{
			Timestamp: ts,
			Open:      b.O,
			High:      b.H,
			Low:       b.L,
			Close:     b.C,
			Volume:    b.V,
		})
	}
	return bars, nil
}

func (a *Alpaca) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	url := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", a.dataURL, symbol)
	var resp struct {
		Quote struct {
			T  string  `json:"t"`
			BP float64 `json:"bp"`
			AP float64 `json:"ap"`
		} `json:"quote"`
	}
	if err := a.do(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return models.Quote{}, err
	}
	q := models.Quote{
		Symbol:    symbol,
		BidPrice:  resp.Quote.BP,
		AskPrice:  resp.Quote.AP,
		LastPrice: (resp.Quote.BP + resp.Quote.AP) / 2,
	}
	if t, err := time.Parse(time.RFC3339, resp.Quote.T); err == nil {
		q.Timestamp = t
	}
	return q, nil
}

func (a *Alpaca) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	var resp []struct {
		Symbol        string `json:"symbol"`
		Qty           string `json:"qty"`
		Side          string `json:"side"`
		AvgEntryPrice string `json:"avg_entry_price"`
	}
	if err := a.do(ctx, http.MethodGet, a.baseURL+"/v2/positions", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]BrokerPosition, 0, len(resp))
	for _, p := range resp {
		qty, _ := strconv.ParseFloat(p.Qty, 64)
		entry, _ := strconv.ParseFloat(p.AvgEntryPrice, 64)
		side := models.SideLong
		if p.Side == "short" {
			side = models.SideShort
			qty = -qty
		}
		out = append(out, BrokerPosition{
			Symbol:     p.Symbol,
			Side:       side,
			Quantity:   int(qty),
			EntryPrice: entry,
		})
	}
	return out, nil
}

func (a *Alpaca) Close() error { return nil }
