package backpack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var (
	_ domain.VenueAdapter     = (*Client)(nil)
	_ domain.PriceSource      = (*Client)(nil)
	_ domain.FillReconciler   = (*Client)(nil)
	_ domain.LimitOrderPlacer = (*Client)(nil)
	_ domain.BalanceReader    = (*Client)(nil)
)

func (c *Client) Name() string { return venueName }

func side(s domain.OrderSide) string {
	if s == domain.OrderSideBuy {
		return "Bid"
	}
	return "Ask"
}

// LastPrice reads the public ticker.
func (c *Client) LastPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	body, err := c.doPublic(ctx, "ticker", "/api/v1/ticker", url.Values{"symbol": {symbol}})
	if err != nil {
		return domain.Quote{}, err
	}
	var t tickerResponse
	if err := json.Unmarshal(body, &t); err != nil {
		return domain.Quote{}, domain.NewVenueError(domain.ErrorKindUnknown, venueName, "ticker", fmt.Errorf("decode ticker: %w", err))
	}
	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return domain.Quote{}, domain.NewVenueError(domain.ErrorKindUnknown, venueName, "ticker", fmt.Errorf("parse last price %q: %w", t.LastPrice, err))
	}
	return domain.Quote{Venue: venueName, Symbol: symbol, Price: price, ObservedAt: c.now()}, nil
}

// SubmitMarketOrder places a market order and returns its id.
func (c *Client) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	return c.execute(ctx, "market_order", orderRequest{
		Symbol:    req.Symbol,
		Side:      side(req.Side),
		OrderType: "Market",
		Quantity:  req.Amount.String(),
	})
}

// SubmitLimitOrder places a resting post-only limit order.
func (c *Client) SubmitLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (string, error) {
	return c.execute(ctx, "limit_order", orderRequest{
		Symbol:      req.Symbol,
		Side:        side(req.Side),
		OrderType:   "Limit",
		Quantity:    req.Amount.String(),
		Price:       req.Price.String(),
		TimeInForce: "GTC",
		PostOnly:    true,
	})
}

func (c *Client) execute(ctx context.Context, op string, o orderRequest) (string, error) {
	params := map[string]string{
		"symbol":    o.Symbol,
		"side":      o.Side,
		"orderType": o.OrderType,
		"quantity":  o.Quantity,
	}
	if o.Price != "" {
		params["price"] = o.Price
	}
	if o.TimeInForce != "" {
		params["timeInForce"] = o.TimeInForce
	}
	if o.PostOnly {
		params["postOnly"] = "true"
	}

	body, err := c.doSignedRequest(ctx, op, http.MethodPost, "/api/v1/order", "orderExecute", params, o)
	if err != nil {
		return "", err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("decode order: %w", err))
	}
	// A market order that executed less than its quantity leaves the
	// difference unhedged, whatever status it ended in.
	if o.OrderType == "Market" {
		requested, _ := decimal.NewFromString(o.Quantity)
		executed, _ := decimal.NewFromString(resp.ExecutedQuantity)
		if executed.IsPositive() && executed.LessThan(requested) {
			return "", &domain.PartialFillError{Venue: venueName, OrderID: resp.ID, Requested: requested, Filled: executed}
		}
	}
	switch strings.ToLower(resp.Status) {
	case "cancelled", "expired", "triggerfailed":
		return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op,
			fmt.Errorf("order %s ended %s with %s executed", resp.ID, resp.Status, resp.ExecutedQuantity))
	}
	if resp.ID == "" {
		return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, errors.New("response has no order id"))
	}
	return resp.ID, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID, symbol string) error {
	params := map[string]string{"orderId": orderID, "symbol": symbol}
	_, err := c.doSignedRequest(ctx, "cancel", http.MethodDelete, "/api/v1/order", "orderCancel", params,
		cancelRequest{OrderID: orderID, Symbol: symbol})
	return err
}

// FindFill looks for a fill matching req at or after since. An order that
// filled only in part is reported as a *domain.PartialFillError.
func (c *Client) FindFill(ctx context.Context, req domain.OrderRequest, since time.Time) (string, bool, error) {
	params := map[string]string{
		"symbol": req.Symbol,
		"from":   strconv.FormatInt(since.Add(-time.Second).UnixMilli(), 10),
	}
	body, err := c.doSignedRequest(ctx, "fills", http.MethodGet, "/wapi/v1/history/fills", "fillHistoryQueryAll", params, nil)
	if err != nil {
		return "", false, err
	}
	var fills []fill
	if err := json.Unmarshal(body, &fills); err != nil {
		return "", false, domain.NewVenueError(domain.ErrorKindUnknown, venueName, "fills", fmt.Errorf("decode fills: %w", err))
	}

	// A market order can fill in several pieces; sum them per order id.
	want := side(req.Side)
	filled := map[string]decimal.Decimal{}
	for _, f := range fills {
		if f.Symbol != req.Symbol || f.Side != want {
			continue
		}
		if ts, ok := parseTimestamp(f.Timestamp); ok && ts.Before(since.Add(-time.Second)) {
			continue
		}
		q, err := decimal.NewFromString(f.Quantity)
		if err != nil {
			continue
		}
		filled[f.OrderID] = filled[f.OrderID].Add(q)
	}
	var partial *domain.PartialFillError
	for id, q := range filled {
		switch {
		case q.Equal(req.Amount):
			return id, true, nil
		case q.LessThan(req.Amount) && partial == nil:
			partial = &domain.PartialFillError{Venue: venueName, OrderID: id, Requested: req.Amount, Filled: q}
		}
	}
	if partial != nil {
		return "", false, partial
	}
	return "", false, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Balances returns the account capital per asset.
func (c *Client) Balances(ctx context.Context) ([]domain.Balance, error) {
	body, err := c.doSignedRequest(ctx, "balances", http.MethodGet, "/api/v1/capital", "balanceQuery", nil, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]capitalEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, "balances", fmt.Errorf("decode capital: %w", err))
	}
	out := make([]domain.Balance, 0, len(raw))
	for asset, e := range raw {
		avail := parseDecimal(e.Available)
		total := avail.Add(parseDecimal(e.Locked)).Add(parseDecimal(e.Staked))
		out = append(out, domain.Balance{Asset: asset, Total: total, Free: avail})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
