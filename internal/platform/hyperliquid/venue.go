package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
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

// asset resolves a coin to its universe index, loading meta on first use.
func (c *Client) asset(ctx context.Context, op, coin string) (assetInfo, error) {
	c.mu.Lock()
	loaded := c.assets != nil
	info, ok := c.assets[coin]
	c.mu.Unlock()
	if ok {
		return info, nil
	}
	if !loaded {
		var meta metaResponse
		if err := c.info(ctx, op, map[string]any{"type": "meta"}, &meta); err != nil {
			return assetInfo{}, err
		}
		assets := make(map[string]assetInfo, len(meta.Universe))
		for i, a := range meta.Universe {
			assets[a.Name] = assetInfo{index: i, szDecimals: a.SzDecimals}
		}
		c.mu.Lock()
		c.assets = assets
		c.mu.Unlock()
		if info, ok := assets[coin]; ok {
			return info, nil
		}
	}
	return assetInfo{}, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("unknown coin %q", coin))
}

func (c *Client) mids(ctx context.Context, op string) (map[string]string, error) {
	var mids map[string]string
	if err := c.info(ctx, op, map[string]any{"type": "allMids"}, &mids); err != nil {
		return nil, err
	}
	return mids, nil
}

// LastPrice returns the mid price of coin.
func (c *Client) LastPrice(ctx context.Context, symbol string) (domain.Quote, error) {
	mids, err := c.mids(ctx, "mids")
	if err != nil {
		return domain.Quote{}, err
	}
	raw, ok := mids[symbol]
	if !ok {
		return domain.Quote{}, domain.NewVenueError(domain.ErrorKindUnknown, venueName, "mids", fmt.Errorf("no mid for %q", symbol))
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return domain.Quote{}, domain.NewVenueError(domain.ErrorKindUnknown, venueName, "mids", fmt.Errorf("parse mid %q: %w", raw, err))
	}
	return domain.Quote{Venue: venueName, Symbol: symbol, Price: price, ObservedAt: c.now()}, nil
}

// SubmitMarketOrder emulates a market order with an IOC limit priced
// through the mid by the configured slippage.
func (c *Client) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	const op = "market_order"
	info, err := c.asset(ctx, op, req.Symbol)
	if err != nil {
		return "", err
	}
	q, err := c.LastPrice(ctx, req.Symbol)
	if err != nil {
		return "", err
	}
	px := q.Price * (1 - c.slippage)
	if req.Side == domain.OrderSideBuy {
		px = q.Price * (1 + c.slippage)
	}
	return c.placeOrder(ctx, op, info, req.Side, req.Amount, formatPrice(px, info.szDecimals), "Ioc")
}

// SubmitLimitOrder places a resting GTC limit order.
func (c *Client) SubmitLimitOrder(ctx context.Context, req domain.LimitOrderRequest) (string, error) {
	const op = "limit_order"
	info, err := c.asset(ctx, op, req.Symbol)
	if err != nil {
		return "", err
	}
	px, _ := req.Price.Float64()
	return c.placeOrder(ctx, op, info, req.Side, req.Amount, formatPrice(px, info.szDecimals), "Gtc")
}

func (c *Client) placeOrder(ctx context.Context, op string, info assetInfo, side domain.OrderSide, amount decimal.Decimal, px, tif string) (string, error) {
	size, err := formatSize(amount, info.szDecimals)
	if err != nil {
		return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, err)
	}
	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:     info.index,
			IsBuy:     side == domain.OrderSideBuy,
			Price:     px,
			Size:      size,
			OrderType: orderTypeWire{Limit: limitTIF{TIF: tif}},
		}},
		Grouping: "na",
	}
	raw, err := c.exchange(ctx, op, action)
	if err != nil {
		return "", err
	}
	st, err := firstStatus(raw)
	if err != nil {
		return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, err)
	}
	switch {
	case st.Error != "":
		return "", domain.NewVenueError(classifyMessage(st.Error), venueName, op, errors.New(st.Error))
	case st.Filled != nil:
		oid := strconv.FormatUint(st.Filled.OID, 10)
		if tif == "Ioc" {
			// The unfilled rest of an IOC order is cancelled by the venue.
			total, err := decimal.NewFromString(st.Filled.TotalSz)
			if err != nil {
				return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("order %s: parse totalSz %q: %w", oid, st.Filled.TotalSz, err))
			}
			if total.LessThan(amount) {
				return "", &domain.PartialFillError{Venue: venueName, OrderID: oid, Requested: amount, Filled: total}
			}
		}
		return oid, nil
	case st.Resting != nil && tif != "Ioc":
		return strconv.FormatUint(st.Resting.OID, 10), nil
	default:
		return "", domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, errors.New("order did not fill"))
	}
}

func firstStatus(raw json.RawMessage) (orderStatus, error) {
	var resp orderResponseData
	if err := json.Unmarshal(raw, &resp); err != nil {
		return orderStatus{}, fmt.Errorf("decode order response: %w", err)
	}
	if len(resp.Data.Statuses) == 0 {
		return orderStatus{}, errors.New("order response has no status")
	}
	first := resp.Data.Statuses[0]
	// Some statuses are bare strings such as "success".
	var s string
	if json.Unmarshal(first, &s) == nil {
		return orderStatus{}, fmt.Errorf("unexpected order status %q", s)
	}
	var st orderStatus
	if err := json.Unmarshal(first, &st); err != nil {
		return orderStatus{}, fmt.Errorf("decode order status: %w", err)
	}
	return st, nil
}

// CancelOrder cancels a resting order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID, symbol string) error {
	const op = "cancel"
	oid, err := strconv.ParseUint(orderID, 10, 64)
	if err != nil {
		return domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("order id %q: %w", orderID, err))
	}
	info, err := c.asset(ctx, op, symbol)
	if err != nil {
		return err
	}
	raw, err := c.exchange(ctx, op, cancelAction{
		Type:    "cancel",
		Cancels: []cancelWire{{Asset: info.index, OrderID: oid}},
	})
	if err != nil {
		return err
	}
	var resp orderResponseData
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("decode cancel response: %w", err))
	}
	for _, s := range resp.Data.Statuses {
		var st orderStatus
		if json.Unmarshal(s, &st) == nil && st.Error != "" {
			return domain.NewVenueError(classifyMessage(st.Error), venueName, op, errors.New(st.Error))
		}
	}
	return nil
}

// FindFill looks for fills of the account matching req at or after since.
// An order that filled only in part is reported as a *domain.PartialFillError.
func (c *Client) FindFill(ctx context.Context, req domain.OrderRequest, since time.Time) (string, bool, error) {
	var fills []userFill
	err := c.info(ctx, "fills", map[string]any{
		"type":      "userFillsByTime",
		"user":      c.account,
		"startTime": since.Add(-time.Second).UnixMilli(),
	}, &fills)
	if err != nil {
		return "", false, err
	}

	want := "A"
	if req.Side == domain.OrderSideBuy {
		want = "B"
	}
	filled := map[uint64]decimal.Decimal{}
	for _, f := range fills {
		if f.Coin != req.Symbol || f.Side != want {
			continue
		}
		sz, err := decimal.NewFromString(f.Size)
		if err != nil {
			continue
		}
		filled[f.OID] = filled[f.OID].Add(sz)
	}
	var partial *domain.PartialFillError
	for oid, sz := range filled {
		switch {
		case sz.Equal(req.Amount):
			return strconv.FormatUint(oid, 10), true, nil
		case sz.LessThan(req.Amount) && partial == nil:
			partial = &domain.PartialFillError{Venue: venueName, OrderID: strconv.FormatUint(oid, 10), Requested: req.Amount, Filled: sz}
		}
	}
	if partial != nil {
		return "", false, partial
	}
	return "", false, nil
}

// Balances returns the USDC margin account value.
func (c *Client) Balances(ctx context.Context) ([]domain.Balance, error) {
	var st clearinghouseState
	if err := c.info(ctx, "balances", map[string]any{"type": "clearinghouseState", "user": c.account}, &st); err != nil {
		return nil, err
	}
	return []domain.Balance{{
		Asset: "USDC",
		Total: parseDecimal(st.MarginSummary.AccountValue),
		Free:  parseDecimal(st.Withdrawable),
	}}, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
