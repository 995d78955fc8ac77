package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	// preflightDiscount places the preflight order at this fraction of the last price
	// so it cannot fill.
	preflightDiscount = 0.2
	preflightHold     = 2 * time.Second
)

type preflightStatus string

const (
	preflightVerified    preflightStatus = "verified"
	preflightFundsOnly   preflightStatus = "connectivity_verified"
	preflightDenied      preflightStatus = "permission_denied"
	preflightAuthFailed  preflightStatus = "auth_failed"
	preflightUnsupported preflightStatus = "unsupported"
	preflightFailed      preflightStatus = "failed"
)

type preflightTarget struct {
	symbol string
	venue  domain.VenueAdapter
	prices domain.PriceSource
}

type preflightResult struct {
	Venue  string
	Status preflightStatus
	Detail string
}

// preflightVenue places a resting buy far below market and cancels it after
// hold. Insufficient funds still proves the key can reach the order
// endpoint, so it counts as connectivity verified.
func preflightVenue(ctx context.Context, t preflightTarget, amount decimal.Decimal, hold time.Duration) preflightResult {
	res := preflightResult{Venue: t.venue.Name()}

	placer, ok := t.venue.(domain.LimitOrderPlacer)
	if !ok {
		res.Status = preflightUnsupported
		res.Detail = "venue does not accept limit orders"
		return res
	}

	q, err := t.prices.LastPrice(ctx, t.symbol)
	if err != nil {
		res.Status = preflightFailed
		res.Detail = "price read: " + err.Error()
		return res
	}
	price := preflightPrice(q.Price)
	if !price.IsPositive() {
		res.Status = preflightFailed
		res.Detail = fmt.Sprintf("unusable last price %v", q.Price)
		return res
	}

	id, err := placer.SubmitLimitOrder(ctx, domain.LimitOrderRequest{
		Symbol: t.symbol,
		Side:   domain.OrderSideBuy,
		Amount: amount,
		Price:  price,
	})
	if err != nil {
		res.Status, res.Detail = classifyPreflightError(err)
		return res
	}

	select {
	case <-time.After(hold):
	case <-ctx.Done():
	}

	// Cancel even when ctx is done: the order must not be left resting.
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := t.venue.CancelOrder(cancelCtx, id, t.symbol); err != nil {
		res.Status = preflightFailed
		res.Detail = fmt.Sprintf("order %s placed at %s but cancel failed, cancel it by hand: %v", id, price, err)
		return res
	}
	res.Status = preflightVerified
	res.Detail = fmt.Sprintf("order %s placed at %s and cancelled", id, price)
	return res
}

func classifyPreflightError(err error) (preflightStatus, string) {
	switch domain.KindOf(err) {
	case domain.ErrorKindInsufficientFunds:
		return preflightFundsOnly, "order rejected for insufficient funds; the key can trade"
	case domain.ErrorKindPermission:
		return preflightDenied, "enable trading permission on the API key: " + err.Error()
	case domain.ErrorKindAuth:
		return preflightAuthFailed, "check the key and secret: " + err.Error()
	default:
		return preflightFailed, err.Error()
	}
}

// preflightPrice discounts last to preflightDiscount and keeps five significant
// figures.
func preflightPrice(last float64) decimal.Decimal {
	px := last * preflightDiscount
	if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
		return decimal.Zero
	}
	intDigits := int(math.Floor(math.Log10(px))) + 1
	places := max(5-intDigits, 0)
	return decimal.NewFromFloat(px).Round(int32(places))
}

func findAsset(balances []domain.Balance, asset string) (domain.Balance, bool) {
	for _, b := range balances {
		if strings.EqualFold(b.Asset, asset) {
			return b, true
		}
	}
	return domain.Balance{Asset: asset, Total: decimal.Zero, Free: decimal.Zero}, false
}
