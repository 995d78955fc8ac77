package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.PriceCache = (*PriceCache)(nil)

// PriceCache stores the latest quote per venue symbol as a hash with
// "price" and "ts" (unix nanoseconds) fields.
type PriceCache struct {
	c   *Client
	ttl time.Duration
}

// NewPriceCache creates a cache whose entries expire after ttl. A zero ttl
// keeps entries until overwritten.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{c: c, ttl: ttl}
}

func (pc *PriceCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := pc.c.key("quote", q.Venue, q.Symbol)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": strconv.FormatFloat(q.Price, 'f', -1, 64),
		"ts":    strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.Venue, q.Symbol, err)
	}
	return nil
}

// GetQuote returns domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, venue, symbol string) (domain.Quote, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("quote", venue, symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, symbol, err)
	}
	priceStr, ok := vals["price"]
	tsStr, ok2 := vals["ts"]
	if !ok || !ok2 {
		return domain.Quote{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse price %s/%s: %w", venue, symbol, err)
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s/%s: %w", venue, symbol, err)
	}
	return domain.Quote{Venue: venue, Symbol: symbol, Price: price, ObservedAt: time.Unix(0, ts)}, nil
}
