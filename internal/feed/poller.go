// Package feed reads last prices from both venues for a decision cycle.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/pkg/retry"
)

// Venue pairs a price source with the name and symbol it is read for.
type Venue struct {
	Name   string
	Symbol string
	Source domain.PriceSource
}

// Config controls staleness and backoff.
type Config struct {
	// MaxQuoteAge rejects quotes observed longer ago than this. Zero disables it.
	MaxQuoteAge time.Duration
	Retry       retry.Config
	// RequestsPerSecond caps price reads per venue when a limiter is set.
	RequestsPerSecond int
}

// Poller reads both venues concurrently. Rate limits and network errors are
// retried with backoff here and never reach the decision core.
type Poller struct {
	a, b    Venue
	cfg     Config
	cache   domain.PriceCache
	limiter domain.RateLimiter
	bus     domain.SignalBus
	now     func() time.Time
	logger  *slog.Logger
}

// NewPoller creates a Poller for venue A and venue B.
func NewPoller(a, b Venue, cfg Config, logger *slog.Logger) *Poller {
	return &Poller{
		a:      a,
		b:      b,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "price_poller")),
	}
}

// SetCache stores every quote read so other readers see the latest price.
func (p *Poller) SetCache(c domain.PriceCache) { p.cache = c }

// SetRateLimiter throttles reads per venue.
func (p *Poller) SetRateLimiter(l domain.RateLimiter) { p.limiter = l }

// SetBus publishes each snapshot on domain.ChannelPrices.
func (p *Poller) SetBus(b domain.SignalBus) { p.bus = b }

// Snapshot returns fresh quotes for both venues or an error if either is
// missing or stale.
func (p *Poller) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := p.read(gctx, p.a)
		snap.A = q
		return err
	})
	g.Go(func() error {
		q, err := p.read(gctx, p.b)
		snap.B = q
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}

	if p.bus != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := p.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
				p.logger.Debug("publish snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
	return snap, nil
}

func (p *Poller) read(ctx context.Context, v Venue) (domain.Quote, error) {
	if p.limiter != nil && p.cfg.RequestsPerSecond > 0 {
		if err := p.limiter.Wait(ctx, "feed:"+v.Name); err != nil {
			return domain.Quote{}, fmt.Errorf("feed: %s: rate limiter: %w", v.Name, err)
		}
	}

	q, err := retry.Do(ctx, p.cfg.Retry, transient, func(attempt int, err error, wait time.Duration) {
		p.logger.Warn("price read failed, backing off",
			slog.String("venue", v.Name),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}, func() (domain.Quote, error) {
		return v.Source.LastPrice(ctx, v.Symbol)
	})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("feed: %s %s: %w", v.Name, v.Symbol, err)
	}

	if q.Venue == "" {
		q.Venue = v.Name
	}
	if q.Symbol == "" {
		q.Symbol = v.Symbol
	}
	if q.ObservedAt.IsZero() {
		q.ObservedAt = p.now()
	}
	if q.Price <= 0 {
		return domain.Quote{}, fmt.Errorf("feed: %s %s: non-positive price %v: %w", v.Name, v.Symbol, q.Price, domain.ErrStalePrice)
	}
	if p.cfg.MaxQuoteAge > 0 {
		if age := p.now().Sub(q.ObservedAt); age > p.cfg.MaxQuoteAge {
			return domain.Quote{}, fmt.Errorf("feed: %s %s: quote is %s old: %w", v.Name, v.Symbol, age.Round(time.Millisecond), domain.ErrStalePrice)
		}
	}

	if p.cache != nil {
		if err := p.cache.SetQuote(ctx, q); err != nil {
			p.logger.Debug("cache quote failed", slog.String("venue", v.Name), slog.String("error", err.Error()))
		}
	}
	return q, nil
}

func transient(err error) bool {
	switch domain.KindOf(err) {
	case domain.ErrorKindRateLimited, domain.ErrorKindNetwork:
		return true
	}
	return false
}
