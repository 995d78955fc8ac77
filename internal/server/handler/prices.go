package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// SnapshotSource reads live quotes. Implemented by *feed.Poller.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// QuoteKey names one cached quote.
type QuoteKey struct {
	Venue  string
	Symbol string
}

// PriceHandler serves the latest quotes of both venues and their spread.
// Cached quotes are preferred; the live feed is read when the cache misses.
type PriceHandler struct {
	cache  domain.PriceCache
	a, b   QuoteKey
	live   SnapshotSource
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler. cache may be nil.
func NewPriceHandler(cache domain.PriceCache, a, b QuoteKey, live SnapshotSource, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{cache: cache, a: a, b: b, live: live, logger: logger.With(slog.String("handler", "prices"))}
}

type pricesResponse struct {
	domain.Snapshot
	SpreadPct float64 `json:"spread_pct"`
	Source    string  `json:"source"`
}

// GetPrices returns both quotes and the spread in percent of A.
// GET /api/prices
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if snap, ok := h.cached(ctx); ok {
		writeJSON(w, http.StatusOK, pricesResponse{Snapshot: snap, SpreadPct: snap.SpreadPct(), Source: "cache"})
		return
	}
	if h.live == nil {
		writeError(w, http.StatusServiceUnavailable, "prices unavailable")
		return
	}
	snap, err := h.live.Snapshot(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "live snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "prices unavailable")
		return
	}
	writeJSON(w, http.StatusOK, pricesResponse{Snapshot: snap, SpreadPct: snap.SpreadPct(), Source: "live"})
}

func (h *PriceHandler) cached(ctx context.Context) (domain.Snapshot, bool) {
	if h.cache == nil {
		return domain.Snapshot{}, false
	}
	qa, err := h.cache.GetQuote(ctx, h.a.Venue, h.a.Symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "price cache read failed", slog.String("error", err.Error()))
		}
		return domain.Snapshot{}, false
	}
	qb, err := h.cache.GetQuote(ctx, h.b.Venue, h.b.Symbol)
	if err != nil {
		return domain.Snapshot{}, false
	}
	snap := domain.Snapshot{A: qa, B: qb}
	return snap, snap.Valid()
}
