package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Resetter clears a stuck position. Implemented by *strategy.Engine.
type Resetter interface {
	Reset(ctx context.Context, operator string) (domain.Position, error)
}

// PositionHandler serves the position record and the operator reset.
type PositionHandler struct {
	store  domain.StateStore
	reset  Resetter
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler. reset may be nil, which
// disables the reset endpoint.
func NewPositionHandler(store domain.StateStore, reset Resetter, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{store: store, reset: reset, logger: logger.With(slog.String("handler", "position"))}
}

type positionResponse struct {
	Position    domain.Position `json:"position"`
	Stuck       bool            `json:"stuck"`
	HeldSeconds int64           `json:"held_seconds,omitempty"`
	NeedsManual bool            `json:"needs_manual_intervention"`
}

// GetPosition returns the persisted position.
// GET /api/position
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load position failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load position")
		return
	}
	resp := positionResponse{Position: pos, Stuck: pos.IsStuck(), NeedsManual: pos.IsStuck()}
	if pos.IsOpen() {
		resp.HeldSeconds = int64(pos.HeldFor(timeNow()).Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	Confirm  bool   `json:"confirm"`
	Operator string `json:"operator"`
}

// ResetPosition clears a stuck position. The body must carry
// {"confirm": true}.
// POST /api/position/reset
func (h *PositionHandler) ResetPosition(w http.ResponseWriter, r *http.Request) {
	if h.reset == nil {
		writeError(w, http.StatusServiceUnavailable, "reset is only available in trade mode")
		return
	}
	var req resetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, `reset requires {"confirm": true}`)
		return
	}
	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		operator = "api"
	}

	pos, err := h.reset.Reset(r.Context(), operator)
	switch {
	case errors.Is(err, domain.ErrNotStuck):
		writeError(w, http.StatusConflict, "position is not stuck")
		return
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "a cycle is running, retry shortly")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "reset failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	h.logger.WarnContext(r.Context(), "position reset", slog.String("operator", operator))
	writeJSON(w, http.StatusOK, positionResponse{Position: pos})
}
