package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var timeNow = time.Now

// AttemptHandler lists recent trade attempts.
type AttemptHandler struct {
	attempts domain.AttemptStore
	logger   *slog.Logger
}

func NewAttemptHandler(attempts domain.AttemptStore, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{attempts: attempts, logger: logger.With(slog.String("handler", "attempts"))}
}

type listAttemptsResponse struct {
	Attempts []domain.TradeAttempt `json:"attempts"`
}

// ListAttempts returns the newest attempts first.
// GET /api/attempts?limit=50
func (h *AttemptHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	list, err := h.attempts.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list attempts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if list == nil {
		list = []domain.TradeAttempt{}
	}
	writeJSON(w, http.StatusOK, listAttemptsResponse{Attempts: list})
}
