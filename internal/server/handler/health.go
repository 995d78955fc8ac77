package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

// CycleReporter exposes the most recent decision cycle. Implemented by
// *strategy.Engine.
type CycleReporter interface {
	LastReport() strategy.CycleReport
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	mode      string
	trigger   string
	dryRun    bool
	startedAt time.Time
	cycles    CycleReporter
}

// NewHealthHandler creates a HealthHandler. cycles may be nil outside trade mode.
func NewHealthHandler(mode, trigger string, dryRun bool, cycles CycleReporter) *HealthHandler {
	return &HealthHandler{mode: mode, trigger: trigger, dryRun: dryRun, startedAt: time.Now().UTC(), cycles: cycles}
}

// HealthCheck reports the run mode and the age of the last cycle.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"trigger":        h.trigger,
		"dry_run":        h.dryRun,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.cycles != nil {
		if last := h.cycles.LastReport(); !last.StartedAt.IsZero() {
			body["last_cycle_at"] = last.StartedAt.UTC().Format(time.RFC3339)
			body["last_cycle_skipped"] = last.Skipped
			body["position_status"] = last.Position.Status
		}
	}
	writeJSON(w, http.StatusOK, body)
}
