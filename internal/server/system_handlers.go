package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/macrostress/internal/storage"
)

// SystemHandlers serves the liveness/readiness probes.
type SystemHandlers struct {
	log       zerolog.Logger
	db        *storage.DB
	startedAt time.Time
}

// NewSystemHandlers constructs a SystemHandlers.
func NewSystemHandlers(log zerolog.Logger, db *storage.DB, startedAt time.Time) *SystemHandlers {
	return &SystemHandlers{log: log.With().Str("component", "system_handlers").Logger(), db: db, startedAt: startedAt}
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	DBSizeMB      float64 `json:"db_size_mb"`
	DBWALSizeMB   float64 `json:"db_wal_size_mb"`
}

// HandleHealthz reports a process/system snapshot: uptime, CPU/RAM usage,
// and store size. Never fails the response on a stats-collection error;
// it degrades the affected field to zero and logs instead, since a
// monitoring endpoint that 500s because gopsutil hiccuped is worse than
// one that reports a stale zero.
func (h *SystemHandlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	resp := healthzResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPercent,
		MemPercent:    memPercent,
	}
	if stats, err := h.db.GetStats(); err != nil {
		h.log.Warn().Err(err).Msg("failed to collect database stats")
	} else {
		resp.DBSizeMB = float64(stats.SizeBytes) / 1024 / 1024
		resp.DBWALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleReadyz reports whether the store is reachable and passes an
// integrity check; used by orchestration systems to gate traffic.
func (h *SystemHandlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Warn().Err(err).Msg("readiness check failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// getSystemStats returns CPU and RAM usage percentages, using a short
// 100ms CPU sampling window so the probe stays fast under a scrape
// interval of a few seconds.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to get memory statistics")
		return valueOrZero(cpuPercent), 0
	}

	return valueOrZero(cpuPercent), memStat.UsedPercent
}

func valueOrZero(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}
