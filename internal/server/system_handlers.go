package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/advisor/internal/database"
	"github.com/aristath/advisor/internal/di"
	"github.com/aristath/advisor/internal/scheduler"
)

// SystemHandlers serves host status and manual job triggers
type SystemHandlers struct {
	container *di.Container
	dataDir   string
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(container *di.Container, dataDir string, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		container: container,
		dataDir:   dataDir,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HostStats is the gopsutil view of the machine
type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	DiskFreeMB    float64 `json:"disk_free_mb"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	Clients       int                   `json:"clients"`
	ScheduledJobs int                   `json:"scheduled_jobs"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
	Goroutines    int                   `json:"goroutines"`
	Host          HostStats             `json:"host"`
	Databases     []*database.Stats     `json:"databases"`
	LastReview    *reviewSummary        `json:"last_review,omitempty"`
}

type reviewSummary struct {
	Clients    int     `json:"clients"`
	Triggered  int     `json:"triggered"`
	Planned    int     `json:"planned"`
	Conflicts  int     `json:"conflicts"`
	Errors     int     `json:"errors"`
	DurationMS float64 `json:"duration_ms"`
}

func toReviewSummary(s scheduler.ReviewSummary) *reviewSummary {
	return &reviewSummary{
		Clients:    s.Clients,
		Triggered:  s.Triggered,
		Planned:    s.Planned,
		Conflicts:  s.Conflicts,
		Errors:     s.Errors,
		DurationMS: float64(s.Duration) / float64(time.Millisecond),
	}
}

// HandleSystemStatus returns host, database and scheduler status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Clients:       h.container.Registry.Len(),
		Goroutines:    runtime.NumGoroutine(),
		Host:          h.hostStats(),
		Databases:     []*database.Stats{},
	}
	if h.container.Scheduler != nil {
		resp.ScheduledJobs = h.container.Scheduler.Entries()
		resp.Jobs = h.container.Scheduler.Jobs()
	}

	for _, db := range h.container.Databases() {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("db", db.Name()).Msg("Failed to read database stats")
			resp.Status = "degraded"
			continue
		}
		resp.Databases = append(resp.Databases, stats)
	}

	if jobs := h.container.Jobs; jobs != nil && jobs.DriftReview != nil {
		if last, ok := jobs.DriftReview.LastSummary(); ok {
			resp.LastReview = toReviewSummary(last)
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// hostStats samples CPU over a short window so the call stays responsive
func (h *SystemHandlers) hostStats() HostStats {
	var stats HostStats

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	if memStat, err := mem.VirtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		stats.MemoryPercent = memStat.UsedPercent
	}

	if h.dataDir != "" {
		if usage, err := disk.Usage(h.dataDir); err != nil {
			h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		} else {
			stats.DiskPercent = usage.UsedPercent
			stats.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		}
	}

	return stats
}

// HandleTriggerDriftReview runs the drift review for every client now
// POST /api/jobs/drift-review
func (h *SystemHandlers) HandleTriggerDriftReview(w http.ResponseWriter, r *http.Request) {
	jobs := h.container.Jobs
	if jobs == nil || jobs.DriftReview == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "drift review job not registered"})
		return
	}

	h.log.Info().Msg("Manual drift review triggered")
	summary, err := jobs.DriftReview.Review(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual drift review failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, toReviewSummary(summary))
}

// HandleLastDriftReview returns the summary of the most recent review run
// GET /api/jobs/drift-review/last
func (h *SystemHandlers) HandleLastDriftReview(w http.ResponseWriter, r *http.Request) {
	jobs := h.container.Jobs
	if jobs == nil || jobs.DriftReview == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no drift review has run"})
		return
	}
	last, ok := jobs.DriftReview.LastSummary()
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no drift review has run"})
		return
	}
	h.writeJSON(w, http.StatusOK, toReviewSummary(last))
}

// HandleTriggerAuditArchive uploads pending audit records now
// POST /api/jobs/audit-archive
func (h *SystemHandlers) HandleTriggerAuditArchive(w http.ResponseWriter, r *http.Request) {
	jobs := h.container.Jobs
	if jobs == nil || jobs.AuditArchive == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "audit archive is not configured"})
		return
	}

	h.log.Info().Msg("Manual audit archive triggered")
	if err := h.container.Scheduler.RunNow(jobs.AuditArchive); err != nil {
		h.log.Error().Err(err).Msg("Manual audit archive failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
