package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	portfolioDB *database.DB
	cacheDB     *database.DB
	sched       *scheduler.Scheduler
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, portfolioDB, cacheDB *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		portfolioDB: portfolioDB,
		cacheDB:     cacheDB,
		sched:       sched,
	}
}

// SystemHealthResponse represents the system health response
type SystemHealthResponse struct {
	Status      string          `json:"status"` // "healthy" or "degraded"
	UptimeHours float64         `json:"uptime_hours"`
	CPUPercent  float64         `json:"cpu_percent"`
	RAMPercent  float64         `json:"ram_percent"`
	Databases   []DatabaseState `json:"databases"`
	CheckedAt   string          `json:"checked_at"`
}

// DatabaseState reports one database's availability
type DatabaseState struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// JobsStatusResponse represents the scheduled job listing
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
}

// JobInfo represents information about a single job
type JobInfo struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
}

// HandleSystemHealth returns process and database health
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	response := SystemHealthResponse{
		Status:      "healthy",
		UptimeHours: time.Since(h.startupTime).Hours(),
		CPUPercent:  cpuPercent,
		RAMPercent:  ramPercent,
		CheckedAt:   time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, db := range []*database.DB{h.portfolioDB, h.cacheDB} {
		if db == nil {
			continue
		}
		state := DatabaseState{Name: db.Name(), Healthy: true}
		if err := db.HealthCheck(ctx); err != nil {
			state.Healthy = false
			state.Error = err.Error()
			response.Status = "degraded"
		}
		response.Databases = append(response.Databases, state)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system health response")
	}
}

// HandleJobsStatus returns the registered scheduled jobs
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []JobInfo{}
	if h.sched != nil {
		for _, job := range h.sched.Jobs() {
			jobs = append(jobs, JobInfo{Name: job.Name, Schedule: job.Schedule})
		}
	}

	response := JobsStatusResponse{
		TotalJobs: len(jobs),
		Jobs:      jobs,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode jobs status response")
	}
}

// getSystemStats calculates CPU and RAM usage percentages.
// A 100ms sampling interval keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
