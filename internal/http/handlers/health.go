package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/softglow/ambientd/internal/jobs"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	registry  *jobs.Registry
	ffmpegOK  func(ctx context.Context) bool
}

// NewHealthHandler creates a health handler. ffmpegOK reports whether the
// ffmpeg binary is usable.
func NewHealthHandler(version string, registry *jobs.Registry, ffmpegOK func(ctx context.Context) bool) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		registry:  registry,
		ffmpegOK:  ffmpegOK,
	}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	Version       string  `json:"version"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	FFmpeg        string  `json:"ffmpeg"`
	ActiveJobs    int     `json:"active_jobs"`

	CPUCores  int     `json:"cpu_cores"`
	Load1Min  float64 `json:"load_1min"`
	MemoryPct float64 `json:"memory_used_percent"`
}

// HealthInput is the (empty) input for the health check.
type HealthInput struct{}

// HealthOutput wraps the health check payload.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns service health including encoder availability and system load",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		FFmpeg:        "ok",
		ActiveJobs:    h.registry.Len(),
		CPUCores:      runtime.NumCPU(),
	}

	if h.ffmpegOK != nil && !h.ffmpegOK(ctx) {
		// Still serves cached derivatives, but cannot transcode.
		resp.Status = "degraded"
		resp.FFmpeg = "unavailable"
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil && loadAvg != nil {
		resp.Load1Min = loadAvg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		resp.MemoryPct = vm.UsedPercent
	}

	return &HealthOutput{Body: resp}, nil
}
