package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Pinger checks record store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        Pinger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status" doc:"Overall service status"`
	Timestamp     string            `json:"timestamp" doc:"Current time (RFC3339)"`
	Version       string            `json:"version" doc:"Build version"`
	Uptime        string            `json:"uptime" doc:"Time since process start"`
	UptimeSeconds float64           `json:"uptime_seconds" doc:"Uptime in seconds"`
	CPUInfo       CPUInfo           `json:"cpu" doc:"CPU load information"`
	Memory        MemoryInfo        `json:"memory" doc:"Memory usage information"`
	Checks        map[string]string `json:"checks" doc:"Per-component status"`
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores" doc:"Number of CPU cores"`
	Load1Min           float64 `json:"load_1min" doc:"1-minute load average"`
	Load5Min           float64 `json:"load_5min" doc:"5-minute load average"`
	Load15Min          float64 `json:"load_15min" doc:"15-minute load average"`
	LoadPercentage1Min float64 `json:"load_percentage_1min" doc:"1-minute load as a percentage of cores"`
}

// MemoryInfo holds memory usage information.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_mb" doc:"Total system memory in MB"`
	UsedMemoryMB      float64 `json:"used_mb" doc:"Used system memory in MB"`
	AvailableMemoryMB float64 `json:"available_mb" doc:"Available system memory in MB"`
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	status := "healthy"
	checks := map[string]string{}
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status = "degraded"
			checks["database"] = "error"
		} else {
			checks["database"] = "ok"
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(),
			Memory:        h.getMemoryInfo(),
			Checks:        checks,
		},
	}, nil
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()

	info := CPUInfo{
		Cores: cores,
	}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15

		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	return info
}
