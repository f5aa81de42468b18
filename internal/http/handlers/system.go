package handlers

import (
	"context"
	"os"
	"os/exec"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/config"
)

// SystemHandler handles system information endpoints: external tool
// availability and worker process stats.
type SystemHandler struct {
	cfg *config.Config
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// SystemInput is the input for the system info endpoint.
type SystemInput struct{}

// SystemOutput is the output for the system info endpoint.
type SystemOutput struct {
	Body SystemResponse
}

// SystemResponse represents the system info response.
type SystemResponse struct {
	Tools   []ToolStatus      `json:"tools" doc:"External tool availability"`
	Process ProcessMemoryInfo `json:"process" doc:"Worker process memory"`
}

// ToolStatus reports whether one external binary resolves.
type ToolStatus struct {
	Name      string `json:"name" doc:"Tool name"`
	Path      string `json:"path,omitempty" doc:"Resolved binary path"`
	Available bool   `json:"available" doc:"Whether the binary resolves"`
}

// ProcessMemoryInfo holds worker process memory information.
type ProcessMemoryInfo struct {
	MainProcessMB     float64 `json:"main_process_mb" doc:"Resident memory of the worker process in MB"`
	ChildProcessCount int     `json:"child_process_count" doc:"Number of child processes (renders, transcodes)"`
	ChildProcessesMB  float64 `json:"child_processes_mb" doc:"Resident memory of child processes in MB"`
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemInfo",
		Method:      "GET",
		Path:        "/system",
		Summary:     "Get system information",
		Description: "Returns external tool availability and worker process statistics",
		Tags:        []string{"System"},
	}, h.GetSystemInfo)
}

// GetSystemInfo returns tool availability and process stats.
func (h *SystemHandler) GetSystemInfo(ctx context.Context, input *SystemInput) (*SystemOutput, error) {
	resp := SystemResponse{
		Tools: []ToolStatus{
			toolStatus("ffmpeg", h.cfg.FFmpeg.BinaryPath),
			toolStatus("ffprobe", h.cfg.FFmpeg.ProbePath),
			toolStatus("yt-dlp", h.cfg.FFmpeg.YtdlpPath),
			toolStatus("render-engine", h.cfg.Render.EngineBinary),
		},
		Process: processMemory(),
	}

	return &SystemOutput{Body: resp}, nil
}

// toolStatus resolves a configured binary, falling back to $PATH lookup by
// name when no explicit path is set.
func toolStatus(name, configured string) ToolStatus {
	candidate := configured
	if candidate == "" {
		candidate = name
	}

	path, err := exec.LookPath(candidate)
	if err != nil {
		return ToolStatus{Name: name, Available: false}
	}
	return ToolStatus{Name: name, Path: path, Available: true}
}

// processMemory returns memory stats for the worker and its children.
func processMemory() ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				info.ChildProcessesMB += float64(childMem.RSS) / 1024 / 1024
			}
		}
	}

	return info
}
