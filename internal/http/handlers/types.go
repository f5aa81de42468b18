// Package handlers provides HTTP API handlers for the autovideo worker.
package handlers

import (
	"time"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

// ClipResponse represents one staged-pipeline clip in API responses.
type ClipResponse struct {
	ID           string  `json:"id" doc:"Clip identifier within the run"`
	Index        int     `json:"index" doc:"Clip position within the run"`
	Title        string  `json:"title,omitempty" doc:"Suggested clip title"`
	Status       string  `json:"status" doc:"Clip status: pending, processing, done, error"`
	StartTime    float64 `json:"start_time" doc:"Clip start offset in the source (seconds)"`
	EndTime      float64 `json:"end_time" doc:"Clip end offset in the source (seconds)"`
	Duration     float64 `json:"duration" doc:"Clip length in seconds"`
	HookScore    int     `json:"hook_score,omitempty" doc:"Model-assigned hook strength (0-100)"`
	VideoURL     string  `json:"video_url,omitempty" doc:"Public URL of the rendered clip"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty" doc:"Public URL of the clip thumbnail"`
}

// ProjectResponse represents a project record in API responses.
type ProjectResponse struct {
	ID                string         `json:"id" doc:"Project ID (ULID)"`
	OwnerID           string         `json:"owner_id" doc:"Owning user identifier"`
	Name              string         `json:"name,omitempty" doc:"Display name"`
	Kind              string         `json:"kind" doc:"Pipeline kind: render or shorts"`
	Status            string         `json:"status" doc:"Lifecycle status"`
	Attempt           int            `json:"attempt" doc:"Run counter, incremented per execution"`
	ProgressPct       int            `json:"progress_pct" doc:"Staged progress percentage"`
	ProgressStage     string         `json:"progress_stage,omitempty" doc:"Current pipeline stage"`
	ErrorMessage      string         `json:"error_message,omitempty" doc:"Failure detail when status is error"`
	OutputURL         string         `json:"output_url,omitempty" doc:"Public URL of the final artifact"`
	SourceDurationSec int            `json:"source_duration_sec,omitempty" doc:"Probed source duration in seconds"`
	Clips             []ClipResponse `json:"clips,omitempty" doc:"Per-clip statuses for staged runs"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	ProcessingStarted *time.Time     `json:"processing_started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
}

// ProjectFromModel converts a project model to its API representation.
func ProjectFromModel(p *models.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:                p.ID.String(),
		OwnerID:           p.OwnerID,
		Name:              p.Name,
		Kind:              string(p.Kind),
		Status:            string(p.Status),
		Attempt:           p.Attempt,
		ProgressPct:       p.ProgressPct,
		ProgressStage:     p.ProgressStage,
		ErrorMessage:      p.ErrorMessage,
		OutputURL:         p.OutputURL,
		SourceDurationSec: p.SourceDurationSec,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}

	resp.ProcessingStarted = p.ProcessingStartedAt
	resp.CompletedAt = p.CompletedAt

	if len(p.Clips) > 0 {
		resp.Clips = make([]ClipResponse, 0, len(p.Clips))
		for _, c := range p.Clips {
			resp.Clips = append(resp.Clips, ClipResponse{
				ID:           c.ID,
				Index:        c.Index,
				Title:        c.Title,
				Status:       string(c.Status),
				StartTime:    c.StartTime,
				EndTime:      c.EndTime,
				Duration:     c.Duration,
				HookScore:    c.HookScore,
				VideoURL:     c.VideoURL,
				ThumbnailURL: c.ThumbnailURL,
			})
		}
	}

	return resp
}
