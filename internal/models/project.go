package models

import (
	"fmt"

	"gorm.io/gorm"
)

// ProjectKind selects which pipeline a project runs through.
type ProjectKind string

const (
	// KindRender is a single-artifact composition render.
	KindRender ProjectKind = "render"
	// KindShorts is a staged multi-clip pipeline driven from one source video.
	KindShorts ProjectKind = "shorts"
)

// ProjectStatus represents the lifecycle state of a project record.
type ProjectStatus string

const (
	// StatusDraft indicates the project was created but never queued.
	StatusDraft ProjectStatus = "draft"
	// StatusQueued indicates a run was requested but has not started.
	StatusQueued ProjectStatus = "queued"
	// StatusProcessing indicates a pipeline run currently owns the record.
	StatusProcessing ProjectStatus = "processing"
	// StatusDone indicates the last run completed successfully.
	StatusDone ProjectStatus = "done"
	// StatusError indicates the last run failed.
	StatusError ProjectStatus = "error"
)

// WordTiming is a single caption word with its time window in seconds.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Scene describes one visual scene consumed by the render composition.
type Scene struct {
	Index       int     `json:"index"`
	Prompt      string  `json:"prompt,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// ProjectInputs is the immutable-during-a-run snapshot of generation
// parameters. Render jobs use Script/AudioURL/WordTimings/Scenes; shorts
// jobs use SourceURL plus the clip settings.
type ProjectInputs struct {
	Script      string       `json:"script,omitempty"`
	AudioURL    string       `json:"audio_url,omitempty"`
	WordTimings []WordTiming `json:"word_timings,omitempty"`
	Scenes      []Scene      `json:"scenes,omitempty"`
	// CompositionID overrides the configured default composition.
	CompositionID string `json:"composition_id,omitempty"`

	SourceURL   string `json:"source_url,omitempty"`
	SourceTitle string `json:"source_title,omitempty"`
	// MaxClips is the number of clips to extract (shorts only, default 5).
	MaxClips int `json:"max_clips,omitempty"`
	// ClipLength is a range hint: "15-30", "30-60" or "15-60".
	ClipLength string `json:"clip_length,omitempty"`
	// CaptionStyle is one of "karaoke", "block", "centered", "none".
	CaptionStyle string `json:"caption_style,omitempty"`
	// CropMode is one of "face-track", "center", "dynamic".
	CropMode string `json:"crop_mode,omitempty"`
	// GenerateThumbnails defaults to true when nil.
	GenerateThumbnails *bool `json:"generate_thumbnails,omitempty"`
}

// ThumbnailsEnabled resolves the optional GenerateThumbnails flag.
func (in ProjectInputs) ThumbnailsEnabled() bool {
	return in.GenerateThumbnails == nil || *in.GenerateThumbnails
}

// ClipStatus is the status of a single sub-artifact within a staged run.
type ClipStatus string

const (
	// ClipPending indicates the clip has not been processed yet.
	ClipPending ClipStatus = "pending"
	// ClipProcessing indicates the clip is being cut/captioned/uploaded.
	ClipProcessing ClipStatus = "processing"
	// ClipDone indicates the clip finished and its URLs are populated.
	ClipDone ClipStatus = "done"
	// ClipError indicates this clip failed; siblings are unaffected.
	ClipError ClipStatus = "error"
)

// Clip is one sub-artifact of a staged pipeline run.
type Clip struct {
	ID           string     `json:"id"`
	Index        int        `json:"index"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	StartTime    float64    `json:"start_time"`
	EndTime      float64    `json:"end_time"`
	Duration     float64    `json:"duration"`
	HookScore    int        `json:"hook_score"`
	Reason       string     `json:"reason,omitempty"`
	VideoURL     string     `json:"video_url,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Status       ClipStatus `json:"status"`
}

// Project is the persisted record a pipeline run operates on. It is the
// single source of truth for status; external clients poll it.
type Project struct {
	BaseModel

	// OwnerID scopes the record; every guarded update must match it.
	OwnerID string `gorm:"not null;size:64;index" json:"owner_id"`

	// Name is a human-readable label for display purposes.
	Name string `gorm:"size:255" json:"name,omitempty"`

	// Kind selects the pipeline (render or shorts).
	Kind ProjectKind `gorm:"not null;size:20;index" json:"kind"`

	// Status is the lifecycle state of the record.
	Status ProjectStatus `gorm:"not null;default:'draft';size:20;index" json:"status"`

	// Attempt increments exactly once per run start and namespaces all
	// artifact paths so retries never collide with prior outputs.
	Attempt int `gorm:"default:0" json:"attempt"`

	// Inputs is the generation parameter snapshot consumed by a run.
	Inputs ProjectInputs `gorm:"type:text;serializer:json" json:"inputs"`

	// ErrorMessage holds the last failure reason; cleared on each new attempt.
	ErrorMessage string `gorm:"size:4096" json:"error_message,omitempty"`

	// OutputURL is the public artifact location, set only on done. A failed
	// re-render never clears it.
	OutputURL string `gorm:"size:1024" json:"output_url,omitempty"`

	ProcessingStartedAt *Time `json:"processing_started_at,omitempty"`
	CompletedAt         *Time `json:"completed_at,omitempty"`

	// ProgressPct is 0-100 and monotonically non-decreasing within one attempt.
	ProgressPct int `gorm:"default:0" json:"progress_pct"`

	// ProgressStage is a free-form label naming the current stage.
	ProgressStage string `gorm:"size:64" json:"progress_stage,omitempty"`

	// Clips holds the staged run's sub-artifacts, append-only per attempt.
	Clips []Clip `gorm:"type:text;serializer:json" json:"clips,omitempty"`

	// SourceDurationSec is the probed source duration (0 = unknown).
	SourceDurationSec int `json:"source_duration_sec,omitempty"`

	// Transcript is the stored transcription text, truncated for storage.
	Transcript string `gorm:"type:text" json:"transcript,omitempty"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// IsProcessing returns true if a run currently owns this record.
func (p *Project) IsProcessing() bool {
	return p.Status == StatusProcessing
}

// ArtifactPrefix is the attempt-namespaced object key prefix for this run's
// outputs: {owner}/{project}/attempt-{n}.
func (p *Project) ArtifactPrefix() string {
	return fmt.Sprintf("%s/%s/attempt-%d", p.OwnerID, p.ID.String(), p.Attempt)
}

// Validate performs basic validation on the project.
func (p *Project) Validate() error {
	if p.Kind == "" {
		return ErrProjectKindRequired
	}
	if p.OwnerID == "" {
		return ErrOwnerRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the project and generates a ULID.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	return p.Validate()
}
