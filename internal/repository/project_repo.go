package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

// projectRepo implements ProjectRepository using GORM.
type projectRepo struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *gorm.DB) *projectRepo {
	return &projectRepo{db: db}
}

// Create creates a new project record.
func (r *projectRepo) Create(ctx context.Context, project *models.Project) error {
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("creating project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID.
func (r *projectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting project by ID: %w", err)
	}
	return &project, nil
}

// ClaimForProcessing atomically begins a new run via a conditional write:
// the update only applies while the record is not already processing, which
// closes the read-then-act race between near-simultaneous webhook calls.
func (r *projectRepo) ClaimForProcessing(ctx context.Context, id models.ULID) (*models.Project, error) {
	now := models.Now()
	res := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND status <> ?", id, models.StatusProcessing).
		Updates(map[string]any{
			"attempt":               gorm.Expr("attempt + 1"),
			"status":                models.StatusProcessing,
			"error_message":         "",
			"progress_pct":          0,
			"progress_stage":        "",
			"clips":                 nil,
			"processing_started_at": now,
			"completed_at":          nil,
			"updated_at":            now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claiming project: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrAlreadyProcessing
	}

	return r.GetByID(ctx, id)
}

// guardedUpdate applies a patch where both id and owner match.
func (r *projectRepo) guardedUpdate(ctx context.Context, id models.ULID, ownerID string, patch map[string]any) error {
	patch["updated_at"] = models.Now()
	res := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("updating project: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOwnerMismatch
	}
	return nil
}

// SetDone finalizes a successful run.
func (r *projectRepo) SetDone(ctx context.Context, id models.ULID, ownerID, outputURL string) error {
	patch := map[string]any{
		"status":         models.StatusDone,
		"error_message":  "",
		"progress_pct":   100,
		"progress_stage": "done",
		"completed_at":   models.Now(),
	}
	if outputURL != "" {
		patch["output_url"] = outputURL
	}
	return r.guardedUpdate(ctx, id, ownerID, patch)
}

// SetError records a fatal run failure, preserving any prior output URL.
func (r *projectRepo) SetError(ctx context.Context, id models.ULID, ownerID, message string) error {
	return r.guardedUpdate(ctx, id, ownerID, map[string]any{
		"status":         models.StatusError,
		"error_message":  message,
		"progress_stage": "error",
		"completed_at":   models.Now(),
	})
}

// SetProgress updates stage and percentage; the percentage never moves
// backwards within an attempt.
func (r *projectRepo) SetProgress(ctx context.Context, id models.ULID, ownerID string, pct int, stage string) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND owner_id = ? AND progress_pct <= ?", id, ownerID, pct).
		Updates(map[string]any{
			"progress_pct":   pct,
			"progress_stage": stage,
			"updated_at":     models.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating progress: %w", res.Error)
	}
	// Zero rows here means the stored percentage is already ahead; that is
	// not an error, the later write simply wins.
	return nil
}

// SetClips replaces the staged run's sub-artifact list. Uses a struct
// update so the JSON serializer on the clips column applies.
func (r *projectRepo) SetClips(ctx context.Context, id models.ULID, ownerID string, clips []models.Clip) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Select("clips", "updated_at").
		Updates(&models.Project{Clips: clips, BaseModel: models.BaseModel{UpdatedAt: models.Now()}})
	if res.Error != nil {
		return fmt.Errorf("updating clips: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOwnerMismatch
	}
	return nil
}

// SetSourceDuration records the probed source duration.
func (r *projectRepo) SetSourceDuration(ctx context.Context, id models.ULID, ownerID string, seconds int) error {
	return r.guardedUpdate(ctx, id, ownerID, map[string]any{"source_duration_sec": seconds})
}

// SetTranscript stores the transcription text.
func (r *projectRepo) SetTranscript(ctx context.Context, id models.ULID, ownerID, transcript string) error {
	return r.guardedUpdate(ctx, id, ownerID, map[string]any{"transcript": transcript})
}

// ResetForRetry moves a terminal or stuck record back to queued.
func (r *projectRepo) ResetForRetry(ctx context.Context, id models.ULID, ownerID string) error {
	return r.guardedUpdate(ctx, id, ownerID, map[string]any{
		"status":                models.StatusQueued,
		"error_message":         "",
		"output_url":            "",
		"progress_pct":          0,
		"progress_stage":        "",
		"completed_at":          nil,
		"processing_started_at": nil,
	})
}

// ReleaseStale forces records stuck in processing past the lease into error.
func (r *projectRepo) ReleaseStale(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := time.Now().Add(-lease)
	res := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("status = ? AND processing_started_at < ?", models.StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":         models.StatusError,
			"error_message":  fmt.Sprintf("run exceeded processing lease of %s", lease),
			"progress_stage": "error",
			"completed_at":   models.Now(),
			"updated_at":     models.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("releasing stale projects: %w", res.Error)
	}
	return res.RowsAffected, nil
}
