// Package repository defines record store access for autovideo project
// records. All database access goes through these interfaces, enabling easy
// testing and database backend switching.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

var (
	// ErrAlreadyProcessing is returned by ClaimForProcessing when another
	// run currently owns the record.
	ErrAlreadyProcessing = errors.New("project is already processing")

	// ErrOwnerMismatch is returned by guarded updates when no record matches
	// both the id and the owner.
	ErrOwnerMismatch = errors.New("project not found for owner")
)

// ProjectRepository defines operations for project record persistence.
// Reads return (nil, nil) when the record does not exist. All mutations are
// guarded point updates: a write only applies where id (and, where stated,
// owner) match, and never assumes a client-side read-modify-write is alone.
type ProjectRepository interface {
	// Create creates a new project record.
	Create(ctx context.Context, project *models.Project) error
	// GetByID retrieves a project by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Project, error)
	// ClaimForProcessing atomically transitions the record into a new run:
	// a conditional write that only applies while status != processing,
	// incrementing attempt and clearing stale error/progress/clip state.
	// Returns ErrAlreadyProcessing when another run owns the record and
	// (nil, nil) when the record does not exist.
	ClaimForProcessing(ctx context.Context, id models.ULID) (*models.Project, error)

	// SetDone finalizes a successful run: status=done, output URL, progress
	// 100, completion timestamp, error cleared.
	SetDone(ctx context.Context, id models.ULID, ownerID, outputURL string) error
	// SetError records a fatal run failure: status=error, message, completion
	// timestamp. The output URL is left untouched so a failed re-render
	// cannot erase a prior successful artifact.
	SetError(ctx context.Context, id models.ULID, ownerID, message string) error
	// SetProgress updates the staged progress label and percentage. The
	// write is conditional on the stored percentage not exceeding the new
	// one, keeping progress monotonic within an attempt.
	SetProgress(ctx context.Context, id models.ULID, ownerID string, pct int, stage string) error
	// SetClips replaces the staged run's sub-artifact list.
	SetClips(ctx context.Context, id models.ULID, ownerID string, clips []models.Clip) error
	// SetSourceDuration records the probed source duration in seconds.
	SetSourceDuration(ctx context.Context, id models.ULID, ownerID string, seconds int) error
	// SetTranscript stores the (truncated) transcription text.
	SetTranscript(ctx context.Context, id models.ULID, ownerID, transcript string) error

	// ResetForRetry moves a record back to queued, clearing error and output
	// state, without touching attempt or inputs. Guarded by owner.
	ResetForRetry(ctx context.Context, id models.ULID, ownerID string) error

	// ReleaseStale forces records stuck in processing longer than the lease
	// into the error state. Returns the number of records released.
	ReleaseStale(ctx context.Context, lease time.Duration) (int64, error)
}
