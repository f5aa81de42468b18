package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Project{}))
	return db
}

func newTestProject(t *testing.T, db *gorm.DB, mutate func(*models.Project)) *models.Project {
	t.Helper()
	p := &models.Project{
		OwnerID: "owner-1",
		Name:    "test project",
		Kind:    models.KindRender,
		Status:  models.StatusQueued,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestProjectRepo_CreateAndGetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := &models.Project{
		OwnerID: "owner-1",
		Kind:    models.KindShorts,
		Inputs:  models.ProjectInputs{SourceURL: "https://example.com/v.mp4", MaxClips: 3},
	}
	require.NoError(t, repo.Create(ctx, p))
	assert.False(t, p.ID.IsZero())
	assert.Equal(t, models.StatusDraft, p.Status)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, models.KindShorts, got.Kind)
	assert.Equal(t, "https://example.com/v.mp4", got.Inputs.SourceURL)
	assert.Equal(t, 3, got.Inputs.MaxClips)
}

func TestProjectRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)

	got, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProjectRepo_ClaimForProcessing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusError
		p.ErrorMessage = "previous failure"
		p.ProgressPct = 40
		p.ProgressStage = "clipping"
		p.OutputURL = "https://cdn.example.com/old.mp4"
		p.Clips = []models.Clip{{ID: "c1", Index: 0, Status: models.ClipError}}
	})

	claimed, err := repo.ClaimForProcessing(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.StatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempt)
	assert.Empty(t, claimed.ErrorMessage)
	assert.Zero(t, claimed.ProgressPct)
	assert.Empty(t, claimed.ProgressStage)
	assert.Empty(t, claimed.Clips)
	assert.NotNil(t, claimed.ProcessingStartedAt)
	assert.Nil(t, claimed.CompletedAt)
	assert.Equal(t, "https://cdn.example.com/old.mp4", claimed.OutputURL,
		"a new attempt must not erase the prior artifact")
}

func TestProjectRepo_ClaimForProcessing_AlreadyProcessing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, nil)

	first, err := repo.ClaimForProcessing(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := repo.ClaimForProcessing(ctx, p.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessing)
	assert.Nil(t, second)

	// The duplicate claim must not bump the attempt counter.
	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempt)
}

func TestProjectRepo_ClaimForProcessing_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)

	claimed, err := repo.ClaimForProcessing(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestProjectRepo_ClaimForProcessing_AttemptIncrements(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, nil)

	for want := 1; want <= 3; want++ {
		claimed, err := repo.ClaimForProcessing(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, want, claimed.Attempt)
		require.NoError(t, repo.SetError(ctx, p.ID, p.OwnerID, "boom"))
	}
}

func TestProjectRepo_SetDone(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusProcessing
		p.ErrorMessage = "transient"
	})

	require.NoError(t, repo.SetDone(ctx, p.ID, p.OwnerID, "https://cdn.example.com/out.mp4"))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, "https://cdn.example.com/out.mp4", got.OutputURL)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, 100, got.ProgressPct)
	assert.NotNil(t, got.CompletedAt)
}

func TestProjectRepo_SetDone_OwnerMismatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, nil)

	err := repo.SetDone(ctx, p.ID, "someone-else", "https://cdn.example.com/out.mp4")
	assert.ErrorIs(t, err, ErrOwnerMismatch)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Empty(t, got.OutputURL)
}

func TestProjectRepo_SetError_PreservesOutputURL(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusProcessing
		p.OutputURL = "https://cdn.example.com/prior.mp4"
	})

	require.NoError(t, repo.SetError(ctx, p.ID, p.OwnerID, "render exploded"))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "render exploded", got.ErrorMessage)
	assert.Equal(t, "https://cdn.example.com/prior.mp4", got.OutputURL)
	assert.NotNil(t, got.CompletedAt)
}

func TestProjectRepo_SetProgress_Monotonic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, func(p *models.Project) { p.Status = models.StatusProcessing })

	require.NoError(t, repo.SetProgress(ctx, p.ID, p.OwnerID, 40, "analyzing"))
	require.NoError(t, repo.SetProgress(ctx, p.ID, p.OwnerID, 70, "captioning"))

	// A lower percentage arriving late is silently dropped.
	require.NoError(t, repo.SetProgress(ctx, p.ID, p.OwnerID, 55, "clipping"))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, got.ProgressPct)
	assert.Equal(t, "captioning", got.ProgressStage)
}

func TestProjectRepo_SetClips(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, nil)

	clips := []models.Clip{
		{ID: "c1", Index: 0, Title: "Hook", StartTime: 12.5, EndTime: 41.0, Status: models.ClipDone, VideoURL: "https://cdn.example.com/c1.mp4"},
		{ID: "c2", Index: 1, Status: models.ClipError},
	}
	require.NoError(t, repo.SetClips(ctx, p.ID, p.OwnerID, clips))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Clips, 2)
	assert.Equal(t, "Hook", got.Clips[0].Title)
	assert.Equal(t, models.ClipDone, got.Clips[0].Status)
	assert.Equal(t, models.ClipError, got.Clips[1].Status)

	err = repo.SetClips(ctx, p.ID, "someone-else", clips)
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestProjectRepo_SetSourceDurationAndTranscript(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, nil)

	require.NoError(t, repo.SetSourceDuration(ctx, p.ID, p.OwnerID, 734))
	require.NoError(t, repo.SetTranscript(ctx, p.ID, p.OwnerID, "hello world"))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 734, got.SourceDurationSec)
	assert.Equal(t, "hello world", got.Transcript)
}

func TestProjectRepo_ResetForRetry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusError
		p.Attempt = 2
		p.ErrorMessage = "boom"
		p.OutputURL = "https://cdn.example.com/out.mp4"
		p.ProgressPct = 80
	})

	require.NoError(t, repo.ResetForRetry(ctx, p.ID, p.OwnerID))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Empty(t, got.OutputURL)
	assert.Zero(t, got.ProgressPct)
	assert.Equal(t, 2, got.Attempt, "reset does not bump the attempt; the next claim does")
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ProcessingStartedAt)
}

func TestProjectRepo_ResetForRetry_OwnerMismatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)

	p := newTestProject(t, db, nil)

	err := repo.ResetForRetry(context.Background(), p.ID, "someone-else")
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestProjectRepo_ReleaseStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	stale := time.Now().Add(-2 * time.Hour)
	fresh := time.Now().Add(-5 * time.Minute)

	p1 := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusProcessing
		p.ProcessingStartedAt = &stale
	})
	p2 := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusProcessing
		p.ProcessingStartedAt = &fresh
	})
	p3 := newTestProject(t, db, func(p *models.Project) {
		p.Status = models.StatusDone
	})

	n, err := repo.ReleaseStale(ctx, 45*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got1, err := repo.GetByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got1.Status)
	assert.Contains(t, got1.ErrorMessage, "lease")

	got2, err := repo.GetByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got2.Status)

	got3, err := repo.GetByID(ctx, p3.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got3.Status)
}
