package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/repository"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/pkg/httpclient"
)

// mockProjectRepo implements repository.ProjectRepository for testing.
type mockProjectRepo struct {
	projects map[models.ULID]*models.Project
	err      error
	claimErr error
	resets   int
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{
		projects: make(map[models.ULID]*models.Project),
	}
}

func (m *mockProjectRepo) Create(ctx context.Context, p *models.Project) error {
	if m.err != nil {
		return m.err
	}
	if p.ID.IsZero() {
		p.ID = models.NewULID()
	}
	m.projects[p.ID] = p
	return nil
}

func (m *mockProjectRepo) GetByID(ctx context.Context, id models.ULID) (*models.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.projects[id], nil
}

func (m *mockProjectRepo) ClaimForProcessing(ctx context.Context, id models.ULID) (*models.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	p, ok := m.projects[id]
	if !ok {
		return nil, nil
	}
	if p.Status == models.StatusProcessing {
		return nil, repository.ErrAlreadyProcessing
	}
	p.Attempt++
	p.Status = models.StatusProcessing
	return p, nil
}

func (m *mockProjectRepo) SetDone(ctx context.Context, id models.ULID, ownerID, outputURL string) error {
	return m.err
}

func (m *mockProjectRepo) SetError(ctx context.Context, id models.ULID, ownerID, message string) error {
	return m.err
}

func (m *mockProjectRepo) SetProgress(ctx context.Context, id models.ULID, ownerID string, pct int, stage string) error {
	return m.err
}

func (m *mockProjectRepo) SetClips(ctx context.Context, id models.ULID, ownerID string, clips []models.Clip) error {
	return m.err
}

func (m *mockProjectRepo) SetSourceDuration(ctx context.Context, id models.ULID, ownerID string, seconds int) error {
	return m.err
}

func (m *mockProjectRepo) SetTranscript(ctx context.Context, id models.ULID, ownerID, transcript string) error {
	return m.err
}

func (m *mockProjectRepo) ResetForRetry(ctx context.Context, id models.ULID, ownerID string) error {
	if m.err != nil {
		return m.err
	}
	p, ok := m.projects[id]
	if !ok || p.OwnerID != ownerID {
		return repository.ErrOwnerMismatch
	}
	p.Status = models.StatusQueued
	p.ErrorMessage = ""
	p.OutputURL = ""
	m.resets++
	return nil
}

func (m *mockProjectRepo) ReleaseStale(ctx context.Context, lease time.Duration) (int64, error) {
	return 0, m.err
}

// mockDispatcher records dispatched projects.
type mockDispatcher struct {
	dispatched []*models.Project
	closed     bool
}

func (m *mockDispatcher) Dispatch(p *models.Project) bool {
	if m.closed {
		return false
	}
	m.dispatched = append(m.dispatched, p)
	return true
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, want, se.GetStatus())
}

func newTestProject(kind models.ProjectKind) *models.Project {
	p := &models.Project{
		OwnerID: "owner-1",
		Name:    "test project",
		Kind:    kind,
		Status:  models.StatusQueued,
	}
	p.ID = models.NewULID()
	return p
}

func TestWebhookHandler_Accepted(t *testing.T) {
	repo := newMockProjectRepo()
	dispatcher := &mockDispatcher{}
	handler := NewWebhookHandler(repo, dispatcher, "s3cret", nil)

	p := newTestProject(models.KindRender)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{Secret: "s3cret"}
	input.Body.JobID = p.ID.String()

	resp, err := intake(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, resp.Body.OK)
	assert.True(t, resp.Body.Accepted)
	assert.Empty(t, resp.Body.Skipped)

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, 1, dispatcher.dispatched[0].Attempt)
	assert.Equal(t, models.StatusProcessing, dispatcher.dispatched[0].Status)
}

func TestWebhookHandler_SecretInBody(t *testing.T) {
	repo := newMockProjectRepo()
	dispatcher := &mockDispatcher{}
	handler := NewWebhookHandler(repo, dispatcher, "s3cret", nil)

	p := newTestProject(models.KindRender)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = p.ID.String()
	input.Body.Secret = "s3cret"

	resp, err := intake(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, resp.Body.Accepted)
}

func TestWebhookHandler_BadSecret(t *testing.T) {
	repo := newMockProjectRepo()
	dispatcher := &mockDispatcher{}
	handler := NewWebhookHandler(repo, dispatcher, "s3cret", nil)

	p := newTestProject(models.KindRender)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{Secret: "wrong"}
	input.Body.JobID = p.ID.String()

	_, err := intake(context.Background(), input)
	assertStatus(t, err, http.StatusUnauthorized)
	assert.Empty(t, dispatcher.dispatched)
}

func TestWebhookHandler_SecretDisabled(t *testing.T) {
	repo := newMockProjectRepo()
	dispatcher := &mockDispatcher{}
	handler := NewWebhookHandler(repo, dispatcher, "", nil)

	p := newTestProject(models.KindRender)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = p.ID.String()

	resp, err := intake(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, resp.Body.Accepted)
}

func TestWebhookHandler_MissingJobID(t *testing.T) {
	handler := NewWebhookHandler(newMockProjectRepo(), &mockDispatcher{}, "", nil)
	intake := handler.handleKind(models.KindRender)

	_, err := intake(context.Background(), &WebhookInput{})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestWebhookHandler_InvalidJobID(t *testing.T) {
	handler := NewWebhookHandler(newMockProjectRepo(), &mockDispatcher{}, "", nil)
	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = "not-a-ulid"

	_, err := intake(context.Background(), input)
	assertStatus(t, err, http.StatusBadRequest)
}

func TestWebhookHandler_NotFound(t *testing.T) {
	handler := NewWebhookHandler(newMockProjectRepo(), &mockDispatcher{}, "", nil)
	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = models.NewULID().String()

	_, err := intake(context.Background(), input)
	assertStatus(t, err, http.StatusNotFound)
}

func TestWebhookHandler_KindMismatch(t *testing.T) {
	repo := newMockProjectRepo()
	handler := NewWebhookHandler(repo, &mockDispatcher{}, "", nil)

	p := newTestProject(models.KindShorts)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = p.ID.String()

	_, err := intake(context.Background(), input)
	assertStatus(t, err, http.StatusBadRequest)
}

func TestWebhookHandler_AlreadyProcessing(t *testing.T) {
	repo := newMockProjectRepo()
	dispatcher := &mockDispatcher{}
	handler := NewWebhookHandler(repo, dispatcher, "", nil)

	p := newTestProject(models.KindRender)
	p.Status = models.StatusProcessing
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = p.ID.String()

	resp, err := intake(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "already_processing", resp.Body.Skipped)
	assert.False(t, resp.Body.Accepted)
	assert.Empty(t, dispatcher.dispatched)
}

func TestWebhookHandler_ClaimLosesRace(t *testing.T) {
	// The record reads as queued but another trigger wins the claim
	// between read and write.
	repo := newMockProjectRepo()
	repo.claimErr = repository.ErrAlreadyProcessing
	dispatcher := &mockDispatcher{}
	handler := NewWebhookHandler(repo, dispatcher, "", nil)

	p := newTestProject(models.KindRender)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = p.ID.String()

	resp, err := intake(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "already_processing", resp.Body.Skipped)
	assert.Empty(t, dispatcher.dispatched)
}

func TestWebhookHandler_DispatcherClosed(t *testing.T) {
	repo := newMockProjectRepo()
	handler := NewWebhookHandler(repo, &mockDispatcher{closed: true}, "", nil)

	p := newTestProject(models.KindRender)
	repo.projects[p.ID] = p

	intake := handler.handleKind(models.KindRender)

	input := &WebhookInput{}
	input.Body.JobID = p.ID.String()

	_, err := intake(context.Background(), input)
	assertStatus(t, err, http.StatusServiceUnavailable)
}

func TestRetryHandler_Success(t *testing.T) {
	repo := newMockProjectRepo()
	handler := NewRetryHandler(repo, nil, "", "", nil)

	p := newTestProject(models.KindRender)
	p.Status = models.StatusError
	p.ErrorMessage = "render failed"
	p.OutputURL = "https://cdn.example.com/old.mp4"
	repo.projects[p.ID] = p

	resp, err := handler.Retry(context.Background(), &RetryInput{
		ID:            p.ID.String(),
		Authorization: "Bearer owner-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Body.OK)

	assert.Equal(t, models.StatusQueued, p.Status)
	assert.Empty(t, p.ErrorMessage)
	assert.Empty(t, p.OutputURL)
}

func TestRetryHandler_MissingBearer(t *testing.T) {
	handler := NewRetryHandler(newMockProjectRepo(), nil, "", "", nil)

	_, err := handler.Retry(context.Background(), &RetryInput{
		ID: models.NewULID().String(),
	})
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestRetryHandler_OwnerMismatch(t *testing.T) {
	repo := newMockProjectRepo()
	handler := NewRetryHandler(repo, nil, "", "", nil)

	p := newTestProject(models.KindRender)
	p.Status = models.StatusError
	repo.projects[p.ID] = p

	_, err := handler.Retry(context.Background(), &RetryInput{
		ID:            p.ID.String(),
		Authorization: "Bearer someone-else",
	})
	assertStatus(t, err, http.StatusForbidden)
	assert.Equal(t, models.StatusError, p.Status)
}

func TestRetryHandler_InvalidID(t *testing.T) {
	handler := NewRetryHandler(newMockProjectRepo(), nil, "", "", nil)

	_, err := handler.Retry(context.Background(), &RetryInput{
		ID:            "not-a-ulid",
		Authorization: "Bearer owner-1",
	})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestRetryHandler_Retrigger(t *testing.T) {
	received := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		received <- payload
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	repo := newMockProjectRepo()
	client := httpclient.NewWithDefaults()
	handler := NewRetryHandler(repo, client, srv.URL, "s3cret", nil)

	p := newTestProject(models.KindRender)
	p.Status = models.StatusError
	repo.projects[p.ID] = p

	resp, err := handler.Retry(context.Background(), &RetryInput{
		ID:            p.ID.String(),
		Authorization: "Bearer owner-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Body.OK)

	select {
	case payload := <-received:
		assert.Equal(t, p.ID.String(), payload["job_id"])
		assert.Equal(t, "s3cret", payload["secret"])
	case <-time.After(5 * time.Second):
		t.Fatal("retrigger call never arrived")
	}
}

func TestRetryHandler_RetriggerFailureDoesNotFailReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := newMockProjectRepo()
	client := httpclient.NewWithDefaults()
	handler := NewRetryHandler(repo, client, srv.URL, "", nil)

	p := newTestProject(models.KindRender)
	p.Status = models.StatusError
	repo.projects[p.ID] = p

	resp, err := handler.Retry(context.Background(), &RetryInput{
		ID:            p.ID.String(),
		Authorization: "Bearer owner-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Body.OK)
	assert.Equal(t, models.StatusQueued, p.Status)
}

func TestProjectHandler_GetByID(t *testing.T) {
	repo := newMockProjectRepo()
	handler := NewProjectHandler(repo)

	p := newTestProject(models.KindShorts)
	p.Status = models.StatusProcessing
	p.ProgressPct = 55
	p.ProgressStage = "clipping"
	p.Clips = []models.Clip{
		{ID: "clip-01", Index: 0, Title: "Hook", Status: models.ClipDone, StartTime: 12, EndTime: 38, Duration: 26, VideoURL: "https://cdn.example.com/clip-01.mp4"},
		{ID: "clip-02", Index: 1, Status: models.ClipProcessing, StartTime: 80, EndTime: 120, Duration: 40},
	}
	repo.projects[p.ID] = p

	t.Run("found", func(t *testing.T) {
		resp, err := handler.GetByID(context.Background(), &GetProjectInput{ID: p.ID.String()})
		require.NoError(t, err)
		assert.Equal(t, p.ID.String(), resp.Body.ID)
		assert.Equal(t, "processing", resp.Body.Status)
		assert.Equal(t, 55, resp.Body.ProgressPct)
		assert.Equal(t, "clipping", resp.Body.ProgressStage)
		require.Len(t, resp.Body.Clips, 2)
		assert.Equal(t, "done", resp.Body.Clips[0].Status)
		assert.Equal(t, "https://cdn.example.com/clip-01.mp4", resp.Body.Clips[0].VideoURL)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := handler.GetByID(context.Background(), &GetProjectInput{ID: models.NewULID().String()})
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := handler.GetByID(context.Background(), &GetProjectInput{ID: "invalid"})
		assertStatus(t, err, http.StatusBadRequest)
	})
}

func TestBearerSubject(t *testing.T) {
	assert.Equal(t, "owner-1", bearerSubject("Bearer owner-1"))
	assert.Equal(t, "owner-1", bearerSubject("bearer owner-1"))
	assert.Empty(t, bearerSubject(""))
	assert.Empty(t, bearerSubject("Basic dXNlcjpwYXNz"))
	assert.Empty(t, bearerSubject("Bearer "))
}

func TestProjectFromModel(t *testing.T) {
	p := newTestProject(models.KindRender)
	p.Status = models.StatusDone
	p.Attempt = 2
	p.ProgressPct = 100
	p.ProgressStage = "done"
	p.OutputURL = "https://cdn.example.com/final.mp4"
	p.SourceDurationSec = 63

	resp := ProjectFromModel(p)
	assert.Equal(t, p.ID.String(), resp.ID)
	assert.Equal(t, "owner-1", resp.OwnerID)
	assert.Equal(t, "render", resp.Kind)
	assert.Equal(t, "done", resp.Status)
	assert.Equal(t, 2, resp.Attempt)
	assert.Equal(t, "https://cdn.example.com/final.mp4", resp.OutputURL)
	assert.Equal(t, 63, resp.SourceDurationSec)
	assert.Empty(t, resp.Clips)
}
