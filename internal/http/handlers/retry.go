package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/repository"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/pkg/httpclient"
)

// retriggerTimeout bounds the best-effort re-intake call after a reset.
const retriggerTimeout = 10 * time.Second

// RetryHandler handles the retry/reset endpoint. It moves a stuck or failed
// record back to queued and, when a trigger URL is configured, fires a
// best-effort webhook call to start a fresh run.
type RetryHandler struct {
	repo       repository.ProjectRepository
	client     *httpclient.Client
	triggerURL string
	secret     string
	logger     *slog.Logger
}

// NewRetryHandler creates a new retry handler. An empty triggerURL disables
// the re-intake call.
func NewRetryHandler(repo repository.ProjectRepository, client *httpclient.Client, triggerURL, secret string, logger *slog.Logger) *RetryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryHandler{
		repo:       repo,
		client:     client,
		triggerURL: triggerURL,
		secret:     secret,
		logger:     logger,
	}
}

// RetryInput is the input for the retry endpoint. The bearer token carries
// the caller's owner identity.
type RetryInput struct {
	ID            string `path:"id" doc:"Project ID (ULID)"`
	Authorization string `header:"Authorization" doc:"Bearer token carrying the caller identity"`
}

// RetryOutput is the output for the retry endpoint.
type RetryOutput struct {
	Body struct {
		OK bool `json:"ok" doc:"True when the record was reset"`
	}
}

// Register registers the retry route with the API.
func (h *RetryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "retryProject",
		Method:      "POST",
		Path:        "/projects/{id}/retry",
		Summary:     "Reset a project for retry",
		Description: "Moves a terminal or stuck record back to queued, clearing error and output state, and re-triggers intake when configured",
		Tags:        []string{"Projects"},
	}, h.Retry)
}

// Retry resets a record to a re-runnable state.
func (h *RetryHandler) Retry(ctx context.Context, input *RetryInput) (*RetryOutput, error) {
	ownerID := bearerSubject(input.Authorization)
	if ownerID == "" {
		return nil, huma.Error401Unauthorized("missing bearer identity")
	}

	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	if err := h.repo.ResetForRetry(ctx, id, ownerID); err != nil {
		if errors.Is(err, repository.ErrOwnerMismatch) {
			return nil, huma.Error403Forbidden("project not found for caller")
		}
		return nil, huma.Error500InternalServerError("failed to reset project", err)
	}

	h.logger.InfoContext(ctx, "project reset for retry",
		slog.String("project_id", id.String()),
	)

	// Re-invoke intake in the background. Failure only logs; the reset
	// itself already succeeded.
	if h.triggerURL != "" && h.client != nil {
		go h.retrigger(id)
	}

	resp := &RetryOutput{}
	resp.Body.OK = true
	return resp, nil
}

// retrigger fires the configured intake URL for a freshly reset record.
func (h *RetryHandler) retrigger(id models.ULID) {
	ctx, cancel := context.WithTimeout(context.Background(), retriggerTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"job_id": id.String(),
		"secret": h.secret,
	})
	if err != nil {
		h.logger.Error("marshaling retrigger payload",
			slog.String("project_id", id.String()),
			slog.Any("error", err),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.triggerURL, bytes.NewReader(payload))
	if err != nil {
		h.logger.Error("building retrigger request",
			slog.String("project_id", id.String()),
			slog.Any("error", err),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("retrigger call failed",
			slog.String("project_id", id.String()),
			slog.Any("error", err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		h.logger.Warn("retrigger call rejected",
			slog.String("project_id", id.String()),
			slog.Int("status", resp.StatusCode),
		)
	}
}

// bearerSubject extracts the subject from a Bearer authorization header.
func bearerSubject(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
