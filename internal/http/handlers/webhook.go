package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/repository"
)

// Dispatcher schedules a claimed project for background execution.
type Dispatcher interface {
	Dispatch(p *models.Project) bool
}

// WebhookHandler handles render and shorts intake webhooks. It validates the
// shared secret, claims the record, acknowledges with 202, and hands the run
// to the dispatcher without blocking the response.
type WebhookHandler struct {
	repo       repository.ProjectRepository
	dispatcher Dispatcher
	secret     string
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables
// the shared-secret check.
func NewWebhookHandler(repo repository.ProjectRepository, dispatcher Dispatcher, secret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		repo:       repo,
		dispatcher: dispatcher,
		secret:     secret,
		logger:     logger,
	}
}

// WebhookInput is the input for the intake webhooks. The shared secret may
// arrive as a header or in the body.
type WebhookInput struct {
	Secret string `header:"x-webhook-secret" doc:"Shared intake secret" required:"false"`
	Body   struct {
		JobID  string `json:"job_id" doc:"Project ID (ULID)"`
		Secret string `json:"secret,omitempty" doc:"Shared intake secret (alternative to header)"`
	}
}

// WebhookOutput is the output for the intake webhooks.
type WebhookOutput struct {
	Body struct {
		OK       bool   `json:"ok,omitempty" doc:"True when the run was accepted"`
		Accepted bool   `json:"accepted,omitempty" doc:"True when the run was accepted"`
		Skipped  string `json:"skipped,omitempty" doc:"Reason the run was not started"`
	}
}

// Register registers the webhook routes with the API.
func (h *WebhookHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "renderWebhook",
		Method:        "POST",
		Path:          "/webhooks/render",
		Summary:       "Trigger a render run",
		Description:   "Accepts a render request, acknowledges immediately, and executes the pipeline in the background",
		Tags:          []string{"Webhooks"},
		DefaultStatus: 202,
	}, h.handleKind(models.KindRender))

	huma.Register(api, huma.Operation{
		OperationID:   "shortsWebhook",
		Method:        "POST",
		Path:          "/webhooks/shorts",
		Summary:       "Trigger a shorts run",
		Description:   "Accepts a shorts request, acknowledges immediately, and executes the staged clip pipeline in the background",
		Tags:          []string{"Webhooks"},
		DefaultStatus: 202,
	}, h.handleKind(models.KindShorts))
}

// handleKind returns an intake handler bound to one pipeline kind.
func (h *WebhookHandler) handleKind(kind models.ProjectKind) func(context.Context, *WebhookInput) (*WebhookOutput, error) {
	return func(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
		if err := h.checkSecret(input); err != nil {
			return nil, err
		}

		if input.Body.JobID == "" {
			return nil, huma.Error400BadRequest("job_id is required")
		}
		id, err := models.ParseULID(input.Body.JobID)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid job_id format", err)
		}

		existing, err := h.repo.GetByID(ctx, id)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load project", err)
		}
		if existing == nil {
			return nil, huma.Error404NotFound("project not found")
		}
		if existing.Kind != kind {
			return nil, huma.Error400BadRequest("project kind does not match this endpoint")
		}
		if existing.IsProcessing() {
			// Fast path; the conditional claim below still closes the
			// race between near-simultaneous triggers.
			resp := &WebhookOutput{}
			resp.Body.Skipped = "already_processing"
			return resp, nil
		}

		project, err := h.repo.ClaimForProcessing(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrAlreadyProcessing) {
				resp := &WebhookOutput{}
				resp.Body.Skipped = "already_processing"
				return resp, nil
			}
			return nil, huma.Error500InternalServerError("failed to claim project", err)
		}
		if project == nil {
			return nil, huma.Error404NotFound("project not found")
		}

		if !h.dispatcher.Dispatch(project) {
			return nil, huma.Error503ServiceUnavailable("worker is shutting down")
		}

		h.logger.InfoContext(ctx, "run accepted",
			slog.String("project_id", project.ID.String()),
			slog.String("kind", string(project.Kind)),
			slog.Int("attempt", project.Attempt),
		)

		resp := &WebhookOutput{}
		resp.Body.OK = true
		resp.Body.Accepted = true
		return resp, nil
	}
}

// checkSecret validates the shared secret from header or body. An empty
// configured secret disables the check.
func (h *WebhookHandler) checkSecret(input *WebhookInput) error {
	if h.secret == "" {
		return nil
	}
	if secretEqual(input.Secret, h.secret) || secretEqual(input.Body.Secret, h.secret) {
		return nil
	}
	return huma.Error401Unauthorized("invalid webhook secret")
}

func secretEqual(got, want string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
