package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/models"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/repository"
)

// ProjectHandler handles read-only project status endpoints.
type ProjectHandler struct {
	repo repository.ProjectRepository
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(repo repository.ProjectRepository) *ProjectHandler {
	return &ProjectHandler{repo: repo}
}

// GetProjectInput is the input for the project status endpoint.
type GetProjectInput struct {
	ID string `path:"id" doc:"Project ID (ULID)"`
}

// GetProjectOutput is the output for the project status endpoint.
type GetProjectOutput struct {
	Body ProjectResponse
}

// Register registers the project routes with the API.
func (h *ProjectHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getProject",
		Method:      "GET",
		Path:        "/projects/{id}",
		Summary:     "Get project status",
		Description: "Returns the current lifecycle status, progress, and artifacts of a project; clients poll this while a run executes",
		Tags:        []string{"Projects"},
	}, h.GetByID)
}

// GetByID returns a project by ID.
func (h *ProjectHandler) GetByID(ctx context.Context, input *GetProjectInput) (*GetProjectOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	project, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get project", err)
	}
	if project == nil {
		return nil, huma.Error404NotFound("project not found")
	}

	return &GetProjectOutput{Body: ProjectFromModel(project)}, nil
}
