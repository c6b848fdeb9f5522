package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

// ProjectHandler обслуживает маршруты проектов.
type ProjectHandler struct {
	projects *service.ProjectService
}

func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProject POST /projects. Клиентом проекта становится автор запроса.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req dto.CreateProjectRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	project, err := h.projects.CreateProject(c.Request.Context(), service.CreateProjectInput{
		ClientID:             actor.ID,
		ProviderID:           req.ProviderID,
		BidID:                req.BidID,
		Title:                req.Title,
		Description:          req.Description,
		TotalBudget:          req.TotalBudget,
		CommissionPercentage: req.CommissionPercentage,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// GetProject GET /projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	project, err := h.projects.GetProject(c.Request.Context(), id, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// ListMyProjects GET /projects/my
func (h *ProjectHandler) ListMyProjects(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	projects, err := h.projects.ListUserProjects(c.Request.Context(), actor.ID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: projects, Limit: limit, Offset: offset})
}

// UpdateStatus PUT /projects/:id/status
func (h *ProjectHandler) UpdateStatus(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateProjectStatusRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	status, err := valueobject.NewProjectStatus(req.Status)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	project, err := h.projects.UpdateProjectStatus(c.Request.Context(), id, actor.ID, status)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}
