package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

type MilestoneHandler struct {
	milestones *service.MilestoneService
}

func NewMilestoneHandler(milestones *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestones: milestones}
}

// CreateMilestone POST /projects/:id/milestones
func (h *MilestoneHandler) CreateMilestone(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.CreateMilestoneRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	milestone, err := h.milestones.CreateMilestone(c.Request.Context(), service.CreateMilestoneInput{
		ProjectID:   projectID,
		ActorID:     actor.ID,
		Title:       req.Title,
		Description: req.Description,
		Sequence:    req.Sequence,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, milestone)
}

// ListProjectMilestones GET /projects/:id/milestones
func (h *MilestoneHandler) ListProjectMilestones(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	milestones, err := h.milestones.ListProjectMilestones(c.Request.Context(), projectID, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: milestones})
}

// StartMilestone POST /milestones/:id/start
func (h *MilestoneHandler) StartMilestone(c *gin.Context) {
	actor, id, ok := actorWithSeqID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.milestones.StartMilestone(c.Request.Context(), id, actor.ID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

// CompleteMilestone POST /milestones/:id/complete
func (h *MilestoneHandler) CompleteMilestone(c *gin.Context) {
	actor, id, ok := actorWithSeqID(c, "id")
	if !ok {
		return
	}

	var req dto.EvidenceRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	milestone, err := h.milestones.CompleteMilestone(c.Request.Context(), id, actor.ID, req.EvidenceURLs)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

// ApproveMilestone POST /milestones/:id/approve
func (h *MilestoneHandler) ApproveMilestone(c *gin.Context) {
	actor, id, ok := actorWithSeqID(c, "id")
	if !ok {
		return
	}

	result, err := h.milestones.ApproveMilestone(c.Request.Context(), id, actor.ID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
