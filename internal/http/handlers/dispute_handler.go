package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

type DisputeHandler struct {
	svc *service.DisputeService
}

func NewDisputeHandler(s *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: s}
}

// CreateDispute POST /projects/:id/disputes
func (h *DisputeHandler) CreateDispute(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.CreateDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	opened, err := h.svc.CreateDispute(c.Request.Context(), service.CreateDisputeInput{
		ProjectID:    projectID,
		RaisedByID:   actor.ID,
		Type:         valueobject.DisputeType(req.Type),
		Title:        req.Title,
		Description:  req.Description,
		EvidenceURLs: req.EvidenceURLs,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, opened)
}

// GetDispute GET /disputes/:id
func (h *DisputeHandler) GetDispute(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.svc.GetDispute(c.Request.Context(), id, actor.ID, actor.Role)
	respondDispute(c, dispute, err)
}

// ListMyDisputes GET /disputes
func (h *DisputeHandler) ListMyDisputes(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	disputes, err := h.svc.ListUserDisputes(c.Request.Context(), actor.ID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: disputes, Limit: limit, Offset: offset})
}

// ListProjectDisputes GET /projects/:id/disputes
func (h *DisputeHandler) ListProjectDisputes(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	disputes, err := h.svc.ListProjectDisputes(c.Request.Context(), projectID, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: disputes})
}

// AssignArbitrator POST /disputes/:id/assign
func (h *DisputeHandler) AssignArbitrator(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.AssignArbitratorRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.AssignArbitrator(c.Request.Context(), id, req.ArbitratorID)
	respondDispute(c, dispute, err)
}

// RequestEvidence POST /disputes/:id/request-evidence
func (h *DisputeHandler) RequestEvidence(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.svc.RequestEvidence(c.Request.Context(), id, actor.ID, actor.Role)
	respondDispute(c, dispute, err)
}

// SubmitEvidence POST /disputes/:id/evidence
func (h *DisputeHandler) SubmitEvidence(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.EvidenceRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.SubmitEvidence(c.Request.Context(), id, actor.ID, req.EvidenceURLs)
	respondDispute(c, dispute, err)
}

// ResolveDispute POST /disputes/:id/resolve
func (h *DisputeHandler) ResolveDispute(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.svc.ResolveDispute(c.Request.Context(), id, actor.ID, actor.Role,
		valueobject.DisputeOutcome(req.Outcome), req.ResolutionDetails)
	respondDispute(c, dispute, err)
}

// CloseDispute POST /disputes/:id/close
func (h *DisputeHandler) CloseDispute(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	dispute, err := h.svc.CloseDispute(c.Request.Context(), id, actor.ID, actor.Role)
	respondDispute(c, dispute, err)
}

func respondDispute(c *gin.Context, dispute *models.Dispute, err error) {
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dispute)
}
