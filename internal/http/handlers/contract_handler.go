package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

type ContractHandler struct {
	contracts *service.ContractService
}

func NewContractHandler(contracts *service.ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// CreateContract POST /projects/:id/contract
func (h *ContractHandler) CreateContract(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}
	terms, ok := bindTerms(c)
	if !ok {
		return
	}

	contract, err := h.contracts.CreateContract(c.Request.Context(), projectID, actor.ID, terms)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// GetProjectContract GET /projects/:id/contract
func (h *ContractHandler) GetProjectContract(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	contract, err := h.contracts.GetProjectContract(c.Request.Context(), projectID, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// UpdateContract PUT /contracts/:id
func (h *ContractHandler) UpdateContract(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}
	terms, ok := bindTerms(c)
	if !ok {
		return
	}

	contract, err := h.contracts.UpdateContract(c.Request.Context(), id, actor.ID, terms)
	respondContract(c, contract, err)
}

// SendForSignature POST /contracts/:id/send
func (h *ContractHandler) SendForSignature(c *gin.Context) {
	h.act(c, h.contracts.SendForSignature)
}

// SignContract POST /contracts/:id/sign
func (h *ContractHandler) SignContract(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	contract, err := h.contracts.SignContract(c.Request.Context(), id, actor.ID, c.ClientIP())
	respondContract(c, contract, err)
}

// CompleteContract POST /contracts/:id/complete
func (h *ContractHandler) CompleteContract(c *gin.Context) {
	h.act(c, h.contracts.CompleteContract)
}

// TerminateContract POST /contracts/:id/terminate
func (h *ContractHandler) TerminateContract(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.TerminateContractRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	contract, err := h.contracts.TerminateContract(c.Request.Context(), id, actor.ID, req.Reason)
	respondContract(c, contract, err)
}

// CancelContract POST /contracts/:id/cancel
func (h *ContractHandler) CancelContract(c *gin.Context) {
	h.act(c, h.contracts.CancelContract)
}

func (h *ContractHandler) act(c *gin.Context, fn func(ctx context.Context, id, actorID uuid.UUID) (*models.Contract, error)) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}
	contract, err := fn(c.Request.Context(), id, actor.ID)
	respondContract(c, contract, err)
}

func respondContract(c *gin.Context, contract *models.Contract, err error) {
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func bindTerms(c *gin.Context) (models.ContractTerms, bool) {
	var req dto.ContractTermsRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return models.ContractTerms{}, false
	}
	return models.ContractTerms{
		Terms:     req.Terms,
		Amount:    req.Amount,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}, true
}
