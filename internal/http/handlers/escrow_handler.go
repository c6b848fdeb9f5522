package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

// EscrowHandler обслуживает удержание и движение средств.
type EscrowHandler struct {
	escrows            *service.EscrowService
	defaultReleaseDays int
}

func NewEscrowHandler(escrows *service.EscrowService, defaultReleaseDays int) *EscrowHandler {
	return &EscrowHandler{escrows: escrows, defaultReleaseDays: defaultReleaseDays}
}

// CreateEscrow POST /escrows. Плательщиком становится автор запроса.
func (h *EscrowHandler) CreateEscrow(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req dto.CreateEscrowRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	days := h.defaultReleaseDays
	if req.AutoReleaseDays != nil {
		days = *req.AutoReleaseDays
	}

	escrow, err := h.escrows.CreateEscrow(c.Request.Context(), service.CreateEscrowInput{
		ProjectID:       req.ProjectID,
		MilestoneID:     req.MilestoneID,
		PayerID:         actor.ID,
		PayeeID:         req.PayeeID,
		Amount:          req.Amount,
		AutoReleaseDays: days,
		ActorID:         &actor.ID,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, escrow)
}

// GetEscrow GET /escrows/:id
func (h *EscrowHandler) GetEscrow(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	escrow, err := h.escrows.GetEscrow(c.Request.Context(), id, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

// ListTransactions GET /escrows/:id/transactions
func (h *EscrowHandler) ListTransactions(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	txs, err := h.escrows.ListEscrowTransactions(c.Request.Context(), id, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: txs})
}

// Release POST /escrows/:id/release
func (h *EscrowHandler) Release(c *gin.Context) {
	h.move(c, models.EscrowTxRelease, h.escrows.Release)
}

// Refund POST /escrows/:id/refund
func (h *EscrowHandler) Refund(c *gin.Context) {
	h.move(c, models.EscrowTxRefund, h.escrows.Refund)
}

// Hold POST /escrows/:id/hold
func (h *EscrowHandler) Hold(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.escrows.AuthorizeMovement(ctx, id, actor.ID, actor.Role, models.EscrowTxDisputeHold); err != nil {
		common.RespondAppError(c, err)
		return
	}
	escrow, err := h.escrows.HoldForDispute(ctx, id)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

// ListProjectEscrows GET /projects/:id/escrows
func (h *EscrowHandler) ListProjectEscrows(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	escrows, err := h.escrows.ListProjectEscrows(c.Request.Context(), projectID, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: escrows})
}

// ProjectTotals GET /projects/:id/escrows/totals
func (h *EscrowHandler) ProjectTotals(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	totals, err := h.escrows.GetProjectEscrowTotals(c.Request.Context(), projectID, actor.ID, actor.Role)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

type movementFunc func(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal, reason *string, actorID *uuid.UUID) (*models.MovementResult, error)

// move проверяет право на операцию и проводит выплату или возврат.
func (h *EscrowHandler) move(c *gin.Context, kind string, fn movementFunc) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.EscrowMovementRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.escrows.AuthorizeMovement(ctx, id, actor.ID, actor.Role, kind); err != nil {
		common.RespondAppError(c, err)
		return
	}
	res, err := fn(ctx, id, req.Amount, req.Reason, &actor.ID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
