package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

// PaymentHandler ведёт журнал платежей. Переходы статусов доступны
// администратору: их инициирует интеграция со шлюзом.
type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePayment POST /payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	paymentType := valueobject.PaymentType(req.Type)
	if !paymentType.IsValid() {
		common.RespondAppError(c, apperror.New(apperror.ErrCodeValidation, "некорректный тип платежа"))
		return
	}

	payment, err := h.payments.CreatePayment(c.Request.Context(), service.CreatePaymentInput{
		ProjectID:   req.ProjectID,
		MilestoneID: req.MilestoneID,
		PayerID:     actor.ID,
		PayeeID:     req.PayeeID,
		Amount:      req.Amount,
		Type:        paymentType,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// GetPayment GET /payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), id, actor.ID, actor.Role)
	respondPayment(c, payment, err)
}

// ListProjectPayments GET /projects/:id/payments
func (h *PaymentHandler) ListProjectPayments(c *gin.Context) {
	actor, projectID, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	limit, offset := common.GetPagination(c)
	payments, err := h.payments.ListProjectPayments(c.Request.Context(), projectID, actor.ID, actor.Role, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Items: payments, Limit: limit, Offset: offset})
}

// ProcessPayment POST /payments/:id/process
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.ProcessPaymentRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.payments.ProcessPayment(c.Request.Context(), id, req.TransactionID, req.Gateway, req.PaymentMethod)
	respondPayment(c, payment, err)
}

// CompletePayment POST /payments/:id/complete
func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}
	payment, err := h.payments.CompletePayment(c.Request.Context(), id)
	respondPayment(c, payment, err)
}

// RefundPayment POST /payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}
	payment, err := h.payments.RefundPayment(c.Request.Context(), id)
	respondPayment(c, payment, err)
}

// FailPayment POST /payments/:id/fail
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.FailPaymentRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payment, err := h.payments.FailPayment(c.Request.Context(), id, req.Reason)
	respondPayment(c, payment, err)
}

// CancelPayment POST /payments/:id/cancel
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}
	payment, err := h.payments.CancelPayment(c.Request.Context(), id)
	respondPayment(c, payment, err)
}

func respondPayment(c *gin.Context, payment *models.Payment, err error) {
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
