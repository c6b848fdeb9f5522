package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/dto"
	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-engine/internal/service"
)

// UserHandler обслуживает проекцию пользователей.
type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Me GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), actor.ID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SyncUser PUT /admin/users/:id. Вызывается провайдером идентификации
// при создании и изменении учётной записи.
func (h *UserHandler) SyncUser(c *gin.Context) {
	_, id, ok := actorWithID(c, "id")
	if !ok {
		return
	}

	var req dto.SyncUserRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	user, err := h.users.SyncUser(c.Request.Context(), service.SyncUserInput{
		ID:       id,
		Email:    req.Email,
		Role:     req.Role,
		IsActive: isActive,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
