package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/http/handlers/common"
)

// actorWithID извлекает пользователя и UUID из параметра пути.
// При ошибке ответ уже отправлен.
func actorWithID(c *gin.Context, param string) (common.Actor, uuid.UUID, bool) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return actor, uuid.Nil, false
	}
	id, err := common.ParseUUIDParam(c, param)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return actor, uuid.Nil, false
	}
	return actor, id, true
}

// actorWithSeqID делает то же для числовых идентификаторов этапов.
func actorWithSeqID(c *gin.Context, param string) (common.Actor, int64, bool) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return actor, 0, false
	}
	id, err := common.ParseInt64Param(c, param)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return actor, 0, false
	}
	return actor, id, true
}
