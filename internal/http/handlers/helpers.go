package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-marketplace/internal/http/handlers/common"
	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
)

// currentActor извлекает вызывающего или отвечает 401.
func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return models.Actor{}, false
	}
	return actor, true
}

// actorAndID извлекает вызывающего и UUID из параметра пути.
func actorAndID(c *gin.Context, param string) (models.Actor, uuid.UUID, bool) {
	actor, ok := currentActor(c)
	if !ok {
		return models.Actor{}, uuid.Nil, false
	}

	id, err := common.ParseUUIDParam(c, param)
	if err != nil {
		response.BadRequest(c, err.Error())
		return models.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

// bindJSON разбирает тело запроса или отвечает 400.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := common.BindAndValidate(c, req); err != nil {
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}
