package common

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-marketplace/internal/http/middleware"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
)

var (
	ErrNoActor     = errors.New("пользователь не найден в контексте")
	ErrInvalidUUID = errors.New("неверный формат UUID")
)

// CurrentActor собирает вызывающего из значений, положенных AuthMiddleware.
func CurrentActor(c *gin.Context) (models.Actor, error) {
	userID, ok := c.Value(middleware.ContextUserIDKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return models.Actor{}, ErrNoActor
	}

	role := c.GetString(middleware.ContextRoleKey)
	if _, known := models.ValidRoles[role]; !known {
		return models.Actor{}, ErrNoActor
	}
	return models.Actor{UserID: userID, Role: role}, nil
}

func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("параметр %s отсутствует", name)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}
	return id, nil
}

// BindAndValidate разбирает JSON тело. Теги validate проверяет уже сервис.
func BindAndValidate(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("ошибка разбора запроса: %w", err)
	}
	return nil
}
