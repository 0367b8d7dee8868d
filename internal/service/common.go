package service

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
)

// События, которые получают пользователи через WebSocket.
const (
	EventBidCreated       = "bid.created"
	EventBidAccepted      = "bid.accepted"
	EventBidRejected      = "bid.rejected"
	EventJobDelivered     = "job.delivered"
	EventJobStatusChanged = "job.status_changed"
	EventJobReviewed      = "job.reviewed"
	EventJobSettled       = "job.settled"
)

// Notifier доставляет события пользователям.
type Notifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// notify отправляет событие, не прерывая бизнес операцию при ошибке доставки.
func notify(n Notifier, userID uuid.UUID, event string, data any) {
	if n == nil || userID == uuid.Nil {
		return
	}
	if err := n.BroadcastToUser(userID, event, data); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": userID,
			"event":   event,
			"error":   err.Error(),
		}).Warn("notifier: не удалось отправить событие")
	}
}

// translate переводит ошибки репозиториев в ошибки приложения.
func translate(err error, notFound *apperror.AppError, conflictMsg string) error {
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrJobNotFound),
		errors.Is(err, repository.ErrBidNotFound),
		errors.Is(err, repository.ErrTransactionNotFound),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		if notFound != nil {
			return notFound
		}
		return apperror.Wrap(err, apperror.ErrCodeNotFound, "запись не найдена")
	case errors.Is(err, repository.ErrStaleState),
		errors.Is(err, repository.ErrDuplicateBid),
		errors.Is(err, repository.ErrDuplicateTransaction):
		return apperror.Wrap(err, apperror.ErrCodeConflict, conflictMsg)
	default:
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "ошибка хранилища")
	}
}
