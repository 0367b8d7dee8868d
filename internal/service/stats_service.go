package service

import (
	"context"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
)

type StatsService struct {
	store repository.Repositories
}

func NewStatsService(store repository.Repositories) *StatsService {
	return &StatsService{store: store}
}

// GetStats сводка по работам, расчётам и пользователям для администратора.
func (s *StatsService) GetStats(ctx context.Context, actor models.Actor) (*models.Stats, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	jobs, err := s.store.Jobs().Stats(ctx)
	if err != nil {
		return nil, translate(err, nil, "")
	}
	payments, err := s.store.Transactions().Totals(ctx)
	if err != nil {
		return nil, translate(err, nil, "")
	}
	users, err := s.store.Users().Stats(ctx)
	if err != nil {
		return nil, translate(err, nil, "")
	}

	return &models.Stats{JobStats: jobs, PaymentStats: payments, UserStats: users}, nil
}
