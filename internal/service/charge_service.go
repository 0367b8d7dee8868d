package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// PlatformChargeFor считает снимок platformCharge = amount - amount*rate/100
// в минимальных единицах валюты с округлением половины вверх.
func PlatformChargeFor(amount int64, rate decimal.Decimal) int64 {
	base := decimal.NewFromInt(amount)
	cut := base.Mul(rate).Div(hundred)
	return base.Sub(cut).Round(0).IntPart()
}

// rateOrDefault читает текущую ставку; отсутствие записи означает 0%.
func rateOrDefault(ctx context.Context, repo repository.ChargeRepository) (decimal.Decimal, error) {
	charge, err := repo.Get(ctx)
	if errors.Is(err, repository.ErrChargeNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return charge.Rate, nil
}

type ChargeService struct {
	charges repository.ChargeRepository
}

func NewChargeService(charges repository.ChargeRepository) *ChargeService {
	return &ChargeService{charges: charges}
}

// GetCharge никогда не падает из-за отсутствия настройки.
func (s *ChargeService) GetCharge(ctx context.Context) (*models.PlatformCharge, error) {
	charge, err := s.charges.Get(ctx)
	if errors.Is(err, repository.ErrChargeNotFound) {
		return &models.PlatformCharge{Rate: decimal.Zero}, nil
	}
	if err != nil {
		return nil, translate(err, nil, "")
	}
	return charge, nil
}

// UpdateCharge создаёт или обновляет процент комиссии.
func (s *ChargeService) UpdateCharge(ctx context.Context, actor models.Actor, rate decimal.Decimal) (*models.PlatformCharge, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return nil, apperror.New(apperror.ErrCodeValidation, "процент комиссии должен быть от 0 до 100")
	}
	if !rate.Equal(rate.Round(2)) {
		return nil, apperror.New(apperror.ErrCodeValidation, "процент комиссии допускает не более двух знаков после запятой")
	}

	charge, err := s.charges.Upsert(ctx, rate)
	if err != nil {
		return nil, translate(err, nil, "")
	}

	logger.Log.WithField("rate", rate.String()).Info("charge service: комиссия платформы обновлена")
	return charge, nil
}
