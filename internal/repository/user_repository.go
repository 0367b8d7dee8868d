package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository/common"
)

type PgUserRepository struct {
	q  common.Querier
	sb squirrel.StatementBuilderType
}

func NewUserRepository(q common.Querier) *PgUserRepository {
	return &PgUserRepository{q: q, sb: common.Builder()}
}

func (r *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := common.GetOne[models.User](ctx, r.q, r.sb.Select("id", "name", "email", "role", "is_deleted", "created_at").
		From("users").
		Where(squirrel.Eq{"id": id, "is_deleted": false}), ErrUserNotFound)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("user repository: get by id %w", err)
	}
	return user, err
}

func (r *PgUserRepository) Stats(ctx context.Context) (models.UserStats, error) {
	stats, err := common.GetOne[models.UserStats](ctx, r.q, r.sb.Select(
		"COUNT(*) AS total_users",
		"COUNT(*) FILTER (WHERE role = 'Freelancer') AS total_freelancers",
		"COUNT(*) FILTER (WHERE role = 'Buyer') AS total_buyers",
	).
		From("users").
		Where(squirrel.Eq{"is_deleted": false}), ErrUserNotFound)
	if err != nil {
		return models.UserStats{}, fmt.Errorf("user repository: stats %w", err)
	}
	return *stats, nil
}
