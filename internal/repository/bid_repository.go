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

var bidColumns = []string{"id", "job_id", "freelancer_id", "status", "budget", "days", "description", "created_at", "updated_at"}

type PgBidRepository struct {
	q  common.Querier
	sb squirrel.StatementBuilderType
}

func NewBidRepository(q common.Querier) *PgBidRepository {
	return &PgBidRepository{q: q, sb: common.Builder()}
}

// Create сохраняет ставку. Повторная ставка на ту же работу отсекается уникальным индексом.
func (r *PgBidRepository) Create(ctx context.Context, bid *models.Bid) error {
	query, args, err := r.sb.Insert("bids").
		Columns("id", "job_id", "freelancer_id", "status", "budget", "days", "description").
		Values(bid.ID, bid.JobID, bid.FreelancerID, bid.Status, bid.Budget, bid.Days, bid.Description).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("bid repository: build create %w", err)
	}

	if err := r.q.QueryRowxContext(ctx, query, args...).Scan(&bid.CreatedAt, &bid.UpdatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicateBid
		}
		return fmt.Errorf("bid repository: create %w", err)
	}
	return nil
}

func (r *PgBidRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, err := common.GetOne[models.Bid](ctx, r.q, r.sb.Select(bidColumns...).From("bids").Where(squirrel.Eq{"id": id}), ErrBidNotFound)
	if err != nil && !errors.Is(err, ErrBidNotFound) {
		return nil, fmt.Errorf("bid repository: get by id %w", err)
	}
	return bid, err
}

func (r *PgBidRepository) Exists(ctx context.Context, jobID, freelancerID uuid.UUID) (bool, error) {
	query, args, err := r.sb.Select("1").
		Prefix("SELECT EXISTS (").
		From("bids").
		Where(squirrel.Eq{"job_id": jobID, "freelancer_id": freelancerID}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("bid repository: build exists %w", err)
	}

	var exists bool
	if err := r.q.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("bid repository: exists %w", err)
	}
	return exists, nil
}

func (r *PgBidRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Bid, error) {
	bids, err := common.SelectAll[models.Bid](ctx, r.q, r.sb.Select(bidColumns...).
		From("bids").
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("created_at"))
	if err != nil {
		return nil, fmt.Errorf("bid repository: list by job %w", err)
	}
	return bids, nil
}

// ListByFreelancer возвращает ставки фрилансера только по не удалённым работам.
func (r *PgBidRepository) ListByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Bid, error) {
	bids, err := common.SelectAll[models.Bid](ctx, r.q, r.sb.Select("b.id", "b.job_id", "b.freelancer_id", "b.status", "b.budget", "b.days", "b.description", "b.created_at", "b.updated_at").
		From("bids b").
		Join("jobs j ON j.id = b.job_id").
		Where(squirrel.Eq{"b.freelancer_id": freelancerID}).
		Where(notDeleted("j")).
		OrderBy("b.created_at DESC"))
	if err != nil {
		return nil, fmt.Errorf("bid repository: list by freelancer %w", err)
	}
	return bids, nil
}

// UpdateStatus меняет статус ставки только из статуса from.
func (r *PgBidRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	affected, err := common.Exec(ctx, r.q, r.sb.Update("bids").
		Set("status", to).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": from}))
	if err != nil {
		return fmt.Errorf("bid repository: update status %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *PgBidRepository) RejectSiblings(ctx context.Context, jobID, exceptID uuid.UUID) ([]uuid.UUID, error) {
	query, args, err := r.sb.Update("bids").
		Set("status", models.BidStatusRejected).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"job_id": jobID, "status": models.BidStatusPending}).
		Where(squirrel.NotEq{"id": exceptID}).
		Suffix("RETURNING freelancer_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("bid repository: build reject siblings %w", err)
	}

	freelancers := make([]uuid.UUID, 0)
	if err := r.q.SelectContext(ctx, &freelancers, query, args...); err != nil {
		return nil, fmt.Errorf("bid repository: reject siblings %w", err)
	}
	return freelancers, nil
}

func (r *PgBidRepository) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := common.Exec(ctx, r.q, r.sb.Delete("bids").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.NotEq{"status": models.BidStatusAccepted}))
	if err != nil {
		return fmt.Errorf("bid repository: delete %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}
