package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository/common"
)

var jobColumns = []string{
	"id", "buyer_id", "freelancer_id", "title", "description", "category", "sub_category",
	"files", "status", "requested_budget", "requested_days", "budget", "days",
	"delivery_files", "delivery_note", "delivered_at", "review_rating", "review_comment",
	"dispute_description", "is_deleted", "created_at", "updated_at",
}

type PgJobRepository struct {
	q  common.Querier
	sb squirrel.StatementBuilderType
}

func NewJobRepository(q common.Querier) *PgJobRepository {
	return &PgJobRepository{q: q, sb: common.Builder()}
}

// prefixed возвращает колонки работ с алиасом таблицы.
func prefixed(alias string) []string {
	cols := make([]string, len(jobColumns))
	for i, c := range jobColumns {
		cols[i] = alias + "." + c
	}
	return cols
}

// notDeleted обязательный предикат любого чтения работ.
func notDeleted(alias string) squirrel.Eq {
	if alias == "" {
		return squirrel.Eq{"is_deleted": false}
	}
	return squirrel.Eq{alias + ".is_deleted": false}
}

func (r *PgJobRepository) selectWithBids() squirrel.SelectBuilder {
	return r.sb.Select(prefixed("j")...).
		Column("(SELECT COUNT(*) FROM bids b WHERE b.job_id = j.id) AS bids_count").
		From("jobs j").
		Where(notDeleted("j"))
}

// Create сохраняет новую работу.
func (r *PgJobRepository) Create(ctx context.Context, job *models.Job) error {
	query, args, err := r.sb.Insert("jobs").
		Columns("id", "buyer_id", "title", "description", "category", "sub_category",
			"files", "status", "requested_budget", "requested_days").
		Values(job.ID, job.BuyerID, job.Title, job.Description, job.Category, job.SubCategory,
			job.Files, job.Status, job.RequestedBudget, job.RequestedDays).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("job repository: build create %w", err)
	}

	if err := r.q.QueryRowxContext(ctx, query, args...).Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("job repository: create %w", err)
	}
	return nil
}

// GetByID возвращает работу вместе с количеством ставок.
func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := common.GetOne[models.Job](ctx, r.q, r.selectWithBids().Where(squirrel.Eq{"j.id": id}), ErrJobNotFound)
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return nil, fmt.Errorf("job repository: get by id %w", err)
	}
	return job, err
}

// GetByIDForUpdate читает работу с блокировкой строки.
func (r *PgJobRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := r.sb.Select(jobColumns...).
		From("jobs").
		Where(squirrel.Eq{"id": id}).
		Where(notDeleted("")).
		Suffix("FOR UPDATE")

	job, err := common.GetOne[models.Job](ctx, r.q, query, ErrJobNotFound)
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return nil, fmt.Errorf("job repository: get for update %w", err)
	}
	return job, err
}

// List возвращает работы по фильтру, новые первыми.
func (r *PgJobRepository) List(ctx context.Context, f JobFilter) ([]models.Job, error) {
	query := r.selectWithBids().OrderBy("j.created_at DESC")

	if f.BuyerID != nil {
		query = query.Where(squirrel.Eq{"j.buyer_id": *f.BuyerID})
	}
	if f.FreelancerID != nil {
		query = query.Where(squirrel.Eq{"j.freelancer_id": *f.FreelancerID})
	}
	if len(f.Statuses) > 0 {
		query = query.Where(squirrel.Eq{"j.status": f.Statuses})
	}
	if len(f.ExcludeStatuses) > 0 {
		query = query.Where(squirrel.Expr("j.status <> ALL(?)", pq.Array(f.ExcludeStatuses)))
	}
	if f.Category != "" {
		query = query.Where(squirrel.Eq{"j.category": f.Category})
	}

	jobs, err := common.SelectAll[models.Job](ctx, r.q, query)
	if err != nil {
		return nil, fmt.Errorf("job repository: list %w", err)
	}
	return jobs, nil
}

// ListSettleable возвращает id завершённых работ, готовых к выплате.
func (r *PgJobRepository) ListSettleable(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	query := r.sb.Select("id").
		From("jobs").
		Where(squirrel.Eq{"status": models.JobStatusCompleted}).
		Where(notDeleted("")).
		Where(squirrel.LtOrEq{"updated_at": before}).
		OrderBy("updated_at")

	ids, err := common.SelectAll[uuid.UUID](ctx, r.q, query)
	if err != nil {
		return nil, fmt.Errorf("job repository: list settleable %w", err)
	}
	return ids, nil
}

// Update сохраняет изменяемые поля работы при совпадении статуса.
func (r *PgJobRepository) Update(ctx context.Context, job *models.Job, expectedStatus string) error {
	query, args, err := r.sb.Update("jobs").
		SetMap(map[string]interface{}{
			"status":              job.Status,
			"delivery_files":      job.DeliveryFiles,
			"delivery_note":       job.DeliveryNote,
			"delivered_at":        job.DeliveredAt,
			"review_rating":       job.ReviewRating,
			"review_comment":      job.ReviewComment,
			"dispute_description": job.DisputeDescription,
			"updated_at":          squirrel.Expr("NOW()"),
		}).
		Where(squirrel.Eq{"id": job.ID, "status": expectedStatus}).
		Where(notDeleted("")).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("job repository: build update %w", err)
	}

	if err := r.q.QueryRowxContext(ctx, query, args...).Scan(&job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleState
		}
		return fmt.Errorf("job repository: update %w", err)
	}
	return nil
}

// Assign назначает фрилансера и фиксирует бюджет, только из статуса created.
func (r *PgJobRepository) Assign(ctx context.Context, id, freelancerID uuid.UUID, budget int64, days int) error {
	affected, err := common.Exec(ctx, r.q, r.sb.Update("jobs").
		Set("status", models.JobStatusInProgress).
		Set("freelancer_id", freelancerID).
		Set("budget", budget).
		Set("days", days).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": models.JobStatusCreated}).
		Where(notDeleted("")))
	if err != nil {
		return fmt.Errorf("job repository: assign %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

// SoftDelete помечает работу удалённой.
func (r *PgJobRepository) SoftDelete(ctx context.Context, id uuid.UUID, expectedStatus string) error {
	affected, err := common.Exec(ctx, r.q, r.sb.Update("jobs").
		Set("is_deleted", true).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": expectedStatus}).
		Where(notDeleted("")))
	if err != nil {
		return fmt.Errorf("job repository: soft delete %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

// CountForFreelancer считает работы фрилансера по статусам.
func (r *PgJobRepository) CountForFreelancer(ctx context.Context, freelancerID uuid.UUID) (models.JobCounts, error) {
	query := r.sb.Select(
		"COUNT(*) FILTER (WHERE status = 'completed') AS completed",
		"COUNT(*) FILTER (WHERE status = 'inprogress') AS inprogress",
		"COUNT(*) FILTER (WHERE status = 'delivered') AS delivered",
	).
		From("jobs").
		Where(squirrel.Eq{"freelancer_id": freelancerID}).
		Where(notDeleted(""))

	counts, err := common.GetOne[models.JobCounts](ctx, r.q, query, ErrJobNotFound)
	if err != nil {
		return models.JobCounts{}, fmt.Errorf("job repository: count for freelancer %w", err)
	}
	return *counts, nil
}

// Stats агрегаты по работам для админки.
func (r *PgJobRepository) Stats(ctx context.Context) (models.JobStats, error) {
	query := r.sb.Select(
		"COUNT(*) AS total_jobs",
		"COUNT(*) FILTER (WHERE status = 'completed') AS completed_jobs",
		"COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled_jobs",
		"COUNT(*) FILTER (WHERE status = 'disputed') AS disputed_jobs",
	).
		From("jobs").
		Where(notDeleted(""))

	stats, err := common.GetOne[models.JobStats](ctx, r.q, query, ErrJobNotFound)
	if err != nil {
		return models.JobStats{}, fmt.Errorf("job repository: stats %w", err)
	}
	return *stats, nil
}
