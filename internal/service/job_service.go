package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
	"github.com/ignatzorin/freelance-marketplace/internal/validation"
)

type CreateJobInput struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Description     string            `json:"description" validate:"required,max=10000"`
	Category        string            `json:"category" validate:"required,max=100"`
	SubCategory     string            `json:"sub_category" validate:"required,max=100"`
	RequestedBudget int64             `json:"requested_budget" validate:"required,gt=0"`
	RequestedDays   int               `json:"requested_days" validate:"required,gt=0"`
	Files           []models.FileMeta `json:"files" validate:"omitempty,dive"`
	Draft           bool              `json:"draft"`
}

type DeliverJobInput struct {
	Files []models.FileMeta `json:"files" validate:"required,min=1,dive"`
	Note  string            `json:"note" validate:"max=5000"`
}

type UpdateStatusInput struct {
	Status             string `json:"status" validate:"required,oneof=completed cancelled disputed"`
	DisputeDescription string `json:"dispute_description" validate:"max=5000"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// JobQuery необязательные фильтры списка работ.
type JobQuery struct {
	Category string
	Status   string
}

type JobService struct {
	store    repository.Store
	notifier Notifier
	now      func() time.Time
}

func NewJobService(store repository.Store) *JobService {
	return &JobService{store: store, now: time.Now}
}

// SetNotifier подключает доставку событий (WebSocket хаб).
func (s *JobService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateJob размещает работу покупателем как черновик или сразу открытой.
func (s *JobService) CreateJob(ctx context.Context, actor models.Actor, in CreateJobInput) (*models.Job, error) {
	if !actor.IsBuyer() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "размещать работы могут только покупатели")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	status := models.JobStatusCreated
	if in.Draft {
		status = models.JobStatusDraft
	}

	job := &models.Job{
		ID:              uuid.New(),
		BuyerID:         actor.UserID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Category:        in.Category,
		SubCategory:     in.SubCategory,
		Files:           in.Files,
		Status:          status,
		RequestedBudget: in.RequestedBudget,
		RequestedDays:   in.RequestedDays,
	}
	if err := s.store.Jobs().Create(ctx, job); err != nil {
		return nil, translate(err, nil, "")
	}
	return job, nil
}

// GetJobs возвращает работы с учётом видимости по роли.
func (s *JobService) GetJobs(ctx context.Context, actor models.Actor, q JobQuery) ([]models.Job, error) {
	filter := repository.JobFilter{Category: q.Category}

	switch actor.Role {
	case models.RoleBuyer:
		filter.BuyerID = &actor.UserID
		if q.Status != "" {
			filter.Statuses = []string{q.Status}
		}
	case models.RoleFreelancer:
		filter.Statuses = []string{models.JobStatusCreated}
	case models.RoleAdmin:
		if q.Status != "" {
			filter.Statuses = []string{q.Status}
		}
	default:
		return nil, apperror.ErrForbidden
	}

	if q.Status != "" {
		if _, ok := models.ValidJobStatuses[q.Status]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус работы")
		}
	}

	jobs, err := s.store.Jobs().List(ctx, filter)
	if err != nil {
		return nil, translate(err, nil, "")
	}
	return jobs, nil
}

// GetJobByID возвращает работу, если она видна вызывающему.
func (s *JobService) GetJobByID(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return nil, translate(err, apperror.ErrJobNotFound, "")
	}
	if !canView(actor, job) {
		return nil, apperror.ErrJobNotFound
	}
	return job, nil
}

// canView правила видимости: покупатель видит свои работы, черновики видит
// только владелец, администратор видит всё кроме удалённых.
func canView(actor models.Actor, job *models.Job) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleBuyer:
		return job.IsOwnedBy(actor.UserID)
	case models.RoleFreelancer:
		return job.Status != models.JobStatusDraft
	}
	return false
}

// GetMyJobs возвращает назначенные фрилансеру работы со счётчиками.
func (s *JobService) GetMyJobs(ctx context.Context, actor models.Actor) (*models.FreelancerJobs, error) {
	if !actor.IsFreelancer() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "раздел доступен только фрилансерам")
	}

	jobs, err := s.store.Jobs().List(ctx, repository.JobFilter{FreelancerID: &actor.UserID})
	if err != nil {
		return nil, translate(err, nil, "")
	}
	counts, err := s.store.Jobs().CountForFreelancer(ctx, actor.UserID)
	if err != nil {
		return nil, translate(err, nil, "")
	}

	return &models.FreelancerJobs{Jobs: jobs, Counts: counts}, nil
}

// mutate загружает работу с блокировкой, применяет fn и сохраняет результат
// условным обновлением по прежнему статусу.
func (s *JobService) mutate(ctx context.Context, jobID uuid.UUID, fn func(tx repository.Repositories, job *models.Job) error) (*models.Job, error) {
	var out *models.Job

	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		job, err := tx.Jobs().GetByIDForUpdate(ctx, jobID)
		if err != nil {
			return translate(err, apperror.ErrJobNotFound, "")
		}

		prevStatus := job.Status
		if err := fn(tx, job); err != nil {
			return err
		}

		if err := tx.Jobs().Update(ctx, job, prevStatus); err != nil {
			return translate(err, apperror.ErrJobNotFound, "работа была изменена параллельно")
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PublishJob открывает черновик для ставок.
func (s *JobService) PublishJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error) {
	return s.mutate(ctx, jobID, func(_ repository.Repositories, job *models.Job) error {
		if !job.IsOwnedBy(actor.UserID) {
			return apperror.New(apperror.ErrCodeForbidden, "опубликовать работу может только её покупатель")
		}
		if job.Status != models.JobStatusDraft {
			return apperror.New(apperror.ErrCodeConflict, "опубликовать можно только черновик")
		}
		job.Status = models.JobStatusCreated
		return nil
	})
}

// DeleteJob мягко удаляет работу, пока исполнитель не назначен.
func (s *JobService) DeleteJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) error {
	return s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		job, err := tx.Jobs().GetByIDForUpdate(ctx, jobID)
		if err != nil {
			return translate(err, apperror.ErrJobNotFound, "")
		}
		if !job.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
			return apperror.New(apperror.ErrCodeForbidden, "удалить работу может только её покупатель")
		}
		if job.Status != models.JobStatusDraft && job.Status != models.JobStatusCreated {
			return apperror.New(apperror.ErrCodeConflict, "работу с назначенным исполнителем удалить нельзя")
		}
		return translate(tx.Jobs().SoftDelete(ctx, jobID, job.Status), apperror.ErrJobNotFound, "работа была изменена параллельно")
	})
}

// DeliverJob сдаёт результат работы назначенным фрилансером.
func (s *JobService) DeliverJob(ctx context.Context, actor models.Actor, jobID uuid.UUID, in DeliverJobInput) (*models.Job, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	job, err := s.mutate(ctx, jobID, func(_ repository.Repositories, job *models.Job) error {
		if !job.IsAssignedTo(actor.UserID) {
			return apperror.New(apperror.ErrCodeForbidden, "сдать работу может только назначенный фрилансер")
		}
		switch job.Status {
		case models.JobStatusCompleted, models.JobStatusDelivered, models.JobStatusCancelled, models.JobStatusDisputed:
			return apperror.New(apperror.ErrCodeConflict, "работа в статусе "+job.Status+" не может быть сдана")
		}
		if !job.CanTransitionTo(models.JobStatusDelivered) {
			return apperror.New(apperror.ErrCodeConflict, "работа ещё не в работе")
		}

		now := s.now()
		note := in.Note
		job.Status = models.JobStatusDelivered
		job.DeliveryFiles = in.Files
		job.DeliveryNote = &note
		job.DeliveredAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	notify(s.notifier, job.BuyerID, EventJobDelivered, job)
	return job, nil
}

// UpdateStatus завершает, отменяет или открывает спор по работе.
func (s *JobService) UpdateStatus(ctx context.Context, actor models.Actor, jobID uuid.UUID, in UpdateStatusInput) (*models.Job, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var guard func(tx repository.Repositories, job *models.Job) error
	switch in.Status {
	case models.JobStatusCompleted:
		guard = func(tx repository.Repositories, job *models.Job) error { return s.complete(ctx, tx, actor, job) }
	case models.JobStatusCancelled:
		guard = func(_ repository.Repositories, job *models.Job) error { return cancel(actor, job) }
	case models.JobStatusDisputed:
		guard = func(_ repository.Repositories, job *models.Job) error { return dispute(actor, job, in.DisputeDescription) }
	}

	job, err := s.mutate(ctx, jobID, guard)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"status":  job.Status,
		"user_id": actor.UserID,
	}).Info("job service: статус работы изменён")

	for _, participant := range participants(job) {
		if participant != actor.UserID {
			notify(s.notifier, participant, EventJobStatusChanged, job)
		}
	}
	return job, nil
}

// CreateDispute открывает спор по работе.
func (s *JobService) CreateDispute(ctx context.Context, actor models.Actor, jobID uuid.UUID, description string) (*models.Job, error) {
	return s.UpdateStatus(ctx, actor, jobID, UpdateStatusInput{
		Status:             models.JobStatusDisputed,
		DisputeDescription: description,
	})
}

// complete переводит работу в completed и начисляет выплату в ожидающий баланс фрилансера.
func (s *JobService) complete(ctx context.Context, tx repository.Repositories, actor models.Actor, job *models.Job) error {
	if !job.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return apperror.New(apperror.ErrCodeForbidden, "завершить работу может покупатель или администратор")
	}
	if job.IsTerminal() {
		return apperror.New(apperror.ErrCodeConflict, "работа уже завершена или отменена")
	}
	if !job.CanTransitionTo(models.JobStatusCompleted) {
		return apperror.New(apperror.ErrCodeConflict, "у работы нет исполнителя")
	}

	txn, err := tx.Transactions().GetByJobID(ctx, job.ID)
	if err != nil {
		return translate(err, apperror.New(apperror.ErrCodeInconsistency, "у работы в статусе "+job.Status+" нет расчёта"), "")
	}
	if payout := txn.Payout(); payout > 0 {
		if err := tx.Accounts().AddPendingBalance(ctx, txn.FreelancerID, payout); err != nil {
			return translate(err, nil, "")
		}
	}

	job.Status = models.JobStatusCompleted
	return nil
}

func cancel(actor models.Actor, job *models.Job) error {
	if !actor.IsAdmin() {
		return apperror.New(apperror.ErrCodeForbidden, "отменить работу может только администратор")
	}
	if job.IsTerminal() {
		return apperror.New(apperror.ErrCodeConflict, "работа уже завершена или отменена")
	}
	if !job.CanTransitionTo(models.JobStatusCancelled) {
		return apperror.New(apperror.ErrCodeConflict, "работу в статусе "+job.Status+" нельзя отменить")
	}
	job.Status = models.JobStatusCancelled
	return nil
}

func dispute(actor models.Actor, job *models.Job, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return apperror.New(apperror.ErrCodeValidation, "описание спора обязательно")
	}
	isParty := (actor.IsBuyer() && job.IsOwnedBy(actor.UserID)) ||
		(actor.IsFreelancer() && job.IsAssignedTo(actor.UserID))
	if !isParty {
		return apperror.New(apperror.ErrCodeForbidden, "открыть спор может покупатель или исполнитель работы")
	}
	if job.Status == models.JobStatusDisputed {
		return apperror.New(apperror.ErrCodeConflict, "спор по работе уже открыт")
	}
	if !job.CanTransitionTo(models.JobStatusDisputed) {
		return apperror.New(apperror.ErrCodeConflict, "по работе в статусе "+job.Status+" нельзя открыть спор")
	}
	job.Status = models.JobStatusDisputed
	job.DisputeDescription = &description
	return nil
}

// CreateReview оставляет отзыв покупателя по завершённой работе. Повторный отзыв перезаписывает прежний.
func (s *JobService) CreateReview(ctx context.Context, actor models.Actor, jobID uuid.UUID, in ReviewInput) (*models.Job, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	job, err := s.mutate(ctx, jobID, func(_ repository.Repositories, job *models.Job) error {
		if !job.IsOwnedBy(actor.UserID) {
			return apperror.New(apperror.ErrCodeForbidden, "отзыв оставляет только покупатель работы")
		}
		if job.Status != models.JobStatusCompleted {
			return apperror.New(apperror.ErrCodeConflict, "отзыв можно оставить только по завершённой работе")
		}
		rating, comment := in.Rating, in.Comment
		job.ReviewRating = &rating
		job.ReviewComment = &comment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if job.FreelancerID != nil {
		notify(s.notifier, *job.FreelancerID, EventJobReviewed, job)
	}
	return job, nil
}

func participants(job *models.Job) []uuid.UUID {
	ids := []uuid.UUID{job.BuyerID}
	if job.FreelancerID != nil {
		ids = append(ids, *job.FreelancerID)
	}
	return ids
}
