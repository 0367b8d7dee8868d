package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
	"github.com/ignatzorin/freelance-marketplace/internal/validation"
)

// CreateBidInput параметры новой ставки. Суммы в минимальных единицах валюты.
type CreateBidInput struct {
	Budget      int64  `json:"budget" validate:"required,gt=0"`
	Days        int    `json:"days" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=5000"`
}

type BidService struct {
	store    repository.Store
	currency string
	notifier Notifier
}

func NewBidService(store repository.Store, currency string) *BidService {
	return &BidService{store: store, currency: currency}
}

// SetNotifier подключает доставку событий (WebSocket хаб).
func (s *BidService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateBid создаёт ставку фрилансера на открытую работу.
func (s *BidService) CreateBid(ctx context.Context, actor models.Actor, jobID uuid.UUID, in CreateBidInput) (*models.Bid, error) {
	if !actor.IsFreelancer() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "ставки могут делать только фрилансеры")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var (
		job *models.Job
		bid *models.Bid
	)
	// Строка работы блокируется так же, как при принятии ставки: ставка не
	// появится на работе, которую уже взяли в работу.
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		var err error
		job, err = tx.Jobs().GetByIDForUpdate(ctx, jobID)
		if err != nil {
			return translate(err, apperror.ErrJobNotFound, "")
		}
		if job.Status != models.JobStatusCreated {
			return apperror.New(apperror.ErrCodeConflict, "работа не принимает ставки")
		}

		exists, err := tx.Bids().Exists(ctx, jobID, actor.UserID)
		if err != nil {
			return translate(err, nil, "")
		}
		if exists {
			return apperror.New(apperror.ErrCodeConflict, "вы уже сделали ставку на эту работу")
		}

		bid = &models.Bid{
			ID:           uuid.New(),
			JobID:        jobID,
			FreelancerID: actor.UserID,
			Status:       models.BidStatusPending,
			Budget:       in.Budget,
			Days:         in.Days,
			Description:  in.Description,
		}
		// Уникальный индекс закрывает гонку двух ставок одного фрилансера.
		if err := tx.Bids().Create(ctx, bid); err != nil {
			return translate(err, nil, "вы уже сделали ставку на эту работу")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	notify(s.notifier, job.BuyerID, EventBidCreated, bid)
	return bid, nil
}

// DeleteBid удаляет ставку её автором, пока она не принята.
func (s *BidService) DeleteBid(ctx context.Context, actor models.Actor, bidID uuid.UUID) error {
	bid, err := s.store.Bids().GetByID(ctx, bidID)
	if err != nil {
		return translate(err, apperror.ErrBidNotFound, "")
	}
	if bid.FreelancerID != actor.UserID {
		return apperror.New(apperror.ErrCodeForbidden, "удалить ставку может только её автор")
	}
	if bid.Status == models.BidStatusAccepted {
		return apperror.New(apperror.ErrCodeConflict, "принятую ставку нельзя удалить")
	}

	if err := s.store.Bids().Delete(ctx, bidID); err != nil {
		return translate(err, apperror.ErrBidNotFound, "принятую ставку нельзя удалить")
	}
	return nil
}

// DecideBid принимает или отклоняет ставку покупателем работы.
func (s *BidService) DecideBid(ctx context.Context, actor models.Actor, bidID uuid.UUID, decision string) (*models.Bid, error) {
	if _, ok := models.ValidBidDecisions[decision]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "решение должно быть accepted или rejected")
	}

	var (
		result   *models.Bid
		job      *models.Job
		rejected []uuid.UUID
	)

	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		bid, err := tx.Bids().GetByID(ctx, bidID)
		if err != nil {
			return translate(err, apperror.ErrBidNotFound, "")
		}

		// Блокировка строки работы сериализует конкурентные принятия ставок одной работы.
		job, err = tx.Jobs().GetByIDForUpdate(ctx, bid.JobID)
		if err != nil {
			return translate(err, apperror.ErrJobNotFound, "")
		}
		if !job.IsOwnedBy(actor.UserID) {
			return apperror.New(apperror.ErrCodeForbidden, "решение по ставке принимает только покупатель работы")
		}
		if bid.Status != models.BidStatusPending {
			return apperror.New(apperror.ErrCodeConflict, "по ставке уже принято решение")
		}

		if decision == models.BidStatusRejected {
			if err := tx.Bids().UpdateStatus(ctx, bid.ID, models.BidStatusPending, models.BidStatusRejected); err != nil {
				return translate(err, apperror.ErrBidNotFound, "по ставке уже принято решение")
			}
			bid.Status = models.BidStatusRejected
			result = bid
			return nil
		}

		rejected, err = s.accept(ctx, tx, job, bid)
		if err != nil {
			return err
		}
		bid.Status = models.BidStatusAccepted
		result = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	if decision == models.BidStatusAccepted {
		logger.Log.WithFields(logrus.Fields{
			"job_id":        job.ID,
			"bid_id":        result.ID,
			"freelancer_id": result.FreelancerID,
			"budget":        result.Budget,
		}).Info("bid service: ставка принята")
		notify(s.notifier, result.FreelancerID, EventBidAccepted, result)
		for _, freelancerID := range rejected {
			notify(s.notifier, freelancerID, EventBidRejected, map[string]any{"job_id": job.ID})
		}
	} else {
		notify(s.notifier, result.FreelancerID, EventBidRejected, map[string]any{"job_id": job.ID, "bid_id": result.ID})
	}

	return result, nil
}

// accept выполняет принятие ставки внутри атомарной операции: отклоняет остальные
// ставки работы, фиксирует расчёт по текущей комиссии и переводит работу в inprogress.
func (s *BidService) accept(ctx context.Context, tx repository.Repositories, job *models.Job, bid *models.Bid) ([]uuid.UUID, error) {
	if job.Status != models.JobStatusCreated {
		return nil, apperror.New(apperror.ErrCodeConflict, "по работе уже принята ставка")
	}

	rejected, err := tx.Bids().RejectSiblings(ctx, job.ID, bid.ID)
	if err != nil {
		return nil, acceptFailed(err)
	}

	rate, err := rateOrDefault(ctx, tx.Charges())
	if err != nil {
		return nil, acceptFailed(err)
	}

	txn := &models.Transaction{
		ID:             uuid.New(),
		JobID:          job.ID,
		BuyerID:        job.BuyerID,
		FreelancerID:   bid.FreelancerID,
		Amount:         bid.Budget,
		PlatformCharge: PlatformChargeFor(bid.Budget, rate),
		Currency:       s.currency,
		Status:         models.TransactionStatusInProcess,
	}
	if err := tx.Transactions().Create(ctx, txn); err != nil {
		return nil, acceptFailed(err)
	}

	if err := tx.Bids().UpdateStatus(ctx, bid.ID, models.BidStatusPending, models.BidStatusAccepted); err != nil {
		return nil, acceptFailed(err)
	}

	if err := tx.Jobs().Assign(ctx, job.ID, bid.FreelancerID, bid.Budget, bid.Days); err != nil {
		return nil, acceptFailed(err)
	}

	return rejected, nil
}

// acceptFailed любая ошибка записи при принятии ставки отменяет операцию целиком.
func acceptFailed(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Wrap(err, apperror.ErrCodeConflict, "не удалось принять ставку")
}

// ListForJob возвращает ставки работы её покупателю или администратору.
func (s *BidService) ListForJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Bid, error) {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return nil, translate(err, apperror.ErrJobNotFound, "")
	}
	if !job.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "ставки видит только покупатель работы")
	}

	bids, err := s.store.Bids().ListByJob(ctx, jobID)
	if err != nil {
		return nil, translate(err, nil, "")
	}
	return bids, nil
}

// ListMine возвращает ставки текущего фрилансера.
func (s *BidService) ListMine(ctx context.Context, actor models.Actor) ([]models.Bid, error) {
	if !actor.IsFreelancer() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "список ставок доступен только фрилансерам")
	}

	bids, err := s.store.Bids().ListByFreelancer(ctx, actor.UserID)
	if err != nil {
		return nil, translate(err, nil, "")
	}
	return bids, nil
}
