// Package settlement выплачивает фрилансерам деньги по завершённым работам
// после периода ожидания.
package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-marketplace/internal/goroutine"
	"github.com/ignatzorin/freelance-marketplace/internal/ledger"
	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
)

// ErrRunInProgress прогон уже идёт в этом процессе или на другой реплике.
var ErrRunInProgress = apperror.New(apperror.ErrCodeConflict, "расчёт уже выполняется")

type Config struct {
	Interval        time.Duration
	Cooldown        time.Duration
	TransferTimeout time.Duration
	Currency        string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 72 * time.Hour
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = 30 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	return c
}

// Report итог одного прогона.
type Report struct {
	Scanned int `json:"scanned"`
	Settled int `json:"settled"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type outcome int

const (
	outcomeSettled outcome = iota
	outcomeSkipped
)

type Option func(*Scheduler)

// WithLocker включает распределённую блокировку прогона.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithNotifier(n service.Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

type Scheduler struct {
	store    repository.Store
	ledger   ledger.Client
	cfg      Config
	locker   Locker
	notifier service.Notifier
	now      func() time.Time
	running  sync.Mutex
}

func NewScheduler(store repository.Store, client ledger.Client, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		ledger: client,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start запускает прогоны по таймеру до отмены ctx.
func (s *Scheduler) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		logger.Log.WithField("interval", s.cfg.Interval.String()).Info("settlement: планировщик запущен")
		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("settlement: планировщик остановлен")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
					logger.Log.WithError(err).Error("settlement: прогон не выполнен")
				}
			}
		}
	})
}

// RunOnce выполняет один прогон. Каждая работа рассчитывается в своей атомарной
// операции, ошибка по одной работе не останавливает остальные.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	if !s.running.TryLock() {
		return report, ErrRunInProgress
	}
	defer s.running.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx)
		if err != nil {
			return report, err
		}
		if !ok {
			return report, ErrRunInProgress
		}
		defer release()
	}

	jobIDs, err := s.store.Jobs().ListSettleable(ctx, s.now().Add(-s.cfg.Cooldown))
	if err != nil {
		return report, err
	}
	report.Scanned = len(jobIDs)

	for _, jobID := range jobIDs {
		if ctx.Err() != nil {
			break
		}

		var result outcome
		err := goroutine.Recover(func() error {
			var err error
			result, err = s.settle(ctx, jobID)
			return err
		})

		switch {
		case err != nil:
			report.Failed++
			logger.Log.WithFields(logrus.Fields{
				"job_id": jobID,
				"code":   apperror.CodeOf(err),
				"error":  err.Error(),
			}).Error("settlement: расчёт по работе не выполнен")
		case result == outcomeSkipped:
			report.Skipped++
		default:
			report.Settled++
		}
	}

	logger.Log.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"settled": report.Settled,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("settlement: прогон завершён")
	return report, nil
}

// payoutPlan снимок расчёта, прочитанный под блокировкой перед переводом.
type payoutPlan struct {
	txn         *models.Transaction
	payout      int64
	destination string
}

// settle переводит выплату по одной работе и закрывает её расчёт. Вызов
// провайдера выполняется вне атомарной операции: блокировки хранилища не
// держатся на время сетевого запроса. Повтор перевода безопасен за счёт
// ключа идемпотентности.
func (s *Scheduler) settle(ctx context.Context, jobID uuid.UUID) (outcome, error) {
	plan, err := s.plan(ctx, jobID)
	if err != nil || plan == nil {
		return outcomeSkipped, err
	}

	var transferID *string
	if plan.payout > 0 {
		id, err := s.transfer(ctx, plan)
		if err != nil {
			return outcomeSkipped, err
		}
		transferID = &id
	}

	settled, err := s.commit(ctx, plan, transferID)
	if err != nil || settled == nil {
		return outcomeSkipped, err
	}

	logger.Log.WithFields(logrus.Fields{
		"job_id":        jobID,
		"freelancer_id": settled.FreelancerID,
		"payout":        settled.Payout(),
	}).Info("settlement: выплата выполнена")
	if s.notifier != nil {
		if err := s.notifier.BroadcastToUser(settled.FreelancerID, service.EventJobSettled, settled); err != nil {
			logger.Log.WithError(err).Warn("settlement: не удалось отправить уведомление")
		}
	}
	return outcomeSettled, nil
}

// plan читает расчёт и аккаунт получателя. nil без ошибки означает, что
// работа уже рассчитана или расчёт помечен failed.
func (s *Scheduler) plan(ctx context.Context, jobID uuid.UUID) (*payoutPlan, error) {
	var plan *payoutPlan
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		txn, err := tx.Transactions().GetByJobIDForUpdate(ctx, jobID)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return apperror.Wrap(err, apperror.ErrCodeInconsistency, "у завершённой работы нет расчёта")
		}
		if err != nil {
			return err
		}
		if skip(jobID, txn) {
			return nil
		}

		p := &payoutPlan{txn: txn, payout: txn.Payout()}
		if p.payout > 0 {
			account, err := tx.Accounts().GetByUserID(ctx, txn.FreelancerID)
			if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
				return err
			}
			if account == nil || account.AccountID == nil {
				return apperror.New(apperror.ErrCodeConflict, "у фрилансера не подключён платёжный аккаунт")
			}
			p.destination = *account.AccountID
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// commit повторно блокирует расчёт и закрывает его, если за время перевода его
// не закрыл другой прогон.
func (s *Scheduler) commit(ctx context.Context, plan *payoutPlan, transferID *string) (*models.Transaction, error) {
	var settled *models.Transaction
	err := s.store.RunAtomic(ctx, func(tx repository.Repositories) error {
		txn, err := tx.Transactions().GetByJobIDForUpdate(ctx, plan.txn.JobID)
		if err != nil {
			return err
		}
		if skip(plan.txn.JobID, txn) {
			return nil
		}

		if plan.payout > 0 {
			if err := tx.Accounts().AddPendingBalance(ctx, txn.FreelancerID, -plan.payout); err != nil {
				return err
			}
		}
		if err := tx.Transactions().MarkCompleted(ctx, txn.ID, transferID); err != nil {
			return err
		}

		txn.Status = models.TransactionStatusCompleted
		txn.TransferID = transferID
		settled = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func skip(jobID uuid.UUID, txn *models.Transaction) bool {
	switch txn.Status {
	case models.TransactionStatusCompleted:
		return true
	case models.TransactionStatusFailed:
		logger.Log.WithField("job_id", jobID).Warn("settlement: расчёт в статусе failed, пропуск")
		return true
	}
	return false
}

func (s *Scheduler) transfer(ctx context.Context, plan *payoutPlan) (string, error) {
	currency := plan.txn.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
	defer cancel()

	transferID, err := s.ledger.CreateTransfer(callCtx, ledger.TransferParams{
		Amount:         plan.payout,
		Currency:       currency,
		Destination:    plan.destination,
		Group:          service.JobGroup(plan.txn.JobID),
		IdempotencyKey: "settle_" + plan.txn.JobID.String(),
	})
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeUpstream, "перевод фрилансеру не выполнен")
	}
	return transferID, nil
}
