package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/freelance-marketplace/internal/ledger"
	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/pkg/apperror"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
)

// JobGroup группа переводов по работе у провайдера.
func JobGroup(jobID uuid.UUID) string {
	return "job_" + jobID.String()
}

type PaymentService struct {
	store      repository.Store
	ledger     ledger.Client
	currency   string
	timeout    time.Duration
	refreshURL string
	returnURL  string
}

func NewPaymentService(store repository.Store, client ledger.Client, currency string, timeout time.Duration) *PaymentService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentService{store: store, ledger: client, currency: currency, timeout: timeout}
}

// SetOnboardingURLs задаёт адреса возврата с анкеты провайдера.
func (s *PaymentService) SetOnboardingURLs(refreshURL, returnURL string) {
	s.refreshURL = refreshURL
	s.returnURL = returnURL
}

func upstream(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Wrap(err, apperror.ErrCodeUpstream, "платёжный провайдер не ответил вовремя")
	}
	return apperror.Wrap(err, apperror.ErrCodeUpstream, "ошибка платёжного провайдера")
}

// ConnectAccount возвращает платёжный аккаунт фрилансера, создавая его у провайдера при первом обращении.
func (s *PaymentService) ConnectAccount(ctx context.Context, actor models.Actor) (*models.ConnectedAccount, error) {
	if !actor.IsFreelancer() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "платёжный аккаунт нужен только фрилансерам")
	}

	if _, err := s.store.Users().GetByID(ctx, actor.UserID); err != nil {
		return nil, translate(err, apperror.ErrUserNotFound, "")
	}

	account, err := s.store.Accounts().GetByUserID(ctx, actor.UserID)
	switch {
	case err == nil && account.AccountID != nil:
		return account, nil
	case err != nil && !errors.Is(err, repository.ErrAccountNotFound):
		return nil, translate(err, nil, "")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	accountID, err := s.ledger.CreateAccount(callCtx)
	if err != nil {
		return nil, upstream(err)
	}

	// При гонке двух запросов сохраняется первый идентификатор.
	account, err = s.store.Accounts().SetAccountID(ctx, actor.UserID, accountID)
	if err != nil {
		return nil, translate(err, nil, "")
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":    actor.UserID,
		"account_id": *account.AccountID,
	}).Info("payment service: платёжный аккаунт подключён")
	return account, nil
}

// CreateJobPaymentIntent создаёт платёж покупателя по работе на сумму принятой ставки.
// Средства остаются на платформе до расчёта.
func (s *PaymentService) CreateJobPaymentIntent(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.PaymentIntent, error) {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return nil, translate(err, apperror.ErrJobNotFound, "")
	}
	if !job.IsOwnedBy(actor.UserID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "оплатить работу может только её покупатель")
	}

	txn, err := s.store.Transactions().GetByJobID(ctx, jobID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, apperror.New(apperror.ErrCodeConflict, "по работе ещё не принята ставка")
	}
	if err != nil {
		return nil, translate(err, nil, "")
	}
	if txn.Status != models.TransactionStatusInProcess {
		return nil, apperror.New(apperror.ErrCodeConflict, "расчёт по работе уже закрыт")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Повторный запрос с тем же ключом возвращает тот же платёж провайдера.
	intent, err := s.ledger.CreatePaymentIntent(callCtx, ledger.PaymentIntentParams{
		Amount:         txn.Amount,
		Currency:       txn.Currency,
		Group:          JobGroup(jobID),
		IdempotencyKey: "intent_" + jobID.String(),
	})
	if err != nil {
		return nil, upstream(err)
	}

	if txn.PaymentIntentID == nil {
		err := s.store.Transactions().SetPaymentIntent(ctx, txn.ID, intent.ID)
		if err != nil && !errors.Is(err, repository.ErrStaleState) {
			return nil, translate(err, nil, "")
		}
	}

	return &models.PaymentIntent{
		TransactionID: txn.ID,
		IntentID:      intent.ID,
		ClientSecret:  intent.ClientSecret,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
	}, nil
}

// Balance возвращает выплаченные провайдером средства и ожидающие расчёта на стороне приложения.
func (s *PaymentService) Balance(ctx context.Context, actor models.Actor) (*models.Balance, error) {
	if !actor.IsFreelancer() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "баланс доступен только фрилансерам")
	}

	account, err := s.store.Accounts().GetByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, translate(err, apperror.ErrAccountNotFound, "")
	}

	balance := &models.Balance{Clearance: account.PendingBalance, Currency: s.currency}
	if account.AccountID == nil {
		return balance, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	remote, err := s.ledger.RetrieveBalance(callCtx, *account.AccountID)
	if err != nil {
		return nil, upstream(err)
	}
	balance.Released = remote.Total(s.currency)
	return balance, nil
}

// connectedAccountID возвращает идентификатор аккаунта фрилансера у провайдера.
func (s *PaymentService) connectedAccountID(ctx context.Context, actor models.Actor) (string, error) {
	if !actor.IsFreelancer() {
		return "", apperror.New(apperror.ErrCodeForbidden, "платёжный аккаунт нужен только фрилансерам")
	}
	account, err := s.store.Accounts().GetByUserID(ctx, actor.UserID)
	if err != nil {
		return "", translate(err, apperror.ErrAccountNotFound, "")
	}
	if account.AccountID == nil {
		return "", apperror.ErrAccountNotFound
	}
	return *account.AccountID, nil
}

// CreateAccountLink выдаёт ссылку на онбординг подключённого аккаунта. Без
// пройденной анкеты провайдер не принимает переводы на аккаунт.
func (s *PaymentService) CreateAccountLink(ctx context.Context, actor models.Actor) (*models.OnboardingLink, error) {
	accountID, err := s.connectedAccountID(ctx, actor)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := s.ledger.CreateAccountLink(callCtx, ledger.AccountLinkParams{
		AccountID:  accountID,
		RefreshURL: s.refreshURL,
		ReturnURL:  s.returnURL,
	})
	if err != nil {
		return nil, upstream(err)
	}
	return &models.OnboardingLink{URL: link.URL, ExpiresAt: link.ExpiresAt}, nil
}

// AccountStatus читает у провайдера, готов ли аккаунт к выплатам.
func (s *PaymentService) AccountStatus(ctx context.Context, actor models.Actor) (*models.AccountStatus, error) {
	accountID, err := s.connectedAccountID(ctx, actor)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.ledger.RetrieveAccount(callCtx, accountID)
	if err != nil {
		return nil, upstream(err)
	}
	return &models.AccountStatus{
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}, nil
}
