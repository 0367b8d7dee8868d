package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
)

var (
	ErrJobNotFound          = errors.New("job not found")
	ErrBidNotFound          = errors.New("bid not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrChargeNotFound       = errors.New("platform charge not found")
	ErrAccountNotFound      = errors.New("connected account not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateBid         = errors.New("bid already exists for job and freelancer")
	ErrDuplicateTransaction = errors.New("transaction already exists for job")
	// ErrStaleState возвращается условными обновлениями, когда запись уже в другом статусе.
	ErrStaleState = errors.New("entity state changed concurrently")
)

// JobFilter фильтр выборки работ. Удалённые работы не возвращаются никогда.
type JobFilter struct {
	BuyerID         *uuid.UUID
	FreelancerID    *uuid.UUID
	Statuses        []string
	ExcludeStatuses []string
	Category        string
}

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// GetByIDForUpdate блокирует строку до конца атомарной операции.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, filter JobFilter) ([]models.Job, error)
	// ListSettleable возвращает завершённые работы, обновлённые не позже before.
	ListSettleable(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	// Update сохраняет изменяемые поля, если статус в базе всё ещё expectedStatus.
	Update(ctx context.Context, job *models.Job, expectedStatus string) error
	// Assign переводит работу created -> inprogress с фиксацией бюджета и сроков.
	Assign(ctx context.Context, id, freelancerID uuid.UUID, budget int64, days int) error
	SoftDelete(ctx context.Context, id uuid.UUID, expectedStatus string) error
	CountForFreelancer(ctx context.Context, freelancerID uuid.UUID) (models.JobCounts, error)
	Stats(ctx context.Context) (models.JobStats, error)
}

type BidRepository interface {
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	Exists(ctx context.Context, jobID, freelancerID uuid.UUID) (bool, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Bid, error)
	ListByFreelancer(ctx context.Context, freelancerID uuid.UUID) ([]models.Bid, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	// RejectSiblings отклоняет ожидающие ставки работы кроме exceptID и возвращает их авторов.
	RejectSiblings(ctx context.Context, jobID, exceptID uuid.UUID) ([]uuid.UUID, error)
	// Delete удаляет ставку, если она не принята.
	Delete(ctx context.Context, id uuid.UUID) error
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error)
	GetByJobIDForUpdate(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, transferID *string) error
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	Totals(ctx context.Context) (models.PaymentStats, error)
}

type ChargeRepository interface {
	Get(ctx context.Context) (*models.PlatformCharge, error)
	Upsert(ctx context.Context, rate decimal.Decimal) (*models.PlatformCharge, error)
}

type AccountRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ConnectedAccount, error)
	// SetAccountID создаёт запись или проставляет идентификатор провайдера, если его ещё нет.
	SetAccountID(ctx context.Context, userID uuid.UUID, accountID string) (*models.ConnectedAccount, error)
	AddPendingBalance(ctx context.Context, userID uuid.UUID, delta int64) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Stats(ctx context.Context) (models.UserStats, error)
}

// Repositories набор репозиториев, работающих в одном контексте выполнения.
type Repositories interface {
	Jobs() JobRepository
	Bids() BidRepository
	Transactions() TransactionRepository
	Charges() ChargeRepository
	Accounts() AccountRepository
	Users() UserRepository
}

// Store хранилище сущностей. RunAtomic выполняет fn целиком или не выполняет ничего,
// изолированно от других атомарных операций над теми же сущностями.
type Store interface {
	Repositories
	RunAtomic(ctx context.Context, fn func(tx Repositories) error) error
}
