package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/freelance-marketplace/internal/models"
	"github.com/ignatzorin/freelance-marketplace/internal/repository/common"
)

var transactionColumns = []string{
	"id", "job_id", "buyer_id", "freelancer_id", "amount", "platform_charge", "currency",
	"status", "transfer_id", "payment_intent_id", "created_at", "updated_at",
}

var accountColumns = []string{"id", "user_id", "account_id", "pending_balance", "created_at", "updated_at"}

// chargeRowID единственная строка таблицы platform_charges.
const chargeRowID = 1

type PgTransactionRepository struct {
	q  common.Querier
	sb squirrel.StatementBuilderType
}

func NewTransactionRepository(q common.Querier) *PgTransactionRepository {
	return &PgTransactionRepository{q: q, sb: common.Builder()}
}

// Create сохраняет расчёт. На одну работу допускается только один расчёт.
func (r *PgTransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	query, args, err := r.sb.Insert("transactions").
		Columns("id", "job_id", "buyer_id", "freelancer_id", "amount", "platform_charge", "currency", "status").
		Values(txn.ID, txn.JobID, txn.BuyerID, txn.FreelancerID, txn.Amount, txn.PlatformCharge, txn.Currency, txn.Status).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("transaction repository: build create %w", err)
	}

	if err := r.q.QueryRowxContext(ctx, query, args...).Scan(&txn.CreatedAt, &txn.UpdatedAt); err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("transaction repository: create %w", err)
	}
	return nil
}

func (r *PgTransactionRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	return r.getByJob(ctx, r.sb.Select(transactionColumns...).From("transactions").Where(squirrel.Eq{"job_id": jobID}))
}

// GetByJobIDForUpdate блокирует расчёт до конца атомарной операции.
func (r *PgTransactionRepository) GetByJobIDForUpdate(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	return r.getByJob(ctx, r.sb.Select(transactionColumns...).From("transactions").Where(squirrel.Eq{"job_id": jobID}).Suffix("FOR UPDATE"))
}

func (r *PgTransactionRepository) getByJob(ctx context.Context, query squirrel.SelectBuilder) (*models.Transaction, error) {
	txn, err := common.GetOne[models.Transaction](ctx, r.q, query, ErrTransactionNotFound)
	if err != nil && !errors.Is(err, ErrTransactionNotFound) {
		return nil, fmt.Errorf("transaction repository: get by job %w", err)
	}
	return txn, err
}

// MarkCompleted закрывает расчёт, только из статуса inprocess.
func (r *PgTransactionRepository) MarkCompleted(ctx context.Context, id uuid.UUID, transferID *string) error {
	affected, err := common.Exec(ctx, r.q, r.sb.Update("transactions").
		Set("status", models.TransactionStatusCompleted).
		Set("transfer_id", transferID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": models.TransactionStatusInProcess}))
	if err != nil {
		return fmt.Errorf("transaction repository: mark completed %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

// SetPaymentIntent проставляет идентификатор платежа один раз.
func (r *PgTransactionRepository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	affected, err := common.Exec(ctx, r.q, r.sb.Update("transactions").
		Set("payment_intent_id", intentID).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "payment_intent_id": nil}))
	if err != nil {
		return fmt.Errorf("transaction repository: set payment intent %w", err)
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *PgTransactionRepository) Totals(ctx context.Context) (models.PaymentStats, error) {
	stats, err := common.GetOne[models.PaymentStats](ctx, r.q, r.sb.Select(
		"COALESCE(SUM(platform_charge), 0) AS total_earnings",
		"COALESCE(SUM(amount), 0) AS total_transactions",
	).From("transactions"), ErrTransactionNotFound)
	if err != nil {
		return models.PaymentStats{}, fmt.Errorf("transaction repository: totals %w", err)
	}
	return *stats, nil
}

type PgChargeRepository struct {
	q  common.Querier
	sb squirrel.StatementBuilderType
}

func NewChargeRepository(q common.Querier) *PgChargeRepository {
	return &PgChargeRepository{q: q, sb: common.Builder()}
}

func (r *PgChargeRepository) Get(ctx context.Context) (*models.PlatformCharge, error) {
	charge, err := common.GetOne[models.PlatformCharge](ctx, r.q, r.sb.Select("rate", "updated_at").
		From("platform_charges").
		Where(squirrel.Eq{"id": chargeRowID}), ErrChargeNotFound)
	if err != nil && !errors.Is(err, ErrChargeNotFound) {
		return nil, fmt.Errorf("charge repository: get %w", err)
	}
	return charge, err
}

func (r *PgChargeRepository) Upsert(ctx context.Context, rate decimal.Decimal) (*models.PlatformCharge, error) {
	query, args, err := r.sb.Insert("platform_charges").
		Columns("id", "rate").
		Values(chargeRowID, rate).
		Suffix("ON CONFLICT (id) DO UPDATE SET rate = EXCLUDED.rate, updated_at = NOW() RETURNING rate, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("charge repository: build upsert %w", err)
	}

	var charge models.PlatformCharge
	if err := r.q.GetContext(ctx, &charge, query, args...); err != nil {
		return nil, fmt.Errorf("charge repository: upsert %w", err)
	}
	return &charge, nil
}

type PgAccountRepository struct {
	q  common.Querier
	sb squirrel.StatementBuilderType
}

func NewAccountRepository(q common.Querier) *PgAccountRepository {
	return &PgAccountRepository{q: q, sb: common.Builder()}
}

func (r *PgAccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.ConnectedAccount, error) {
	account, err := common.GetOne[models.ConnectedAccount](ctx, r.q, r.sb.Select(accountColumns...).
		From("connected_accounts").
		Where(squirrel.Eq{"user_id": userID}), ErrAccountNotFound)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("account repository: get by user %w", err)
	}
	return account, err
}

// SetAccountID не перезаписывает уже выданный провайдером идентификатор.
func (r *PgAccountRepository) SetAccountID(ctx context.Context, userID uuid.UUID, accountID string) (*models.ConnectedAccount, error) {
	query, args, err := r.sb.Insert("connected_accounts").
		Columns("id", "user_id", "account_id").
		Values(uuid.New(), userID, accountID).
		Suffix(`ON CONFLICT (user_id) DO UPDATE
			SET account_id = COALESCE(connected_accounts.account_id, EXCLUDED.account_id), updated_at = NOW()
			RETURNING id, user_id, account_id, pending_balance, created_at, updated_at`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("account repository: build set account %w", err)
	}

	var account models.ConnectedAccount
	if err := r.q.GetContext(ctx, &account, query, args...); err != nil {
		return nil, fmt.Errorf("account repository: set account %w", err)
	}
	return &account, nil
}

// AddPendingBalance меняет баланс на стороне приложения, создавая запись при необходимости.
func (r *PgAccountRepository) AddPendingBalance(ctx context.Context, userID uuid.UUID, delta int64) error {
	_, err := common.Exec(ctx, r.q, r.sb.Insert("connected_accounts").
		Columns("id", "user_id", "pending_balance").
		Values(uuid.New(), userID, delta).
		Suffix(`ON CONFLICT (user_id) DO UPDATE
			SET pending_balance = connected_accounts.pending_balance + EXCLUDED.pending_balance, updated_at = NOW()`))
	if err != nil {
		return fmt.Errorf("account repository: add pending balance %w", err)
	}
	return nil
}
