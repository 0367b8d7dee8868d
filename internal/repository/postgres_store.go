package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/freelance-marketplace/internal/repository/common"
)

var (
	_ JobRepository         = (*PgJobRepository)(nil)
	_ BidRepository         = (*PgBidRepository)(nil)
	_ TransactionRepository = (*PgTransactionRepository)(nil)
	_ ChargeRepository      = (*PgChargeRepository)(nil)
	_ AccountRepository     = (*PgAccountRepository)(nil)
	_ UserRepository        = (*PgUserRepository)(nil)
	_ Store                 = (*PostgresStore)(nil)
)

// repositories набор репозиториев поверх пула или транзакции.
type repositories struct {
	jobs         *PgJobRepository
	bids         *PgBidRepository
	transactions *PgTransactionRepository
	charges      *PgChargeRepository
	accounts     *PgAccountRepository
	users        *PgUserRepository
}

func newRepositories(q common.Querier) *repositories {
	return &repositories{
		jobs:         NewJobRepository(q),
		bids:         NewBidRepository(q),
		transactions: NewTransactionRepository(q),
		charges:      NewChargeRepository(q),
		accounts:     NewAccountRepository(q),
		users:        NewUserRepository(q),
	}
}

func (r *repositories) Jobs() JobRepository                 { return r.jobs }
func (r *repositories) Bids() BidRepository                 { return r.bids }
func (r *repositories) Transactions() TransactionRepository { return r.transactions }
func (r *repositories) Charges() ChargeRepository           { return r.charges }
func (r *repositories) Accounts() AccountRepository         { return r.accounts }
func (r *repositories) Users() UserRepository               { return r.users }

// PostgresStore хранилище на PostgreSQL.
type PostgresStore struct {
	*repositories
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{repositories: newRepositories(db), db: db}
}

// RunAtomic выполняет fn в одной транзакции. Изоляция между конкурентными
// операциями обеспечивается блокировками строк FOR UPDATE и условными UPDATE.
func (s *PostgresStore) RunAtomic(ctx context.Context, fn func(tx Repositories) error) error {
	return common.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newRepositories(tx))
	})
}
