package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Querier общий интерфейс *sqlx.DB и *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Builder построитель запросов с плейсхолдерами PostgreSQL.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetOne выполняет запрос и сканирует одну строку в T.
func GetOne[T any](ctx context.Context, q Querier, query squirrel.Sqlizer, notFoundErr error) (*T, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entity T
	if err := q.GetContext(ctx, &entity, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundErr
		}
		return nil, err
	}

	return &entity, nil
}

// SelectAll выполняет запрос и сканирует все строки в []T.
func SelectAll[T any](ctx context.Context, q Querier, query squirrel.Sqlizer) ([]T, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := make([]T, 0)
	if err := q.SelectContext(ctx, &items, sqlStr, args...); err != nil {
		return nil, err
	}

	return items, nil
}

// Exec выполняет запрос и возвращает количество затронутых строк.
func Exec(ctx context.Context, q Querier, query squirrel.Sqlizer) (int64, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	res, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// IsUniqueViolation проверяет нарушение уникального индекса (23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// WithTransaction выполняет функцию внутри транзакции с правильной обработкой ошибок
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			// При панике откатываем транзакцию
			_ = tx.Rollback()
			panic(p)
		}
	}()

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
