package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPostgres создаёт подключение к PostgreSQL с заданным DSN.
func NewPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось подключиться: %w", err)
	}

	// Настраиваем пул соединений.
	// MaxOpenConns: максимальное количество открытых соединений
	// MaxIdleConns: количество соединений в пуле простоя
	// ConnMaxLifetime: максимальное время жизни соединения
	conn.SetMaxOpenConns(100)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, nil
}

// RunMigrations применяет встроенные миграции. Уже применённые пропускаются.
func RunMigrations(conn *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: не удалось открыть миграции: %w", err)
	}

	driver, err := pgmigrate.WithInstance(conn.DB, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("postgres: не удалось создать драйвер миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: не удалось инициализировать миграции: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log.Info("postgres: схема актуальна")
			return nil
		}
		return fmt.Errorf("postgres: не удалось применить миграции: %w", err)
	}

	version, _, _ := m.Version()
	logger.Log.WithField("version", version).Info("postgres: миграции применены")
	return nil
}
