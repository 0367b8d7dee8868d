package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/market")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://u:p@db:5432/market", cfg.DatabaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.Settlement.Interval)
	assert.Equal(t, 72*time.Hour, cfg.Settlement.Cooldown)
	assert.Equal(t, "usd", cfg.Ledger.Currency)
	assert.NotEmpty(t, cfg.Ledger.RefreshURL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoad_Production(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("LEDGER_SECRET_KEY", "sk_test")

	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", StoreDriverPostgres)
	t.Setenv("LEDGER_CURRENCY", "EUR")
	t.Setenv("LEDGER_RETURN_URL", "https://app.example.com/payments/return")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "eur", cfg.Ledger.Currency)
	assert.Equal(t, "https://app.example.com/payments/return", cfg.Ledger.ReturnURL)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)
}

func TestGetDatabaseURL_FromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "db")
	t.Setenv("POSTGRESQL_USER", "market")
	t.Setenv("POSTGRESQL_PASSWORD", "p@ss")
	t.Setenv("POSTGRESQL_DBNAME", "jobs")

	assert.Equal(t, "postgres://market:p%40ss@db:5432/jobs?sslmode=disable", getDatabaseURL())
}
