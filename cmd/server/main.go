package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/freelance-marketplace/internal/config"
	"github.com/ignatzorin/freelance-marketplace/internal/db"
	"github.com/ignatzorin/freelance-marketplace/internal/goroutine"
	httpHandlers "github.com/ignatzorin/freelance-marketplace/internal/http/handlers"
	httpRouter "github.com/ignatzorin/freelance-marketplace/internal/http/router"
	"github.com/ignatzorin/freelance-marketplace/internal/ledger"
	"github.com/ignatzorin/freelance-marketplace/internal/logger"
	"github.com/ignatzorin/freelance-marketplace/internal/repository"
	"github.com/ignatzorin/freelance-marketplace/internal/repository/memory"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
	"github.com/ignatzorin/freelance-marketplace/internal/settlement"
	"github.com/ignatzorin/freelance-marketplace/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)
	checks := map[string]httpHandlers.HealthCheck{}

	// Хранилище.
	var store repository.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		memStore := memory.New()
		if _, err := service.NewSeedService(memStore, tokenManager).Seed(); err != nil {
			log.Fatalf("main: не удалось создать демо пользователей: %v", err)
		}
		store = memStore
	default:
		dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("main: ошибка подключения к базе: %v", err)
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(dbConn); err != nil {
			log.Fatalf("main: ошибка миграций: %v", err)
		}
		checks["database"] = dbConn.PingContext
		store = repository.NewPostgresStore(dbConn)
	}

	// Redis опционален: без него блокировка расчёта и лимиты работают в памяти процесса.
	var rdb redis.UniversalClient
	redisClient, err := db.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Printf("main: ошибка закрытия redis: %v", err)
			}
		}()
		rdb = redisClient
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Платёжный провайдер.
	var ledgerClient ledger.Client
	if cfg.Ledger.SecretKey != "" {
		ledgerClient = ledger.NewStripeClient(cfg.Ledger.BaseURL, cfg.Ledger.SecretKey)
	} else {
		logger.Log.Warn("main: LEDGER_SECRET_KEY не задан, используется песочница в памяти")
		ledgerClient = ledger.NewSandbox()
	}

	// Вебсокеты.
	hub := ws.NewHub()
	goroutine.SafeGoWithContext(ctx, hub.Run)

	// Сервисы.
	chargeService := service.NewChargeService(store.Charges())
	jobService := service.NewJobService(store)
	jobService.SetNotifier(hub)
	bidService := service.NewBidService(store, cfg.Ledger.Currency)
	bidService.SetNotifier(hub)
	paymentService := service.NewPaymentService(store, ledgerClient, cfg.Ledger.Currency, cfg.Settlement.TransferTimeout)
	paymentService.SetOnboardingURLs(cfg.Ledger.RefreshURL, cfg.Ledger.ReturnURL)
	statsService := service.NewStatsService(store)

	opts := []settlement.Option{settlement.WithNotifier(hub)}
	if rdb != nil {
		opts = append(opts, settlement.WithLocker(settlement.NewRedisLocker(rdb, settlement.DefaultLockKey, cfg.Settlement.LockTTL)))
	}
	scheduler := settlement.NewScheduler(store, ledgerClient, settlement.Config{
		Interval:        cfg.Settlement.Interval,
		Cooldown:        cfg.Settlement.Cooldown,
		TransferTimeout: cfg.Settlement.TransferTimeout,
		Currency:        cfg.Ledger.Currency,
	}, opts...)
	scheduler.Start(ctx)

	// HTTP хэндлеры.
	handlers := httpRouter.Handlers{
		Jobs:     httpHandlers.NewJobHandler(jobService),
		Bids:     httpHandlers.NewBidHandler(bidService),
		Charge:   httpHandlers.NewChargeHandler(chargeService),
		Payments: httpHandlers.NewPaymentHandler(paymentService),
		Admin:    httpHandlers.NewAdminHandler(statsService, scheduler),
		WS:       httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		Health:   httpHandlers.NewHealthHandler(checks),
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, handlers, tokenManager, rdb)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
