package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/festmatch/festmatch-backend/internal/config"
	"github.com/festmatch/festmatch-backend/internal/db"
	httpHandlers "github.com/festmatch/festmatch-backend/internal/http/handlers"
	httpRouter "github.com/festmatch/festmatch-backend/internal/http/router"
	"github.com/festmatch/festmatch-backend/internal/jobs"
	"github.com/festmatch/festmatch-backend/internal/logger"
	"github.com/festmatch/festmatch-backend/internal/repository"
	"github.com/festmatch/festmatch-backend/internal/service"
	"github.com/festmatch/festmatch-backend/internal/ws"
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
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	experienceRepo := repository.NewExperienceRepository(dbConn)
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	matchRepo := repository.NewMatchRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Сервисы.
	walletService := service.NewWalletService(ledgerRepo, service.WalletConfig{
		MinTopUp:    cfg.MinTopUp,
		PlatformFee: cfg.PlatformFee,
	})
	matchService := service.NewMatchService(matchRepo, experienceRepo, userRepo, walletService, service.MatchPolicy{
		ExpireAfter:                  cfg.MatchExpireAfter,
		HostCancelRefundPct:          cfg.HostCancelRefundPct,
		RequesterCancelRefundPct:     cfg.RequesterCancelRefundPct,
		RequesterLateCancelRefundPct: cfg.RequesterLateCancelRefundPct,
		LateCancelWindow:             cfg.LateCancelWindow,
	})
	disputeService := service.NewDisputeService(disputeRepo, matchRepo, service.DisputePolicy{
		OpenWindow: cfg.DisputeOpenWindow,
	})
	notificationService := service.NewNotificationService(notificationRepo)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))
	go hub.Run()

	matchService.SetNotifier(hub)
	disputeService.SetNotifier(hub)

	// Фоновые задачи: авто-отклонение зависших заявок и ночная сверка.
	scheduler := jobs.NewScheduler(matchService, walletService, cfg.ExpireSweepSpec)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("main: не удалось запустить планировщик: %v", err)
	}
	defer scheduler.Stop()

	// HTTP хэндлеры.
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	walletHandler := httpHandlers.NewWalletHandler(walletService)
	matchHandler := httpHandlers.NewMatchHandler(matchService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	adminHandler := httpHandlers.NewAdminHandler(disputeService, matchService, walletService, userRepo)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)

	engine := httpRouter.SetupRouter(cfg, healthHandler, walletHandler, matchHandler, disputeHandler, adminHandler, notificationHandler, wsHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
