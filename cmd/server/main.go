package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/db"
	"github.com/ignatzorin/escrow-engine/internal/goroutine"
	httpHandlers "github.com/ignatzorin/escrow-engine/internal/http/handlers"
	httpRouter "github.com/ignatzorin/escrow-engine/internal/http/router"
	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/repository"
	"github.com/ignatzorin/escrow-engine/internal/scheduler"
	"github.com/ignatzorin/escrow-engine/internal/service"
	"github.com/ignatzorin/escrow-engine/internal/storage"
	"github.com/ignatzorin/escrow-engine/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		logger.Log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	evidenceStorage, err := storage.NewEvidenceStorage(cfg.EvidenceStoragePath, httpRouter.EvidencePublicPrefix, cfg.MaxUploadSizeMB)
	if err != nil {
		logger.Log.Fatalf("main: не удалось подготовить файловое хранилище: %v", err)
	}

	userRepo := repository.NewUserRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn)
	contractRepo := repository.NewContractRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	notificationService := service.NewNotificationService(notificationRepo)

	// Хаб сохраняет событие и доставляет его подключённым клиентам
	hub := ws.NewHub()
	hub.SetNotificationSaver(notificationService)
	goroutine.SafeGoWithContext(ctx, hub.Run)

	userService := service.NewUserService(userRepo)
	projectService := service.NewProjectService(projectRepo, userRepo)
	escrowService := service.NewEscrowService(escrowRepo, projectRepo, milestoneRepo, userRepo, hub)
	if cfg.TotalsCacheTTL > 0 {
		escrowService.SetTotalsCache(service.NewCacheService(ctx), cfg.TotalsCacheTTL)
	}
	milestoneService := service.NewMilestoneService(milestoneRepo, projectRepo, escrowRepo, escrowService, hub, cfg.ReleaseOnApproval)
	contractService := service.NewContractService(contractRepo, projectRepo, hub)
	paymentService := service.NewPaymentService(paymentRepo, projectRepo, milestoneRepo, hub)
	disputeService := service.NewDisputeService(disputeRepo, projectRepo, userRepo, hub)

	autoRelease := scheduler.NewAutoRelease(escrowService, cfg.AutoReleaseInterval)
	autoRelease.Start(ctx)

	engine := httpRouter.SetupRouter(cfg, tokenManager,
		httpHandlers.NewHealthHandler(dbConn, hub),
		httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		httpHandlers.NewProjectHandler(projectService),
		httpHandlers.NewEscrowHandler(escrowService, cfg.AutoReleaseDefaultDays),
		httpHandlers.NewMilestoneHandler(milestoneService),
		httpHandlers.NewContractHandler(contractService),
		httpHandlers.NewPaymentHandler(paymentService),
		httpHandlers.NewDisputeHandler(disputeService),
		httpHandlers.NewEvidenceHandler(evidenceStorage),
		httpHandlers.NewNotificationHandler(notificationService),
		httpHandlers.NewUserHandler(userService),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
