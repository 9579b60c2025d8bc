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
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ignatzorin/taskhub-backend/internal/cache"
	"github.com/ignatzorin/taskhub-backend/internal/config"
	"github.com/ignatzorin/taskhub-backend/internal/db"
	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	httpHandlers "github.com/ignatzorin/taskhub-backend/internal/http/handlers"
	"github.com/ignatzorin/taskhub-backend/internal/http/middleware"
	httpRouter "github.com/ignatzorin/taskhub-backend/internal/http/router"
	"github.com/ignatzorin/taskhub-backend/internal/logger"
	"github.com/ignatzorin/taskhub-backend/internal/repository"
	"github.com/ignatzorin/taskhub-backend/internal/repository/common"
	"github.com/ignatzorin/taskhub-backend/internal/service"
	"github.com/ignatzorin/taskhub-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.Env)

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка подключения к базе")
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка миграций")
	}

	// Дедупликация webhook: Redis, если настроен, иначе память процесса.
	var (
		redisClient *redis.Client
		events      service.EventStore
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Log.WithError(err).Fatal("main: ошибка подключения к redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Log.WithError(err).Warn("main: ошибка закрытия redis")
			}
		}()
		events = cache.NewRedisEventStore(redisClient)
	} else {
		logger.Log.Warn("main: REDIS_URL не задан, события webhook дедуплицируются в памяти")
		events = cache.NewMemoryEventStore(ctx)
	}

	rateStore, err := middleware.NewRateLimitStore(redisClient)
	if err != nil {
		logger.Log.WithError(err).Fatal("main: ошибка настройки rate limit")
	}

	stripeGateway := gateway.NewStripeGateway(cfg.Stripe)
	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Репозитории.
	txManager := common.NewTxManager(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn)
	bidRepo := repository.NewBidRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	accountRepo := repository.NewStripeAccountRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// WebSocket hub.
	hub := ws.NewHub(ctx)

	// Сервисы.
	notificationService := service.NewNotificationService(notificationRepo, hub)
	escrowService := service.NewEscrowService(txManager, taskRepo, bidRepo, paymentRepo, accountRepo, stripeGateway, cfg.FeeRate(), cfg.Stripe.Currency)
	disputeService := service.NewDisputeService(disputeRepo, taskRepo, paymentRepo)
	bidService := service.NewBidService(txManager, taskRepo, bidRepo, escrowService, stripeGateway, notificationService)
	taskService := service.NewTaskService(txManager, taskRepo, paymentRepo, escrowService, disputeService, notificationService, cfg.DeliveryAllowResubmit)
	stripeAccountService := service.NewStripeAccountService(accountRepo, stripeGateway)
	webhookService := service.NewWebhookService(stripeGateway, escrowService, events, cfg.WebhookEventTTL)

	// HTTP-хэндлеры.
	engine := httpRouter.SetupRouter(
		cfg,
		httpHandlers.NewHealthHandler(dbConn, redisClient),
		httpHandlers.NewTaskHandler(taskService),
		httpHandlers.NewBidHandler(bidService),
		httpHandlers.NewPaymentHandler(escrowService),
		httpHandlers.NewDisputeHandler(disputeService),
		httpHandlers.NewStripeAccountHandler(stripeAccountService),
		httpHandlers.NewWebhookHandler(webhookService),
		httpHandlers.NewNotificationHandler(notificationService),
		httpHandlers.NewWSHandler(hub, tokenManager, cfg.AllowedOrigins),
		tokenManager,
		rateStore,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})

	g.Go(func() error {
		logger.WithFields(logrus.Fields{"port": cfg.HTTPPort, "env": cfg.Env}).Info("main: HTTP сервер запущен")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Завершаем сервер при получении сигнала или падении соседней горутины.
	g.Go(func() error {
		<-gctx.Done()
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.WithError(err).Error("main: сервер завершился с ошибкой")
		return
	}
	logger.Log.Info("main: сервер остановлен")
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Warn("main: ошибка закрытия базы")
	}
}
