package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basilakis/kai-delivery/internal/config"
	"github.com/basilakis/kai-delivery/internal/handler"
	"github.com/basilakis/kai-delivery/internal/infra/postgresql"
	"github.com/basilakis/kai-delivery/internal/infra/postgresql/migrations"
	infraredis "github.com/basilakis/kai-delivery/internal/infra/redis"
	"github.com/basilakis/kai-delivery/internal/observability"
	"github.com/basilakis/kai-delivery/internal/provider"
	"github.com/basilakis/kai-delivery/internal/queue"
	"github.com/basilakis/kai-delivery/internal/ratelimit"
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/basilakis/kai-delivery/internal/secret"
	"github.com/basilakis/kai-delivery/internal/service"
	"github.com/basilakis/kai-delivery/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("kai-delivery exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close()

	configurations := repository.NewGormWebhookConfigurationRepo(db)
	deliveries := repository.NewGormDeliveryRepo(db)
	attempts := repository.NewGormAttemptRepo(db)

	secrets, err := secret.NewManager(configurations, cfg.SecretGraceWindow())
	if err != nil {
		return fmt.Errorf("secret manager init failed: %w", err)
	}

	overrides, err := cfg.CustomRateLimitOverrides()
	if err != nil {
		return fmt.Errorf("rate limit overrides invalid: %w", err)
	}
	resolver, err := ratelimit.NewResolver(cfg.DefaultRateLimitPerMin, cfg.InternalUpgradeMultiplier, overrides, cfg.InternalCIDRs())
	if err != nil {
		return fmt.Errorf("rate limit resolver init failed: %w", err)
	}
	limiter, err := infraredis.NewRedisRateLimiter(rdb)
	if err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}

	providers, err := provider.NewFactory(logger, cfg.DeliveryTimeout(),
		provider.EmailSettings{
			Kind:                 cfg.EmailProvider,
			SMTPHost:             cfg.SMTPHost,
			SMTPPort:             cfg.SMTPPort,
			SMTPUsername:         cfg.SMTPUsername,
			SMTPPassword:         cfg.SMTPPassword,
			PostmarkServerToken:  cfg.PostmarkServerToken,
			PostmarkAccountToken: cfg.PostmarkAccountToken,
			From:                 cfg.EmailFrom,
			MailboxDir:           cfg.DevMailboxDir,
		},
		provider.SMSSettings{
			Kind:             cfg.SMSProvider,
			TwilioBaseURL:    cfg.TwilioBaseURL,
			TwilioAccountSID: cfg.TwilioAccountSID,
			TwilioAuthToken:  cfg.TwilioAuthToken,
			TwilioFromNumber: cfg.TwilioFromNumber,
		},
		cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("provider factory init failed: %w", err)
	}

	dispatcher, err := service.NewDispatcher(configurations, attempts, secrets, providers, resolver, limiter, cfg.DeliveryTimeout(), logger)
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, cfg.WorkerConcurrency, logger)

	deliveryService, err := service.NewDeliveryService(deliveries, configurations, publisher, cfg.MaxDeliveryAttempts, logger)
	if err != nil {
		return fmt.Errorf("delivery service init failed: %w", err)
	}
	webhookService, err := service.NewWebhookService(configurations, deliveries, attempts, secrets, dispatcher, cfg.MaxDeliveryAttempts, logger)
	if err != nil {
		return fmt.Errorf("webhook service init failed: %w", err)
	}
	workerService, err := service.NewWorkerService(deliveries, consumer, dispatcher, cfg.WorkerConcurrency, cfg.MaxDeliveryElapsed(), logger)
	if err != nil {
		return fmt.Errorf("worker service init failed: %w", err)
	}
	retryScanner, err := service.NewRetryScanner(deliveries, publisher, 0, 0, logger)
	if err != nil {
		return fmt.Errorf("retry scanner init failed: %w", err)
	}

	metrics := observability.NewMetrics()
	workerService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterWebhookRoutes(app, webhookService); err != nil {
		return fmt.Errorf("webhook routes init failed: %w", err)
	}
	if err := handler.RegisterDeliveryRoutes(app, deliveryService); err != nil {
		return fmt.Errorf("delivery routes init failed: %w", err)
	}
	if err := handler.RegisterAdminRoutes(app, webhookService, providers); err != nil {
		return fmt.Errorf("admin routes init failed: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics listening", zap.Int("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return workerService.Start(groupCtx)
	})

	g.Go(func() error {
		return retryScanner.Start(groupCtx)
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("api shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("kai-delivery stopped")
	return nil
}
