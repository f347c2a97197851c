package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/contentforge/review-api/config"
	"github.com/contentforge/review-api/internal/email"
	"github.com/contentforge/review-api/internal/handler"
	notificationHandler "github.com/contentforge/review-api/internal/handler/notification"
	reviewHandler "github.com/contentforge/review-api/internal/handler/review"
	wsHandler "github.com/contentforge/review-api/internal/handler/ws"
	"github.com/contentforge/review-api/internal/middleware"
	"github.com/contentforge/review-api/internal/realtime"
	"github.com/contentforge/review-api/internal/repository/postgres"
	"github.com/contentforge/review-api/internal/router"
	"github.com/contentforge/review-api/internal/service/checks"
	eventService "github.com/contentforge/review-api/internal/service/event"
	notificationService "github.com/contentforge/review-api/internal/service/notification"
	preferenceService "github.com/contentforge/review-api/internal/service/preference"
	reviewService "github.com/contentforge/review-api/internal/service/review"
	internalWorker "github.com/contentforge/review-api/internal/worker"
	"github.com/contentforge/review-api/pkg/auth"
	"github.com/contentforge/review-api/pkg/logger"
	redisBroker "github.com/contentforge/review-api/pkg/messaging/redis"
	"github.com/contentforge/review-api/pkg/metrics"
	"github.com/contentforge/review-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)
	appMetrics := metrics.NewMetrics("review_api")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	zl := log.Logger
	broker, err := redisBroker.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis url")
	}
	redisClient := goredis.NewClient(redisOpts)
	defer redisClient.Close()

	// Repositories
	base := postgres.NewBaseRepository(db)
	qualityCheckRepo := postgres.NewQualityCheckRepository(base)
	reviewerRepo := postgres.NewReviewerRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)
	preferenceRepo := postgres.NewPreferenceRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	// Services
	eventSvc := eventService.NewPublisher(outboxRepo)
	aggregator := checks.NewAggregator(cfg.Checks.ToThresholds(), nil)
	reviewSvc := reviewService.NewService(
		qualityCheckRepo,
		reviewerRepo,
		aggregator,
		eventSvc,
		appLogger,
		appMetrics,
		reviewService.Config{CheckTimeout: cfg.Checks.Timeout},
	)
	prefSvc := preferenceService.NewService(preferenceRepo)

	registry := realtime.NewRegistry(appLogger, appMetrics)
	emailSvc := email.NewService(cfg.SMTP.ToEmailConfig(), email.NewReviewerResolver(reviewerRepo), appLogger)
	notificationSvc := notificationService.NewService(
		notificationRepo,
		prefSvc,
		registry,
		emailSvc,
		appLogger,
		appMetrics,
		notificationService.Config{},
	)

	tokenSvc := auth.NewTokenService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)

	// Handlers
	healthH := handler.NewHealthHandler(db, redisClient)
	reviewH := reviewHandler.NewHandler(reviewSvc)
	notificationH := notificationHandler.NewHandler(notificationSvc, prefSvc)
	wsH := wsHandler.NewHandler(registry, tokenSvc, appLogger)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		corsConfig.AllowedMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		corsConfig.AllowedHeaders = cfg.Security.AllowedHeaders
	}

	routerCfg := router.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSConfig:     corsConfig,
		MetricsEnabled: cfg.Monitoring.PrometheusEnabled,
		MetricsPath:    cfg.Monitoring.MetricsPath,
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerCfg.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(authMiddleware, healthH, reviewH, notificationH, wsH, routerCfg)
	r.Setup()

	// Background loops: outbox drain and the broker-side dispatcher.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), appLogger, appMetrics)
	go processor.Start(ctx)

	dispatcher := internalWorker.NewDispatcher(broker, notificationSvc, appLogger)
	go func() {
		if err := dispatcher.Start(ctx); err != nil {
			appLogger.Error(err, "dispatcher stopped")
		}
	}()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	appLogger.Info("Server exited")
}
