package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/peerlens-go-api/internal/config"
	"github.com/noah-isme/peerlens-go-api/internal/database"
	"github.com/noah-isme/peerlens-go-api/internal/handler"
	"github.com/noah-isme/peerlens-go-api/internal/middleware"
	"github.com/noah-isme/peerlens-go-api/internal/models"
	"github.com/noah-isme/peerlens-go-api/internal/repository"
	"github.com/noah-isme/peerlens-go-api/internal/router"
	"github.com/noah-isme/peerlens-go-api/internal/service"
	"github.com/noah-isme/peerlens-go-api/pkg/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.ConnectPostgres(cfg.DatabaseURL)
	} else {
		db, err = database.ConnectSQLite("")
	}
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Assignment{}, &models.Submission{}, &models.Evaluation{}, &models.ActivityLog{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, overview caching disabled")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	natsConn, err := events.Connect(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, eventing disabled")
		natsConn = nil
	} else if natsConn != nil {
		defer natsConn.Close()
	}
	publisher := events.NewNATSPublisher(natsConn, cfg.EventSubjectBase, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, validate, publisher, logger)
	matchingService := service.NewMatchingService(assignmentRepo, submissionRepo, evaluationRepo, evaluationService, validate, activityService, logger, service.MatchingConfig{
		RejectionBudget: cfg.RejectionBudget,
	})
	reviewService := service.NewReviewService(evaluationRepo, validate, publisher, activityService, logger)
	metricsService := service.NewMetricsService(evaluationRepo, cache, cfg.MetricsCacheTTL, logger)

	evaluationHandler := handler.NewEvaluationHandler(evaluationService, reviewService, logger)
	matchingHandler := handler.NewMatchingHandler(matchingService, logger)
	metricsHandler := handler.NewMetricsHandler(metricsService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		MatchingHandler:   matchingHandler,
		MetricsHandler:    metricsHandler,
		ActivityHandler:   activityHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
