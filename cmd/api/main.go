package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradeflow/gradeflow-api/internal/config"
	"github.com/gradeflow/gradeflow-api/internal/database"
	"github.com/gradeflow/gradeflow-api/internal/handler"
	"github.com/gradeflow/gradeflow-api/internal/middleware"
	"github.com/gradeflow/gradeflow-api/internal/models"
	"github.com/gradeflow/gradeflow-api/internal/observability"
	"github.com/gradeflow/gradeflow-api/internal/repository"
	"github.com/gradeflow/gradeflow-api/internal/router"
	"github.com/gradeflow/gradeflow-api/internal/service"
	"github.com/gradeflow/gradeflow-api/pkg/ai"
	"github.com/gradeflow/gradeflow-api/pkg/cloudinary"
	"github.com/gradeflow/gradeflow-api/pkg/ocr"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv != "production" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(
		&models.Question{},
		&models.Submission{},
		&models.AnswerImage{},
		&models.Evaluation{},
		&models.ReviewRequest{},
		&models.Evaluator{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	uploader, err := cloudinary.New(cloudinary.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryFolder,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise cloudinary")
	}

	extractor, err := ocr.New(ocr.Config{
		BaseURL: cfg.OCRBaseURL,
		APIKey:  cfg.OCRAPIKey,
		Timeout: cfg.OCRTimeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise ocr client")
	}

	var primary, secondary ai.Completer
	if cfg.AIPrimaryAPIKey != "" {
		completer, err := ai.NewOpenAICompleter(ai.OpenAIConfig{
			Name:    "primary",
			APIKey:  cfg.AIPrimaryAPIKey,
			BaseURL: cfg.AIPrimaryBaseURL,
			Model:   cfg.AIPrimaryModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise primary ai provider")
		}
		primary = completer
	}
	if cfg.AISecondaryAPIKey != "" {
		completer, err := ai.NewOpenAICompleter(ai.OpenAIConfig{
			Name:    "secondary",
			APIKey:  cfg.AISecondaryAPIKey,
			BaseURL: cfg.AISecondaryBaseURL,
			Model:   cfg.AISecondaryModel,
			Timeout: cfg.AITimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialise secondary ai provider")
		}
		secondary = completer
	}
	if primary == nil && secondary == nil {
		logger.Warn().Msg("no ai provider configured, evaluations fall back to the mock scorer")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	reviewRepo := repository.NewReviewRequestRepository(db)
	evaluatorRepo := repository.NewEvaluatorRepository(db)

	ocrService := service.NewOCRService(submissionRepo, extractor, logger, service.OCRConfig{
		ImageDelay: cfg.ImageDelay,
		BatchDelay: cfg.BatchDelay,
		Language:   cfg.OCRLanguage,
	})
	evaluationService := service.NewEvaluationService(primary, secondary, logger)
	submissionService := service.NewSubmissionService(
		submissionRepo,
		questionRepo,
		reviewRepo,
		ocrService,
		evaluationService,
		validate,
		redisClient,
		logger,
		service.SubmissionConfig{
			AttemptLimit:   cfg.AttemptLimit,
			LatestCacheTTL: cfg.LatestCacheTTL,
		},
	)
	reviewService := service.NewReviewService(reviewRepo, submissionRepo, questionRepo, evaluatorRepo, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	middleware.Register(app, middleware.Config{Logger: &logger})

	router.Register(app, router.Dependencies{
		Submissions: handler.NewSubmissionHandler(submissionService, reviewService, uploader, logger),
		Reviews:     handler.NewReviewHandler(reviewService, logger),
		Admin:       handler.NewAdminHandler(submissionService, ocrService, logger),
		Health:      handler.NewHealthHandler(db, redisClient),
		JWTSecret:   cfg.JWTSecret,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("address", cfg.HTTPAddress()).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	_ = redisClient.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
