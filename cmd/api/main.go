package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/config"
	"github.com/noah-isme/rendus-api/internal/database"
	"github.com/noah-isme/rendus-api/internal/handler"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/observability"
	"github.com/noah-isme/rendus-api/internal/report"
	"github.com/noah-isme/rendus-api/internal/repository"
	"github.com/noah-isme/rendus-api/internal/router"
	"github.com/noah-isme/rendus-api/internal/service"
	cloud "github.com/noah-isme/rendus-api/pkg/cloudinary"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}

	probes := []handler.HealthProbe{{Name: "database", Check: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes = append(probes, handler.HealthProbe{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	} else {
		logger.Warn().Msg("redis not configured; snapshot cache disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		probes = append(probes, handler.HealthProbe{Name: "nats", Check: func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}})
	}

	var archive service.FileStorage
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		reportArchive, err := cloud.New(cloudCfg, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		archive = reportArchive
	}

	backend, err := coursebackend.New(coursebackend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Retries: cfg.BackendRetries,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create course backend client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	engine := report.NewEngine(logger, report.WithLandscapeAfter(cfg.LandscapeThreshold))
	cache := service.NewSnapshotCache(redisClient, cfg.ReportCacheTTL, logger)
	uploads := service.NewUploadInspector(cfg.UploadMaxSizeMB, logger)

	runRepo := repository.NewProcessingRunRepository(db)
	exportRepo := repository.NewReportExportRepository(db)

	events := service.NewEventHub(redisClient, cfg.EventsChannel, natsConn, logger)
	events.Start(rootCtx)

	settler := service.NewSettler(cfg.SettleMode, backend, cfg.SettleDelay, cfg.PollInterval, cfg.PollAttempts, logger)
	coordinator := service.NewProcessingCoordinator(backend, runRepo, cache, events, service.CoordinatorConfig{
		Settler:    settler,
		RunTimeout: cfg.RunTimeout,
	}, logger)

	courseService := service.NewCourseService(backend, uploads, cache, validate, logger)
	tpService := service.NewTPService(backend, uploads, cache, logger)
	statusService := service.NewStatusService(backend, engine, cache, validate, logger)
	reportService := service.NewReportService(backend, engine, cache, service.ReportServiceConfig{
		Exports:    exportRepo,
		Archive:    archive,
		Processing: coordinator,
	}, validate, logger)

	auth := []fiber.Handler{middleware.ForwardBearer()}
	if cfg.JWTSecret != "" {
		auth = []fiber.Handler{middleware.JWTProtected(cfg.JWTSecret), middleware.RequireRole(cfg.AuthRoles...)}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		CourseHandler: handler.NewCourseHandler(courseService, logger),
		TPHandler:     handler.NewTPHandler(tpService, coordinator, logger),
		ReportHandler: handler.NewReportHandler(reportService, cfg.DefaultThreshold, logger),
		EventsHandler: handler.NewEventsHandler(events, coordinator, 30*time.Second, logger),
		StatusHandler: handler.NewStatusHandler(statusService, logger),
		HealthProbes:  probes,
		Auth:          auth,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Str("settle_mode", settler.Name()).Msg("server started")

	<-rootCtx.Done()
	shutdown(app, coordinator, logger)
}

func shutdown(app *fiber.App, coordinator service.ProcessingCoordinator, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Pending runs are abandoned; their in-flight flags are not persisted.
	if err := coordinator.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("processing runs still pending at shutdown")
	}

	logger.Info().Msg("server stopped")
}
