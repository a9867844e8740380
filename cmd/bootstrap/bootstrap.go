package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ptm-statistics/config"
	deliveryHttp "ptm-statistics/internal/delivery/http"
	"ptm-statistics/internal/delivery/http/handler"
	"ptm-statistics/internal/delivery/http/middleware"
	"ptm-statistics/internal/domain/entity"
	"ptm-statistics/internal/infrastructure/cache"
	"ptm-statistics/internal/infrastructure/database"
	"ptm-statistics/internal/repository"
	"ptm-statistics/internal/service"
	"ptm-statistics/internal/usecase"
	"ptm-statistics/pkg/validator"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds all dependencies for the application
type App struct {
	Config          *config.Config
	DB              *gorm.DB
	RedisClient     *redis.Client
	Server          *http.Server
	StatisticsCache *service.StatisticsCache
}

// New creates a new App instance with all dependencies initialized
func New() (*App, error) {
	app := &App{}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	// Setup logger
	setupLogger(cfg.Log)
	logrus.Info("Configuration loaded successfully")

	// Apply schema migrations
	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(cfg.DB); err != nil {
			return nil, err
		}
	}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DB, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db
	logrus.Info("Database connected successfully")

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.RedisClient = redisClient
	logrus.Info("Redis connected successfully")

	// Initialize all layers
	app.initializeServer(cfg, db, redisClient)

	return app, nil
}

// setupLogger configures the logrus logger
func setupLogger(cfg config.LogConfig) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// initializeServer creates the statistics engine and the HTTP server
func (app *App) initializeServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) {
	// Initialize validator
	customValidator := validator.NewValidator(validator.WithYearRange(cfg.Statistics.MinYear, cfg.Statistics.MaxYear))

	// Initialize logger
	log := logrus.StandardLogger()

	// Initialize repositories
	puskesmasRepo := repository.NewPuskesmasRepository()
	patientRepo := repository.NewPatientRepository()
	targetRepo := repository.NewYearlyTargetRepository()
	statRepo := repository.NewMonthlyStatisticRepository()
	auditLogRepo := repository.NewAuditLogRepository()

	visitIndexes := service.VisitIndexes{}
	examRepos := service.ExaminationRepositories{}
	for _, disease := range entity.DiseaseTypes() {
		examRepo := repository.NewExaminationRepository(disease)
		visitIndexes[disease] = examRepo
		examRepos[disease] = examRepo
	}

	// Initialize services
	period := service.PeriodPolicy{
		MinYear: cfg.Statistics.MinYear,
		MaxYear: cfg.Statistics.MaxYear,
	}
	aggregator := service.NewMonthlyAggregator(db, log, visitIndexes, targetRepo, period)
	accelerator := service.NewStatisticsAccelerator(redisClient, log, cfg.Statistics.CacheTTL)
	statisticsCache := service.NewStatisticsCache(db, log, service.StatisticsCacheDeps{
		StatRepo:      statRepo,
		ExamRepos:     examRepos,
		PatientRepo:   patientRepo,
		PuskesmasRepo: puskesmasRepo,
		Aggregator:    aggregator,
		Accelerator:   accelerator,
	}, period, cfg.Statistics.RebuildWorkers)
	app.StatisticsCache = statisticsCache
	rollup := service.NewSummaryRollup(statisticsCache, log, period)
	auditService := service.NewAuditService(log, auditLogRepo)

	// Initialize usecases
	statisticsUsecase := usecase.NewStatisticsUsecase(db, log, puskesmasRepo, patientRepo, targetRepo, statisticsCache, rollup, auditService)
	auditLogUsecase := usecase.NewAuditLogUsecase(db, log, auditLogRepo)

	// Initialize handlers
	statisticsHandler := handler.NewStatisticsHandler(statisticsUsecase, customValidator)
	auditLogHandler := handler.NewAuditLogHandler(auditLogUsecase)

	// Initialize middleware
	actorMiddleware := middleware.NewActorMiddleware()
	corsMiddleware := middleware.NewCORSMiddleware()

	// Initialize router
	router := deliveryHttp.NewRouter(statisticsHandler, auditLogHandler, actorMiddleware, corsMiddleware)
	httpRouter := router.Setup()

	// Create server
	serverAddr := fmt.Sprintf(":%s", cfg.App.Port)
	app.Server = &http.Server{
		Addr:              serverAddr,
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and handles graceful shutdown
func (app *App) Run() {
	if app.Config.Statistics.RebuildOnStartup {
		go app.rebuildCurrentYear()
	}

	// Start server in goroutine
	go func() {
		logrus.Infof("Server starting on port %s", app.Config.App.Port)
		logrus.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	app.waitForShutdown()
}

// rebuildCurrentYear recomputes the current year's statistics in the background.
// The server keeps answering; missing years are recomputed on read.
func (app *App) rebuildCurrentYear() {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		loc = time.UTC
	}

	scope := entity.RebuildScope{Year: time.Now().In(loc).Year()}
	if _, err := app.StatisticsCache.RebuildAll(context.Background(), scope); err != nil {
		logrus.Errorf("Startup statistics rebuild failed: %v", err)
	}
}

// waitForShutdown blocks until an interrupt signal is received
func (app *App) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server gracefully
	if err := app.Server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	// Close connections
	app.Close()

	logrus.Info("Server shutdown complete")
}

// Close stops background workers and closes all connections
func (app *App) Close() {
	if app.StatisticsCache != nil {
		app.StatisticsCache.Stop()
	}

	// Close database connection
	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	// Close Redis connection
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
