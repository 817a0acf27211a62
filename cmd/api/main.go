package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/headcorn/dashboard-api/docs"
	"github.com/headcorn/dashboard-api/internal/auth"
	"github.com/headcorn/dashboard-api/internal/config"
	"github.com/headcorn/dashboard-api/internal/crm"
	"github.com/headcorn/dashboard-api/internal/database"
	"github.com/headcorn/dashboard-api/internal/datawarehouse"
	"github.com/headcorn/dashboard-api/internal/http/handler"
	"github.com/headcorn/dashboard-api/internal/http/middleware"
	"github.com/headcorn/dashboard-api/internal/http/router"
	"github.com/headcorn/dashboard-api/internal/jobs"
	"github.com/headcorn/dashboard-api/internal/logger"
	"github.com/headcorn/dashboard-api/internal/repository"
	"github.com/headcorn/dashboard-api/internal/service"
	"github.com/headcorn/dashboard-api/internal/storage"
	"go.uber.org/zap"
)

// @title Sales Dashboard API
// @version 1.0
// @description Personal sales dashboards built from CRM-synchronized reporting tables

// @host localhost:8000
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// Secrets come from the environment in development, Key Vault elsewhere
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.App.Port)
	docs.SwaggerInfo.Version = cfg.App.Version

	db, err := database.NewDatabase(&cfg.Database, cfg.App.IsDevelopment())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema migrated")
	}

	warehouse, err := datawarehouse.NewClient(&cfg.Warehouse, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to reporting warehouse: %w", err)
	}
	defer func() {
		if err := warehouse.Close(); err != nil {
			log.Warn("Error closing warehouse connection", zap.Error(err))
		}
	}()

	tokens, err := auth.NewTokenManager(&cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to configure tokens: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	reportRepo, err := repository.NewReportRepository(warehouse, &cfg.Reports)
	if err != nil {
		return fmt.Errorf("invalid reports configuration: %w", err)
	}

	// Services
	crmClient := crm.NewClient(&cfg.CRM, log)
	authService := service.NewAuthService(userRepo, crmClient, tokens, &cfg.Auth, log)
	userService := service.NewUserService(userRepo, crmClient, log)
	dashboardService := service.NewDashboardService(reportRepo, crmClient, &cfg.Reports, log)

	// HTTP
	authMiddleware := auth.NewMiddleware(tokens, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	healthHandler := handler.NewHealthHandler(database.NewChecker(db), warehouse, cfg.App.Name, cfg.App.Version, "/swagger/index.html", log)
	authHandler := handler.NewAuthHandler(authService, log)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, log)

	rt := router.NewRouter(cfg, log, authMiddleware, rateLimiter, healthHandler, authHandler, dashboardHandler)

	scheduler, err := startJobs(ctx, cfg, log, userService, dashboardService)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if scheduler != nil {
			select {
			case <-scheduler.Stop().Done():
				log.Info("Scheduler stopped")
			case <-ctx.Done():
				log.Warn("Scheduler did not stop before the shutdown deadline")
			}
		}

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}
		log.Info("Server stopped gracefully")
	}

	return nil
}

// startJobs registers the enabled background jobs. It returns a nil scheduler
// when none are enabled.
func startJobs(ctx context.Context, cfg *config.Config, log *zap.Logger, users *service.UserService, dashboards *service.DashboardService) (*jobs.Scheduler, error) {
	if !cfg.Jobs.UserSyncEnabled && !cfg.Jobs.SnapshotEnabled {
		log.Info("Background jobs disabled")
		return nil, nil
	}

	scheduler := jobs.NewScheduler(log)
	timeout := cfg.Jobs.TimeoutDuration()

	if cfg.Jobs.UserSyncEnabled {
		job := jobs.NewUserSyncJob(users, log.Named(jobs.UserSyncJobName), timeout)
		if err := scheduler.AddJob(jobs.UserSyncJobName, cfg.Jobs.UserSyncCron, job.Run); err != nil {
			return nil, fmt.Errorf("failed to register user sync job: %w", err)
		}
	}

	if cfg.Jobs.SnapshotEnabled {
		store, err := storage.NewStorage(ctx, &cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

		job := jobs.NewSnapshotJob(users, dashboards, store, log.Named(jobs.SnapshotJobName), timeout)
		if err := scheduler.AddJob(jobs.SnapshotJobName, cfg.Jobs.SnapshotCron, job.Run); err != nil {
			return nil, fmt.Errorf("failed to register snapshot job: %w", err)
		}
	}

	scheduler.Start()
	return scheduler, nil
}
