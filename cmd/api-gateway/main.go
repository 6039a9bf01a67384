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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/migration-estimator-api/api/swagger"
	"github.com/noah-isme/migration-estimator-api/internal/estimator"
	"github.com/noah-isme/migration-estimator-api/internal/handler"
	"github.com/noah-isme/migration-estimator-api/internal/middleware"
	"github.com/noah-isme/migration-estimator-api/internal/models"
	"github.com/noah-isme/migration-estimator-api/internal/repository"
	"github.com/noah-isme/migration-estimator-api/internal/service"
	"github.com/noah-isme/migration-estimator-api/pkg/cache"
	"github.com/noah-isme/migration-estimator-api/pkg/config"
	"github.com/noah-isme/migration-estimator-api/pkg/database"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
	"github.com/noah-isme/migration-estimator-api/pkg/jobs"
	"github.com/noah-isme/migration-estimator-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/migration-estimator-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/migration-estimator-api/pkg/middleware/requestid"
	"github.com/noah-isme/migration-estimator-api/pkg/storage"
)

// @title Migration Estimator API
// @version 1.0.0
// @description Slack to Teams migration pricing, submission workflow and audit trail
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	rules := estimator.DefaultRules()
	if cfg.Pricing.RulesFile != "" {
		loaded, err := estimator.LoadRules(cfg.Pricing.RulesFile)
		if err != nil {
			return fmt.Errorf("load pricing rules: %w", err)
		}
		rules = loaded
	}
	rules = rules.WithAddonTiming(models.AddonTiming(cfg.Pricing.AddonTiming))
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("invalid pricing rules: %w", err)
	}
	calculator := estimator.New(rules)

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	if applied, err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	} else if len(applied) > 0 {
		logr.Info("migrations applied", zap.Strings("files", applied))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, estimate cache and rate limiting disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Estimates.CacheTTL, logr, cfg.Estimates.CacheEnabled && redisClient != nil)
	estimateSvc := service.NewEstimateService(calculator, cacheSvc, metricsSvc, cfg.Estimates.CacheTTL, logr)
	rateLimitSvc := service.NewRateLimitService(cacheRepo, cfg.Estimates.RateLimitPerMinute, time.Minute, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	userSvc := service.NewUserService(userRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, auditRepo, calculator, validate, logr,
		service.WithSubmissionMetrics(metricsSvc))
	auditSvc := service.NewAuditService(auditRepo, metricsSvc, logr)

	recomputeSvc := service.NewRecomputeService(submissionRepo, submissionSvc, metricsSvc, logr)
	queue := jobs.NewQueue("recompute", recomputeSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Recompute.WorkerConcurrency,
		MaxRetries: cfg.Recompute.WorkerRetries,
		RetryDelay: cfg.Recompute.RetryDelay,
		Logger:     logr,
		OnGiveUp:   recomputeSvc.GiveUp,
	})
	queue.Start(ctx)
	defer func() {
		queue.Stop()
		stats := queue.Stats()
		logr.Info("recompute queue closed",
			zap.Int64("succeeded", stats.Succeeded),
			zap.Int64("retried", stats.Retried),
			zap.Int64("dropped", stats.Dropped),
			zap.Int64("gave_up", stats.GaveUp),
		)
	}()
	recomputeSvc.SetQueue(queue)

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			return fmt.Errorf("init report storage: %w", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc := service.NewReportService(submissionSvc, service.NewEstimateRenderer(), files, signer, logr,
			service.ReportServiceConfig{DownloadPath: cfg.APIPrefix + "/reports"})
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc, logr)
	} else {
		reportHandler = handler.NewReportHandler(disabledReports{}, logr)
	}

	if cfg.Pricing.RulesFile != "" {
		if err := cacheSvc.InvalidateEstimates(ctx); err != nil {
			logr.Warn("estimate cache not cleared", zap.Error(err))
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	registerRoutes(r, cfg, handlers{
		estimates:   handler.NewEstimateHandler(estimateSvc),
		submissions: handler.NewSubmissionHandler(submissionSvc, auditSvc),
		audit:       handler.NewAuditHandler(auditSvc),
		users:       handler.NewUserHandler(userSvc),
		reports:     reportHandler,
		recompute:   handler.NewRecomputeHandler(recomputeSvc),
		auth:        handler.NewAuthHandler(authSvc, userSvc, time.Hour),
		metrics: handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
			"postgres": db.PingContext,
			"redis":    cacheRepo.Ping,
		}),
	}, guards{tokens: authSvc, actors: userSvc, limiter: rateLimitSvc})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("rules_version", rules.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// disabledReports answers report routes when rendering is switched off.
type disabledReports struct{}

func (disabledReports) Generate(context.Context, string, models.ReportFormat, models.Actor) (*models.ReportArtifact, error) {
	return nil, appErrors.Clone(appErrors.ErrUpstreamUnavailable, "report generation is disabled")
}

func (disabledReports) Open(string) (*service.ReportDownload, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
}
