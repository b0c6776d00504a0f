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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-principal-report/api/swagger"
	"github.com/noah-isme/sma-principal-report/internal/handler"
	"github.com/noah-isme/sma-principal-report/internal/middleware"
	"github.com/noah-isme/sma-principal-report/internal/models"
	"github.com/noah-isme/sma-principal-report/internal/repository"
	"github.com/noah-isme/sma-principal-report/internal/service"
	"github.com/noah-isme/sma-principal-report/pkg/cache"
	"github.com/noah-isme/sma-principal-report/pkg/config"
	"github.com/noah-isme/sma-principal-report/pkg/database"
	"github.com/noah-isme/sma-principal-report/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-principal-report/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-principal-report/pkg/middleware/requestid"
)

// @title SMA Principal Report API
// @version 1.0.0
// @description Principal-facing school performance report
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

type routerDeps struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *service.MetricsService
	auth      middleware.TokenValidator
	report    *handler.PrincipalReportHandler
	readiness map[string]handler.Pinger
}

func buildRouter(d routerDeps) *gin.Engine {
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	metricsHandler := handler.NewMetricsHandler(d.metrics, d.readiness)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)
	if d.cfg.PrincipalReport.Enabled && d.report != nil {
		principal := api.Group("/principal",
			middleware.WithResponseMeta(),
			middleware.JWT(d.auth),
			middleware.RequireRoles(models.RolePrincipal),
		)
		principal.GET("/report", d.report.Report)
	}
	return r
}

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.PrincipalReport.CacheTTL, logr, cfg.PrincipalReport.CacheEnabled && redisClient != nil)

	reportRepo := repository.NewPrincipalReportRepository(db)
	reportSvc := service.NewPrincipalReportService(
		service.SourceFromRepository(reportRepo),
		cacheSvc,
		metrics,
		validator.New(),
		logr,
		service.PrincipalReportOptions{Timeout: cfg.PrincipalReport.Timeout, Parallel: cfg.PrincipalReport.Parallel},
	)

	readiness := map[string]handler.Pinger{"database": reportRepo}
	if redisClient != nil {
		readiness["cache"] = cacheRepo
	}

	router := buildRouter(routerDeps{
		cfg:     cfg,
		logger:  logr,
		metrics: metrics,
		auth: service.NewAuthService(logr, service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
			Audience:          cfg.JWT.Audience,
		}),
		report:    handler.NewPrincipalReportHandler(reportSvc),
		readiness: readiness,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.Bool("report_cache", cacheSvc.Enabled()),
			zap.Bool("parallel_queries", cfg.PrincipalReport.Parallel),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
