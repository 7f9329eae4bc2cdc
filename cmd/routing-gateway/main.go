package main

import (
	"context"
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

	_ "github.com/moneyquiz/routing-gateway/api/swagger"
	"github.com/moneyquiz/routing-gateway/internal/handler"
	"github.com/moneyquiz/routing-gateway/internal/middleware"
	"github.com/moneyquiz/routing-gateway/internal/repository"
	"github.com/moneyquiz/routing-gateway/internal/service"
	"github.com/moneyquiz/routing-gateway/pkg/cache"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	"github.com/moneyquiz/routing-gateway/pkg/database"
	"github.com/moneyquiz/routing-gateway/pkg/jobs"
	"github.com/moneyquiz/routing-gateway/pkg/logger"
	corsmiddleware "github.com/moneyquiz/routing-gateway/pkg/middleware/cors"
	reqidmiddleware "github.com/moneyquiz/routing-gateway/pkg/middleware/requestid"
	"github.com/moneyquiz/routing-gateway/pkg/storage"
)

// @title Money Quiz Routing Gateway
// @version 1.0.0
// @description Hybrid traffic routing and rollback control for the Money Quiz migration
// @BasePath /api/v1
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricRepo := repository.NewMetricRepository(db)
	rollbackRepo := repository.NewRollbackRepository(db)
	flagRepo := repository.NewFlagRepository(db)
	stateRepo := repository.NewStateRepository(redisClient, logr)

	validate := validator.New()

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.Auth, validate, logr)
	flagSvc := service.NewFlagService(flagRepo, stateRepo, cfg.Routing.FlagCacheTTL, metricsSvc, logr)
	monitorSvc := service.NewMonitorService(metricRepo, metricsSvc, cfg.Routing.RetentionDays, logr)

	var notifier service.Notifier
	if cfg.Notifications.Enabled {
		notifier = service.NewSMTPNotifier(cfg.Notifications)
	}
	notifySvc := service.NewNotifyService(notifier, cfg.Notifications, logr)
	notifySvc.Start(ctx)
	defer notifySvc.Stop()

	rollbackSvc := service.NewRollbackService(cfg.Rollback, rollbackRepo, flagSvc, stateRepo, monitorSvc, notifySvc, metricsSvc, logr)

	// Ported quiz actions register here. Routing an unregistered action to
	// modern is a handler fault, so it falls back to legacy.
	modern := service.NewModernHandler()
	legacy := service.NewLegacyHandler(cfg.Routing)
	routerSvc := service.NewRouterService(cfg.Routing.Enabled, flagSvc, modern, legacy, monitorSvc, rollbackSvc, metricsSvc, logr)

	scheduler := jobs.NewScheduler(logr)
	scheduler.Every(cfg.Rollback.CheckInterval, "health_check", rollbackSvc.PeriodicCheck)

	routeHandler := handler.NewRouteHandler(routerSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	flagsHandler := handler.NewFlagsHandler(flagSvc)
	rollbackHandler := handler.NewRollbackHandler(rollbackSvc, monitorSvc, time.Duration(cfg.Rollback.WindowSeconds)*time.Second)
	monitorHandler := handler.NewMonitorHandler(monitorSvc, rollbackSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/route/:action", routeHandler.Dispatch)

	admin := api.Group("", middleware.JWT(authSvc))
	admin.GET("/flags", flagsHandler.List)
	admin.PUT("/flags", middleware.Audit(logr, "update", "flags"), flagsHandler.Update)
	admin.GET("/monitor/health", monitorHandler.Health)
	admin.GET("/monitor/traffic", monitorHandler.Traffic)
	admin.GET("/monitor/errors", monitorHandler.Errors)
	admin.GET("/monitor/performance", monitorHandler.Performance)
	admin.GET("/monitor/session", metricsHandler.Session)
	admin.POST("/rollback", middleware.Audit(logr, "execute", "rollback"), rollbackHandler.Execute)
	admin.POST("/rollback/clear", middleware.Audit(logr, "clear", "rollback"), rollbackHandler.Clear)
	admin.GET("/rollback/history", rollbackHandler.History)
	admin.GET("/rollback/recovery", rollbackHandler.Recovery)

	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc, err := service.NewReportService(cfg.Reports, metricRepo, rollbackRepo, store, signer, logr)
		if err != nil {
			logr.Sugar().Fatalw("report service init failed", "error", err)
		}
		reportHandler := handler.NewReportHandler(reportSvc)

		admin.GET("/reports/weekly", reportHandler.Weekly)
		admin.POST("/reports/weekly", middleware.Audit(logr, "generate", "reports"), reportHandler.Generate)
		api.GET("/reports/download", reportHandler.Download)

		scheduler.Every(6*time.Hour, "report_cleanup", reportSvc.Cleanup)
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
