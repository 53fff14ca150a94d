package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tuition-api/api/swagger"
	"github.com/noah-isme/tuition-api/internal/handler"
	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/internal/repository"
	"github.com/noah-isme/tuition-api/internal/service"
	"github.com/noah-isme/tuition-api/pkg/cache"
	"github.com/noah-isme/tuition-api/pkg/config"
	"github.com/noah-isme/tuition-api/pkg/database"
	"github.com/noah-isme/tuition-api/pkg/jobs"
	"github.com/noah-isme/tuition-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tuition-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tuition-api/pkg/middleware/requestid"
)

// @title Tuition Billing API
// @version 1.0.0
// @description Recurring tuition payment tracking and billing status engine
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Redis is an accelerator, not a dependency; the summary falls
		// back to recomputing on every request.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	studentRepo := repository.NewStudentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	planConfigRepo := repository.NewPlanConfigRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Summary.CacheTTL, logr, redisClient != nil)
	auditSvc := service.NewAuditService(auditRepo, logr)
	planConfigSvc := service.NewPlanConfigService(planConfigRepo, auditSvc, validate, logr)
	recomputeSvc := service.NewRecomputeService(studentRepo, paymentRepo, planConfigRepo, metricsSvc, logr, nil)
	paymentSvc := service.NewPaymentService(paymentRepo, studentRepo, recomputeSvc, auditSvc, cacheSvc, metricsSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, planConfigRepo, recomputeSvc, auditSvc, cacheSvc, validate, logr, nil)
	summarySvc := service.NewSummaryService(studentRepo, paymentRepo, cacheSvc, cfg.Summary.CacheTTL, logr, nil)
	exportSvc := service.NewExportService(paymentRepo, studentSvc, logr, nil, nil)

	studentHandler := handler.NewStudentHandler(studentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	planConfigHandler := handler.NewPlanConfigHandler(planConfigSvc)
	recomputeHandler := handler.NewRecomputeHandler(recomputeSvc)
	summaryHandler := handler.NewSummaryHandler(summarySvc, exportSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		students := api.Group("/students")
		{
			students.GET("", studentHandler.List)
			students.POST("", studentHandler.Create)
			students.GET("/overdue", studentHandler.Overdue)
			students.GET("/:id", studentHandler.Get)
			students.PUT("/:id", studentHandler.Update)
			students.PUT("/:id/plan", studentHandler.ChangePlan)
			students.DELETE("/:id", studentHandler.Delete)
		}

		payments := api.Group("/payments")
		{
			payments.GET("", paymentHandler.List)
			payments.POST("", paymentHandler.Record)
			payments.GET("/statistics", paymentHandler.Statistics)
			payments.DELETE("/:id", paymentHandler.Delete)
		}

		planConfig := api.Group("/plan-config")
		{
			planConfig.GET("", planConfigHandler.Get)
			planConfig.PUT("", planConfigHandler.Update)
			planConfig.POST("/reset", planConfigHandler.Reset)
		}

		recompute := api.Group("/recompute")
		{
			recompute.POST("", recomputeHandler.RecomputeAll)
			recompute.POST("/bulk", recomputeHandler.RecomputeBulk)
			recompute.POST("/students/:id", recomputeHandler.RecomputeStudent)
		}

		api.GET("/audit/:resource/:id", auditHandler.Trail)
		api.GET("/summary", summaryHandler.Summary)
		api.GET("/exports/payments", summaryHandler.ExportPayments)
		api.GET("/exports/overdue", summaryHandler.ExportOverdue)
		api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Recompute.Enabled {
		startRecomputeJob(cfg, recomputeSvc, logr)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// startRecomputeJob schedules the periodic bulk reclassification. Statuses
// drift as days pass without any writes, so a standing job keeps the cached
// classifications converged with the clock.
func startRecomputeJob(cfg *config.Config, recomputeSvc *service.RecomputeService, logr *zap.Logger) {
	queue := jobs.NewQueue("status-recompute", func(ctx context.Context, job jobs.Job) error {
		updated, err := recomputeSvc.RecomputeAllBulk(ctx)
		if err != nil {
			return err
		}
		logr.Sugar().Infow("scheduled recompute finished", "updated", updated)
		return nil
	}, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Recompute.Retries,
		RetryDelay: time.Minute,
		Logger:     logr,
	})
	queue.Start(context.Background())

	go func() {
		ticker := time.NewTicker(cfg.Recompute.Interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := queue.Enqueue(jobs.Job{Type: "bulk-recompute"}); err != nil {
				logr.Sugar().Warnw("failed to enqueue recompute", "error", err)
			}
		}
	}()
}
