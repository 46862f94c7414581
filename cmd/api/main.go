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
	"go.uber.org/zap"

	_ "github.com/studyspot/checkin-api/api/swagger"
	"github.com/studyspot/checkin-api/internal/handler"
	"github.com/studyspot/checkin-api/internal/middleware"
	"github.com/studyspot/checkin-api/internal/models"
	"github.com/studyspot/checkin-api/internal/repository"
	"github.com/studyspot/checkin-api/internal/service"
	"github.com/studyspot/checkin-api/pkg/cache"
	"github.com/studyspot/checkin-api/pkg/config"
	"github.com/studyspot/checkin-api/pkg/database"
	"github.com/studyspot/checkin-api/pkg/jobs"
	"github.com/studyspot/checkin-api/pkg/logger"
	corsmiddleware "github.com/studyspot/checkin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studyspot/checkin-api/pkg/middleware/requestid"
)

// @title StudySpot Check-in API
// @version 1.0.0
// @description Coworking study space check-in and membership payment backend
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	cacheEnabled := cfg.Plans.CacheEnabled
	if cacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, plan cache disabled", "error", err)
			cacheEnabled = false
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			cacheRepo = repo
			defer repo.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	studentRepo := repository.NewStudentRepository(db)
	visitRepo := repository.NewVisitRepository(db)
	planRepo := repository.NewPlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	staffRepo := repository.NewStaffRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Plans.CacheTTL, logr, cacheEnabled)
	directorySvc := service.NewDirectoryService(studentRepo, validate, logr, cfg.Checkin.CodeAttempts)
	attendanceSvc := service.NewAttendanceService(visitRepo, studentRepo, metrics, logr)
	planSvc := service.NewPlanService(planRepo, cacheSvc, logr)
	authSvc := service.NewAuthService(staffRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	followups := jobs.NewQueue("payment-followups", func(ctx context.Context, job jobs.Job) error {
		logr.Info("payment followup processed", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})
	followups.Start(context.Background())
	defer followups.Stop()

	paymentSvc := service.NewPaymentService(paymentRepo, planRepo, directorySvc, followups, validate, metrics, logr)
	gatewaySvc := service.NewGatewayService(service.NewSnapClient(cfg.Gateway), paymentRepo, paymentSvc, studentRepo, planRepo, cfg.Gateway, metrics, logr)
	reportSvc := service.NewReportService(visitRepo, logr)

	checkinHandler := handler.NewCheckinHandler(attendanceSvc)
	studentHandler := handler.NewStudentHandler(directorySvc)
	planHandler := handler.NewPlanHandler(planSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, gatewaySvc)
	webhookHandler := handler.NewWebhookHandler(gatewaySvc, logr)
	authHandler := handler.NewAuthHandler(authSvc)
	reportHandler := handler.NewReportHandler(reportSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	api.POST("/checkin", checkinHandler.Toggle)
	api.GET("/checkin/:code", checkinHandler.Status)

	api.POST("/students", studentHandler.Register)
	api.GET("/plans", planHandler.List)

	api.POST("/payments", paymentHandler.Create)
	api.GET("/payments/:id", paymentHandler.Get)
	api.POST("/payments/:id/preference", paymentHandler.CreatePreference)

	api.POST("/webhooks/midtrans", webhookHandler.Midtrans)

	staff := api.Group("", middleware.JWT(authSvc), middleware.RequireRole(models.RoleAdmin, models.RoleFrontDesk))
	staff.GET("/students", studentHandler.List)
	staff.GET("/students/:code", studentHandler.Get)
	staff.PUT("/students/:code/certificate", studentHandler.SetCertificate)
	staff.POST("/payments/:id/confirm", paymentHandler.Confirm)
	staff.GET("/reports/visits", reportHandler.Visits)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
