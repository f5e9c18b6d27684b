package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/repense-api/api/swagger"
	"github.com/noah-isme/repense-api/internal/handler"
	"github.com/noah-isme/repense-api/internal/middleware"
	"github.com/noah-isme/repense-api/internal/repository"
	"github.com/noah-isme/repense-api/internal/service"
	"github.com/noah-isme/repense-api/pkg/cache"
	"github.com/noah-isme/repense-api/pkg/config"
	"github.com/noah-isme/repense-api/pkg/database"
	"github.com/noah-isme/repense-api/pkg/jobs"
	"github.com/noah-isme/repense-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/repense-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/repense-api/pkg/middleware/requestid"
	"github.com/noah-isme/repense-api/pkg/signing"
	"github.com/noah-isme/repense-api/pkg/validation"
)

// @title PG Repense API
// @version 1.0.0
// @description Enrollment, attendance and messaging administration for PG Repense small groups
// @BasePath /api
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DefaultTTL, logr, cacheRepo != nil)

	validate := validation.New()
	signer := signing.NewCourseChangeSigner(cfg.CourseChange.Secret, cfg.CourseChange.TTL)

	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	observationRepo := repository.NewObservationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(db, enrollmentRepo, classRepo, studentRepo, cacheSvc, metrics, validate, logr)
	transferSvc := service.NewTransferService(db, enrollmentRepo, classRepo, studentRepo, cacheSvc, metrics, validate, logr)
	registrationSvc := service.NewRegistrationService(service.RegistrationServiceParams{
		DB:          db,
		Students:    studentRepo,
		Enrollments: enrollmentRepo,
		Classes:     classRepo,
		Transfers:   transferSvc,
		Signer:      signer,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
	})
	classSvc := service.NewClassService(service.ClassServiceParams{
		DB:            db,
		Repo:          classRepo,
		Teachers:      teacherRepo,
		Notifications: notificationRepo,
		Cache:         cacheSvc,
		Validator:     validate,
		Logger:        logr,
	})
	sessionSvc := service.NewSessionService(service.SessionServiceParams{
		DB:            db,
		Sessions:      sessionRepo,
		Attendance:    attendanceRepo,
		Observations:  observationRepo,
		Notifications: notificationRepo,
		Teachers:      teacherRepo,
		Classes:       classRepo,
		Metrics:       metrics,
		Validator:     validate,
		Logger:        logr,
		Config:        service.SessionServiceConfig{AtRiskAbsences: cfg.Sessions.AtRiskAbsences},
	})
	notificationSvc := service.NewNotificationService(service.NotificationServiceParams{
		DB:            db,
		Notifications: notificationRepo,
		Messages:      messageRepo,
		Teachers:      teacherRepo,
		Cache:         cacheSvc,
		Validator:     validate,
		Logger:        logr,
	})
	studentSvc := service.NewStudentService(service.StudentServiceParams{
		Repo:         studentRepo,
		Enrollments:  enrollmentRepo,
		Attendance:   attendanceRepo,
		Observations: observationRepo,
		Validator:    validate,
		Logger:       logr,
	})
	dashboardSvc := service.NewDashboardService(dashboardRepo, cacheSvc, logr, service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL})
	exportSvc := service.NewExportService(classRepo, attendanceRepo, logr)

	var auditSvc *service.AuditService
	auditQueue := jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		return auditSvc.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    2,
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
		Logger:     logr,
	})
	auditSvc = service.NewAuditService(auditRepo, auditQueue, logr)
	auditQueue.Start(context.Background())
	defer auditQueue.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(middleware.WithResponseMeta())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	ops := handler.NewMetricsHandler(metrics, db, logr)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Registration:  handler.NewRegistrationHandler(registrationSvc, transferSvc),
		Classes:       handler.NewClassHandler(classSvc),
		Enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		Students:      handler.NewStudentHandler(studentSvc, transferSvc),
		Teachers:      handler.NewTeacherHandler(teacherSvc),
		Sessions:      handler.NewSessionHandler(sessionSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Dashboard:     handler.NewDashboardHandler(dashboardSvc),
		Exports:       handler.NewExportHandler(exportSvc),
	}, handler.Guards{
		Tokens:   authSvc,
		Teachers: teacherSvc,
		Audit:    auditSvc,
		Logger:   logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
