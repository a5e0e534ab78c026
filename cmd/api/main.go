package main

import (
	"context"
	"embed"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/shulepro/shulepro-api/internal/anomaly"
	"github.com/shulepro/shulepro-api/internal/handler"
	"github.com/shulepro/shulepro-api/internal/middleware"
	"github.com/shulepro/shulepro-api/internal/repository"
	"github.com/shulepro/shulepro-api/internal/service"
	"github.com/shulepro/shulepro-api/pkg/cache"
	"github.com/shulepro/shulepro-api/pkg/config"
	"github.com/shulepro/shulepro-api/pkg/database"
	"github.com/shulepro/shulepro-api/pkg/logger"
	corsmiddleware "github.com/shulepro/shulepro-api/pkg/middleware/cors"
	reqidmiddleware "github.com/shulepro/shulepro-api/pkg/middleware/requestid"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db, migrationsFS); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, summary cache disabled", "error", err)
			redisClient = nil
		}
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validator.New()

	teacherRepo := repository.NewTeacherRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	termRepo := repository.NewTermRepository(db)
	examRepo := repository.NewExamRepository(db)
	policyRepo := repository.NewGradingPolicyRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	summaryCache := repository.NewSummaryCache(redisClient, cfg.Cache.SummaryTTL)

	classifier := anomaly.NewRuleClassifier(anomaly.Config{
		UniformMinCohort:    cfg.Anomaly.UniformMinCohort,
		OutlierStdDevs:      cfg.Anomaly.OutlierStdDevs,
		HistoricalDriftPts:  cfg.Anomaly.HistoricalDriftPts,
		MissingRatio:        cfg.Anomaly.MissingRatio,
		PassMarkPercent:     cfg.Anomaly.PassMarkPercent,
		ClusterBandWidthPct: cfg.Anomaly.ClusterBandWidthPct,
		ClusterShare:        cfg.Anomaly.ClusterShare,
	})

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	gradingService := service.NewGradingService(policyRepo, validate, logr)
	responsibilityService := service.NewResponsibilityService(settingsRepo, teacherRepo, classRepo, subjectRepo, examRepo, logr)
	submissionService := service.NewSubmissionService(submissionRepo, examRepo, subjectRepo, classRepo, responsibilityService, gradingService, settingsRepo, classifier, summaryCache, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, classRepo, validate, logr)
	teacherService := service.NewTeacherService(teacherRepo, validate, logr)
	classService := service.NewClassService(classRepo, studentRepo, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, validate, logr)
	termService := service.NewTermService(termRepo, validate, logr)
	examService := service.NewExamService(examRepo, termRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, classRepo, validate, logr)
	settingsService := service.NewSettingsService(settingsRepo, termRepo, validate, logr)
	metricsService := service.NewMetricsService()
	submissionService.SetCacheMetrics(metricsService)
	reportService := service.NewReportService(studentRepo, classRepo, examRepo, gradingService, submissionRepo, submissionService, service.ReportConfig{
		StorageDir:  cfg.Reports.StorageDir,
		Concurrency: cfg.Reports.WorkerConcurrency,
		Retries:     cfg.Reports.WorkerRetries,
		ResultTTL:   cfg.Reports.ResultTTL,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportService.Start(ctx)
	defer reportService.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		Assessment: handler.NewAssessmentHandler(responsibilityService, submissionService, metricsService),
		Attendance: handler.NewAttendanceHandler(attendanceService),
		Grading:    handler.NewGradingPolicyHandler(gradingService),
		Teacher:    handler.NewTeacherHandler(teacherService),
		Class:      handler.NewClassHandler(classService),
		Subject:    handler.NewSubjectHandler(subjectService),
		Term:       handler.NewTermHandler(termService),
		Exam:       handler.NewExamHandler(examService),
		Student:    handler.NewStudentHandler(studentService),
		Settings:   handler.NewSettingsHandler(settingsService),
		Report:     handler.NewReportHandler(reportService),
		Metrics:    handler.NewMetricsHandler(metricsService),
	}, authService)

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
