package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rahull-prog/iiitnrattendence/api/swagger"
	"github.com/rahull-prog/iiitnrattendence/internal/handler"
	"github.com/rahull-prog/iiitnrattendence/internal/middleware"
	"github.com/rahull-prog/iiitnrattendence/internal/models"
	"github.com/rahull-prog/iiitnrattendence/internal/qr"
	"github.com/rahull-prog/iiitnrattendence/internal/repository"
	"github.com/rahull-prog/iiitnrattendence/internal/service"
	"github.com/rahull-prog/iiitnrattendence/pkg/cache"
	"github.com/rahull-prog/iiitnrattendence/pkg/config"
	"github.com/rahull-prog/iiitnrattendence/pkg/database"
	"github.com/rahull-prog/iiitnrattendence/pkg/logger"
	corsmiddleware "github.com/rahull-prog/iiitnrattendence/pkg/middleware/cors"
	reqidmiddleware "github.com/rahull-prog/iiitnrattendence/pkg/middleware/requestid"
)

// @title IIIT-NR Attendance API
// @version 1.0.0
// @description Location-verified QR attendance platform
// @BasePath /api/v1
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

	var cacheRepo *repository.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, dashboards will not be cached", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	validate := validator.New()
	signer := qr.NewSigner(cfg.QR.Secret, nil)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	profileSvc := service.NewProfileService(userRepo, logr)
	courseSvc := service.NewCourseService(courseRepo, enrollmentRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, signer, service.SessionConfig{
		DefaultValidity: cfg.QR.Validity,
		DefaultRadiusM:  cfg.QR.DefaultRadiusM,
		QRImageSize:     cfg.QR.ImageSizePixels,
	}, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo, signer, metricsSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(sessionRepo, attendanceRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(sessionRepo, courseRepo, attendanceRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	profileHandler := handler.NewProfileHandler(profileSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, dashboardSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, exportSvc)
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
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.GET("/profile", profileHandler.Get)
	protected.PUT("/profile", profileHandler.Update)

	faculty := middleware.RequireRoles(models.RoleFaculty, models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)

	courses := protected.Group("/courses")
	courses.POST("", faculty, courseHandler.Create)
	courses.GET("", faculty, courseHandler.ListMine)
	courses.GET("/enrolled", student, courseHandler.ListEnrolled)
	courses.POST("/join", student, courseHandler.Join)
	courses.POST("/:id/join-code", faculty, courseHandler.GenerateJoinCode)
	courses.GET("/:id/students", faculty, courseHandler.Members)
	courses.POST("/:id/students", faculty, courseHandler.EnrollStudent)
	courses.DELETE("/:id/students/:studentId", faculty, courseHandler.UnenrollStudent)

	sessions := protected.Group("/sessions")
	sessions.POST("", faculty, sessionHandler.Start)
	sessions.GET("/:id", faculty, sessionHandler.Get)
	sessions.POST("/:id/refresh", faculty, sessionHandler.Refresh)
	sessions.POST("/:id/stop", faculty, sessionHandler.Stop)
	sessions.GET("/:id/attendance", attendanceHandler.List)
	sessions.PUT("/:id/attendance", faculty, attendanceHandler.ApplyManual)
	sessions.GET("/:id/roster", faculty, attendanceHandler.Roster)
	sessions.GET("/:id/export", faculty, dashboardHandler.Export)

	protected.POST("/attendance/scan", student, attendanceHandler.Scan)

	dashboard := protected.Group("/dashboard")
	dashboard.GET("/faculty", faculty, dashboardHandler.Faculty)
	dashboard.GET("/student", student, dashboardHandler.Student)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
