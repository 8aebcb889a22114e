package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/campusnews/config"
	"github.com/cppla/campusnews/controllers"
	"github.com/cppla/campusnews/middleware"
	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/storage"
	"github.com/cppla/campusnews/utils"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config  config.AppConfig
	Service *services.AnnouncementService
	Store   *storage.Store
	// UploadRoot is served under /uploads when files are kept on local disk.
	UploadRoot string
	// Redis may be nil; caching and upload counters then stay in process.
	Redis *redis.Client
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		utils.Sugar.Warnf("gin logger unavailable: %v", err)
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))

	if deps.UploadRoot != "" {
		r.Static("/uploads", deps.UploadRoot)
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	announcementController := controllers.NewAnnouncementController(
		deps.Service,
		utils.NewCache(deps.Redis),
		time.Duration(cfg.ListCacheTTLSeconds)*time.Second,
		cfg.IsProduction(),
		utils.Logger,
	)
	uploads := middleware.Uploads(deps.Store, middleware.UploadPolicy{
		MaxBytes: cfg.UploadMaxBytes,
		MaxFiles: cfg.UploadMaxFiles,
	})
	uploadLimiter := middleware.NewUploadLimiter(deps.Redis, cfg.UploadRateLimit,
		time.Duration(cfg.UploadRateWindowMinutes)*time.Minute, utils.Logger)

	announcements := r.Group("/api/announcements")
	announcements.GET("", announcementController.List)
	announcements.GET("/:id", announcementController.Get)

	authors := announcements.Group("")
	authors.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.Authorize(services.RoleTeacher))
	authors.POST("", uploads, announcementController.Create)
	authors.PUT("/:id", uploads, announcementController.Update)
	authors.POST("/:id/regenerate-image", announcementController.RegenerateImage)
	authors.POST("/:id/upload", uploadLimiter.Handler(), uploads, announcementController.UploadAttachments)
	authors.DELETE("/:id/attachment/:attachmentId", announcementController.DeleteAttachment)
	authors.DELETE("/:id", announcementController.Delete)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Fail(ctx, http.StatusNotFound, services.CodeNotFound, "Route not found")
	})

	return r
}
