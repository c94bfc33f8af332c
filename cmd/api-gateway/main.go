package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/e-uprava/portal-api/api/swagger"
	"github.com/e-uprava/portal-api/internal/handler"
	"github.com/e-uprava/portal-api/internal/middleware"
	"github.com/e-uprava/portal-api/internal/models"
	"github.com/e-uprava/portal-api/internal/repository"
	"github.com/e-uprava/portal-api/internal/service"
	"github.com/e-uprava/portal-api/pkg/cache"
	"github.com/e-uprava/portal-api/pkg/config"
	"github.com/e-uprava/portal-api/pkg/database"
	"github.com/e-uprava/portal-api/pkg/logger"
	corsmiddleware "github.com/e-uprava/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/e-uprava/portal-api/pkg/middleware/requestid"
	"github.com/e-uprava/portal-api/pkg/storage"
)

// @title e-Uprava Portal API
// @version 1.0.0
// @description REST backend for the citizen services portal
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

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Stats.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, stats caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr, true)
		}
	}

	fileStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	urlSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	if cfg.Uploads.RetentionTTL > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Uploads.RetentionTTL / 2)
			defer ticker.Stop()
			for {
				removed, err := fileStore.CleanupOlderThan(cfg.Uploads.RetentionTTL)
				if err != nil {
					logr.Warn("upload retention sweep failed", zap.Error(err))
				} else if len(removed) > 0 {
					logr.Info("pruned expired uploads", zap.Int("count", len(removed)))
				}
				<-ticker.C
			}
		}()
	}

	userRepo := repository.NewUserRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)
	serviceRepo := repository.NewServiceRepository(db)
	fieldRepo := repository.NewFieldRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	institutionSvc := service.NewInstitutionService(institutionRepo, userRepo, validate, logr)
	catalogSvc := service.NewCatalogService(serviceRepo, institutionRepo, userRepo, validate, logr)
	fieldSvc := service.NewFieldService(fieldRepo, serviceRepo, userRepo, validate, logr)
	requestSvc := service.NewRequestService(requestRepo, serviceRepo, fieldRepo, userRepo, cacheSvc, metricsSvc, validate, logr)
	statsSvc := service.NewStatsService(requestRepo, institutionRepo, serviceRepo, userRepo, cacheSvc, cfg.Stats.CacheTTL, logr)
	exportSvc := service.NewExportService(requestRepo, serviceRepo, fieldRepo, institutionRepo, userRepo, logr)
	uploadSvc := service.NewUploadService(fileStore, urlSigner, userRepo, service.UploadConfig{
		APIPrefix:        cfg.APIPrefix,
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	institutionHandler := handler.NewInstitutionHandler(institutionSvc)
	serviceHandler := handler.NewServiceHandler(catalogSvc)
	fieldHandler := handler.NewServiceFieldHandler(fieldSvc)
	requestHandler := handler.NewServiceRequestHandler(requestSvc, exportSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	// Downloads authenticate via the signed token in the URL.
	api.GET("/uploads/:token", uploadHandler.Download)

	secured := api.Group("", middleware.JWT(authSvc))
	{
		secured.GET("/auth/me", authHandler.Me)
		secured.POST("/auth/logout", authHandler.Logout)
		secured.POST("/auth/change-password", authHandler.ChangePassword)

		secured.GET("/institutions", institutionHandler.List)
		secured.GET("/institutions/:id", institutionHandler.Get)
		adminInstitutions := secured.Group("", middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionInstitutionWrite, "institutions"))
		{
			adminInstitutions.POST("/institutions", institutionHandler.Create)
			adminInstitutions.PUT("/institutions/:id", institutionHandler.Update)
			adminInstitutions.DELETE("/institutions/:id", institutionHandler.Delete)
		}

		secured.GET("/services", serviceHandler.List)
		secured.GET("/services/:id", serviceHandler.Get)
		secured.GET("/services/:id/fields", fieldHandler.ListByService)
		adminCatalog := secured.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			adminCatalog.POST("/services",
				middleware.Audit(userRepo, models.AuditActionServiceWrite, "services"), serviceHandler.Create)
			adminCatalog.PUT("/services/:id",
				middleware.Audit(userRepo, models.AuditActionServiceWrite, "services"), serviceHandler.Update)
			adminCatalog.DELETE("/services/:id",
				middleware.Audit(userRepo, models.AuditActionServiceWrite, "services"), serviceHandler.Delete)
			adminCatalog.POST("/services/:id/fields",
				middleware.Audit(userRepo, models.AuditActionFieldWrite, "service_fields"), fieldHandler.Create)
			adminCatalog.PUT("/service-fields/:id",
				middleware.Audit(userRepo, models.AuditActionFieldWrite, "service_fields"), fieldHandler.Update)
			adminCatalog.DELETE("/service-fields/:id",
				middleware.Audit(userRepo, models.AuditActionFieldWrite, "service_fields"), fieldHandler.Delete)
		}

		secured.GET("/service-requests", requestHandler.List)
		secured.GET("/service-requests/:id", requestHandler.Get)
		secured.POST("/service-requests", requestHandler.Create)
		secured.PUT("/service-requests/:id", requestHandler.Update)
		secured.PATCH("/service-requests/:id/submit", requestHandler.Submit)
		secured.DELETE("/service-requests/:id", requestHandler.Delete)
		secured.GET("/service-requests/:id/pdf", requestHandler.ExportPDF)
		staffRequests := secured.Group("", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin))
		{
			staffRequests.PATCH("/service-requests/:id/assign", requestHandler.Assign)
			staffRequests.PATCH("/service-requests/:id/status", requestHandler.UpdateStatus)
			staffRequests.PATCH("/service-requests/:id/payment", requestHandler.UpdatePayment)
			staffRequests.GET("/service-requests/export/csv", requestHandler.ExportCSV)
		}

		secured.GET("/users", middleware.RBAC("ADMIN"), userHandler.List)
		secured.GET("/users/:id", middleware.RBAC("ADMIN", "SELF"), userHandler.Get)
		adminUsers := secured.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			adminUsers.PATCH("/users/:id/role",
				middleware.Audit(userRepo, models.AuditActionUserRoleUpdate, "users"), userHandler.UpdateRole)
			adminUsers.DELETE("/users/:id",
				middleware.Audit(userRepo, models.AuditActionUserDelete, "users"), userHandler.Delete)
		}

		secured.GET("/stats", middleware.RequireRoles(models.RoleOfficer, models.RoleAdmin), statsHandler.Get)

		secured.POST("/uploads", uploadHandler.Store)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
