package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/northfin/recon_backend/cmd/docs"
	"github.com/northfin/recon_backend/internal/core/services"
	"github.com/northfin/recon_backend/internal/middleware"
	"github.com/northfin/recon_backend/pkg/config"
)

// RegisterRoutes sets up all application routes, injecting dependencies using
// interfaces.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, container *services.Container) error {
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})
	r.GET("/", getHome)

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}))

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		return err
	}
	limiterInstance := limiter.New(memory.NewStore(), rate)

	setupAPIV1Routes(r, cfg, container, limiterInstance)
	setupSwaggerRoutes(r, cfg)
	return nil
}

// setupAPIV1Routes configures the /api/v1 group and delegates to the
// per-module route registrations.
func setupAPIV1Routes(r *gin.Engine, cfg *config.Config, container *services.Container, limiterInstance *limiter.Limiter) {
	v1 := r.Group("/api/v1",
		middleware.RateLimit(limiterInstance),
		middleware.AuthMiddleware(cfg.JWTSecret),
	)

	RegisterMatchingRoutes(v1, container.Matching)
	registerReconciliationRoutes(v1, container.Session, container.Batch)
	registerCollectionsRoutes(v1, container.Collections, container.Escalation)
}

// setupSwaggerRoutes configures the swagger documentation routes.
func setupSwaggerRoutes(r *gin.Engine, cfg *config.Config) {
	if cfg.IsProduction {
		//no swagger in prod
		return
	}
	docs.SwaggerInfo.BasePath = "/api/v1"
	swagger := r.Group("/swagger")
	swagger.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
