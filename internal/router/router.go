package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/weibaohui/decision-council/config"
	"github.com/weibaohui/decision-council/internal/handler"
)

func Setup(
	cfg *config.Config,
	councilHandler *handler.CouncilHandler,
	healthHandler *handler.HealthHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", handler.SessionHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.Health)

		consultations := api.Group("/consultations")
		{
			consultations.POST("", councilHandler.Consult)
			consultations.GET("/:id", councilHandler.Get)
			consultations.GET("/:id/audit", councilHandler.Audit)
			consultations.GET("/:id/cost", councilHandler.Cost)
		}

		council := api.Group("/council")
		{
			council.GET("/roles", councilHandler.Roles)
			council.GET("/presets", councilHandler.Presets)
			council.POST("/weights", councilHandler.Preview) // 只返回定性影响力
		}

		api.GET("/audit", councilHandler.AuditByDay)
		api.GET("/cost", councilHandler.CostSince) // 供外部日消费告警
	}

	return r
}
