package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/atelier-backend/internal/http/handlers"
	"github.com/yungbote/atelier-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware *middleware.AuthMiddleware
	WSHandler      *handlers.WSHandler
	SpaceHandler   *handlers.SpaceHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// Live protocol. The handler authenticates before upgrading.
	router.GET("/spaces/:spaceID/ws", cfg.WSHandler.Connect)

	// Member reads.
	api := router.Group("/api/spaces/:spaceID")
	api.Use(cfg.AuthMiddleware.RequireMember())
	{
		api.GET("/state", cfg.SpaceHandler.GetState)
		api.GET("/assets/:assetID", cfg.SpaceHandler.GetAsset)
		api.GET("/assets/:assetID/ancestors", cfg.SpaceHandler.GetAssetAncestors)
		api.GET("/variants/:variantID/lineage", cfg.SpaceHandler.GetLineage)
		api.GET("/variants/:variantID/lineage/graph", cfg.SpaceHandler.GetLineageGraph)
		api.GET("/chat", cfg.SpaceHandler.GetChat)
	}

	// Service-to-service surface: job executor callbacks and sibling
	// services mutating on a user's behalf.
	internal := router.Group("/internal/spaces/:spaceID")
	internal.Use(cfg.AuthMiddleware.RequireInternal())
	{
		internal.POST("/assets", cfg.SpaceHandler.InternalCreateAsset)
		internal.PATCH("/assets/:assetID", cfg.SpaceHandler.InternalUpdateAsset)
		internal.POST("/assets/:assetID/active-variant", cfg.SpaceHandler.InternalSetActiveVariant)
		internal.POST("/assets/spawn", cfg.SpaceHandler.InternalSpawnAsset)
		internal.POST("/variants/:variantID/star", cfg.SpaceHandler.InternalStarVariant)
		internal.POST("/lineage", cfg.SpaceHandler.InternalAddLineage)
		internal.POST("/lineage/:lineageID/sever", cfg.SpaceHandler.InternalSeverLineage)
		internal.POST("/chat", cfg.SpaceHandler.InternalPostChat)
		internal.POST("/jobs/complete", cfg.SpaceHandler.InternalApplyJob)
		internal.POST("/jobs/fail", cfg.SpaceHandler.InternalFailJob)
		internal.POST("/jobs/progress", cfg.SpaceHandler.InternalJobProgress)

		internal.GET("/state", cfg.SpaceHandler.GetState)
		internal.GET("/assets/:assetID", cfg.SpaceHandler.GetAsset)
		internal.GET("/assets/:assetID/ancestors", cfg.SpaceHandler.GetAssetAncestors)
		internal.GET("/variants/:variantID/lineage", cfg.SpaceHandler.GetLineage)
		internal.GET("/variants/:variantID/lineage/graph", cfg.SpaceHandler.GetLineageGraph)
		internal.GET("/chat", cfg.SpaceHandler.GetChat)
	}

	return router
}

// SplitOrigins parses the comma-separated CORS_ALLOWED_ORIGINS value.
func SplitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
