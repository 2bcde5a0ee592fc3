package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes initializes all API endpoints.
func SetupRoutes(router *gin.Engine, s *Server) {
	api := router.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/config", s.getConfig)

		api.POST("/runs", s.rateLimit(), s.createRun)
		api.POST("/runs/:id/step", s.rateLimit(), s.stepRun)
		api.GET("/runs/:id/snapshot", s.getSnapshot)
		api.GET("/runs/:id/graph", s.getGraph)
		api.DELETE("/runs/:id", s.deleteRun)

		api.POST("/batches", s.rateLimit(), s.createBatch)
		api.GET("/batches", s.listBatches)
		api.GET("/batches/:id", s.getBatch)
	}
}
