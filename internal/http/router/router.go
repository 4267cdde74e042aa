package router

import (
	"deepresearch.app/orchestrator/internal/http/handler"
	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the research HTTP surface: a health check, a kickoff
// endpoint, a run lookup, and the SSE event stream.
func SetupRoutes(router *gin.Engine, researchHandler *handler.ResearchHandler) {
	router.GET("/health", handler.Health)

	v1 := router.Group("/v1")
	{
		v1.POST("/research", researchHandler.Start)
		v1.GET("/research/:id", researchHandler.Get)
		v1.GET("/research/:id/stream", researchHandler.Stream)
	}
}
