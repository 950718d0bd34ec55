package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	limited := middleware.RateLimit(deps.RateLimit)

	api.GET("/health", Health)
	api.GET("/documents", deps.Documents.List)
	api.POST("/documents/upload", limited, deps.Documents.Upload)
	api.GET("/documents/:id", deps.Documents.Get)
	api.POST("/documents/:id/ask", limited, deps.Documents.Ask)
	api.GET("/documents/:id/conversations", deps.Documents.Conversations)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
