// Package api exposes the automation service over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine with every route registered
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/health", h.Health)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/scripts", h.ListScripts)
		apiGroup.POST("/scripts", h.CreateScript)
		apiGroup.GET("/scripts/:id", h.GetScript)
		apiGroup.PUT("/scripts/:id", h.UpdateScript)
		apiGroup.DELETE("/scripts/:id", h.DeleteScript)
		apiGroup.POST("/scripts/:id/execute", h.ExecuteScript)
		apiGroup.GET("/scripts/:id/history", h.ScriptHistory)

		apiGroup.POST("/analyze", h.Analyze)

		apiGroup.GET("/templates", h.ListTemplates)
		apiGroup.GET("/templates/:key", h.GetTemplate)
		apiGroup.POST("/templates/:key/install", h.InstallTemplate)

		apiGroup.GET("/tasks", h.ListTasks)
		apiGroup.POST("/tasks", h.CreateTask)
		apiGroup.POST("/tasks/:id/toggle", h.ToggleTask)
		apiGroup.DELETE("/tasks/:id", h.DeleteTask)

		apiGroup.GET("/executions/running", h.RunningExecutions)
	}

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
