package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Simoroui/autotech-file-service-sub001/internal/api/handlers"
	"github.com/Simoroui/autotech-file-service-sub001/internal/metrics"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts the API under /api. requireAuth guards everything
// except health and metrics.
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, requireAuth gin.HandlerFunc) {
	r.Use(corsMiddleware(), metrics.GinMiddleware())

	api := r.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/metrics", gin.WrapH(promhttp.Handler()))

		secured := api.Group("", requireAuth)

		secured.GET("/options", h.ListOptions)

		// Files
		secured.POST("/files", h.UploadFile)
		secured.GET("/files", h.ListFiles)
		secured.GET("/files/:id", h.GetFile)
		secured.PUT("/files/:id/status", h.UpdateStatus)
		secured.GET("/files/:id/original", h.DownloadOriginal)
		secured.GET("/files/:id/modified", h.DownloadModified)
		secured.POST("/files/:id/modified", h.UploadModified)

		// Discussion
		secured.GET("/files/:id/comments", h.ListComments)
		secured.POST("/files/:id/comments", h.PostComment)
		secured.GET("/files/:id/comments/:commentId/image", h.CommentImage)

		// Notifications
		secured.GET("/notifications", h.ListNotifications)
		secured.PUT("/notifications/read-all", h.MarkAllNotificationsRead)
		secured.PUT("/notifications/:id/read", h.MarkNotificationRead)
		secured.DELETE("/notifications/:id", h.DeleteNotification)
	}
}
