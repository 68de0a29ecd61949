package asset

import "github.com/gin-gonic/gin"

// RegisterRoutes registers asset routes under a group that already runs
// JWT auth and channel scoping.
func RegisterRoutes(r *gin.RouterGroup, h *Handler) {
	assets := r.Group("/assets")
	{
		assets.POST("", h.Upload)
		assets.POST("/batch", h.UploadMany)
		assets.POST("/delete", h.DeleteMany)
		assets.GET("", h.List)
		assets.GET("/events", h.Events)
		assets.GET("/:id", h.GetByID)
		assets.GET("/:id/content", h.Content)
		assets.PATCH("/:id", h.Update)
		assets.DELETE("/:id", h.Delete)
		assets.POST("/:id/recover", h.Recover)
	}
}
