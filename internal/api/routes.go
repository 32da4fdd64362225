package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leaksopan/SnapMe-sub000/internal/api/handlers"
)

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}

// RegisterRoutes mounts the staff, customer and ops endpoints. staffAuth
// guards every staff route; pass nil to leave them open.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, staffAuth gin.HandlerFunc, allowedOrigin string) {
	r.Use(corsMiddleware(allowedOrigin), metricsMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		staff := api.Group("")
		if staffAuth != nil {
			staff.Use(staffAuth)
		}
		{
			staff.POST("/folders", h.CreateFolder)
			staff.GET("/folders", h.ListFolders)
			staff.GET("/folders/:id", h.GetFolder)
			staff.PATCH("/folders/:id/status", h.UpdateFolderStatus)
			staff.DELETE("/folders/:id", h.DeleteFolder)

			staff.POST("/folders/:id/photos", h.UploadPhotos)
			staff.GET("/folders/:id/photos", h.ListPhotos)
			staff.DELETE("/folders/:id/photos/:photoId", h.DeletePhoto)

			staff.POST("/maintenance/expire", h.RunSweep)
		}

		// Customer claim portal, no auth.
		customer := api.Group("/claim")
		{
			customer.GET("/search", h.SearchClaim)
			customer.GET("/folders/:id", h.GetClaimFolder)
			customer.GET("/folders/:id/photos", h.Gallery)
			customer.GET("/folders/:id/photos/:photoId/download", h.DownloadPhoto)
			customer.GET("/folders/:id/download", h.DownloadArchive)
		}
	}
}
