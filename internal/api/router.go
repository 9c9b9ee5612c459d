// Package api exposes profiles and view sessions over HTTP for a browser
// renderer. Every view event (toggle, brush, reset) replies with the
// session's full snapshot so the client can redraw without a second request.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/circadia/internal/logger"
)

// SetupRouter builds the gin engine
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"profiles": len(h.store.Profiles()),
			"sessions": h.store.Len(),
		})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/profiles", h.ListProfiles)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.CreateSession)
			sessions.GET("/:id", h.GetSession)
			sessions.DELETE("/:id", h.DeleteSession)
			sessions.POST("/:id/filters/:key/toggle", h.ToggleFilter)
			sessions.POST("/:id/brush", h.Brush)
			sessions.POST("/:id/zoom/reset", h.ResetZoom)
			sessions.POST("/:id/reset", h.Reset)
			sessions.PUT("/:id/metric", h.SetMetric)
			sessions.GET("/:id/tooltip", h.Tooltip)
			sessions.GET("/:id/chart.png", h.Chart)
		}
	}

	return r
}

// requestLogger logs each request through the leveled logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
