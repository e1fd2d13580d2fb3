package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up the API routes.
func RegisterRoutes(router *gin.Engine, handler *Handler) {
	group := router.Group("/pdf-generator")
	group.Use(IPAllowlist(handler.cfg.AllowedClientIPs))
	{
		group.GET("/health", handler.HealthHandler)
		group.POST("/render", handler.RenderAsyncHandler)
		group.POST("/render/sync", handler.RenderSyncHandler)
		group.GET("/jobs/:id", handler.JobStatusHandler)
	}
}

// IPAllowlist rejects requests from clients outside the allowed set. An
// empty set allows everyone.
func IPAllowlist(allowed []string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, ip := range allowed {
		allowedSet[ip] = struct{}{}
	}

	return func(c *gin.Context) {
		if len(allowedSet) == 0 {
			c.Next()
			return
		}

		clientIP := clientAddress(c)
		if _, ok := allowedSet[clientIP]; !ok {
			slog.WarnContext(c.Request.Context(), "Blocked request from unauthorized IP", "clientIP", clientIP)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access denied: Your IP address is not authorized to access this service",
			})
			return
		}
		c.Next()
	}
}

// clientAddress resolves the caller's IP, honoring proxy headers.
func clientAddress(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := c.GetHeader("X-Real-IP"); real != "" {
		return real
	}
	return c.ClientIP()
}
