package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit limits requests per client IP. Without a limiter, or when the
// counter store fails, requests pass.
func (h *Handler) RateLimit() gin.HandlerFunc {
	limit := h.Config.Limits.HTTPRate
	window := h.Config.Limits.HTTPRateWindow

	return func(c *gin.Context) {
		if h.Limiter == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}
		allowed, err := h.Limiter.AllowEvent(c.Request.Context(), "http:"+c.ClientIP(), limit, window)
		if err != nil {
			logrus.WithError(err).Warn("http rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
