package handler

import (
	"context"
	"net/http"
	"time"

	"roomrelay/backend/internal/chathub"
	"roomrelay/backend/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// RateLimiter counts events per key within a window.
type RateLimiter interface {
	AllowEvent(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Handler serves the HTTP and WebSocket surface of the relay.
type Handler struct {
	Hub     *chathub.ManagerService
	Config  *config.Config
	Limiter RateLimiter

	upgrader websocket.Upgrader
}

func NewHandler(hub *chathub.ManagerService, cfg *config.Config, limiter RateLimiter) *Handler {
	h := &Handler{Hub: hub, Config: cfg, Limiter: limiter}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterRoutes mounts every route and middleware on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(h.corsMiddleware())

	r.GET("/", h.Index)
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	limited := r.Group("/", h.RateLimit())
	limited.GET("/privacy/:room", h.GetPrivacy)
	limited.GET("/user-token", h.GetUserToken)
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins := h.allowedOrigins(); len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	}
	return cors.New(cfg)
}

// allowedOrigins returns nil when every origin is accepted.
func (h *Handler) allowedOrigins() []string {
	var out []string
	for _, o := range h.Config.AllowedOrigins {
		if o == "*" {
			return nil
		}
		out = append(out, o)
	}
	return out
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origins := h.allowedOrigins()
	origin := r.Header.Get("Origin")
	if len(origins) == 0 || origin == "" {
		return true
	}
	for _, o := range origins {
		if o == origin {
			return true
		}
	}
	return false
}
