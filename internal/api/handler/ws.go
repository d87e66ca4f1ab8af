package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"roomrelay/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ServeWebSocket upgrades the request and hands the connection to the hub.
// When a shared token is configured it must be presented as a bearer
// header or a token query parameter.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	if !h.sharedTokenOK(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing or invalid"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}

func (h *Handler) sharedTokenOK(c *gin.Context) bool {
	want := h.Config.WSSharedToken
	if want == "" {
		return true
	}
	got := c.Query("token")
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
