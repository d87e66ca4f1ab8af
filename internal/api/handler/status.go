package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetPrivacy reports whether a room is currently private.
func (h *Handler) GetPrivacy(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("privacy lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"private": false})
		}
	}()
	c.JSON(http.StatusOK, gin.H{"private": h.Hub.Private.Contains(c.Param("room"))})
}

func (h *Handler) Index(c *gin.Context) {
	c.String(http.StatusOK, "room relay is running")
}

func (h *Handler) Health(c *gin.Context) {
	storageStatus := "up"
	if h.Hub.Storage == nil {
		storageStatus = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"storage":     storageStatus,
		"connections": h.Hub.Registry.Len(),
	})
}
