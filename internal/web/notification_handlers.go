// internal/web/notification_handlers.go - Notification sink endpoints
package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TestNotificationRequest struct {
	Message string `json:"message"`
}

func (s *Server) setupNotificationRoutes(api *gin.RouterGroup) {
	notifications := api.Group("/notifications")
	{
		notifications.GET("", s.getNotificationSinks)
		notifications.POST("/test", s.sendTestNotification)
	}
}

// GET /api/notifications
func (s *Server) getNotificationSinks(c *gin.Context) {
	sinks := []string{}
	if s.dispatcher != nil {
		sinks = s.dispatcher.SinkNames()
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"enabled": len(sinks) > 0,
		"sinks":   sinks,
	}})
}

// POST /api/notifications/test
func (s *Server) sendTestNotification(c *gin.Context) {
	var req TestNotificationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Message == "" {
		req.Message = "Test notification from camwatch"
	}

	if s.dispatcher == nil || !s.dispatcher.Enabled() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No notification sink is configured"})
		return
	}

	if err := s.dispatcher.Test(c.Request.Context(), req.Message); err != nil {
		logrus.WithError(err).Warn("Test notification failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Test notification sent",
		"sinks":   s.dispatcher.SinkNames(),
	})
}
