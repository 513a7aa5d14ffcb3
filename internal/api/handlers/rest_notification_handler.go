package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dennismathu/moomarket/internal/services"
)

// RestNotificationHandler handles REST requests for derived notifications.
type RestNotificationHandler struct {
	notificationService services.INotificationService
}

// NewRestNotificationHandler creates a new RestNotificationHandler.
func NewRestNotificationHandler(notificationService services.INotificationService) *RestNotificationHandler {
	return &RestNotificationHandler{notificationService: notificationService}
}

// List handles GET /v1/me/notifications
func (h *RestNotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	notifications, err := h.notificationService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch notifications")
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// UnreadCount handles GET /v1/me/notifications/unread. Polled by clients,
// so the service keeps the count in a short-lived cache.
func (h *RestNotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	count, err := h.notificationService.UnreadCountForUser(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err, "Failed to fetch unread count")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
