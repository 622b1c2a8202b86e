package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Simoroui/autotech-file-service-sub001/internal/notifications"
)

// ListNotifications handles GET /notifications.
func (h *Handlers) ListNotifications(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	feed, err := h.Notifications.Feed(c.Request.Context(), actor.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handlers) unreadResponse(c *gin.Context, userID string, extra gin.H) {
	count, err := h.Notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	body := gin.H{"unread": count, "badge": notifications.Badge(count)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// MarkNotificationRead handles PUT /notifications/:id/read.
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), actor.UserID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	h.unreadResponse(c, actor.UserID, nil)
}

// MarkAllNotificationsRead handles PUT /notifications/read-all.
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), actor.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.unreadResponse(c, actor.UserID, gin.H{"updated": n})
}

// DeleteNotification handles DELETE /notifications/:id.
func (h *Handlers) DeleteNotification(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.Notifications.Delete(c.Request.Context(), actor.UserID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
