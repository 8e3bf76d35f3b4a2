package api

import (
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.services.Notification.List(c.Request.Context(), userID, parseBoolQuery(c, "unread"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *Handler) UnreadNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	count, err := h.services.Notification.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"unread": count})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.services.Notification.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, n)
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.services.Notification.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

func (h *Handler) ClearNotifications(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.services.Notification.ClearAll(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": n})
}
