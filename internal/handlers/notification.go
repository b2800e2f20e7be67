package handlers

import (
	"port42/internal/middleware"
	"port42/internal/response"
	"port42/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, err := h.notifications.List(c.Request.Context(), middleware.CurrentUserID(c), queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, page, "")
}

func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil, "")
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.Delete(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil, "notification deleted")
}

// ReadAll 全部标记为已读
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n}, "")
}
