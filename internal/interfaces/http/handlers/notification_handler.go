package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/internal/interfaces/http/response"
)

type NotificationService interface {
	ListWithRecentRead(ctx context.Context, userID string, recentReadLimit int) ([]*entities.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationHandler handles in-app notification endpoints
type NotificationHandler struct {
	notifications NotificationService
}

func NewNotificationHandler(notifications NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

const defaultRecentReadLimit = 10

// WithRecentRead returns every unread notification plus the latest N read
// GET /api/notifications/with-recent-read?recent_read_limit=N
func (h *NotificationHandler) WithRecentRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit := queryInt(c, "recent_read_limit", defaultRecentReadLimit)
	if limit < 0 {
		limit = 0
	}
	items, err := h.notifications.ListWithRecentRead(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// UnreadCount counts unread notifications
// GET /api/notifications/unread/count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread_count": n})
}

// MarkRead marks one notification read
// POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"read": true})
}

// MarkAllRead marks every unread notification read
// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"marked_count": n})
}
