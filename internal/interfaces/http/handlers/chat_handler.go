package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/interfaces/http/response"
	"link2ur.backend/internal/usecases"
)

type ChatService interface {
	Send(ctx context.Context, userID string, taskID int64, in usecases.SendMessageInput) (*entities.Message, error)
	History(ctx context.Context, userID string, taskID int64, cursor string, limit int) (*usecases.MessagePage, error)
	MarkRead(ctx context.Context, userID string, taskID int64, in usecases.MarkReadInput) (int, error)
	UnreadCount(ctx context.Context, userID string, taskID int64) (int64, error)
	UnreadTotal(ctx context.Context, userID string) (int64, error)
	TaskChats(ctx context.Context, userID string, limit, offset int) ([]*entities.TaskChatSummary, error)
}

// ChatHandler handles task chat endpoints
type ChatHandler struct {
	chat ChatService
}

func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// ListTaskChats lists the caller's task chats with unread counts
// GET /api/messages/tasks?limit=&offset=
func (h *ChatHandler) ListTaskChats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chats, err := h.chat.TaskChats(c.Request.Context(), userID, queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tasks": chats})
}

// UnreadTotal counts unread messages across every task chat
// GET /api/messages/tasks/unread/count
func (h *ChatHandler) UnreadTotal(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.chat.UnreadTotal(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread_count": n})
}

// UnreadCount counts unread messages in one task chat
// GET /api/messages/task/:id/unread/count
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.chat.UnreadCount(c.Request.Context(), userID, taskID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread_count": n})
}

// History pages backwards through a task chat
// GET /api/messages/task/:id?cursor=&limit=
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, err := h.chat.History(c.Request.Context(), userID, taskID, c.Query("cursor"), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

type attachmentRequest struct {
	AttachmentType string         `json:"attachment_type" binding:"required"`
	URL            *string        `json:"url"`
	BlobID         *string        `json:"blob_id"`
	Meta           map[string]any `json:"meta"`
}

type sendMessageRequest struct {
	Content     string              `json:"content"`
	Meta        map[string]any      `json:"meta"`
	Attachments []attachmentRequest `json:"attachments" binding:"dive"`
}

// SendMessage posts to a task chat
// POST /api/messages/task/:id/send
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	in := usecases.SendMessageInput{Content: req.Content}
	if prestart, ok := req.Meta["is_prestart_note"].(bool); ok {
		in.IsPrestartNote = prestart
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, entities.MessageAttachment{
			AttachmentType: a.AttachmentType,
			URL:            a.URL,
			BlobID:         a.BlobID,
			Meta:           a.Meta,
		})
	}

	msg, err := h.chat.Send(c.Request.Context(), userID, taskID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, msg)
}

type markReadRequest struct {
	UptoMessageID *int64  `json:"upto_message_id"`
	MessageIDs    []int64 `json:"message_ids"`
}

// MarkRead advances the read cursor and/or receipts specific messages
// POST /api/messages/task/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	marked, err := h.chat.MarkRead(c.Request.Context(), userID, taskID, usecases.MarkReadInput{
		UptoMessageID: req.UptoMessageID,
		MessageIDs:    req.MessageIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"marked_count": marked})
}
