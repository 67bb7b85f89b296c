package repositories

import (
	"context"
	"time"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/pkg/utils"
)

// MessageRepository defines task chat and read-state operations
type MessageRepository interface {
	Create(ctx context.Context, msg *entities.Message) error
	GetByID(ctx context.Context, id int64) (*entities.Message, error)
	// ListTaskHistory returns up to limit messages strictly older than
	// before (nil for newest), ordered by (created_at, id) descending.
	ListTaskHistory(ctx context.Context, taskID int64, before *utils.Cursor, limit int) ([]*entities.Message, error)
	LatestInTask(ctx context.Context, taskID int64) (*entities.Message, error)
	ListTaskAttachments(ctx context.Context, taskID int64) ([]*entities.MessageAttachment, error)
	DeleteAttachments(ctx context.Context, ids []int64) error

	// CountUnread counts task messages unread by userID, using the cursor
	// watermark when set and per-message receipts otherwise.
	CountUnread(ctx context.Context, taskID int64, userID string) (int64, error)
	// IDsFromOthersUpTo lists ids of task messages not sent by userID at or
	// before the (createdAt, id) position.
	IDsFromOthersUpTo(ctx context.Context, taskID int64, userID string, createdAt time.Time, id int64) ([]int64, error)
	// FilterFromOthers keeps only ids that belong to the task and were not sent by userID.
	FilterFromOthers(ctx context.Context, taskID int64, userID string, ids []int64) ([]int64, error)
	// MarkRead inserts receipts for ids the user has not read yet and
	// returns how many were inserted.
	MarkRead(ctx context.Context, userID string, ids []int64, now time.Time) (int, error)
	// GetCursor returns nil when the user has no cursor for the task.
	GetCursor(ctx context.Context, taskID int64, userID string) (*entities.MessageReadCursor, error)
	// AdvanceCursor moves the watermark to messageID unless it is already
	// at or beyond it.
	AdvanceCursor(ctx context.Context, taskID int64, userID string, messageID int64, now time.Time) error
}

// NotificationRepository defines in-app notification operations
type NotificationRepository interface {
	// Upsert inserts or, on (user_id, type, related_id) conflict, replaces
	// content, timestamp and resets is_read. n.ID is populated.
	Upsert(ctx context.Context, n *entities.Notification) error
	GetByID(ctx context.Context, id int64) (*entities.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]*entities.Notification, error)
	ListRecentRead(ctx context.Context, userID string, limit int) ([]*entities.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	ExistsSince(ctx context.Context, userID, notificationType string, relatedID int64, since time.Time) (bool, error)
}
