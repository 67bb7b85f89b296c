package entities

import "time"

type ConversationType string

const (
	ConversationTask   ConversationType = "task"
	ConversationDirect ConversationType = "direct"
	ConversationCS     ConversationType = "cs"
)

type MessageType string

const (
	MessageTypeNormal MessageType = "normal"
	MessageTypeSystem MessageType = "system"
)

// SystemSenderIDs are legacy sender markers for system messages.
var SystemSenderIDs = []string{"system", "SYSTEM"}

// MessageMeta is the structured form of the message meta column.
type MessageMeta struct {
	Version        int            `json:"v,omitempty"`
	IsPrestartNote bool           `json:"is_prestart_note,omitempty"`
	SystemEvent    string         `json:"system_event,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Message is append-only.
type Message struct {
	ID               int64               `json:"id"`
	SenderID         *string             `json:"sender_id"`
	ReceiverID       *string             `json:"receiver_id"`
	TaskID           *int64              `json:"task_id"`
	ConversationType ConversationType    `json:"conversation_type"`
	MessageType      MessageType         `json:"message_type"`
	Content          string              `json:"content"`
	ImageID          *string             `json:"image_id,omitempty"`
	ImageURL         string              `json:"image_url,omitempty"`
	Meta             *MessageMeta        `json:"meta,omitempty"`
	Attachments      []MessageAttachment `json:"attachments"`
	CreatedAt        time.Time           `json:"created_at"`
}

// MessageAttachment carries exactly one of URL or BlobID.
type MessageAttachment struct {
	ID             int64          `json:"id"`
	MessageID      int64          `json:"message_id"`
	AttachmentType string         `json:"attachment_type"`
	URL            *string        `json:"url,omitempty"`
	BlobID         *string        `json:"blob_id,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// HasValidShape reports whether exactly one of URL and BlobID is set.
func (a *MessageAttachment) HasValidShape() bool {
	hasURL := a.URL != nil && *a.URL != ""
	hasBlob := a.BlobID != nil && *a.BlobID != ""
	return hasURL != hasBlob
}

// MessageRead is a per-message receipt; unique per (message_id, user_id).
type MessageRead struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessageReadCursor is the per (task, user) read watermark. A nil
// LastReadMessageID means "fall back to MessageRead".
type MessageReadCursor struct {
	ID                int64     `json:"id"`
	TaskID            int64     `json:"task_id"`
	UserID            string    `json:"user_id"`
	LastReadMessageID *int64    `json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TaskChatSummary is one row of a user's task chat list.
type TaskChatSummary struct {
	Task        *Task    `json:"task"`
	UnreadCount int64    `json:"unread_count"`
	LastMessage *Message `json:"last_message"`
}
