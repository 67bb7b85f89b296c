package models

import (
	"time"

	"gorm.io/datatypes"
)

type Message struct {
	ID               int64          `gorm:"primaryKey;index:idx_messages_task_created,priority:3"`
	SenderID         *string        `gorm:"type:varchar(10);index"`
	ReceiverID       *string        `gorm:"type:varchar(10)"`
	TaskID           *int64         `gorm:"index:idx_messages_task_created,priority:1"`
	ConversationType string         `gorm:"type:varchar(10);not null"`
	MessageType      string         `gorm:"type:varchar(10);not null"`
	Content          string         `gorm:"type:text;not null"`
	ImageID          *string        `gorm:"type:varchar(255)"`
	Meta             datatypes.JSON `gorm:"column:meta"`
	CreatedAt        time.Time      `gorm:"index:idx_messages_task_created,priority:2"`
}

type MessageAttachment struct {
	ID             int64          `gorm:"primaryKey"`
	MessageID      int64          `gorm:"not null;index"`
	AttachmentType string         `gorm:"type:varchar(20);not null"`
	URL            *string        `gorm:"type:text"`
	BlobID         *string        `gorm:"type:varchar(255)"`
	Meta           datatypes.JSON `gorm:"column:meta"`
	CreatedAt      time.Time
}

type MessageRead struct {
	ID        int64  `gorm:"primaryKey"`
	MessageID int64  `gorm:"not null;uniqueIndex:idx_message_reads_message_user"`
	UserID    string `gorm:"type:varchar(10);not null;uniqueIndex:idx_message_reads_message_user"`
	ReadAt    time.Time
}

type MessageReadCursor struct {
	ID                int64  `gorm:"primaryKey"`
	TaskID            int64  `gorm:"not null;uniqueIndex:idx_message_read_cursors_task_user"`
	UserID            string `gorm:"type:varchar(10);not null;uniqueIndex:idx_message_read_cursors_task_user"`
	LastReadMessageID *int64
	UpdatedAt         time.Time
}

type Notification struct {
	ID          int64          `gorm:"primaryKey"`
	UserID      string         `gorm:"type:varchar(10);not null;uniqueIndex:idx_notifications_user_type_related"`
	Type        string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_notifications_user_type_related"`
	RelatedID   *int64         `gorm:"uniqueIndex:idx_notifications_user_type_related"`
	RelatedType *string        `gorm:"type:varchar(20)"`
	Title       string         `gorm:"type:varchar(200);not null"`
	Content     string         `gorm:"type:text;not null"`
	TitleEn     string         `gorm:"type:varchar(200)"`
	ContentEn   string         `gorm:"type:text"`
	Data        datatypes.JSON `gorm:"column:data"`
	IsRead      bool           `gorm:"not null;index"`
	CreatedAt   time.Time
}
