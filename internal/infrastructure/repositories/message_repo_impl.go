package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/internal/infrastructure/models"
	"link2ur.backend/pkg/utils"
)

// MessageRepository implements task chat and read-state operations
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores the message and its attachments
func (r *MessageRepository) Create(ctx context.Context, msg *entities.Message) error {
	meta, err := encodeJSON(msg.Meta)
	if err != nil {
		return err
	}
	m := &models.Message{
		SenderID:         msg.SenderID,
		ReceiverID:       msg.ReceiverID,
		TaskID:           msg.TaskID,
		ConversationType: string(msg.ConversationType),
		MessageType:      string(msg.MessageType),
		Content:          msg.Content,
		ImageID:          msg.ImageID,
		Meta:             meta,
		CreatedAt:        msg.CreatedAt,
	}
	if m.MessageType == "" {
		m.MessageType = string(entities.MessageTypeNormal)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utcNow()
	}

	db := conn(ctx, r.db)
	if err := db.Create(m).Error; err != nil {
		return err
	}
	msg.ID = m.ID
	msg.CreatedAt = m.CreatedAt

	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		am, err := toAttachmentModel(a)
		if err != nil {
			return err
		}
		am.MessageID = m.ID
		am.CreatedAt = m.CreatedAt
		if err := db.Create(am).Error; err != nil {
			return err
		}
		a.ID = am.ID
		a.MessageID = m.ID
		a.CreatedAt = am.CreatedAt
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*entities.Message, error) {
	var m models.Message
	if err := conn(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	msgs, err := r.withAttachments(ctx, []models.Message{m})
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

// ListTaskHistory pages the task chat newest first
func (r *MessageRepository) ListTaskHistory(ctx context.Context, taskID int64, before *utils.Cursor, limit int) ([]*entities.Message, error) {
	q := conn(ctx, r.db).Where("task_id = ? AND conversation_type = ?", taskID, entities.ConversationTask)
	if before != nil {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", before.CreatedAt, before.CreatedAt, before.ID)
	}
	var ms []models.Message
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.withAttachments(ctx, ms)
}

// LatestInTask returns the newest task message, or nil when there is none
func (r *MessageRepository) LatestInTask(ctx context.Context, taskID int64) (*entities.Message, error) {
	msgs, err := r.ListTaskHistory(ctx, taskID, nil, 1)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (r *MessageRepository) ListTaskAttachments(ctx context.Context, taskID int64) ([]*entities.MessageAttachment, error) {
	var ms []models.MessageAttachment
	if err := conn(ctx, r.db).
		Joins("JOIN messages ON messages.id = message_attachments.message_id").
		Where("messages.task_id = ?", taskID).
		Order("message_attachments.id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.MessageAttachment, 0, len(ms))
	for i := range ms {
		a, err := toAttachmentEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *MessageRepository) DeleteAttachments(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return conn(ctx, r.db).Where("id IN ?", ids).Delete(&models.MessageAttachment{}).Error
}

const unreadFromOthers = `m.task_id = ? AND m.conversation_type = 'task' AND m.message_type <> 'system'
	AND m.sender_id IS NOT NULL AND m.sender_id <> ? AND m.sender_id NOT IN ?`

// CountUnread counts in one query, using the cursor watermark when set and
// the per-message receipts otherwise.
func (r *MessageRepository) CountUnread(ctx context.Context, taskID int64, userID string) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Table("messages AS m").
		Joins("LEFT JOIN message_read_cursors c ON c.task_id = m.task_id AND c.user_id = ?", userID).
		Where(unreadFromOthers, taskID, userID, entities.SystemSenderIDs).
		Where(`(c.last_read_message_id IS NOT NULL AND m.id > c.last_read_message_id)
			OR (c.last_read_message_id IS NULL AND NOT EXISTS (
				SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = ?))`, userID).
		Count(&count).Error
	return count, err
}

func (r *MessageRepository) IDsFromOthersUpTo(ctx context.Context, taskID int64, userID string, createdAt time.Time, id int64) ([]int64, error) {
	var ids []int64
	err := conn(ctx, r.db).Model(&models.Message{}).
		Where("task_id = ? AND (sender_id IS NULL OR sender_id <> ?)", taskID, userID).
		Where("(created_at < ? OR (created_at = ? AND id <= ?))", createdAt, createdAt, id).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *MessageRepository) FilterFromOthers(ctx context.Context, taskID int64, userID string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []int64
	err := conn(ctx, r.db).Model(&models.Message{}).
		Where("id IN ? AND task_id = ? AND (sender_id IS NULL OR sender_id <> ?)", ids, taskID, userID).
		Order("id ASC").
		Pluck("id", &out).Error
	return out, err
}

// MarkRead checks existing receipts in one query and inserts the rest
func (r *MessageRepository) MarkRead(ctx context.Context, userID string, ids []int64, now time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := conn(ctx, r.db)

	var existing []int64
	if err := db.Model(&models.MessageRead{}).
		Where("user_id = ? AND message_id IN ?", userID, ids).
		Pluck("message_id", &existing).Error; err != nil {
		return 0, err
	}
	seen := make(map[int64]bool, len(existing))
	for _, id := range existing {
		seen[id] = true
	}

	rows := make([]models.MessageRead, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, models.MessageRead{MessageID: id, UserID: userID, ReadAt: now})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (r *MessageRepository) GetCursor(ctx context.Context, taskID int64, userID string) (*entities.MessageReadCursor, error) {
	var ms []models.MessageReadCursor
	if err := conn(ctx, r.db).Where("task_id = ? AND user_id = ?", taskID, userID).Limit(1).Find(&ms).Error; err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}
	m := ms[0]
	return &entities.MessageReadCursor{
		ID:                m.ID,
		TaskID:            m.TaskID,
		UserID:            m.UserID,
		LastReadMessageID: m.LastReadMessageID,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

// AdvanceCursor only ever moves the watermark forward
func (r *MessageRepository) AdvanceCursor(ctx context.Context, taskID int64, userID string, messageID int64, now time.Time) error {
	db := conn(ctx, r.db)
	row := &models.MessageReadCursor{TaskID: taskID, UserID: userID, LastReadMessageID: &messageID, UpdatedAt: now}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return err
	}
	return db.Model(&models.MessageReadCursor{}).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Where("last_read_message_id IS NULL OR last_read_message_id < ?", messageID).
		Updates(map[string]interface{}{
			"last_read_message_id": messageID,
			"updated_at":           now,
		}).Error
}

func (r *MessageRepository) withAttachments(ctx context.Context, ms []models.Message) ([]*entities.Message, error) {
	out := make([]*entities.Message, 0, len(ms))
	if len(ms) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	var atts []models.MessageAttachment
	if err := conn(ctx, r.db).Where("message_id IN ?", ids).Order("id ASC").Find(&atts).Error; err != nil {
		return nil, err
	}
	byMessage := make(map[int64][]entities.MessageAttachment, len(ms))
	for i := range atts {
		a, err := toAttachmentEntity(&atts[i])
		if err != nil {
			return nil, err
		}
		byMessage[a.MessageID] = append(byMessage[a.MessageID], *a)
	}

	for i := range ms {
		msg, err := toMessageEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		msg.Attachments = byMessage[msg.ID]
		if msg.Attachments == nil {
			msg.Attachments = []entities.MessageAttachment{}
		}
		out = append(out, msg)
	}
	return out, nil
}

func toMessageEntity(m *models.Message) (*entities.Message, error) {
	msg := &entities.Message{
		ID:               m.ID,
		SenderID:         m.SenderID,
		ReceiverID:       m.ReceiverID,
		TaskID:           m.TaskID,
		ConversationType: entities.ConversationType(m.ConversationType),
		MessageType:      entities.MessageType(m.MessageType),
		Content:          m.Content,
		ImageID:          m.ImageID,
		CreatedAt:        m.CreatedAt,
	}
	if len(m.Meta) > 0 {
		var meta entities.MessageMeta
		if err := decodeJSON(m.Meta, &meta); err != nil {
			return nil, err
		}
		msg.Meta = &meta
	}
	return msg, nil
}

func toAttachmentModel(a *entities.MessageAttachment) (*models.MessageAttachment, error) {
	meta, err := encodeJSON(a.Meta)
	if err != nil {
		return nil, err
	}
	return &models.MessageAttachment{
		AttachmentType: a.AttachmentType,
		URL:            a.URL,
		BlobID:         a.BlobID,
		Meta:           meta,
	}, nil
}

func toAttachmentEntity(m *models.MessageAttachment) (*entities.MessageAttachment, error) {
	a := &entities.MessageAttachment{
		ID:             m.ID,
		MessageID:      m.MessageID,
		AttachmentType: m.AttachmentType,
		URL:            m.URL,
		BlobID:         m.BlobID,
		CreatedAt:      m.CreatedAt,
	}
	if err := decodeJSON(m.Meta, &a.Meta); err != nil {
		return nil, err
	}
	return a, nil
}
