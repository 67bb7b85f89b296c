package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/models"
)

// NotificationRepository implements in-app notification operations
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Upsert inserts the notification or refreshes the existing
// (user_id, type, related_id) row, marking it unread again.
func (r *NotificationRepository) Upsert(ctx context.Context, n *entities.Notification) error {
	data, err := encodeJSON(n.Data)
	if err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = utcNow()
	}
	m := &models.Notification{
		UserID:    n.UserID,
		Type:      n.Type,
		RelatedID: n.RelatedID,
		Title:     n.Title,
		Content:   n.Content,
		TitleEn:   n.TitleEn,
		ContentEn: n.ContentEn,
		Data:      data,
		CreatedAt: n.CreatedAt,
	}
	if n.RelatedType != nil {
		m.RelatedType = stringPtr(string(*n.RelatedType))
	}

	db := conn(ctx, r.db)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "type"}, {Name: "related_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "content", "title_en", "content_en", "data", "related_type", "created_at", "is_read",
		}),
	}).Create(m).Error; err != nil {
		return err
	}

	if m.ID == 0 {
		var existing models.Notification
		q := db.Where("user_id = ? AND type = ?", n.UserID, n.Type)
		if n.RelatedID != nil {
			q = q.Where("related_id = ?", *n.RelatedID)
		} else {
			q = q.Where("related_id IS NULL")
		}
		if err := q.Order("id DESC").First(&existing).Error; err != nil {
			return notFound(err)
		}
		m.ID = existing.ID
	}
	n.ID = m.ID
	n.IsRead = false
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entities.Notification, error) {
	var m models.Notification
	if err := conn(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toNotificationEntity(&m)
}

// ListUnread returns every unread notification, newest first
func (r *NotificationRepository) ListUnread(ctx context.Context, userID string) ([]*entities.Notification, error) {
	return r.list(ctx, conn(ctx, r.db).Where("user_id = ? AND is_read = ?", userID, false))
}

// ListRecentRead returns the newest read notifications
func (r *NotificationRepository) ListRecentRead(ctx context.Context, userID string, limit int) ([]*entities.Notification, error) {
	return r.list(ctx, conn(ctx, r.db).Where("user_id = ? AND is_read = ?", userID, true).Limit(limit))
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one of the user's notifications read
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, id int64) error {
	result := conn(ctx, r.db).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := conn(ctx, r.db).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// ExistsSince reports whether a notification of this type for relatedID
// was (re)issued at or after since.
func (r *NotificationRepository) ExistsSince(ctx context.Context, userID, notificationType string, relatedID int64, since time.Time) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Notification{}).
		Where("user_id = ? AND type = ? AND related_id = ? AND created_at >= ?", userID, notificationType, relatedID, since).
		Count(&count).Error
	return count > 0, err
}

func (r *NotificationRepository) list(ctx context.Context, q *gorm.DB) ([]*entities.Notification, error) {
	var ms []models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Notification, 0, len(ms))
	for i := range ms {
		n, err := toNotificationEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toNotificationEntity(m *models.Notification) (*entities.Notification, error) {
	n := &entities.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Type:      m.Type,
		RelatedID: m.RelatedID,
		Title:     m.Title,
		Content:   m.Content,
		TitleEn:   m.TitleEn,
		ContentEn: m.ContentEn,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
	}
	if m.RelatedType != nil {
		rt := entities.RelatedType(*m.RelatedType)
		n.RelatedType = &rt
	}
	if err := decodeJSON(m.Data, &n.Data); err != nil {
		return nil, err
	}
	return n, nil
}
