package usecases

import (
	"context"

	"go.uber.org/zap"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/logger"
)

const defaultRecentReadLimit = 20

// NotifyInput describes one in-app notification and its external dispatch.
type NotifyInput struct {
	UserID    string
	Type      string
	RelatedID int64
	Vars      map[string]string
	Data      map[string]any
	// Channels defaults to push. IdempotencyKey deduplicates the external
	// dispatch only; the in-app row is deduplicated by (user, type, related).
	Channels       []entities.Channel
	IdempotencyKey string
}

// NotificationUsecase writes in-app notifications inside the caller's
// transaction and hands external delivery to the dispatcher after commit.
type NotificationUsecase struct {
	notifications repositories.NotificationRepository
	uow           repositories.UnitOfWork
	dispatcher    Dispatcher
	clock         clock.Clock
}

func NewNotificationUsecase(
	notifications repositories.NotificationRepository,
	uow repositories.UnitOfWork,
	dispatcher Dispatcher,
	clk clock.Clock,
) *NotificationUsecase {
	return &NotificationUsecase{
		notifications: notifications,
		uow:           uow,
		dispatcher:    dispatcher,
		clock:         clk,
	}
}

// Notify upserts the notification row. A repeat for the same
// (user, type, related id) replaces the content and marks it unread.
func (u *NotificationUsecase) Notify(ctx context.Context, in NotifyInput) (*entities.Notification, error) {
	text := render(in.Type, in.Vars)
	n := &entities.Notification{
		UserID:      in.UserID,
		Type:        in.Type,
		RelatedType: entities.RelatedTypeFor(in.Type),
		Title:       text.Title,
		Content:     text.Content,
		TitleEn:     text.TitleEn,
		ContentEn:   text.ContentEn,
		Data:        in.Data,
		CreatedAt:   u.clock.Now(),
	}
	if in.RelatedID != 0 {
		id := in.RelatedID
		n.RelatedID = &id
	}
	if err := u.notifications.Upsert(ctx, n); err != nil {
		return nil, err
	}

	if u.dispatcher != nil {
		channels := in.Channels
		if len(channels) == 0 {
			channels = []entities.Channel{entities.ChannelPush}
		}
		msg := entities.Dispatch{
			UserID:         in.UserID,
			Channels:       channels,
			Template:       in.Type,
			TemplateVars:   in.Vars,
			IdempotencyKey: in.IdempotencyKey,
		}
		u.uow.AfterCommit(ctx, func(ctx context.Context) {
			if err := u.dispatcher.Enqueue(ctx, msg); err != nil {
				logger.Warn(ctx, "Notification dispatch not queued",
					zap.String("user_id", msg.UserID),
					zap.String("type", msg.Template),
					zap.Error(err),
				)
			}
		})
	}
	return n, nil
}

// notifyAll sends the same notification to several users, skipping blanks
// and duplicates.
func (u *NotificationUsecase) notifyAll(ctx context.Context, userIDs []string, in NotifyInput) error {
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		in.UserID = id
		if _, err := u.Notify(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

// ListWithRecentRead returns every unread notification followed by the
// latest recentReadLimit read ones, newest first within each group.
func (u *NotificationUsecase) ListWithRecentRead(ctx context.Context, userID string, recentReadLimit int) ([]*entities.Notification, error) {
	if recentReadLimit <= 0 {
		recentReadLimit = defaultRecentReadLimit
	}
	unread, err := u.notifications.ListUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	read, err := u.notifications.ListRecentRead(ctx, userID, recentReadLimit)
	if err != nil {
		return nil, err
	}
	return append(unread, read...), nil
}

func (u *NotificationUsecase) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return u.notifications.CountUnread(ctx, userID)
}

func (u *NotificationUsecase) MarkRead(ctx context.Context, userID string, id int64) error {
	return u.notifications.MarkRead(ctx, userID, id)
}

func (u *NotificationUsecase) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return u.notifications.MarkAllRead(ctx, userID)
}
