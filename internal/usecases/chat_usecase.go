package usecases

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"link2ur.backend/internal/config"
	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/logger"
	"link2ur.backend/pkg/redis"
	"link2ur.backend/pkg/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	unreadTaskPage      = 100
	messageMetaVersion  = 1
)

type SendMessageInput struct {
	Content        string
	Attachments    []entities.MessageAttachment
	IsPrestartNote bool
}

type MarkReadInput struct {
	UptoMessageID *int64
	MessageIDs    []int64
}

type MessagePage struct {
	Messages   []*entities.Message `json:"messages"`
	NextCursor string              `json:"next_cursor,omitempty"`
	HasMore    bool                `json:"has_more"`
}

// ChatUsecase runs task chats: authorship rules, history paging and read
// state.
type ChatUsecase struct {
	store    *repositories.Store
	uow      repositories.UnitOfWork
	files    FileStore
	limiter  RateLimiter
	notifier *NotificationUsecase
	business config.BusinessConfig
	clock    clock.Clock
}

func NewChatUsecase(
	store *repositories.Store,
	uow repositories.UnitOfWork,
	files FileStore,
	limiter RateLimiter,
	notifier *NotificationUsecase,
	business config.BusinessConfig,
	clk clock.Clock,
) *ChatUsecase {
	return &ChatUsecase{
		store:    store,
		uow:      uow,
		files:    files,
		limiter:  limiter,
		notifier: notifier,
		business: business,
		clock:    clk,
	}
}

// participants lists everyone allowed into the task chat.
func (u *ChatUsecase) participants(ctx context.Context, task *entities.Task) ([]string, error) {
	ids := []string{task.PosterID}
	if task.HasTaker() {
		ids = append(ids, *task.TakerID)
	}
	if task.ExpertCreatorID != nil && *task.ExpertCreatorID != "" {
		ids = append(ids, *task.ExpertCreatorID)
	}
	if task.IsMultiParticipant {
		members, err := u.store.Participants.ListByTask(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.Status.IsActive() {
				ids = append(ids, m.UserID)
			}
		}
	}
	return ids, nil
}

// authorize returns the task and its chat members if userID is one of them.
func (u *ChatUsecase) authorize(ctx context.Context, userID string, taskID int64) (*entities.Task, []string, error) {
	task, err := getTask(ctx, u.store.Tasks, taskID)
	if err != nil {
		return nil, nil, err
	}
	members, err := u.participants(ctx, task)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range members {
		if id == userID {
			return task, members, nil
		}
	}
	return nil, nil, domainerrors.Forbidden("You are not a participant of this task")
}

// Send posts a message into a task chat.
func (u *ChatUsecase) Send(ctx context.Context, userID string, taskID int64, in SendMessageInput) (*entities.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return nil, domainerrors.BadRequest("Message content is required")
	}
	for i := range in.Attachments {
		if !in.Attachments[i].HasValidShape() {
			return nil, domainerrors.AttachmentShape("Each attachment needs exactly one of url or blob_id")
		}
	}

	task, members, err := u.authorize(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if in.IsPrestartNote {
		if task.PosterID != userID || task.Status != entities.TaskStatusOpen {
			return nil, domainerrors.Forbidden("Only the poster can leave notes before the task starts")
		}
		key := "prestart_note:" + strconv.FormatInt(task.ID, 10) + ":" + userID
		ok, err := u.limiter.Allow(ctx, key,
			redis.Window{Limit: u.business.PrestartNotesPerMinute, Period: time.Minute},
			redis.Window{Limit: u.business.PrestartNotesPerDay, Period: 24 * time.Hour},
		)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domainerrors.RateLimited("Too many notes, please try again later")
		}
	} else if task.Status != entities.TaskStatusInProgress && !task.HasTaker() {
		return nil, domainerrors.Forbidden("Chat opens once the task has started")
	}

	now := u.clock.Now()
	msg := &entities.Message{
		SenderID:         &userID,
		TaskID:           &task.ID,
		ConversationType: entities.ConversationTask,
		MessageType:      entities.MessageTypeNormal,
		Content:          content,
		Attachments:      in.Attachments,
		CreatedAt:        now,
	}
	if in.IsPrestartNote {
		msg.Meta = &entities.MessageMeta{Version: messageMetaVersion, IsPrestartNote: true}
	}

	err = u.uow.Do(ctx, func(ctx context.Context) error {
		if err := u.store.Messages.Create(ctx, msg); err != nil {
			return err
		}
		sender, err := getUser(ctx, u.store.Users, userID)
		if err != nil {
			return err
		}
		others := make([]string, 0, len(members))
		for _, id := range members {
			if id != userID {
				others = append(others, id)
			}
		}
		return u.notifier.notifyAll(ctx, others, NotifyInput{
			Type:      entities.NotificationTaskMessage,
			RelatedID: task.ID,
			Vars:      taskVars(task, "user_name", sender.Name, "message", preview(content)),
		})
	})
	if err != nil {
		return nil, err
	}
	u.signAttachments(ctx, []*entities.Message{msg}, members)
	return msg, nil
}

// PostSystemMessage writes a system-authored line into the task chat.
func (u *ChatUsecase) PostSystemMessage(ctx context.Context, taskID int64, content, event string) (*entities.Message, error) {
	id := taskID
	msg := &entities.Message{
		TaskID:           &id,
		ConversationType: entities.ConversationTask,
		MessageType:      entities.MessageTypeSystem,
		Content:          content,
		Meta:             &entities.MessageMeta{Version: messageMetaVersion, SystemEvent: event},
		CreatedAt:        u.clock.Now(),
	}
	if err := u.store.Messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// History pages a task chat newest first. cursor is the next_cursor of the
// previous page, empty for the first.
func (u *ChatUsecase) History(ctx context.Context, userID string, taskID int64, cursor string, limit int) (*MessagePage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var before *utils.Cursor
	if cursor != "" {
		c, err := utils.DecodeCursor(cursor)
		if err != nil {
			return nil, domainerrors.BadRequest("Invalid cursor")
		}
		before = c
	}
	_, members, err := u.authorize(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	msgs, err := u.store.Messages.ListTaskHistory(ctx, taskID, before, limit+1)
	if err != nil {
		return nil, err
	}
	page := &MessagePage{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		last := page.Messages[limit-1]
		page.NextCursor = utils.EncodeCursor(last.CreatedAt, last.ID)
		page.HasMore = true
	}
	u.signAttachments(ctx, page.Messages, members)
	return page, nil
}

// signAttachments refreshes private attachment URLs with the current
// signing key, bound to the task's participants.
func (u *ChatUsecase) signAttachments(ctx context.Context, msgs []*entities.Message, members []string) {
	if u.files == nil {
		return
	}
	for _, m := range msgs {
		for i := range m.Attachments {
			a := &m.Attachments[i]
			if a.BlobID == nil || *a.BlobID == "" {
				continue
			}
			url, err := u.files.SignedURL(*a.BlobID, members)
			if err != nil {
				logger.Warn(ctx, "Sign attachment URL failed", zap.Int64("attachment_id", a.ID), zap.Error(err))
				continue
			}
			a.URL = &url
		}
	}
}

// MarkRead records receipts either up to a message or for explicit ids and
// moves the read cursor forward. It returns the number of new receipts.
func (u *ChatUsecase) MarkRead(ctx context.Context, userID string, taskID int64, in MarkReadInput) (int, error) {
	if in.UptoMessageID == nil && len(in.MessageIDs) == 0 {
		return 0, domainerrors.BadRequest("Provide upto_message_id or message_ids")
	}
	if _, _, err := u.authorize(ctx, userID, taskID); err != nil {
		return 0, err
	}
	marked := 0
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		now := u.clock.Now()
		var ids []int64
		var watermark int64
		if in.UptoMessageID != nil {
			upto, err := u.store.Messages.GetByID(ctx, *in.UptoMessageID)
			if err != nil {
				if domainerrors.Is(err, domainerrors.ErrNotFound) {
					return domainerrors.NotFound("Message not found")
				}
				return err
			}
			if upto.TaskID == nil || *upto.TaskID != taskID {
				return domainerrors.NotFound("Message not found")
			}
			ids, err = u.store.Messages.IDsFromOthersUpTo(ctx, taskID, userID, upto.CreatedAt, upto.ID)
			if err != nil {
				return err
			}
			watermark = upto.ID
		} else {
			var err error
			ids, err = u.store.Messages.FilterFromOthers(ctx, taskID, userID, in.MessageIDs)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if id > watermark {
					watermark = id
				}
			}
		}
		n, err := u.store.Messages.MarkRead(ctx, userID, ids, now)
		if err != nil {
			return err
		}
		marked = n
		if watermark == 0 {
			return nil
		}
		return u.store.Messages.AdvanceCursor(ctx, taskID, userID, watermark, now)
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// UnreadCount is the unread total of one task chat.
func (u *ChatUsecase) UnreadCount(ctx context.Context, userID string, taskID int64) (int64, error) {
	if _, _, err := u.authorize(ctx, userID, taskID); err != nil {
		return 0, err
	}
	return u.store.Messages.CountUnread(ctx, taskID, userID)
}

// UnreadTotal sums unread counts over every task the user is active in,
// paging tasks rather than messages.
func (u *ChatUsecase) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	for offset := 0; ; offset += unreadTaskPage {
		tasks, err := u.store.Tasks.ListActiveForUser(ctx, userID, unreadTaskPage, offset)
		if err != nil {
			return 0, err
		}
		for _, t := range tasks {
			n, err := u.store.Messages.CountUnread(ctx, t.ID, userID)
			if err != nil {
				return 0, err
			}
			total += n
		}
		if len(tasks) < unreadTaskPage {
			return total, nil
		}
	}
}

// TaskChats lists the user's task chats with their unread count and last
// message.
func (u *ChatUsecase) TaskChats(ctx context.Context, userID string, limit, offset int) ([]*entities.TaskChatSummary, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	tasks, err := u.store.Tasks.ListActiveForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*entities.TaskChatSummary, 0, len(tasks))
	for _, t := range tasks {
		unread, err := u.store.Messages.CountUnread(ctx, t.ID, userID)
		if err != nil {
			return nil, err
		}
		last, err := u.store.Messages.LatestInTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &entities.TaskChatSummary{Task: t, UnreadCount: unread, LastMessage: last})
	}
	return out, nil
}
