package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
)

func TestChatUsecase_SendRules(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	h.seedUser(t, otherID, nil)
	ctx := context.Background()
	open := h.seedTask(t, nil)
	running := h.seedPaidTask(t, entities.TaskStatusInProgress, nil)

	_, err := h.chat.Send(ctx, posterID, running.ID, SendMessageInput{Content: "  "})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	_, err = h.chat.Send(ctx, otherID, running.ID, SendMessageInput{Content: "hi"})
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
	_, err = h.chat.Send(ctx, posterID, open.ID, SendMessageInput{Content: "hi"})
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	url := "https://cdn.example.com/a.png"
	blob := "blob-1"
	_, err = h.chat.Send(ctx, takerID, running.ID, SendMessageInput{Attachments: []entities.MessageAttachment{
		{AttachmentType: "image", URL: &url, BlobID: &blob},
	}})
	require.ErrorIs(t, err, domainerrors.ErrAttachmentShape)

	msg, err := h.chat.Send(ctx, takerID, running.ID, SendMessageInput{Content: "On my way", Attachments: []entities.MessageAttachment{
		{AttachmentType: "file", BlobID: &blob},
	}})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
	require.Len(t, msg.Attachments, 1)
	require.NotNil(t, msg.Attachments[0].URL)
	assert.Equal(t, "/files/private/blob-1?token=t", *msg.Attachments[0].URL)
	assert.Contains(t, h.notificationTypes(t, posterID), entities.NotificationTaskMessage)
	assert.NotContains(t, h.notificationTypes(t, takerID), entities.NotificationTaskMessage)
}

func TestChatUsecase_PrestartNotesAreRateLimited(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	ctx := context.Background()
	task := h.seedTask(t, nil)

	msg, err := h.chat.Send(ctx, posterID, task.ID, SendMessageInput{Content: "Bring a ladder", IsPrestartNote: true})
	require.NoError(t, err)
	require.NotNil(t, msg.Meta)
	assert.True(t, msg.Meta.IsPrestartNote)

	_, err = h.chat.Send(ctx, posterID, task.ID, SendMessageInput{Content: "and gloves", IsPrestartNote: true})
	require.ErrorIs(t, err, domainerrors.ErrRateLimited)

	h.clock.Advance(61 * time.Second)
	_, err = h.chat.Send(ctx, posterID, task.ID, SendMessageInput{Content: "and gloves", IsPrestartNote: true})
	require.NoError(t, err)
}

func TestChatUsecase_HistoryPagesWithCursor(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusInProgress, nil)

	for i := 0; i < 5; i++ {
		_, err := h.chat.Send(ctx, takerID, task.ID, SendMessageInput{Content: string(rune('a' + i))})
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}

	page, err := h.chat.History(ctx, posterID, task.ID, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "e", page.Messages[0].Content)
	assert.Equal(t, "d", page.Messages[1].Content)

	var seen []string
	cursor := page.NextCursor
	for cursor != "" {
		next, err := h.chat.History(ctx, posterID, task.ID, cursor, 2)
		require.NoError(t, err)
		for _, m := range next.Messages {
			seen = append(seen, m.Content)
		}
		cursor = next.NextCursor
	}
	assert.Equal(t, []string{"c", "b", "a"}, seen)

	_, err = h.chat.History(ctx, posterID, task.ID, "garbage", 2)
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestChatUsecase_MarkReadAndUnreadCounts(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusInProgress, nil)

	var ids []int64
	for i := 0; i < 3; i++ {
		m, err := h.chat.Send(ctx, takerID, task.ID, SendMessageInput{Content: "msg"})
		require.NoError(t, err)
		ids = append(ids, m.ID)
		h.clock.Advance(time.Second)
	}
	own, err := h.chat.Send(ctx, posterID, task.ID, SendMessageInput{Content: "mine"})
	require.NoError(t, err)

	n, err := h.chat.UnreadCount(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, err = h.chat.MarkRead(ctx, posterID, task.ID, MarkReadInput{})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	marked, err := h.chat.MarkRead(ctx, posterID, task.ID, MarkReadInput{MessageIDs: []int64{ids[0], own.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, marked, "own messages are not receipted")

	upto := ids[2]
	marked, err = h.chat.MarkRead(ctx, posterID, task.ID, MarkReadInput{UptoMessageID: &upto})
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	n, err = h.chat.UnreadCount(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	total, err := h.chat.UnreadTotal(ctx, takerID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	chats, err := h.chat.TaskChats(ctx, takerID, 0, 0)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.EqualValues(t, 1, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "mine", chats[0].LastMessage.Content)
}

func TestChatUsecase_SystemMessageHasNoSender(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusCompleted, nil)

	msg, err := h.chat.PostSystemMessage(ctx, task.ID, "Paid out", "auto_transfer")
	require.NoError(t, err)
	assert.Nil(t, msg.SenderID)
	assert.Equal(t, entities.MessageTypeSystem, msg.MessageType)

	page, err := h.chat.History(ctx, posterID, task.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.NotNil(t, page.Messages[0].Meta)
	assert.Equal(t, "auto_transfer", page.Messages[0].Meta.SystemEvent)

	n, err := h.chat.UnreadCount(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "system lines are not unread")
}
