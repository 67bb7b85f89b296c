package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
)

func TestTaskUsecase_CreateValidatesAndDerivesLevel(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	ctx := context.Background()
	deadline := h.clock.Now().Add(24 * time.Hour)

	cases := []struct {
		name string
		in   CreateTaskInput
	}{
		{"empty title", CreateTaskInput{Title: " ", Description: "d", Deadline: &deadline}},
		{"no deadline and not flexible", CreateTaskInput{Title: "t", Description: "d"}},
		{"both deadline and flexible", CreateTaskInput{Title: "t", Description: "d", Deadline: &deadline, IsFlexible: true}},
		{"past deadline", CreateTaskInput{Title: "t", Description: "d", Deadline: ptrTime(h.clock.Now().Add(-time.Hour))}},
		{"negative reward", CreateTaskInput{Title: "t", Description: "d", IsFlexible: true, BaseReward: decimal.NewFromInt(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.tasks.Create(ctx, posterID, tc.in)
			require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
		})
	}

	task, err := h.tasks.Create(ctx, posterID, CreateTaskInput{
		Title:       "Assemble wardrobe",
		Description: "IKEA PAX",
		TaskType:    "Housekeeping",
		Location:    "London",
		BaseReward:  decimal.RequireFromString("75"),
		Deadline:    &deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusOpen, task.Status)
	assert.Equal(t, entities.UserTierVIP, task.TaskLevel)
	assert.Equal(t, entities.DefaultCurrency, task.Currency)

	history, err := h.tasks.History(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entities.ActionCreated, history[0].Action)
}

func TestTaskUsecase_CreateUsesSettingsThreshold(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	ctx := context.Background()
	require.NoError(t, h.store.Settings.Set(ctx, entities.SettingVIPPriceThreshold, "20"))

	task, err := h.tasks.Create(ctx, posterID, CreateTaskInput{
		Title: "Walk the dog", Description: "30 minutes", BaseReward: decimal.NewFromInt(25), IsFlexible: true,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.UserTierVIP, task.TaskLevel)
}

func TestTaskUsecase_AcceptOnlyOnce(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	h.seedUser(t, otherID, nil)
	ctx := context.Background()
	task := h.seedTask(t, nil)

	_, err := h.tasks.Accept(ctx, posterID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	got, err := h.tasks.Accept(ctx, takerID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusTaken, got.Status)

	_, err = h.tasks.Accept(ctx, otherID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	reloaded := h.reload(t, task.ID)
	assert.Equal(t, takerID, *reloaded.TakerID)
	assert.Contains(t, h.notificationTypes(t, posterID), entities.NotificationTaskAccepted)
}

func TestTaskUsecase_AcceptRespectsLevel(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	task := h.seedTask(t, func(task *entities.Task) { task.TaskLevel = entities.UserTierSuper })

	_, err := h.tasks.Accept(context.Background(), takerID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
}

func TestTaskUsecase_ApproveAndRejectTaker(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	ctx := context.Background()
	task := h.seedTask(t, nil)

	_, err := h.tasks.Accept(ctx, takerID, task.ID)
	require.NoError(t, err)
	_, err = h.tasks.ApproveTaker(ctx, takerID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	rejected, err := h.tasks.RejectTaker(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusOpen, rejected.Status)
	assert.Nil(t, h.reload(t, task.ID).TakerID)

	_, err = h.tasks.Accept(ctx, takerID, task.ID)
	require.NoError(t, err)
	approved, err := h.tasks.ApproveTaker(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusInProgress, approved.Status)
}

func TestTaskUsecase_CompleteAndConfirmPaysTaker(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedPayee(t, takerID)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusInProgress, nil)

	_, err := h.tasks.Complete(ctx, posterID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	done, err := h.tasks.Complete(ctx, takerID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusPendingConfirmation, done.Status)
	require.NotNil(t, done.ConfirmationDeadline)
	assert.WithinDuration(t, h.clock.Now().Add(h.business.ConfirmationWindow), *done.ConfirmationDeadline, time.Second)

	_, err = h.tasks.Confirm(ctx, takerID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	confirmed, err := h.tasks.Confirm(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TaskStatusCompleted, confirmed.Status)

	reloaded := h.reload(t, task.ID)
	assert.True(t, reloaded.IsConfirmed)
	assert.False(t, reloaded.AutoConfirmed)
	require.NotNil(t, reloaded.PaidToUserID)
	assert.Equal(t, takerID, *reloaded.PaidToUserID)

	transfers, err := h.store.Transfers.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, entities.TransferStatusSucceeded, transfers[0].Status)
	assert.Equal(t, entities.TransferSourceManualConfirm, transfers[0].Metadata.TransferSource)

	sent := h.provider.Transfers()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(2700), sent[0].Amount)
	assert.Equal(t, "acct_"+takerID, sent[0].Destination)

	_, err = h.tasks.Confirm(ctx, posterID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.Len(t, h.provider.Transfers(), 1)
}

func TestTaskUsecase_ConfirmBlockedByDispute(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedPayee(t, takerID)
	h.seedAdmin(t, adminID)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusPendingConfirmation, nil)

	_, err := h.tasks.RaiseDispute(ctx, posterID, task.ID, "")
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	dispute, err := h.tasks.RaiseDispute(ctx, posterID, task.ID, "Half done")
	require.NoError(t, err)
	_, err = h.tasks.RaiseDispute(ctx, posterID, task.ID, "again")
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = h.tasks.Confirm(ctx, posterID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.Empty(t, h.provider.Transfers())

	_, err = h.tasks.ResolveDispute(ctx, takerID, dispute.ID, "nope")
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
	resolved, err := h.tasks.ResolveDispute(ctx, adminID, dispute.ID, "Work accepted")
	require.NoError(t, err)
	assert.Equal(t, entities.DisputeStatusResolved, resolved.Status)

	_, err = h.tasks.Confirm(ctx, posterID, task.ID)
	require.NoError(t, err)
	assert.Len(t, h.provider.Transfers(), 1)
}

func TestTaskUsecase_ReviewOncePerUser(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	h.seedUser(t, otherID, nil)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusCompleted, nil)

	_, err := h.tasks.Review(ctx, posterID, task.ID, ReviewInput{Rating: 4.2})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
	_, err = h.tasks.Review(ctx, otherID, task.ID, ReviewInput{Rating: 4})
	require.ErrorIs(t, err, domainerrors.ErrForbidden)

	review, err := h.tasks.Review(ctx, posterID, task.ID, ReviewInput{Rating: 4.5, Comment: " Great "})
	require.NoError(t, err)
	assert.Equal(t, takerID, review.RevieweeID)
	assert.Equal(t, "Great", review.Comment)

	_, err = h.tasks.Review(ctx, posterID, task.ID, ReviewInput{Rating: 5})
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = h.tasks.Review(ctx, takerID, task.ID, ReviewInput{Rating: 5})
	require.NoError(t, err)
	assert.Contains(t, h.notificationTypes(t, takerID), entities.NotificationTaskReview)
}

func TestTaskUsecase_ListFiltersAndClampsPaging(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	ctx := context.Background()
	h.seedTask(t, func(task *entities.Task) { task.Title = "Cheap"; task.BaseReward = decimal.NewFromInt(5) })
	h.seedTask(t, func(task *entities.Task) { task.Title = "Dear"; task.BaseReward = decimal.NewFromInt(80) })
	h.seedTask(t, func(task *entities.Task) { task.Status = entities.TaskStatusCancelled })

	tasks, total, err := h.tasks.List(ctx, TaskListQuery{PageSize: 1000, SortBy: "reward_desc"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Dear", tasks[0].Title)

	tasks, _, err = h.tasks.List(ctx, TaskListQuery{Keyword: "cheap"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Cheap", tasks[0].Title)
}
