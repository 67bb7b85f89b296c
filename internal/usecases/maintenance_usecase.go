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
	"link2ur.backend/internal/domain/lifecycle"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/logger"
	"link2ur.backend/pkg/utils"
)

const (
	sweepBatch          = 100
	reminderWindow      = 15 * time.Minute
	reminderDedup       = time.Hour
	staleDisputeDedup   = 24 * time.Hour
	timeSlotRetention   = 30 * 24 * time.Hour
	deviceTokenIdleDays = 90
	pointsExpiryBatch   = 500
	autoConfirmSource   = "task_auto_confirm"
)

var (
	paymentReminderHours  = []int{12, 6, 1}
	deadlineReminderHours = []int{24, 12, 6, 1}
	confirmReminders      = []struct {
		hours int
		bit   int
	}{
		{72, entities.ReminderBit72h},
		{24, entities.ReminderBit24h},
		{6, entities.ReminderBit6h},
		{1, entities.ReminderBit1h},
	}
)

// MaintenanceUsecase is the logic behind the scheduled jobs. Every method
// is safe to run repeatedly and concurrently with itself.
type MaintenanceUsecase struct {
	store        *repositories.Store
	uow          repositories.UnitOfWork
	payments     *PaymentUsecase
	cancellation *CancellationUsecase
	chat         *ChatUsecase
	notifier     *NotificationUsecase
	files        FileStore
	business     config.BusinessConfig
	clock        clock.Clock
}

func NewMaintenanceUsecase(
	store *repositories.Store,
	uow repositories.UnitOfWork,
	payments *PaymentUsecase,
	cancellation *CancellationUsecase,
	chat *ChatUsecase,
	notifier *NotificationUsecase,
	files FileStore,
	business config.BusinessConfig,
	clk clock.Clock,
) *MaintenanceUsecase {
	return &MaintenanceUsecase{
		store:        store,
		uow:          uow,
		payments:     payments,
		cancellation: cancellation,
		chat:         chat,
		notifier:     notifier,
		files:        files,
		business:     business,
		clock:        clk,
	}
}

// sweep selects a batch with SKIP LOCKED and runs fn for each task in its
// own savepoint, so one failure only undoes that task. fn reports whether
// it changed the task.
func (u *MaintenanceUsecase) sweep(ctx context.Context,
	list func(ctx context.Context) ([]*entities.Task, error),
	fn func(ctx context.Context, task *entities.Task) (bool, error)) (int, error) {
	done := 0
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		tasks, err := list(u.uow.WithSkipLocked(ctx))
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if ctx.Err() != nil {
				return nil
			}
			var changed bool
			err := u.uow.Do(ctx, func(ctx context.Context) error {
				var err error
				changed, err = fn(ctx, t)
				return err
			})
			if err != nil {
				logger.Warn(ctx, "Task skipped", zap.Int64("task_id", t.ID), zap.Error(err))
				continue
			}
			if changed {
				done++
			}
		}
		return nil
	})
	return done, err
}

// relock re-reads task under lock inside the item's savepoint.
func (u *MaintenanceUsecase) relock(ctx context.Context, id int64) (*entities.Task, error) {
	return getTask(u.uow.WithLock(ctx), u.store.Tasks, id)
}

func (u *MaintenanceUsecase) ExpirePromotions(ctx context.Context) (int, error) {
	now := u.clock.Now()
	coupons, err := u.store.Promotions.ExpireCoupons(ctx, now)
	if err != nil {
		return 0, err
	}
	codes, err := u.store.Promotions.ExpireInvitationCodes(ctx, now)
	if err != nil {
		return int(coupons), err
	}
	return int(coupons + codes), nil
}

// ExpirePoints debits expired earnings. An earning larger than the current
// balance is marked expired without a debit.
func (u *MaintenanceUsecase) ExpirePoints(ctx context.Context) (int, error) {
	now := u.clock.Now()
	earnings, err := u.store.Points.ListExpiredEarnings(ctx, now, pointsExpiryBatch)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, e := range earnings {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		debited, err := u.store.Points.ExpireEarning(ctx, e, now)
		if err != nil {
			logger.Warn(ctx, "Points expiry failed", zap.Int64("transaction_id", e.ID), zap.Error(err))
			continue
		}
		if !debited {
			logger.Info(ctx, "Points expired without debit, balance too low",
				zap.String("user_id", e.UserID), zap.Int64("amount", e.Amount))
		}
		done++
	}
	return done, nil
}

// CancelExpiredOpenTasks cancels open tasks whose deadline has passed.
func (u *MaintenanceUsecase) CancelExpiredOpenTasks(ctx context.Context) (int, error) {
	now := u.clock.Now()
	return u.sweep(ctx,
		func(ctx context.Context) ([]*entities.Task, error) {
			return u.store.Tasks.ListOpenPastDeadline(ctx, now, sweepBatch)
		},
		func(ctx context.Context, t *entities.Task) (bool, error) {
			task, err := u.relock(ctx, t.ID)
			if err != nil {
				return false, err
			}
			if task.Status != entities.TaskStatusOpen || !task.DeadlinePassed(now) {
				return false, nil
			}
			return true, u.cancellation.cancelTask(ctx, task, lifecycle.EventExpireOpen, "", "", CancelReasonExpired, now)
		})
}

// CancelExpiredPayments cancels tasks whose payment window closed unpaid.
func (u *MaintenanceUsecase) CancelExpiredPayments(ctx context.Context) (int, error) {
	now := u.clock.Now()
	return u.sweep(ctx,
		func(ctx context.Context) ([]*entities.Task, error) {
			return u.store.Tasks.ListExpiredPayments(ctx, now, sweepBatch)
		},
		func(ctx context.Context, t *entities.Task) (bool, error) {
			task, err := u.relock(ctx, t.ID)
			if err != nil {
				return false, err
			}
			if task.Status != entities.TaskStatusPendingPayment || task.IsPaid ||
				task.PaymentExpiresAt == nil || !task.PaymentExpiresAt.Before(now) {
				return false, nil
			}
			return true, u.cancellation.cancelTask(ctx, task, lifecycle.EventPaymentExpired, "", "", CancelReasonPaymentExpired, now)
		})
}

// remind sends one reminder unless the same user got it for the same task
// within the last hour.
func (u *MaintenanceUsecase) remind(ctx context.Context, userID, notificationType string, task *entities.Task, hours int, now time.Time) (bool, error) {
	if userID == "" {
		return false, nil
	}
	seen, err := u.store.Notifications.ExistsSince(ctx, userID, notificationType, task.ID, now.Add(-reminderDedup))
	if err != nil || seen {
		return false, err
	}
	h := strconv.Itoa(hours)
	_, err = u.notifier.Notify(ctx, NotifyInput{
		UserID:         userID,
		Type:           notificationType,
		RelatedID:      task.ID,
		Vars:           taskVars(task, "hours", h),
		IdempotencyKey: utils.IdempotencyKey(notificationType, task.ID, userID, h+"h"),
	})
	return err == nil, err
}

// SendPaymentReminders nudges posters 12, 6 and 1 hours before an unpaid
// payment window closes.
func (u *MaintenanceUsecase) SendPaymentReminders(ctx context.Context) (int, error) {
	now := u.clock.Now()
	sent := 0
	for _, h := range paymentReminderHours {
		at := now.Add(time.Duration(h) * time.Hour)
		tasks, err := u.store.Tasks.ListPaymentExpiringBetween(ctx, at.Add(-reminderWindow), at)
		if err != nil {
			return sent, err
		}
		for _, t := range tasks {
			ok, err := u.remind(ctx, t.PosterID, entities.NotificationPaymentReminder, t, h, now)
			if err != nil {
				logger.Warn(ctx, "Payment reminder failed", zap.Int64("task_id", t.ID), zap.Error(err))
				continue
			}
			if ok {
				sent++
			}
		}
	}
	return sent, nil
}

// SendDeadlineReminders warns both parties of in-progress tasks 24, 12, 6
// and 1 hours before the deadline.
func (u *MaintenanceUsecase) SendDeadlineReminders(ctx context.Context) (int, error) {
	now := u.clock.Now()
	sent := 0
	for _, h := range deadlineReminderHours {
		at := now.Add(time.Duration(h) * time.Hour)
		tasks, err := u.store.Tasks.ListInProgressDeadlineBetween(ctx, at.Add(-reminderWindow), at)
		if err != nil {
			return sent, err
		}
		for _, t := range tasks {
			for _, userID := range []string{takerOf(t), t.PosterID} {
				ok, err := u.remind(ctx, userID, entities.NotificationTaskDeadlineReminder, t, h, now)
				if err != nil {
					logger.Warn(ctx, "Deadline reminder failed", zap.Int64("task_id", t.ID), zap.Error(err))
					continue
				}
				if ok {
					sent++
				}
			}
		}
	}
	return sent, nil
}

// AutoConfirmExpiredTasks confirms non-expert tasks whose confirmation
// deadline passed and pays the taker. Completion points are granted once
// per task and taker.
func (u *MaintenanceUsecase) AutoConfirmExpiredTasks(ctx context.Context) (int, error) {
	now := u.clock.Now()
	return u.sweep(ctx,
		func(ctx context.Context) ([]*entities.Task, error) {
			return u.store.Tasks.ListAutoConfirmCandidates(ctx, now, sweepBatch)
		},
		func(ctx context.Context, t *entities.Task) (bool, error) {
			task, err := u.relock(ctx, t.ID)
			if err != nil {
				return false, err
			}
			if task.IsExpertService() || task.Status != entities.TaskStatusPendingConfirmation ||
				task.ConfirmationDeadline == nil || task.ConfirmationDeadline.After(now) {
				return false, nil
			}
			if err := u.payments.settlementBlocked(ctx, task); err != nil {
				return false, nil
			}
			if _, err := u.payments.settle(ctx, task, lifecycle.EventAutoConfirm, now); err != nil {
				return false, err
			}
			taker := takerOf(task)
			if err := u.grantCompletionPoints(ctx, task.ID, taker, now); err != nil {
				return false, err
			}
			if err := addHistory(ctx, u.store.Tasks, task.ID, "", entities.ActionAutoConfirmed, "", now); err != nil {
				return false, err
			}
			return true, u.notifier.notifyAll(ctx, []string{task.PosterID, taker}, NotifyInput{
				Type:      entities.NotificationTaskAutoConfirmed,
				RelatedID: task.ID,
				Vars:      taskVars(task),
			})
		})
}

func (u *MaintenanceUsecase) grantCompletionPoints(ctx context.Context, taskID int64, takerID string, now time.Time) error {
	if takerID == "" || u.business.CompletionPoints <= 0 {
		return nil
	}
	err := u.store.Points.Grant(ctx, &entities.PointsTransaction{
		UserID:         takerID,
		Type:           entities.PointsEarn,
		Amount:         u.business.CompletionPoints,
		Source:         autoConfirmSource,
		IdempotencyKey: utils.IdempotencyKey("task_auto_confirm", taskID, takerID),
		CreatedAt:      now,
	})
	if domainerrors.Is(err, domainerrors.ErrAlreadyExists) {
		return nil
	}
	return err
}

// SendConfirmationReminders reminds posters 72, 24, 6 and 1 hours before a
// non-expert task is confirmed automatically. Each threshold fires once,
// tracked in the task's reminder bitmask.
func (u *MaintenanceUsecase) SendConfirmationReminders(ctx context.Context) (int, error) {
	now := u.clock.Now()
	sent := 0
	for _, r := range confirmReminders {
		at := now.Add(time.Duration(r.hours) * time.Hour)
		tasks, err := u.store.Tasks.ListAwaitingConfirmation(ctx, false, at.Add(-reminderWindow), at.Add(reminderWindow))
		if err != nil {
			return sent, err
		}
		for _, t := range tasks {
			if t.ConfirmationReminderSent&r.bit != 0 {
				continue
			}
			ok, err := u.markReminder(ctx, t.ID, r.bit, func(ctx context.Context, task *entities.Task) error {
				_, err := u.notifier.Notify(ctx, NotifyInput{
					UserID:    task.PosterID,
					Type:      entities.NotificationConfirmReminder,
					RelatedID: task.ID,
					Vars:      taskVars(task, "hours", strconv.Itoa(r.hours)),
				})
				return err
			})
			if err != nil {
				logger.Warn(ctx, "Confirmation reminder failed", zap.Int64("task_id", t.ID), zap.Error(err))
				continue
			}
			if ok {
				sent++
			}
		}
	}
	return sent, nil
}

// markReminder sets bit on the locked task and runs send, unless the bit
// was set in the meantime.
func (u *MaintenanceUsecase) markReminder(ctx context.Context, taskID int64, bit int,
	send func(ctx context.Context, task *entities.Task) error) (bool, error) {
	sent := false
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.relock(ctx, taskID)
		if err != nil {
			return err
		}
		if task.ConfirmationReminderSent&bit != 0 {
			return nil
		}
		task.ConfirmationReminderSent |= bit
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		if err := send(ctx, task); err != nil {
			return err
		}
		sent = true
		return nil
	})
	return sent, err
}

// CheckStaleDisputes escalates disputes left pending too long to every
// active admin, at most once a day per dispute.
func (u *MaintenanceUsecase) CheckStaleDisputes(ctx context.Context) (int, error) {
	now := u.clock.Now()
	disputes, err := u.store.Disputes.ListStalePending(ctx, now.Add(-u.business.StaleDisputeAge))
	if err != nil {
		return 0, err
	}
	if len(disputes) == 0 {
		return 0, nil
	}
	admins, err := adminIDs(ctx, u.store.Staff)
	if err != nil {
		return 0, err
	}
	days := strconv.Itoa(int(u.business.StaleDisputeAge / (24 * time.Hour)))
	sent := 0
	for _, d := range disputes {
		task, err := getTask(ctx, u.store.Tasks, d.TaskID)
		if err != nil {
			logger.Warn(ctx, "Stale dispute without task", zap.Int64("dispute_id", d.ID), zap.Error(err))
			continue
		}
		for _, admin := range admins {
			seen, err := u.store.Notifications.ExistsSince(ctx, admin, entities.NotificationDisputeStale, d.ID, now.Add(-staleDisputeDedup))
			if err != nil {
				return sent, err
			}
			if seen {
				continue
			}
			if _, err := u.notifier.Notify(ctx, NotifyInput{
				UserID:    admin,
				Type:      entities.NotificationDisputeStale,
				RelatedID: d.ID,
				Vars:      taskVars(task, "days", days),
				Data:      map[string]any{"task_id": task.ID},
				Channels:  []entities.Channel{entities.ChannelEmail},
			}); err != nil {
				return sent, err
			}
			sent++
		}
	}
	return sent, nil
}

// AutoTransferExpertTasks confirms expert-service tasks past their grace
// period and pays the expert. At most AutoTransferBatchSize tasks per run.
func (u *MaintenanceUsecase) AutoTransferExpertTasks(ctx context.Context) (int, error) {
	now := u.clock.Now()
	limit := u.business.AutoTransferBatchSize
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	return u.sweep(ctx,
		func(ctx context.Context) ([]*entities.Task, error) {
			return u.store.Tasks.ListAutoTransferCandidates(ctx, now, limit)
		},
		func(ctx context.Context, t *entities.Task) (bool, error) {
			task, err := u.relock(ctx, t.ID)
			if err != nil {
				return false, err
			}
			if !task.IsExpertService() || task.AutoConfirmed || task.IsConfirmed || !task.IsPaid ||
				task.ConfirmationDeadline == nil || task.ConfirmationDeadline.After(now) {
				return false, nil
			}
			if err := u.payments.settlementBlocked(ctx, task); err != nil {
				return false, nil
			}
			remaining, err := remainingEscrow(ctx, u.store.Transfers, task)
			if err != nil {
				return false, err
			}
			if !remaining.IsPositive() {
				return false, nil
			}
			tr, err := u.payments.settle(ctx, task, lifecycle.EventAutoTransfer, now)
			if err != nil {
				return false, err
			}
			if tr == nil {
				return false, nil
			}
			if err := addHistory(ctx, u.store.Tasks, task.ID, "", entities.ActionAutoTransferred, formatMoney(tr.Amount), now); err != nil {
				return false, err
			}
			if err := u.notifier.notifyAll(ctx, []string{task.PosterID, takerOf(task)}, NotifyInput{
				Type:      entities.NotificationAutoConfirmTransfer,
				RelatedID: task.ID,
				Vars:      taskVars(task, "amount", formatMoney(tr.Amount)),
			}); err != nil {
				return false, err
			}
			content := "The service was confirmed automatically and £" + formatMoney(tr.Amount) + " was released to the expert."
			if _, err := u.chat.PostSystemMessage(ctx, task.ID, content, "auto_transfer"); err != nil {
				return false, err
			}
			return true, nil
		})
}

// SendAutoTransferReminders tells both parties of an expert task 2 days and
// 1 day before it is confirmed and paid out automatically.
func (u *MaintenanceUsecase) SendAutoTransferReminders(ctx context.Context) (int, error) {
	now := u.clock.Now()
	day := 24 * time.Hour
	windows := []struct {
		days     int
		bit      int
		from, to time.Time
	}{
		{2, entities.ReminderBitTransfer2d, now.Add(day), now.Add(2 * day)},
		{1, entities.ReminderBitTransfer1d, now, now.Add(day)},
	}
	sent := 0
	for _, w := range windows {
		tasks, err := u.store.Tasks.ListAwaitingConfirmation(ctx, true, w.from, w.to)
		if err != nil {
			return sent, err
		}
		for _, t := range tasks {
			if t.ConfirmationReminderSent&w.bit != 0 {
				continue
			}
			days := strconv.Itoa(w.days)
			ok, err := u.markReminder(ctx, t.ID, w.bit, func(ctx context.Context, task *entities.Task) error {
				return u.notifier.notifyAll(ctx, []string{task.PosterID, takerOf(task)}, NotifyInput{
					Type:      entities.NotificationAutoTransferRemind,
					RelatedID: task.ID,
					Vars:      taskVars(task, "days", days),
				})
			})
			if err != nil {
				logger.Warn(ctx, "Auto-transfer reminder failed", zap.Int64("task_id", t.ID), zap.Error(err))
				continue
			}
			if ok {
				sent++
			}
		}
	}
	return sent, nil
}

// CleanupCompletedTaskFiles removes images and chat attachments of tasks
// completed more than CleanupCompletedTaskDays ago.
func (u *MaintenanceUsecase) CleanupCompletedTaskFiles(ctx context.Context) (int, error) {
	cutoff := u.clock.Now().AddDate(0, 0, -u.business.CleanupCompletedTaskDays)
	tasks, err := u.store.Tasks.ListCompletedWithFiles(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	return u.cleanupFiles(ctx, tasks)
}

// CleanupExpiredTaskFiles does the same for cancelled tasks and open tasks
// past their deadline.
func (u *MaintenanceUsecase) CleanupExpiredTaskFiles(ctx context.Context) (int, error) {
	cutoff := u.clock.Now().AddDate(0, 0, -u.business.CleanupExpiredTaskDays)
	tasks, err := u.store.Tasks.ListExpiredWithFiles(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	return u.cleanupFiles(ctx, tasks)
}

// cleanupFiles deletes stored files first and then clears the references
// so a task is not picked up again.
func (u *MaintenanceUsecase) cleanupFiles(ctx context.Context, tasks []*entities.Task) (int, error) {
	done := 0
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		attachments, err := u.store.Messages.ListTaskAttachments(ctx, t.ID)
		if err != nil {
			return done, err
		}
		ids := make([]int64, 0, len(attachments))
		var blobs []string
		for _, a := range attachments {
			ids = append(ids, a.ID)
			if a.BlobID != nil && *a.BlobID != "" {
				blobs = append(blobs, *a.BlobID)
			}
		}
		if u.files != nil {
			u.files.DeleteAll(ctx, t.Images, blobs)
		}
		if len(ids) > 0 {
			if err := u.store.Messages.DeleteAttachments(ctx, ids); err != nil {
				return done, err
			}
		}
		if err := u.store.Tasks.ClearImages(ctx, t.ID); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// CleanupFleaMarketItems soft-deletes listings not refreshed within the
// auto-delete window and removes their images.
func (u *MaintenanceUsecase) CleanupFleaMarketItems(ctx context.Context) (int, error) {
	cutoff := u.clock.Now().AddDate(0, 0, -u.business.FleaMarketAutoDeleteDays)
	items, err := u.store.FleaMarket.ListStale(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, item := range items {
		if err := u.store.FleaMarket.SoftDelete(ctx, item.ID); err != nil {
			logger.Warn(ctx, "Flea market cleanup failed", zap.Int64("item_id", item.ID), zap.Error(err))
			continue
		}
		if u.files != nil && len(item.Images) > 0 {
			u.files.DeleteAll(ctx, item.Images, nil)
		}
		done++
	}
	return done, nil
}

func (u *MaintenanceUsecase) CleanupExpiredTimeSlots(ctx context.Context) (int, error) {
	n, err := u.store.TimeSlots.DeleteExpired(ctx, u.clock.Now().Add(-timeSlotRetention))
	return int(n), err
}

// GenerateTimeSlots materializes each active service's weekly schedule for
// the coming month. Existing slots, including manually deleted ones, are
// left alone.
func (u *MaintenanceUsecase) GenerateTimeSlots(ctx context.Context) (int, error) {
	now := u.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	until := today.AddDate(0, 1, 0)

	services, err := u.store.TimeSlots.ListActiveServices(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, svc := range services {
		if len(svc.WeeklyConfig) == 0 {
			continue
		}
		existing, err := u.store.TimeSlots.ListSlots(ctx, svc.ID, today, until.AddDate(0, 0, 1))
		if err != nil {
			return created, err
		}
		taken := make(map[int64]bool, len(existing))
		for _, s := range existing {
			taken[s.StartTime.UTC().Unix()] = true
		}
		for day := today; !day.After(until); day = day.AddDate(0, 0, 1) {
			windows := svc.WeeklyConfig[strings.ToLower(day.Weekday().String())]
			for _, w := range windows {
				start, okStart := clockOn(day, w.Start)
				end, okEnd := clockOn(day, w.End)
				if !okStart || !okEnd || !end.After(start) || !start.After(now) || taken[start.Unix()] {
					continue
				}
				err := u.store.TimeSlots.CreateSlot(ctx, &entities.ServiceTimeSlot{
					ServiceID: svc.ID,
					SlotDate:  day,
					StartTime: start,
					EndTime:   end,
					CreatedAt: now,
				})
				if err != nil && !domainerrors.Is(err, domainerrors.ErrAlreadyExists) {
					return created, err
				}
				taken[start.Unix()] = true
				if err == nil {
					created++
				}
			}
		}
	}
	return created, nil
}

// clockOn parses "HH:MM" as a time on day.
func clockOn(day time.Time, hhmm string) (time.Time, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), true
}

// ExpireVIPSubscriptions expires lapsed subscriptions and downgrades users
// left without an active one.
func (u *MaintenanceUsecase) ExpireVIPSubscriptions(ctx context.Context) (int, error) {
	now := u.clock.Now()
	subs, err := u.store.VIP.ListLapsed(ctx, now, sweepBatch)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, sub := range subs {
		err := u.uow.Do(ctx, func(ctx context.Context) error {
			if err := u.store.VIP.MarkExpired(ctx, sub.ID); err != nil {
				return err
			}
			other, err := u.store.VIP.HasOtherActive(ctx, sub.UserID, sub.ID, now)
			if err != nil || other {
				return err
			}
			if err := u.store.Users.UpdateLevel(ctx, sub.UserID, entities.UserTierNormal); err != nil {
				return err
			}
			_, err = u.notifier.Notify(ctx, NotifyInput{
				UserID:    sub.UserID,
				Type:      entities.NotificationVIPExpired,
				RelatedID: sub.ID,
			})
			return err
		})
		if err != nil {
			logger.Warn(ctx, "VIP expiry failed", zap.Int64("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

func (u *MaintenanceUsecase) CleanupInactiveDeviceTokens(ctx context.Context) (int, error) {
	n, err := u.store.DeviceTokens.DeactivateUnusedSince(ctx, u.clock.Now().AddDate(0, 0, -deviceTokenIdleDays))
	return int(n), err
}

func (u *MaintenanceUsecase) RetryTransfers(ctx context.Context) (int, error) {
	return u.payments.RetryTransfers(ctx)
}
