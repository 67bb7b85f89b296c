package usecases

import (
	"context"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/domain/lifecycle"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/logger"
)

// Reason codes carried in task_cancelled notification data.
const (
	CancelReasonPoster         = "poster_cancelled"
	CancelReasonExpired        = "deadline_expired"
	CancelReasonPaymentExpired = "payment_expired"
	CancelReasonReviewed       = "cancel_approved"
)

// CancelResult reports whether a cancel request cancelled the task at once
// or opened a request for staff review.
type CancelResult struct {
	Cancelled bool                        `json:"cancelled"`
	Task      *entities.Task              `json:"task"`
	Request   *entities.TaskCancelRequest `json:"request,omitempty"`
}

// CancellationUsecase cancels tasks and runs the staff review of cancel
// requests and the admin cascade delete.
type CancellationUsecase struct {
	store    *repositories.Store
	uow      repositories.UnitOfWork
	provider PaymentProvider
	files    FileStore
	notifier *NotificationUsecase
	clock    clock.Clock
}

func NewCancellationUsecase(
	store *repositories.Store,
	uow repositories.UnitOfWork,
	provider PaymentProvider,
	files FileStore,
	notifier *NotificationUsecase,
	clk clock.Clock,
) *CancellationUsecase {
	return &CancellationUsecase{
		store:    store,
		uow:      uow,
		provider: provider,
		files:    files,
		notifier: notifier,
		clock:    clk,
	}
}

// Cancel cancels an open task immediately. Later states need a reviewed
// cancel request.
func (u *CancellationUsecase) Cancel(ctx context.Context, userID string, taskID int64, reason string) (*CancelResult, error) {
	reason = strings.TrimSpace(reason)
	res := &CancelResult{}
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		res.Task = task
		now := u.clock.Now()

		if task.Status == entities.TaskStatusOpen {
			if task.PosterID != userID {
				return domainerrors.Forbidden("Only the poster can cancel an open task")
			}
			res.Cancelled = true
			return u.cancelTask(ctx, task, lifecycle.EventCancelOpen, userID, reason, CancelReasonPoster, now)
		}

		if task.PosterID != userID && !task.IsTaker(userID) {
			return domainerrors.Forbidden("Only the poster or taker can cancel this task")
		}
		if _, err := lifecycle.Next(task.Status, lifecycle.EventRequestCancel); err != nil {
			return err
		}
		if reason == "" {
			return domainerrors.BadRequest("A reason is required")
		}
		pending, err := u.store.CancelRequests.HasPending(ctx, taskID)
		if err != nil {
			return err
		}
		if pending {
			return domainerrors.Conflict("A cancel request is already pending")
		}
		req := &entities.TaskCancelRequest{
			TaskID:      taskID,
			RequesterID: userID,
			Reason:      reason,
			Status:      entities.CancelRequestPending,
			CreatedAt:   now,
		}
		if err := u.store.CancelRequests.Create(ctx, req); err != nil {
			return err
		}
		res.Request = req
		if err := addHistory(ctx, u.store.Tasks, taskID, userID, entities.ActionCancelRequested, reason, now); err != nil {
			return err
		}

		other := task.PosterID
		if other == userID {
			other = takerOf(task)
		}
		admins, err := adminIDs(ctx, u.store.Staff)
		if err != nil {
			return err
		}
		return u.notifier.notifyAll(ctx, append([]string{other}, admins...), NotifyInput{
			Type:      entities.NotificationTaskCancelRequest,
			RelatedID: task.ID,
			Vars:      taskVars(task, "reason", reason),
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// cancelTask applies ev to a locked task and runs the cancellation
// cascade: pending applications rejected, participants cancelled, held
// flea-market listings restored and everyone involved notified. The
// unpaid intent and stored images are released after commit.
func (u *CancellationUsecase) cancelTask(ctx context.Context, task *entities.Task, ev lifecycle.Event,
	actorID, reason, code string, now time.Time) error {
	oldTaker := takerOf(task)
	intent := task.PaymentIntentID
	unpaid := !task.IsPaid
	images := task.Images

	if err := lifecycle.Apply(task, ev); err != nil {
		return err
	}
	if ev == lifecycle.EventPaymentExpired {
		task.TakerID = nil
		task.PaymentIntentID = null.String{}
		task.PaymentExpiresAt = nil
	}
	task.Images = nil
	task.UpdatedAt = now
	if err := u.store.Tasks.Update(ctx, task); err != nil {
		return err
	}

	rejected, err := u.store.Applications.RejectPending(ctx, task.ID, 0)
	if err != nil {
		return err
	}
	members, err := u.store.Participants.CancelAll(ctx, task.ID, now)
	if err != nil {
		return err
	}
	if _, err := u.store.FleaMarket.RestoreBySoldTask(ctx, task.ID); err != nil {
		return err
	}

	action := entities.ActionCancelled
	switch ev {
	case lifecycle.EventExpireOpen:
		action = entities.ActionDeadlineExpired
	case lifecycle.EventPaymentExpired:
		action = entities.ActionPaymentExpired
	}
	if err := addHistory(ctx, u.store.Tasks, task.ID, actorID, action, reason, now); err != nil {
		return err
	}

	recipients := []string{task.PosterID, oldTaker}
	for _, a := range rejected {
		recipients = append(recipients, a.ApplicantID)
	}
	for _, m := range members {
		recipients = append(recipients, m.UserID)
	}
	shown := reason
	if shown == "" {
		shown = code
	}
	if err := u.notifier.notifyAll(ctx, recipients, NotifyInput{
		Type:      entities.NotificationTaskCancelled,
		RelatedID: task.ID,
		Vars:      taskVars(task, "reason", shown),
		Data:      map[string]any{"reason": code},
	}); err != nil {
		return err
	}

	u.uow.AfterCommit(ctx, func(ctx context.Context) {
		if unpaid && intent.Valid && u.provider != nil {
			if err := u.provider.CancelIntent(ctx, intent.String); err != nil {
				logger.Warn(ctx, "Cancel payment intent failed", zap.String("payment_intent_id", intent.String), zap.Error(err))
			}
		}
		if len(images) > 0 && u.files != nil {
			u.files.DeleteAll(ctx, images, nil)
		}
	})
	return nil
}

// ReviewCancel approves or rejects a pending cancel request. Approving a
// paid task also opens a refund request for the remaining escrow.
func (u *CancellationUsecase) ReviewCancel(ctx context.Context, reviewerID string, requestID int64, approve bool, comment string) (*entities.TaskCancelRequest, error) {
	kind, err := requireStaff(ctx, u.store.Staff, reviewerID, false)
	if err != nil {
		return nil, err
	}
	var req *entities.TaskCancelRequest
	err = u.uow.Do(ctx, func(ctx context.Context) error {
		req, err = u.store.CancelRequests.GetByID(ctx, requestID)
		if err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				return domainerrors.NotFound("Cancel request not found")
			}
			return err
		}
		if req.Status != entities.CancelRequestPending {
			return domainerrors.Conflict("Cancel request has already been reviewed")
		}
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, req.TaskID)
		if err != nil {
			return err
		}

		now := u.clock.Now()
		req.AdminID, req.ServiceID = nil, nil
		if kind == entities.ReviewerAdmin {
			req.AdminID = &reviewerID
		} else {
			req.ServiceID = &reviewerID
		}
		req.ReviewerType = &kind
		req.ReviewerComment = strings.TrimSpace(comment)
		req.ReviewedAt = &now

		result, resultEn := "拒绝", "rejected"
		if approve {
			req.Status = entities.CancelRequestApproved
			result, resultEn = "批准", "approved"
			if err := u.cancelTask(ctx, task, lifecycle.EventReviewedCancel, reviewerID, req.Reason, CancelReasonReviewed, now); err != nil {
				return err
			}
			if err := u.refundRemaining(ctx, task, req.Reason, now); err != nil {
				return err
			}
		} else {
			req.Status = entities.CancelRequestRejected
		}
		if err := u.store.CancelRequests.Update(ctx, req); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, reviewerID, entities.ActionCancelReviewed, string(req.Status), now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    req.RequesterID,
			Type:      entities.NotificationTaskCancelReviewed,
			RelatedID: task.ID,
			Vars:      taskVars(task, "result", result, "result_en", resultEn),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// refundRemaining opens a pending refund for escrow not yet paid out.
func (u *CancellationUsecase) refundRemaining(ctx context.Context, task *entities.Task, reason string, now time.Time) error {
	if !task.IsPaid {
		return nil
	}
	remaining, err := remainingEscrow(ctx, u.store.Transfers, task)
	if err != nil {
		return err
	}
	if !remaining.IsPositive() {
		return nil
	}
	active, err := u.store.Refunds.HasActive(ctx, task.ID)
	if err != nil || active {
		return err
	}
	return u.store.Refunds.Create(ctx, &entities.RefundRequest{
		TaskID:    task.ID,
		PosterID:  task.PosterID,
		Reason:    "Cancellation approved: " + reason,
		Amount:    remaining,
		Status:    entities.RefundStatusPending,
		CreatedAt: now,
	})
}

// DeleteTask removes a task and everything it owns. Stored files are
// deleted and user statistics recomputed once the delete has committed.
func (u *CancellationUsecase) DeleteTask(ctx context.Context, adminID string, taskID int64) error {
	if _, err := requireStaff(ctx, u.store.Staff, adminID, true); err != nil {
		return err
	}
	return u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		res, err := u.store.Tasks.DeleteCascade(ctx, taskID)
		if err != nil {
			return err
		}
		users := []string{task.PosterID}
		if task.HasTaker() {
			users = append(users, *task.TakerID)
		}
		u.uow.AfterCommit(ctx, func(ctx context.Context) {
			if u.files != nil {
				removed := u.files.DeleteAll(ctx, res.Images, res.AttachmentBlobs)
				logger.Info(ctx, "Task deleted", zap.Int64("task_id", taskID), zap.Int("files_removed", removed))
			}
			for _, id := range users {
				if err := u.store.Users.RecomputeStats(ctx, id); err != nil {
					logger.Warn(ctx, "Recompute user stats failed", zap.String("user_id", id), zap.Error(err))
				}
			}
		})
		return nil
	})
}
