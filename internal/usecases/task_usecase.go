package usecases

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"link2ur.backend/internal/config"
	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/domain/lifecycle"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/logger"
)

const (
	maxTitleLength  = 100
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateTaskInput is the body of a task creation request.
type CreateTaskInput struct {
	Title       string
	Description string
	TaskType    string
	Location    string
	Latitude    *float64
	Longitude   *float64
	BaseReward  decimal.Decimal
	Currency    string
	IsFlexible  bool
	Deadline    *time.Time
	Images      []string
	IsPublic    *bool
}

// TaskListQuery is the public feed query.
type TaskListQuery struct {
	Page     int
	PageSize int
	TaskType string
	Location string
	Keyword  string
	SortBy   string
}

// ReviewInput is a rating left after completion.
type ReviewInput struct {
	Rating      float64
	Comment     string
	IsAnonymous bool
}

// TaskUsecase drives the task state machine for user-initiated events.
type TaskUsecase struct {
	store    *repositories.Store
	uow      repositories.UnitOfWork
	notifier *NotificationUsecase
	payments *PaymentUsecase
	business config.BusinessConfig
	cities   []string
	clock    clock.Clock
}

func NewTaskUsecase(
	store *repositories.Store,
	uow repositories.UnitOfWork,
	notifier *NotificationUsecase,
	payments *PaymentUsecase,
	business config.BusinessConfig,
	cities []string,
	clk clock.Clock,
) *TaskUsecase {
	return &TaskUsecase{
		store:    store,
		uow:      uow,
		notifier: notifier,
		payments: payments,
		business: business,
		cities:   cities,
		clock:    clk,
	}
}

// Create validates and stores a new open task. task_level is derived from
// the poster tier and the reward thresholds in effect.
func (u *TaskUsecase) Create(ctx context.Context, posterID string, in CreateTaskInput) (*entities.Task, error) {
	now := u.clock.Now()
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, domainerrors.BadRequest("Title is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		return nil, domainerrors.BadRequest("Title must be at most 100 characters")
	case strings.TrimSpace(in.Description) == "":
		return nil, domainerrors.BadRequest("Description is required")
	case in.BaseReward.IsNegative():
		return nil, domainerrors.BadRequest("Reward must not be negative")
	case in.IsFlexible == (in.Deadline != nil):
		return nil, domainerrors.BadRequest("Provide either a deadline or mark the task as flexible")
	case in.Deadline != nil && !in.Deadline.After(now):
		return nil, domainerrors.BadRequest("Deadline must be in the future")
	}

	poster, err := getUser(ctx, u.store.Users, posterID)
	if err != nil {
		return nil, err
	}
	if poster.IsRestricted(now) {
		return nil, domainerrors.Forbidden("Your account cannot post tasks at the moment")
	}
	th, err := u.thresholds(ctx)
	if err != nil {
		return nil, err
	}

	task := &entities.Task{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		TaskType:    in.TaskType,
		Location:    strings.TrimSpace(in.Location),
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		BaseReward:  in.BaseReward.Round(2),
		Currency:    strings.ToUpper(in.Currency),
		IsFlexible:  in.IsFlexible,
		Status:      entities.TaskStatusOpen,
		TaskLevel:   lifecycle.DeriveTaskLevel(poster.UserLevel, in.BaseReward, th),
		PosterID:    posterID,
		IsPublic:    true,
		Images:      in.Images,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Currency == "" {
		task.Currency = entities.DefaultCurrency
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		task.Deadline = &d
	}
	if in.IsPublic != nil {
		task.IsPublic = *in.IsPublic
	}

	err = u.uow.Do(ctx, func(ctx context.Context) error {
		if err := u.store.Tasks.Create(ctx, task); err != nil {
			return err
		}
		return addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionCreated, "", now)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// thresholds reads the reward thresholds from SystemSettings, falling back
// to configuration when a key is absent.
func (u *TaskUsecase) thresholds(ctx context.Context) (lifecycle.Thresholds, error) {
	th := lifecycle.Thresholds{VIP: u.business.VIPPriceThreshold, Super: u.business.SuperVIPPriceThreshold}
	if v, ok, err := u.store.Settings.GetDecimal(ctx, entities.SettingVIPPriceThreshold); err != nil {
		return th, err
	} else if ok {
		th.VIP = v
	}
	if v, ok, err := u.store.Settings.GetDecimal(ctx, entities.SettingSuperVIPPriceThreshold); err != nil {
		return th, err
	} else if ok {
		th.Super = v
	}
	return th, nil
}

// Normalized clamps paging and falls back to the latest sort.
func (q TaskListQuery) Normalized() TaskListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	switch q.SortBy {
	case repositories.SortLatest, repositories.SortRewardAsc, repositories.SortRewardDesc,
		repositories.SortDeadlineAsc, repositories.SortDeadlineDesc:
	default:
		q.SortBy = repositories.SortLatest
	}
	return q
}

// List returns a page of open, unexpired tasks.
func (u *TaskUsecase) List(ctx context.Context, q TaskListQuery) ([]*entities.Task, int64, error) {
	q = q.Normalized()
	return u.store.Tasks.List(ctx, repositories.TaskListFilter{
		Page:     q.Page,
		PageSize: q.PageSize,
		TaskType: q.TaskType,
		Location: q.Location,
		Cities:   u.cities,
		Keyword:  strings.TrimSpace(q.Keyword),
		SortBy:   q.SortBy,
		Now:      u.clock.Now(),
	})
}

func (u *TaskUsecase) Get(ctx context.Context, taskID int64) (*entities.Task, error) {
	return getTask(ctx, u.store.Tasks, taskID)
}

// Cities is the configured city set used by location filters.
func (u *TaskUsecase) Cities() []string {
	return u.cities
}

// Accept is the legacy first-come claim on an open task. Exactly one of
// several concurrent callers wins.
func (u *TaskUsecase) Accept(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	var task *entities.Task
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		now := u.clock.Now()
		var err error
		task, err = getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.PosterID == userID {
			return domainerrors.Conflict("You cannot accept your own task")
		}
		if !lifecycle.Allowed(task.Status, lifecycle.EventLegacyAccept) || task.HasTaker() || task.DeadlinePassed(now) {
			return domainerrors.Conflict(msgNotAvailable)
		}
		user, err := getUser(ctx, u.store.Users, userID)
		if err != nil {
			return err
		}
		if user.IsRestricted(now) {
			return domainerrors.Forbidden("Your account cannot accept tasks at the moment")
		}
		if !lifecycle.CanTakeLevel(user.UserLevel, task.TaskLevel) {
			return domainerrors.Forbidden("Your membership level does not allow accepting this task")
		}

		claimed, err := u.store.Tasks.AssignTakerIfOpen(ctx, taskID, userID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return domainerrors.Conflict(msgNotAvailable)
		}
		task.TakerID = &userID
		task.Status = entities.TaskStatusTaken

		if err := addHistory(ctx, u.store.Tasks, taskID, userID, entities.ActionAccepted, "", now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    task.PosterID,
			Type:      entities.NotificationTaskAccepted,
			RelatedID: task.ID,
			Vars:      taskVars(task, "user_name", user.Name),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ApproveTaker moves a taken task into progress.
func (u *TaskUsecase) ApproveTaker(ctx context.Context, posterID string, taskID int64) (*entities.Task, error) {
	return u.posterTransition(ctx, posterID, taskID, lifecycle.EventApproveTaker, func(ctx context.Context, task *entities.Task, now time.Time) error {
		if err := addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionTakerApproved, "", now); err != nil {
			return err
		}
		_, err := u.notifier.Notify(ctx, NotifyInput{
			UserID:    takerOf(task),
			Type:      entities.NotificationTaskApproved,
			RelatedID: task.ID,
			Vars:      taskVars(task),
		})
		return err
	})
}

// RejectTaker reopens a taken task and clears the taker.
func (u *TaskUsecase) RejectTaker(ctx context.Context, posterID string, taskID int64) (*entities.Task, error) {
	var rejected string
	return u.posterTransition(ctx, posterID, taskID, lifecycle.EventRejectTaker, func(ctx context.Context, task *entities.Task, now time.Time) error {
		rejected = takerOf(task)
		task.TakerID = nil
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionTakerRejected, rejected, now); err != nil {
			return err
		}
		_, err := u.notifier.Notify(ctx, NotifyInput{
			UserID:    rejected,
			Type:      entities.NotificationTaskRejected,
			RelatedID: task.ID,
			Vars:      taskVars(task),
		})
		return err
	})
}

// posterTransition applies ev on a locked task owned by posterID, persists
// it and runs after for side effects.
func (u *TaskUsecase) posterTransition(ctx context.Context, posterID string, taskID int64, ev lifecycle.Event,
	after func(ctx context.Context, task *entities.Task, now time.Time) error) (*entities.Task, error) {
	var task *entities.Task
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		task, err = getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.PosterID != posterID {
			return domainerrors.Forbidden("Only the poster can do this")
		}
		if err := lifecycle.Apply(task, ev); err != nil {
			return err
		}
		now := u.clock.Now()
		task.UpdatedAt = now
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		return after(ctx, task, now)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Complete is called by the taker (or an active participant) when the work
// is done. It opens the confirmation window.
func (u *TaskUsecase) Complete(ctx context.Context, userID string, taskID int64) (*entities.Task, error) {
	var task *entities.Task
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		task, err = getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if !task.IsTaker(userID) {
			p, err := u.store.Participants.GetByTaskAndUser(ctx, taskID, userID)
			if err != nil && !domainerrors.Is(err, domainerrors.ErrNotFound) {
				return err
			}
			if p == nil || !p.Status.IsActive() {
				return domainerrors.Forbidden("Only the taker can complete this task")
			}
		}
		if err := lifecycle.Apply(task, lifecycle.EventMarkComplete); err != nil {
			return err
		}

		now := u.clock.Now()
		deadline, err := u.confirmationDeadline(ctx, task, now)
		if err != nil {
			return err
		}
		task.CompletedAt = &now
		task.ConfirmationDeadline = &deadline
		task.ConfirmationReminderSent = 0
		task.UpdatedAt = now
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, userID, entities.ActionCompleted, "", now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    task.PosterID,
			Type:      entities.NotificationTaskCompleted,
			RelatedID: task.ID,
			Vars:      taskVars(task),
			Channels:  []entities.Channel{entities.ChannelPush, entities.ChannelEmail},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// confirmationDeadline is now plus the confirmation window, or for expert
// services the end of the booked slot plus the grace period.
func (u *TaskUsecase) confirmationDeadline(ctx context.Context, task *entities.Task, now time.Time) (time.Time, error) {
	if !task.IsExpertService() {
		return now.Add(u.business.ConfirmationWindow), nil
	}
	end, err := u.store.TimeSlots.SlotEndForTask(ctx, task.ID)
	if err != nil {
		return time.Time{}, err
	}
	if end == nil || end.Before(now) {
		return now.Add(u.business.ExpertConfirmationGrace), nil
	}
	return end.Add(u.business.ExpertConfirmationGrace), nil
}

// Confirm settles a task the poster is satisfied with and pays the taker
// out of escrow.
func (u *TaskUsecase) Confirm(ctx context.Context, posterID string, taskID int64) (*entities.Task, error) {
	var task *entities.Task
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		task, err = getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.PosterID != posterID {
			return domainerrors.Forbidden("Only the poster can confirm completion")
		}
		if _, err := lifecycle.Next(task.Status, lifecycle.EventConfirm); err != nil {
			return err
		}
		if err := u.payments.settlementBlocked(ctx, task); err != nil {
			return err
		}

		now := u.clock.Now()
		if _, err := u.payments.settle(ctx, task, lifecycle.EventConfirm, now); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionConfirmed, "", now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    takerOf(task),
			Type:      entities.NotificationTaskConfirmed,
			RelatedID: task.ID,
			Vars:      taskVars(task, "amount", formatMoney(task.EscrowAmount)),
			Channels:  []entities.Channel{entities.ChannelPush, entities.ChannelEmail},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	u.uow.AfterCommit(ctx, func(ctx context.Context) {
		for _, id := range []string{task.PosterID, takerOf(task)} {
			if id == "" {
				continue
			}
			if err := u.store.Users.RecomputeStats(ctx, id); err != nil {
				logger.Warn(ctx, "Recompute user stats failed", zap.String("user_id", id), zap.Error(err))
			}
		}
	})
	return task, nil
}

// RaiseDispute freezes automated settlement until staff resolve it.
func (u *TaskUsecase) RaiseDispute(ctx context.Context, posterID string, taskID int64, reason string) (*entities.TaskDispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domainerrors.BadRequest("A reason is required")
	}
	var dispute *entities.TaskDispute
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.PosterID != posterID {
			return domainerrors.Forbidden("Only the poster can raise a dispute")
		}
		if _, err := lifecycle.Next(task.Status, lifecycle.EventRaiseDispute); err != nil {
			return err
		}
		pending, err := u.store.Disputes.HasPending(ctx, taskID)
		if err != nil {
			return err
		}
		if pending {
			return domainerrors.Conflict("A dispute is already open for this task")
		}

		now := u.clock.Now()
		dispute = &entities.TaskDispute{
			TaskID:    taskID,
			PosterID:  posterID,
			Reason:    reason,
			Status:    entities.DisputeStatusPending,
			CreatedAt: now,
		}
		if err := u.store.Disputes.Create(ctx, dispute); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, taskID, posterID, entities.ActionDisputeRaised, reason, now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    takerOf(task),
			Type:      entities.NotificationTaskDispute,
			RelatedID: task.ID,
			Vars:      taskVars(task, "reason", reason),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// ResolveDispute closes a pending dispute. Any refund split is handled
// separately through the refund review flow.
func (u *TaskUsecase) ResolveDispute(ctx context.Context, reviewerID string, disputeID int64, resolution string) (*entities.TaskDispute, error) {
	if _, err := requireStaff(ctx, u.store.Staff, reviewerID, false); err != nil {
		return nil, err
	}
	var dispute *entities.TaskDispute
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		dispute, err = u.store.Disputes.GetByID(ctx, disputeID)
		if err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				return domainerrors.NotFound("Dispute not found")
			}
			return err
		}
		if dispute.Status != entities.DisputeStatusPending {
			return domainerrors.Conflict("Dispute is already resolved")
		}
		now := u.clock.Now()
		dispute.Status = entities.DisputeStatusResolved
		dispute.ResolvedBy = &reviewerID
		dispute.Resolution = strings.TrimSpace(resolution)
		dispute.ResolvedAt = &now
		if err := u.store.Disputes.Update(ctx, dispute); err != nil {
			return err
		}
		return addHistory(ctx, u.store.Tasks, dispute.TaskID, reviewerID, entities.ActionDisputeResolved, dispute.Resolution, now)
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// History returns the audit trail of a task.
func (u *TaskUsecase) History(ctx context.Context, taskID int64) ([]*entities.TaskHistory, error) {
	if _, err := getTask(ctx, u.store.Tasks, taskID); err != nil {
		return nil, err
	}
	return u.store.Tasks.ListHistory(ctx, taskID)
}

// Review records the poster's or taker's rating of the other party.
func (u *TaskUsecase) Review(ctx context.Context, userID string, taskID int64, in ReviewInput) (*entities.Review, error) {
	if !entities.ValidRating(in.Rating) {
		return nil, domainerrors.BadRequest("Rating must be between 0.5 and 5 in half steps")
	}
	var review *entities.Review
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(ctx, u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.Status != entities.TaskStatusCompleted {
			return domainerrors.Conflict("Only completed tasks can be reviewed")
		}
		var reviewee string
		switch {
		case task.PosterID == userID:
			reviewee = takerOf(task)
		case task.IsTaker(userID):
			reviewee = task.PosterID
		default:
			return domainerrors.Forbidden("Only the poster or taker can review this task")
		}
		if reviewee == "" {
			return domainerrors.Conflict("Task has no taker to review")
		}

		now := u.clock.Now()
		review = &entities.Review{
			TaskID:      taskID,
			UserID:      userID,
			RevieweeID:  reviewee,
			Rating:      in.Rating,
			Comment:     strings.TrimSpace(in.Comment),
			IsAnonymous: in.IsAnonymous,
			CreatedAt:   now,
		}
		if err := u.store.Reviews.Create(ctx, review); err != nil {
			if domainerrors.Is(err, domainerrors.ErrAlreadyExists) {
				return domainerrors.Conflict("You have already reviewed this task")
			}
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, taskID, userID, entities.ActionReviewed, "", now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    reviewee,
			Type:      entities.NotificationTaskReview,
			RelatedID: task.ID,
			Vars:      taskVars(task, "rating", decimal.NewFromFloat(in.Rating).String()),
		})
		if err != nil {
			return err
		}
		u.uow.AfterCommit(ctx, func(ctx context.Context) {
			if err := u.store.Users.RecomputeStats(ctx, reviewee); err != nil {
				logger.Warn(ctx, "Recompute user stats failed", zap.String("user_id", reviewee), zap.Error(err))
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}
