package usecases

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"link2ur.backend/internal/config"
	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/domain/lifecycle"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/logger"
	"link2ur.backend/pkg/redis"
	"link2ur.backend/pkg/utils"
)

const previewLength = 80

// ApproveKind says how an approval was satisfied.
type ApproveKind string

const (
	// ApproveCreated means a new payment intent was issued.
	ApproveCreated ApproveKind = "created"
	// ApproveNeedsPayment means the pending intent from an earlier approval
	// of the same application was returned.
	ApproveNeedsPayment ApproveKind = "needs_payment"
	// ApproveAlreadyApproved means the intent for this application already
	// succeeded.
	ApproveAlreadyApproved ApproveKind = "already_approved"
)

type ApproveResult struct {
	Kind        ApproveKind
	Intent      *entities.PaymentIntent
	Application *entities.TaskApplication
}

type ApplyInput struct {
	Message         string
	NegotiatedPrice *decimal.Decimal
	Currency        string
}

type RespondInput struct {
	Action        entities.NegotiationAction
	Token         string
	TaskID        int64
	ApplicationID int64
	IPAddress     string
	UserAgent     string
}

type RespondResult struct {
	Action      entities.NegotiationAction
	Application *entities.TaskApplication
	Intent      *entities.PaymentIntent
}

// ApplicationUsecase handles applications to open tasks and the
// counter-offer negotiation that can follow.
type ApplicationUsecase struct {
	store    *repositories.Store
	uow      repositories.UnitOfWork
	provider PaymentProvider
	signer   TokenSigner
	tokens   TokenStore
	pairs    TokenStore
	notifier *NotificationUsecase
	business config.BusinessConfig
	tokenTTL time.Duration
	clock    clock.Clock
}

func NewApplicationUsecase(
	store *repositories.Store,
	uow repositories.UnitOfWork,
	provider PaymentProvider,
	signer TokenSigner,
	tokens TokenStore,
	pairs TokenStore,
	notifier *NotificationUsecase,
	business config.BusinessConfig,
	tokenTTL time.Duration,
	clk clock.Clock,
) *ApplicationUsecase {
	return &ApplicationUsecase{
		store:    store,
		uow:      uow,
		provider: provider,
		signer:   signer,
		tokens:   tokens,
		pairs:    pairs,
		notifier: notifier,
		business: business,
		tokenTTL: tokenTTL,
		clock:    clk,
	}
}

// Apply records a pending application. One application per user per task.
func (u *ApplicationUsecase) Apply(ctx context.Context, userID string, taskID int64, in ApplyInput) (*entities.TaskApplication, error) {
	if in.NegotiatedPrice != nil && !in.NegotiatedPrice.IsPositive() {
		return nil, domainerrors.BadRequest("Negotiated price must be positive")
	}
	var app *entities.TaskApplication
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		now := u.clock.Now()
		task, err := getTask(ctx, u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.PosterID == userID {
			return domainerrors.Conflict("You cannot apply to your own task")
		}
		if !lifecycle.Allowed(task.Status, lifecycle.EventApply) || task.DeadlinePassed(now) {
			return domainerrors.Conflict(msgNotAvailable)
		}
		user, err := getUser(ctx, u.store.Users, userID)
		if err != nil {
			return err
		}
		if user.IsRestricted(now) {
			return domainerrors.Forbidden("Your account cannot apply for tasks at the moment")
		}
		if !lifecycle.CanTakeLevel(user.UserLevel, task.TaskLevel) {
			return domainerrors.Forbidden("Your membership level does not allow applying for this task")
		}

		app = &entities.TaskApplication{
			TaskID:      taskID,
			ApplicantID: userID,
			Message:     strings.TrimSpace(in.Message),
			Currency:    strings.ToUpper(in.Currency),
			Status:      entities.ApplicationStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if app.Currency == "" {
			app.Currency = task.Currency
		}
		if in.NegotiatedPrice != nil {
			app.NegotiatedPrice = decimal.NewNullDecimal(in.NegotiatedPrice.Round(2))
		}
		if err := u.store.Applications.Create(ctx, app); err != nil {
			if domainerrors.Is(err, domainerrors.ErrAlreadyExists) {
				return domainerrors.Conflict("You have already applied for this task")
			}
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, taskID, userID, entities.ActionApplied, "", now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    task.PosterID,
			Type:      entities.NotificationTaskApplication,
			RelatedID: app.ID,
			Vars:      taskVars(task, "user_name", user.Name),
			Data:      map[string]any{"task_id": task.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListApplications shows the poster every application and anyone else only
// their own.
func (u *ApplicationUsecase) ListApplications(ctx context.Context, userID string, taskID int64) ([]*entities.TaskApplication, error) {
	task, err := getTask(ctx, u.store.Tasks, taskID)
	if err != nil {
		return nil, err
	}
	apps, err := u.store.Applications.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.PosterID == userID {
		return apps, nil
	}
	own := make([]*entities.TaskApplication, 0, 1)
	for _, a := range apps {
		if a.ApplicantID == userID {
			own = append(own, a)
		}
	}
	return own, nil
}

// loadApplication returns appID if it belongs to task.
func (u *ApplicationUsecase) loadApplication(ctx context.Context, task *entities.Task, appID int64) (*entities.TaskApplication, error) {
	app, err := u.store.Applications.GetByID(ctx, appID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("Application not found")
		}
		return nil, err
	}
	if app.TaskID != task.ID {
		return nil, domainerrors.NotFound("Application not found")
	}
	return app, nil
}

func (u *ApplicationUsecase) pendingApplication(ctx context.Context, task *entities.Task, appID int64) (*entities.TaskApplication, error) {
	app, err := u.loadApplication(ctx, task, appID)
	if err != nil {
		return nil, err
	}
	if app.Status != entities.ApplicationStatusPending {
		return nil, domainerrors.Conflict("Application is no longer pending")
	}
	return app, nil
}

// lockPosterTask loads the task under lock and checks that posterID owns it
// and that ev may fire.
func (u *ApplicationUsecase) lockPosterTask(ctx context.Context, posterID string, taskID int64, ev lifecycle.Event) (*entities.Task, error) {
	task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
	if err != nil {
		return nil, err
	}
	if task.PosterID != posterID {
		return nil, domainerrors.Forbidden("Only the poster can do this")
	}
	if _, err := lifecycle.Next(task.Status, ev); err != nil {
		return nil, err
	}
	return task, nil
}

// Approve issues the payment intent the poster pays to hire the applicant.
// The task stays open until the provider confirms the payment. Approving
// the same application again returns the pending intent.
func (u *ApplicationUsecase) Approve(ctx context.Context, posterID string, taskID, appID int64) (*ApproveResult, error) {
	var res *ApproveResult
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.lockPosterTask(ctx, posterID, taskID, lifecycle.EventApproveApplication)
		if err != nil {
			return err
		}
		app, err := u.pendingApplication(ctx, task, appID)
		if err != nil {
			return err
		}

		prev := "none"
		if task.PaymentIntentID.Valid {
			prev = task.PaymentIntentID.String
			existing, err := u.provider.RetrieveIntent(ctx, prev)
			if err != nil {
				logger.Warn(ctx, "Previous payment intent unavailable", zap.String("payment_intent_id", prev), zap.Error(err))
			} else if existing.Metadata[entities.MetaApplicationID] == strconv.FormatInt(app.ID, 10) {
				switch {
				case existing.Status.IsPending():
					res = &ApproveResult{Kind: ApproveNeedsPayment, Intent: existing, Application: app}
					return nil
				case existing.Status == entities.IntentSucceeded:
					res = &ApproveResult{Kind: ApproveAlreadyApproved, Intent: existing, Application: app}
					return nil
				}
			} else if existing.Status.IsPending() {
				if err := u.provider.CancelIntent(ctx, prev); err != nil {
					logger.Warn(ctx, "Cancel superseded payment intent failed", zap.String("payment_intent_id", prev), zap.Error(err))
				}
			}
			task.PaymentIntentID = null.String{}
		}

		applicant, err := getUser(ctx, u.store.Users, app.ApplicantID)
		if err != nil {
			return err
		}
		if !applicant.CanReceivePayouts() {
			return domainerrors.Conflict("Applicant has not set up a payout account")
		}
		amount := task.Reward()
		if app.NegotiatedPrice.Valid {
			amount = app.NegotiatedPrice.Decimal
		}
		if !amount.IsPositive() {
			return domainerrors.BadRequest("Approved amount must be greater than zero")
		}

		fee := entities.ApplicationFee(amount)
		intent, err := u.provider.CreateIntent(ctx, entities.CreateIntentParams{
			Amount:      utils.ToMinorUnits(amount),
			Currency:    task.Currency,
			MethodTypes: entities.AllowedPaymentMethods,
			Description: "Task #" + strconv.FormatInt(task.ID, 10) + ": " + task.Title,
			Metadata: map[string]string{
				entities.MetaTaskID:               strconv.FormatInt(task.ID, 10),
				entities.MetaApplicationID:        strconv.FormatInt(app.ID, 10),
				entities.MetaPosterID:             task.PosterID,
				entities.MetaTakerID:              app.ApplicantID,
				entities.MetaTakerStripeAccountID: *applicant.StripeAccountID,
				entities.MetaApplicationFee:       strconv.FormatInt(utils.ToMinorUnits(fee), 10),
				entities.MetaPaymentType:          entities.PaymentTypeApplication,
				entities.MetaPendingApproval:      "true",
			},
			IdempotencyKey: utils.IdempotencyKey("approve", task.ID, app.ID, prev),
		})
		if err != nil {
			return domainerrors.Upstream("Payment provider unavailable", err)
		}

		now := u.clock.Now()
		task.PaymentIntentID = null.StringFrom(intent.ID)
		task.UpdatedAt = now
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionApproveApplication, app.ApplicantID, now); err != nil {
			return err
		}
		if _, err := u.notifier.Notify(ctx, NotifyInput{
			UserID:    app.ApplicantID,
			Type:      entities.NotificationApplicationApproved,
			RelatedID: app.ID,
			Vars:      taskVars(task),
		}); err != nil {
			return err
		}
		res = &ApproveResult{Kind: ApproveCreated, Intent: intent, Application: app}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reject declines a pending application.
func (u *ApplicationUsecase) Reject(ctx context.Context, posterID string, taskID, appID int64) (*entities.TaskApplication, error) {
	var app *entities.TaskApplication
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.lockPosterTask(ctx, posterID, taskID, lifecycle.EventRejectApplication)
		if err != nil {
			return err
		}
		app, err = u.pendingApplication(ctx, task, appID)
		if err != nil {
			return err
		}
		now := u.clock.Now()
		app.Status = entities.ApplicationStatusRejected
		app.UpdatedAt = now
		if err := u.store.Applications.Update(ctx, app); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionRejectApplication, app.ApplicantID, now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    app.ApplicantID,
			Type:      entities.NotificationApplicationRejected,
			RelatedID: app.ID,
			Vars:      taskVars(task),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Withdraw lets an applicant take back a pending application. It is stored
// as rejected and logged as a withdrawal.
func (u *ApplicationUsecase) Withdraw(ctx context.Context, userID string, taskID, appID int64) (*entities.TaskApplication, error) {
	var app *entities.TaskApplication
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if _, err := lifecycle.Next(task.Status, lifecycle.EventWithdraw); err != nil {
			return err
		}
		app, err = u.pendingApplication(ctx, task, appID)
		if err != nil {
			return err
		}
		if app.ApplicantID != userID {
			return domainerrors.Forbidden("Only the applicant can withdraw this application")
		}
		user, err := getUser(ctx, u.store.Users, userID)
		if err != nil {
			return err
		}
		now := u.clock.Now()
		app.Status = entities.ApplicationStatusRejected
		app.UpdatedAt = now
		if err := u.store.Applications.Update(ctx, app); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, userID, entities.ActionWithdraw, "", now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    task.PosterID,
			Type:      entities.NotificationApplicationWithdrawn,
			RelatedID: app.ID,
			Vars:      taskVars(task, "user_name", user.Name),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// CounterOffer proposes a new price to an applicant and mints the one-shot
// accept and reject tokens they respond with.
func (u *ApplicationUsecase) CounterOffer(ctx context.Context, posterID string, taskID, appID int64, price decimal.Decimal) (*entities.NegotiationTokenPair, error) {
	price = price.Round(2)
	if !price.IsPositive() {
		return nil, domainerrors.BadRequest("Negotiated price must be positive")
	}
	var pair *entities.NegotiationTokenPair
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.lockPosterTask(ctx, posterID, taskID, lifecycle.EventCounterOffer)
		if err != nil {
			return err
		}
		app, err := u.pendingApplication(ctx, task, appID)
		if err != nil {
			return err
		}
		now := u.clock.Now()
		app.NegotiatedPrice = decimal.NewNullDecimal(price)
		app.UpdatedAt = now
		if err := u.store.Applications.Update(ctx, app); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, posterID, entities.ActionCounterOffer, formatMoney(price), now); err != nil {
			return err
		}
		n, err := u.notifier.Notify(ctx, NotifyInput{
			UserID:    app.ApplicantID,
			Type:      entities.NotificationNegotiationOffer,
			RelatedID: app.ID,
			Vars:      taskVars(task, "amount", formatMoney(price)),
			Data: map[string]any{
				"task_id":          task.ID,
				"application_id":   app.ID,
				"negotiated_price": formatMoney(price),
			},
		})
		if err != nil {
			return err
		}
		pair, err = u.mintTokens(ctx, app, n.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// mintTokens replaces any earlier token pair for the notification.
func (u *ApplicationUsecase) mintTokens(ctx context.Context, app *entities.TaskApplication, notificationID int64, now time.Time) (*entities.NegotiationTokenPair, error) {
	pairKey := strconv.FormatInt(notificationID, 10)
	var old entities.NegotiationTokenPair
	switch err := u.pairs.Peek(ctx, pairKey, &old); {
	case err == nil:
		if err := u.tokens.Delete(ctx, old.AcceptToken, old.RejectToken); err != nil {
			return nil, err
		}
	case !domainerrors.Is(err, redis.ErrTokenNotFound):
		return nil, err
	}

	nonce, err := utils.RandomHex(16)
	if err != nil {
		return nil, err
	}
	exp := now.Add(u.tokenTTL).Unix()
	mint := func(action entities.NegotiationAction) (string, error) {
		payload := entities.NegotiationToken{
			UserID:         app.ApplicantID,
			Action:         action,
			ApplicationID:  app.ID,
			TaskID:         app.TaskID,
			Nonce:          nonce,
			Exp:            exp,
			NotificationID: notificationID,
		}
		token, err := u.signer.Sign(payload)
		if err != nil {
			return "", err
		}
		if err := u.tokens.Put(ctx, token, payload, u.tokenTTL); err != nil {
			return "", err
		}
		return token, nil
	}
	accept, err := mint(entities.NegotiationAccept)
	if err != nil {
		return nil, err
	}
	reject, err := mint(entities.NegotiationReject)
	if err != nil {
		return nil, err
	}
	pair := &entities.NegotiationTokenPair{
		AcceptToken:   accept,
		RejectToken:   reject,
		TaskID:        app.TaskID,
		ApplicationID: app.ID,
	}
	if err := u.pairs.Put(ctx, pairKey, pair, u.tokenTTL); err != nil {
		return nil, err
	}
	return pair, nil
}

// GetNegotiationTokens returns the live token pair behind a negotiation
// notification owned by userID.
func (u *ApplicationUsecase) GetNegotiationTokens(ctx context.Context, userID string, notificationID int64) (*entities.NegotiationTokenPair, error) {
	n, err := u.store.Notifications.GetByID(ctx, notificationID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("Notification not found")
		}
		return nil, err
	}
	if n.UserID != userID || n.Type != entities.NotificationNegotiationOffer {
		return nil, domainerrors.NotFound("Notification not found")
	}
	var pair entities.NegotiationTokenPair
	if err := u.pairs.Peek(ctx, strconv.FormatInt(notificationID, 10), &pair); err != nil {
		if domainerrors.Is(err, redis.ErrTokenNotFound) {
			return nil, domainerrors.NotFound("Negotiation has expired")
		}
		return nil, err
	}
	return &pair, nil
}

// RespondNegotiation consumes a negotiation token. Accepting moves the task
// to pending_payment and issues the intent the poster pays.
func (u *ApplicationUsecase) RespondNegotiation(ctx context.Context, userID string, in RespondInput) (*RespondResult, error) {
	if !in.Action.Valid() {
		return nil, domainerrors.BadRequest("Action must be accept or reject")
	}
	var stored entities.NegotiationToken
	if err := u.tokens.Take(ctx, in.Token, &stored); err != nil {
		if domainerrors.Is(err, redis.ErrTokenNotFound) {
			return nil, domainerrors.TokenInvalid()
		}
		return nil, err
	}
	var signed entities.NegotiationToken
	if err := u.signer.Verify(in.Token, &signed); err != nil || signed != stored {
		return nil, domainerrors.TokenInvalid()
	}
	now := u.clock.Now()
	if stored.Exp <= now.Unix() || stored.UserID != userID || stored.Action != in.Action ||
		stored.TaskID != in.TaskID || stored.ApplicationID != in.ApplicationID {
		return nil, domainerrors.TokenInvalid()
	}

	res := &RespondResult{Action: in.Action}
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, in.TaskID)
		if err != nil {
			return err
		}
		app, err := u.pendingApplication(ctx, task, in.ApplicationID)
		if err != nil {
			return err
		}
		user, err := getUser(ctx, u.store.Users, userID)
		if err != nil {
			return err
		}
		res.Application = app

		if in.Action == entities.NegotiationAccept {
			res.Intent, err = u.acceptOffer(ctx, task, app, user, stored.Nonce, now)
		} else {
			err = u.rejectOffer(ctx, task, app, user, now)
		}
		if err != nil {
			return err
		}
		return u.store.Applications.CreateNegotiationLog(ctx, &entities.NegotiationResponseLog{
			TaskID:          task.ID,
			ApplicationID:   app.ID,
			UserID:          userID,
			Action:          in.Action,
			NegotiatedPrice: app.NegotiatedPrice,
			IPAddress:       in.IPAddress,
			UserAgent:       in.UserAgent,
			RespondedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	pairKey := strconv.FormatInt(stored.NotificationID, 10)
	var pair entities.NegotiationTokenPair
	if err := u.pairs.Peek(ctx, pairKey, &pair); err == nil {
		if err := u.tokens.Delete(ctx, pair.AcceptToken, pair.RejectToken); err != nil {
			logger.Warn(ctx, "Delete sibling negotiation token failed", zap.Error(err))
		}
		if err := u.pairs.Delete(ctx, pairKey); err != nil {
			logger.Warn(ctx, "Delete negotiation token pair failed", zap.Error(err))
		}
	}
	return res, nil
}

func (u *ApplicationUsecase) acceptOffer(ctx context.Context, task *entities.Task, app *entities.TaskApplication,
	user *entities.User, nonce string, now time.Time) (*entities.PaymentIntent, error) {
	if err := lifecycle.Apply(task, lifecycle.EventNegotiationAccept); err != nil {
		return nil, err
	}
	price := task.Reward()
	if app.NegotiatedPrice.Valid {
		price = app.NegotiatedPrice.Decimal
	}
	expires := now.Add(u.business.PaymentWindow)
	task.TakerID = &app.ApplicantID
	task.AgreedReward = decimal.NewNullDecimal(price)
	task.PaymentExpiresAt = &expires

	app.Status = entities.ApplicationStatusApproved
	app.UpdatedAt = now
	if err := u.store.Applications.Update(ctx, app); err != nil {
		return nil, err
	}
	rejected, err := u.store.Applications.RejectPending(ctx, task.ID, app.ID)
	if err != nil {
		return nil, err
	}

	account := ""
	if user.StripeAccountID != nil {
		account = *user.StripeAccountID
	}
	fee := entities.ApplicationFee(price)
	intent, err := u.provider.CreateIntent(ctx, entities.CreateIntentParams{
		Amount:      utils.ToMinorUnits(price),
		Currency:    task.Currency,
		MethodTypes: entities.AllowedPaymentMethods,
		Description: "Task #" + strconv.FormatInt(task.ID, 10) + ": " + task.Title,
		Metadata: map[string]string{
			entities.MetaTaskID:               strconv.FormatInt(task.ID, 10),
			entities.MetaApplicationID:        strconv.FormatInt(app.ID, 10),
			entities.MetaPosterID:             task.PosterID,
			entities.MetaTakerID:              app.ApplicantID,
			entities.MetaTakerStripeAccountID: account,
			entities.MetaApplicationFee:       strconv.FormatInt(utils.ToMinorUnits(fee), 10),
			entities.MetaPaymentType:          entities.PaymentTypeNegotiation,
			entities.MetaPendingApproval:      "true",
		},
		IdempotencyKey: utils.IdempotencyKey("negotiation", task.ID, app.ID, nonce),
	})
	if err != nil {
		return nil, domainerrors.Upstream("Payment provider unavailable", err)
	}
	task.PaymentIntentID = null.StringFrom(intent.ID)
	task.UpdatedAt = now
	if err := u.store.Tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	if err := addHistory(ctx, u.store.Tasks, task.ID, app.ApplicantID, entities.ActionNegotiationAccept, formatMoney(price), now); err != nil {
		return nil, err
	}

	if _, err := u.notifier.Notify(ctx, NotifyInput{
		UserID:    task.PosterID,
		Type:      entities.NotificationApplicationAccepted,
		RelatedID: app.ID,
		Vars:      taskVars(task, "user_name", user.Name, "amount", formatMoney(price)),
		Channels:  []entities.Channel{entities.ChannelPush, entities.ChannelEmail},
	}); err != nil {
		return nil, err
	}
	for _, r := range rejected {
		if _, err := u.notifier.Notify(ctx, NotifyInput{
			UserID:    r.ApplicantID,
			Type:      entities.NotificationApplicationRejected,
			RelatedID: r.ID,
			Vars:      taskVars(task),
		}); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

func (u *ApplicationUsecase) rejectOffer(ctx context.Context, task *entities.Task, app *entities.TaskApplication,
	user *entities.User, now time.Time) error {
	if err := lifecycle.Apply(task, lifecycle.EventNegotiationReject); err != nil {
		return err
	}
	app.Status = entities.ApplicationStatusRejected
	app.UpdatedAt = now
	if err := u.store.Applications.Update(ctx, app); err != nil {
		return err
	}
	if err := addHistory(ctx, u.store.Tasks, task.ID, app.ApplicantID, entities.ActionNegotiationReject, "", now); err != nil {
		return err
	}
	_, err := u.notifier.Notify(ctx, NotifyInput{
		UserID:    task.PosterID,
		Type:      entities.NotificationNegotiationRejected,
		RelatedID: app.ID,
		Vars:      taskVars(task, "user_name", user.Name),
	})
	return err
}

// SendMessage carries a note between the poster and an applicant about a
// pending application.
func (u *ApplicationUsecase) SendMessage(ctx context.Context, userID string, taskID, appID int64, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return domainerrors.BadRequest("Message is required")
	}
	task, err := getTask(ctx, u.store.Tasks, taskID)
	if err != nil {
		return err
	}
	app, err := u.loadApplication(ctx, task, appID)
	if err != nil {
		return err
	}
	var recipient string
	switch userID {
	case task.PosterID:
		recipient = app.ApplicantID
	case app.ApplicantID:
		recipient = task.PosterID
	default:
		return domainerrors.Forbidden("Only the poster or applicant can message about this application")
	}
	sender, err := getUser(ctx, u.store.Users, userID)
	if err != nil {
		return err
	}
	_, err = u.notifier.Notify(ctx, NotifyInput{
		UserID:    recipient,
		Type:      entities.NotificationApplicationMessage,
		RelatedID: app.ID,
		Vars:      taskVars(task, "user_name", sender.Name, "message", preview(message)),
		Data:      map[string]any{"task_id": task.ID, "message": message},
	})
	return err
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	return string([]rune(s)[:previewLength]) + "…"
}
