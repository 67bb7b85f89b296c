package usecases

import (
	"context"
	"strconv"
	"strings"
	"time"

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
	"link2ur.backend/pkg/utils"
)

// Webhook outcomes reported to the observer.
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookRejected  = "rejected"
	WebhookFailed    = "failed"
)

const (
	webhookDedupTTL     = 7 * 24 * time.Hour
	transferSweepBatch  = 20
	stalePendingAfter   = 10 * time.Minute
	errNoPayoutAccount  = "taker has no payout account"
	errEscrowExceeded   = "amount exceeds remaining escrow"
	errSettlementFrozen = "settlement blocked by refund, dispute or frozen funds"
)

// PaymentUsecase owns escrow: it reconciles provider webhooks, records and
// executes transfers to takers and handles refunds.
type PaymentUsecase struct {
	store    *repositories.Store
	uow      repositories.UnitOfWork
	provider PaymentProvider
	notifier *NotificationUsecase
	deduper  EventDeduper
	observer WebhookObserver
	business config.BusinessConfig
	clock    clock.Clock
}

func NewPaymentUsecase(
	store *repositories.Store,
	uow repositories.UnitOfWork,
	provider PaymentProvider,
	notifier *NotificationUsecase,
	deduper EventDeduper,
	observer WebhookObserver,
	business config.BusinessConfig,
	clk clock.Clock,
) *PaymentUsecase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &PaymentUsecase{
		store:    store,
		uow:      uow,
		provider: provider,
		notifier: notifier,
		deduper:  deduper,
		observer: observer,
		business: business,
		clock:    clk,
	}
}

// HandleWebhook verifies and reconciles one provider event. Redelivered
// events are acknowledged without side effects.
func (u *PaymentUsecase) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	evt, err := u.provider.ConstructEvent(payload, signature)
	if err != nil {
		u.observer.WebhookEvent("unknown", WebhookRejected)
		logger.Warn(ctx, "Webhook signature rejected", zap.Error(err))
		return WebhookRejected, domainerrors.SignatureInvalid()
	}
	evtFields := []zap.Field{zap.String("event_id", evt.ID), zap.String("event_type", evt.Type)}

	key := "webhook_event:" + evt.ID
	if u.deduper != nil {
		fresh, err := u.deduper.SetNX(ctx, key, "1", webhookDedupTTL)
		if err != nil {
			logger.Warn(ctx, "Webhook dedup unavailable", append(evtFields, zap.Error(err))...)
		} else if !fresh {
			u.observer.WebhookEvent(evt.Type, WebhookDuplicate)
			return WebhookDuplicate, nil
		}
	}

	handled, err := u.reconcile(ctx, evt)
	if err != nil {
		if u.deduper != nil {
			if delErr := u.deduper.Del(ctx, key); delErr != nil {
				logger.Warn(ctx, "Webhook dedup release failed", append(evtFields, zap.Error(delErr))...)
			}
		}
		u.observer.WebhookEvent(evt.Type, WebhookFailed)
		logger.Error(ctx, "Webhook processing failed", append(evtFields, zap.Error(err))...)
		return WebhookFailed, err
	}
	outcome := WebhookIgnored
	if handled {
		outcome = WebhookProcessed
	}
	u.observer.WebhookEvent(evt.Type, outcome)
	logger.Info(ctx, "Webhook reconciled", append(evtFields, zap.String("outcome", outcome))...)
	return outcome, nil
}

func (u *PaymentUsecase) reconcile(ctx context.Context, evt *entities.WebhookEvent) (bool, error) {
	switch evt.Type {
	case entities.EventIntentSucceeded:
		return u.onIntentSucceeded(ctx, evt.Intent)
	case entities.EventIntentFailed:
		return u.onIntentFailed(ctx, evt.Intent)
	case entities.EventAccountCreated, entities.EventAccountUpdated, entities.EventCapabilityUpdated:
		return u.onAccountChanged(ctx, evt)
	case entities.EventAccountDeauthorized:
		return u.onAccountDeauthorized(ctx, evt)
	case entities.EventDisputeCreated:
		return u.onDisputeCreated(ctx, evt.DisputeIntentID)
	}
	return false, nil
}

// onIntentSucceeded moves the task into progress once escrow is funded.
// Replays find the task already paid and change nothing.
func (u *PaymentUsecase) onIntentSucceeded(ctx context.Context, pi *entities.PaymentIntent) (bool, error) {
	if pi == nil || pi.Metadata[entities.MetaPendingApproval] != "true" {
		return false, nil
	}
	handled := false
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.store.Tasks.GetByPaymentIntentID(u.uow.WithLock(ctx), pi.ID)
		if err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				logger.Warn(ctx, "No task for payment intent", zap.String("payment_intent_id", pi.ID))
				return nil
			}
			return err
		}
		if task.IsPaid {
			return nil
		}
		if !lifecycle.Allowed(task.Status, lifecycle.EventPaymentSucceeded) {
			logger.Warn(ctx, "Payment succeeded for task that cannot start",
				zap.Int64("task_id", task.ID), zap.String("status", string(task.Status)))
			return nil
		}

		appID, _ := strconv.ParseInt(pi.Metadata[entities.MetaApplicationID], 10, 64)
		var app *entities.TaskApplication
		if appID != 0 {
			app, err = u.store.Applications.GetByID(ctx, appID)
			if err != nil && !domainerrors.Is(err, domainerrors.ErrNotFound) {
				return err
			}
			if app != nil && app.TaskID != task.ID {
				logger.Warn(ctx, "Payment intent application belongs to another task",
					zap.Int64("task_id", task.ID), zap.Int64("application_id", appID))
				return nil
			}
		}
		takerID := pi.Metadata[entities.MetaTakerID]
		if takerID == "" && app != nil {
			takerID = app.ApplicantID
		}
		if takerID == "" {
			logger.Warn(ctx, "Payment intent carries no taker", zap.Int64("task_id", task.ID))
			return nil
		}

		now := u.clock.Now()
		escrow := utils.FromMinorUnits(pi.Amount)
		if err := lifecycle.Apply(task, lifecycle.EventPaymentSucceeded); err != nil {
			return err
		}
		task.IsPaid = true
		task.EscrowAmount = escrow
		task.TakerID = &takerID
		task.PaymentExpiresAt = nil
		if !task.Reward().Equal(escrow) {
			task.AgreedReward = decimal.NewNullDecimal(escrow)
		}
		task.UpdatedAt = now
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}

		if app != nil && app.Status != entities.ApplicationStatusApproved {
			app.Status = entities.ApplicationStatusApproved
			app.UpdatedAt = now
			if err := u.store.Applications.Update(ctx, app); err != nil {
				return err
			}
		}
		rejected, err := u.store.Applications.RejectPending(ctx, task.ID, appID)
		if err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, takerID, entities.ActionPaymentSucceeded, formatMoney(escrow), now); err != nil {
			return err
		}
		if err := u.notifier.notifyAll(ctx, []string{task.PosterID, takerID}, NotifyInput{
			Type:      entities.NotificationPaymentSucceeded,
			RelatedID: task.ID,
			Vars:      taskVars(task, "amount", formatMoney(escrow)),
		}); err != nil {
			return err
		}
		for _, r := range rejected {
			if _, err := u.notifier.Notify(ctx, NotifyInput{
				UserID:    r.ApplicantID,
				Type:      entities.NotificationApplicationRejected,
				RelatedID: r.ID,
				Vars:      taskVars(task),
			}); err != nil {
				return err
			}
		}
		handled = true
		return nil
	})
	return handled, err
}

func (u *PaymentUsecase) onIntentFailed(ctx context.Context, pi *entities.PaymentIntent) (bool, error) {
	if pi == nil {
		return false, nil
	}
	handled := false
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.store.Tasks.GetByPaymentIntentID(ctx, pi.ID)
		if err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				return nil
			}
			return err
		}
		if task.IsPaid {
			return nil
		}
		now := u.clock.Now()
		if err := addHistory(ctx, u.store.Tasks, task.ID, "", entities.ActionPaymentFailed, pi.ID, now); err != nil {
			return err
		}
		_, err = u.notifier.Notify(ctx, NotifyInput{
			UserID:    task.PosterID,
			Type:      entities.NotificationPaymentFailed,
			RelatedID: task.ID,
			Vars:      taskVars(task),
		})
		handled = err == nil
		return err
	})
	return handled, err
}

// onAccountChanged mirrors the payout capability of a connected account
// onto its user.
func (u *PaymentUsecase) onAccountChanged(ctx context.Context, evt *entities.WebhookEvent) (bool, error) {
	acct := evt.Account
	if acct == nil {
		if evt.AccountID == "" {
			return false, nil
		}
		var err error
		acct, err = u.provider.RetrieveAccount(ctx, evt.AccountID)
		if err != nil {
			return false, domainerrors.Upstream("Failed to retrieve connected account", err)
		}
	}
	user, err := u.store.Users.GetByStripeAccountID(ctx, acct.ID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := u.store.Users.SetStripeAccount(ctx, user.ID, &acct.ID, acct.Enabled()); err != nil {
		return false, err
	}
	return true, nil
}

func (u *PaymentUsecase) onAccountDeauthorized(ctx context.Context, evt *entities.WebhookEvent) (bool, error) {
	id := evt.AccountID
	if id == "" && evt.Account != nil {
		id = evt.Account.ID
	}
	if id == "" {
		return false, nil
	}
	user, err := u.store.Users.GetByStripeAccountID(ctx, id)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := u.store.Users.SetStripeAccount(ctx, user.ID, nil, false); err != nil {
		return false, err
	}
	return true, nil
}

// onDisputeCreated freezes a task's escrow while the card network dispute
// is open.
func (u *PaymentUsecase) onDisputeCreated(ctx context.Context, intentID string) (bool, error) {
	if intentID == "" {
		return false, nil
	}
	handled := false
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := u.store.Tasks.GetByPaymentIntentID(u.uow.WithLock(ctx), intentID)
		if err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				return nil
			}
			return err
		}
		if task.StripeDisputeFrozen {
			return nil
		}
		now := u.clock.Now()
		task.StripeDisputeFrozen = true
		task.UpdatedAt = now
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, task.ID, "", entities.ActionProviderDispute, intentID, now); err != nil {
			return err
		}
		admins, err := adminIDs(ctx, u.store.Staff)
		if err != nil {
			return err
		}
		recipients := append([]string{task.PosterID, takerOf(task)}, admins...)
		if err := u.notifier.notifyAll(ctx, recipients, NotifyInput{
			Type:      entities.NotificationProviderDispute,
			RelatedID: task.ID,
			Vars:      taskVars(task),
			Channels:  []entities.Channel{entities.ChannelPush, entities.ChannelEmail},
		}); err != nil {
			return err
		}
		handled = true
		return nil
	})
	return handled, err
}

// settlementBlocked returns a conflict when escrow cannot be released.
func (u *PaymentUsecase) settlementBlocked(ctx context.Context, task *entities.Task) error {
	if task.StripeDisputeFrozen {
		return domainerrors.Conflict("Funds for this task are frozen by a payment dispute")
	}
	refund, err := u.store.Refunds.HasActive(ctx, task.ID)
	if err != nil {
		return err
	}
	if refund {
		return domainerrors.Conflict("A refund request is in progress for this task")
	}
	dispute, err := u.store.Disputes.HasPending(ctx, task.ID)
	if err != nil {
		return err
	}
	if dispute {
		return domainerrors.Conflict("A dispute is open for this task")
	}
	if !task.EscrowAmount.IsPositive() {
		return domainerrors.Conflict("Task has no escrow to release")
	}
	return nil
}

// settle completes a locked task and stages the payout of its remaining
// escrow as a pending transfer row. The provider is called only after the
// caller's transaction commits, so no row lock is held across the RPC.
//
// A manual confirmation sets is_confirmed and paid_to_user_id right away.
// Automatic ones leave the task completed with auto_confirmed set and
// is_confirmed unset until the transfer succeeds; a transfer that lands in
// retrying keeps it that way until the sweeper pays it out. It returns nil
// when nothing is left to pay.
func (u *PaymentUsecase) settle(ctx context.Context, task *entities.Task, ev lifecycle.Event, now time.Time) (*entities.PaymentTransfer, error) {
	if err := lifecycle.Apply(task, ev); err != nil {
		return nil, err
	}
	auto := ev != lifecycle.EventConfirm
	source := entities.TransferSourceManualConfirm
	if auto {
		source = entities.TransferSourceAutoConfirm
	}
	taker := takerOf(task)
	amount, err := remainingEscrow(ctx, u.store.Transfers, task)
	if err != nil {
		return nil, err
	}

	task.ConfirmedAt = &now
	if task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	task.AutoConfirmed = task.AutoConfirmed || auto
	if !auto || !amount.IsPositive() {
		task.IsConfirmed = true
		task.PaidToUserID = &taker
	}
	task.UpdatedAt = now
	if err := u.store.Tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	if !amount.IsPositive() || taker == "" {
		return nil, nil
	}

	fee := entities.ApplicationFee(amount)
	tr := &entities.PaymentTransfer{
		TaskID:   task.ID,
		TakerID:  taker,
		PosterID: task.PosterID,
		Amount:   amount,
		Currency: task.Currency,
		Status:   entities.TransferStatusPending,
		Metadata: entities.TransferMetadata{
			TransferSource:      source,
			TaskID:              task.ID,
			ApplicationFee:      formatMoney(fee),
			ApplicationFeePence: utils.ToMinorUnits(fee),
			Retryable:           true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	// The insert gets its own savepoint: a unique violation must not abort
	// the enclosing transaction.
	err = u.uow.Do(ctx, func(ctx context.Context) error {
		return u.store.Transfers.Create(ctx, tr)
	})
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrAlreadyExists) {
			logger.Info(ctx, "Auto-confirm transfer already recorded", zap.Int64("task_id", task.ID))
			return nil, nil
		}
		return nil, err
	}

	id := tr.ID
	u.uow.AfterCommit(ctx, func(ctx context.Context) {
		if err := u.ExecuteTransfer(ctx, id); err != nil {
			logger.Warn(ctx, "Transfer left for the sweeper", zap.Int64("transfer_id", id), zap.Error(err))
		}
	})
	return tr, nil
}

// ExecuteTransfer pays out one recorded transfer. Eligibility is checked and
// the attempt recorded under the task lock, the provider is called after
// that transaction commits, and the outcome is applied under a fresh lock.
// The transfer_<id> idempotency key makes a repeated call after a crash
// replay the first payout. It must not be called inside a transaction.
func (u *PaymentUsecase) ExecuteTransfer(ctx context.Context, transferID int64) error {
	var params *entities.CreateTransferParams
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, tr, err := u.lockTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		params, err = u.prepareTransfer(ctx, task, tr)
		return err
	})
	if err != nil || params == nil {
		return err
	}

	out, callErr := u.provider.CreateTransfer(ctx, *params)

	return u.uow.Do(ctx, func(ctx context.Context) error {
		task, tr, err := u.lockTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		return u.applyTransferResult(ctx, task, tr, out, callErr)
	})
}

func (u *PaymentUsecase) lockTransfer(ctx context.Context, transferID int64) (*entities.Task, *entities.PaymentTransfer, error) {
	tr, err := u.store.Transfers.GetByID(ctx, transferID)
	if err != nil {
		return nil, nil, err
	}
	task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, tr.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return task, tr, nil
}

// prepareTransfer checks that tr may be paid now and records the attempt.
// It returns nil params when no provider call should be made; blocking
// conditions are recorded on the row rather than returned so the
// transaction still commits.
func (u *PaymentUsecase) prepareTransfer(ctx context.Context, task *entities.Task, tr *entities.PaymentTransfer) (*entities.CreateTransferParams, error) {
	switch tr.Status {
	case entities.TransferStatusSucceeded, entities.TransferStatusFailed, entities.TransferStatusReversed:
		return nil, nil
	}
	now := u.clock.Now()
	save := func() error {
		tr.UpdatedAt = now
		return u.store.Transfers.Update(ctx, tr)
	}

	if task.StripeDisputeFrozen {
		tr.Metadata.LastError = errSettlementFrozen
		return nil, save()
	}
	refund, err := u.store.Refunds.HasActive(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	dispute, err := u.store.Disputes.HasPending(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if refund || dispute {
		tr.Metadata.LastError = errSettlementFrozen
		return nil, save()
	}

	remaining, err := remainingEscrow(ctx, u.store.Transfers, task)
	if err != nil {
		return nil, err
	}
	if tr.Amount.GreaterThan(remaining) {
		tr.Status = entities.TransferStatusFailed
		tr.Metadata.Retryable = false
		tr.Metadata.LastError = errEscrowExceeded
		return nil, save()
	}

	taker, err := getUser(ctx, u.store.Users, tr.TakerID)
	if err != nil {
		return nil, err
	}
	if !taker.CanReceivePayouts() {
		tr.Metadata.LastError = errNoPayoutAccount
		return nil, save()
	}

	net := tr.Amount.Sub(entities.ApplicationFee(tr.Amount))
	if !net.IsPositive() {
		tr.Status = entities.TransferStatusFailed
		tr.Metadata.Retryable = false
		tr.Metadata.LastError = "amount does not cover the application fee"
		return nil, save()
	}

	tr.Attempts++
	tr.Metadata.DestinationAccount = *taker.StripeAccountID
	if err := save(); err != nil {
		return nil, err
	}
	return &entities.CreateTransferParams{
		Amount:        utils.ToMinorUnits(net),
		Currency:      tr.Currency,
		Destination:   *taker.StripeAccountID,
		TransferGroup: utils.IdempotencyKey("task", tr.TaskID),
		Metadata: map[string]string{
			"task_id":         strconv.FormatInt(tr.TaskID, 10),
			"transfer_id":     strconv.FormatInt(tr.ID, 10),
			"transfer_source": tr.Metadata.TransferSource,
			"application_fee": tr.Metadata.ApplicationFee,
		},
		IdempotencyKey: utils.IdempotencyKey("transfer", tr.ID),
	}, nil
}

// applyTransferResult records the provider's answer on the locked rows.
// An automatic settlement becomes confirmed once its payout succeeds.
func (u *PaymentUsecase) applyTransferResult(ctx context.Context, task *entities.Task, tr *entities.PaymentTransfer,
	out *entities.ProviderTransfer, callErr error) error {
	if tr.Status == entities.TransferStatusSucceeded {
		return nil
	}
	now := u.clock.Now()
	save := func() error {
		tr.UpdatedAt = now
		return u.store.Transfers.Update(ctx, tr)
	}
	if callErr != nil {
		return u.recordTransferFailure(ctx, task, tr, callErr, now, save)
	}

	tr.Status = entities.TransferStatusSucceeded
	tr.ProviderTransferID = null.StringFrom(out.ID)
	tr.NextRetryAt = nil
	tr.Metadata.LastError = ""
	if err := save(); err != nil {
		return err
	}
	if task.AutoConfirmed && !task.IsConfirmed {
		task.IsConfirmed = true
		task.PaidToUserID = &tr.TakerID
		if task.ConfirmedAt == nil {
			task.ConfirmedAt = &now
		}
		task.UpdatedAt = now
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
	}
	logger.Info(ctx, "Transfer succeeded",
		zap.Int64("transfer_id", tr.ID),
		zap.Int64("task_id", tr.TaskID),
		zap.String("amount", formatMoney(tr.Amount)),
	)
	return nil
}

// recordTransferFailure schedules a retry with exponential backoff, or
// fails the row once attempts are exhausted or the error is permanent.
func (u *PaymentUsecase) recordTransferFailure(ctx context.Context, task *entities.Task, tr *entities.PaymentTransfer,
	cause error, now time.Time, save func() error) error {
	retryable := true
	var perr *entities.ProviderError
	if domainerrors.As(cause, &perr) {
		retryable = perr.Retryable
	}
	tr.Metadata.LastError = cause.Error()
	tr.Metadata.Retryable = retryable

	if retryable && tr.Attempts < u.business.TransferMaxAttempts {
		next := now.Add(u.business.TransferRetryBase << (tr.Attempts - 1))
		tr.Status = entities.TransferStatusRetrying
		tr.NextRetryAt = &next
		logger.Warn(ctx, "Transfer failed, retry scheduled",
			zap.Int64("transfer_id", tr.ID), zap.Int("attempts", tr.Attempts), zap.Time("next_retry_at", next), zap.Error(cause))
		return save()
	}

	tr.Status = entities.TransferStatusFailed
	tr.NextRetryAt = nil
	logger.Error(ctx, "Transfer failed", zap.Int64("transfer_id", tr.ID), zap.Int("attempts", tr.Attempts), zap.Error(cause))
	if err := save(); err != nil {
		return err
	}
	admins, err := adminIDs(ctx, u.store.Staff)
	if err != nil {
		return err
	}
	return u.notifier.notifyAll(ctx, append([]string{tr.TakerID}, admins...), NotifyInput{
		Type:      entities.NotificationTransferFailed,
		RelatedID: task.ID,
		Vars:      taskVars(task, "amount", formatMoney(tr.Amount)),
	})
}

// RetryTransfers executes transfers whose backoff has elapsed and pending
// rows the post-commit hook never completed.
func (u *PaymentUsecase) RetryTransfers(ctx context.Context) (int, error) {
	now := u.clock.Now()
	due, err := u.store.Transfers.ListDue(ctx, now, now.Add(-stalePendingAfter), transferSweepBatch)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, tr := range due {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := u.ExecuteTransfer(ctx, tr.ID); err != nil {
			logger.Warn(ctx, "Transfer retry failed", zap.Int64("transfer_id", tr.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

// RequestRefund opens a refund request against a paid task. A nil amount
// asks for the whole remaining escrow.
func (u *PaymentUsecase) RequestRefund(ctx context.Context, posterID string, taskID int64, reason string, amount *decimal.Decimal) (*entities.RefundRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domainerrors.BadRequest("A reason is required")
	}
	var refund *entities.RefundRequest
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, taskID)
		if err != nil {
			return err
		}
		if task.PosterID != posterID {
			return domainerrors.Forbidden("Only the poster can request a refund")
		}
		if _, err := lifecycle.Next(task.Status, lifecycle.EventRequestRefund); err != nil {
			return err
		}
		if !task.IsPaid {
			return domainerrors.Conflict("Task has not been paid")
		}
		active, err := u.store.Refunds.HasActive(ctx, taskID)
		if err != nil {
			return err
		}
		if active {
			return domainerrors.Conflict("A refund request is already in progress")
		}
		remaining, err := remainingEscrow(ctx, u.store.Transfers, task)
		if err != nil {
			return err
		}
		want := remaining
		if amount != nil {
			want = amount.Round(2)
		}
		if !want.IsPositive() || want.GreaterThan(remaining) {
			return domainerrors.BadRequest("Refund amount must be positive and within the remaining escrow")
		}

		now := u.clock.Now()
		refund = &entities.RefundRequest{
			TaskID:    taskID,
			PosterID:  posterID,
			Reason:    reason,
			Amount:    want,
			Status:    entities.RefundStatusPending,
			CreatedAt: now,
		}
		if err := u.store.Refunds.Create(ctx, refund); err != nil {
			return err
		}
		if err := addHistory(ctx, u.store.Tasks, taskID, posterID, entities.ActionRefundRequested, formatMoney(want), now); err != nil {
			return err
		}
		admins, err := adminIDs(ctx, u.store.Staff)
		if err != nil {
			return err
		}
		return u.notifier.notifyAll(ctx, append([]string{takerOf(task)}, admins...), NotifyInput{
			Type:      entities.NotificationRefundRequested,
			RelatedID: task.ID,
			Vars:      taskVars(task, "amount", formatMoney(want), "reason", reason),
		})
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// ReviewRefund approves or rejects a pending refund. Approval moves the
// request to processing under the task lock, refunds the poster through
// the provider after commit and then reduces escrow under a fresh lock. A
// failed provider call puts the request back to pending.
func (u *PaymentUsecase) ReviewRefund(ctx context.Context, reviewerID string, refundID int64, approve bool, comment string) (*entities.RefundRequest, error) {
	if _, err := requireStaff(ctx, u.store.Staff, reviewerID, false); err != nil {
		return nil, err
	}
	var (
		refund *entities.RefundRequest
		params *entities.CreateRefundParams
	)
	err := u.uow.Do(ctx, func(ctx context.Context) error {
		var (
			task *entities.Task
			err  error
		)
		refund, task, err = u.lockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if !approve {
			refund.Status = entities.RefundStatusRejected
			return u.finishRefundReview(ctx, task, refund, reviewerID, comment)
		}
		remaining, err := remainingEscrow(ctx, u.store.Transfers, task)
		if err != nil {
			return err
		}
		if refund.Amount.GreaterThan(remaining) {
			return domainerrors.Conflict("Refund exceeds the remaining escrow")
		}
		if !task.PaymentIntentID.Valid {
			return domainerrors.Conflict("Task has no payment to refund")
		}
		refund.Status = entities.RefundStatusProcessing
		if err := u.store.Refunds.Update(ctx, refund); err != nil {
			return err
		}
		params = &entities.CreateRefundParams{
			PaymentIntentID: task.PaymentIntentID.String,
			Amount:          utils.ToMinorUnits(refund.Amount),
			Reason:          "requested_by_customer",
			Metadata: map[string]string{
				"task_id":   strconv.FormatInt(task.ID, 10),
				"refund_id": strconv.FormatInt(refund.ID, 10),
			},
			IdempotencyKey: utils.IdempotencyKey("refund", refund.ID),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if params == nil {
		return refund, nil
	}

	out, callErr := u.provider.CreateRefund(ctx, *params)

	err = u.uow.Do(ctx, func(ctx context.Context) error {
		var (
			task *entities.Task
			err  error
		)
		refund, task, err = u.lockRefund(ctx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != entities.RefundStatusProcessing {
			return domainerrors.Conflict("Refund request has already been reviewed")
		}
		if callErr != nil {
			refund.Status = entities.RefundStatusPending
			return u.store.Refunds.Update(ctx, refund)
		}
		refund.ProviderRefundID = null.StringFrom(out.ID)
		refund.Status = entities.RefundStatusApproved
		task.EscrowAmount = task.EscrowAmount.Sub(refund.Amount)
		task.UpdatedAt = u.clock.Now()
		if err := u.store.Tasks.Update(ctx, task); err != nil {
			return err
		}
		return u.finishRefundReview(ctx, task, refund, reviewerID, comment)
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		return nil, domainerrors.Upstream("Refund could not be issued", callErr)
	}
	return refund, nil
}

// lockRefund loads an active refund request and locks its task.
func (u *PaymentUsecase) lockRefund(ctx context.Context, refundID int64) (*entities.RefundRequest, *entities.Task, error) {
	refund, err := u.store.Refunds.GetByID(ctx, refundID)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, nil, domainerrors.NotFound("Refund request not found")
		}
		return nil, nil, err
	}
	if !refund.Status.IsActive() {
		return nil, nil, domainerrors.Conflict("Refund request has already been reviewed")
	}
	task, err := getTask(u.uow.WithLock(ctx), u.store.Tasks, refund.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return refund, task, nil
}

// finishRefundReview stamps the reviewer, writes history and tells the poster.
func (u *PaymentUsecase) finishRefundReview(ctx context.Context, task *entities.Task, refund *entities.RefundRequest, reviewerID, comment string) error {
	now := u.clock.Now()
	result, resultEn := "拒绝", "rejected"
	if refund.Status == entities.RefundStatusApproved {
		result, resultEn = "批准", "approved"
	}
	refund.ReviewerID = &reviewerID
	refund.ReviewerComment = strings.TrimSpace(comment)
	refund.ReviewedAt = &now
	if err := u.store.Refunds.Update(ctx, refund); err != nil {
		return err
	}
	if err := addHistory(ctx, u.store.Tasks, task.ID, reviewerID, entities.ActionRefundReviewed, string(refund.Status), now); err != nil {
		return err
	}
	_, err := u.notifier.Notify(ctx, NotifyInput{
		UserID:    refund.PosterID,
		Type:      entities.NotificationRefundReviewed,
		RelatedID: refund.ID,
		Vars:      taskVars(task, "result", result, "result_en", resultEn),
		Channels:  []entities.Channel{entities.ChannelPush, entities.ChannelEmail},
	})
	return err
}

// ConnectAccount returns the user's connected payout account, creating it
// on first use.
func (u *PaymentUsecase) ConnectAccount(ctx context.Context, userID string) (*entities.ConnectAccount, error) {
	user, err := getUser(ctx, u.store.Users, userID)
	if err != nil {
		return nil, err
	}
	var acct *entities.ConnectAccount
	if user.StripeAccountID != nil && *user.StripeAccountID != "" {
		acct, err = u.provider.RetrieveAccount(ctx, *user.StripeAccountID)
	} else {
		email := ""
		if user.Email != nil {
			email = *user.Email
		}
		acct, err = u.provider.CreateAccount(ctx, email, map[string]string{"user_id": user.ID})
	}
	if err != nil {
		return nil, domainerrors.Upstream("Payment provider unavailable", err)
	}
	if err := u.store.Users.SetStripeAccount(ctx, user.ID, &acct.ID, acct.Enabled()); err != nil {
		return nil, err
	}
	return acct, nil
}

// AccountSession returns a client secret for embedded onboarding.
func (u *PaymentUsecase) AccountSession(ctx context.Context, userID string) (string, error) {
	acct, err := u.ConnectAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	secret, err := u.provider.CreateAccountSession(ctx, acct.ID)
	if err != nil {
		return "", domainerrors.Upstream("Payment provider unavailable", err)
	}
	return secret, nil
}

// EphemeralKey returns the customer id and an ephemeral key secret for
// mobile payment sheets.
func (u *PaymentUsecase) EphemeralKey(ctx context.Context, userID string) (string, string, error) {
	user, err := getUser(ctx, u.store.Users, userID)
	if err != nil {
		return "", "", err
	}
	customerID := ""
	if user.StripeCustomerID != nil {
		customerID = *user.StripeCustomerID
	}
	if customerID == "" {
		email := ""
		if user.Email != nil {
			email = *user.Email
		}
		customerID, err = u.provider.CreateCustomer(ctx, user.ID, email, user.Name)
		if err != nil {
			return "", "", domainerrors.Upstream("Payment provider unavailable", err)
		}
		if err := u.store.Users.SetStripeCustomer(ctx, user.ID, customerID); err != nil {
			return "", "", err
		}
	}
	secret, err := u.provider.CreateEphemeralKey(ctx, customerID)
	if err != nil {
		return "", "", domainerrors.Upstream("Payment provider unavailable", err)
	}
	return customerID, secret, nil
}

// ListTransfers returns a task's payout rows for its poster or taker.
func (u *PaymentUsecase) ListTransfers(ctx context.Context, userID string, taskID int64) ([]*entities.PaymentTransfer, error) {
	task, err := getTask(ctx, u.store.Tasks, taskID)
	if err != nil {
		return nil, err
	}
	if task.PosterID != userID && !task.IsTaker(userID) {
		return nil, domainerrors.Forbidden("Not a participant of this task")
	}
	return u.store.Transfers.ListByTask(ctx, taskID)
}
