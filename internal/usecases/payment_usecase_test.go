package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/payment"
)

// approveAndPay applies takerID to task, approves the application and
// returns the signed payment_intent.succeeded webhook for the new intent.
func approveAndPay(t *testing.T, h *harness, task *entities.Task, eventID string) ([]byte, string, *entities.TaskApplication) {
	t.Helper()
	ctx := context.Background()
	app, err := h.applications.Apply(ctx, takerID, task.ID, ApplyInput{Message: "I can help"})
	require.NoError(t, err)
	res, err := h.applications.Approve(ctx, posterID, task.ID, app.ID)
	require.NoError(t, err)
	require.Equal(t, ApproveCreated, res.Kind)

	h.provider.SetIntentStatus(res.Intent.ID, entities.IntentSucceeded)
	pi, err := h.provider.RetrieveIntent(ctx, res.Intent.ID)
	require.NoError(t, err)
	body, sig := h.provider.SignEvent(eventID, entities.EventIntentSucceeded, "", payment.IntentObject(pi))
	return body, sig, app
}

func TestPaymentUsecase_WebhookStartsTaskOnce(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedPayee(t, takerID)
	h.seedUser(t, otherID, nil)
	ctx := context.Background()
	task := h.seedTask(t, nil)

	loser, err := h.applications.Apply(ctx, otherID, task.ID, ApplyInput{})
	require.NoError(t, err)
	body, sig, app := approveAndPay(t, h, task, "evt_1")

	outcome, err := h.payments.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, outcome)

	got := h.reload(t, task.ID)
	assert.Equal(t, entities.TaskStatusInProgress, got.Status)
	assert.True(t, got.IsPaid)
	assert.Equal(t, takerID, *got.TakerID)
	assert.True(t, got.EscrowAmount.Equal(decimal.RequireFromString("30")))

	approved, err := h.store.Applications.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ApplicationStatusApproved, approved.Status)
	rejected, err := h.store.Applications.GetByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.ApplicationStatusRejected, rejected.Status)
	assert.Contains(t, h.notificationTypes(t, otherID), entities.NotificationApplicationRejected)

	outcome, err = h.payments.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, outcome)

	// Same intent under a new event id finds the task already paid.
	pi, err := h.provider.RetrieveIntent(ctx, got.PaymentIntentID.String)
	require.NoError(t, err)
	body2, sig2 := h.provider.SignEvent("evt_2", entities.EventIntentSucceeded, "", payment.IntentObject(pi))
	outcome, err = h.payments.HandleWebhook(ctx, body2, sig2)
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, outcome)

	history, err := h.tasks.History(ctx, task.ID)
	require.NoError(t, err)
	succeeded := 0
	for _, e := range history {
		if e.Action == entities.ActionPaymentSucceeded {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, h.observer.counts[WebhookProcessed])
	assert.Equal(t, 1, h.observer.counts[WebhookDuplicate])
}

func TestPaymentUsecase_WebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	body, _ := h.provider.SignEvent("evt_1", entities.EventIntentSucceeded, "", map[string]any{"id": "pi_1", "object": "payment_intent"})

	outcome, err := h.payments.HandleWebhook(context.Background(), body, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, domainerrors.ErrSignature)
	assert.Equal(t, WebhookRejected, outcome)
	assert.False(t, h.mr.Exists("webhook_event:evt_1"))
}

func TestPaymentUsecase_WebhookFailureReleasesDedupKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	body, sig := h.provider.SignEvent("evt_cap", entities.EventCapabilityUpdated, "acct_unknown", map[string]any{
		"id": "transfers", "object": "capability", "account": "acct_unknown", "status": "active",
	})
	outcome, err := h.payments.HandleWebhook(ctx, body, sig)
	require.ErrorIs(t, err, domainerrors.ErrUpstream)
	assert.Equal(t, WebhookFailed, outcome)
	assert.False(t, h.mr.Exists("webhook_event:evt_cap"))
}

func TestPaymentUsecase_AccountWebhooks(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, takerID, func(u *entities.User) {
		acct := "acct_1"
		u.StripeAccountID = &acct
	})
	ctx := context.Background()

	body, sig := h.provider.SignEvent("evt_a", entities.EventAccountUpdated, "", map[string]any{
		"id": "acct_1", "object": "account", "charges_enabled": true, "payouts_enabled": true, "details_submitted": true,
	})
	outcome, err := h.payments.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, outcome)
	u, err := h.store.Users.GetByID(ctx, takerID)
	require.NoError(t, err)
	assert.True(t, u.CanReceivePayouts())

	body, sig = h.provider.SignEvent("evt_d", entities.EventAccountDeauthorized, "acct_1", map[string]any{
		"id": "ca_1", "object": "application",
	})
	_, err = h.payments.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	u, err = h.store.Users.GetByID(ctx, takerID)
	require.NoError(t, err)
	assert.Nil(t, u.StripeAccountID)
	assert.False(t, u.CanReceivePayouts())
}

func TestPaymentUsecase_ProviderDisputeFreezesSettlement(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedPayee(t, takerID)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusPendingConfirmation, nil)

	body, sig := h.provider.SignEvent("evt_dp", entities.EventDisputeCreated, "", map[string]any{
		"id": "dp_1", "object": "dispute", "payment_intent": "pi_seeded", "amount": 3000, "currency": "gbp",
	})
	outcome, err := h.payments.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, outcome)
	assert.True(t, h.reload(t, task.ID).StripeDisputeFrozen)

	_, err = h.tasks.Confirm(ctx, posterID, task.ID)
	require.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.Empty(t, h.provider.Transfers())
}

func TestPaymentUsecase_TransferRetriesWithBackoff(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedPayee(t, takerID)
	h.seedAdmin(t, adminID)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusPendingConfirmation, nil)

	h.provider.TransferErr = &entities.ProviderError{Op: "transfer", Retryable: true, Err: errors.New("timeout")}
	_, err := h.tasks.Confirm(ctx, posterID, task.ID)
	require.NoError(t, err)

	transfers, err := h.store.Transfers.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	tr := transfers[0]
	assert.Equal(t, entities.TransferStatusRetrying, tr.Status)
	assert.Equal(t, 1, tr.Attempts)
	require.NotNil(t, tr.NextRetryAt)
	assert.WithinDuration(t, h.clock.Now().Add(5*time.Minute), *tr.NextRetryAt, time.Second)

	n, err := h.payments.RetryTransfers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "backoff not elapsed")

	h.clock.Advance(6 * time.Minute)
	n, err = h.payments.RetryTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	tr, err = h.store.Transfers.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Attempts)
	assert.WithinDuration(t, h.clock.Now().Add(10*time.Minute), *tr.NextRetryAt, time.Second)

	h.clock.Advance(11 * time.Minute)
	_, err = h.payments.RetryTransfers(ctx)
	require.NoError(t, err)
	tr, err = h.store.Transfers.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransferStatusFailed, tr.Status)
	assert.Equal(t, 3, tr.Attempts)
	assert.Contains(t, h.notificationTypes(t, takerID), entities.NotificationTransferFailed)
	assert.Contains(t, h.notificationTypes(t, adminID), entities.NotificationTransferFailed)
}

func TestPaymentUsecase_TransferWaitsForPayoutAccount(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedUser(t, takerID, nil)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusPendingConfirmation, nil)

	_, err := h.tasks.Confirm(ctx, posterID, task.ID)
	require.NoError(t, err)
	transfers, err := h.store.Transfers.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, entities.TransferStatusPending, transfers[0].Status)
	assert.Equal(t, errNoPayoutAccount, transfers[0].Metadata.LastError)
	assert.Empty(t, h.provider.Transfers())

	acct := "acct_late"
	require.NoError(t, h.store.Users.SetStripeAccount(ctx, takerID, &acct, true))
	h.clock.Advance(stalePendingAfter + time.Minute)
	n, err := h.payments.RetryTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, h.provider.Transfers(), 1)
	assert.Equal(t, "acct_late", h.provider.Transfers()[0].Destination)
}

func TestPaymentUsecase_RefundFlow(t *testing.T) {
	h := newHarness(t)
	h.seedUser(t, posterID, nil)
	h.seedPayee(t, takerID)
	h.seedAdmin(t, adminID)
	ctx := context.Background()
	task := h.seedPaidTask(t, entities.TaskStatusInProgress, nil)

	_, err := h.payments.RequestRefund(ctx, takerID, task.ID, "not done", nil)
	require.ErrorIs(t, err, domainerrors.ErrForbidden)
	tooMuch := decimal.NewFromInt(31)
	_, err = h.payments.RequestRefund(ctx, posterID, task.ID, "not done", &tooMuch)
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	part := decimal.NewFromInt(10)
	refund, err := h.payments.RequestRefund(ctx, posterID, task.ID, "half done", &part)
	require.NoError(t, err)
	_, err = h.payments.RequestRefund(ctx, posterID, task.ID, "again", nil)
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	reviewed, err := h.payments.ReviewRefund(ctx, adminID, refund.ID, true, "ok")
	require.NoError(t, err)
	assert.Equal(t, entities.RefundStatusApproved, reviewed.Status)
	require.Len(t, h.provider.Refunds(), 1)
	assert.Equal(t, int64(1000), h.provider.Refunds()[0].Amount)
	assert.True(t, h.reload(t, task.ID).EscrowAmount.Equal(decimal.NewFromInt(20)))

	_, err = h.payments.ReviewRefund(ctx, adminID, refund.ID, true, "twice")
	require.ErrorIs(t, err, domainerrors.ErrConflict)
	assert.Contains(t, h.notificationTypes(t, posterID), entities.NotificationRefundReviewed)
}
