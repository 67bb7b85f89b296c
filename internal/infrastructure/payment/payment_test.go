package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
)

const testSecret = "whsec_test"

func TestParseWebhook_IntentSucceeded(t *testing.T) {
	f := NewFake(testSecret)
	pi := &entities.PaymentIntent{
		ID:       "pi_123",
		Amount:   3000,
		Currency: "GBP",
		Status:   entities.IntentSucceeded,
		Metadata: map[string]string{entities.MetaTaskID: "2", entities.MetaPendingApproval: "true"},
	}
	body, sig := f.SignEvent("evt_1", entities.EventIntentSucceeded, "", IntentObject(pi))

	evt, err := ParseWebhook(body, sig, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, entities.EventIntentSucceeded, evt.Type)
	require.NotNil(t, evt.Intent)
	assert.Equal(t, "pi_123", evt.Intent.ID)
	assert.Equal(t, int64(3000), evt.Intent.Amount)
	assert.Equal(t, "GBP", evt.Intent.Currency)
	assert.Equal(t, entities.IntentSucceeded, evt.Intent.Status)
	assert.Equal(t, "true", evt.Intent.Metadata[entities.MetaPendingApproval])
}

func TestParseWebhook_BadSignature(t *testing.T) {
	f := NewFake(testSecret)
	body, _ := f.SignEvent("evt_1", entities.EventIntentSucceeded, "", map[string]any{"id": "pi_1", "object": "payment_intent"})

	_, err := ParseWebhook(body, "t=1,v1=deadbeef", testSecret)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrSignature)

	other := NewFake("whsec_other")
	_, sig := other.SignEvent("evt_1", entities.EventIntentSucceeded, "", map[string]any{"id": "pi_1"})
	_, err = ParseWebhook(body, sig, testSecret)
	assert.ErrorIs(t, err, domainerrors.ErrSignature)
}

func TestParseWebhook_AccountAndCapability(t *testing.T) {
	f := NewFake(testSecret)

	body, sig := f.SignEvent("evt_a", entities.EventAccountUpdated, "", map[string]any{
		"id": "acct_1", "object": "account", "charges_enabled": true, "payouts_enabled": true, "details_submitted": true,
	})
	evt, err := f.ConstructEvent(body, sig)
	require.NoError(t, err)
	require.NotNil(t, evt.Account)
	assert.Equal(t, "acct_1", evt.AccountID)
	assert.True(t, evt.Account.Enabled())

	body, sig = f.SignEvent("evt_c", entities.EventCapabilityUpdated, "acct_2", map[string]any{
		"id": "transfers", "object": "capability", "account": "acct_2", "status": "active",
	})
	evt, err = f.ConstructEvent(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "acct_2", evt.AccountID)
	assert.Nil(t, evt.Account)

	body, sig = f.SignEvent("evt_d", entities.EventAccountDeauthorized, "acct_3", map[string]any{
		"id": "ca_1", "object": "application",
	})
	evt, err = f.ConstructEvent(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "acct_3", evt.AccountID)
}

func TestParseWebhook_Dispute(t *testing.T) {
	f := NewFake(testSecret)
	body, sig := f.SignEvent("evt_dp", entities.EventDisputeCreated, "", map[string]any{
		"id": "dp_1", "object": "dispute", "payment_intent": "pi_9", "amount": 500,
	})
	evt, err := f.ConstructEvent(body, sig)
	require.NoError(t, err)
	assert.Equal(t, "pi_9", evt.DisputeIntentID)
}

func TestWrap_ClassifiesRetryable(t *testing.T) {
	var pe *entities.ProviderError

	err := wrap("create transfer", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest, Code: stripe.ErrorCodeResourceMissing})
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable)
	assert.Equal(t, "resource_missing", pe.Code)

	err = wrap("create transfer", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests})
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)

	err = wrap("create transfer", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusServiceUnavailable})
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)

	err = wrap("create transfer", errors.New("connection reset"))
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable)
	assert.Contains(t, err.Error(), "create transfer")
}

func TestFake_IdempotentReplay(t *testing.T) {
	f := NewFake(testSecret)
	ctx := context.Background()

	a, err := f.CreateIntent(ctx, entities.CreateIntentParams{Amount: 100, Currency: "gbp", IdempotencyKey: "k1"})
	require.NoError(t, err)
	b, err := f.CreateIntent(ctx, entities.CreateIntentParams{Amount: 100, Currency: "gbp", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "GBP", a.Currency)

	t1, err := f.CreateTransfer(ctx, entities.CreateTransferParams{Amount: 50, Destination: "acct_1", IdempotencyKey: "t1"})
	require.NoError(t, err)
	t2, err := f.CreateTransfer(ctx, entities.CreateTransferParams{Amount: 50, Destination: "acct_1", IdempotencyKey: "t1"})
	require.NoError(t, err)
	assert.Equal(t, t1.ID, t2.ID)
	assert.Len(t, f.Transfers(), 1)

	require.NoError(t, f.CancelIntent(ctx, a.ID))
	got, err := f.RetrieveIntent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.IntentCanceled, got.Status)
}
