package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/payment"
)

type paymentServiceStub struct {
	webhookFn func(ctx context.Context, payload []byte, signature string) (string, error)
	refundFn  func(ctx context.Context, posterID string, taskID int64, reason string, amount *decimal.Decimal) (*entities.RefundRequest, error)
}

func (s paymentServiceStub) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	return s.webhookFn(ctx, payload, signature)
}
func (s paymentServiceStub) RequestRefund(ctx context.Context, posterID string, taskID int64, reason string, amount *decimal.Decimal) (*entities.RefundRequest, error) {
	return s.refundFn(ctx, posterID, taskID, reason, amount)
}
func (s paymentServiceStub) ConnectAccount(context.Context, string) (*entities.ConnectAccount, error) {
	return &entities.ConnectAccount{ID: "acct_1"}, nil
}
func (s paymentServiceStub) AccountSession(context.Context, string) (string, error) {
	return "", domainerrors.Upstream("Payment provider unavailable", assert.AnError)
}
func (s paymentServiceStub) EphemeralKey(context.Context, string) (string, string, error) {
	return "cus_1", "ek_1", nil
}
func (s paymentServiceStub) ListTransfers(context.Context, string, int64) ([]*entities.PaymentTransfer, error) {
	return nil, domainerrors.Forbidden("Not a participant of this task")
}

func TestPaymentHandler_Webhook(t *testing.T) {
	fake := payment.NewFake("whsec_test")
	h := NewPaymentHandler(paymentServiceStub{
		webhookFn: func(_ context.Context, payload []byte, signature string) (string, error) {
			if _, err := fake.ConstructEvent(payload, signature); err != nil {
				return "rejected", domainerrors.SignatureInvalid()
			}
			return "processed", nil
		},
	})
	r := newTestRouter()
	r.POST("/api/stripe/webhook", h.Webhook)

	payload, sig := fake.SignEvent("evt_1", "payment_intent.succeeded", "", map[string]any{"id": "pi_1", "object": "payment_intent"})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domainerrors.CodeSignatureFailed)

	req = httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"outcome":"processed"`)

	req = httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", strings.NewReader(strings.Repeat("x", maxWebhookBody+1)))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandler_RequestRefund(t *testing.T) {
	h := NewPaymentHandler(paymentServiceStub{
		refundFn: func(_ context.Context, posterID string, taskID int64, reason string, amount *decimal.Decimal) (*entities.RefundRequest, error) {
			assert.Equal(t, testPoster, posterID)
			require.NotNil(t, amount)
			assert.True(t, amount.Equal(decimal.NewFromInt(10)))
			return &entities.RefundRequest{ID: 1, TaskID: taskID, Reason: reason}, nil
		},
	})
	r := newTestRouter()
	r.POST("/api/tasks/:id/refund-request", asUser(testPoster), h.RequestRefund)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/3/refund-request", `{"amount":"10"}`).Code)
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/api/tasks/3/refund-request", `{"reason":"No show","amount":"10"}`).Code)
}

func TestPaymentHandler_ConnectEndpoints(t *testing.T) {
	h := NewPaymentHandler(paymentServiceStub{})
	r := newTestRouter()
	g := r.Group("/api", asUser(testTaker))
	g.POST("/stripe/connect/account", h.ConnectAccount)
	g.POST("/stripe/connect/account-session", h.AccountSession)
	g.POST("/stripe/ephemeral-key", h.EphemeralKey)
	g.GET("/tasks/:id/transfers", h.ListTransfers)

	assert.Contains(t, perform(r, http.MethodPost, "/api/stripe/connect/account", "").Body.String(), `"account_id":"acct_1"`)
	w := perform(r, http.MethodPost, "/api/stripe/connect/account-session", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), domainerrors.CodeUpstream)
	assert.Contains(t, perform(r, http.MethodPost, "/api/stripe/ephemeral-key", "").Body.String(), `"ephemeral_key":"ek_1"`)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/api/tasks/3/transfers", "").Code)
}
