package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/usecases"
)

type applicationServiceStub struct {
	applyFn   func(ctx context.Context, userID string, taskID int64, in usecases.ApplyInput) (*entities.TaskApplication, error)
	approveFn func(ctx context.Context, posterID string, taskID, appID int64) (*usecases.ApproveResult, error)
	counterFn func(ctx context.Context, posterID string, taskID, appID int64, price decimal.Decimal) (*entities.NegotiationTokenPair, error)
	tokensFn  func(ctx context.Context, userID string, notificationID int64) (*entities.NegotiationTokenPair, error)
	respondFn func(ctx context.Context, userID string, in usecases.RespondInput) (*usecases.RespondResult, error)
	messageFn func(ctx context.Context, userID string, taskID, appID int64, message string) error
}

func (s applicationServiceStub) Apply(ctx context.Context, userID string, taskID int64, in usecases.ApplyInput) (*entities.TaskApplication, error) {
	return s.applyFn(ctx, userID, taskID, in)
}
func (s applicationServiceStub) ListApplications(context.Context, string, int64) ([]*entities.TaskApplication, error) {
	return []*entities.TaskApplication{{ID: 1}}, nil
}
func (s applicationServiceStub) Approve(ctx context.Context, posterID string, taskID, appID int64) (*usecases.ApproveResult, error) {
	return s.approveFn(ctx, posterID, taskID, appID)
}
func (s applicationServiceStub) Reject(_ context.Context, _ string, _, appID int64) (*entities.TaskApplication, error) {
	return &entities.TaskApplication{ID: appID, Status: entities.ApplicationStatusRejected}, nil
}
func (s applicationServiceStub) Withdraw(_ context.Context, _ string, _, _ int64) (*entities.TaskApplication, error) {
	return nil, domainerrors.Forbidden("Only the applicant can withdraw")
}
func (s applicationServiceStub) CounterOffer(ctx context.Context, posterID string, taskID, appID int64, price decimal.Decimal) (*entities.NegotiationTokenPair, error) {
	return s.counterFn(ctx, posterID, taskID, appID, price)
}
func (s applicationServiceStub) GetNegotiationTokens(ctx context.Context, userID string, notificationID int64) (*entities.NegotiationTokenPair, error) {
	return s.tokensFn(ctx, userID, notificationID)
}
func (s applicationServiceStub) RespondNegotiation(ctx context.Context, userID string, in usecases.RespondInput) (*usecases.RespondResult, error) {
	return s.respondFn(ctx, userID, in)
}
func (s applicationServiceStub) SendMessage(ctx context.Context, userID string, taskID, appID int64, message string) error {
	return s.messageFn(ctx, userID, taskID, appID, message)
}

func applicationRouter(h *ApplicationHandler, userID string) http.Handler {
	r := newTestRouter()
	g := r.Group("/api", asUser(userID))
	g.POST("/tasks/:id/apply", h.Apply)
	g.GET("/tasks/:id/applications", h.ListApplications)
	a := g.Group("/tasks/:id/applications/:aid")
	a.POST("/accept", h.AcceptApplication)
	a.POST("/reject", h.RejectApplication)
	a.POST("/withdraw", h.WithdrawApplication)
	a.POST("/negotiate", h.Negotiate)
	a.POST("/respond-negotiation", h.RespondNegotiation)
	a.POST("/send-message", h.SendMessage)
	a.POST("/reply-message", h.SendMessage)
	g.GET("/notifications/:id/negotiation-tokens", h.NegotiationTokens)
	return r
}

func TestApplicationHandler_Apply(t *testing.T) {
	h := NewApplicationHandler(applicationServiceStub{
		applyFn: func(_ context.Context, userID string, taskID int64, in usecases.ApplyInput) (*entities.TaskApplication, error) {
			assert.Equal(t, testTaker, userID)
			if in.NegotiatedPrice != nil {
				assert.True(t, in.NegotiatedPrice.Equal(decimal.NewFromInt(25)))
				return nil, domainerrors.Conflict("You have already applied to this task")
			}
			return &entities.TaskApplication{ID: 11, TaskID: taskID, ApplicantID: userID}, nil
		},
	})
	r := applicationRouter(h, testTaker)

	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/api/tasks/3/apply", "").Code)
	w := perform(r, http.MethodPost, "/api/tasks/3/apply", `{"message":"pick me","negotiated_price":25}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already applied")
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/tasks/3/applications", "").Code)
}

func TestApplicationHandler_AcceptReturnsPayment(t *testing.T) {
	h := NewApplicationHandler(applicationServiceStub{
		approveFn: func(_ context.Context, posterID string, taskID, appID int64) (*usecases.ApproveResult, error) {
			assert.Equal(t, testPoster, posterID)
			assert.EqualValues(t, 3, taskID)
			assert.EqualValues(t, 11, appID)
			return &usecases.ApproveResult{
				Kind:        usecases.ApproveCreated,
				Intent:      &entities.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 3000, Currency: "GBP"},
				Application: &entities.TaskApplication{ID: appID},
			}, nil
		},
	})
	r := applicationRouter(h, testPoster)

	w := perform(r, http.MethodPost, "/api/tasks/3/applications/11/accept", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"created"`)
	assert.Contains(t, w.Body.String(), `"client_secret":"pi_1_secret"`)
	assert.Contains(t, w.Body.String(), `"payment_intent_id":"pi_1"`)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/3/applications/x/accept", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/api/tasks/3/applications/11/reject", "").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodPost, "/api/tasks/3/applications/11/withdraw", "").Code)
}

func TestApplicationHandler_NegotiateHidesTokens(t *testing.T) {
	h := NewApplicationHandler(applicationServiceStub{
		counterFn: func(_ context.Context, _ string, taskID, appID int64, price decimal.Decimal) (*entities.NegotiationTokenPair, error) {
			assert.True(t, price.Equal(decimal.RequireFromString("42.5")))
			return &entities.NegotiationTokenPair{AcceptToken: "acc", RejectToken: "rej", TaskID: taskID, ApplicationID: appID}, nil
		},
	})
	r := applicationRouter(h, testPoster)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/3/applications/11/negotiate", `{}`).Code)
	w := perform(r, http.MethodPost, "/api/tasks/3/applications/11/negotiate", `{"negotiated_price":"42.5"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "acc")
	assert.NotContains(t, w.Body.String(), "rej")
}

func TestApplicationHandler_RespondNegotiation(t *testing.T) {
	used := map[string]bool{}
	h := NewApplicationHandler(applicationServiceStub{
		respondFn: func(_ context.Context, userID string, in usecases.RespondInput) (*usecases.RespondResult, error) {
			assert.Equal(t, testTaker, userID)
			assert.EqualValues(t, 3, in.TaskID)
			assert.EqualValues(t, 11, in.ApplicationID)
			assert.NotEmpty(t, in.IPAddress)
			if used[in.Token] {
				return nil, domainerrors.TokenInvalid()
			}
			used[in.Token] = true
			return &usecases.RespondResult{Action: in.Action, Application: &entities.TaskApplication{ID: 11}}, nil
		},
		tokensFn: func(_ context.Context, userID string, id int64) (*entities.NegotiationTokenPair, error) {
			if userID != testTaker {
				return nil, domainerrors.Forbidden("Not your notification")
			}
			return &entities.NegotiationTokenPair{AcceptToken: "acc", RejectToken: "rej", TaskID: 3, ApplicationID: 11}, nil
		},
	})
	r := applicationRouter(h, testTaker)

	w := perform(r, http.MethodGet, "/api/notifications/5/negotiation-tokens", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accept_token":"acc"`)

	path := "/api/tasks/3/applications/11/respond-negotiation"
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, path, `{"action":"maybe","token":"acc"}`).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, path, `{"action":"accept","token":"acc"}`).Code)
	w = perform(r, http.MethodPost, path, `{"action":"accept","token":"acc"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, "a token is good for one response")
	assert.Contains(t, w.Body.String(), domainerrors.CodeTokenInvalid)
}

func TestApplicationHandler_Messages(t *testing.T) {
	var sent []string
	h := NewApplicationHandler(applicationServiceStub{
		messageFn: func(_ context.Context, _ string, _, _ int64, message string) error {
			sent = append(sent, message)
			return nil
		},
	})
	r := applicationRouter(h, testPoster)

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/tasks/3/applications/11/send-message", `{}`).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/api/tasks/3/applications/11/send-message", `{"message":"when?"}`).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/api/tasks/3/applications/11/reply-message", `{"message":"tomorrow"}`).Code)
	assert.Equal(t, []string{"when?", "tomorrow"}, sent)
}
