package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/interfaces/http/response"
	"link2ur.backend/internal/usecases"
)

type ApplicationService interface {
	Apply(ctx context.Context, userID string, taskID int64, in usecases.ApplyInput) (*entities.TaskApplication, error)
	ListApplications(ctx context.Context, userID string, taskID int64) ([]*entities.TaskApplication, error)
	Approve(ctx context.Context, posterID string, taskID, appID int64) (*usecases.ApproveResult, error)
	Reject(ctx context.Context, posterID string, taskID, appID int64) (*entities.TaskApplication, error)
	Withdraw(ctx context.Context, userID string, taskID, appID int64) (*entities.TaskApplication, error)
	CounterOffer(ctx context.Context, posterID string, taskID, appID int64, price decimal.Decimal) (*entities.NegotiationTokenPair, error)
	GetNegotiationTokens(ctx context.Context, userID string, notificationID int64) (*entities.NegotiationTokenPair, error)
	RespondNegotiation(ctx context.Context, userID string, in usecases.RespondInput) (*usecases.RespondResult, error)
	SendMessage(ctx context.Context, userID string, taskID, appID int64, message string) error
}

// ApplicationHandler handles task applications and counter-offers
type ApplicationHandler struct {
	applications ApplicationService
}

func NewApplicationHandler(applications ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

type applyRequest struct {
	Message         string           `json:"message"`
	NegotiatedPrice *decimal.Decimal `json:"negotiated_price"`
	Currency        string           `json:"currency"`
}

// Apply files an application to an open task
// POST /api/tasks/:id/apply
func (h *ApplicationHandler) Apply(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req applyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	app, err := h.applications.Apply(c.Request.Context(), userID, taskID, usecases.ApplyInput{
		Message:         req.Message,
		NegotiatedPrice: req.NegotiatedPrice,
		Currency:        req.Currency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, app)
}

// ListApplications lists a task's applications (poster) or the caller's own
// GET /api/tasks/:id/applications
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	apps, err := h.applications.ListApplications(c.Request.Context(), userID, taskID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"applications": apps})
}

// applicationTarget reads the caller and the task/application path ids.
func applicationTarget(c *gin.Context) (userID string, taskID, appID int64, ok bool) {
	if userID, ok = currentUser(c); !ok {
		return
	}
	if taskID, ok = pathID(c, "id"); !ok {
		return
	}
	appID, ok = pathID(c, "aid")
	return
}

// AcceptApplication approves an applicant and returns the payment to take
// POST /api/tasks/:id/applications/:aid/accept
func (h *ApplicationHandler) AcceptApplication(c *gin.Context) {
	userID, taskID, appID, ok := applicationTarget(c)
	if !ok {
		return
	}
	res, err := h.applications.Approve(c.Request.Context(), userID, taskID, appID)
	if err != nil {
		response.Error(c, err)
		return
	}
	body := gin.H{
		"status":      res.Kind,
		"application": res.Application,
	}
	if res.Intent != nil {
		body["payment"] = res.Intent
	}
	response.Success(c, http.StatusOK, body)
}

// RejectApplication declines a pending application
// POST /api/tasks/:id/applications/:aid/reject
func (h *ApplicationHandler) RejectApplication(c *gin.Context) {
	userID, taskID, appID, ok := applicationTarget(c)
	if !ok {
		return
	}
	app, err := h.applications.Reject(c.Request.Context(), userID, taskID, appID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, app)
}

// WithdrawApplication lets the applicant pull a pending application
// POST /api/tasks/:id/applications/:aid/withdraw
func (h *ApplicationHandler) WithdrawApplication(c *gin.Context) {
	userID, taskID, appID, ok := applicationTarget(c)
	if !ok {
		return
	}
	app, err := h.applications.Withdraw(c.Request.Context(), userID, taskID, appID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, app)
}

type negotiateRequest struct {
	NegotiatedPrice decimal.Decimal `json:"negotiated_price" binding:"required"`
}

// Negotiate sends a counter-offer to the applicant. The one-shot tokens go
// to the applicant through the notification, never back to the poster.
// POST /api/tasks/:id/applications/:aid/negotiate
func (h *ApplicationHandler) Negotiate(c *gin.Context) {
	userID, taskID, appID, ok := applicationTarget(c)
	if !ok {
		return
	}
	var req negotiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	pair, err := h.applications.CounterOffer(c.Request.Context(), userID, taskID, appID, req.NegotiatedPrice)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"message":        "Counter offer sent",
		"task_id":        pair.TaskID,
		"application_id": pair.ApplicationID,
	})
}

type respondNegotiationRequest struct {
	Action string `json:"action" binding:"required"`
	Token  string `json:"token" binding:"required"`
}

// RespondNegotiation accepts or rejects a counter-offer with its token
// POST /api/tasks/:id/applications/:aid/respond-negotiation
func (h *ApplicationHandler) RespondNegotiation(c *gin.Context) {
	userID, taskID, appID, ok := applicationTarget(c)
	if !ok {
		return
	}
	var req respondNegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	action := entities.NegotiationAction(req.Action)
	if !action.Valid() {
		response.Error(c, domainerrors.BadRequest("action must be accept or reject"))
		return
	}

	res, err := h.applications.RespondNegotiation(c.Request.Context(), userID, usecases.RespondInput{
		Action:        action,
		Token:         req.Token,
		TaskID:        taskID,
		ApplicationID: appID,
		IPAddress:     c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	body := gin.H{
		"action":      res.Action,
		"application": res.Application,
	}
	if res.Intent != nil {
		body["payment"] = res.Intent
	}
	response.Success(c, http.StatusOK, body)
}

// NegotiationTokens returns the applicant's token pair for a counter-offer
// notification
// GET /api/notifications/:id/negotiation-tokens
func (h *ApplicationHandler) NegotiationTokens(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	notificationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	pair, err := h.applications.GetNegotiationTokens(c.Request.Context(), userID, notificationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pair)
}

type applicationMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// SendMessage carries a note between poster and applicant. reply-message
// routes here too; the direction follows from the caller.
// POST /api/tasks/:id/applications/:aid/send-message
// POST /api/tasks/:id/applications/:aid/reply-message
func (h *ApplicationHandler) SendMessage(c *gin.Context) {
	userID, taskID, appID, ok := applicationTarget(c)
	if !ok {
		return
	}
	var req applicationMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	if err := h.applications.SendMessage(c.Request.Context(), userID, taskID, appID, req.Message); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sent": true})
}
