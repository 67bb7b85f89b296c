package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/interfaces/http/response"
)

// maxWebhookBody matches the provider's documented event size ceiling.
const maxWebhookBody = 64 << 10

type PaymentService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error)
	RequestRefund(ctx context.Context, posterID string, taskID int64, reason string, amount *decimal.Decimal) (*entities.RefundRequest, error)
	ConnectAccount(ctx context.Context, userID string) (*entities.ConnectAccount, error)
	AccountSession(ctx context.Context, userID string) (string, error)
	EphemeralKey(ctx context.Context, userID string) (string, string, error)
	ListTransfers(ctx context.Context, userID string, taskID int64) ([]*entities.PaymentTransfer, error)
}

// PaymentHandler handles the provider webhook, refunds and payout onboarding
type PaymentHandler struct {
	payments PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Webhook verifies and reconciles a provider event
// POST /api/stripe/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Failed to read request body"))
		return
	}
	if len(payload) > maxWebhookBody {
		response.Error(c, domainerrors.BadRequest("Payload too large"))
		return
	}

	outcome, err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"received": true, "outcome": outcome})
}

type refundRequest struct {
	Reason string           `json:"reason" binding:"required"`
	Amount *decimal.Decimal `json:"amount"`
}

// RequestRefund asks staff to refund part or all of the escrow
// POST /api/tasks/:id/refund-request
func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	refund, err := h.payments.RequestRefund(c.Request.Context(), userID, taskID, req.Reason, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, refund)
}

// ListTransfers lists a task's payouts for its participants
// GET /api/tasks/:id/transfers
func (h *PaymentHandler) ListTransfers(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}
	transfers, err := h.payments.ListTransfers(c.Request.Context(), userID, taskID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"transfers": transfers})
}

// ConnectAccount returns the caller's payout account, creating it if needed
// POST /api/stripe/connect/account
func (h *PaymentHandler) ConnectAccount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	acct, err := h.payments.ConnectAccount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, acct)
}

// AccountSession issues a client secret for embedded onboarding
// POST /api/stripe/connect/account-session
func (h *PaymentHandler) AccountSession(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	secret, err := h.payments.AccountSession(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"client_secret": secret})
}

// EphemeralKey issues a customer key for mobile payment sheets
// POST /api/stripe/ephemeral-key
func (h *PaymentHandler) EphemeralKey(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	customerID, secret, err := h.payments.EphemeralKey(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"customer_id": customerID, "ephemeral_key": secret})
}
