package entities

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusOpen                TaskStatus = "open"
	TaskStatusTaken               TaskStatus = "taken"
	TaskStatusPendingPayment      TaskStatus = "pending_payment"
	TaskStatusInProgress          TaskStatus = "in_progress"
	TaskStatusPendingConfirmation TaskStatus = "pending_confirmation"
	TaskStatusCompleted           TaskStatus = "completed"
	TaskStatusCancelled           TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TaskLevel is derived at creation from the poster tier and reward.
type TaskLevel = UserTier

const (
	TaskTypeSecondHand = "Second-hand & Rental"
	DefaultCurrency    = "GBP"
)

// Confirmation reminder bits in Task.ConfirmationReminderSent. Expert tasks
// reuse bits 0 and 1 for the 2-day and 1-day auto-transfer reminders.
const (
	ReminderBit72h = 1 << 0
	ReminderBit24h = 1 << 1
	ReminderBit6h  = 1 << 2
	ReminderBit1h  = 1 << 3

	ReminderBitTransfer2d = 1 << 0
	ReminderBitTransfer1d = 1 << 1
)

// Task is the central aggregate of the marketplace.
type Task struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TaskType    string   `json:"task_type"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`

	BaseReward   decimal.Decimal     `json:"base_reward"`
	AgreedReward decimal.NullDecimal `json:"agreed_reward"`
	Currency     string              `json:"currency"`
	IsFlexible   bool                `json:"is_flexible"`
	Deadline     *time.Time          `json:"deadline"`
	Status       TaskStatus          `json:"status"`
	TaskLevel    TaskLevel           `json:"task_level"`
	PosterID     string              `json:"poster_id"`
	TakerID      *string             `json:"taker_id"`
	IsPublic     bool                `json:"is_public"`

	IsMultiParticipant bool    `json:"is_multi_participant"`
	ExpertCreatorID    *string `json:"expert_creator_id,omitempty"`
	CreatedByExpert    bool    `json:"created_by_expert"`
	OriginatingUserID  *string `json:"originating_user_id,omitempty"`
	ParentActivityID   *int64  `json:"parent_activity_id,omitempty"`
	ExpertServiceID    *int64  `json:"expert_service_id,omitempty"`

	IsPaid              bool            `json:"is_paid"`
	EscrowAmount        decimal.Decimal `json:"escrow_amount"`
	PaymentIntentID     null.String     `json:"payment_intent_id"`
	PaymentExpiresAt    *time.Time      `json:"payment_expires_at"`
	StripeDisputeFrozen bool            `json:"stripe_dispute_frozen"`

	ConfirmedAt              *time.Time `json:"confirmed_at"`
	IsConfirmed              bool       `json:"is_confirmed"`
	AutoConfirmed            bool       `json:"auto_confirmed"`
	ConfirmationDeadline     *time.Time `json:"confirmation_deadline"`
	ConfirmationReminderSent int        `json:"-"`
	PaidToUserID             *string    `json:"paid_to_user_id"`
	CompletedAt              *time.Time `json:"completed_at"`

	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpertService reports whether the task is settled by auto-transfer.
func (t *Task) IsExpertService() bool {
	return t.ExpertServiceID != nil
}

// HasTaker reports whether a taker is assigned.
func (t *Task) HasTaker() bool {
	return t.TakerID != nil && *t.TakerID != ""
}

// IsTaker reports whether userID is the current taker.
func (t *Task) IsTaker(userID string) bool {
	return t.HasTaker() && *t.TakerID == userID
}

// IsExpertCreator reports whether userID created this task as an expert.
func (t *Task) IsExpertCreator(userID string) bool {
	return t.ExpertCreatorID != nil && *t.ExpertCreatorID == userID
}

// Reward returns the agreed reward when negotiated, else the base reward.
func (t *Task) Reward() decimal.Decimal {
	if t.AgreedReward.Valid {
		return t.AgreedReward.Decimal
	}
	return t.BaseReward
}

// DeadlinePassed reports whether a fixed deadline is at or before now.
func (t *Task) DeadlinePassed(now time.Time) bool {
	return !t.IsFlexible && t.Deadline != nil && !t.Deadline.After(now)
}

// TaskHistory is an append-only audit row per state transition.
type TaskHistory struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    *string   `json:"user_id"`
	Action    string    `json:"action"`
	Remark    string    `json:"remark,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// History actions
const (
	ActionCreated            = "created"
	ActionAccepted           = "accepted"
	ActionApplied            = "applied"
	ActionApproveApplication = "approve_application"
	ActionRejectApplication  = "reject_application"
	ActionWithdraw           = "withdraw"
	ActionCounterOffer       = "counter_offer"
	ActionNegotiationAccept  = "negotiation_accepted"
	ActionNegotiationReject  = "negotiation_rejected"
	ActionTakerApproved      = "taker_approved"
	ActionTakerRejected      = "taker_rejected"
	ActionPaymentSucceeded   = "payment_succeeded"
	ActionPaymentFailed      = "payment_failed"
	ActionPaymentExpired     = "payment_expired"
	ActionCompleted          = "completed"
	ActionConfirmed          = "confirmed"
	ActionAutoConfirmed      = "auto_confirmed"
	ActionAutoTransferred    = "auto_transferred"
	ActionDisputeRaised      = "dispute_raised"
	ActionDisputeResolved    = "dispute_resolved"
	ActionProviderDispute    = "provider_dispute_frozen"
	ActionRefundRequested    = "refund_requested"
	ActionRefundReviewed     = "refund_reviewed"
	ActionCancelled          = "cancelled"
	ActionDeadlineExpired    = "deadline_expired"
	ActionCancelRequested    = "cancel_requested"
	ActionCancelReviewed     = "cancel_reviewed"
	ActionReviewed           = "reviewed"
	ActionTransferRetried    = "transfer_retried"
)
