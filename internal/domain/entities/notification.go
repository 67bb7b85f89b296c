package entities

import (
	"strings"
	"time"
)

type RelatedType string

const (
	RelatedTypeTask        RelatedType = "task_id"
	RelatedTypeApplication RelatedType = "application_id"
	RelatedTypeDispute     RelatedType = "dispute_id"
	RelatedTypeRefund      RelatedType = "refund_id"
	RelatedTypeCancel      RelatedType = "cancel_request_id"
)

// Notification types emitted by the lifecycle engine.
const (
	NotificationTaskApplication      = "task_application"
	NotificationTaskAccepted         = "task_accepted"
	NotificationTaskApproved         = "task_approved"
	NotificationTaskRejected         = "task_rejected"
	NotificationTaskCompleted        = "task_completed"
	NotificationTaskConfirmed        = "task_confirmed"
	NotificationTaskAutoConfirmed    = "task_auto_confirmed"
	NotificationTaskCancelled        = "task_cancelled"
	NotificationTaskDeadlineReminder = "task_deadline_reminder"
	NotificationTaskCancelRequest    = "task_cancel_request"
	NotificationTaskCancelReviewed   = "task_cancel_reviewed"
	NotificationTaskDispute          = "task_dispute"
	NotificationTaskReview           = "task_review"
	NotificationTaskMessage          = "task_message"

	NotificationApplicationAccepted  = "application_accepted"
	NotificationApplicationApproved  = "application_approved"
	NotificationApplicationRejected  = "application_rejected"
	NotificationApplicationWithdrawn = "application_withdrawn"
	NotificationApplicationMessage   = "application_message"

	NotificationNegotiationOffer    = "negotiation_offer"
	NotificationNegotiationRejected = "negotiation_rejected"

	NotificationPaymentSucceeded    = "payment_succeeded"
	NotificationPaymentFailed       = "payment_failed"
	NotificationPaymentReminder     = "payment_reminder"
	NotificationConfirmReminder     = "confirmation_reminder"
	NotificationAutoConfirmTransfer = "auto_confirm_transfer"
	NotificationAutoTransferRemind  = "auto_transfer_reminder"
	NotificationTransferFailed      = "transfer_failed"
	NotificationRefundRequested     = "refund_requested"
	NotificationRefundReviewed      = "refund_reviewed"
	NotificationDisputeStale        = "dispute_stale"
	NotificationProviderDispute     = "payment_dispute"
	NotificationVIPExpired          = "vip_expired"
)

// RelatedTypeFor maps a notification type to what its related_id addresses.
// Types outside the lifecycle engine return nil.
func RelatedTypeFor(notificationType string) *RelatedType {
	var rt RelatedType
	switch {
	case notificationType == NotificationTaskApplication,
		strings.HasPrefix(notificationType, "application_"),
		strings.HasPrefix(notificationType, "negotiation_"):
		rt = RelatedTypeApplication
	case notificationType == NotificationDisputeStale:
		rt = RelatedTypeDispute
	case notificationType == NotificationRefundReviewed:
		rt = RelatedTypeRefund
	case strings.HasPrefix(notificationType, "task_"),
		strings.HasPrefix(notificationType, "auto_"),
		strings.HasPrefix(notificationType, "payment_"),
		strings.HasPrefix(notificationType, "confirmation_"),
		strings.HasPrefix(notificationType, "transfer_"),
		notificationType == NotificationRefundRequested:
		rt = RelatedTypeTask
	default:
		return nil
	}
	return &rt
}

// Notification is unique per (user_id, type, related_id).
type Notification struct {
	ID          int64          `json:"id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	RelatedID   *int64         `json:"related_id"`
	RelatedType *RelatedType   `json:"related_type"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	TitleEn     string         `json:"title_en"`
	ContentEn   string         `json:"content_en"`
	Data        map[string]any `json:"data,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Channel is an external delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Dispatch is a post-commit request to deliver a notification externally.
type Dispatch struct {
	UserID         string            `json:"user_id"`
	Channels       []Channel         `json:"channels"`
	Template       string            `json:"template"`
	TemplateVars   map[string]string `json:"template_vars"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}
