package entities

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusRetrying  TransferStatus = "retrying"
	TransferStatusSucceeded TransferStatus = "succeeded"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusReversed  TransferStatus = "reversed"
)

// Transfer sources
const (
	TransferSourceAutoConfirm   = "auto_confirm_3days"
	TransferSourceManualConfirm = "manual_confirm"
)

// TransferMetadata is stored as JSON on the transfer row.
type TransferMetadata struct {
	TransferSource      string `json:"transfer_source"`
	TaskID              int64  `json:"task_id"`
	ApplicationFee      string `json:"application_fee"`
	ApplicationFeePence int64  `json:"application_fee_pence"`
	DestinationAccount  string `json:"destination_account,omitempty"`
	Retryable           bool   `json:"retryable"`
	LastError           string `json:"last_error,omitempty"`
}

// PaymentTransfer moves escrow from the platform to the taker.
type PaymentTransfer struct {
	ID                 int64            `json:"id"`
	TaskID             int64            `json:"task_id"`
	TakerID            string           `json:"taker_id"`
	PosterID           string           `json:"poster_id"`
	Amount             decimal.Decimal  `json:"amount"`
	Currency           string           `json:"currency"`
	Status             TransferStatus   `json:"status"`
	ProviderTransferID null.String      `json:"provider_transfer_id"`
	Metadata           TransferMetadata `json:"metadata"`
	Attempts           int              `json:"attempts"`
	NextRetryAt        *time.Time       `json:"next_retry_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ApplicationFee is max(£1, 10% of amount), rounded to pence.
func ApplicationFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(decimal.New(1, -1)).Round(2)
	floor := decimal.NewFromInt(1)
	if fee.LessThan(floor) {
		return floor
	}
	return fee
}

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusApproved   RefundStatus = "approved"
	RefundStatusRejected   RefundStatus = "rejected"
)

// IsActive reports whether the refund blocks automated settlement.
func (s RefundStatus) IsActive() bool {
	return s == RefundStatusPending || s == RefundStatusProcessing
}

type RefundRequest struct {
	ID               int64           `json:"id"`
	TaskID           int64           `json:"task_id"`
	PosterID         string          `json:"poster_id"`
	Reason           string          `json:"reason"`
	Amount           decimal.Decimal `json:"amount"`
	Status           RefundStatus    `json:"status"`
	ReviewerID       *string         `json:"reviewer_id,omitempty"`
	ReviewerComment  string          `json:"reviewer_comment,omitempty"`
	ProviderRefundID null.String     `json:"provider_refund_id"`
	CreatedAt        time.Time       `json:"created_at"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
}

type DisputeStatus string

const (
	DisputeStatusPending  DisputeStatus = "pending"
	DisputeStatusResolved DisputeStatus = "resolved"
)

type TaskDispute struct {
	ID         int64         `json:"id"`
	TaskID     int64         `json:"task_id"`
	PosterID   string        `json:"poster_id"`
	Reason     string        `json:"reason"`
	Status     DisputeStatus `json:"status"`
	ResolvedBy *string       `json:"resolved_by,omitempty"`
	Resolution string        `json:"resolution,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

type CancelRequestStatus string

const (
	CancelRequestPending  CancelRequestStatus = "pending"
	CancelRequestApproved CancelRequestStatus = "approved"
	CancelRequestRejected CancelRequestStatus = "rejected"
)

// ReviewerType records whether an admin or a customer-service agent reviewed.
type ReviewerType string

const (
	ReviewerAdmin   ReviewerType = "admin"
	ReviewerService ReviewerType = "service"
)

type TaskCancelRequest struct {
	ID              int64               `json:"id"`
	TaskID          int64               `json:"task_id"`
	RequesterID     string              `json:"requester_id"`
	Reason          string              `json:"reason"`
	Status          CancelRequestStatus `json:"status"`
	AdminID         *string             `json:"admin_id,omitempty"`
	ServiceID       *string             `json:"service_id,omitempty"`
	ReviewerType    *ReviewerType       `json:"reviewer_type,omitempty"`
	ReviewerComment string              `json:"reviewer_comment,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
}
