package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus is the state of a task application.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusApproved ApplicationStatus = "approved"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// TaskApplication is unique per (task_id, applicant_id).
type TaskApplication struct {
	ID              int64               `json:"id"`
	TaskID          int64               `json:"task_id"`
	ApplicantID     string              `json:"applicant_id"`
	Message         string              `json:"message,omitempty"`
	NegotiatedPrice decimal.NullDecimal `json:"negotiated_price"`
	Currency        string              `json:"currency"`
	Status          ApplicationStatus   `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// NegotiationAction is what the applicant does with a counter-offer.
type NegotiationAction string

const (
	NegotiationAccept NegotiationAction = "accept"
	NegotiationReject NegotiationAction = "reject"
)

func (a NegotiationAction) Valid() bool {
	return a == NegotiationAccept || a == NegotiationReject
}

// NegotiationToken is the payload of a one-shot counter-offer token.
type NegotiationToken struct {
	UserID         string            `json:"user_id"`
	Action         NegotiationAction `json:"action"`
	ApplicationID  int64             `json:"application_id"`
	TaskID         int64             `json:"task_id"`
	Nonce          string            `json:"nonce"`
	Exp            int64             `json:"exp"`
	NotificationID int64             `json:"notification_id"`
}

// NegotiationTokenPair is what the applicant's client retrieves by
// notification id.
type NegotiationTokenPair struct {
	AcceptToken   string `json:"accept_token"`
	RejectToken   string `json:"reject_token"`
	TaskID        int64  `json:"task_id"`
	ApplicationID int64  `json:"application_id"`
}

// NegotiationResponseLog audits every counter-offer response.
type NegotiationResponseLog struct {
	ID              int64               `json:"id"`
	TaskID          int64               `json:"task_id"`
	ApplicationID   int64               `json:"application_id"`
	UserID          string              `json:"user_id"`
	Action          NegotiationAction   `json:"action"`
	NegotiatedPrice decimal.NullDecimal `json:"negotiated_price"`
	IPAddress       string              `json:"ip_address,omitempty"`
	UserAgent       string              `json:"user_agent,omitempty"`
	RespondedAt     time.Time           `json:"responded_at"`
}
