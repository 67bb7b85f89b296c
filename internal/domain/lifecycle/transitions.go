// Package lifecycle holds the authoritative task state machine: which events
// are legal from which states, and where they lead.
package lifecycle

import (
	"fmt"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
)

type Event string

const (
	EventLegacyAccept       Event = "legacy_accept"
	EventApply              Event = "apply"
	EventApproveApplication Event = "approve_application"
	EventRejectApplication  Event = "reject_application"
	EventWithdraw           Event = "withdraw_application"
	EventCounterOffer       Event = "counter_offer"
	EventNegotiationAccept  Event = "negotiation_accept"
	EventNegotiationReject  Event = "negotiation_reject"
	EventApproveTaker       Event = "approve_taker"
	EventRejectTaker        Event = "reject_taker"
	EventPaymentSucceeded   Event = "payment_succeeded"
	EventMarkComplete       Event = "mark_complete"
	EventConfirm            Event = "confirm"
	EventRaiseDispute       Event = "raise_dispute"
	EventAutoConfirm        Event = "auto_confirm"
	EventAutoTransfer       Event = "auto_transfer"
	EventExpireOpen         Event = "expire_open"
	EventPaymentExpired     Event = "payment_expired"
	EventCancelOpen         Event = "cancel_open"
	EventRequestCancel      Event = "request_cancel"
	EventReviewedCancel     Event = "reviewed_cancel"
	EventRequestRefund      Event = "request_refund"
)

type edge struct {
	from entities.TaskStatus
	on   Event
}

var (
	open        = entities.TaskStatusOpen
	taken       = entities.TaskStatusTaken
	pendingPay  = entities.TaskStatusPendingPayment
	inProgress  = entities.TaskStatusInProgress
	pendingConf = entities.TaskStatusPendingConfirmation
	completed   = entities.TaskStatusCompleted
	cancelled   = entities.TaskStatusCancelled
)

var table = map[edge]entities.TaskStatus{
	{open, EventLegacyAccept}:       taken,
	{open, EventApply}:              open,
	{open, EventApproveApplication}: open,
	{open, EventRejectApplication}:  open,
	{open, EventWithdraw}:           open,
	{open, EventCounterOffer}:       open,
	{open, EventNegotiationAccept}:  pendingPay,
	{open, EventNegotiationReject}:  open,

	{taken, EventApproveTaker}: inProgress,
	{taken, EventRejectTaker}:  open,

	{open, EventPaymentSucceeded}:       inProgress,
	{pendingPay, EventPaymentSucceeded}: inProgress,

	{inProgress, EventMarkComplete}: pendingConf,

	{pendingConf, EventConfirm}:       completed,
	{pendingConf, EventRaiseDispute}:  pendingConf,
	{pendingConf, EventRequestRefund}: pendingConf,
	{inProgress, EventRequestRefund}:  inProgress,
	{pendingConf, EventAutoConfirm}:   completed,
	{pendingConf, EventAutoTransfer}:  completed,
	{completed, EventAutoTransfer}:    completed,

	{open, EventExpireOpen}:           cancelled,
	{pendingPay, EventPaymentExpired}: cancelled,

	{open, EventCancelOpen}: cancelled,

	{taken, EventRequestCancel}:       taken,
	{pendingPay, EventRequestCancel}:  pendingPay,
	{inProgress, EventRequestCancel}:  inProgress,
	{pendingConf, EventRequestCancel}: pendingConf,

	{taken, EventReviewedCancel}:       cancelled,
	{pendingPay, EventReviewedCancel}:  cancelled,
	{inProgress, EventReviewedCancel}:  cancelled,
	{pendingConf, EventReviewedCancel}: cancelled,
	{open, EventReviewedCancel}:        cancelled,
}

// Next returns the state reached by applying ev in from, or a conflict error.
func Next(from entities.TaskStatus, ev Event) (entities.TaskStatus, error) {
	to, ok := table[edge{from, ev}]
	if !ok {
		return from, domainerrors.Conflict(fmt.Sprintf("cannot %s a task in status %s", humanize(ev), from))
	}
	return to, nil
}

// Allowed reports whether ev may fire from from.
func Allowed(from entities.TaskStatus, ev Event) bool {
	_, ok := table[edge{from, ev}]
	return ok
}

// Apply moves task to the next state for ev.
func Apply(task *entities.Task, ev Event) error {
	to, err := Next(task.Status, ev)
	if err != nil {
		return err
	}
	task.Status = to
	return nil
}

func humanize(ev Event) string {
	switch ev {
	case EventLegacyAccept:
		return "accept"
	case EventMarkComplete:
		return "complete"
	case EventRequestCancel, EventCancelOpen, EventReviewedCancel:
		return "cancel"
	}
	return string(ev)
}
