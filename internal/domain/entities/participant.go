package entities

import "time"

type ParticipantStatus string

const (
	ParticipantStatusPending    ParticipantStatus = "pending"
	ParticipantStatusAccepted   ParticipantStatus = "accepted"
	ParticipantStatusInProgress ParticipantStatus = "in_progress"
	ParticipantStatusCompleted  ParticipantStatus = "completed"
	ParticipantStatusCancelled  ParticipantStatus = "cancelled"
	ParticipantStatusExited     ParticipantStatus = "exited"
)

// IsActive reports whether the participant may post in the task chat.
func (s ParticipantStatus) IsActive() bool {
	return s == ParticipantStatusAccepted || s == ParticipantStatusInProgress
}

// TaskParticipant joins multi-participant tasks to users.
type TaskParticipant struct {
	ID          int64             `json:"id"`
	TaskID      int64             `json:"task_id"`
	UserID      string            `json:"user_id"`
	Status      ParticipantStatus `json:"status"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ParticipantReward is a per-participant payout line on multi-participant tasks.
type ParticipantReward struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    string    `json:"user_id"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}
