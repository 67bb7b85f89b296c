package repositories

import (
	"context"
	"time"

	"link2ur.backend/internal/domain/entities"
)

// Task list sort keys
const (
	SortLatest       = "latest"
	SortRewardAsc    = "reward_asc"
	SortRewardDesc   = "reward_desc"
	SortDeadlineAsc  = "deadline_asc"
	SortDeadlineDesc = "deadline_desc"
)

// TaskListFilter narrows the public task feed. Only open, unexpired tasks
// are returned.
type TaskListFilter struct {
	Page     int
	PageSize int
	TaskType string
	Location string
	Cities   []string
	Keyword  string
	SortBy   string
	Now      time.Time
}

// CascadeResult lists stored files orphaned by a cascade delete.
type CascadeResult struct {
	Images          []string
	AttachmentBlobs []string
}

// TaskRepository defines task data operations. Reads honour the lock mode
// carried by ctx (see UnitOfWork.WithLock and WithSkipLocked).
type TaskRepository interface {
	Create(ctx context.Context, task *entities.Task) error
	GetByID(ctx context.Context, id int64) (*entities.Task, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*entities.Task, error)
	Update(ctx context.Context, task *entities.Task) error
	// AssignTakerIfOpen sets taker_id and status=taken only while the task
	// is open with no taker. It reports whether the row was claimed.
	AssignTakerIfOpen(ctx context.Context, taskID int64, takerID string, now time.Time) (bool, error)
	List(ctx context.Context, filter TaskListFilter) ([]*entities.Task, int64, error)

	ListOpenPastDeadline(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error)
	ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error)
	ListPaymentExpiringBetween(ctx context.Context, from, to time.Time) ([]*entities.Task, error)
	ListInProgressDeadlineBetween(ctx context.Context, from, to time.Time) ([]*entities.Task, error)
	// ListAwaitingConfirmation lists unconfirmed tasks whose confirmation
	// deadline falls in (from, to]; expert selects auto-transfer tasks.
	ListAwaitingConfirmation(ctx context.Context, expert bool, from, to time.Time) ([]*entities.Task, error)
	ListAutoConfirmCandidates(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error)
	ListAutoTransferCandidates(ctx context.Context, now time.Time, limit int) ([]*entities.Task, error)
	ListCompletedWithFiles(ctx context.Context, completedBefore time.Time, limit int) ([]*entities.Task, error)
	ListExpiredWithFiles(ctx context.Context, before time.Time, limit int) ([]*entities.Task, error)
	ClearImages(ctx context.Context, taskID int64) error

	// ListActiveForUser pages the tasks a user actively participates in:
	// poster, taker, expert creator or accepted participant.
	ListActiveForUser(ctx context.Context, userID string, limit, offset int) ([]*entities.Task, error)

	AddHistory(ctx context.Context, h *entities.TaskHistory) error
	ListHistory(ctx context.Context, taskID int64) ([]*entities.TaskHistory, error)

	// DeleteCascade removes the task and everything it owns in dependency order.
	DeleteCascade(ctx context.Context, taskID int64) (*CascadeResult, error)
}

// ApplicationRepository defines task application data operations
type ApplicationRepository interface {
	Create(ctx context.Context, app *entities.TaskApplication) error
	GetByID(ctx context.Context, id int64) (*entities.TaskApplication, error)
	GetByTaskAndApplicant(ctx context.Context, taskID int64, applicantID string) (*entities.TaskApplication, error)
	ListByTask(ctx context.Context, taskID int64) ([]*entities.TaskApplication, error)
	Update(ctx context.Context, app *entities.TaskApplication) error
	// RejectPending rejects every pending application on the task except
	// exceptID (0 for none) and returns the rows it rejected.
	RejectPending(ctx context.Context, taskID, exceptID int64) ([]*entities.TaskApplication, error)
	CreateNegotiationLog(ctx context.Context, log *entities.NegotiationResponseLog) error
}

// ParticipantRepository defines multi-participant membership operations
type ParticipantRepository interface {
	Create(ctx context.Context, p *entities.TaskParticipant) error
	GetByTaskAndUser(ctx context.Context, taskID int64, userID string) (*entities.TaskParticipant, error)
	ListByTask(ctx context.Context, taskID int64) ([]*entities.TaskParticipant, error)
	CancelAll(ctx context.Context, taskID int64, now time.Time) ([]*entities.TaskParticipant, error)
}

// ReviewRepository defines review data operations
type ReviewRepository interface {
	Create(ctx context.Context, review *entities.Review) error
	ListByTask(ctx context.Context, taskID int64) ([]*entities.Review, error)
}
