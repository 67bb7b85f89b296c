package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
)

// PaymentTransferRepository defines escrow transfer operations
type PaymentTransferRepository interface {
	// Create inserts a transfer; a second active auto-confirm transfer for
	// the same task yields ErrAlreadyExists.
	Create(ctx context.Context, t *entities.PaymentTransfer) error
	GetByID(ctx context.Context, id int64) (*entities.PaymentTransfer, error)
	Update(ctx context.Context, t *entities.PaymentTransfer) error
	ListByTask(ctx context.Context, taskID int64) ([]*entities.PaymentTransfer, error)
	SumSucceeded(ctx context.Context, taskID int64) (decimal.Decimal, error)
	// ListDue returns retrying rows whose backoff elapsed and pending rows
	// created before stalePending.
	ListDue(ctx context.Context, now, stalePending time.Time, limit int) ([]*entities.PaymentTransfer, error)
}

// RefundRepository defines refund request operations
type RefundRepository interface {
	Create(ctx context.Context, r *entities.RefundRequest) error
	GetByID(ctx context.Context, id int64) (*entities.RefundRequest, error)
	Update(ctx context.Context, r *entities.RefundRequest) error
	HasActive(ctx context.Context, taskID int64) (bool, error)
}

// DisputeRepository defines task dispute operations
type DisputeRepository interface {
	Create(ctx context.Context, d *entities.TaskDispute) error
	GetByID(ctx context.Context, id int64) (*entities.TaskDispute, error)
	Update(ctx context.Context, d *entities.TaskDispute) error
	HasPending(ctx context.Context, taskID int64) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]*entities.TaskDispute, error)
}

// CancelRequestRepository defines cancel review operations
type CancelRequestRepository interface {
	Create(ctx context.Context, r *entities.TaskCancelRequest) error
	GetByID(ctx context.Context, id int64) (*entities.TaskCancelRequest, error)
	Update(ctx context.Context, r *entities.TaskCancelRequest) error
	HasPending(ctx context.Context, taskID int64) (bool, error)
}
