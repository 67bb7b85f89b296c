package repositories

import (
	"context"

	"link2ur.backend/internal/domain/entities"
)

// UserRepository defines user data operations
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*entities.User, error)
	GetByStripeAccountID(ctx context.Context, accountID string) (*entities.User, error)
	SetStripeAccount(ctx context.Context, userID string, accountID *string, enabled bool) error
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	UpdateLevel(ctx context.Context, userID string, tier entities.UserTier) error
	// RecomputeStats refreshes task_count, completed_task_count and avg_rating.
	RecomputeStats(ctx context.Context, userID string) error
}

// StaffRepository reads admin and customer-service accounts.
type StaffRepository interface {
	Create(ctx context.Context, staff *entities.Staff) error
	GetByID(ctx context.Context, id string) (*entities.Staff, error)
	ListActiveAdmins(ctx context.Context) ([]*entities.Staff, error)
}
