package repositories

import (
	"context"

	"gorm.io/gorm"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/models"
)

// UserRepository implements user data operations
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	m := &models.User{
		ID:                   user.ID,
		Name:                 user.Name,
		Email:                user.Email,
		Phone:                user.Phone,
		PasswordHash:         user.PasswordHash,
		Avatar:               user.Avatar,
		UserLevel:            string(user.UserLevel),
		TaskCount:            user.TaskCount,
		CompletedTaskCount:   user.CompletedTaskCount,
		AvgRating:            user.AvgRating,
		IsSuspended:          user.IsSuspended,
		IsBanned:             user.IsBanned,
		SuspendUntil:         user.SuspendUntil,
		Timezone:             user.Timezone,
		Language:             user.Language,
		StripeAccountID:      user.StripeAccountID,
		StripeAccountEnabled: user.StripeAccountEnabled,
		StripeCustomerID:     user.StripeCustomerID,
		CreatedAt:            user.CreatedAt,
		UpdatedAt:            user.UpdatedAt,
	}
	if m.UserLevel == "" {
		m.UserLevel = string(entities.UserTierNormal)
	}
	if err := insertOnce(ctx, GetDB(ctx, r.db), m); err != nil {
		return err
	}
	user.CreatedAt = m.CreatedAt
	user.UpdatedAt = m.UpdatedAt
	return nil
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	var m models.User
	if err := conn(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toEntity(&m), nil
}

// GetByIDs loads several users at once, keyed by id.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entities.User, error) {
	out := make(map[string]*entities.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var ms []models.User
	if err := conn(ctx, r.db).Where("id IN ?", ids).Find(&ms).Error; err != nil {
		return nil, err
	}
	for i := range ms {
		out[ms[i].ID] = r.toEntity(&ms[i])
	}
	return out, nil
}

// GetByStripeAccountID resolves a connected account back to its owner.
func (r *UserRepository) GetByStripeAccountID(ctx context.Context, accountID string) (*entities.User, error) {
	var m models.User
	if err := conn(ctx, r.db).Where("stripe_account_id = ?", accountID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toEntity(&m), nil
}

// SetStripeAccount records the connected account and whether it can receive transfers.
func (r *UserRepository) SetStripeAccount(ctx context.Context, userID string, accountID *string, enabled bool) error {
	return r.update(ctx, userID, map[string]interface{}{
		"stripe_account_id":      accountID,
		"stripe_account_enabled": enabled,
	})
}

// SetStripeCustomer records the payer-side customer id.
func (r *UserRepository) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	return r.update(ctx, userID, map[string]interface{}{
		"stripe_customer_id": customerID,
	})
}

// UpdateLevel changes the membership tier.
func (r *UserRepository) UpdateLevel(ctx context.Context, userID string, tier entities.UserTier) error {
	return r.update(ctx, userID, map[string]interface{}{
		"user_level": string(tier),
	})
}

// RecomputeStats refreshes task_count, completed_task_count and avg_rating
// from the task and review tables.
func (r *UserRepository) RecomputeStats(ctx context.Context, userID string) error {
	db := conn(ctx, r.db)

	var taskCount, completed int64
	if err := db.Model(&models.Task{}).
		Where("poster_id = ? OR taker_id = ?", userID, userID).
		Count(&taskCount).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Task{}).
		Where("(poster_id = ? OR taker_id = ?) AND status = ?", userID, userID, entities.TaskStatusCompleted).
		Count(&completed).Error; err != nil {
		return err
	}

	var avg struct{ Avg *float64 }
	if err := db.Model(&models.Review{}).
		Select("AVG(rating) AS avg").
		Where("reviewee_id = ?", userID).
		Scan(&avg).Error; err != nil {
		return err
	}
	rating := 0.0
	if avg.Avg != nil {
		rating = *avg.Avg
	}

	return r.update(ctx, userID, map[string]interface{}{
		"task_count":           taskCount,
		"completed_task_count": completed,
		"avg_rating":           rating,
	})
}

func (r *UserRepository) update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates["updated_at"] = utcNow()
	result := conn(ctx, r.db).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *UserRepository) toEntity(m *models.User) *entities.User {
	return &entities.User{
		ID:                   m.ID,
		Name:                 m.Name,
		Email:                m.Email,
		Phone:                m.Phone,
		PasswordHash:         m.PasswordHash,
		Avatar:               m.Avatar,
		UserLevel:            entities.UserTier(m.UserLevel),
		TaskCount:            m.TaskCount,
		CompletedTaskCount:   m.CompletedTaskCount,
		AvgRating:            m.AvgRating,
		IsSuspended:          m.IsSuspended,
		IsBanned:             m.IsBanned,
		SuspendUntil:         m.SuspendUntil,
		Timezone:             m.Timezone,
		Language:             m.Language,
		StripeAccountID:      m.StripeAccountID,
		StripeAccountEnabled: m.StripeAccountEnabled,
		StripeCustomerID:     m.StripeCustomerID,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

// StaffRepository reads admin and customer-service accounts.
type StaffRepository struct {
	db *gorm.DB
}

func NewStaffRepository(db *gorm.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

func (r *StaffRepository) Create(ctx context.Context, staff *entities.Staff) error {
	m := &models.Staff{
		ID:        staff.ID,
		Name:      staff.Name,
		Email:     staff.Email,
		IsActive:  staff.IsActive,
		IsService: staff.IsService,
		CreatedAt: staff.CreatedAt,
	}
	return insertOnce(ctx, GetDB(ctx, r.db), m)
}

func (r *StaffRepository) GetByID(ctx context.Context, id string) (*entities.Staff, error) {
	var m models.Staff
	if err := conn(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toStaffEntity(&m), nil
}

// ListActiveAdmins returns active admins, excluding customer-service agents.
func (r *StaffRepository) ListActiveAdmins(ctx context.Context) ([]*entities.Staff, error) {
	var ms []models.Staff
	if err := conn(ctx, r.db).
		Where("is_active = ? AND is_service = ?", true, false).
		Order("id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Staff, 0, len(ms))
	for i := range ms {
		out = append(out, toStaffEntity(&ms[i]))
	}
	return out, nil
}

func toStaffEntity(m *models.Staff) *entities.Staff {
	return &entities.Staff{
		ID:        m.ID,
		Name:      m.Name,
		Email:     m.Email,
		IsActive:  m.IsActive,
		IsService: m.IsService,
		CreatedAt: m.CreatedAt,
	}
}
