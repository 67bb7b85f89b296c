package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"link2ur.backend/internal/domain/entities"
)

// SettingsRepository reads SystemSettings key/value rows.
type SettingsRepository interface {
	GetDecimal(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key, value string) error
}

// FleaMarketRepository covers the listing side effects of the task engine.
type FleaMarketRepository interface {
	Create(ctx context.Context, item *entities.FleaMarketItem) error
	GetByID(ctx context.Context, id int64) (*entities.FleaMarketItem, error)
	// RestoreBySoldTask re-activates listings held by taskID.
	RestoreBySoldTask(ctx context.Context, taskID int64) (int64, error)
	ListStale(ctx context.Context, refreshedBefore time.Time, limit int) ([]*entities.FleaMarketItem, error)
	SoftDelete(ctx context.Context, id int64) error
}

// TimeSlotRepository covers expert service availability.
type TimeSlotRepository interface {
	CreateService(ctx context.Context, svc *entities.ExpertService) error
	ListActiveServices(ctx context.Context) ([]*entities.ExpertService, error)
	ListSlots(ctx context.Context, serviceID int64, from, to time.Time) ([]*entities.ServiceTimeSlot, error)
	CreateSlot(ctx context.Context, slot *entities.ServiceTimeSlot) error
	LinkTask(ctx context.Context, rel *entities.TaskTimeSlotRelation) error
	SlotEndForTask(ctx context.Context, taskID int64) (*time.Time, error)
	// DeleteExpired removes slots ending before cutoff whose related tasks
	// are all completed or cancelled.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// VIPRepository covers subscription expiry.
type VIPRepository interface {
	Create(ctx context.Context, sub *entities.VIPSubscription) error
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]*entities.VIPSubscription, error)
	MarkExpired(ctx context.Context, id int64) error
	HasOtherActive(ctx context.Context, userID string, exceptID int64, now time.Time) (bool, error)
}

// PromotionRepository covers coupon and invitation code expiry.
type PromotionRepository interface {
	ExpireCoupons(ctx context.Context, now time.Time) (int64, error)
	ExpireInvitationCodes(ctx context.Context, now time.Time) (int64, error)
}

// PointsRepository covers the points ledger.
type PointsRepository interface {
	// Grant credits points once per idempotency key; a replay returns
	// ErrAlreadyExists without crediting.
	Grant(ctx context.Context, tx *entities.PointsTransaction) error
	Balance(ctx context.Context, userID string) (int64, error)
	ListExpiredEarnings(ctx context.Context, now time.Time, limit int) ([]*entities.PointsTransaction, error)
	// ExpireEarning debits the balance only when balance >= amount and marks
	// the earning expired either way. It reports whether a debit happened.
	ExpireEarning(ctx context.Context, tx *entities.PointsTransaction, now time.Time) (bool, error)
}

// DeviceTokenRepository covers push token hygiene.
type DeviceTokenRepository interface {
	DeactivateUnusedSince(ctx context.Context, before time.Time) (int64, error)
}
