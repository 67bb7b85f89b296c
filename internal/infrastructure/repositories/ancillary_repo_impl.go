package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"link2ur.backend/internal/domain/entities"
	domainerrors "link2ur.backend/internal/domain/errors"
	"link2ur.backend/internal/infrastructure/models"
)

// SettingsRepository reads and writes system settings
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetDecimal parses a numeric setting. found is false when the key is
// absent.
func (r *SettingsRepository) GetDecimal(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	var m models.SystemSetting
	err := conn(ctx, r.db).Where("key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	v, err := decimal.NewFromString(m.Value)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value, UpdatedAt: utcNow()}).Error
}

// FleaMarketRepository implements listing operations used by the task engine
type FleaMarketRepository struct {
	db *gorm.DB
}

func NewFleaMarketRepository(db *gorm.DB) *FleaMarketRepository {
	return &FleaMarketRepository{db: db}
}

func (r *FleaMarketRepository) Create(ctx context.Context, item *entities.FleaMarketItem) error {
	images := item.Images
	if images == nil {
		images = []string{}
	}
	m := &models.FleaMarketItem{
		SellerID:    item.SellerID,
		Title:       item.Title,
		Status:      string(item.Status),
		SoldTaskID:  item.SoldTaskID,
		Images:      datatypes.NewJSONSlice(images),
		RefreshedAt: item.RefreshedAt,
	}
	if m.RefreshedAt.IsZero() {
		m.RefreshedAt = utcNow()
	}
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	item.ID = m.ID
	item.RefreshedAt = m.RefreshedAt
	item.CreatedAt = m.CreatedAt
	item.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *FleaMarketRepository) GetByID(ctx context.Context, id int64) (*entities.FleaMarketItem, error) {
	var m models.FleaMarketItem
	if err := conn(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toFleaMarketEntity(&m), nil
}

// RestoreBySoldTask puts listings reserved or sold through taskID back on sale
func (r *FleaMarketRepository) RestoreBySoldTask(ctx context.Context, taskID int64) (int64, error) {
	result := conn(ctx, r.db).Model(&models.FleaMarketItem{}).
		Where("sold_task_id = ? AND status IN ?", taskID,
			[]string{string(entities.FleaMarketReserved), string(entities.FleaMarketSold)}).
		Updates(map[string]interface{}{
			"status":       string(entities.FleaMarketActive),
			"sold_task_id": nil,
			"updated_at":   utcNow(),
		})
	return result.RowsAffected, result.Error
}

// ListStale returns active listings not refreshed since refreshedBefore
func (r *FleaMarketRepository) ListStale(ctx context.Context, refreshedBefore time.Time, limit int) ([]*entities.FleaMarketItem, error) {
	var ms []models.FleaMarketItem
	if err := conn(ctx, r.db).
		Where("status = ? AND refreshed_at < ?", entities.FleaMarketActive, refreshedBefore).
		Order("refreshed_at ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.FleaMarketItem, 0, len(ms))
	for i := range ms {
		out = append(out, toFleaMarketEntity(&ms[i]))
	}
	return out, nil
}

// SoftDelete marks the listing deleted and drops its image list
func (r *FleaMarketRepository) SoftDelete(ctx context.Context, id int64) error {
	result := conn(ctx, r.db).Model(&models.FleaMarketItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(entities.FleaMarketDeleted),
			"images":     datatypes.NewJSONSlice([]string{}),
			"updated_at": utcNow(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func toFleaMarketEntity(m *models.FleaMarketItem) *entities.FleaMarketItem {
	images := []string(m.Images)
	if images == nil {
		images = []string{}
	}
	return &entities.FleaMarketItem{
		ID:          m.ID,
		SellerID:    m.SellerID,
		Title:       m.Title,
		Status:      entities.FleaMarketStatus(m.Status),
		SoldTaskID:  m.SoldTaskID,
		Images:      images,
		RefreshedAt: m.RefreshedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// TimeSlotRepository implements expert availability operations
type TimeSlotRepository struct {
	db *gorm.DB
}

func NewTimeSlotRepository(db *gorm.DB) *TimeSlotRepository {
	return &TimeSlotRepository{db: db}
}

func (r *TimeSlotRepository) CreateService(ctx context.Context, svc *entities.ExpertService) error {
	cfg := svc.WeeklyConfig
	if cfg == nil {
		cfg = entities.WeeklyConfig{}
	}
	m := &models.ExpertService{
		ExpertID:     svc.ExpertID,
		Title:        svc.Title,
		IsActive:     svc.IsActive,
		WeeklyConfig: datatypes.NewJSONType(cfg),
	}
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	svc.ID = m.ID
	svc.CreatedAt = m.CreatedAt
	return nil
}

func (r *TimeSlotRepository) ListActiveServices(ctx context.Context) ([]*entities.ExpertService, error) {
	var ms []models.ExpertService
	if err := conn(ctx, r.db).Where("is_active = ?", true).Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.ExpertService, 0, len(ms))
	for _, m := range ms {
		out = append(out, &entities.ExpertService{
			ID:           m.ID,
			ExpertID:     m.ExpertID,
			Title:        m.Title,
			IsActive:     m.IsActive,
			WeeklyConfig: m.WeeklyConfig.Data(),
			CreatedAt:    m.CreatedAt,
		})
	}
	return out, nil
}

// ListSlots returns slots starting in [from, to), including manually
// deleted ones so generation never recreates them.
func (r *TimeSlotRepository) ListSlots(ctx context.Context, serviceID int64, from, to time.Time) ([]*entities.ServiceTimeSlot, error) {
	var ms []models.ServiceTimeSlot
	if err := conn(ctx, r.db).
		Where("service_id = ? AND start_time >= ? AND start_time < ?", serviceID, from, to).
		Order("start_time ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.ServiceTimeSlot, 0, len(ms))
	for _, m := range ms {
		out = append(out, &entities.ServiceTimeSlot{
			ID:                m.ID,
			ServiceID:         m.ServiceID,
			SlotDate:          m.SlotDate,
			StartTime:         m.StartTime,
			EndTime:           m.EndTime,
			IsManuallyDeleted: m.IsManuallyDeleted,
			CreatedAt:         m.CreatedAt,
		})
	}
	return out, nil
}

// CreateSlot returns ErrAlreadyExists when the service already has a slot
// at that start time.
func (r *TimeSlotRepository) CreateSlot(ctx context.Context, slot *entities.ServiceTimeSlot) error {
	m := &models.ServiceTimeSlot{
		ServiceID:         slot.ServiceID,
		SlotDate:          slot.SlotDate,
		StartTime:         slot.StartTime,
		EndTime:           slot.EndTime,
		IsManuallyDeleted: slot.IsManuallyDeleted,
	}
	if err := insertOnce(ctx, GetDB(ctx, r.db), m); err != nil {
		return err
	}
	slot.ID = m.ID
	slot.CreatedAt = m.CreatedAt
	return nil
}

func (r *TimeSlotRepository) LinkTask(ctx context.Context, rel *entities.TaskTimeSlotRelation) error {
	m := &models.TaskTimeSlotRelation{TaskID: rel.TaskID, TimeSlotID: rel.TimeSlotID}
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	rel.ID = m.ID
	rel.CreatedAt = m.CreatedAt
	return nil
}

// SlotEndForTask returns the latest end time of the slots booked by the
// task, or nil when it has none.
func (r *TimeSlotRepository) SlotEndForTask(ctx context.Context, taskID int64) (*time.Time, error) {
	var ends []time.Time
	if err := conn(ctx, r.db).Model(&models.ServiceTimeSlot{}).
		Joins("JOIN task_time_slot_relations rel ON rel.time_slot_id = service_time_slots.id").
		Where("rel.task_id = ?", taskID).
		Order("service_time_slots.end_time DESC").
		Limit(1).
		Pluck("service_time_slots.end_time", &ends).Error; err != nil {
		return nil, err
	}
	if len(ends) == 0 {
		return nil, nil
	}
	end := ends[0].UTC()
	return &end, nil
}

// DeleteExpired removes past slots no live task still depends on
func (r *TimeSlotRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	db := conn(ctx, r.db)

	var ids []int64
	if err := db.Model(&models.ServiceTimeSlot{}).
		Where("end_time < ?", cutoff).
		Where(`NOT EXISTS (
			SELECT 1 FROM task_time_slot_relations rel JOIN tasks t ON t.id = rel.task_id
			WHERE rel.time_slot_id = service_time_slots.id AND t.status NOT IN ?)`,
			[]string{string(entities.TaskStatusCompleted), string(entities.TaskStatusCancelled)}).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := db.Where("time_slot_id IN ?", ids).Delete(&models.TaskTimeSlotRelation{}).Error; err != nil {
		return 0, err
	}
	result := db.Where("id IN ?", ids).Delete(&models.ServiceTimeSlot{})
	return result.RowsAffected, result.Error
}

// VIPRepository implements subscription expiry operations
type VIPRepository struct {
	db *gorm.DB
}

func NewVIPRepository(db *gorm.DB) *VIPRepository {
	return &VIPRepository{db: db}
}

func (r *VIPRepository) Create(ctx context.Context, sub *entities.VIPSubscription) error {
	m := &models.VIPSubscription{
		UserID:      sub.UserID,
		Tier:        string(sub.Tier),
		Status:      string(sub.Status),
		ExpiresDate: sub.ExpiresDate,
	}
	if err := conn(ctx, r.db).Create(m).Error; err != nil {
		return err
	}
	sub.ID = m.ID
	sub.CreatedAt = m.CreatedAt
	return nil
}

// ListLapsed returns active or cancelled subscriptions already past expiry
func (r *VIPRepository) ListLapsed(ctx context.Context, now time.Time, limit int) ([]*entities.VIPSubscription, error) {
	var ms []models.VIPSubscription
	if err := applyLock(ctx, conn(ctx, r.db)).
		Where("status IN ? AND expires_date < ?", liveSubscription(), now).
		Order("id ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.VIPSubscription, 0, len(ms))
	for _, m := range ms {
		out = append(out, &entities.VIPSubscription{
			ID:          m.ID,
			UserID:      m.UserID,
			Tier:        entities.UserTier(m.Tier),
			Status:      entities.VIPSubscriptionStatus(m.Status),
			ExpiresDate: m.ExpiresDate,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

func (r *VIPRepository) MarkExpired(ctx context.Context, id int64) error {
	return conn(ctx, r.db).Model(&models.VIPSubscription{}).
		Where("id = ?", id).
		Update("status", string(entities.VIPExpired)).Error
}

// HasOtherActive reports another unexpired subscription for the user
func (r *VIPRepository) HasOtherActive(ctx context.Context, userID string, exceptID int64, now time.Time) (bool, error) {
	return exists(ctx, r.db, &models.VIPSubscription{},
		"user_id = ? AND id <> ? AND status IN ? AND expires_date > ?",
		userID, exceptID, liveSubscription(), now)
}

// a cancelled subscription keeps its benefits until it expires
func liveSubscription() []string {
	return []string{string(entities.VIPActive), string(entities.VIPCancelled)}
}

// PromotionRepository implements coupon and invitation code expiry
type PromotionRepository struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func (r *PromotionRepository) ExpireCoupons(ctx context.Context, now time.Time) (int64, error) {
	result := conn(ctx, r.db).Model(&models.Coupon{}).
		Where("status = ? AND valid_until < ?", "active", now).
		Update("status", "expired")
	return result.RowsAffected, result.Error
}

func (r *PromotionRepository) ExpireInvitationCodes(ctx context.Context, now time.Time) (int64, error) {
	result := conn(ctx, r.db).Model(&models.InvitationCode{}).
		Where("is_active = ? AND valid_until < ?", true, now).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// PointsRepository implements the points ledger
type PointsRepository struct {
	db *gorm.DB
}

func NewPointsRepository(db *gorm.DB) *PointsRepository {
	return &PointsRepository{db: db}
}

// Grant records the ledger row and credits the balance in one savepoint
func (r *PointsRepository) Grant(ctx context.Context, tx *entities.PointsTransaction) error {
	m := &models.PointsTransaction{
		UserID:         tx.UserID,
		Type:           string(tx.Type),
		Amount:         tx.Amount,
		Source:         tx.Source,
		IdempotencyKey: tx.IdempotencyKey,
		ExpiresAt:      tx.ExpiresAt,
	}
	err := conn(ctx, r.db).Transaction(func(db *gorm.DB) error {
		if err := db.Create(m).Error; err != nil {
			return err
		}
		return credit(db, tx.UserID, tx.Amount)
	})
	if isDuplicate(err) {
		return domainerrors.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	tx.ID = m.ID
	tx.CreatedAt = m.CreatedAt
	return nil
}

func credit(db *gorm.DB, userID string, amount int64) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("points_accounts.balance + ?", amount),
			"updated_at": utcNow(),
		}),
	}).Create(&models.PointsAccount{UserID: userID, Balance: amount, UpdatedAt: utcNow()}).Error
}

func (r *PointsRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var balances []int64
	if err := conn(ctx, r.db).Model(&models.PointsAccount{}).
		Where("user_id = ?", userID).
		Pluck("balance", &balances).Error; err != nil {
		return 0, err
	}
	if len(balances) == 0 {
		return 0, nil
	}
	return balances[0], nil
}

// ListExpiredEarnings returns unexpired earn rows whose expiry passed
func (r *PointsRepository) ListExpiredEarnings(ctx context.Context, now time.Time, limit int) ([]*entities.PointsTransaction, error) {
	var ms []models.PointsTransaction
	if err := applyLock(ctx, conn(ctx, r.db)).
		Where("type = ? AND is_expired = ? AND expires_at IS NOT NULL AND expires_at < ?", entities.PointsEarn, false, now).
		Order("expires_at ASC").Order("id ASC").
		Limit(limit).
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.PointsTransaction, 0, len(ms))
	for _, m := range ms {
		out = append(out, &entities.PointsTransaction{
			ID:             m.ID,
			UserID:         m.UserID,
			Type:           entities.PointsTransactionType(m.Type),
			Amount:         m.Amount,
			Source:         m.Source,
			IdempotencyKey: m.IdempotencyKey,
			ExpiresAt:      m.ExpiresAt,
			IsExpired:      m.IsExpired,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out, nil
}

// ExpireEarning never drives the balance negative
func (r *PointsRepository) ExpireEarning(ctx context.Context, tx *entities.PointsTransaction, now time.Time) (bool, error) {
	debited := false
	err := conn(ctx, r.db).Transaction(func(db *gorm.DB) error {
		result := db.Model(&models.PointsAccount{}).
			Where("user_id = ? AND balance >= ?", tx.UserID, tx.Amount).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - ?", tx.Amount),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			debited = true
			if err := db.Create(&models.PointsTransaction{
				UserID:         tx.UserID,
				Type:           string(entities.PointsExpire),
				Amount:         -tx.Amount,
				Source:         "expiry",
				IdempotencyKey: fmt.Sprintf("points_expire_%d", tx.ID),
				CreatedAt:      now,
			}).Error; err != nil {
				return err
			}
		}
		return db.Model(&models.PointsTransaction{}).
			Where("id = ?", tx.ID).
			Update("is_expired", true).Error
	})
	if err != nil {
		return false, err
	}
	tx.IsExpired = true
	return debited, nil
}

// DeviceTokenRepository implements push token hygiene
type DeviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository(db *gorm.DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

func (r *DeviceTokenRepository) DeactivateUnusedSince(ctx context.Context, before time.Time) (int64, error) {
	result := conn(ctx, r.db).Model(&models.DeviceToken{}).
		Where("is_active = ? AND last_used_at < ?", true, before).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}
