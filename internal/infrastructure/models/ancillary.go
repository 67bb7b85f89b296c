package models

import (
	"time"

	"gorm.io/datatypes"

	"link2ur.backend/internal/domain/entities"
)

type FleaMarketItem struct {
	ID          int64                       `gorm:"primaryKey"`
	SellerID    string                      `gorm:"type:varchar(8);not null;index"`
	Title       string                      `gorm:"type:varchar(200);not null"`
	Status      string                      `gorm:"type:varchar(20);not null;index"`
	SoldTaskID  *int64                      `gorm:"index"`
	Images      datatypes.JSONSlice[string] `gorm:"not null"`
	RefreshedAt time.Time                   `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ExpertService struct {
	ID           int64                                    `gorm:"primaryKey"`
	ExpertID     string                                   `gorm:"type:varchar(8);not null;index"`
	Title        string                                   `gorm:"type:varchar(200);not null"`
	IsActive     bool                                     `gorm:"not null"`
	WeeklyConfig datatypes.JSONType[entities.WeeklyConfig] `gorm:"not null"`
	CreatedAt    time.Time
}

type ServiceTimeSlot struct {
	ID                int64     `gorm:"primaryKey"`
	ServiceID         int64     `gorm:"not null;uniqueIndex:idx_service_time_slots_service_start"`
	SlotDate          time.Time `gorm:"not null;index"`
	StartTime         time.Time `gorm:"not null;uniqueIndex:idx_service_time_slots_service_start"`
	EndTime           time.Time `gorm:"not null;index"`
	IsManuallyDeleted bool      `gorm:"not null"`
	CreatedAt         time.Time
}

type TaskTimeSlotRelation struct {
	ID         int64 `gorm:"primaryKey"`
	TaskID     int64 `gorm:"not null;index"`
	TimeSlotID int64 `gorm:"not null;index"`
	CreatedAt  time.Time
}

type VIPSubscription struct {
	ID          int64     `gorm:"primaryKey"`
	UserID      string    `gorm:"type:varchar(8);not null;index"`
	Tier        string    `gorm:"type:varchar(10);not null"`
	Status      string    `gorm:"type:varchar(20);not null;index"`
	ExpiresDate time.Time `gorm:"not null;index"`
	CreatedAt   time.Time
}

func (VIPSubscription) TableName() string {
	return "vip_subscriptions"
}

type Coupon struct {
	ID         int64     `gorm:"primaryKey"`
	Code       string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	Status     string    `gorm:"type:varchar(20);not null"`
	ValidUntil time.Time `gorm:"not null"`
}

type InvitationCode struct {
	ID         int64     `gorm:"primaryKey"`
	Code       string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	IsActive   bool      `gorm:"not null"`
	ValidUntil time.Time `gorm:"not null"`
}

type PointsAccount struct {
	UserID    string `gorm:"type:varchar(8);primaryKey"`
	Balance   int64  `gorm:"not null"`
	UpdatedAt time.Time
}

type PointsTransaction struct {
	ID             int64      `gorm:"primaryKey"`
	UserID         string     `gorm:"type:varchar(8);not null;index"`
	Type           string     `gorm:"type:varchar(10);not null"`
	Amount         int64      `gorm:"not null"`
	Source         string     `gorm:"type:varchar(50);not null"`
	IdempotencyKey string     `gorm:"type:varchar(200);uniqueIndex;not null"`
	ExpiresAt      *time.Time `gorm:"index"`
	IsExpired      bool       `gorm:"not null"`
	CreatedAt      time.Time
}

type DeviceToken struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     string    `gorm:"type:varchar(8);not null;index"`
	Token      string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Platform   string    `gorm:"type:varchar(20);not null"`
	IsActive   bool      `gorm:"not null"`
	LastUsedAt time.Time `gorm:"index"`
}

type AuditLog struct {
	ID        int64  `gorm:"primaryKey"`
	TaskID    *int64 `gorm:"index"`
	ActorID   string `gorm:"type:varchar(10);not null"`
	Action    string `gorm:"type:varchar(50);not null"`
	Detail    string `gorm:"type:text"`
	CreatedAt time.Time
}

// All lists every model for AutoMigrate in tests.
func All() []interface{} {
	return []interface{}{
		&User{}, &Staff{},
		&Task{}, &TaskHistory{}, &TaskApplication{}, &NegotiationResponseLog{},
		&TaskParticipant{}, &ParticipantReward{}, &Review{},
		&Message{}, &MessageAttachment{}, &MessageRead{}, &MessageReadCursor{},
		&Notification{},
		&PaymentTransfer{}, &RefundRequest{}, &TaskDispute{}, &TaskCancelRequest{}, &SystemSetting{},
		&FleaMarketItem{}, &ExpertService{}, &ServiceTimeSlot{}, &TaskTimeSlotRelation{},
		&VIPSubscription{}, &Coupon{}, &InvitationCode{},
		&PointsAccount{}, &PointsTransaction{}, &DeviceToken{}, &AuditLog{},
	}
}
