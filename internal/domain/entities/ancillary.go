package entities

import (
	"time"
)

type FleaMarketStatus string

const (
	FleaMarketActive   FleaMarketStatus = "active"
	FleaMarketReserved FleaMarketStatus = "reserved"
	FleaMarketSold     FleaMarketStatus = "sold"
	FleaMarketDeleted  FleaMarketStatus = "deleted"
)

// FleaMarketItem is a second-hand listing; SoldTaskID links it to the
// purchase task while payment is outstanding.
type FleaMarketItem struct {
	ID          int64            `json:"id"`
	SellerID    string           `json:"seller_id"`
	Title       string           `json:"title"`
	Status      FleaMarketStatus `json:"status"`
	SoldTaskID  *int64           `json:"sold_task_id"`
	Images      []string         `json:"images"`
	RefreshedAt time.Time        `json:"refreshed_at"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SlotWindow is one "HH:MM"-"HH:MM" availability window.
type SlotWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyConfig maps lower-case weekday names to windows.
type WeeklyConfig map[string][]SlotWindow

type ExpertService struct {
	ID           int64        `json:"id"`
	ExpertID     string       `json:"expert_id"`
	Title        string       `json:"title"`
	IsActive     bool         `json:"is_active"`
	WeeklyConfig WeeklyConfig `json:"weekly_config"`
	CreatedAt    time.Time    `json:"created_at"`
}

type ServiceTimeSlot struct {
	ID                int64     `json:"id"`
	ServiceID         int64     `json:"service_id"`
	SlotDate          time.Time `json:"slot_date"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	IsManuallyDeleted bool      `json:"is_manually_deleted"`
	CreatedAt         time.Time `json:"created_at"`
}

type TaskTimeSlotRelation struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	TimeSlotID int64     `json:"time_slot_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type VIPSubscriptionStatus string

const (
	VIPActive    VIPSubscriptionStatus = "active"
	VIPCancelled VIPSubscriptionStatus = "cancelled"
	VIPExpired   VIPSubscriptionStatus = "expired"
)

type VIPSubscription struct {
	ID          int64                 `json:"id"`
	UserID      string                `json:"user_id"`
	Tier        UserTier              `json:"tier"`
	Status      VIPSubscriptionStatus `json:"status"`
	ExpiresDate time.Time             `json:"expires_date"`
	CreatedAt   time.Time             `json:"created_at"`
}

type Coupon struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Status     string    `json:"status"`
	ValidUntil time.Time `json:"valid_until"`
}

type InvitationCode struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	IsActive   bool      `json:"is_active"`
	ValidUntil time.Time `json:"valid_until"`
}

type PointsAccount struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PointsTransactionType string

const (
	PointsEarn   PointsTransactionType = "earn"
	PointsSpend  PointsTransactionType = "spend"
	PointsExpire PointsTransactionType = "expire"
)

type PointsTransaction struct {
	ID             int64                 `json:"id"`
	UserID         string                `json:"user_id"`
	Type           PointsTransactionType `json:"type"`
	Amount         int64                 `json:"amount"`
	Source         string                `json:"source"`
	IdempotencyKey string                `json:"idempotency_key"`
	ExpiresAt      *time.Time            `json:"expires_at,omitempty"`
	IsExpired      bool                  `json:"is_expired"`
	CreatedAt      time.Time             `json:"created_at"`
}

type DeviceToken struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	Platform   string    `json:"platform"`
	IsActive   bool      `json:"is_active"`
	LastUsedAt time.Time `json:"last_used_at"`
}

type AuditLog struct {
	ID        int64     `json:"id"`
	TaskID    *int64    `json:"task_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemSetting keys
const (
	SettingVIPPriceThreshold      = "vip_price_threshold"
	SettingSuperVIPPriceThreshold = "super_vip_price_threshold"
)
