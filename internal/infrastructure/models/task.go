package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Task struct {
	ID          int64    `gorm:"primaryKey"`
	Title       string   `gorm:"type:varchar(100);not null"`
	Description string   `gorm:"type:text;not null"`
	TaskType    string   `gorm:"type:varchar(50);not null;index"`
	Location    string   `gorm:"type:varchar(100);not null"`
	Latitude    *float64 `gorm:"type:numeric(10,7)"`
	Longitude   *float64 `gorm:"type:numeric(10,7)"`

	BaseReward   decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	AgreedReward decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Currency     string              `gorm:"type:varchar(3);not null"`
	IsFlexible   bool                `gorm:"not null"`
	Deadline     *time.Time          `gorm:"index"`
	Status       string              `gorm:"type:varchar(20);not null;index"`
	TaskLevel    string              `gorm:"type:varchar(10);not null"`
	PosterID     string              `gorm:"type:varchar(8);not null;index"`
	TakerID      *string             `gorm:"type:varchar(8);index"`
	IsPublic     bool                `gorm:"not null"`

	IsMultiParticipant bool    `gorm:"not null"`
	ExpertCreatorID    *string `gorm:"type:varchar(8);index"`
	CreatedByExpert    bool    `gorm:"not null"`
	OriginatingUserID  *string `gorm:"type:varchar(8)"`
	ParentActivityID   *int64
	ExpertServiceID    *int64 `gorm:"index"`

	IsPaid              bool            `gorm:"not null"`
	EscrowAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PaymentIntentID     *string         `gorm:"type:varchar(255);uniqueIndex"`
	PaymentExpiresAt    *time.Time      `gorm:"index"`
	StripeDisputeFrozen bool            `gorm:"not null"`

	ConfirmedAt              *time.Time
	IsConfirmed              bool       `gorm:"not null"`
	AutoConfirmed            bool       `gorm:"not null"`
	ConfirmationDeadline     *time.Time `gorm:"index"`
	ConfirmationReminderSent int        `gorm:"not null"`
	PaidToUserID             *string    `gorm:"type:varchar(8)"`
	CompletedAt              *time.Time

	Images    datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt time.Time                   `gorm:"index"`
	UpdatedAt time.Time
}

type TaskHistory struct {
	ID        int64   `gorm:"primaryKey"`
	TaskID    int64   `gorm:"not null;index"`
	UserID    *string `gorm:"type:varchar(10)"`
	Action    string  `gorm:"type:varchar(50);not null"`
	Remark    string  `gorm:"type:text"`
	Timestamp time.Time
}

func (TaskHistory) TableName() string {
	return "task_history"
}

type TaskApplication struct {
	ID              int64               `gorm:"primaryKey"`
	TaskID          int64               `gorm:"not null;uniqueIndex:idx_task_applications_task_applicant"`
	ApplicantID     string              `gorm:"type:varchar(8);not null;uniqueIndex:idx_task_applications_task_applicant"`
	Message         string              `gorm:"type:text"`
	NegotiatedPrice decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Currency        string              `gorm:"type:varchar(3);not null"`
	Status          string              `gorm:"type:varchar(20);not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type NegotiationResponseLog struct {
	ID              int64               `gorm:"primaryKey"`
	TaskID          int64               `gorm:"not null;index"`
	ApplicationID   int64               `gorm:"not null;index"`
	UserID          string              `gorm:"type:varchar(8);not null"`
	Action          string              `gorm:"type:varchar(10);not null"`
	NegotiatedPrice decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	IPAddress       string              `gorm:"type:varchar(45)"`
	UserAgent       string              `gorm:"type:text"`
	RespondedAt     time.Time
}

type TaskParticipant struct {
	ID          int64  `gorm:"primaryKey"`
	TaskID      int64  `gorm:"not null;uniqueIndex:idx_task_participants_task_user"`
	UserID      string `gorm:"type:varchar(8);not null;uniqueIndex:idx_task_participants_task_user"`
	Status      string `gorm:"type:varchar(20);not null"`
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ParticipantReward struct {
	ID        int64  `gorm:"primaryKey"`
	TaskID    int64  `gorm:"not null;index"`
	UserID    string `gorm:"type:varchar(8);not null"`
	Points    int64  `gorm:"not null"`
	CreatedAt time.Time
}

type Review struct {
	ID          int64   `gorm:"primaryKey"`
	TaskID      int64   `gorm:"not null;uniqueIndex:idx_reviews_task_user"`
	UserID      string  `gorm:"type:varchar(8);not null;uniqueIndex:idx_reviews_task_user"`
	RevieweeID  string  `gorm:"type:varchar(8);not null;index"`
	Rating      float64 `gorm:"not null"`
	Comment     string  `gorm:"type:text"`
	IsAnonymous bool    `gorm:"not null"`
	CreatedAt   time.Time
}
