package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"link2ur.backend/internal/domain/entities"
)

// PaymentTransfer mirrors metadata.transfer_source into TransferSource so
// the partial unique index can be expressed portably.
type PaymentTransfer struct {
	ID                 int64                                        `gorm:"primaryKey"`
	TaskID             int64                                        `gorm:"not null;index"`
	TakerID            string                                       `gorm:"type:varchar(8);not null"`
	PosterID           string                                       `gorm:"type:varchar(8);not null"`
	Amount             decimal.Decimal                              `gorm:"type:numeric(12,2);not null"`
	Currency           string                                       `gorm:"type:varchar(3);not null"`
	Status             string                                       `gorm:"type:varchar(20);not null;index"`
	TransferSource     *string                                      `gorm:"type:varchar(50)"`
	ProviderTransferID *string                                      `gorm:"type:varchar(255)"`
	Metadata           datatypes.JSONType[entities.TransferMetadata] `gorm:"not null"`
	Attempts           int                                          `gorm:"not null"`
	NextRetryAt        *time.Time                                   `gorm:"index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type RefundRequest struct {
	ID               int64           `gorm:"primaryKey"`
	TaskID           int64           `gorm:"not null;index"`
	PosterID         string          `gorm:"type:varchar(8);not null"`
	Reason           string          `gorm:"type:text;not null"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status           string          `gorm:"type:varchar(20);not null;index"`
	ReviewerID       *string         `gorm:"type:varchar(10)"`
	ReviewerComment  string          `gorm:"type:text"`
	ProviderRefundID *string         `gorm:"type:varchar(255)"`
	CreatedAt        time.Time
	ReviewedAt       *time.Time
}

type TaskDispute struct {
	ID         int64   `gorm:"primaryKey"`
	TaskID     int64   `gorm:"not null;index"`
	PosterID   string  `gorm:"type:varchar(8);not null"`
	Reason     string  `gorm:"type:text;not null"`
	Status     string  `gorm:"type:varchar(20);not null;index"`
	ResolvedBy *string `gorm:"type:varchar(10)"`
	Resolution string  `gorm:"type:text"`
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

type TaskCancelRequest struct {
	ID              int64   `gorm:"primaryKey"`
	TaskID          int64   `gorm:"not null;index"`
	RequesterID     string  `gorm:"type:varchar(8);not null"`
	Reason          string  `gorm:"type:text"`
	Status          string  `gorm:"type:varchar(20);not null;index"`
	AdminID         *string `gorm:"type:varchar(10)"`
	ServiceID       *string `gorm:"type:varchar(10)"`
	ReviewerType    *string `gorm:"type:varchar(10)"`
	ReviewerComment string  `gorm:"type:text"`
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

type SystemSetting struct {
	Key       string `gorm:"type:varchar(100);primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}
