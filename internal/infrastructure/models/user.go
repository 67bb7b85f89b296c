package models

import (
	"time"
)

type User struct {
	ID                   string     `gorm:"type:varchar(8);primaryKey"`
	Name                 string     `gorm:"type:varchar(50);uniqueIndex;not null"`
	Email                *string    `gorm:"type:varchar(120);uniqueIndex"`
	Phone                *string    `gorm:"type:varchar(20)"`
	PasswordHash         string     `gorm:"type:varchar(128)"`
	Avatar               string     `gorm:"type:varchar(255)"`
	UserLevel            string     `gorm:"type:varchar(10);not null"`
	TaskCount            int        `gorm:"not null"`
	CompletedTaskCount   int        `gorm:"not null"`
	AvgRating            float64    `gorm:"not null"`
	IsSuspended          bool       `gorm:"not null"`
	IsBanned             bool       `gorm:"not null"`
	SuspendUntil         *time.Time `gorm:"type:timestamp"`
	Timezone             string     `gorm:"type:varchar(50)"`
	Language             string     `gorm:"type:varchar(10)"`
	StripeAccountID      *string    `gorm:"type:varchar(255);index"`
	StripeAccountEnabled bool       `gorm:"not null"`
	StripeCustomerID     *string    `gorm:"type:varchar(255)"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Staff holds admin (A####) and customer-service (CS####) accounts.
type Staff struct {
	ID        string `gorm:"type:varchar(10);primaryKey"`
	Name      string `gorm:"type:varchar(50);not null"`
	Email     string `gorm:"type:varchar(120)"`
	IsActive  bool   `gorm:"not null"`
	IsService bool   `gorm:"not null"`
	CreatedAt time.Time
}

func (Staff) TableName() string {
	return "staff_users"
}
