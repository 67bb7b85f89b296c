package repositories

import (
	"gorm.io/gorm"

	domainRepos "link2ur.backend/internal/domain/repositories"
)

// NewStore wires every gorm-backed repository onto db.
func NewStore(db *gorm.DB) *domainRepos.Store {
	return &domainRepos.Store{
		Users:          NewUserRepository(db),
		Staff:          NewStaffRepository(db),
		Tasks:          NewTaskRepository(db),
		Applications:   NewApplicationRepository(db),
		Participants:   NewParticipantRepository(db),
		Reviews:        NewReviewRepository(db),
		Messages:       NewMessageRepository(db),
		Notifications:  NewNotificationRepository(db),
		Transfers:      NewPaymentTransferRepository(db),
		Refunds:        NewRefundRepository(db),
		Disputes:       NewDisputeRepository(db),
		CancelRequests: NewCancelRequestRepository(db),
		Settings:       NewSettingsRepository(db),
		FleaMarket:     NewFleaMarketRepository(db),
		TimeSlots:      NewTimeSlotRepository(db),
		VIP:            NewVIPRepository(db),
		Promotions:     NewPromotionRepository(db),
		Points:         NewPointsRepository(db),
		DeviceTokens:   NewDeviceTokenRepository(db),
	}
}
