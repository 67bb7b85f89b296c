package repositories

// Store groups every repository so collaborators are wired in one place.
type Store struct {
	Users          UserRepository
	Staff          StaffRepository
	Tasks          TaskRepository
	Applications   ApplicationRepository
	Participants   ParticipantRepository
	Reviews        ReviewRepository
	Messages       MessageRepository
	Notifications  NotificationRepository
	Transfers      PaymentTransferRepository
	Refunds        RefundRepository
	Disputes       DisputeRepository
	CancelRequests CancelRequestRepository
	Settings       SettingsRepository
	FleaMarket     FleaMarketRepository
	TimeSlots      TimeSlotRepository
	VIP            VIPRepository
	Promotions     PromotionRepository
	Points         PointsRepository
	DeviceTokens   DeviceTokenRepository
}
