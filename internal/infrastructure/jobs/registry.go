package jobs

import (
	"context"
	"time"
)

// Job names as they appear in configuration overrides and `job run`.
const (
	JobExpirePromotions       = "expire_coupons_and_invitation_codes"
	JobExpirePoints           = "expire_points"
	JobCancelExpiredOpenTasks = "cancel_expired_open_tasks"
	JobCancelExpiredPayments  = "cancel_expired_payments"
	JobPaymentReminders       = "send_payment_reminders"
	JobDeadlineReminders      = "send_deadline_reminders"
	JobAutoConfirm            = "auto_confirm_expired_tasks"
	JobConfirmationReminders  = "send_confirmation_reminders"
	JobStaleDisputes          = "check_stale_disputes"
	JobAutoTransfer           = "auto_transfer_expired_expert_tasks"
	JobAutoTransferReminders  = "send_auto_transfer_reminders"
	JobCleanupCompletedFiles  = "cleanup_completed_task_files"
	JobCleanupExpiredFiles    = "cleanup_expired_task_files"
	JobCleanupFleaMarket      = "cleanup_flea_market_items"
	JobCleanupTimeSlots       = "cleanup_expired_time_slots"
	JobGenerateTimeSlots      = "generate_future_time_slots"
	JobExpireVIP              = "expire_vip_subscriptions"
	JobCleanupDeviceTokens    = "cleanup_inactive_device_tokens"
	JobRetryTransfers         = "retry_failed_transfers"
)

const (
	everyMinute = time.Minute
	every5Min   = 5 * time.Minute
	every10Min  = 10 * time.Minute
	every15Min  = 15 * time.Minute
	hourly      = time.Hour
	daily       = 24 * time.Hour
	weekly      = 7 * daily
)

// Maintenance is the job logic; usecases.MaintenanceUsecase implements it.
type Maintenance interface {
	ExpirePromotions(ctx context.Context) (int, error)
	ExpirePoints(ctx context.Context) (int, error)
	CancelExpiredOpenTasks(ctx context.Context) (int, error)
	CancelExpiredPayments(ctx context.Context) (int, error)
	SendPaymentReminders(ctx context.Context) (int, error)
	SendDeadlineReminders(ctx context.Context) (int, error)
	AutoConfirmExpiredTasks(ctx context.Context) (int, error)
	SendConfirmationReminders(ctx context.Context) (int, error)
	CheckStaleDisputes(ctx context.Context) (int, error)
	AutoTransferExpertTasks(ctx context.Context) (int, error)
	SendAutoTransferReminders(ctx context.Context) (int, error)
	CleanupCompletedTaskFiles(ctx context.Context) (int, error)
	CleanupExpiredTaskFiles(ctx context.Context) (int, error)
	CleanupFleaMarketItems(ctx context.Context) (int, error)
	CleanupExpiredTimeSlots(ctx context.Context) (int, error)
	GenerateTimeSlots(ctx context.Context) (int, error)
	ExpireVIPSubscriptions(ctx context.Context) (int, error)
	CleanupInactiveDeviceTokens(ctx context.Context) (int, error)
	RetryTransfers(ctx context.Context) (int, error)
}

// Suite returns the full job table with default cadences. Device token
// cleanup ships disabled; provider-reported invalid tokens are pruned on send.
func Suite(m Maintenance) []Job {
	return []Job{
		{Name: JobExpirePromotions, Interval: daily, Enabled: true, Run: m.ExpirePromotions},
		{Name: JobExpirePoints, Interval: daily, Enabled: true, Run: m.ExpirePoints},
		{Name: JobCancelExpiredOpenTasks, Interval: everyMinute, Enabled: true, Run: m.CancelExpiredOpenTasks},
		{Name: JobCancelExpiredPayments, Interval: everyMinute, Enabled: true, Run: m.CancelExpiredPayments},
		{Name: JobPaymentReminders, Interval: every15Min, Enabled: true, Run: m.SendPaymentReminders},
		{Name: JobDeadlineReminders, Interval: every15Min, Enabled: true, Run: m.SendDeadlineReminders},
		{Name: JobAutoConfirm, Interval: every5Min, Enabled: true, Run: m.AutoConfirmExpiredTasks},
		{Name: JobConfirmationReminders, Interval: every15Min, Enabled: true, Run: m.SendConfirmationReminders},
		{Name: JobStaleDisputes, Interval: daily, Enabled: true, Run: m.CheckStaleDisputes},
		{Name: JobAutoTransfer, Interval: every5Min, Enabled: true, Run: m.AutoTransferExpertTasks},
		{Name: JobAutoTransferReminders, Interval: daily, Enabled: true, Run: m.SendAutoTransferReminders},
		{Name: JobCleanupCompletedFiles, Interval: daily, Enabled: true, Run: m.CleanupCompletedTaskFiles},
		{Name: JobCleanupExpiredFiles, Interval: daily, Enabled: true, Run: m.CleanupExpiredTaskFiles},
		{Name: JobCleanupFleaMarket, Interval: daily, Enabled: true, Run: m.CleanupFleaMarketItems},
		{Name: JobCleanupTimeSlots, Interval: daily, Enabled: true, Run: m.CleanupExpiredTimeSlots},
		{Name: JobGenerateTimeSlots, Interval: daily, Enabled: true, Run: m.GenerateTimeSlots},
		{Name: JobExpireVIP, Interval: hourly, Enabled: true, Run: m.ExpireVIPSubscriptions},
		{Name: JobCleanupDeviceTokens, Interval: weekly, Enabled: false, Run: m.CleanupInactiveDeviceTokens},
		{Name: JobRetryTransfers, Interval: every10Min, Enabled: true, Run: m.RetryTransfers},
	}
}

// RegisterSuite registers every job of Suite on s.
func RegisterSuite(s *Scheduler, m Maintenance) error {
	for _, job := range Suite(m) {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}
