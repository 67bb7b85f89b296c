package usecases

import (
	"strings"

	"link2ur.backend/internal/domain/entities"
)

// notificationTemplate holds the bilingual text of one notification type.
// Placeholders are written {name} and filled from NotifyInput.Vars.
type notificationTemplate struct {
	Title     string
	Content   string
	TitleEn   string
	ContentEn string
}

var notificationTemplates = map[string]notificationTemplate{
	entities.NotificationTaskApplication: {
		"新的任务申请", "{user_name} 申请了任务「{task_title}」",
		"New application", "{user_name} applied for \"{task_title}\"",
	},
	entities.NotificationTaskAccepted: {
		"任务已被接受", "{user_name} 接受了任务「{task_title}」，请确认",
		"Task accepted", "{user_name} accepted \"{task_title}\". Please review the taker",
	},
	entities.NotificationTaskApproved: {
		"任务已批准", "发布者已批准你执行任务「{task_title}」",
		"Task approved", "The poster approved you for \"{task_title}\"",
	},
	entities.NotificationTaskRejected: {
		"任务未通过", "发布者拒绝了你对任务「{task_title}」的接单",
		"Task not approved", "The poster declined you for \"{task_title}\"",
	},
	entities.NotificationTaskCompleted: {
		"任务已完成", "任务「{task_title}」已标记完成，请在截止前确认",
		"Task completed", "\"{task_title}\" was marked complete. Please confirm before the deadline",
	},
	entities.NotificationTaskConfirmed: {
		"任务已确认", "发布者已确认任务「{task_title}」完成，款项将转入你的账户",
		"Completion confirmed", "The poster confirmed \"{task_title}\". Your payout is on its way",
	},
	entities.NotificationTaskAutoConfirmed: {
		"任务已自动确认", "任务「{task_title}」已超过确认期限，系统已自动确认",
		"Task auto-confirmed", "\"{task_title}\" passed its confirmation deadline and was confirmed automatically",
	},
	entities.NotificationTaskCancelled: {
		"任务已取消", "任务「{task_title}」已取消：{reason}",
		"Task cancelled", "\"{task_title}\" was cancelled: {reason}",
	},
	entities.NotificationTaskDeadlineReminder: {
		"任务即将截止", "任务「{task_title}」将在 {hours} 小时后截止",
		"Deadline approaching", "\"{task_title}\" is due in {hours} hours",
	},
	entities.NotificationTaskCancelRequest: {
		"取消申请", "任务「{task_title}」收到取消申请：{reason}",
		"Cancellation requested", "A cancellation was requested for \"{task_title}\": {reason}",
	},
	entities.NotificationTaskCancelReviewed: {
		"取消申请已处理", "任务「{task_title}」的取消申请已{result}",
		"Cancellation reviewed", "The cancellation request for \"{task_title}\" was {result_en}",
	},
	entities.NotificationTaskDispute: {
		"任务争议", "任务「{task_title}」有新的争议：{reason}",
		"Task dispute", "A dispute was raised on \"{task_title}\": {reason}",
	},
	entities.NotificationTaskReview: {
		"收到新评价", "你在任务「{task_title}」中收到了 {rating} 星评价",
		"New review", "You received a {rating}-star review on \"{task_title}\"",
	},
	entities.NotificationTaskMessage: {
		"新消息", "{user_name}：{message}",
		"New message", "{user_name}: {message}",
	},
	entities.NotificationApplicationAccepted: {
		"议价已接受", "{user_name} 接受了任务「{task_title}」的议价 £{amount}",
		"Offer accepted", "{user_name} accepted your offer of £{amount} for \"{task_title}\"",
	},
	entities.NotificationApplicationApproved: {
		"申请已通过", "你对任务「{task_title}」的申请已通过，请等待付款",
		"Application approved", "Your application for \"{task_title}\" was approved. Payment is pending",
	},
	entities.NotificationApplicationRejected: {
		"申请未通过", "你对任务「{task_title}」的申请未通过",
		"Application declined", "Your application for \"{task_title}\" was declined",
	},
	entities.NotificationApplicationWithdrawn: {
		"申请已撤回", "{user_name} 撤回了对任务「{task_title}」的申请",
		"Application withdrawn", "{user_name} withdrew their application for \"{task_title}\"",
	},
	entities.NotificationApplicationMessage: {
		"申请留言", "{user_name} 就任务「{task_title}」留言：{message}",
		"Application message", "{user_name} wrote about \"{task_title}\": {message}",
	},
	entities.NotificationNegotiationOffer: {
		"新的议价", "发布者为任务「{task_title}」提出了 £{amount} 的价格",
		"New counter-offer", "The poster offered £{amount} for \"{task_title}\"",
	},
	entities.NotificationNegotiationRejected: {
		"议价被拒绝", "{user_name} 拒绝了任务「{task_title}」的议价",
		"Counter-offer declined", "{user_name} declined your counter-offer for \"{task_title}\"",
	},
	entities.NotificationPaymentSucceeded: {
		"付款成功", "任务「{task_title}」已付款 £{amount}，任务开始进行",
		"Payment received", "£{amount} was paid for \"{task_title}\". The task is now in progress",
	},
	entities.NotificationPaymentFailed: {
		"付款失败", "任务「{task_title}」付款失败，请重试",
		"Payment failed", "Payment for \"{task_title}\" failed. Please try again",
	},
	entities.NotificationPaymentReminder: {
		"付款提醒", "任务「{task_title}」的付款将在 {hours} 小时后过期",
		"Payment reminder", "Payment for \"{task_title}\" expires in {hours} hours",
	},
	entities.NotificationConfirmReminder: {
		"确认提醒", "任务「{task_title}」将在 {hours} 小时后自动确认",
		"Confirmation reminder", "\"{task_title}\" will be confirmed automatically in {hours} hours",
	},
	entities.NotificationAutoConfirmTransfer: {
		"自动确认并转账", "任务「{task_title}」已自动确认，£{amount} 已转给服务提供者",
		"Auto-confirmed and paid", "\"{task_title}\" was confirmed automatically and £{amount} was paid out",
	},
	entities.NotificationAutoTransferRemind: {
		"自动转账提醒", "任务「{task_title}」将在 {days} 天后自动确认并转账",
		"Auto-transfer reminder", "\"{task_title}\" will be confirmed and paid out in {days} days",
	},
	entities.NotificationTransferFailed: {
		"转账失败", "任务「{task_title}」的转账失败，客服将跟进处理",
		"Payout failed", "The payout for \"{task_title}\" failed. Support will follow up",
	},
	entities.NotificationRefundRequested: {
		"退款申请", "任务「{task_title}」收到 £{amount} 的退款申请：{reason}",
		"Refund requested", "A refund of £{amount} was requested for \"{task_title}\": {reason}",
	},
	entities.NotificationRefundReviewed: {
		"退款申请已处理", "任务「{task_title}」的退款申请已{result}",
		"Refund reviewed", "The refund request for \"{task_title}\" was {result_en}",
	},
	entities.NotificationDisputeStale: {
		"争议待处理", "任务「{task_title}」的争议已超过 {days} 天未处理",
		"Dispute overdue", "The dispute on \"{task_title}\" has been open for over {days} days",
	},
	entities.NotificationProviderDispute: {
		"付款争议", "任务「{task_title}」的付款被发起争议，资金已冻结",
		"Payment disputed", "The payment for \"{task_title}\" was disputed and funds are frozen",
	},
	entities.NotificationVIPExpired: {
		"会员已到期", "你的会员已到期",
		"Membership expired", "Your membership has expired",
	},
}

// render fills the template for notificationType. Unknown types fall back to
// the raw type name so a missing template never blocks a transition.
func render(notificationType string, vars map[string]string) notificationTemplate {
	tpl, ok := notificationTemplates[notificationType]
	if !ok {
		tpl = notificationTemplate{notificationType, "", notificationType, ""}
	}
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return notificationTemplate{
		Title:     r.Replace(tpl.Title),
		Content:   r.Replace(tpl.Content),
		TitleEn:   r.Replace(tpl.TitleEn),
		ContentEn: r.Replace(tpl.ContentEn),
	}
}
