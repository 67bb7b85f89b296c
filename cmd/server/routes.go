package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"link2ur.backend/internal/interfaces/http/handlers"
)

type routeDeps struct {
	taskHandler         *handlers.TaskHandler
	applicationHandler  *handlers.ApplicationHandler
	chatHandler         *handlers.ChatHandler
	notificationHandler *handlers.NotificationHandler
	paymentHandler      *handlers.PaymentHandler
	fileHandler         *handlers.FileHandler
	adminHandler        *handlers.AdminHandler
	healthHandler       *handlers.HealthHandler

	sessionAuth gin.HandlerFunc
	csrf        gin.HandlerFunc
	staffAuth   gin.HandlerFunc
	idempotency gin.HandlerFunc

	// metrics is nil when the endpoint is disabled.
	metrics      http.Handler
	publicPrefix string
	publicDir    string
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/health", d.healthHandler.Health)
	if d.metrics != nil {
		r.GET("/metrics", gin.WrapH(d.metrics))
	}
	if d.publicDir != "" {
		r.Static(d.publicPrefix, d.publicDir)
	}

	api := r.Group("/api")

	// Public
	api.POST("/stripe/webhook", d.paymentHandler.Webhook)
	api.GET("/tasks", d.taskHandler.ListTasks)
	api.GET("/tasks/cities", d.taskHandler.Cities)
	api.GET("/tasks/:id", d.taskHandler.GetTask)

	user := api.Group("")
	user.Use(d.sessionAuth, d.csrf)
	{
		tasks := user.Group("/tasks")
		{
			tasks.POST("", d.taskHandler.CreateTask)
			tasks.GET("/:id/history", d.taskHandler.GetHistory)
			tasks.POST("/:id/accept", d.taskHandler.AcceptTask)
			tasks.POST("/:id/approve", d.taskHandler.ApproveTaker)
			tasks.POST("/:id/reject", d.taskHandler.RejectTaker)
			tasks.POST("/:id/complete", d.taskHandler.CompleteTask)
			tasks.POST("/:id/confirm_completion", d.idempotency, d.taskHandler.ConfirmCompletion)
			tasks.POST("/:id/cancel", d.taskHandler.CancelTask)
			tasks.POST("/:id/dispute", d.taskHandler.RaiseDispute)
			tasks.POST("/:id/review", d.taskHandler.ReviewTask)
			tasks.POST("/:id/refund-request", d.idempotency, d.paymentHandler.RequestRefund)
			tasks.GET("/:id/transfers", d.paymentHandler.ListTransfers)

			tasks.POST("/:id/apply", d.applicationHandler.Apply)
			tasks.GET("/:id/applications", d.applicationHandler.ListApplications)
			tasks.POST("/:id/applications/:aid/accept", d.idempotency, d.applicationHandler.AcceptApplication)
			tasks.POST("/:id/applications/:aid/reject", d.applicationHandler.RejectApplication)
			tasks.POST("/:id/applications/:aid/withdraw", d.applicationHandler.WithdrawApplication)
			tasks.POST("/:id/applications/:aid/negotiate", d.applicationHandler.Negotiate)
			tasks.POST("/:id/applications/:aid/respond-negotiation", d.idempotency, d.applicationHandler.RespondNegotiation)
			tasks.POST("/:id/applications/:aid/send-message", d.applicationHandler.SendMessage)
			tasks.POST("/:id/applications/:aid/reply-message", d.applicationHandler.SendMessage)
		}

		messages := user.Group("/messages")
		{
			messages.GET("/tasks", d.chatHandler.ListTaskChats)
			messages.GET("/tasks/unread/count", d.chatHandler.UnreadTotal)
			messages.GET("/task/:id", d.chatHandler.History)
			messages.GET("/task/:id/unread/count", d.chatHandler.UnreadCount)
			messages.POST("/task/:id/send", d.chatHandler.SendMessage)
			messages.POST("/task/:id/read", d.chatHandler.MarkRead)
		}

		notifications := user.Group("/notifications")
		{
			notifications.GET("/with-recent-read", d.notificationHandler.WithRecentRead)
			notifications.GET("/unread/count", d.notificationHandler.UnreadCount)
			notifications.POST("/read-all", d.notificationHandler.MarkAllRead)
			notifications.POST("/:id/read", d.notificationHandler.MarkRead)
			notifications.GET("/:id/negotiation-tokens", d.applicationHandler.NegotiationTokens)
		}

		stripe := user.Group("/stripe")
		{
			stripe.POST("/connect/account", d.paymentHandler.ConnectAccount)
			stripe.POST("/connect/account-session", d.paymentHandler.AccountSession)
			stripe.POST("/ephemeral-key", d.paymentHandler.EphemeralKey)
		}

		user.POST("/upload/image", d.fileHandler.UploadImage)
		user.POST("/upload/file", d.fileHandler.UploadFile)
		user.GET("/files/private/*blob", d.fileHandler.GetPrivateFile)
	}

	admin := api.Group("/admin")
	admin.Use(d.staffAuth)
	{
		admin.POST("/disputes/:id/resolve", d.adminHandler.ResolveDispute)
		admin.POST("/cancel-requests/:id/review", d.adminHandler.ReviewCancelRequest)
		admin.POST("/refunds/:id/review", d.adminHandler.ReviewRefund)
		admin.DELETE("/tasks/:id", d.adminHandler.DeleteTask)
		admin.GET("/jobs", d.adminHandler.ListJobs)
		admin.POST("/jobs/:name/run", d.adminHandler.RunJob)
	}
}
