package main

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"link2ur.backend/internal/interfaces/http/handlers"
	"link2ur.backend/internal/interfaces/http/middleware"
)

// newRouter builds the HTTP engine over a fully wired app.
func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())
	applyCORSMiddleware(r, a.cfg.Server.FrontendURL)

	deps := routeDeps{
		taskHandler:         handlers.NewTaskHandler(a.tasks, a.cancellation),
		applicationHandler:  handlers.NewApplicationHandler(a.applications),
		chatHandler:         handlers.NewChatHandler(a.chat),
		notificationHandler: handlers.NewNotificationHandler(a.notifications),
		paymentHandler:      handlers.NewPaymentHandler(a.payments),
		fileHandler:         handlers.NewFileHandler(a.files),
		adminHandler:        handlers.NewAdminHandler(a.tasks, a.cancellation, a.payments, a.scheduler),
		healthHandler: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": handlers.PingFunc(pingDB(a)),
			"redis":    a.redis,
		}),
		sessionAuth:  middleware.SessionAuth(a.sessions),
		csrf:         middleware.CSRF(),
		staffAuth:    middleware.StaffAuth(),
		idempotency:  middleware.IdempotencyMiddleware(a.redis),
		publicPrefix: a.cfg.Storage.PublicBaseURL,
		publicDir:    a.files.PublicDir(),
	}
	if a.cfg.Server.MetricsEnabled {
		deps.metrics = a.metrics.Handler()
	}
	registerRoutes(r, deps)
	return r
}

// applyCORSMiddleware allows credentialed requests from the listed origins
// and answers preflights directly.
func applyCORSMiddleware(r *gin.Engine, origins ...string) {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && slices.Contains(allowed, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type",
			middleware.CSRFHeader,
			middleware.RequestIDHeader,
			middleware.IdempotencyHeader,
		}, ", "))
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func pingDB(a *app) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := a.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
