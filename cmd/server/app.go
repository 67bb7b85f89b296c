package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"link2ur.backend/internal/config"
	domainRepos "link2ur.backend/internal/domain/repositories"
	"link2ur.backend/internal/infrastructure/datasources/postgres"
	"link2ur.backend/internal/infrastructure/jobs"
	"link2ur.backend/internal/infrastructure/metrics"
	"link2ur.backend/internal/infrastructure/notify"
	"link2ur.backend/internal/infrastructure/payment"
	infraRepos "link2ur.backend/internal/infrastructure/repositories"
	"link2ur.backend/internal/infrastructure/storage"
	"link2ur.backend/internal/usecases"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/crypto"
	"link2ur.backend/pkg/jwt"
	"link2ur.backend/pkg/logger"
	"link2ur.backend/pkg/redis"
)

var (
	openDB    = postgres.NewConnection
	openRedis = redis.New
)

// app holds every long-lived dependency of the process.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	redis      *redis.Client
	sessions   *redis.SessionStore
	metrics    *metrics.Collector
	dispatcher *notify.Dispatcher
	scheduler  *jobs.Scheduler
	files      *storage.Local
	provider   usecases.PaymentProvider
	store      *domainRepos.Store

	notifications *usecases.NotificationUsecase
	payments      *usecases.PaymentUsecase
	tasks         *usecases.TaskUsecase
	applications  *usecases.ApplicationUsecase
	chat          *usecases.ChatUsecase
	cancellation  *usecases.CancellationUsecase
	maintenance   *usecases.MaintenanceUsecase
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.close(ctx)
		}
	}()

	if a.db, err = openDB(cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if a.redis, err = openRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	if a.sessions, err = redis.NewSessionStore(a.redis, cfg.Security.SessionEncryptionKey); err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	if a.provider, err = newPaymentProvider(ctx, cfg); err != nil {
		return nil, err
	}

	fileURLs := jwt.NewFileURLService([]byte(cfg.Security.ImageAccessSecret), cfg.Storage.URLExpiry, nil)
	if a.files, err = storage.NewLocal(cfg.Storage.Root, cfg.Storage.PublicBaseURL, cfg.Storage.PrivateBaseURL, fileURLs); err != nil {
		return nil, err
	}
	negotiationSigner, err := crypto.NewCompactSigner([]byte(cfg.Security.NegotiationTokenSecret), "negotiation")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize negotiation signer: %w", err)
	}

	a.dispatcher = notify.NewDispatcher(notify.Router{Default: notify.LogSender{}}, notify.Options{
		Dedupe:   a.redis,
		Observer: a.metrics,
	})

	store := infraRepos.NewStore(a.db)
	a.store = store
	uow := infraRepos.NewUnitOfWork(a.db)
	clk := clock.Real()

	a.notifications = usecases.NewNotificationUsecase(store.Notifications, uow, a.dispatcher, clk)
	a.payments = usecases.NewPaymentUsecase(store, uow, a.provider, a.notifications, a.redis, a.metrics, cfg.Business, clk)
	a.tasks = usecases.NewTaskUsecase(store, uow, a.notifications, a.payments, cfg.Business, cfg.Runtime.Cities, clk)
	a.applications = usecases.NewApplicationUsecase(store, uow, a.provider, negotiationSigner,
		redis.NewTokenStore(a.redis, "negotiation_token:"), redis.NewTokenStore(a.redis, "negotiation_tokens:"),
		a.notifications, cfg.Business, cfg.Security.NegotiationTokenTTL, clk)
	a.chat = usecases.NewChatUsecase(store, uow, a.files, redis.NewSlidingWindowLimiter(a.redis, clk.Now), a.notifications, cfg.Business, clk)
	a.cancellation = usecases.NewCancellationUsecase(store, uow, a.provider, a.files, a.notifications, clk)
	a.maintenance = usecases.NewMaintenanceUsecase(store, uow, a.payments, a.cancellation, a.chat, a.notifications, a.files, cfg.Business, clk)

	if a.scheduler, err = newScheduler(cfg, a.maintenance, a.metrics); err != nil {
		return nil, err
	}
	return a, nil
}

// newPaymentProvider returns the Stripe adapter, or the in-memory provider
// outside production when no key is configured.
func newPaymentProvider(ctx context.Context, cfg *config.Config) (usecases.PaymentProvider, error) {
	if cfg.Stripe.SecretKey != "" {
		return payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.ConnectCountry), nil
	}
	if cfg.Server.IsProduction() {
		return nil, errors.New("STRIPE_SECRET_KEY is required in production")
	}
	logger.Warn(ctx, "STRIPE_SECRET_KEY not set, using the in-memory payment provider")
	return payment.NewFake(cfg.Stripe.WebhookSecret), nil
}

// newScheduler registers the maintenance suite with configured overrides.
func newScheduler(cfg *config.Config, m jobs.Maintenance, observer jobs.Observer) (*jobs.Scheduler, error) {
	s := jobs.NewScheduler(cfg.Scheduler.JobTimeout, observer)
	if err := jobs.RegisterSuite(s, m); err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}
	s.ApplyOverrides(cfg.Runtime.Jobs)
	return s, nil
}

// close drains the dispatcher and releases connections. It is safe on a
// partially built app.
func (a *app) close(ctx context.Context) {
	if a.dispatcher != nil {
		if err := a.dispatcher.Stop(ctx); err != nil {
			logger.Warn(ctx, "Notification dispatcher did not drain", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
