package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/config"
	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/internal/domain/repositories"
	"link2ur.backend/internal/infrastructure/payment"
	infraRepos "link2ur.backend/internal/infrastructure/repositories"
	"link2ur.backend/internal/testutil"
	"link2ur.backend/pkg/clock"
	"link2ur.backend/pkg/crypto"
	"link2ur.backend/pkg/redis"
)

const (
	posterID = "10000001"
	takerID  = "10000002"
	otherID  = "10000003"
	adminID  = "A0001"
)

// MockDispatcher records external deliveries.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Enqueue(ctx context.Context, msg entities.Dispatch) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// sentTemplates lists the templates enqueued for userID.
func (m *MockDispatcher) sentTemplates(userID string) []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method != "Enqueue" {
			continue
		}
		msg := c.Arguments.Get(1).(entities.Dispatch)
		if msg.UserID == userID {
			out = append(out, msg.Template)
		}
	}
	return out
}

type fakeFiles struct {
	mu      sync.Mutex
	images  []string
	blobs   []string
	signErr error
}

func (f *fakeFiles) SignedURL(blobID string, _ []string) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "/files/private/" + blobID + "?token=t", nil
}

func (f *fakeFiles) DeleteAll(_ context.Context, images, blobs []string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, images...)
	f.blobs = append(f.blobs, blobs...)
	return len(images) + len(blobs)
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) WebhookEvent(_ string, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome]++
}

type harness struct {
	store      *repositories.Store
	uow        repositories.UnitOfWork
	clock      *clock.Fake
	provider   *payment.Fake
	redis      *redis.Client
	mr         *miniredis.Miniredis
	dispatcher *MockDispatcher
	files      *fakeFiles
	observer   *countingObserver
	business   config.BusinessConfig

	notifier     *NotificationUsecase
	payments     *PaymentUsecase
	tasks        *TaskUsecase
	applications *ApplicationUsecase
	chat         *ChatUsecase
	cancellation *CancellationUsecase
	maintenance  *MaintenanceUsecase
}

func testBusiness() config.BusinessConfig {
	return config.BusinessConfig{
		VIPPriceThreshold:        decimal.NewFromInt(50),
		SuperVIPPriceThreshold:   decimal.NewFromInt(200),
		CleanupCompletedTaskDays: 3,
		CleanupExpiredTaskDays:   3,
		FleaMarketAutoDeleteDays: 10,
		CompletionPoints:         10,
		PaymentWindow:            24 * time.Hour,
		ConfirmationWindow:       120 * time.Hour,
		ExpertConfirmationGrace:  72 * time.Hour,
		StaleDisputeAge:          7 * 24 * time.Hour,
		AutoTransferBatchSize:    20,
		TransferRetryBase:        5 * time.Minute,
		TransferMaxAttempts:      3,
		PrestartNotesPerMinute:   1,
		PrestartNotesPerDay:      20,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	signer, err := crypto.NewCompactSigner([]byte("0123456789abcdef0123456789abcdef"), "negotiation")
	require.NoError(t, err)

	d := &MockDispatcher{}
	d.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()

	h := &harness{
		store:      infraRepos.NewStore(db),
		uow:        infraRepos.NewUnitOfWork(db),
		clock:      clock.NewFake(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)),
		provider:   payment.NewFake("whsec_test"),
		redis:      rc,
		mr:         mr,
		dispatcher: d,
		files:      &fakeFiles{},
		observer:   &countingObserver{},
		business:   testBusiness(),
	}
	h.notifier = NewNotificationUsecase(h.store.Notifications, h.uow, d, h.clock)
	h.payments = NewPaymentUsecase(h.store, h.uow, h.provider, h.notifier, rc, h.observer, h.business, h.clock)
	h.tasks = NewTaskUsecase(h.store, h.uow, h.notifier, h.payments, h.business, []string{"London", "Manchester"}, h.clock)
	h.applications = NewApplicationUsecase(h.store, h.uow, h.provider, signer,
		redis.NewTokenStore(rc, "negotiation_token:"), redis.NewTokenStore(rc, "negotiation_tokens:"),
		h.notifier, h.business, 5*time.Minute, h.clock)
	h.chat = NewChatUsecase(h.store, h.uow, h.files, redis.NewSlidingWindowLimiter(rc, h.clock.Now), h.notifier, h.business, h.clock)
	h.cancellation = NewCancellationUsecase(h.store, h.uow, h.provider, h.files, h.notifier, h.clock)
	h.maintenance = NewMaintenanceUsecase(h.store, h.uow, h.payments, h.cancellation, h.chat, h.notifier, h.files, h.business, h.clock)
	return h
}

func (h *harness) seedUser(t *testing.T, id string, mutate func(*entities.User)) *entities.User {
	t.Helper()
	u := &entities.User{ID: id, Name: "user-" + id, UserLevel: entities.UserTierNormal, CreatedAt: h.clock.Now()}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, h.store.Users.Create(context.Background(), u))
	return u
}

// seedPayee creates a user with an enabled payout account.
func (h *harness) seedPayee(t *testing.T, id string) *entities.User {
	t.Helper()
	acct := "acct_" + id
	return h.seedUser(t, id, func(u *entities.User) {
		u.StripeAccountID = &acct
		u.StripeAccountEnabled = true
	})
}

func (h *harness) seedAdmin(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.store.Staff.Create(context.Background(), &entities.Staff{
		ID: id, Name: "admin", Email: id + "@example.com", IsActive: true, CreatedAt: h.clock.Now(),
	}))
}

func (h *harness) seedTask(t *testing.T, mutate func(*entities.Task)) *entities.Task {
	t.Helper()
	now := h.clock.Now()
	deadline := now.Add(48 * time.Hour)
	task := &entities.Task{
		Title:       "Move boxes",
		Description: "Two flights of stairs",
		TaskType:    "Housekeeping",
		Location:    "London",
		BaseReward:  decimal.RequireFromString("30.00"),
		Currency:    entities.DefaultCurrency,
		Deadline:    &deadline,
		Status:      entities.TaskStatusOpen,
		TaskLevel:   entities.UserTierNormal,
		PosterID:    posterID,
		IsPublic:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mutate != nil {
		mutate(task)
	}
	require.NoError(t, h.store.Tasks.Create(context.Background(), task))
	return task
}

// seedPaidTask seeds a task in status with escrow funded by a settled intent
// and takerID assigned.
func (h *harness) seedPaidTask(t *testing.T, status entities.TaskStatus, mutate func(*entities.Task)) *entities.Task {
	t.Helper()
	return h.seedTask(t, func(task *entities.Task) {
		taker := takerID
		task.Status = status
		task.TakerID = &taker
		task.IsPaid = true
		task.EscrowAmount = decimal.RequireFromString("30.00")
		task.PaymentIntentID.SetValid("pi_seeded")
		if mutate != nil {
			mutate(task)
		}
	})
}

func (h *harness) reload(t *testing.T, id int64) *entities.Task {
	t.Helper()
	task, err := h.store.Tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (h *harness) notificationTypes(t *testing.T, userID string) []string {
	t.Helper()
	list, err := h.store.Notifications.ListUnread(context.Background(), userID)
	require.NoError(t, err)
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.Type)
	}
	return out
}

func ptrTime(t time.Time) *time.Time { return &t }
