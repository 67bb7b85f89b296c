package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"link2ur.backend/internal/config"
)

type observation struct {
	job   string
	items int
	err   error
}

type observerStub struct {
	mu  sync.Mutex
	obs []observation
}

func (o *observerStub) ObserveJob(job string, _ time.Duration, items int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, observation{job: job, items: items, err: err})
}

func (o *observerStub) all() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observation(nil), o.obs...)
}

func countingJob(name string, counter *atomic.Int32) Job {
	return Job{
		Name:     name,
		Interval: time.Hour,
		Enabled:  true,
		Run: func(context.Context) (int, error) {
			counter.Add(1)
			return 2, nil
		},
	}
}

func TestScheduler_RegisterValidates(t *testing.T) {
	s := NewScheduler(time.Second, nil)
	var n atomic.Int32

	require.NoError(t, s.Register(countingJob("a", &n)))
	assert.ErrorIs(t, s.Register(countingJob("a", &n)), ErrDuplicateJob)
	assert.Error(t, s.Register(Job{Name: "b", Interval: time.Minute}))
	assert.Error(t, s.Register(Job{Name: "c", Run: func(context.Context) (int, error) { return 0, nil }}))
}

func TestScheduler_ApplyOverrides(t *testing.T) {
	s := NewScheduler(time.Second, nil)
	var n atomic.Int32
	require.NoError(t, s.Register(countingJob("a", &n)))
	require.NoError(t, s.Register(countingJob("b", &n)))

	off := false
	s.ApplyOverrides(map[string]config.JobOverride{
		"a":       {Interval: 2 * time.Minute},
		"b":       {Enabled: &off},
		"missing": {Interval: time.Second},
	})

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, 2*time.Minute, jobs[0].Interval)
	assert.True(t, jobs[0].Enabled)
	assert.Equal(t, time.Hour, jobs[1].Interval)
	assert.False(t, jobs[1].Enabled)
}

func TestScheduler_RunOnce(t *testing.T) {
	obs := &observerStub{}
	s := NewScheduler(time.Second, obs)
	var n atomic.Int32
	require.NoError(t, s.Register(countingJob("a", &n)))

	items, err := s.RunOnce(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, items)
	assert.Equal(t, int32(1), n.Load())
	assert.Equal(t, []observation{{job: "a", items: 2}}, obs.all())

	_, err = s.RunOnce(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestScheduler_RunRecoversPanics(t *testing.T) {
	obs := &observerStub{}
	s := NewScheduler(time.Second, obs)
	require.NoError(t, s.Register(Job{
		Name:     "boom",
		Interval: time.Hour,
		Run:      func(context.Context) (int, error) { panic("bad row") },
	}))

	_, err := s.RunOnce(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad row")
	require.Len(t, obs.all(), 1)
	assert.Error(t, obs.all()[0].err)
}

func TestScheduler_RunHonoursJobTimeout(t *testing.T) {
	s := NewScheduler(20*time.Millisecond, nil)
	require.NoError(t, s.Register(Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}))

	start := time.Now()
	_, err := s.RunOnce(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestScheduler_StartRunsEnabledJobsAndStops(t *testing.T) {
	s := NewScheduler(time.Second, nil)
	var enabled, disabled atomic.Int32
	require.NoError(t, s.Register(countingJob("on", &enabled)))
	off := countingJob("off", &disabled)
	off.Enabled = false
	require.NoError(t, s.Register(off))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrStarted)
	assert.ErrorIs(t, s.Register(countingJob("late", &enabled)), ErrStarted)

	require.Eventually(t, func() bool { return enabled.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, s.ShuttingDown())
	assert.Equal(t, int32(0), disabled.Load())

	items, err := s.RunOnce(context.Background(), "on")
	require.NoError(t, err)
	assert.Zero(t, items, "runs are skipped once shutdown begins")
}

func TestScheduler_StopCancelsInFlightRun(t *testing.T) {
	s := NewScheduler(time.Minute, nil)
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Register(Job{
		Name:     "long",
		Interval: time.Hour,
		Enabled:  true,
		Run: func(ctx context.Context) (int, error) {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return 0, ctx.Err()
		},
	}))

	require.NoError(t, s.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, cancelled.Load())
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := NewScheduler(0, nil)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(time.Second, nil)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var calls atomic.Int32
	require.NoError(t, s.Register(Job{
		Name:     "blocking",
		Interval: time.Hour,
		Run: func(context.Context) (int, error) {
			calls.Add(1)
			entered <- struct{}{}
			<-release
			return 1, nil
		},
	}))

	done := make(chan struct{})
	go func() {
		_, _ = s.RunOnce(context.Background(), "blocking")
		close(done)
	}()
	<-entered

	items, err := s.RunOnce(context.Background(), "blocking")
	require.NoError(t, err)
	assert.Zero(t, items)

	close(release)
	<-done
	assert.Equal(t, int32(1), calls.Load())
}

type maintenanceStub struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (m *maintenanceStub) hit(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
	if name == m.fail {
		return 0, errors.New(name + " failed")
	}
	return 1, nil
}

func (m *maintenanceStub) ExpirePromotions(context.Context) (int, error) {
	return m.hit(JobExpirePromotions)
}
func (m *maintenanceStub) ExpirePoints(context.Context) (int, error) { return m.hit(JobExpirePoints) }
func (m *maintenanceStub) CancelExpiredOpenTasks(context.Context) (int, error) {
	return m.hit(JobCancelExpiredOpenTasks)
}
func (m *maintenanceStub) CancelExpiredPayments(context.Context) (int, error) {
	return m.hit(JobCancelExpiredPayments)
}
func (m *maintenanceStub) SendPaymentReminders(context.Context) (int, error) {
	return m.hit(JobPaymentReminders)
}
func (m *maintenanceStub) SendDeadlineReminders(context.Context) (int, error) {
	return m.hit(JobDeadlineReminders)
}
func (m *maintenanceStub) AutoConfirmExpiredTasks(context.Context) (int, error) {
	return m.hit(JobAutoConfirm)
}
func (m *maintenanceStub) SendConfirmationReminders(context.Context) (int, error) {
	return m.hit(JobConfirmationReminders)
}
func (m *maintenanceStub) CheckStaleDisputes(context.Context) (int, error) {
	return m.hit(JobStaleDisputes)
}
func (m *maintenanceStub) AutoTransferExpertTasks(context.Context) (int, error) {
	return m.hit(JobAutoTransfer)
}
func (m *maintenanceStub) SendAutoTransferReminders(context.Context) (int, error) {
	return m.hit(JobAutoTransferReminders)
}
func (m *maintenanceStub) CleanupCompletedTaskFiles(context.Context) (int, error) {
	return m.hit(JobCleanupCompletedFiles)
}
func (m *maintenanceStub) CleanupExpiredTaskFiles(context.Context) (int, error) {
	return m.hit(JobCleanupExpiredFiles)
}
func (m *maintenanceStub) CleanupFleaMarketItems(context.Context) (int, error) {
	return m.hit(JobCleanupFleaMarket)
}
func (m *maintenanceStub) CleanupExpiredTimeSlots(context.Context) (int, error) {
	return m.hit(JobCleanupTimeSlots)
}
func (m *maintenanceStub) GenerateTimeSlots(context.Context) (int, error) {
	return m.hit(JobGenerateTimeSlots)
}
func (m *maintenanceStub) ExpireVIPSubscriptions(context.Context) (int, error) {
	return m.hit(JobExpireVIP)
}
func (m *maintenanceStub) CleanupInactiveDeviceTokens(context.Context) (int, error) {
	return m.hit(JobCleanupDeviceTokens)
}
func (m *maintenanceStub) RetryTransfers(context.Context) (int, error) {
	return m.hit(JobRetryTransfers)
}

func TestSuite_RegistersEveryJob(t *testing.T) {
	stub := &maintenanceStub{fail: JobAutoTransfer}
	obs := &observerStub{}
	s := NewScheduler(time.Second, obs)
	require.NoError(t, RegisterSuite(s, stub))

	jobs := s.Jobs()
	require.Len(t, jobs, 19)
	for _, j := range jobs {
		if j.Name == JobCleanupDeviceTokens {
			assert.False(t, j.Enabled, "device token cleanup is disabled by policy")
			continue
		}
		assert.True(t, j.Enabled, j.Name)
	}

	for _, j := range jobs {
		_, err := s.RunOnce(context.Background(), j.Name)
		if j.Name == JobAutoTransfer {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err, j.Name)
	}
	assert.Len(t, stub.calls, 19)
	assert.Len(t, obs.all(), 19)
}

func TestSuite_Cadences(t *testing.T) {
	byName := map[string]time.Duration{}
	for _, j := range Suite(&maintenanceStub{}) {
		byName[j.Name] = j.Interval
	}
	assert.Equal(t, time.Minute, byName[JobCancelExpiredOpenTasks])
	assert.Equal(t, time.Minute, byName[JobCancelExpiredPayments])
	assert.Equal(t, 15*time.Minute, byName[JobPaymentReminders])
	assert.Equal(t, 5*time.Minute, byName[JobAutoConfirm])
	assert.Equal(t, 5*time.Minute, byName[JobAutoTransfer])
	assert.Equal(t, 10*time.Minute, byName[JobRetryTransfers])
	assert.Equal(t, time.Hour, byName[JobExpireVIP])
	assert.Equal(t, 24*time.Hour, byName[JobStaleDisputes])
	assert.Equal(t, 7*24*time.Hour, byName[JobCleanupDeviceTokens])
}
