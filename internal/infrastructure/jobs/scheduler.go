// Package jobs runs the periodic maintenance suite inside the server process.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"link2ur.backend/internal/config"
	"link2ur.backend/pkg/logger"
)

var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrDuplicateJob = errors.New("job already registered")
	ErrStarted      = errors.New("scheduler already started")
)

// RunFunc performs one pass of a job and reports how many items it handled.
// Implementations must return promptly once ctx is done.
type RunFunc func(ctx context.Context) (int, error)

// Job is a registered periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Enabled  bool
	Run      RunFunc
}

// Observer records job outcomes; metrics.Collector satisfies it.
type Observer interface {
	ObserveJob(job string, took time.Duration, items int, err error)
}

// Scheduler owns one ticker goroutine per enabled job. Each run gets its
// own context bounded by the job timeout, and a run never overlaps with
// the previous run of the same job.
type Scheduler struct {
	timeout  time.Duration
	observer Observer

	mu      sync.Mutex
	jobs    map[string]*Job
	running map[string]*sync.Mutex

	stopping atomic.Bool
	cancel   context.CancelFunc
	group    *errgroup.Group
}

func NewScheduler(timeout time.Duration, observer Observer) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		timeout:  timeout,
		observer: observer,
		jobs:     make(map[string]*Job),
		running:  make(map[string]*sync.Mutex),
	}
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return fmt.Errorf("register job %q: name, interval and run are required", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return ErrStarted
	}
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	j := job
	s.jobs[job.Name] = &j
	s.running[job.Name] = &sync.Mutex{}
	return nil
}

// ApplyOverrides adjusts cadence and enablement from configuration. Unknown
// names are logged and ignored.
func (s *Scheduler) ApplyOverrides(overrides map[string]config.JobOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, o := range overrides {
		j, ok := s.jobs[name]
		if !ok {
			logger.Warn(context.Background(), "Override for unknown job ignored", zap.String("job", name))
			continue
		}
		if o.Interval > 0 {
			j.Interval = o.Interval
		}
		if o.Enabled != nil {
			j.Enabled = *o.Enabled
		}
	}
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Start launches every enabled job. Each job runs once immediately and then
// on its interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return ErrStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)

	enabled := 0
	for _, j := range s.jobs {
		if !j.Enabled {
			logger.Info(ctx, "Job disabled", zap.String("job", j.Name))
			continue
		}
		job := *j
		enabled++
		s.group.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}
	logger.Info(ctx, "Scheduler started", zap.Int("jobs", enabled))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.execute(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.stopping.Load() {
				return
			}
			s.execute(ctx, job)
		}
	}
}

// Stop flips the shutdown flag, cancels in-flight runs and waits for every
// job goroutine to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopping.Store(true)

	s.mu.Lock()
	cancel, group := s.cancel, s.group
	s.mu.Unlock()
	if group == nil {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		logger.Info(ctx, "Scheduler stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShuttingDown reports whether Stop has been called.
func (s *Scheduler) ShuttingDown() bool {
	return s.stopping.Load()
}

// RunOnce executes a registered job immediately, enabled or not.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	var job Job
	if ok {
		job = *j
	}
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job)
}

func (s *Scheduler) execute(parent context.Context, job Job) (items int, err error) {
	if s.stopping.Load() {
		return 0, nil
	}
	lock := s.running[job.Name]
	if !lock.TryLock() {
		logger.Warn(parent, "Previous run still in progress, skipping", zap.String("job", job.Name))
		return 0, nil
	}
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(logger.WithJob(parent, job.Name), s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		took := time.Since(start)
		if s.observer != nil {
			s.observer.ObserveJob(job.Name, took, items, err)
		}
		switch {
		case err != nil:
			logger.Error(ctx, "Job run failed", zap.Int("items", items), zap.Duration("took", took), zap.Error(err))
		case items > 0:
			logger.Info(ctx, "Job run finished", zap.Int("items", items), zap.Duration("took", took))
		default:
			logger.Debug(ctx, "Job run finished", zap.Duration("took", took))
		}
	}()

	return job.Run(ctx)
}
