package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"link2ur.backend/internal/domain/entities"
	"link2ur.backend/pkg/logger"
)

var (
	ErrDispatcherStopped = errors.New("dispatcher stopped")
	ErrQueueFull         = errors.New("dispatch queue full")
)

// Deduper claims an idempotency key once; pkg/redis.Client satisfies it.
type Deduper interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// Observer receives dispatcher events; metrics.Collector satisfies it.
type Observer interface {
	DispatchDropped()
	DispatchFailed(channel string)
}

const dedupeTTL = 48 * time.Hour

// Dispatcher is a bounded async queue drained by a fixed set of workers.
// Enqueue never blocks; deliveries that fail are logged and dropped.
type Dispatcher struct {
	sender   Sender
	dedupe   Deduper
	observer Observer
	timeout  time.Duration

	queue   chan entities.Dispatch
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// Options tunes a dispatcher. Zero values select defaults.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Dedupe      Deduper
	Observer    Observer
}

func NewDispatcher(sender Sender, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	d := &Dispatcher{
		sender:   sender,
		dedupe:   opts.Dedupe,
		observer: opts.Observer,
		timeout:  opts.SendTimeout,
		queue:    make(chan entities.Dispatch, opts.QueueSize),
	}
	d.start(opts.Workers)
	return d
}

func (d *Dispatcher) start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for msg := range d.queue {
				d.deliver(msg)
			}
		}()
	}
}

// Enqueue hands msg to the workers without blocking.
func (d *Dispatcher) Enqueue(ctx context.Context, msg entities.Dispatch) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		logger.Warn(ctx, "Dispatch queue full, dropping notification",
			zap.String("user_id", msg.UserID),
			zap.String("template", msg.Template),
		)
		if d.observer != nil {
			d.observer.DispatchDropped()
		}
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued deliveries until ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(msg entities.Dispatch) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if msg.IdempotencyKey != "" && d.dedupe != nil {
		first, err := d.dedupe.SetNX(ctx, "dispatch:"+msg.IdempotencyKey, "1", dedupeTTL)
		if err != nil {
			logger.Warn(ctx, "Dispatch dedupe unavailable", zap.Error(err))
		} else if !first {
			return
		}
	}

	for _, ch := range msg.Channels {
		err := d.sender.Send(ctx, Message{
			UserID:   msg.UserID,
			Channel:  ch,
			Template: msg.Template,
			Vars:     msg.TemplateVars,
		})
		if err != nil {
			logger.Warn(ctx, "Notification delivery failed",
				zap.String("user_id", msg.UserID),
				zap.String("channel", string(ch)),
				zap.String("template", msg.Template),
				zap.Error(err),
			)
			if d.observer != nil {
				d.observer.DispatchFailed(string(ch))
			}
		}
	}
}
