package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is one sliding-window rule: at most Limit events per Period.
type Window struct {
	Limit  int64
	Period time.Duration
}

// SlidingWindowLimiter counts events in sorted sets keyed by
// "<key>:<period>", scored by unix-millis.
type SlidingWindowLimiter struct {
	client *Client
	now    func() time.Time
}

func NewSlidingWindowLimiter(client *Client, now func() time.Time) *SlidingWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindowLimiter{client: client, now: now}
}

// Allow records an event under key if every window still has room. It
// returns false (and records nothing) when any window is exhausted.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string, windows ...Window) (bool, error) {
	now := l.now()
	rdb := l.client.Raw()

	counts := make([]*redis.IntCmd, len(windows))
	pipe := rdb.TxPipeline()
	for i, w := range windows {
		k := windowKey(key, w)
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-w.Period).UnixMilli(), 10))
		counts[i] = pipe.ZCard(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	for i, w := range windows {
		if counts[i].Val() >= w.Limit {
			return false, nil
		}
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	pipe = rdb.TxPipeline()
	for _, w := range windows {
		k := windowKey(key, w)
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		pipe.Expire(ctx, k, w.Period)
	}
	_, err := pipe.Exec(ctx)
	return err == nil, err
}

func windowKey(key string, w Window) string {
	return fmt.Sprintf("%s:%d", key, int64(w.Period/time.Second))
}
