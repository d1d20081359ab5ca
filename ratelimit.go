package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultRequestsPerSecond = 1.0
	DefaultDailyQuota        = 100
)

// RateLimiter paces outbound requests and caps them per UTC calendar day.
// One limiter is shared by every executor that talks to the same API account.
type RateLimiter struct {
	mu     sync.Mutex
	rps    float64
	daily  int
	day    time.Time
	count  int
	last   time.Time
	pacing *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter allowing rps requests per second and daily requests per UTC day.
// Non-positive values fall back to the defaults.
func NewRateLimiter(rps float64, daily int) *RateLimiter {
	if rps <= 0 {
		slog.Warn("Invalid requests per second, using default", "rps", rps, "default", DefaultRequestsPerSecond)
		rps = DefaultRequestsPerSecond
	}
	if daily <= 0 {
		slog.Warn("Invalid daily quota, using default", "daily", daily, "default", DefaultDailyQuota)
		daily = DefaultDailyQuota
	}
	l := &RateLimiter{
		rps:    rps,
		daily:  daily,
		pacing: rate.NewLimiter(rate.Limit(rps), 1),
		now:    time.Now,
		sleep:  sleepContext,
	}
	l.day = utcDay(l.now())
	return l
}

// sleepContext blocks for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MinInterval is the pacing interval derived from the requests-per-second rate
func (l *RateLimiter) MinInterval() time.Duration {
	return time.Duration(float64(time.Second) / l.rps)
}

// Acquire blocks until a request may be sent. It returns ErrQuotaExceeded when the
// daily quota is spent and ErrCancelled if ctx ends while waiting.
// The lock is held while sleeping so concurrent callers queue behind each other.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if today := utcDay(now); !today.Equal(l.day) {
		slog.Debug("UTC day advanced, resetting daily count", "previous", l.day.Format(time.DateOnly), "today", today.Format(time.DateOnly), "count", l.count)
		l.day = today
		l.count = 0
	}

	if l.count >= l.daily {
		slog.Warn("Daily quota exhausted", "quota", l.daily, "day", l.day.Format(time.DateOnly))
		return ErrQuotaExceeded
	}

	// Burst of one; spacing is also measured from the last completion
	r := l.pacing.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	if !l.last.IsZero() {
		wait = max(wait, l.MinInterval()-now.Sub(l.last))
	}
	if wait > 0 {
		slog.Debug("Pacing request", "sleep", wait)
		if err := l.sleep(ctx, wait); err != nil {
			r.CancelAt(l.now())
			return ErrCancelled
		}
	}

	// Never move the timestamp backwards, even if the wall clock does
	if now = l.now(); now.After(l.last) {
		l.last = now
	}
	l.count++
	return nil
}

// Snapshot returns a copy of the current limiter state
func (l *RateLimiter) Snapshot() RateLimiterState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return RateLimiterState{
		RequestsPerSecond: l.rps,
		DailyQuota:        l.daily,
		CurrentDay:        l.day,
		CountToday:        l.count,
		LastRequest:       l.last,
	}
}

// Restore seeds today's request count from persisted usage. Counts for any other
// day are ignored; the value is clamped to the quota.
func (l *RateLimiter) Restore(day time.Time, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := utcDay(l.now())
	if !utcDay(day).Equal(today) {
		slog.Debug("Ignoring stale quota usage", "day", day.Format(time.DateOnly))
		return
	}
	count = max(0, min(count, l.daily))
	if !l.day.Equal(today) {
		l.count = 0
	}
	l.day = today
	l.count = max(l.count, count)
	slog.Debug("Restored quota usage", "day", today.Format(time.DateOnly), "count", l.count)
}
