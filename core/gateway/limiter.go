package gateway

import (
	"context"
	"sync"
	"time"
)

// window is a sliding list of call timestamps.
type window struct {
	span  time.Duration
	calls []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}

// limiter enforces the minute and day quotas plus the inter-call delay.
type limiter struct {
	mu     sync.Mutex
	cfg    Config
	clock  Clock
	minute window
	day    window
	last   time.Time
}

func newLimiter(cfg Config, clock Clock) *limiter {
	return &limiter{
		cfg:    cfg,
		clock:  clock,
		minute: window{span: time.Minute},
		day:    window{span: 24 * time.Hour},
	}
}

// acquire blocks until a call may be issued and records it.
func (l *limiter) acquire(ctx context.Context) error {
	for {
		wait, err := l.reserve()
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a call and returns 0, or returns how long to wait first.
func (l *limiter) reserve() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.minute.prune(now)
	l.day.prune(now)

	if l.cfg.DayQuota > 0 && len(l.day.calls) >= l.cfg.DayQuota {
		return 0, ErrDailyQuotaExhausted
	}

	if l.cfg.MinuteQuota > 0 && len(l.minute.calls) >= l.cfg.MinuteQuota {
		return l.minute.calls[0].Add(time.Minute).Sub(now) + l.cfg.SafetyMargin, nil
	}

	delay := l.cfg.MinDelay
	if l.cfg.MinuteQuota > 0 && l.cfg.AdaptiveDelay > delay &&
		l.cfg.MinuteQuota-len(l.minute.calls) <= l.cfg.AdaptiveThreshold {
		delay = l.cfg.AdaptiveDelay
	}
	if !l.last.IsZero() && delay > 0 {
		if elapsed := now.Sub(l.last); elapsed < delay {
			return delay - elapsed, nil
		}
	}

	l.minute.calls = append(l.minute.calls, now)
	l.day.calls = append(l.day.calls, now)
	l.last = now
	return 0, nil
}

// Stats is a point-in-time view of quota usage.
type Stats struct {
	CallsLastMinute int `json:"calls_last_minute"`
	CallsLastDay    int `json:"calls_last_day"`
	MinuteRemaining int `json:"minute_remaining"`
	DayRemaining    int `json:"day_remaining"`
}

func (l *limiter) stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.minute.prune(now)
	l.day.prune(now)

	s := Stats{
		CallsLastMinute: len(l.minute.calls),
		CallsLastDay:    len(l.day.calls),
		MinuteRemaining: -1,
		DayRemaining:    -1,
	}
	if l.cfg.MinuteQuota > 0 {
		s.MinuteRemaining = l.cfg.MinuteQuota - s.CallsLastMinute
	}
	if l.cfg.DayQuota > 0 {
		s.DayRemaining = l.cfg.DayQuota - s.CallsLastDay
	}
	return s
}
