package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local fixed-window limiter, used when Redis is
// not configured. The counter mutation happens under one lock so two
// concurrent requests cannot both take the last slot.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Check consumes one slot for identity in the bucket's current window.
func (l *MemoryLimiter) Check(_ context.Context, bucket Bucket, identity string) (Result, error) {
	now := l.now()
	start := windowStart(now, bucket.Window)
	key := bucket.Name + ":" + identity

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || w.start.Before(start) {
		w = &memoryWindow{start: start}
		l.windows[key] = w
	}
	w.count++
	count := w.count
	if len(l.windows) > 100000 {
		l.pruneLocked(start)
	}
	l.mu.Unlock()

	return resultFor(bucket, count, start, now), nil
}

func (l *MemoryLimiter) pruneLocked(activeStart time.Time) {
	for key, w := range l.windows {
		if w.start.Before(activeStart) {
			delete(l.windows, key)
		}
	}
}
