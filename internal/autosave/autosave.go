// Package autosave wraps an asynchronous save operation with debounce,
// retry/backoff, and rollback to the last durably saved snapshot.
package autosave

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"
)

// State is the controller's observable lifecycle phase.
type State string

const (
	StateIdle            State = "idle"
	StatePendingDebounce State = "pending"
	StateSaving          State = "saving"
	StateFailed          State = "failed"
)

const (
	DefaultDelay      = 2 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// ErrSaveInProgress is returned by Save when another save is already running.
var ErrSaveInProgress = errors.New("save already in progress")

// SaveFunc persists a value durably.
type SaveFunc[T any] func(ctx context.Context, value T) error

// Hooks are observer callbacks invoked by the controller. Presentation
// (toasts, banners) belongs to the caller; the controller only reports.
type Hooks[T any] struct {
	OnRetry    func(attempt int, lastErr error)
	OnSuccess  func(saved T)
	OnError    func(err error)
	OnRollback func(restored T)
}

// Controller tracks an editing value and keeps it reconciled with a durable
// store. Only one save attempt is in flight at a time; a debounce timer that
// fires mid-save skips, and the completing save re-arms it so the newer
// value is picked up without another Update.
type Controller[T any] struct {
	mu         sync.Mutex
	save       SaveFunc[T]
	hooks      Hooks[T]
	delay      time.Duration
	maxRetries int
	retryDelay time.Duration

	tracked       T
	lastScheduled T
	snapshot      T
	savedAt       time.Time
	state         State
	saving        bool
	timer         *time.Timer
	lastErr       error
}

// New creates a controller seeded with initial as both the tracked value and
// the saved snapshot (the caller loaded it from the store, so it is durable).
func New[T any](initial T, save SaveFunc[T], delay time.Duration, maxRetries int, retryDelay time.Duration, hooks Hooks[T]) *Controller[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Controller[T]{
		save:          save,
		hooks:         hooks,
		delay:         delay,
		maxRetries:    maxRetries,
		retryDelay:    retryDelay,
		tracked:       initial,
		lastScheduled: initial,
		snapshot:      initial,
		state:         StateIdle,
	}
}

// Update records a new tracked value. Change detection compares against the
// last scheduled value, not the last saved one, so a newer save can be
// scheduled even while a previous save is still in flight. Any armed
// debounce timer is cancelled and re-armed.
func (c *Controller[T]) Update(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = value
	if reflect.DeepEqual(value, c.lastScheduled) {
		return
	}
	c.lastScheduled = value
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.state != StateSaving {
		c.state = StatePendingDebounce
	}
	c.timer = time.AfterFunc(c.delay, c.timerFired)
}

// Save forces an immediate save of the tracked value, cancelling any pending
// debounce timer. It runs the full retry policy synchronously and returns
// the terminal error, if any, in addition to invoking the failure hook.
func (c *Controller[T]) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInProgress
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	value := c.tracked
	c.saving = true
	c.state = StateSaving
	c.mu.Unlock()

	return c.run(ctx, value)
}

// Rollback restores the tracked value to the saved snapshot and clears the
// current error. The snapshot is already durable, so no save is triggered.
func (c *Controller[T]) Rollback() T {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.tracked = c.snapshot
	c.lastScheduled = c.snapshot
	c.lastErr = nil
	if !c.saving {
		c.state = StateIdle
	}
	restored := c.snapshot
	hook := c.hooks.OnRollback
	c.mu.Unlock()

	if hook != nil {
		hook(restored)
	}
	return restored
}

// Value returns the current tracked value.
func (c *Controller[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked
}

// Snapshot returns the last durably saved value.
func (c *Controller[T]) Snapshot() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// SavedAt returns when the snapshot was last refreshed; zero if never.
func (c *Controller[T]) SavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.savedAt
}

// State returns the controller's current phase.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal error from the last exhausted save, if any.
func (c *Controller[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller[T]) timerFired() {
	c.mu.Lock()
	if c.saving {
		// A save is already underway; the next Update reschedules.
		c.mu.Unlock()
		return
	}
	value := c.tracked
	c.saving = true
	c.state = StateSaving
	c.timer = nil
	c.mu.Unlock()

	_ = c.run(context.Background(), value)
}

// run executes the retry policy for a single save of value. The saving flag
// is held for the whole attempt sequence, including backoff sleeps.
func (c *Controller[T]) run(ctx context.Context, value T) error {
	var lastErr error
	backoff := c.retryDelay
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			if c.hooks.OnRetry != nil {
				c.hooks.OnRetry(attempt-1, lastErr)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.finish(value, ctx.Err())
				return ctx.Err()
			}
			backoff *= 2
		}
		lastErr = c.save(ctx, value)
		if lastErr == nil {
			c.finish(value, nil)
			return nil
		}
	}
	c.finish(value, lastErr)
	return lastErr
}

func (c *Controller[T]) finish(value T, err error) {
	c.mu.Lock()
	c.saving = false
	if err == nil {
		c.snapshot = value
		c.savedAt = time.Now()
		c.lastErr = nil
		if reflect.DeepEqual(c.lastScheduled, value) {
			// Nothing newer arrived mid-save; drop any timer that fired
			// (and skipped) while the save was running.
			if c.timer != nil {
				c.timer.Stop()
				c.timer = nil
			}
			c.state = StateIdle
		} else {
			// A change arrived mid-save. Its timer may already have fired
			// into the skip path, so re-arm to guarantee it gets saved.
			if c.timer != nil {
				c.timer.Stop()
			}
			c.timer = time.AfterFunc(c.delay, c.timerFired)
			c.state = StatePendingDebounce
		}
	} else {
		c.lastErr = err
		c.state = StateFailed
	}
	onSuccess := c.hooks.OnSuccess
	onError := c.hooks.OnError
	c.mu.Unlock()

	if err == nil {
		if onSuccess != nil {
			onSuccess(value)
		}
	} else if onError != nil {
		onError(err)
	}
}
