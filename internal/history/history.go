// Package history provides a bounded undo/redo stack over an arbitrary value.
package history

import (
	"reflect"
	"sync"
	"time"
)

const (
	// DefaultLimit bounds how many past states are retained.
	DefaultLimit = 50
	// DefaultDebounce is the coalescing window for CommitDebounced.
	DefaultDebounce = 500 * time.Millisecond
)

// History tracks a present value plus bounded past and future stacks.
// All methods are safe for concurrent use; the editor session shares one
// History across request goroutines.
type History[T any] struct {
	mu      sync.Mutex
	past    []T
	present T
	future  []T
	limit   int
	delay   time.Duration

	timer   *time.Timer
	pending bool
	base    T // present before the first debounced change in the open window
}

// New creates a history with the given initial present value. A limit <= 0
// falls back to DefaultLimit, a debounce <= 0 to DefaultDebounce.
func New[T any](initial T, limit int, debounce time.Duration) *History[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &History[T]{present: initial, limit: limit, delay: debounce}
}

// Commit records value as the new present. A value deep-equal to the current
// present is a no-op. The previous present is pushed onto the past stack,
// evicting the oldest entry beyond the limit. The future stack is cleared
// when clearFuture is set; Redo uses the preserving variant internally.
func (h *History[T]) Commit(value T, clearFuture bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
	h.commitLocked(value, clearFuture)
}

// CommitDebounced updates present immediately but defers the past/future
// bookkeeping until the value has stopped changing for the debounce window.
// Rapid successive calls collapse into a single history entry.
func (h *History[T]) CommitDebounced(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if reflect.DeepEqual(value, h.present) {
		return
	}
	if !h.pending {
		h.base = h.present
		h.pending = true
	}
	h.present = value
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.delay, h.fire)
}

// Flush applies any pending debounced bookkeeping immediately.
func (h *History[T]) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

// Undo moves the newest past entry into present and reports whether anything
// was undone. The displaced present goes to the front of the future stack.
func (h *History[T]) Undo() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
	if len(h.past) == 0 {
		return h.present, false
	}
	previous := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([]T{h.present}, h.future...)
	h.present = previous
	return h.present, true
}

// Redo is the mirror of Undo.
func (h *History[T]) Redo() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
	if len(h.future) == 0 {
		return h.present, false
	}
	next := h.future[0]
	h.future = h.future[1:]
	h.commitLocked(next, false)
	return h.present, true
}

// Reset clears both stacks and sets present.
func (h *History[T]) Reset(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelPendingLocked()
	h.past = nil
	h.future = nil
	h.present = value
}

// Clear clears both stacks but keeps present.
func (h *History[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelPendingLocked()
	h.past = nil
	h.future = nil
}

// Present returns the current value.
func (h *History[T]) Present() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.present
}

// CanUndo reports whether the past stack is non-empty.
func (h *History[T]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0 || h.pending
}

// CanRedo reports whether the future stack is non-empty.
func (h *History[T]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Depth returns the current past and future stack sizes.
func (h *History[T]) Depth() (past, future int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past), len(h.future)
}

func (h *History[T]) fire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

func (h *History[T]) flushLocked() {
	if !h.pending {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
	// A window that ended back at its starting value records nothing.
	if reflect.DeepEqual(h.base, h.present) {
		return
	}
	h.pushLocked(h.base)
	h.future = nil
}

func (h *History[T]) cancelPendingLocked() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pending = false
}

func (h *History[T]) commitLocked(value T, clearFuture bool) {
	if reflect.DeepEqual(value, h.present) {
		return
	}
	h.pushLocked(h.present)
	h.present = value
	if clearFuture {
		h.future = nil
	}
}

func (h *History[T]) pushLocked(value T) {
	h.past = append(h.past, value)
	if len(h.past) > h.limit {
		h.past = h.past[1:]
	}
}
