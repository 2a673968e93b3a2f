package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakySave fails the first failures calls, then succeeds.
type flakySave struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []string
}

func (f *flakySave) fn(_ context.Context, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	f.saved = append(f.saved, value)
	return nil
}

func newController(save SaveFunc[string], hooks Hooks[string]) *Controller[string] {
	return New("base", save, 10*time.Millisecond, 3, time.Millisecond, hooks)
}

func TestManualSaveSuccess(t *testing.T) {
	sink := &flakySave{}
	var succeeded string
	c := newController(sink.fn, Hooks[string]{OnSuccess: func(v string) { succeeded = v }})

	c.Update("draft-1")
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := c.Snapshot(); got != "draft-1" {
		t.Fatalf("snapshot = %q, want draft-1", got)
	}
	if succeeded != "draft-1" {
		t.Fatalf("OnSuccess got %q", succeeded)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %q, want idle", c.State())
	}
	if c.SavedAt().IsZero() {
		t.Fatal("SavedAt should be set")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	sink := &flakySave{failures: 2}
	var retries []int
	c := newController(sink.fn, Hooks[string]{
		OnRetry: func(attempt int, lastErr error) {
			if lastErr == nil {
				t.Error("OnRetry called without an error")
			}
			retries = append(retries, attempt)
		},
	})

	c.Update("v")
	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save should recover after retries: %v", err)
	}
	if len(retries) != 2 {
		t.Fatalf("retry observer invoked %d times, want 2", len(retries))
	}
	if retries[0] != 1 || retries[1] != 2 {
		t.Fatalf("retry attempts = %v", retries)
	}
	if got := c.Snapshot(); got != "v" {
		t.Fatalf("snapshot = %q, want v", got)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %q, want idle", c.State())
	}
}

func TestExhaustedRetriesKeepSnapshotAndRollback(t *testing.T) {
	alwaysFail := func(context.Context, string) error { return errors.New("boom") }
	var failed error
	var rolledBack string
	c := newController(alwaysFail, Hooks[string]{
		OnError:    func(err error) { failed = err },
		OnRollback: func(v string) { rolledBack = v },
	})

	c.Update("doomed")
	err := c.Save(context.Background())
	if err == nil {
		t.Fatal("Save should surface the terminal error")
	}
	if failed == nil {
		t.Fatal("OnError not invoked")
	}
	if c.State() != StateFailed {
		t.Fatalf("state = %q, want failed", c.State())
	}
	if got := c.Snapshot(); got != "base" {
		t.Fatalf("snapshot must stay at last known-good value, got %q", got)
	}
	// The tracked value is never silently discarded.
	if got := c.Value(); got != "doomed" {
		t.Fatalf("tracked value = %q, want doomed", got)
	}

	restored := c.Rollback()
	if restored != "base" || rolledBack != "base" {
		t.Fatalf("rollback restored %q (hook %q), want base", restored, rolledBack)
	}
	if c.Err() != nil {
		t.Fatal("rollback should clear the error")
	}
	if c.State() != StateIdle {
		t.Fatalf("state after rollback = %q, want idle", c.State())
	}
}

func TestDebouncedSaveCoalesces(t *testing.T) {
	sink := &flakySave{}
	done := make(chan string, 1)
	c := New("base", sink.fn, 5*time.Millisecond, 3, time.Millisecond, Hooks[string]{
		OnSuccess: func(v string) { done <- v },
	})

	c.Update("a")
	c.Update("ab")
	c.Update("abc")

	select {
	case saved := <-done:
		if saved != "abc" {
			t.Fatalf("saved %q, want abc", saved)
		}
	case <-time.After(time.Second):
		t.Fatal("debounced save never fired")
	}

	sink.mu.Lock()
	calls := sink.calls
	sink.mu.Unlock()
	if calls != 1 {
		t.Fatalf("save called %d times, want 1 (coalesced)", calls)
	}
}

func TestUpdateEqualToScheduledDoesNotRearm(t *testing.T) {
	sink := &flakySave{}
	c := New("base", sink.fn, 20*time.Millisecond, 3, time.Millisecond, Hooks[string]{})

	c.Update("base")
	time.Sleep(60 * time.Millisecond)

	sink.mu.Lock()
	calls := sink.calls
	sink.mu.Unlock()
	if calls != 0 {
		t.Fatalf("no save should be scheduled for an unchanged value, got %d calls", calls)
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %q, want idle", c.State())
	}
}

func TestSingleSaveInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	slow := func(context.Context, string) error {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return nil
	}
	c := New("base", slow, time.Hour, 3, time.Millisecond, Hooks[string]{})

	c.Update("v1")
	go func() { _ = c.Save(context.Background()) }()
	<-started

	if err := c.Save(context.Background()); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("second Save = %v, want ErrSaveInProgress", err)
	}
	close(release)
}

func TestClassify(t *testing.T) {
	if got := Classify(errors.New("dial tcp: connection refused")); got != CategoryNetwork {
		t.Fatalf("Classify network = %q", got)
	}
	if got := Classify(errors.New("schema validation failed")); got != CategoryValidation {
		t.Fatalf("Classify validation = %q", got)
	}
	if got := Classify(errors.New("weird")); got != CategoryUnknown {
		t.Fatalf("Classify unknown = %q", got)
	}
}

func TestMidSaveChangeIsSavedWithoutAnotherUpdate(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var saved []string
	slow := func(_ context.Context, v string) error {
		mu.Lock()
		saved = append(saved, v)
		first := len(saved) == 1
		mu.Unlock()
		if first {
			<-release
		}
		return nil
	}
	c := New("base", slow, 5*time.Millisecond, 3, time.Millisecond, Hooks[string]{})

	c.Update("v1")
	deadline := time.Now().Add(time.Second)
	for c.State() != StateSaving {
		if time.Now().After(deadline) {
			t.Fatal("first save never started")
		}
		time.Sleep(time.Millisecond)
	}

	// This change's debounce timer fires into the skip path while v1 is
	// still saving.
	c.Update("v2")
	time.Sleep(20 * time.Millisecond)
	close(release)

	deadline = time.Now().Add(time.Second)
	for {
		mu.Lock()
		got := append([]string(nil), saved...)
		mu.Unlock()
		if len(got) == 2 && got[1] == "v2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mid-save change never saved, saved=%v", got)
		}
		time.Sleep(time.Millisecond)
	}

	deadline = time.Now().Add(time.Second)
	for c.State() != StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("state = %q, want idle once caught up", c.State())
		}
		time.Sleep(time.Millisecond)
	}
	if got := c.Snapshot(); got != "v2" {
		t.Fatalf("snapshot = %q, want v2", got)
	}
}
