// Package editor manages server-side editing sessions for form schemas.
// A session pairs a bounded undo/redo history with an auto-save controller
// so edits survive store outages without losing respondent-visible state.
package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"statq/api/internal/autosave"
	"statq/api/internal/history"
	"statq/api/internal/store"
)

// SchemaStore is the slice of the data store sessions need.
type SchemaStore interface {
	GetForm(ctx context.Context, formID string) (store.Form, error)
	UpdateFormSchema(ctx context.Context, formID string, schema []byte) error
}

// Options tune every session a manager creates.
type Options struct {
	HistoryLimit    int
	HistoryDebounce time.Duration
	AutosaveDelay   time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// Session owns the editing state of one form.
type Session struct {
	FormID string

	hist *history.History[string]
	ctrl *autosave.Controller[string]
}

// State is the session snapshot returned to the editing client.
type State struct {
	FormID        string            `json:"formId"`
	Schema        json.RawMessage   `json:"schema"`
	CanUndo       bool              `json:"canUndo"`
	CanRedo       bool              `json:"canRedo"`
	SaveState     autosave.State    `json:"saveState"`
	SavedAt       *time.Time        `json:"savedAt,omitempty"`
	LastError     string            `json:"lastError,omitempty"`
	ErrorCategory autosave.Category `json:"errorCategory,omitempty"`
}

// Manager hands out one session per form. Sessions are created lazily on
// first edit and dropped on Close or form deletion.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    SchemaStore
	opts     Options
}

// NewManager creates a session manager over the given store.
func NewManager(s SchemaStore, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    s,
		opts:     opts,
	}
}

// Open returns the session for formID, loading the form's current schema
// from the store if no session exists yet.
func (m *Manager) Open(ctx context.Context, formID string) (*Session, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[formID]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	form, err := m.store.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have raced us here; keep the first session.
	if sess, ok := m.sessions[formID]; ok {
		return sess, nil
	}

	initial := string(form.Schema)
	saveSchema := func(ctx context.Context, schema string) error {
		return m.store.UpdateFormSchema(ctx, formID, []byte(schema))
	}
	sess := &Session{
		FormID: formID,
		hist:   history.New(initial, m.opts.HistoryLimit, m.opts.HistoryDebounce),
		ctrl: autosave.New(initial, saveSchema, m.opts.AutosaveDelay, m.opts.MaxRetries, m.opts.RetryDelay, autosave.Hooks[string]{
			OnRetry: func(attempt int, lastErr error) {
				log.Printf("editor: form %s save retry %d: %v", formID, attempt, lastErr)
			},
			OnError: func(err error) {
				log.Printf("editor: form %s save failed: %v", formID, err)
			},
		}),
	}
	m.sessions[formID] = sess
	return sess, nil
}

// Peek returns the session for formID without creating one.
func (m *Manager) Peek(formID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[formID]
	return sess, ok
}

// Close drops the session for formID, flushing a final save of any unsaved
// edits. Called on form deletion and on explicit session teardown.
func (m *Manager) Close(ctx context.Context, formID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[formID]
	delete(m.sessions, formID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Save(ctx)
}

// Discard drops the session without saving. Used after form deletion, where
// a flush would recreate the row's schema write against a dead form.
func (m *Manager) Discard(formID string) {
	m.mu.Lock()
	delete(m.sessions, formID)
	m.mu.Unlock()
}

// Apply records an edited schema. Debounced edits coalesce into one undo
// step; immediate edits (structural changes like add/remove question) commit
// their own step and clear the redo stack.
func (s *Session) Apply(schema json.RawMessage, immediate bool) State {
	value := string(schema)
	if immediate {
		s.hist.Commit(value, true)
	} else {
		s.hist.CommitDebounced(value)
	}
	s.ctrl.Update(s.hist.Present())
	return s.State()
}

// Undo steps the history back and schedules a save of the restored schema.
func (s *Session) Undo() (State, bool) {
	value, ok := s.hist.Undo()
	if ok {
		s.ctrl.Update(value)
	}
	return s.State(), ok
}

// Redo steps the history forward and schedules a save.
func (s *Session) Redo() (State, bool) {
	value, ok := s.hist.Redo()
	if ok {
		s.ctrl.Update(value)
	}
	return s.State(), ok
}

// Save flushes pending history bookkeeping and forces an immediate save,
// running the controller's full retry policy.
func (s *Session) Save(ctx context.Context) error {
	s.hist.Flush()
	s.ctrl.Update(s.hist.Present())
	err := s.ctrl.Save(ctx)
	if err == autosave.ErrSaveInProgress {
		// The in-flight save carries the latest scheduled value.
		return nil
	}
	return err
}

// Rollback discards unsaved edits, restoring the last durably saved schema.
// The history is reset so undo cannot resurrect the discarded edits.
func (s *Session) Rollback() State {
	restored := s.ctrl.Rollback()
	s.hist.Reset(restored)
	return s.State()
}

// State reports the session's current schema and save status.
func (s *Session) State() State {
	st := State{
		FormID:    s.FormID,
		Schema:    json.RawMessage(s.hist.Present()),
		CanUndo:   s.hist.CanUndo(),
		CanRedo:   s.hist.CanRedo(),
		SaveState: s.ctrl.State(),
	}
	if at := s.ctrl.SavedAt(); !at.IsZero() {
		st.SavedAt = &at
	}
	if err := s.ctrl.Err(); err != nil {
		st.LastError = err.Error()
		st.ErrorCategory = autosave.Classify(err)
	}
	return st
}

// Validate rejects schemas that are not a JSON object with a questions
// array. Deeper validation belongs to the client editor.
func Validate(schema json.RawMessage) error {
	var doc struct {
		Questions *[]json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return fmt.Errorf("schema is not valid JSON: %w", err)
	}
	if doc.Questions == nil {
		return fmt.Errorf("schema must contain a questions array")
	}
	return nil
}
