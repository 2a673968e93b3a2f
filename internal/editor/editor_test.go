package editor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"statq/api/internal/autosave"
	"statq/api/internal/store"
)

type fakeSchemaStore struct {
	mu      sync.Mutex
	schema  string
	failing bool
	saves   int
}

func (f *fakeSchemaStore) GetForm(_ context.Context, formID string) (store.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return store.Form{ID: formID, Schema: json.RawMessage(f.schema)}, nil
}

func (f *fakeSchemaStore) UpdateFormSchema(_ context.Context, _ string, schema []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failing {
		return errors.New("connection refused")
	}
	f.schema = string(schema)
	return nil
}

func (f *fakeSchemaStore) saved() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schema
}

func newTestManager(fs *fakeSchemaStore) *Manager {
	return NewManager(fs, Options{
		HistoryLimit:    10,
		HistoryDebounce: time.Hour, // tests flush explicitly
		AutosaveDelay:   time.Hour, // tests save explicitly
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
	})
}

func schemaWith(titles ...string) json.RawMessage {
	type q struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	questions := make([]q, len(titles))
	for i, title := range titles {
		questions[i] = q{ID: title, Title: title}
	}
	doc, _ := json.Marshal(map[string]any{"questions": questions})
	return doc
}

func TestOpenReusesSession(t *testing.T) {
	fs := &fakeSchemaStore{schema: string(schemaWith("q1"))}
	m := newTestManager(fs)
	ctx := context.Background()

	a, err := m.Open(ctx, "frm_1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := m.Open(ctx, "frm_1")
	if err != nil {
		t.Fatalf("Open again: %v", err)
	}
	if a != b {
		t.Fatal("second Open created a new session")
	}
}

func TestApplyUndoRedo(t *testing.T) {
	fs := &fakeSchemaStore{schema: string(schemaWith("q1"))}
	m := newTestManager(fs)
	sess, err := m.Open(context.Background(), "frm_1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	two := schemaWith("q1", "q2")
	three := schemaWith("q1", "q2", "q3")
	sess.Apply(two, true)
	sess.Apply(three, true)

	st, ok := sess.Undo()
	if !ok {
		t.Fatal("Undo reported nothing to undo")
	}
	if string(st.Schema) != string(two) {
		t.Fatalf("after undo schema = %s, want %s", st.Schema, two)
	}
	if !st.CanRedo {
		t.Fatal("CanRedo false after undo")
	}

	st, ok = sess.Redo()
	if !ok {
		t.Fatal("Redo reported nothing to redo")
	}
	if string(st.Schema) != string(three) {
		t.Fatalf("after redo schema = %s, want %s", st.Schema, three)
	}
}

func TestSavePersistsPresent(t *testing.T) {
	fs := &fakeSchemaStore{schema: string(schemaWith("q1"))}
	m := newTestManager(fs)
	sess, err := m.Open(context.Background(), "frm_1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	edited := schemaWith("q1", "q2")
	sess.Apply(edited, false) // debounced path
	if err := sess.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if fs.saved() != string(edited) {
		t.Fatalf("store schema = %s, want %s", fs.saved(), edited)
	}

	st := sess.State()
	if st.SaveState != autosave.StateIdle {
		t.Fatalf("state = %s, want idle", st.SaveState)
	}
	if st.SavedAt == nil {
		t.Fatal("SavedAt not set after save")
	}
}

func TestFailedSaveThenRollback(t *testing.T) {
	initial := string(schemaWith("q1"))
	fs := &fakeSchemaStore{schema: initial, failing: true}
	m := newTestManager(fs)
	sess, err := m.Open(context.Background(), "frm_1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	edited := schemaWith("q1", "q2")
	sess.Apply(edited, true)
	if err := sess.Save(context.Background()); err == nil {
		t.Fatal("Save succeeded against a failing store")
	}

	st := sess.State()
	if st.SaveState != autosave.StateFailed {
		t.Fatalf("state = %s, want failed", st.SaveState)
	}
	if st.ErrorCategory != autosave.CategoryNetwork {
		t.Fatalf("category = %s, want network", st.ErrorCategory)
	}
	// edits survive the failure until the user decides
	if string(st.Schema) != string(edited) {
		t.Fatalf("failed save discarded edits: %s", st.Schema)
	}

	st = sess.Rollback()
	if string(st.Schema) != initial {
		t.Fatalf("rollback schema = %s, want %s", st.Schema, initial)
	}
	if st.CanUndo {
		t.Fatal("undo available after rollback reset")
	}
	if st.LastError != "" {
		t.Fatalf("rollback left error %q", st.LastError)
	}
}

func TestCloseFlushesUnsavedEdits(t *testing.T) {
	fs := &fakeSchemaStore{schema: string(schemaWith("q1"))}
	m := newTestManager(fs)
	sess, err := m.Open(context.Background(), "frm_1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	edited := schemaWith("q1", "q2")
	sess.Apply(edited, true)
	if err := m.Close(context.Background(), "frm_1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.saved() != string(edited) {
		t.Fatalf("Close did not flush: store schema = %s", fs.saved())
	}
	if _, ok := m.Peek("frm_1"); ok {
		t.Fatal("session still registered after Close")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(schemaWith("q1")); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}
	if err := Validate(json.RawMessage(`{"title":"no questions"}`)); err == nil {
		t.Fatal("schema without questions accepted")
	}
	if err := Validate(json.RawMessage(`{`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}
