package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"statq/api/internal/store"
)

func newTestServer(fs *fakeStore) (*HTTPServer, *Service) {
	svc := newTestService(fs)
	return NewHTTPServer(svc, "*", 1000, 2000), svc
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodePayload(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(newFakeStore())
	rr := doJSON(t, server.Handler(), http.MethodGet, "/api/health", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}

func TestSubmitEndpointCreatesResponse(t *testing.T) {
	fs := newFakeStore()
	fs.forms["frm_1"] = publishedForm("frm_1", "usr_owner")
	server, _ := newTestServer(fs)

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/forms/frm_1/submit",
		map[string]any{"answers": map[string]any{"q1": "hello"}}, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["success"] != true {
		t.Fatalf("payload = %v", payload)
	}
	responseID, _ := payload["responseId"].(string)
	if responseID == "" {
		t.Fatal("no responseId")
	}
	if rr.Header().Get("X-RateLimit-Limit") == "" || rr.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatal("rate-limit headers missing on success")
	}
	if rr.Header().Get("Retry-After") != "" {
		t.Fatal("Retry-After set on a successful submission")
	}
	if fs.responseCount("frm_1") != 1 {
		t.Fatalf("response rows = %d", fs.responseCount("frm_1"))
	}
}

func TestSubmitEndpointThrottles(t *testing.T) {
	fs := newFakeStore()
	fs.forms["frm_1"] = publishedForm("frm_1", "usr_owner")
	server, svc := newTestServer(fs)
	svc.cfg.SubmitLimit = 1

	handler := server.Handler()
	body := map[string]any{"answers": map[string]any{"q1": "hello"}}

	if rr := doJSON(t, handler, http.MethodPost, "/api/forms/frm_1/submit", body, nil); rr.Code != http.StatusCreated {
		t.Fatalf("first submit status = %d", rr.Code)
	}

	rr := doJSON(t, handler, http.MethodPost, "/api/forms/frm_1/submit", body, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing on throttle")
	}
	payload := decodePayload(t, rr)
	if payload["error"] == nil || payload["retryAfter"] == nil {
		t.Fatalf("throttle payload = %v", payload)
	}
}

func TestSubmitEndpointStatusMapping(t *testing.T) {
	fs := newFakeStore()

	draft := publishedForm("frm_draft", "usr_owner")
	draft.Status = store.FormStatusDraft
	fs.forms["frm_draft"] = draft

	login := publishedForm("frm_login", "usr_owner")
	login.RequireLogin = true
	fs.forms["frm_login"] = login

	server, _ := newTestServer(fs)
	handler := server.Handler()
	body := map[string]any{"answers": map[string]any{"q1": "hello"}}

	cases := []struct {
		path string
		want int
	}{
		{"/api/forms/frm_missing/submit", http.StatusNotFound},
		{"/api/forms/frm_draft/submit", http.StatusForbidden},
		{"/api/forms/frm_login/submit", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rr := doJSON(t, handler, http.MethodPost, tc.path, body, nil)
		if rr.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.path, rr.Code, tc.want)
		}
	}

	rr := doJSON(t, handler, http.MethodPost, "/api/forms/frm_draft/submit", map[string]any{}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty answers: status = %d, want 400", rr.Code)
	}
}

func TestSubmitEndpointCompensationSurfacesAs500(t *testing.T) {
	fs := newFakeStore()
	fs.forms["frm_1"] = publishedForm("frm_1", "usr_owner")
	fs.insertAnswersFn = func(context.Context, []store.Answer) error {
		return fmt.Errorf("insert answers: broken")
	}
	server, _ := newTestServer(fs)

	rr := doJSON(t, server.Handler(), http.MethodPost, "/api/forms/frm_1/submit",
		map[string]any{"answers": map[string]any{"q1": "hello"}}, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if fs.responseCount("frm_1") != 0 {
		t.Fatal("orphaned response row after failed answer insert")
	}
}

func TestPasswordFlowOverHTTP(t *testing.T) {
	fs := newFakeStore()
	server, _ := newTestServer(fs)
	handler := server.Handler()

	// author signs up and creates a protected, published form
	rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup",
		map[string]any{"email": "o@example.com", "password": "password123", "displayName": "O"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body=%s", rr.Code, rr.Body.String())
	}
	token, _ := decodePayload(t, rr)["accessToken"].(string)
	authz := map[string]string{"Authorization": "Bearer " + token}

	rr = doJSON(t, handler, http.MethodPost, "/api/forms",
		map[string]any{"title": "Locked"}, authz)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create form status = %d body=%s", rr.Code, rr.Body.String())
	}
	formID, _ := decodePayload(t, rr)["id"].(string)

	rr = doJSON(t, handler, http.MethodPut, "/api/forms/"+formID,
		map[string]any{"status": "published", "password": "open sesame"}, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("update form status = %d body=%s", rr.Code, rr.Body.String())
	}

	// public view withholds the schema and names the gate
	rr = doJSON(t, handler, http.MethodGet, "/api/public/forms/"+formID, nil, nil)
	payload := decodePayload(t, rr)
	if payload["accepting"] != false || payload["reason"] != "password_required" {
		t.Fatalf("public view = %v", payload)
	}
	if _, ok := payload["schema"]; ok {
		t.Fatal("schema leaked before password verification")
	}

	// submission without the pass is a 401
	body := map[string]any{"answers": map[string]any{"q1": "hi"}}
	if rr := doJSON(t, handler, http.MethodPost, "/api/forms/"+formID+"/submit", body, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("submit without pass status = %d", rr.Code)
	}

	// verify the password, then submit with the pass token
	rr = doJSON(t, handler, http.MethodPost, "/api/public/forms/"+formID+"/verify-password",
		map[string]any{"password": "open sesame"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify-password status = %d body=%s", rr.Code, rr.Body.String())
	}
	pass, _ := decodePayload(t, rr)["passToken"].(string)
	if pass == "" {
		t.Fatal("no pass token")
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/forms/"+formID+"/submit", body,
		map[string]string{"X-Form-Pass": pass})
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit with pass status = %d body=%s", rr.Code, rr.Body.String())
	}

	// the owner can review the stored response
	rr = doJSON(t, handler, http.MethodGet, "/api/forms/"+formID+"/responses", nil, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("list responses status = %d", rr.Code)
	}
	responses, _ := decodePayload(t, rr)["responses"].([]any)
	if len(responses) != 1 {
		t.Fatalf("responses = %v", responses)
	}
}

func TestEditorRoutesOverHTTP(t *testing.T) {
	fs := newFakeStore()
	server, _ := newTestServer(fs)
	handler := server.Handler()

	rr := doJSON(t, handler, http.MethodPost, "/api/auth/signup",
		map[string]any{"email": "e@example.com", "password": "password123", "displayName": "E"}, nil)
	token, _ := decodePayload(t, rr)["accessToken"].(string)
	authz := map[string]string{"Authorization": "Bearer " + token}

	rr = doJSON(t, handler, http.MethodPost, "/api/forms", map[string]any{"title": "Editable"}, authz)
	formID, _ := decodePayload(t, rr)["id"].(string)

	schema := map[string]any{"questions": []map[string]any{{"id": "q1", "title": "One"}}}
	rr = doJSON(t, handler, http.MethodPut, "/api/forms/"+formID+"/editor/schema",
		map[string]any{"schema": schema, "immediate": true}, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("apply schema status = %d body=%s", rr.Code, rr.Body.String())
	}
	state := decodePayload(t, rr)
	if state["canUndo"] != true {
		t.Fatalf("state = %v", state)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/forms/"+formID+"/editor/undo", nil, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("undo status = %d body=%s", rr.Code, rr.Body.String())
	}
	state = decodePayload(t, rr)
	if state["canRedo"] != true {
		t.Fatalf("state after undo = %v", state)
	}

	// undoing past the beginning is a conflict, not a crash
	rr = doJSON(t, handler, http.MethodPost, "/api/forms/"+formID+"/editor/undo", nil, authz)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second undo status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/forms/"+formID+"/editor/redo", nil, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("redo status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/forms/"+formID+"/editor/save", nil, authz)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d body=%s", rr.Code, rr.Body.String())
	}

	// schema landed in the store
	fs.mu.Lock()
	saved := string(fs.forms[formID].Schema)
	fs.mu.Unlock()
	if saved == `{"questions":[]}` || saved == "" {
		t.Fatalf("schema not saved: %s", saved)
	}

	// malformed schema is rejected before touching the session
	rr = doJSON(t, handler, http.MethodPut, "/api/forms/"+formID+"/editor/schema",
		map[string]any{"schema": map[string]any{"title": "no questions"}}, authz)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid schema status = %d", rr.Code)
	}
}

func TestAuthorRoutesRequireSession(t *testing.T) {
	server, _ := newTestServer(newFakeStore())
	handler := server.Handler()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/forms"},
		{http.MethodPost, "/api/forms"},
		{http.MethodGet, "/api/forms/frm_1"},
		{http.MethodGet, "/api/forms/frm_1/responses"},
		{http.MethodPost, "/api/forms/frm_1/editor/undo"},
	}
	for _, tc := range paths {
		rr := doJSON(t, handler, tc.method, tc.path, nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.path, rr.Code)
		}
	}
}

func TestSubmitEndpointMalformedBodyCarriesRateHeaders(t *testing.T) {
	fs := newFakeStore()
	fs.forms["frm_1"] = publishedForm("frm_1", "usr_owner")
	server, svc := newTestServer(fs)
	svc.cfg.SubmitLimit = 2
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/forms/frm_1/submit", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("X-RateLimit-Limit = %q, want 2", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 1 (malformed attempt consumed a slot)", rr.Header().Get("X-RateLimit-Remaining"))
	}
	if rr.Header().Get("Retry-After") != "" {
		t.Fatal("Retry-After must only appear on throttled outcomes")
	}
}
