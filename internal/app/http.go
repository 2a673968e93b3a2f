package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"statq/api/internal/auth"
	"statq/api/internal/authpw"
	"statq/api/internal/ratelimit"
	"statq/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	ips        *ipLimiters
}

func NewHTTPServer(service *Service, corsOrigin string, globalRatePerSec, globalBurst int) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		ips:        newIPLimiters(globalRatePerSec, globalBurst),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		s.handleRefresh(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
		})
		return
	}

	parts := splitPath(r.URL.Path)

	// Respondent-facing routes: no session required.
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "public" && parts[2] == "forms" {
		s.handlePublic(w, r, parts[3:])
		return
	}
	if len(parts) == 4 && parts[0] == "api" && parts[1] == "forms" && parts[3] == "submit" && r.Method == http.MethodPost {
		s.handleSubmit(w, r, parts[2])
		return
	}

	// Everything below is author-only.
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "forms" {
		session, err := s.service.SessionFromToken(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		s.handleForms(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// ── Auth handlers ──

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}

	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}

	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

// ── Respondent handlers ──

// caller assembles the respondent identity: session token (optional), pass
// token (optional, via X-Form-Pass or ?pass=), and a stable identity key for
// rate limiting (user ID when logged in, client IP otherwise).
func (s *HTTPServer) caller(r *http.Request, formID string) Caller {
	c := Caller{Identity: clientIP(r)}
	if token := bearerToken(r); token != "" {
		if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			c.IsLoggedIn = true
			c.UserID = session.UserID
			c.Identity = session.UserID
		}
	}
	passToken := strings.TrimSpace(r.Header.Get("X-Form-Pass"))
	if passToken == "" {
		passToken = strings.TrimSpace(r.URL.Query().Get("pass"))
	}
	c.HasPassword = s.service.HasFormPass(passToken, formID)
	return c
}

func (s *HTTPServer) handlePublic(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		formID := parts[0]
		view, err := s.service.PublicForm(r.Context(), formID, s.caller(r, formID))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 2 && parts[1] == "uploads" && r.Method == http.MethodPost:
		s.handleUpload(w, r, parts[0])

	case len(parts) == 2 && parts[1] == "verify-password" && r.Method == http.MethodPost:
		var body struct {
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, err := s.service.VerifyFormPassword(r.Context(), parts[0], body.Password)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"passToken": token})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

const maxUploadMemory = 32 << 20

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, formID string) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form data", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	info, err := s.service.UploadAttachment(r.Context(), formID, s.caller(r, formID),
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, formID string) {
	var body SubmitInput
	if err := decodeBody(r, &body); err != nil {
		// Malformed bodies still count against the bucket; the pipeline
		// rejects them after the limiter has stamped its headers.
		body = SubmitInput{decodeErr: err}
	}

	result, err := s.service.SubmitResponse(r.Context(), formID, s.caller(r, formID), body)
	// Rate-limit headers go out on every outcome, success included.
	ratelimit.SetHeaders(w.Header(), result.Limit)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusTooManyRequests {
			retryAfter := int(result.Limit.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			writeJSON(w, status, map[string]any{
				"error":      code,
				"message":    message,
				"retryAfter": retryAfter,
			})
			return
		}
		writeError(w, status, code, message, details)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"responseId": result.ResponseID,
		"message":    "Response recorded",
	})
}

// ── Author handlers ──

func (s *HTTPServer) handleForms(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		forms, err := s.service.ListForms(r.Context(), session)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		items := make([]map[string]any, 0, len(forms))
		for _, form := range forms {
			items = append(items, map[string]any{
				"id":            form.ID,
				"title":         form.Title,
				"status":        form.Status,
				"responseCount": form.ResponseCount,
				"updatedAt":     form.UpdatedAt.Unix(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"forms": items})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body CreateFormInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		form, err := s.service.CreateForm(r.Context(), session, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, formPayload(form))

	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		offset, _ := strconv.Atoi(query.Get("offset"))
		resp := s.service.SearchForms(session, query.Get("q"), query.Get("status"), limit, offset)
		writeJSON(w, http.StatusOK, resp)

	case len(parts) == 1 && r.Method == http.MethodGet:
		form, err := s.service.GetForm(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, formPayload(form))

	case len(parts) == 1 && r.Method == http.MethodPut:
		var body UpdateFormInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		form, err := s.service.UpdateForm(r.Context(), session, parts[0], body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, formPayload(form))

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteForm(r.Context(), session, parts[0]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) >= 2 && parts[1] == "editor":
		s.handleEditor(w, r, session, parts[0], parts[2:])

	case len(parts) == 2 && parts[1] == "responses" && r.Method == http.MethodGet:
		responses, err := s.service.ListResponses(r.Context(), session, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		items := make([]map[string]any, 0, len(responses))
		for _, response := range responses {
			items = append(items, responsePayload(response))
		}
		writeJSON(w, http.StatusOK, map[string]any{"responses": items})

	case len(parts) == 3 && parts[1] == "responses" && r.Method == http.MethodGet:
		response, answers, err := s.service.GetResponse(r.Context(), session, parts[0], parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		answerItems := make([]map[string]any, 0, len(answers))
		for _, answer := range answers {
			answerItems = append(answerItems, map[string]any{
				"questionId": answer.QuestionID,
				"value":      answer.Value,
			})
		}
		payload := responsePayload(response)
		payload["answers"] = answerItems
		writeJSON(w, http.StatusOK, payload)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleEditor(w http.ResponseWriter, r *http.Request, session Session, formID string, parts []string) {
	var (
		state any
		err   error
	)

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		state, err = s.service.EditorState(r.Context(), session, formID)

	case len(parts) == 1 && parts[0] == "schema" && r.Method == http.MethodPut:
		var body struct {
			Schema    json.RawMessage `json:"schema"`
			Immediate bool            `json:"immediate"`
		}
		if decodeErr := decodeBody(r, &body); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", decodeErr.Error(), nil)
			return
		}
		state, err = s.service.ApplySchema(r.Context(), session, formID, body.Schema, body.Immediate)

	case len(parts) == 1 && parts[0] == "undo" && r.Method == http.MethodPost:
		var ok bool
		state, ok, err = s.service.UndoSchema(r.Context(), session, formID)
		if err == nil && !ok {
			writeError(w, http.StatusConflict, "NOTHING_TO_UNDO", "Nothing to undo", nil)
			return
		}

	case len(parts) == 1 && parts[0] == "redo" && r.Method == http.MethodPost:
		var ok bool
		state, ok, err = s.service.RedoSchema(r.Context(), session, formID)
		if err == nil && !ok {
			writeError(w, http.StatusConflict, "NOTHING_TO_REDO", "Nothing to redo", nil)
			return
		}

	case len(parts) == 1 && parts[0] == "save" && r.Method == http.MethodPost:
		state, err = s.service.SaveSchema(r.Context(), session, formID)
		var domainErr *DomainError
		if err != nil && !errors.As(err, &domainErr) && !errors.Is(err, sql.ErrNoRows) {
			// store save exhausted its retries; the state still carries
			// the unsaved edits so the client can retry or roll back
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error": "SAVE_FAILED",
				"state": state,
			})
			return
		}

	case len(parts) == 1 && parts[0] == "rollback" && r.Method == http.MethodPost:
		state, err = s.service.RollbackSchema(r.Context(), session, formID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func formPayload(form store.Form) map[string]any {
	payload := map[string]any{
		"id":           form.ID,
		"title":        form.Title,
		"description":  form.Description,
		"schema":       form.Schema,
		"status":       form.Status,
		"requireLogin": form.RequireLogin,
		"collectEmail": form.CollectEmail,
		"hasPassword":  form.PasswordHash != "",
		"createdAt":    form.CreatedAt.Unix(),
		"updatedAt":    form.UpdatedAt.Unix(),
	}
	if form.ScheduleStart != nil {
		payload["scheduleStart"] = form.ScheduleStart.Unix()
	}
	if form.ScheduleEnd != nil {
		payload["scheduleEnd"] = form.ScheduleEnd.Unix()
	}
	if form.MaxResponses != nil {
		payload["maxResponses"] = *form.MaxResponses
	}
	return payload
}

func responsePayload(response store.Response) map[string]any {
	payload := map[string]any{
		"id":        response.ID,
		"formId":    response.FormID,
		"createdAt": response.CreatedAt.Unix(),
	}
	if response.RespondentID != nil {
		payload["respondentId"] = *response.RespondentID
	}
	if response.RespondentEmail != "" {
		payload["respondentEmail"] = response.RespondentEmail
	}
	return payload
}

// ── Middleware and helpers ──

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if !s.ips.allow(clientIP(r)) {
			writeError(writer, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		} else {
			next.ServeHTTP(writer, r)
		}

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// ipLimiters is the coarse per-IP request limiter in front of the mux,
// independent of the per-form submission bucket.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
}

func newIPLimiters(perSec, burst int) *ipLimiters {
	if perSec <= 0 {
		perSec = 50
	}
	if burst <= 0 {
		burst = perSec * 2
	}
	return &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Limit(perSec),
		burst:    burst,
	}
}

func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[ip] = limiter
		if len(l.limiters) > 100000 {
			l.limiters = map[string]*rate.Limiter{ip: limiter}
		}
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Form-Pass")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
