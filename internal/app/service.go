package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"statq/api/internal/access"
	"statq/api/internal/auth"
	"statq/api/internal/authpw"
	"statq/api/internal/config"
	"statq/api/internal/editor"
	"statq/api/internal/email"
	"statq/api/internal/ratelimit"
	"statq/api/internal/search"
	"statq/api/internal/store"
	"statq/api/internal/upload"
	"statq/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// Caller is the respondent-side identity attached to public requests.
type Caller struct {
	IsLoggedIn  bool
	UserID      string
	HasPassword bool // verified via a pass token for this specific form
	Identity    string
}

type CreateFormInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

type UpdateFormInput struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Status        *string `json:"status"`
	ScheduleStart *int64  `json:"scheduleStart"` // unix seconds, 0 clears
	ScheduleEnd   *int64  `json:"scheduleEnd"`
	MaxResponses  *int    `json:"maxResponses"` // 0 clears
	Password      *string `json:"password"`     // empty clears
	RequireLogin  *bool   `json:"requireLogin"`
	CollectEmail  *bool   `json:"collectEmail"`
}

type SubmitInput struct {
	Answers         map[string]json.RawMessage `json:"answers"`
	RespondentEmail string                     `json:"respondentEmail"`

	// decodeErr carries a body-decoding failure into the pipeline so the
	// rate limiter is consulted before the 400 goes out.
	decodeErr error
}

type SubmitResult struct {
	ResponseID string
	Limit      ratelimit.Result
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	InsertForm(context.Context, store.Form) error
	GetForm(context.Context, string) (store.Form, error)
	ListFormsByOwner(context.Context, string) ([]store.FormSummary, error)
	UpdateFormSchema(context.Context, string, []byte) error
	UpdateFormSettings(context.Context, store.Form) error
	DeleteForm(context.Context, string) error
	CountResponses(context.Context, string) (int, error)
	InsertResponse(context.Context, store.Response) error
	InsertAnswers(context.Context, []store.Answer) error
	DeleteResponse(context.Context, string) error
	ListResponses(context.Context, string) ([]store.Response, error)
	ListAnswers(context.Context, string) ([]store.Answer, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. Redis when configured, otherwise the
// Postgres store satisfies the same interface.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

// Deps are the optional collaborators around the data store. Nil Search,
// Email and Uploads degrade gracefully; nil Sessions falls back to the data
// store.
type Deps struct {
	Sessions sessionStore
	Limiter  ratelimit.Limiter
	Editor   *editor.Manager
	Search   *search.Service
	Email    *email.Service
	Uploads  *upload.Service
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	limiter  ratelimit.Limiter
	editor   *editor.Manager
	search   *search.Service
	email    *email.Service
	uploads  *upload.Service

	now func() time.Time
}

func New(cfg config.Config, dataStore dataStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		limiter:  deps.Limiter,
		editor:   deps.Editor,
		search:   deps.Search,
		email:    deps.Email,
		uploads:  deps.Uploads,
		now:      time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Sessions ──

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.authpw.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// session (access + refresh pair) is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		// PG fallback stores only the user ID; hydrate the rest.
		if full, err := s.store.GetUserByID(ctx, user.ID); err == nil {
			user = full
		}
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Kind: auth.KindSession,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	if claims.Kind != auth.KindSession {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// ── Author form management ──

func (s *Service) CreateForm(ctx context.Context, session Session, input CreateFormInput) (store.Form, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Form{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	schema := input.Schema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"questions":[]}`)
	} else if err := editor.Validate(schema); err != nil {
		return store.Form{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	form := store.Form{
		ID:          util.NewID("frm"),
		OwnerID:     session.UserID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Schema:      schema,
		Status:      store.FormStatusDraft,
	}
	if err := s.store.InsertForm(ctx, form); err != nil {
		return store.Form{}, err
	}
	s.indexForm(form)
	return form, nil
}

// ownedForm loads a form and enforces ownership. A form owned by someone
// else reads as not-found so the route does not leak form existence.
func (s *Service) ownedForm(ctx context.Context, session Session, formID string) (store.Form, error) {
	form, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return store.Form{}, err
	}
	if form.OwnerID != session.UserID {
		return store.Form{}, sql.ErrNoRows
	}
	return form, nil
}

func (s *Service) GetForm(ctx context.Context, session Session, formID string) (store.Form, error) {
	return s.ownedForm(ctx, session, formID)
}

func (s *Service) ListForms(ctx context.Context, session Session) ([]store.FormSummary, error) {
	return s.store.ListFormsByOwner(ctx, session.UserID)
}

func (s *Service) UpdateForm(ctx context.Context, session Session, formID string, input UpdateFormInput) (store.Form, error) {
	form, err := s.ownedForm(ctx, session, formID)
	if err != nil {
		return store.Form{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return store.Form{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be empty", nil)
		}
		form.Title = title
	}
	if input.Description != nil {
		form.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		switch *input.Status {
		case store.FormStatusDraft, store.FormStatusPublished, store.FormStatusClosed:
			form.Status = *input.Status
		default:
			return store.Form{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status", nil)
		}
	}
	if input.ScheduleStart != nil {
		form.ScheduleStart = unixOrNil(*input.ScheduleStart)
	}
	if input.ScheduleEnd != nil {
		form.ScheduleEnd = unixOrNil(*input.ScheduleEnd)
	}
	if form.ScheduleStart != nil && form.ScheduleEnd != nil && form.ScheduleEnd.Before(*form.ScheduleStart) {
		return store.Form{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "schedule end precedes start", nil)
	}
	if input.MaxResponses != nil {
		if *input.MaxResponses < 0 {
			return store.Form{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "maxResponses must be >= 0", nil)
		}
		if *input.MaxResponses == 0 {
			form.MaxResponses = nil
		} else {
			form.MaxResponses = input.MaxResponses
		}
	}
	if input.Password != nil {
		if *input.Password == "" {
			form.PasswordHash = ""
		} else {
			hash, err := authpw.HashPassword(*input.Password)
			if err != nil {
				return store.Form{}, err
			}
			form.PasswordHash = hash
		}
	}
	if input.RequireLogin != nil {
		form.RequireLogin = *input.RequireLogin
	}
	if input.CollectEmail != nil {
		form.CollectEmail = *input.CollectEmail
	}

	if err := s.store.UpdateFormSettings(ctx, form); err != nil {
		return store.Form{}, err
	}
	s.indexForm(form)
	return form, nil
}

func (s *Service) DeleteForm(ctx context.Context, session Session, formID string) error {
	if _, err := s.ownedForm(ctx, session, formID); err != nil {
		return err
	}
	if err := s.store.DeleteForm(ctx, formID); err != nil {
		return err
	}
	if s.editor != nil {
		s.editor.Discard(formID)
	}
	if s.search != nil {
		s.search.DeleteForm(formID)
	}
	return nil
}

func (s *Service) SearchForms(session Session, query string, status string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}
	}
	return s.search.Search(search.Query{
		Text:         query,
		OwnerID:      session.UserID,
		FilterStatus: status,
		Limit:        limit,
		Offset:       offset,
	})
}

func (s *Service) indexForm(form store.Form) {
	if s.search == nil {
		return
	}
	s.search.IndexForm(search.FormRecord{
		ID:          form.ID,
		Title:       form.Title,
		Description: form.Description,
		OwnerID:     form.OwnerID,
		Status:      form.Status,
	})
}

// ── Editing sessions ──

func (s *Service) editorSession(ctx context.Context, session Session, formID string) (*editor.Session, error) {
	if _, err := s.ownedForm(ctx, session, formID); err != nil {
		return nil, err
	}
	return s.editor.Open(ctx, formID)
}

func (s *Service) EditorState(ctx context.Context, session Session, formID string) (editor.State, error) {
	sess, err := s.editorSession(ctx, session, formID)
	if err != nil {
		return editor.State{}, err
	}
	return sess.State(), nil
}

func (s *Service) ApplySchema(ctx context.Context, session Session, formID string, schema json.RawMessage, immediate bool) (editor.State, error) {
	if err := editor.Validate(schema); err != nil {
		return editor.State{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	sess, err := s.editorSession(ctx, session, formID)
	if err != nil {
		return editor.State{}, err
	}
	return sess.Apply(schema, immediate), nil
}

func (s *Service) UndoSchema(ctx context.Context, session Session, formID string) (editor.State, bool, error) {
	sess, err := s.editorSession(ctx, session, formID)
	if err != nil {
		return editor.State{}, false, err
	}
	state, ok := sess.Undo()
	return state, ok, nil
}

func (s *Service) RedoSchema(ctx context.Context, session Session, formID string) (editor.State, bool, error) {
	sess, err := s.editorSession(ctx, session, formID)
	if err != nil {
		return editor.State{}, false, err
	}
	state, ok := sess.Redo()
	return state, ok, nil
}

func (s *Service) SaveSchema(ctx context.Context, session Session, formID string) (editor.State, error) {
	sess, err := s.editorSession(ctx, session, formID)
	if err != nil {
		return editor.State{}, err
	}
	saveErr := sess.Save(ctx)
	return sess.State(), saveErr
}

func (s *Service) RollbackSchema(ctx context.Context, session Session, formID string) (editor.State, error) {
	sess, err := s.editorSession(ctx, session, formID)
	if err != nil {
		return editor.State{}, err
	}
	return sess.Rollback(), nil
}

// ── Public form surface ──

// accessConfig projects a form row into the gatekeeper's view of it.
func (s *Service) accessConfig(ctx context.Context, form store.Form) (access.Config, error) {
	count, err := s.store.CountResponses(ctx, form.ID)
	if err != nil {
		return access.Config{}, err
	}
	return access.Config{
		IsPublished:      form.Status == store.FormStatusPublished,
		ScheduleStart:    form.ScheduleStart,
		ScheduleEnd:      form.ScheduleEnd,
		MaxResponses:     form.MaxResponses,
		CurrentResponses: count,
		PasswordHash:     form.PasswordHash,
		RequireLogin:     form.RequireLogin,
	}, nil
}

// PublicForm is the respondent view. The schema is withheld until the caller
// clears every gate, so a password-protected form does not leak its questions.
func (s *Service) PublicForm(ctx context.Context, formID string, caller Caller) (map[string]any, error) {
	form, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.accessConfig(ctx, form)
	if err != nil {
		return nil, err
	}

	now := s.now()
	verdict := access.Evaluate(cfg, access.Caller{HasPassword: caller.HasPassword, IsLoggedIn: caller.IsLoggedIn}, now)

	view := map[string]any{
		"id":           form.ID,
		"title":        form.Title,
		"description":  form.Description,
		"status":       string(access.StatusOf(cfg, now)),
		"accepting":    verdict.Allowed,
		"requireLogin": form.RequireLogin,
		"hasPassword":  form.PasswordHash != "",
		"collectEmail": form.CollectEmail,
	}
	if verdict.Allowed {
		view["schema"] = form.Schema
		if verdict.ResponsesRemaining != nil {
			view["responsesRemaining"] = *verdict.ResponsesRemaining
		}
	} else {
		view["reason"] = string(verdict.Reason)
		if verdict.StartsAt != nil {
			view["startsAt"] = verdict.StartsAt.Unix()
		}
		if verdict.EndsAt != nil {
			view["endsAt"] = verdict.EndsAt.Unix()
		}
	}
	return view, nil
}

// VerifyFormPassword checks a respondent-supplied password and issues a
// short-lived pass token bound to the form. The raw password never travels
// past this call.
func (s *Service) VerifyFormPassword(ctx context.Context, formID, password string) (string, error) {
	form, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return "", err
	}
	if form.PasswordHash == "" {
		return "", domainError(http.StatusBadRequest, "NO_PASSWORD", "Form has no password", nil)
	}
	if !authpw.VerifyPassword(form.PasswordHash, password) {
		return "", domainError(http.StatusUnauthorized, "WRONG_PASSWORD", "Incorrect password", nil)
	}

	return auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:    "respondent",
		Kind:   auth.KindFormPass,
		FormID: formID,
		JTI:    util.NewID("jti"),
		Exp:    s.now().Add(s.cfg.PassTokenTTL).Unix(),
	})
}

// HasFormPass reports whether a pass token proves password verification for
// formID. Invalid or foreign tokens simply read as no-pass.
func (s *Service) HasFormPass(token, formID string) bool {
	if token == "" {
		return false
	}
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return false
	}
	return claims.Kind == auth.KindFormPass && claims.FormID == formID
}

// ── Submission ──

// SubmitResponse is the rate-limited two-step write. Order matters: throttle
// before touching the store, gatekeep before writing, and compensate the
// response row if the answer batch fails so no half-submission survives.
func (s *Service) SubmitResponse(ctx context.Context, formID string, caller Caller, input SubmitInput) (SubmitResult, error) {
	bucket := ratelimit.Bucket{Name: "form_submit", Limit: s.cfg.SubmitLimit, Window: s.cfg.SubmitWindow}
	limit, err := s.limiter.Check(ctx, bucket, formID+":"+caller.Identity)
	if err != nil {
		// Limiter backend failure fails open: a throttling outage must not
		// block submissions.
		log.Printf("app: rate limiter check failed, allowing: %v", err)
		limit = ratelimit.Result{Allowed: true, Limit: bucket.Limit, Remaining: bucket.Limit}
	}
	result := SubmitResult{Limit: limit}
	if !limit.Allowed {
		return result, domainError(http.StatusTooManyRequests, "RATE_LIMITED",
			"Too many submissions, slow down", map[string]any{
				"retryAfter": int(limit.RetryAfter.Seconds()),
			})
	}

	if err := validateSubmit(input); err != nil {
		return result, err
	}

	form, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return result, err
	}
	cfg, err := s.accessConfig(ctx, form)
	if err != nil {
		return result, err
	}
	verdict := access.Evaluate(cfg, access.Caller{HasPassword: caller.HasPassword, IsLoggedIn: caller.IsLoggedIn}, s.now())
	if !verdict.Allowed {
		return result, accessDenied(verdict)
	}

	response := store.Response{
		ID:     uuid.NewString(),
		FormID: formID,
	}
	if caller.IsLoggedIn {
		respondentID := caller.UserID
		response.RespondentID = &respondentID
	}
	if form.CollectEmail {
		response.RespondentEmail = strings.TrimSpace(input.RespondentEmail)
	}

	if err := s.store.InsertResponse(ctx, response); err != nil {
		return result, domainError(http.StatusInternalServerError, "STORE_ERROR", "Failed to save response", nil)
	}

	answers := make([]store.Answer, 0, len(input.Answers))
	for questionID, value := range input.Answers {
		answers = append(answers, store.Answer{
			ID:         uuid.NewString(),
			ResponseID: response.ID,
			QuestionID: questionID,
			Value:      value,
		})
	}
	if err := s.store.InsertAnswers(ctx, answers); err != nil {
		// Compensating delete: never leave a response row without its
		// answers. Runs detached from the request context so a client
		// disconnect cannot abort the cleanup.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := s.store.DeleteResponse(cleanupCtx, response.ID); delErr != nil {
			log.Printf("app: compensating delete of response %s failed: %v", response.ID, delErr)
		}
		return result, domainError(http.StatusInternalServerError, "STORE_ERROR", "Failed to save answers", nil)
	}

	result.ResponseID = response.ID
	s.notifyOwner(form, response.ID)
	return result, nil
}

func validateSubmit(input SubmitInput) error {
	if input.decodeErr != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", input.decodeErr.Error(), nil)
	}
	if len(input.Answers) == 0 {
		return domainError(http.StatusBadRequest, "INVALID_BODY", "answers must not be empty", nil)
	}
	for questionID, value := range input.Answers {
		if strings.TrimSpace(questionID) == "" {
			return domainError(http.StatusBadRequest, "INVALID_BODY", "answer question id must not be empty", nil)
		}
		if !json.Valid(value) {
			return domainError(http.StatusBadRequest, "INVALID_BODY",
				fmt.Sprintf("answer %q is not valid JSON", questionID), nil)
		}
	}
	if email := strings.TrimSpace(input.RespondentEmail); email != "" {
		if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
			return domainError(http.StatusBadRequest, "INVALID_BODY", "respondentEmail is not a valid address", nil)
		}
	}
	return nil
}

// notifyOwner emails the form owner about a new response, fire-and-forget.
func (s *Service) notifyOwner(form store.Form, responseID string) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		owner, err := s.store.GetUserByID(ctx, form.OwnerID)
		if err != nil {
			log.Printf("app: notify owner of form %s: %v", form.ID, err)
			return
		}
		if err := s.email.SendNewResponseNotification(owner.Email, form.Title, responseID); err != nil {
			log.Printf("app: notify owner of form %s: %v", form.ID, err)
		}
	}()
}

// UploadAttachment stores a respondent file for a form they are allowed to
// submit to. Validation of size/type/count happens in the upload service;
// this only gatekeeps.
func (s *Service) UploadAttachment(ctx context.Context, formID string, caller Caller, name, contentType string, size int64, r io.Reader) (upload.FileInfo, error) {
	if s.uploads == nil {
		return upload.FileInfo{}, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "File uploads are not configured", nil)
	}
	form, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return upload.FileInfo{}, err
	}
	cfg, err := s.accessConfig(ctx, form)
	if err != nil {
		return upload.FileInfo{}, err
	}
	verdict := access.Evaluate(cfg, access.Caller{HasPassword: caller.HasPassword, IsLoggedIn: caller.IsLoggedIn}, s.now())
	if !verdict.Allowed {
		return upload.FileInfo{}, accessDenied(verdict)
	}

	info, err := s.uploads.Upload(ctx, formID, name, contentType, size, r)
	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		return upload.FileInfo{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", verr.Reason, nil)
	}
	if err != nil {
		return upload.FileInfo{}, domainError(http.StatusInternalServerError, "STORE_ERROR", "Failed to store file", nil)
	}
	return info, nil
}

// ── Response review ──

func (s *Service) ListResponses(ctx context.Context, session Session, formID string) ([]store.Response, error) {
	if _, err := s.ownedForm(ctx, session, formID); err != nil {
		return nil, err
	}
	return s.store.ListResponses(ctx, formID)
}

func (s *Service) GetResponse(ctx context.Context, session Session, formID, responseID string) (store.Response, []store.Answer, error) {
	if _, err := s.ownedForm(ctx, session, formID); err != nil {
		return store.Response{}, nil, err
	}
	responses, err := s.store.ListResponses(ctx, formID)
	if err != nil {
		return store.Response{}, nil, err
	}
	for _, response := range responses {
		if response.ID == responseID {
			answers, err := s.store.ListAnswers(ctx, responseID)
			if err != nil {
				return store.Response{}, nil, err
			}
			return response, answers, nil
		}
	}
	return store.Response{}, nil, sql.ErrNoRows
}

func unixOrNil(seconds int64) *time.Time {
	if seconds == 0 {
		return nil
	}
	t := time.Unix(seconds, 0).UTC()
	return &t
}
