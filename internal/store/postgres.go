package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash)
		VALUES ($1, $2, LOWER($3), $4)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ── Refresh sessions (Postgres fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ── Forms ──

func (s *PostgresStore) InsertForm(ctx context.Context, form Form) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forms (id, owner_id, title, description, schema, status,
			schedule_start, schedule_end, max_responses, password_hash, require_login, collect_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, form.ID, form.OwnerID, form.Title, form.Description, schemaOrEmpty(form.Schema), form.Status,
		form.ScheduleStart, form.ScheduleEnd, form.MaxResponses, nullableString(form.PasswordHash),
		form.RequireLogin, form.CollectEmail)
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetForm(ctx context.Context, formID string) (Form, error) {
	const query = `
		SELECT id, owner_id, title, description, schema, status,
			schedule_start, schedule_end, max_responses, COALESCE(password_hash, ''),
			require_login, collect_email, created_at, updated_at
		FROM forms WHERE id = $1
	`
	var form Form
	err := s.db.QueryRowContext(ctx, query, formID).Scan(
		&form.ID, &form.OwnerID, &form.Title, &form.Description, &form.Schema, &form.Status,
		&form.ScheduleStart, &form.ScheduleEnd, &form.MaxResponses, &form.PasswordHash,
		&form.RequireLogin, &form.CollectEmail, &form.CreatedAt, &form.UpdatedAt,
	)
	if err != nil {
		return Form{}, err
	}
	return form, nil
}

func (s *PostgresStore) ListFormsByOwner(ctx context.Context, ownerID string) ([]FormSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.title, f.status, COUNT(r.id), f.updated_at
		FROM forms f
		LEFT JOIN responses r ON r.form_id = f.id
		WHERE f.owner_id = $1
		GROUP BY f.id
		ORDER BY f.updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var items []FormSummary
	for rows.Next() {
		var item FormSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.Status, &item.ResponseCount, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan form summary: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateFormSchema(ctx context.Context, formID string, schema []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE forms SET schema=$2, updated_at=NOW() WHERE id=$1
	`, formID, schema)
	if err != nil {
		return fmt.Errorf("update form schema: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpdateFormSettings(ctx context.Context, form Form) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE forms SET title=$2, description=$3, status=$4,
			schedule_start=$5, schedule_end=$6, max_responses=$7,
			password_hash=$8, require_login=$9, collect_email=$10, updated_at=NOW()
		WHERE id=$1
	`, form.ID, form.Title, form.Description, form.Status,
		form.ScheduleStart, form.ScheduleEnd, form.MaxResponses,
		nullableString(form.PasswordHash), form.RequireLogin, form.CollectEmail)
	if err != nil {
		return fmt.Errorf("update form settings: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteForm(ctx context.Context, formID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM forms WHERE id=$1`, formID)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return requireRow(result)
}

// ── Responses & answers ──

func (s *PostgresStore) CountResponses(ctx context.Context, formID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE form_id=$1`, formID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertResponse(ctx context.Context, response Response) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (id, form_id, respondent_id, respondent_email)
		VALUES ($1, $2, $3, $4)
	`, response.ID, response.FormID, response.RespondentID, nullableString(response.RespondentEmail))
	if err != nil {
		return fmt.Errorf("insert response: %w", err)
	}
	return nil
}

// InsertAnswers writes all answer rows for one response in a single
// multi-row statement, so the batch lands or fails as a unit.
func (s *PostgresStore) InsertAnswers(ctx context.Context, answers []Answer) error {
	if len(answers) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO answers (id, response_id, question_id, value) VALUES `)
	args := make([]any, 0, len(answers)*4)
	for i, a := range answers {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, a.ID, a.ResponseID, a.QuestionID, []byte(a.Value))
	}
	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

// DeleteResponse removes a response row; the answers FK cascades.
func (s *PostgresStore) DeleteResponse(ctx context.Context, responseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id=$1`, responseID)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, formID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, respondent_id, COALESCE(respondent_email, ''), created_at
		FROM responses WHERE form_id=$1
		ORDER BY created_at DESC
	`, formID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var items []Response
	for rows.Next() {
		var item Response
		if err := rows.Scan(&item.ID, &item.FormID, &item.RespondentID, &item.RespondentEmail, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListAnswers(ctx context.Context, responseID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, response_id, question_id, value
		FROM answers WHERE response_id=$1
		ORDER BY question_id
	`, responseID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var items []Answer
	for rows.Next() {
		var item Answer
		if err := rows.Scan(&item.ID, &item.ResponseID, &item.QuestionID, &item.Value); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func schemaOrEmpty(schema []byte) []byte {
	if len(schema) == 0 {
		return []byte(`{"questions":[]}`)
	}
	return schema
}
