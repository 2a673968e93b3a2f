package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery against the generated fts column on forms,
// ranked with ts_rank and snippeted with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "f.owner_id = $2 AND f.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OwnerID}
	if q.FilterStatus != "" {
		where += " AND f.status = $3"
		args = append(args, q.FilterStatus)
	}

	query := fmt.Sprintf(`
		SELECT f.id, f.title,
			ts_headline('english', coalesce(f.description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			f.status, f.owner_id,
			COUNT(*) OVER () AS total
		FROM forms f
		WHERE %s
		ORDER BY ts_rank(f.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Status, &r.OwnerID, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every form for reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]FormRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, ''), owner_id, status FROM forms`)
	if err != nil {
		return nil, fmt.Errorf("pgfts load forms: %w", err)
	}
	defer rows.Close()

	var forms []FormRecord
	for rows.Next() {
		var f FormRecord
		if err := rows.Scan(&f.ID, &f.Title, &f.Description, &f.OwnerID, &f.Status); err != nil {
			return nil, fmt.Errorf("pgfts scan form: %w", err)
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}
