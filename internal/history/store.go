// Package history keeps a local record of uploads, submitted executions and
// cached session tokens in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/azkit/internal/storage"
)

// DefaultListLimit bounds List* calls given a non-positive limit.
const DefaultListLimit = 20

// Upload is one archive upload.
type Upload struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Project    string    `json:"project"`
	Digest     string    `json:"archive_digest"`
	Size       int64     `json:"archive_size"`
	Version    string    `json:"version,omitempty"`
	ProjectID  string    `json:"project_id,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Execution is one submitted flow run. Jobs is empty when the whole flow ran.
type Execution struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	Project          string    `json:"project"`
	Flow             string    `json:"flow"`
	ExecID           int       `json:"exec_id"`
	Jobs             []string  `json:"jobs"`
	ConcurrentOption string    `json:"concurrent_option"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// Store reads and writes history records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an already bootstrapped database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open opens the database at path, creating it if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordUpload stores u, filling ID and UploadedAt when unset.
func (s *Store) RecordUpload(ctx context.Context, u Upload) (Upload, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO uploads(id, url, project, archive_digest, archive_size, version, project_id, uploaded_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, u.ID, u.URL, u.Project, u.Digest, u.Size, u.Version, u.ProjectID, formatTime(u.UploadedAt))
	if err != nil {
		return Upload{}, fmt.Errorf("insert upload: %w", err)
	}
	return u, nil
}

// RecordExecution stores e, filling ID and SubmittedAt when unset.
func (s *Store) RecordExecution(ctx context.Context, e Execution) (Execution, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = s.now()
	}
	if e.Jobs == nil {
		e.Jobs = []string{}
	}
	jobs, err := json.Marshal(e.Jobs)
	if err != nil {
		return Execution{}, fmt.Errorf("encode jobs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO executions(id, url, project, flow, exec_id, jobs, concurrent_option, submitted_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.URL, e.Project, e.Flow, e.ExecID, string(jobs), e.ConcurrentOption, formatTime(e.SubmittedAt))
	if err != nil {
		return Execution{}, fmt.Errorf("insert execution: %w", err)
	}
	return e, nil
}

// ListUploads returns up to limit uploads, newest first.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, project, archive_digest, archive_size, COALESCE(version, ''), COALESCE(project_id, ''), uploaded_at
FROM uploads
ORDER BY uploaded_at DESC, rowid DESC
LIMIT ?;
`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var (
			u  Upload
			at string
		)
		if err := rows.Scan(&u.ID, &u.URL, &u.Project, &u.Digest, &u.Size, &u.Version, &u.ProjectID, &at); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if u.UploadedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// ListExecutions returns up to limit executions, newest first.
func (s *Store) ListExecutions(ctx context.Context, limit int) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, project, flow, exec_id, jobs, concurrent_option, submitted_at
FROM executions
ORDER BY submitted_at DESC, rowid DESC
LIMIT ?;
`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e        Execution
			jobs, at string
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.Project, &e.Flow, &e.ExecID, &jobs, &e.ConcurrentOption, &at); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if err := json.Unmarshal([]byte(jobs), &e.Jobs); err != nil {
			return nil, fmt.Errorf("stored jobs for execution %s are invalid JSON: %w", e.ID, err)
		}
		if e.SubmittedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// SaveSession caches the token issued to user at url, replacing any previous one.
func (s *Store) SaveSession(ctx context.Context, url, user, sessionID string) error {
	if url == "" || user == "" {
		return fmt.Errorf("session url and user are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(url, user, session_id, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(url, user) DO UPDATE SET
  session_id = excluded.session_id,
  updated_at = excluded.updated_at;
`, url, user, sessionID, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// LoadSession returns the cached token for user at url, or "" if none.
func (s *Store) LoadSession(ctx context.Context, url, user string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT session_id FROM sessions WHERE url = ? AND user = ?;", url, user).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}
	return id, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
