// Package journal keeps a per-vault activity log of sync operations in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Dir is the app's private directory inside a vault. It is git-ignored.
const Dir = ".moss"

// FileName is the journal database file inside Dir.
const FileName = "activity.db"

// DefaultLimit is used by Recent for non-positive limits.
const DefaultLimit = 50

// Outcome classifies how an operation ended.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeError    Outcome = "error"
	OutcomeConflict Outcome = "conflict"
)

// Entry is one recorded operation.
type Entry struct {
	ID      string    `json:"id"`
	Op      string    `json:"op"`
	Outcome Outcome   `json:"outcome"`
	Commit  string    `json:"commit,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Journal is safe for concurrent use.
type Journal struct {
	db        *sql.DB
	path      string
	closeOnce sync.Once
}

// Open opens (creating if needed) the journal of the vault at root.
func Open(root string) (*Journal, error) {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return OpenPath(filepath.Join(dir, FileName))
}

// OpenPath opens a journal database at an explicit path.
func OpenPath(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	dsn, err := dataSourceName(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db, path: path}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// dataSourceName builds a file: URI for path. SQLite decodes the URI path, so
// characters such as '?', '#' and '%' in directory names are escaped.
func dataSourceName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{
		Scheme:   "file",
		Path:     p,
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
	}
	return u.String(), nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		outcome TEXT NOT NULL,
		commit_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_at ON activity(at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Record stores e. A missing ID or timestamp is filled in.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO activity (id, op, outcome, commit_id, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Op, string(e.Outcome), e.Commit, e.Detail, e.At.UnixNano())
	if err != nil {
		return e, fmt.Errorf("failed to record %s: %w", e.Op, err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, op, outcome, commit_id, detail, at FROM activity ORDER BY at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			outcome string
			at      int64
		)
		if err := rows.Scan(&e.ID, &e.Op, &outcome, &e.Commit, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database. Further calls are no-ops.
func (j *Journal) Close() error {
	var err error
	j.closeOnce.Do(func() {
		err = j.db.Close()
	})
	return err
}
