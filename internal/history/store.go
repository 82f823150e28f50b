// store.go records finished deployments in an on-disk SQLite database so the CLI
// can list what it shipped without asking the backend.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/nephelios/internal/progress"
)

const (
	createTableStmt = `
CREATE TABLE IF NOT EXISTS deployments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TEXT NOT NULL,
    container_id TEXT,
    app_name TEXT NOT NULL,
    app_type TEXT,
    domain TEXT,
    github_url TEXT,
    status TEXT,
    created_at TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0
);`
	createIndexesStmt = `
CREATE INDEX IF NOT EXISTS idx_deployments_app ON deployments(app_name);
CREATE INDEX IF NOT EXISTS idx_deployments_recorded ON deployments(recorded_at);`
	insertStmt = `INSERT INTO deployments(recorded_at, container_id, app_name, app_type, domain, github_url, status, created_at, duration_ms) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`
	listStmt   = `SELECT recorded_at, container_id, app_name, app_type, domain, github_url, status, created_at, duration_ms FROM deployments ORDER BY id DESC LIMIT ?`
)

// Entry is one recorded deployment.
type Entry struct {
	RecordedAt time.Time                    `json:"recorded_at" yaml:"recorded_at"`
	App        progress.DeployedApplication `json:"app" yaml:"app"`
	Duration   time.Duration                `json:"duration" yaml:"duration"`
}

// Store persists deployment results.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	now    func() time.Time
}

// DefaultPath returns the history database location under the user's data directory.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "nephelios", "history.db")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".nephelios", "history.db")
	}
	return "nephelios-history.db"
}

// Open initializes a Store pointing at the given on-disk SQLite file.
func Open(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("history path cannot be empty")
	}
	dir := filepath.Dir(p)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure deployments table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createIndexesStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure deployment indexes: %w", err)
	}
	stmt, err := db.PrepareContext(ctx, insertStmt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert statement: %w", err)
	}
	return &Store{db: db, insert: stmt, now: time.Now}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	var err error
	if s.insert != nil {
		err = errors.Join(err, s.insert.Close())
	}
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

// Record stores a finished deployment.
func (s *Store) Record(ctx context.Context, app progress.DeployedApplication, took time.Duration) error {
	if s == nil {
		return nil
	}
	if strings.TrimSpace(app.AppName) == "" {
		return errors.New("history entry requires an app name")
	}
	_, err := s.insert.ExecContext(ctx,
		s.now().UTC().Format(time.RFC3339Nano),
		app.ContainerID,
		app.AppName,
		app.AppType,
		app.Domain,
		app.GitHubURL,
		app.Status,
		app.CreatedAt,
		took.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listStmt, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			recorded   string
			entry      Entry
			durationMS int64
		)
		var containerID, appType, domain, githubURL, status, createdAt sql.NullString
		if err := rows.Scan(&recorded, &containerID, &entry.App.AppName, &appType, &domain, &githubURL, &status, &createdAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
			entry.RecordedAt = ts
		}
		entry.App.ContainerID = containerID.String
		entry.App.AppType = appType.String
		entry.App.Domain = domain.String
		entry.App.GitHubURL = githubURL.String
		entry.App.Status = status.String
		entry.App.CreatedAt = createdAt.String
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
