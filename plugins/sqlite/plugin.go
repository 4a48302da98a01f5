// Package sqlite provides a SQLite-backed session store and committer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/BDNK1/wizflow/runtime/plugin"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type Config struct {
	Path        string        `yaml:"path" default:"wizflow.db" validate:"required"`
	SessionTTL  time.Duration `yaml:"session_ttl" default:"24h" validate:"gte=1m"`
	BusyTimeout time.Duration `yaml:"busy_timeout" default:"5s" validate:"gte=0"`
}

const schema = `
CREATE TABLE IF NOT EXISTS wizard_sessions (
	id         TEXT PRIMARY KEY,
	journey    TEXT NOT NULL,
	document   TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS wizard_sessions_expires_at ON wizard_sessions (expires_at);
CREATE TABLE IF NOT EXISTS journey_results (
	session_id   TEXT PRIMARY KEY,
	journey      TEXT NOT NULL,
	answers      TEXT NOT NULL,
	items        TEXT NOT NULL,
	committed_at INTEGER NOT NULL
);`

// SQLitePlugin persists sessions in a single SQLite file.
type SQLitePlugin struct {
	Config Config
	sqlDB  *sql.DB
	l      *slog.Logger
	now    func() time.Time
}

func New(cfg Config, l *slog.Logger) *SQLitePlugin {
	return &SQLitePlugin{Config: cfg, l: l, now: func() time.Time { return time.Now().UTC() }}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Initialize opens the database and creates the tables.
func (p *SQLitePlugin) Initialize(ctx context.Context) error {
	path := strings.TrimSpace(p.Config.Path)
	if path == "" {
		return fmt.Errorf("sqlite: storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
			filepath.Clean(path), p.Config.BusyTimeout.Milliseconds())
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("sqlite: open db: %w", err)
	}
	// One connection: SQLite serializes writers, and :memory: databases
	// are per-connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("sqlite: ping db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("sqlite: create schema: %w", err)
	}

	p.sqlDB = sqlDB
	p.l.Info("SQLite session store ready", "path", path)
	return nil
}

func (p *SQLitePlugin) Shutdown(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func (p *SQLitePlugin) SessionStore() plugin.SessionStore { return p }

func (p *SQLitePlugin) Committer() plugin.Committer { return p }

func (p *SQLitePlugin) Get(ctx context.Context, id string) (*plugin.Session, error) {
	if p.sqlDB == nil {
		return nil, fmt.Errorf("sqlite: storage is not configured")
	}

	var doc string
	err := p.sqlDB.QueryRowContext(ctx,
		`SELECT document FROM wizard_sessions WHERE id = ? AND expires_at > ?`,
		id, toMillis(p.now()),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &plugin.NotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load session %s: %w", id, err)
	}

	var s plugin.Session
	if err := json.Unmarshal([]byte(doc), &s); err != nil {
		return nil, fmt.Errorf("sqlite: decode session %s: %w", id, err)
	}
	return &s, nil
}

func (p *SQLitePlugin) Put(ctx context.Context, id string, s *plugin.Session) error {
	if p.sqlDB == nil {
		return fmt.Errorf("sqlite: storage is not configured")
	}

	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sqlite: encode session %s: %w", id, err)
	}

	now := p.now()
	_, err = p.sqlDB.ExecContext(ctx,
		`INSERT INTO wizard_sessions (id, journey, document, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   document = excluded.document,
		   updated_at = excluded.updated_at,
		   expires_at = excluded.expires_at`,
		id, s.JourneyType, string(doc), toMillis(now), toMillis(now.Add(p.Config.SessionTTL)),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save session %s: %w", id, err)
	}
	return nil
}

func (p *SQLitePlugin) Delete(ctx context.Context, id string) error {
	if p.sqlDB == nil {
		return fmt.Errorf("sqlite: storage is not configured")
	}
	if _, err := p.sqlDB.ExecContext(ctx, `DELETE FROM wizard_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete session %s: %w", id, err)
	}
	return nil
}

// Purge deletes expired sessions.
func (p *SQLitePlugin) Purge(ctx context.Context) (int64, error) {
	result, err := p.sqlDB.ExecContext(ctx, `DELETE FROM wizard_sessions WHERE expires_at <= ?`, toMillis(p.now()))
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge sessions: %w", err)
	}
	return result.RowsAffected()
}

// Commit records the finished journey once; a repeat commit of the same
// session is ignored.
func (p *SQLitePlugin) Commit(ctx context.Context, s *plugin.Session) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("sqlite: encode answers: %w", err)
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("sqlite: encode items: %w", err)
	}

	_, err = p.sqlDB.ExecContext(ctx,
		`INSERT INTO journey_results (session_id, journey, answers, items, committed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.JourneyType, string(answers), string(items), toMillis(p.now()),
	)
	if isUniqueViolation(err) {
		p.l.Warn("Journey already committed", "session_id", s.ID, "journey", s.JourneyType)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sqlite: commit session %s: %w", s.ID, err)
	}
	return nil
}

// Result is a committed journey as read back from journey_results.
type Result struct {
	SessionID   string
	Journey     string
	Answers     map[string]any
	Items       []map[string]any
	CommittedAt time.Time
}

// Result loads the committed record for a session.
func (p *SQLitePlugin) Result(ctx context.Context, sessionID string) (*Result, error) {
	var (
		r              Result
		answers, items string
		committedAt    int64
	)
	err := p.sqlDB.QueryRowContext(ctx,
		`SELECT session_id, journey, answers, items, committed_at FROM journey_results WHERE session_id = ?`,
		sessionID,
	).Scan(&r.SessionID, &r.Journey, &answers, &items, &committedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load result %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("sqlite: decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &r.Items); err != nil {
		return nil, fmt.Errorf("sqlite: decode items: %w", err)
	}
	r.CommittedAt = fromMillis(committedAt)
	return &r, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
