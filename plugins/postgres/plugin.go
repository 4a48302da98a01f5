package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BDNK1/wizflow/runtime/plugin"
	_ "github.com/lib/pq"
)

// Config holds the Postgres plugin configuration
type Config struct {
	ConnectionString string        `yaml:"connection_string" validate:"required,dsn"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m" validate:"gte=0"`
	SessionTTL       time.Duration `yaml:"session_ttl" default:"24h" validate:"gte=1m"`
	Migrate          bool          `yaml:"migrate" default:"true"`
}

const schema = `
CREATE TABLE IF NOT EXISTS wizard_sessions (
	id         TEXT PRIMARY KEY,
	journey    TEXT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS wizard_sessions_expires_at ON wizard_sessions (expires_at);
CREATE TABLE IF NOT EXISTS journey_results (
	session_id   TEXT PRIMARY KEY,
	journey      TEXT NOT NULL,
	answers      JSONB NOT NULL,
	items        JSONB NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL
);`

// PostgresPlugin stores sessions in PostgreSQL and commits finished
// journeys to the journey_results table.
type PostgresPlugin struct {
	Config Config
	db     *sql.DB
	l      *slog.Logger
	now    func() time.Time
}

func New(cfg Config, l *slog.Logger) *PostgresPlugin {
	return &PostgresPlugin{Config: cfg, l: l, now: func() time.Time { return time.Now().UTC() }}
}

// NewWithDB wraps an open database handle; Initialize will not reconnect.
func NewWithDB(db *sql.DB, cfg Config, l *slog.Logger) *PostgresPlugin {
	p := New(cfg, l)
	p.db = db
	return p
}

// Initialize opens the connection pool and creates the tables.
func (p *PostgresPlugin) Initialize(ctx context.Context) error {
	if p.db == nil {
		p.l.Info("Opening postgres connection", "dsn", maskConnectionString(p.Config.ConnectionString))

		db, err := sql.Open("postgres", p.Config.ConnectionString)
		if err != nil {
			return fmt.Errorf("postgres: failed to open connection: %w", err)
		}

		db.SetMaxOpenConns(p.Config.MaxOpenConns)
		db.SetMaxIdleConns(p.Config.MaxIdleConns)
		db.SetConnMaxLifetime(p.Config.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fmt.Errorf("postgres: failed to ping database: %w", err)
		}
		p.db = db
	}

	if p.Config.Migrate {
		if _, err := p.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("postgres: failed to create schema: %w", err)
		}
	}
	return nil
}

// Shutdown closes the connection pool
func (p *PostgresPlugin) Shutdown(ctx context.Context) error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PostgresPlugin) SessionStore() plugin.SessionStore { return p }

func (p *PostgresPlugin) Committer() plugin.Committer { return p }

// Get loads an unexpired session document.
func (p *PostgresPlugin) Get(ctx context.Context, id string) (*plugin.Session, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT document FROM wizard_sessions WHERE id = $1 AND expires_at > $2`,
		id, p.now(),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &plugin.NotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load session %s: %w", id, err)
	}

	var s plugin.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("postgres: decode session %s: %w", id, err)
	}
	return &s, nil
}

// Put upserts the document and pushes its expiry forward.
func (p *PostgresPlugin) Put(ctx context.Context, id string, s *plugin.Session) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("postgres: encode session %s: %w", id, err)
	}

	now := p.now()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO wizard_sessions (id, journey, document, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
		id, s.JourneyType, doc, now, now.Add(p.Config.SessionTTL),
	)
	if err != nil {
		return fmt.Errorf("postgres: save session %s: %w", id, err)
	}
	return nil
}

func (p *PostgresPlugin) Delete(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM wizard_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete session %s: %w", id, err)
	}
	return nil
}

// Purge deletes expired sessions and returns how many were removed.
func (p *PostgresPlugin) Purge(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM wizard_sessions WHERE expires_at <= $1`, p.now())
	if err != nil {
		return 0, fmt.Errorf("postgres: purge sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get affected rows: %w", err)
	}
	return affected, nil
}

// Commit records the finished journey. Committing the same session twice
// is a no-op.
func (p *PostgresPlugin) Commit(ctx context.Context, s *plugin.Session) error {
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("postgres: encode answers: %w", err)
	}
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode items: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin commit: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journey_results (session_id, journey, answers, items, committed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`,
		s.ID, s.JourneyType, answers, items, p.now(),
	); err != nil {
		return fmt.Errorf("postgres: commit session %s: %w", s.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit session %s: %w", s.ID, err)
	}
	return nil
}

// maskConnectionString hides the password in a postgres URL for logging
func maskConnectionString(connStr string) string {
	scheme, rest, ok := strings.Cut(connStr, "://")
	if !ok {
		return connStr
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return connStr
	}
	user, _, hasPassword := strings.Cut(userinfo, ":")
	if !hasPassword {
		return connStr
	}
	return scheme + "://" + user + ":***@" + host
}
