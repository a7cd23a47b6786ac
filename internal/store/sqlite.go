package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lemurlabs/lemur-agent/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		max_iterations INTEGER NOT NULL,
		current_iteration INTEGER NOT NULL DEFAULT 0,
		original_html TEXT NOT NULL,
		current_html TEXT NOT NULL,
		shielded_html TEXT NOT NULL,
		current_shielded_html TEXT NOT NULL,
		placeholders_json TEXT NOT NULL,
		original_query TEXT NOT NULL,
		backend TEXT NOT NULL DEFAULT '',
		message TEXT,
		initial_screenshot TEXT,
		turns_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS shares (
		id TEXT PRIMARY KEY,
		original_url TEXT NOT NULL,
		modified_html TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		view_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_shares_expires ON shares(expires_at) WHERE expires_at IS NOT NULL;
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, status, max_iterations, current_iteration,
		       original_html, current_html, shielded_html, current_shielded_html,
		       placeholders_json, original_query, backend, message,
		       initial_screenshot, turns_json, version,
		       created_at, updated_at, completed_at
		FROM sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var sess domain.Session
	var placeholdersJSON, turnsJSON string
	var message, screenshot sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&sess.ID, &sess.Status, &sess.MaxIterations, &sess.CurrentIteration,
		&sess.OriginalHTML, &sess.CurrentHTML, &sess.ShieldedHTML, &sess.CurrentShieldedHTML,
		&placeholdersJSON, &sess.OriginalQuery, &sess.Backend, &message,
		&screenshot, &turnsJSON, &sess.Version,
		&createdAt, &updatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(placeholdersJSON), &sess.Placeholders); err != nil {
		return nil, fmt.Errorf("decode placeholder map: %w", err)
	}
	if err := json.Unmarshal([]byte(turnsJSON), &sess.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}

	sess.Message = message.String
	sess.InitialScreenshot = screenshot.String
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		done := time.Unix(completedAt.Int64, 0)
		sess.CompletedAt = &done
	}

	return &sess, nil
}

// PutSession creates or fully replaces a session record.
func (s *SQLiteStore) PutSession(ctx context.Context, sess *domain.Session) error {
	placeholdersJSON, err := json.Marshal(sess.Placeholders)
	if err != nil {
		return fmt.Errorf("encode placeholder map: %w", err)
	}
	turns := sess.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}

	query := `
	INSERT INTO sessions (
		id, status, max_iterations, current_iteration,
		original_html, current_html, shielded_html, current_shielded_html,
		placeholders_json, original_query, backend, message,
		initial_screenshot, turns_json, version, created_at, updated_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		current_iteration = excluded.current_iteration,
		current_html = excluded.current_html,
		current_shielded_html = excluded.current_shielded_html,
		message = excluded.message,
		initial_screenshot = excluded.initial_screenshot,
		turns_json = excluded.turns_json,
		version = excluded.version,
		updated_at = excluded.updated_at,
		completed_at = excluded.completed_at`

	var message, screenshot interface{}
	if sess.Message != "" {
		message = sess.Message
	}
	if sess.InitialScreenshot != "" {
		screenshot = sess.InitialScreenshot
	}
	var completedAt interface{}
	if sess.CompletedAt != nil {
		completedAt = sess.CompletedAt.Unix()
	}

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, string(sess.Status), sess.MaxIterations, sess.CurrentIteration,
		sess.OriginalHTML, sess.CurrentHTML, sess.ShieldedHTML, sess.CurrentShieldedHTML,
		string(placeholdersJSON), sess.OriginalQuery, sess.Backend, message,
		screenshot, string(turnsJSON), sess.Version,
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetShare retrieves a shared configuration by ID.
func (s *SQLiteStore) GetShare(ctx context.Context, id string) (*domain.SharedConfiguration, error) {
	query := `
		SELECT id, original_url, modified_html, title, description,
		       created_at, expires_at, view_count
		FROM shares WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var share domain.SharedConfiguration
	var description sql.NullString
	var createdAt int64
	var expiresAt sql.NullInt64

	err := row.Scan(
		&share.ID, &share.OriginalURL, &share.ModifiedHTML, &share.Title,
		&description, &createdAt, &expiresAt, &share.ViewCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan share row: %w", err)
	}

	share.Description = description.String
	share.CreatedAt = time.Unix(createdAt, 0)
	if expiresAt.Valid {
		exp := time.Unix(expiresAt.Int64, 0)
		share.ExpiresAt = &exp
	}

	return &share, nil
}

// PutShare creates or fully replaces a shared configuration.
func (s *SQLiteStore) PutShare(ctx context.Context, share *domain.SharedConfiguration) error {
	query := `
	INSERT INTO shares (id, original_url, modified_html, title, description, created_at, expires_at, view_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		modified_html = excluded.modified_html,
		title = excluded.title,
		description = excluded.description,
		expires_at = excluded.expires_at,
		view_count = excluded.view_count`

	var description interface{}
	if share.Description != "" {
		description = share.Description
	}
	var expiresAt interface{}
	if share.ExpiresAt != nil {
		expiresAt = share.ExpiresAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		share.ID, share.OriginalURL, share.ModifiedHTML, share.Title,
		description, share.CreatedAt.Unix(), expiresAt, share.ViewCount,
	)
	if err != nil {
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

// DeleteShare removes a shared configuration.
func (s *SQLiteStore) DeleteShare(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shares WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	return nil
}

// CleanupExpiredShares removes shares whose expiry has passed.
func (s *SQLiteStore) CleanupExpiredShares(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE expires_at IS NOT NULL AND expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired shares: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted shares: %w", err)
	}
	return deleted, nil
}
