package sqlite

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

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of the session, notification and
// cache repositories.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// GetSession retrieves the session occupying a slot.
func (r *Repository) GetSession(ctx context.Context, slot model.Slot) (*model.TrackingSession, error) {
	query := `
		SELECT slot, task_id, subtask_id, start_time, accumulated_seconds, is_paused, paused_at, version
		FROM sessions
		WHERE slot = ?
	`

	row := r.db.QueryRowContext(ctx, query, string(slot))
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session slot %s: %w", slot, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query session: %w", err)
	}

	return session, nil
}

// SetSession replaces whatever occupies the session's slot.
func (r *Repository) SetSession(ctx context.Context, s model.TrackingSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	query := `
		INSERT INTO sessions (slot, task_id, subtask_id, start_time, accumulated_seconds, is_paused, paused_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET
			task_id = excluded.task_id,
			subtask_id = excluded.subtask_id,
			start_time = excluded.start_time,
			accumulated_seconds = excluded.accumulated_seconds,
			is_paused = excluded.is_paused,
			paused_at = excluded.paused_at,
			version = excluded.version
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		string(s.Slot),
		s.TaskID,
		s.SubtaskID,
		s.StartTime.Unix(),
		s.AccumulatedSeconds,
		boolToInt(s.IsPaused),
		unixOrNil(s.PausedAt),
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("could not write session: %w", err)
	}

	r.logger.Debugf("Set session slot in repository: %s", s.Slot)
	return nil
}

// UpdateSession replaces the slot record only if the stored version matches
// the version the caller read.
func (r *Repository) UpdateSession(ctx context.Context, s model.TrackingSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	query := `
		UPDATE sessions
		SET
			task_id = ?,
			subtask_id = ?,
			start_time = ?,
			accumulated_seconds = ?,
			is_paused = ?,
			paused_at = ?,
			version = version + 1
		WHERE slot = ? AND version = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		s.TaskID,
		s.SubtaskID,
		s.StartTime.Unix(),
		s.AccumulatedSeconds,
		boolToInt(s.IsPaused),
		unixOrNil(s.PausedAt),
		string(s.Slot),
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("could not update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish an empty slot from a lost race.
		if _, getErr := r.GetSession(ctx, s.Slot); errors.Is(getErr, model.ErrNotFound) {
			return fmt.Errorf("session slot %s: %w", s.Slot, model.ErrNotFound)
		}
		return fmt.Errorf("session slot %s version %d: %w", s.Slot, s.Version, model.ErrConflict)
	}

	r.logger.Debugf("Updated session slot in repository: %s", s.Slot)
	return nil
}

// DeleteSession empties a slot.
func (r *Repository) DeleteSession(ctx context.Context, slot model.Slot) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE slot = ?`, string(slot))
	if err != nil {
		return fmt.Errorf("could not delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session slot %s: %w", slot, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted session slot from repository: %s", slot)
	return nil
}

// ListSessions returns the sessions of all occupied slots.
func (r *Repository) ListSessions(ctx context.Context) ([]model.TrackingSession, error) {
	query := `
		SELECT slot, task_id, subtask_id, start_time, accumulated_seconds, is_paused, paused_at, version
		FROM sessions
		ORDER BY slot ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.TrackingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*model.TrackingSession, error) {
	var session model.TrackingSession
	var slot string
	var startTime int64
	var isPaused int
	var pausedAt sql.NullInt64

	err := s.Scan(
		&slot,
		&session.TaskID,
		&session.SubtaskID,
		&startTime,
		&session.AccumulatedSeconds,
		&isPaused,
		&pausedAt,
		&session.Version,
	)
	if err != nil {
		return nil, err
	}

	session.Slot = model.Slot(slot)
	session.StartTime = timeFromUnix(startTime)
	session.IsPaused = isPaused != 0
	if pausedAt.Valid {
		t := timeFromUnix(pausedAt.Int64)
		session.PausedAt = &t
	}

	return &session, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timeFromUnix(unix int64) time.Time { return time.Unix(unix, 0).UTC() }

// isUniqueConstraintErr reports whether the error is a unique constraint
// violation on the given table.
func isUniqueConstraintErr(err error, table string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+table)
}
