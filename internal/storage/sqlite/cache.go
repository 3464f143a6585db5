package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/taskly/trackd/internal/model"
)

// GetEntry retrieves a cached response snapshot by namespace and key.
func (r *Repository) GetEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error) {
	query := `
		SELECT namespace, key, status_code, headers, body, stored_at
		FROM cache_entries
		WHERE namespace = ? AND key = ?
	`

	var e model.CacheEntry
	var headers string
	var storedAt int64

	err := r.db.QueryRowContext(ctx, query, namespace, key).Scan(
		&e.Namespace,
		&e.Key,
		&e.StatusCode,
		&headers,
		&e.Body,
		&storedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cache entry %s/%s: %w", namespace, key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(headers), &e.Headers); err != nil {
		return nil, fmt.Errorf("could not unmarshal cache headers: %w", err)
	}
	e.StoredAt = timeFromUnix(storedAt)

	return &e, nil
}

// PutEntry stores a response snapshot, replacing any previous entry for the
// same key.
func (r *Repository) PutEntry(ctx context.Context, e model.CacheEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid cache entry: %w", err)
	}

	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("could not marshal cache headers: %w", err)
	}

	query := `
		INSERT INTO cache_entries (namespace, key, status_code, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			status_code = excluded.status_code,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at
	`

	_, err = r.db.ExecContext(ctx, query, e.Namespace, e.Key, e.StatusCode, string(headers), e.Body, e.StoredAt.Unix())
	if err != nil {
		return fmt.Errorf("could not write cache entry: %w", err)
	}

	return nil
}

// PurgeExcept removes every cache namespace not present in keep.
func (r *Repository) PurgeExcept(ctx context.Context, keep []string) error {
	if len(keep) == 0 {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
			return fmt.Errorf("could not purge cache entries: %w", err)
		}
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ")
	query := fmt.Sprintf(`DELETE FROM cache_entries WHERE namespace NOT IN (%s)`, placeholders)

	args := make([]any, len(keep))
	for i, ns := range keep {
		args[i] = ns
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("could not purge cache entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows > 0 {
		r.logger.Debugf("Purged %d stale cache entries", rows)
	}

	return nil
}
