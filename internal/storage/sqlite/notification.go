package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/taskly/trackd/internal/model"
)

// CreateNotification stores a new scheduled notification.
func (r *Repository) CreateNotification(ctx context.Context, n model.ScheduledNotification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("could not marshal notification data: %w", err)
	}

	query := `
		INSERT INTO notifications (id, title, body, icon, tag, data, scheduled_time, status, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		n.ID,
		n.Title,
		n.Body,
		n.Icon,
		n.Tag,
		string(data),
		n.ScheduledTime.Unix(),
		string(n.Status),
		n.CreatedAt.Unix(),
		unixOrNil(n.DeliveredAt),
	)
	if err != nil {
		if isUniqueConstraintErr(err, "notifications.") {
			return fmt.Errorf("notification already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert notification: %w", err)
	}

	r.logger.Debugf("Created notification in repository: %s", n.ID)
	return nil
}

// GetNotification retrieves a notification by ID.
func (r *Repository) GetNotification(ctx context.Context, id string) (*model.ScheduledNotification, error) {
	query := notificationSelect + ` WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query notification: %w", err)
	}

	return n, nil
}

// ListNotifications returns all notifications ordered by scheduled time.
func (r *Repository) ListNotifications(ctx context.Context) ([]model.ScheduledNotification, error) {
	query := notificationSelect + ` ORDER BY scheduled_time ASC`
	return r.queryNotifications(ctx, query)
}

// ListDueNotifications returns pending notifications scheduled at or before now.
func (r *Repository) ListDueNotifications(ctx context.Context, now time.Time) ([]model.ScheduledNotification, error) {
	query := notificationSelect + `
		WHERE status = ? AND scheduled_time <= ?
		ORDER BY scheduled_time ASC
	`
	return r.queryNotifications(ctx, query, string(model.NotificationStatusPending), now.Unix())
}

// MarkNotificationDelivered flips a pending notification to delivered. The
// status guard in the WHERE clause makes the flip safe against concurrent
// sweeps observing the same record.
func (r *Repository) MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = ?, delivered_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(
		ctx,
		query,
		string(model.NotificationStatusDelivered),
		deliveredAt.Unix(),
		id,
		string(model.NotificationStatusPending),
	)
	if err != nil {
		return fmt.Errorf("could not update notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pending notification %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Marked notification delivered: %s", id)
	return nil
}

const notificationSelect = `
	SELECT id, title, body, icon, tag, data, scheduled_time, status, created_at, delivered_at
	FROM notifications
`

func (r *Repository) queryNotifications(ctx context.Context, query string, args ...any) ([]model.ScheduledNotification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.ScheduledNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		notifications = append(notifications, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return notifications, nil
}

func scanNotification(s scanner) (*model.ScheduledNotification, error) {
	var n model.ScheduledNotification
	var data string
	var scheduledTime, createdAt int64
	var deliveredAt sql.NullInt64
	var status string

	err := s.Scan(
		&n.ID,
		&n.Title,
		&n.Body,
		&n.Icon,
		&n.Tag,
		&data,
		&scheduledTime,
		&status,
		&createdAt,
		&deliveredAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
		return nil, fmt.Errorf("could not unmarshal notification data: %w", err)
	}

	n.ScheduledTime = timeFromUnix(scheduledTime)
	n.Status = model.NotificationStatus(status)
	n.CreatedAt = timeFromUnix(createdAt)
	if deliveredAt.Valid {
		t := timeFromUnix(deliveredAt.Int64)
		n.DeliveredAt = &t
	}

	return &n, nil
}
