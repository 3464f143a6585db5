package storage

import (
	"context"
	"time"

	"github.com/taskly/trackd/internal/model"
)

// SessionRepository is the interface for session slot persistence.
//
// Writes are full-record replacements at single-slot granularity: there are
// no field-level patches, a write either fully lands or fails.
type SessionRepository interface {
	// GetSession returns the session occupying the slot, or ErrNotFound.
	GetSession(ctx context.Context, slot model.Slot) (*model.TrackingSession, error)
	// SetSession replaces whatever occupies the session's slot.
	SetSession(ctx context.Context, s model.TrackingSession) error
	// UpdateSession replaces the slot record only if the stored version
	// matches s.Version. Returns ErrConflict on mismatch and ErrNotFound if
	// the slot is empty.
	UpdateSession(ctx context.Context, s model.TrackingSession) error
	// DeleteSession empties the slot. Deleting an empty slot returns
	// ErrNotFound.
	DeleteSession(ctx context.Context, slot model.Slot) error
	// ListSessions returns the sessions of all occupied slots.
	ListSessions(ctx context.Context) ([]model.TrackingSession, error)
}

// NotificationRepository is the interface for scheduled notification
// persistence.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n model.ScheduledNotification) error
	GetNotification(ctx context.Context, id string) (*model.ScheduledNotification, error)
	ListNotifications(ctx context.Context) ([]model.ScheduledNotification, error)
	// ListDueNotifications returns pending notifications with a scheduled
	// time at or before now.
	ListDueNotifications(ctx context.Context, now time.Time) ([]model.ScheduledNotification, error)
	// MarkNotificationDelivered flips a pending notification to delivered.
	// Returns ErrNotFound if the notification is absent or already
	// delivered, so concurrent sweeps cannot double-deliver.
	MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error
}

// CacheRepository is the interface for response snapshot persistence.
type CacheRepository interface {
	GetEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error)
	PutEntry(ctx context.Context, e model.CacheEntry) error
	// PurgeExcept removes every namespace not present in keep.
	PurgeExcept(ctx context.Context, keep []string) error
}
