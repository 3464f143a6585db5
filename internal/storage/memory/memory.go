package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of the session, notification and
// cache repositories. State does not survive a process restart; it is meant
// for tests and ephemeral runs.
type Repository struct {
	sessions      map[model.Slot]model.TrackingSession
	notifications map[string]model.ScheduledNotification
	cache         map[string]model.CacheEntry
	mu            sync.RWMutex
	logger        log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		sessions:      make(map[model.Slot]model.TrackingSession),
		notifications: make(map[string]model.ScheduledNotification),
		cache:         make(map[string]model.CacheEntry),
		logger:        cfg.Logger,
	}, nil
}

// GetSession retrieves the session occupying a slot.
func (r *Repository) GetSession(ctx context.Context, slot model.Slot) (*model.TrackingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[slot]
	if !ok {
		return nil, fmt.Errorf("session slot %s: %w", slot, model.ErrNotFound)
	}

	sessionCopy := session
	return &sessionCopy, nil
}

// SetSession replaces whatever occupies the session's slot.
func (r *Repository) SetSession(ctx context.Context, s model.TrackingSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.Slot] = s
	r.logger.Debugf("Set session slot in repository: %s", s.Slot)

	return nil
}

// UpdateSession replaces the slot record only if the stored version matches.
func (r *Repository) UpdateSession(ctx context.Context, s model.TrackingSession) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.Slot]
	if !ok {
		return fmt.Errorf("session slot %s: %w", s.Slot, model.ErrNotFound)
	}
	if current.Version != s.Version {
		return fmt.Errorf("session slot %s version %d: %w", s.Slot, s.Version, model.ErrConflict)
	}

	s.Version++
	r.sessions[s.Slot] = s
	r.logger.Debugf("Updated session slot in repository: %s", s.Slot)

	return nil
}

// DeleteSession empties a slot.
func (r *Repository) DeleteSession(ctx context.Context, slot model.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[slot]; !ok {
		return fmt.Errorf("session slot %s: %w", slot, model.ErrNotFound)
	}

	delete(r.sessions, slot)
	r.logger.Debugf("Deleted session slot from repository: %s", slot)

	return nil
}

// ListSessions returns the sessions of all occupied slots.
func (r *Repository) ListSessions(ctx context.Context) ([]model.TrackingSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]model.TrackingSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Slot < sessions[j].Slot })

	return sessions, nil
}

// CreateNotification stores a new scheduled notification.
func (r *Repository) CreateNotification(ctx context.Context, n model.ScheduledNotification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[n.ID]; ok {
		return fmt.Errorf("notification with id %s: %w", n.ID, model.ErrAlreadyExists)
	}

	r.notifications[n.ID] = n
	r.logger.Debugf("Created notification in repository: %s", n.ID)

	return nil
}

// GetNotification retrieves a notification by ID.
func (r *Repository) GetNotification(ctx context.Context, id string) (*model.ScheduledNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, model.ErrNotFound)
	}

	nCopy := n
	return &nCopy, nil
}

// ListNotifications returns all notifications ordered by scheduled time.
func (r *Repository) ListNotifications(ctx context.Context) ([]model.ScheduledNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notifications := make([]model.ScheduledNotification, 0, len(r.notifications))
	for _, n := range r.notifications {
		notifications = append(notifications, n)
	}
	sortNotifications(notifications)

	return notifications, nil
}

// ListDueNotifications returns pending notifications scheduled at or before now.
func (r *Repository) ListDueNotifications(ctx context.Context, now time.Time) ([]model.ScheduledNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []model.ScheduledNotification
	for _, n := range r.notifications {
		if n.Due(now) {
			due = append(due, n)
		}
	}
	sortNotifications(due)

	return due, nil
}

// MarkNotificationDelivered flips a pending notification to delivered.
func (r *Repository) MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.Status != model.NotificationStatusPending {
		return fmt.Errorf("pending notification %s: %w", id, model.ErrNotFound)
	}

	n.Status = model.NotificationStatusDelivered
	n.DeliveredAt = &deliveredAt
	r.notifications[id] = n
	r.logger.Debugf("Marked notification delivered: %s", id)

	return nil
}

// GetEntry retrieves a cached response snapshot.
func (r *Repository) GetEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.cache[namespace+"\x00"+key]
	if !ok {
		return nil, fmt.Errorf("cache entry %s/%s: %w", namespace, key, model.ErrNotFound)
	}

	eCopy := e
	return &eCopy, nil
}

// PutEntry stores a response snapshot, replacing any previous entry.
func (r *Repository) PutEntry(ctx context.Context, e model.CacheEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid cache entry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache[e.Namespace+"\x00"+e.Key] = e

	return nil
}

// PurgeExcept removes every cache namespace not present in keep.
func (r *Repository) PurgeExcept(ctx context.Context, keep []string) error {
	keepSet := make(map[string]struct{}, len(keep))
	for _, ns := range keep {
		keepSet[ns] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, e := range r.cache {
		if _, ok := keepSet[e.Namespace]; !ok {
			delete(r.cache, k)
		}
	}

	return nil
}

func sortNotifications(ns []model.ScheduledNotification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].ScheduledTime.Equal(ns[j].ScheduledTime) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].ScheduledTime.Before(ns[j].ScheduledTime)
	})
}
