package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskly/trackd/internal/conventions"
	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage"
)

// Notifier displays a notification to connected clients.
type Notifier interface {
	ShowNotification(ctx context.Context, opts model.NotificationOptions) error
}

// SweeperConfig is the configuration for the notification sweeper.
type SweeperConfig struct {
	Repository storage.NotificationRepository
	Notifier   Notifier
	Logger     log.Logger
	// SweepInterval is the periodic sweep period used by Run.
	SweepInterval time.Duration
	Now           func() time.Time
}

func (c *SweeperConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("notification repository is required")
	}
	if c.Notifier == nil {
		return fmt.Errorf("notifier is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sweeper.Sweeper"})
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Sweeper delivers scheduled notifications that have come due. Delivery is
// at-least-once: a notification is displayed first and marked delivered
// after, so a crash in between re-displays it on the next sweep and clients
// collapse the duplicate by tag.
type Sweeper struct {
	repo     storage.NotificationRepository
	notifier Notifier
	logger   log.Logger
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a new notification sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid sweeper config: %w", err)
	}

	return &Sweeper{
		repo:     cfg.Repository,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		interval: cfg.SweepInterval,
		now:      cfg.Now,
	}, nil
}

// Sweep delivers every pending notification whose scheduled time has
// passed. It returns the number delivered. Unknown tags are rejected.
func (s *Sweeper) Sweep(ctx context.Context, tag string) (int, error) {
	switch tag {
	case conventions.SyncTagBackground, conventions.SyncTagNotification:
	default:
		return 0, fmt.Errorf("unknown sync tag %q: %w", tag, model.ErrNotValid)
	}

	now := s.now()
	due, err := s.repo.ListDueNotifications(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("could not list due notifications: %w", err)
	}

	delivered := 0
	for _, n := range due {
		if err := s.notifier.ShowNotification(ctx, n.DisplayOptions()); err != nil {
			s.logger.Errorf("could not display notification %s: %s", n.ID, err)
			continue
		}

		if err := s.repo.MarkNotificationDelivered(ctx, n.ID, now); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// A concurrent sweep got there first. The display already
				// happened twice but clients dedupe on tag.
				continue
			}
			s.logger.Errorf("could not mark notification %s delivered: %s", n.ID, err)
			continue
		}

		delivered++
	}

	if delivered > 0 {
		s.logger.Infof("delivered %d scheduled notifications", delivered)
	}

	return delivered, nil
}

// Run sweeps periodically until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infof("sweeping every %s", s.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, conventions.SyncTagBackground); err != nil {
				s.logger.Errorf("sweep failed: %s", err)
			}
		}
	}
}
