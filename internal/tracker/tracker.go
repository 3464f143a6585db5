package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage"
)

// Broadcaster delivers events to every connected client view. Delivery is
// fire-and-forget: no acknowledgment is awaited.
type Broadcaster interface {
	Broadcast(e model.Event)
}

// TrackerConfig is the configuration for the tracker.
type TrackerConfig struct {
	Repository  storage.SessionRepository
	Broadcaster Broadcaster
	Logger      log.Logger
	// TickInterval is the broadcast period while any session runs.
	TickInterval time.Duration
	// Now is the clock used for all elapsed-time computations.
	Now func() time.Time
}

func (c *TrackerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Broadcaster == nil {
		return fmt.Errorf("broadcaster is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "tracker.Tracker"})
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return nil
}

// Tracker owns the session state machine for both slots and the shared tick
// broadcaster. All session mutations are funneled through it, serializing
// logical intent from any number of client views.
type Tracker struct {
	repo         storage.SessionRepository
	broadcaster  Broadcaster
	logger       log.Logger
	tickInterval time.Duration
	now          func() time.Time

	handlers map[model.MessageType]func(ctx context.Context, cmd model.Command) error

	// cmdMu serializes command handling so read-modify-write cycles on the
	// store never interleave within this process.
	cmdMu sync.Mutex

	// mu guards the ticker handle. At most one tick loop exists at a time:
	// arming always disarms first.
	mu       sync.Mutex
	stopTick chan struct{}
	runCtx   context.Context
}

// NewTracker creates a new tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	t := &Tracker{
		repo:         cfg.Repository,
		broadcaster:  cfg.Broadcaster,
		logger:       cfg.Logger,
		tickInterval: cfg.TickInterval,
		now:          cfg.Now,
		runCtx:       context.Background(),
	}

	t.handlers = map[model.MessageType]func(ctx context.Context, cmd model.Command) error{
		model.MessageTypeStartTracking:               t.handleStart(model.SlotTask),
		model.MessageTypeStartSubtaskTracking:        t.handleStart(model.SlotSubtask),
		model.MessageTypePauseTracking:               t.handlePause(model.SlotTask),
		model.MessageTypePauseSubtaskTracking:        t.handlePause(model.SlotSubtask),
		model.MessageTypeResumeTracking:              t.handleResume(model.SlotTask),
		model.MessageTypeResumeSubtaskTracking:       t.handleResume(model.SlotSubtask),
		model.MessageTypeStopTracking:                t.handleStop(model.SlotTask),
		model.MessageTypeStopSubtaskTracking:         t.handleStop(model.SlotSubtask),
		model.MessageTypeUpsertResumeTracking:        t.handleUpsertResume(model.SlotTask),
		model.MessageTypeUpsertResumeSubtaskTracking: t.handleUpsertResume(model.SlotSubtask),
	}

	return t, nil
}

// Handle dispatches a command message. Message types outside the tracker's
// dispatch table are ignored silently: the channel is shared with unrelated
// subsystems. Malformed payloads of known types are rejected.
func (t *Tracker) Handle(ctx context.Context, cmd model.Command) error {
	handler, ok := t.handlers[cmd.Type]
	if !ok {
		t.logger.Debugf("ignoring unknown message type %q", cmd.Type)
		return nil
	}

	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid %s command: %w", cmd.Type, err)
	}

	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	return handler(ctx, cmd)
}

// Run re-hydrates persisted sessions from a previous process, arms the
// ticker if any of them is running, and blocks until the context is done.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	sessions, err := t.repo.ListSessions(ctx)
	if err != nil {
		t.logger.Errorf("could not re-hydrate sessions: %s", err)
	}
	for _, s := range sessions {
		if !s.IsPaused {
			t.logger.Infof("re-hydrated running %s session for task %s", s.Slot, s.TaskID)
			t.arm()
			break
		}
	}

	<-ctx.Done()
	t.disarm()
	return nil
}

func (t *Tracker) handleStart(slot model.Slot) func(ctx context.Context, cmd model.Command) error {
	return func(ctx context.Context, cmd model.Command) error {
		session := t.newSession(slot, *cmd.Session)

		// START always overwrites: restarting an already-running slot resets
		// its progress. Callers that want continue-or-create use
		// UPSERT_RESUME instead.
		if err := t.repo.SetSession(ctx, session); err != nil {
			return fmt.Errorf("could not store session: %w", err)
		}

		t.logger.Infof("started %s tracking for task %s", slot, session.TaskID)
		t.arm()
		return nil
	}
}

func (t *Tracker) handleUpsertResume(slot model.Slot) func(ctx context.Context, cmd model.Command) error {
	return func(ctx context.Context, cmd model.Command) error {
		current, err := t.repo.GetSession(ctx, slot)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("could not read session: %w", err)
		}

		switch {
		// Continue-or-create only applies to the same target: an upsert for
		// a different task (or subtask) overwrites like START.
		case current == nil || !sameTarget(*current, *cmd.Session):
			session := t.newSession(slot, *cmd.Session)
			if err := t.repo.SetSession(ctx, session); err != nil {
				return fmt.Errorf("could not store session: %w", err)
			}
			t.logger.Infof("started %s tracking for task %s", slot, session.TaskID)

		case current.IsPaused:
			current.IsPaused = false
			current.StartTime = t.now()
			current.PausedAt = nil
			if err := t.updateSession(ctx, *current); err != nil {
				return err
			}
			t.logger.Infof("resumed %s tracking for task %s", slot, current.TaskID)

		default:
			// Already running: keep accumulated progress untouched.
		}

		t.arm()
		return nil
	}
}

func (t *Tracker) handlePause(slot model.Slot) func(ctx context.Context, cmd model.Command) error {
	return func(ctx context.Context, cmd model.Command) error {
		current, err := t.repo.GetSession(ctx, slot)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("could not read session: %w", err)
		}

		if current.IsPaused {
			return nil
		}

		now := t.now()
		elapsed := int64(now.Sub(current.StartTime) / time.Second)
		if elapsed > 0 {
			current.AccumulatedSeconds += elapsed
		}
		current.IsPaused = true
		current.PausedAt = &now

		if err := t.updateSession(ctx, *current); err != nil {
			return err
		}

		t.logger.Infof("paused %s tracking for task %s at %ds", slot, current.TaskID, current.AccumulatedSeconds)
		return nil
	}
}

func (t *Tracker) handleResume(slot model.Slot) func(ctx context.Context, cmd model.Command) error {
	return func(ctx context.Context, cmd model.Command) error {
		current, err := t.repo.GetSession(ctx, slot)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("could not read session: %w", err)
		}

		if !current.IsPaused {
			return nil
		}

		current.IsPaused = false
		current.StartTime = t.now()
		current.PausedAt = nil

		if err := t.updateSession(ctx, *current); err != nil {
			return err
		}

		t.logger.Infof("resumed %s tracking for task %s", slot, current.TaskID)
		t.arm()
		return nil
	}
}

func (t *Tracker) handleStop(slot model.Slot) func(ctx context.Context, cmd model.Command) error {
	return func(ctx context.Context, cmd model.Command) error {
		current, err := t.repo.GetSession(ctx, slot)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("could not read session: %w", err)
		}

		finalSeconds := current.ElapsedSeconds(t.now())

		// Delete before broadcasting: a failed delete leaves the slot
		// occupied, and a retried STOP must not emit a second terminal
		// event for the same session.
		err = t.repo.DeleteSession(ctx, slot)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("could not delete session: %w", err)
		}

		t.broadcaster.Broadcast(model.NewTrackingStoppedEvent(*current, finalSeconds))
		t.logger.Infof("stopped %s tracking for task %s at %ds", slot, current.TaskID, finalSeconds)
		return nil
	}
}

// sameTarget reports whether a persisted session tracks the task (and
// subtask, for the subtask slot) a command payload selects.
func sameTarget(s model.TrackingSession, payload model.SessionPayload) bool {
	if s.TaskID != payload.TaskID {
		return false
	}
	if s.Slot == model.SlotSubtask && s.SubtaskID != payload.SubtaskID {
		return false
	}
	return true
}

func (t *Tracker) newSession(slot model.Slot, payload model.SessionPayload) model.TrackingSession {
	return model.TrackingSession{
		Slot:               slot,
		TaskID:             payload.TaskID,
		SubtaskID:          payload.SubtaskID,
		StartTime:          t.now(),
		AccumulatedSeconds: 0,
		IsPaused:           false,
		Version:            1,
	}
}

// updateSession writes back a read-modify-write cycle. A version conflict
// means another writer won the race; the losing write is dropped and the
// next tick re-reads the winner's state.
func (t *Tracker) updateSession(ctx context.Context, s model.TrackingSession) error {
	err := t.repo.UpdateSession(ctx, s)
	if err != nil {
		if errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrNotFound) {
			t.logger.Warningf("dropping stale %s session write: %s", s.Slot, err)
			return nil
		}
		return fmt.Errorf("could not update session: %w", err)
	}

	return nil
}

// arm starts the tick loop, tearing down any previous one first so at most
// one loop ever runs.
func (t *Tracker) arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.disarmLocked()

	stop := make(chan struct{})
	t.stopTick = stop
	go t.tickLoop(t.runCtx, stop)
}

func (t *Tracker) disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *Tracker) disarmLocked() {
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
}

func (t *Tracker) tickLoop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.tick(ctx) {
				continue
			}

			// Idle teardown: nothing is running, stop ticking until the
			// next START/RESUME re-arms.
			t.mu.Lock()
			if t.stopTick == stop {
				t.stopTick = nil
			}
			t.mu.Unlock()
			return
		}
	}
}

// tick reads both slots and broadcasts an update for every running session.
// It reports whether any session is still running. Store errors keep the
// loop armed: the next tick is the retry.
func (t *Tracker) tick(ctx context.Context) bool {
	anyRunning := false
	now := t.now()

	for _, slot := range []model.Slot{model.SlotTask, model.SlotSubtask} {
		session, err := t.repo.GetSession(ctx, slot)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			t.logger.Errorf("could not read %s session on tick: %s", slot, err)
			anyRunning = true
			continue
		}

		if session.IsPaused {
			continue
		}

		anyRunning = true
		t.broadcaster.Broadcast(model.NewTrackingUpdateEvent(*session, now))
	}

	return anyRunning
}
