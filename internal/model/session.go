package model

import (
	"fmt"
	"time"
)

// Slot identifies one of the two independently tracked session categories.
type Slot string

const (
	// SlotTask is the main task session slot.
	SlotTask Slot = "task"
	// SlotSubtask is the subtask session slot.
	SlotSubtask Slot = "subtask"
)

// Validate checks the slot is a known one.
func (s Slot) Validate() error {
	switch s {
	case SlotTask, SlotSubtask:
		return nil
	default:
		return fmt.Errorf("unknown slot %q: %w", string(s), ErrNotValid)
	}
}

// TrackingSession is the state of one active timer. At most one session
// exists per slot: START overwrites it, STOP deletes it.
type TrackingSession struct {
	Slot               Slot
	TaskID             string
	SubtaskID          string
	StartTime          time.Time
	AccumulatedSeconds int64
	IsPaused           bool
	PausedAt           *time.Time

	// Version increases on every write. Writers must pass back the version
	// they read; the store rejects the write with ErrConflict on mismatch.
	Version int64
}

// Validate checks the session is well formed.
func (s TrackingSession) Validate() error {
	if err := s.Slot.Validate(); err != nil {
		return err
	}
	if s.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if s.Slot == SlotSubtask && s.SubtaskID == "" {
		return fmt.Errorf("subtask id is required for the subtask slot: %w", ErrNotValid)
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("start time is required: %w", ErrNotValid)
	}
	if s.AccumulatedSeconds < 0 {
		return fmt.Errorf("accumulated seconds cannot be negative: %w", ErrNotValid)
	}
	if s.IsPaused && s.PausedAt == nil {
		return fmt.Errorf("paused session requires paused-at timestamp: %w", ErrNotValid)
	}

	return nil
}

// ElapsedSeconds returns the total elapsed time of the session at the given
// instant: banked seconds plus the interval in progress (zero while paused).
// Never negative.
func (s TrackingSession) ElapsedSeconds(now time.Time) int64 {
	total := s.AccumulatedSeconds
	if !s.IsPaused {
		running := int64(now.Sub(s.StartTime) / time.Second)
		if running > 0 {
			total += running
		}
	}

	if total < 0 {
		return 0
	}
	return total
}
