package model

import (
	"fmt"
	"time"
)

// MessageType identifies a message on the view<->daemon channel.
type MessageType string

// View -> daemon commands.
const (
	MessageTypeStartTracking               MessageType = "START_TIME_TRACKING"
	MessageTypeStartSubtaskTracking        MessageType = "START_SUBTASK_TIME_TRACKING"
	MessageTypePauseTracking               MessageType = "PAUSE_TIME_TRACKING"
	MessageTypePauseSubtaskTracking        MessageType = "PAUSE_SUBTASK_TIME_TRACKING"
	MessageTypeResumeTracking              MessageType = "RESUME_TIME_TRACKING"
	MessageTypeResumeSubtaskTracking       MessageType = "RESUME_SUBTASK_TIME_TRACKING"
	MessageTypeStopTracking                MessageType = "STOP_TIME_TRACKING"
	MessageTypeStopSubtaskTracking         MessageType = "STOP_SUBTASK_TIME_TRACKING"
	MessageTypeUpsertResumeTracking        MessageType = "UPSERT_RESUME_TIME_TRACKING"
	MessageTypeUpsertResumeSubtaskTracking MessageType = "UPSERT_RESUME_SUBTASK_TIME_TRACKING"
	MessageTypeShowNotification            MessageType = "SHOW_NOTIFICATION"
	MessageTypeSkipWaiting                 MessageType = "SKIP_WAITING"
)

// Daemon -> view events.
const (
	MessageTypeTrackingUpdate  MessageType = "TIME_TRACKING_UPDATE"
	MessageTypeTrackingStopped MessageType = "TIME_TRACKING_STOPPED"
)

// SessionPayload is the session selector/seed carried by tracking commands.
type SessionPayload struct {
	TaskID    string `json:"taskId"`
	SubtaskID string `json:"subtaskId,omitempty"`
}

// Command is a typed message sent from a client view to the daemon.
type Command struct {
	Type    MessageType          `json:"type"`
	Session *SessionPayload      `json:"session,omitempty"`
	Options *NotificationOptions `json:"options,omitempty"`
}

// Validate checks the command payload matches its type. It does not reject
// unknown types; the channel is shared and unknown messages are dropped at
// dispatch instead.
func (c Command) Validate() error {
	switch c.Type {
	case MessageTypeStartTracking, MessageTypeUpsertResumeTracking:
		if c.Session == nil || c.Session.TaskID == "" {
			return fmt.Errorf("session with task id is required: %w", ErrNotValid)
		}
	case MessageTypeStartSubtaskTracking, MessageTypeUpsertResumeSubtaskTracking:
		if c.Session == nil || c.Session.TaskID == "" || c.Session.SubtaskID == "" {
			return fmt.Errorf("session with task and subtask ids is required: %w", ErrNotValid)
		}
	case MessageTypeShowNotification:
		if c.Options == nil {
			return fmt.Errorf("notification options are required: %w", ErrNotValid)
		}
		if err := c.Options.Validate(); err != nil {
			return fmt.Errorf("invalid notification options: %w", err)
		}
	}

	return nil
}

// Event is a message broadcast from the daemon to every connected view.
type Event struct {
	Type    MessageType          `json:"type"`
	Update  *TrackingUpdate      `json:"update,omitempty"`
	Stopped *TrackingStopped     `json:"stopped,omitempty"`
	Options *NotificationOptions `json:"options,omitempty"`
}

// TrackingUpdate is the live tick payload for one running slot.
type TrackingUpdate struct {
	Type                         Slot   `json:"type"`
	IsTracking                   bool   `json:"isTracking,omitempty"`
	IsTrackingSubtask            bool   `json:"isTrackingSubtask,omitempty"`
	CurrentSessionElapsedSeconds *int64 `json:"currentSessionElapsedSeconds,omitempty"`
	CurrentSubtaskElapsedSeconds *int64 `json:"currentSubtaskElapsedSeconds,omitempty"`
	TaskID                       string `json:"taskId"`
	SubtaskID                    string `json:"subtaskId,omitempty"`
}

// TrackingStopped is the terminal payload emitted once when a slot stops.
type TrackingStopped struct {
	Type         Slot   `json:"type"`
	TaskID       string `json:"taskId"`
	SubtaskID    string `json:"subtaskId,omitempty"`
	FinalSeconds int64  `json:"finalSeconds"`
}

// NewTrackingUpdateEvent builds the live tick event for a running session.
func NewTrackingUpdateEvent(s TrackingSession, now time.Time) Event {
	elapsed := s.ElapsedSeconds(now)

	update := &TrackingUpdate{
		Type:      s.Slot,
		TaskID:    s.TaskID,
		SubtaskID: s.SubtaskID,
	}
	if s.Slot == SlotSubtask {
		update.IsTrackingSubtask = true
		update.CurrentSubtaskElapsedSeconds = &elapsed
	} else {
		update.IsTracking = true
		update.CurrentSessionElapsedSeconds = &elapsed
	}

	return Event{Type: MessageTypeTrackingUpdate, Update: update}
}

// NewTrackingStoppedEvent builds the terminal event for a stopped session.
func NewTrackingStoppedEvent(s TrackingSession, finalSeconds int64) Event {
	return Event{
		Type: MessageTypeTrackingStopped,
		Stopped: &TrackingStopped{
			Type:         s.Slot,
			TaskID:       s.TaskID,
			SubtaskID:    s.SubtaskID,
			FinalSeconds: finalSeconds,
		},
	}
}
