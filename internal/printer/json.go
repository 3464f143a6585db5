package printer

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/taskly/trackd/internal/model"
)

// JSONPrinter prints tracking information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// sessionItem represents a tracking session in the list output.
type sessionItem struct {
	Slot           string     `json:"slot"`
	TaskID         string     `json:"task_id,omitempty"`
	SubtaskID      string     `json:"subtask_id,omitempty"`
	Paused         bool       `json:"paused"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
	StartTime      time.Time  `json:"start_time"`
	PausedAt       *time.Time `json:"paused_at,omitempty"`
	Version        int64      `json:"version"`
}

// notificationItem represents a scheduled notification in the list output.
type notificationItem struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Body          string     `json:"body,omitempty"`
	Tag           string     `json:"tag,omitempty"`
	Status        string     `json:"status"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintSessionList prints tracking sessions in JSON format.
func (j *JSONPrinter) PrintSessionList(sessions []model.TrackingSession) error {
	now := time.Now().UTC()

	items := make([]sessionItem, len(sessions))
	for i, s := range sessions {
		items[i] = sessionItem{
			Slot:           string(s.Slot),
			TaskID:         s.TaskID,
			SubtaskID:      s.SubtaskID,
			Paused:         s.IsPaused,
			ElapsedSeconds: s.ElapsedSeconds(now),
			StartTime:      s.StartTime.UTC(),
			Version:        s.Version,
		}
		if s.PausedAt != nil {
			utcTime := s.PausedAt.UTC()
			items[i].PausedAt = &utcTime
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintNotificationList prints scheduled notifications in JSON format.
func (j *JSONPrinter) PrintNotificationList(notifications []model.ScheduledNotification) error {
	items := make([]notificationItem, len(notifications))
	for i, n := range notifications {
		items[i] = notificationItem{
			ID:            n.ID,
			Title:         n.Title,
			Body:          n.Body,
			Tag:           n.Tag,
			Status:        string(n.Status),
			ScheduledTime: n.ScheduledTime.UTC(),
		}
		if n.DeliveredAt != nil {
			utcTime := n.DeliveredAt.UTC()
			items[i].DeliveredAt = &utcTime
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
