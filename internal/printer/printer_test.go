package printer_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/printer"
)

func TestTablePrinterSessionList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	pausedAt := time.Now().UTC().Add(-time.Minute)
	sessions := []model.TrackingSession{
		{Slot: model.SlotTask, TaskID: "task-1", StartTime: time.Now().UTC().Add(-2 * time.Minute), AccumulatedSeconds: 90, IsPaused: true, PausedAt: &pausedAt, Version: 3},
		{Slot: model.SlotSubtask, TaskID: "task-1", SubtaskID: "sub-1", StartTime: time.Now().UTC(), Version: 1},
	}

	require.NoError(t, p.PrintSessionList(sessions))

	out := buf.String()
	assert.Contains(t, out, "SLOT")
	assert.Contains(t, out, "task-1")
	assert.Contains(t, out, "sub-1")
	assert.Contains(t, out, "paused")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "0:01:30")
}

func TestTablePrinterEmptyListPrintsNothing(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	require.NoError(t, p.PrintSessionList(nil))
	require.NoError(t, p.PrintNotificationList(nil))
	assert.Empty(t, buf.String())
}

func TestJSONPrinterNotificationList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	now := time.Now().UTC().Truncate(time.Second)
	notifications := []model.ScheduledNotification{
		{ID: "n-1", Title: "Timer finished", Tag: "timer-complete", ScheduledTime: now, Status: model.NotificationStatusPending, CreatedAt: now},
	}

	require.NoError(t, p.PrintNotificationList(notifications))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "n-1", got[0]["id"])
	assert.Equal(t, "Timer finished", got[0]["title"])
	assert.Equal(t, "pending", got[0]["status"])
	assert.NotContains(t, got[0], "delivered_at")
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		seconds int64
		exp     string
	}{
		"Zero seconds.":         {seconds: 0, exp: "0:00:00"},
		"Under a minute.":       {seconds: 59, exp: "0:00:59"},
		"Minutes and seconds.":  {seconds: 90, exp: "0:01:30"},
		"Hours roll over.":      {seconds: 3725, exp: "1:02:05"},
		"Negative clamps to 0.": {seconds: -5, exp: "0:00:00"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, printer.FormatDuration(test.seconds))
		})
	}
}
