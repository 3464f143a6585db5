package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/taskly/trackd/internal/model"
)

// TablePrinter prints tracking information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintSessionList prints tracking sessions in a table format.
func (t *TablePrinter) PrintSessionList(sessions []model.TrackingSession) error {
	if len(sessions) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	now := time.Now().UTC()

	// Print header
	fmt.Fprintln(tw, "SLOT\tTASK\tSUBTASK\tSTATE\tELAPSED\tSTARTED")

	// Print rows
	for _, s := range sessions {
		state := "running"
		if s.IsPaused {
			state = "paused"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Slot,
			orDash(s.TaskID),
			orDash(s.SubtaskID),
			state,
			FormatDuration(s.ElapsedSeconds(now)),
			TimeAgo(s.StartTime),
		)
	}

	return nil
}

// PrintNotificationList prints scheduled notifications in a table format.
func (t *TablePrinter) PrintNotificationList(notifications []model.ScheduledNotification) error {
	if len(notifications) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "ID\tTITLE\tTAG\tSTATUS\tSCHEDULED")

	// Print rows
	for _, n := range notifications {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			n.ID,
			n.Title,
			orDash(n.Tag),
			n.Status,
			FormatTimestamp(n.ScheduledTime),
		)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
