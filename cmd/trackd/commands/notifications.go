package commands

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"

	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/printer"
	"github.com/taskly/trackd/internal/storage/sqlite"
	"github.com/taskly/trackd/internal/utils/kv"
)

// NotificationAddCommand schedules a notification for future delivery.
type NotificationAddCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	title string
	body  string
	icon  string
	tag   string
	at    string
	in    time.Duration
	data  []string
}

// NewNotificationAddCommand returns the notifications add command.
func NewNotificationAddCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *NotificationAddCommand {
	c := &NotificationAddCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("add", "Schedule a notification.")
	c.Cmd.Arg("title", "Notification title.").Required().StringVar(&c.title)
	c.Cmd.Flag("body", "Notification body.").StringVar(&c.body)
	c.Cmd.Flag("icon", "Notification icon path.").StringVar(&c.icon)
	c.Cmd.Flag("tag", "Deduplication tag (defaults to the notification ID).").StringVar(&c.tag)
	c.Cmd.Flag("at", "Delivery time (RFC 3339).").StringVar(&c.at)
	c.Cmd.Flag("in", "Delivery delay from now (e.g. 30m).").DurationVar(&c.in)
	c.Cmd.Flag("data", "Extra payload entry as KEY=VALUE (repeatable).").StringsVar(&c.data)

	return c
}

func (c NotificationAddCommand) Name() string { return c.Cmd.FullCommand() }

func (c NotificationAddCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	now := time.Now().UTC()

	scheduled, err := c.scheduledTime(now)
	if err != nil {
		return err
	}

	data, err := kv.ParseSpecs(c.data)
	if err != nil {
		return fmt.Errorf("invalid data entry: %w", err)
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	id := ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)).String()
	notification := model.ScheduledNotification{
		ID:            id,
		Title:         c.title,
		Body:          c.body,
		Icon:          c.icon,
		Tag:           c.tag,
		Data:          data,
		ScheduledTime: scheduled,
		Status:        model.NotificationStatusPending,
		CreatedAt:     now,
	}

	if err := repo.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("could not schedule notification: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	return p.PrintMessage(fmt.Sprintf("Scheduled notification %s for %s", id, printer.FormatTimestamp(scheduled)))
}

func (c NotificationAddCommand) scheduledTime(now time.Time) (time.Time, error) {
	if c.at != "" && c.in != 0 {
		return time.Time{}, fmt.Errorf("--at and --in are mutually exclusive")
	}

	if c.at != "" {
		t, err := time.Parse(time.RFC3339, c.at)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at time: %w", err)
		}
		return t.UTC(), nil
	}

	if c.in != 0 {
		return now.Add(c.in), nil
	}

	return now, nil
}

// NotificationListCommand lists scheduled notifications.
type NotificationListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	format       string
}

// NewNotificationListCommand returns the notifications list command.
func NewNotificationListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *NotificationListCommand {
	c := &NotificationListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List scheduled notifications.")
	c.Cmd.Flag("status", "Filter by status (pending, delivered).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c NotificationListCommand) Name() string { return c.Cmd.FullCommand() }

func (c NotificationListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.NotificationStatus
	if c.statusFilter != "" {
		status := model.NotificationStatus(c.statusFilter)
		switch status {
		case model.NotificationStatusPending, model.NotificationStatusDelivered:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s (must be: pending, delivered)", c.statusFilter)
		}
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	notifications, err := repo.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("could not list notifications: %w", err)
	}

	if statusFilter != nil {
		filtered := notifications[:0]
		for _, n := range notifications {
			if n.Status == *statusFilter {
				filtered = append(filtered, n)
			}
		}
		notifications = filtered
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintNotificationList(notifications); err != nil {
		return fmt.Errorf("could not print notifications: %w", err)
	}

	return nil
}
