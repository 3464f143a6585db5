package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/goccy/go-json"

	"github.com/taskly/trackd/internal/conventions"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage/sqlite"
	"github.com/taskly/trackd/internal/sweeper"
)

// SweepCommand runs a single notification sweep, delivering due
// notifications through a running daemon.
type SweepCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	tag    string
	hubURL string
}

// NewSweepCommand returns the sweep command.
func NewSweepCommand(rootCmd *RootCommand, app *kingpin.Application) *SweepCommand {
	c := &SweepCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("sweep", "Deliver due scheduled notifications once.")
	c.Cmd.Flag("tag", "Sync tag that triggered the sweep.").Default(conventions.SyncTagNotification).EnumVar(&c.tag, conventions.SyncTagBackground, conventions.SyncTagNotification)
	c.Cmd.Flag("hub-url", "Base URL of the running daemon hub.").Default("http://localhost:7321").StringVar(&c.hubURL)

	return c
}

func (c SweepCommand) Name() string { return c.Cmd.FullCommand() }

func (c SweepCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	sweep, err := sweeper.NewSweeper(sweeper.SweeperConfig{
		Repository: repo,
		Notifier:   &hubNotifier{baseURL: c.hubURL},
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create sweeper: %w", err)
	}

	delivered, err := sweep.Sweep(ctx, c.tag)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	logger.Infof("sweep delivered %d notifications", delivered)

	return nil
}

// hubNotifier displays notifications by posting display commands to a
// running daemon hub.
type hubNotifier struct {
	baseURL string
	client  http.Client
}

func (h *hubNotifier) ShowNotification(ctx context.Context, opts model.NotificationOptions) error {
	cmd := model.Command{Type: model.MessageTypeShowNotification, Options: &opts}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("could not marshal display command: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, h.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach daemon hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("daemon hub rejected display command: %s", resp.Status)
	}

	return nil
}
