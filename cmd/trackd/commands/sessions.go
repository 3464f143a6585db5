package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/taskly/trackd/internal/printer"
	"github.com/taskly/trackd/internal/storage/sqlite"
)

// SessionListCommand lists the persisted tracking sessions.
type SessionListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewSessionListCommand returns the sessions list command.
func NewSessionListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *SessionListCommand {
	c := &SessionListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List active tracking sessions.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SessionListCommand) Name() string { return c.Cmd.FullCommand() }

func (c SessionListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("could not list sessions: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if len(sessions) == 0 {
		return p.PrintMessage("No active tracking sessions.")
	}

	if err := p.PrintSessionList(sessions); err != nil {
		return fmt.Errorf("could not print sessions: %w", err)
	}

	return nil
}
