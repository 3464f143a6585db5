package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/taskly/trackd/internal/conventions"
	"github.com/taskly/trackd/internal/gateway"
	"github.com/taskly/trackd/internal/hub"
	"github.com/taskly/trackd/internal/model"
	"github.com/taskly/trackd/internal/storage/sqlite"
	"github.com/taskly/trackd/internal/sweeper"
	"github.com/taskly/trackd/internal/tracker"
)

// RunCommand runs the tracking daemon: message hub, session tracker,
// caching gateway and notification sweeper.
type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	hubAddr       string
	gatewayAddr   string
	gatewayConfig string
	origin        string
	tickInterval  time.Duration
	sweepInterval time.Duration
	noGateway     bool
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run the tracking daemon.")
	c.Cmd.Flag("hub-addr", "Listen address for the message hub.").Default(conventions.DefaultHubAddr).StringVar(&c.hubAddr)
	c.Cmd.Flag("gateway-addr", "Listen address for the caching gateway.").Default(conventions.DefaultGatewayAddr).StringVar(&c.gatewayAddr)
	c.Cmd.Flag("gateway-config", "Path to the gateway ruleset file (defaults to the data directory).").StringVar(&c.gatewayConfig)
	c.Cmd.Flag("origin", "Base URL used to pre-populate the static asset cache.").StringVar(&c.origin)
	c.Cmd.Flag("tick-interval", "Tracking update broadcast period.").Default("1s").DurationVar(&c.tickInterval)
	c.Cmd.Flag("sweep-interval", "Scheduled notification sweep period.").Default("1m").DurationVar(&c.sweepInterval)
	c.Cmd.Flag("no-gateway", "Disable the caching gateway.").BoolVar(&c.noGateway)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	// Client hub.
	clientHub, err := hub.NewHub(hub.HubConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create hub: %w", err)
	}

	// Session tracker.
	track, err := tracker.NewTracker(tracker.TrackerConfig{
		Repository:   repo,
		Broadcaster:  clientHub,
		Logger:       logger,
		TickInterval: c.tickInterval,
	})
	if err != nil {
		return fmt.Errorf("could not create tracker: %w", err)
	}

	// Caching gateway.
	var gw *gateway.Gateway
	gatewayConfigPath := c.gatewayConfig
	if gatewayConfigPath == "" {
		gatewayConfigPath = conventions.GatewayConfigPath(c.rootCmd.DataDir)
	}
	gwCfg, err := gateway.LoadConfig(gatewayConfigPath)
	if err != nil {
		return fmt.Errorf("could not load gateway config: %w", err)
	}
	if !c.noGateway {
		if c.gatewayAddr != "" {
			gwCfg.ListenAddr = c.gatewayAddr
		}
		if c.origin != "" {
			gwCfg.Origin = c.origin
		}

		gw, err = gateway.NewGateway(gateway.GatewayConfig{
			ListenAddr:   gwCfg.ListenAddr,
			Cache:        repo,
			Rules:        gwCfg.Rules,
			CacheVersion: gwCfg.CacheVersion,
			Origin:       gwCfg.Origin,
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("could not create gateway: %w", err)
		}
	}

	// Notification sweeper.
	sweep, err := sweeper.NewSweeper(sweeper.SweeperConfig{
		Repository:    repo,
		Notifier:      clientHub,
		Logger:        logger,
		SweepInterval: c.sweepInterval,
	})
	if err != nil {
		return fmt.Errorf("could not create sweeper: %w", err)
	}

	// Message routing.
	router := hub.NewRouter(logger)
	trackingTypes := []model.MessageType{
		model.MessageTypeStartTracking,
		model.MessageTypeStartSubtaskTracking,
		model.MessageTypePauseTracking,
		model.MessageTypePauseSubtaskTracking,
		model.MessageTypeResumeTracking,
		model.MessageTypeResumeSubtaskTracking,
		model.MessageTypeStopTracking,
		model.MessageTypeStopSubtaskTracking,
		model.MessageTypeUpsertResumeTracking,
		model.MessageTypeUpsertResumeSubtaskTracking,
	}
	for _, t := range trackingTypes {
		if err := router.Register(t, track.Handle); err != nil {
			return fmt.Errorf("could not register tracking handler: %w", err)
		}
	}
	err = router.Register(model.MessageTypeShowNotification, func(ctx context.Context, cmd model.Command) error {
		return clientHub.ShowNotification(ctx, *cmd.Options)
	})
	if err != nil {
		return fmt.Errorf("could not register notification handler: %w", err)
	}
	if gw != nil {
		err = router.Register(model.MessageTypeSkipWaiting, func(ctx context.Context, _ model.Command) error {
			return gw.Activate(ctx)
		})
		if err != nil {
			return fmt.Errorf("could not register activation handler: %w", err)
		}
	}

	// Hub HTTP server.
	server, err := hub.NewServer(hub.ServerConfig{
		ListenAddr: c.hubAddr,
		Hub:        clientHub,
		Dispatcher: router,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create hub server: %w", err)
	}

	// Pre-populate static assets and drop stale cache namespaces before
	// serving.
	if gw != nil {
		if err := gw.Install(ctx); err != nil {
			logger.Warningf("static asset install failed: %s", err)
		}
		if err := gw.Activate(ctx); err != nil {
			return fmt.Errorf("could not activate cache namespaces: %w", err)
		}
	}

	var g run.Group

	// Hub server.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return server.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Session tracker (rehydrates persisted sessions and owns the tick loop).
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return track.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Caching gateway and its config watcher.
	if gw != nil {
		{
			ctx, cancel := context.WithCancel(ctx)
			g.Add(
				func() error { return gw.Run(ctx) },
				func(_ error) { cancel() },
			)
		}

		watcher, err := gateway.NewWatcher(gateway.WatcherConfig{
			ConfigPath: gatewayConfigPath,
			Reloader:   gw,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("could not create gateway config watcher: %w", err)
		}
		{
			ctx, cancel := context.WithCancel(ctx)
			g.Add(
				func() error { return watcher.Run(ctx) },
				func(_ error) { cancel() },
			)
		}
	}

	// Notification sweeper.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return sweep.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	logger.Infof("trackd daemon started")

	return g.Run()
}
