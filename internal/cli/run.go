package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thenativeweb/wolkenkit-flows/internal/bus"
	"github.com/thenativeweb/wolkenkit-flows/internal/bus/natsbus"
	"github.com/thenativeweb/wolkenkit-flows/internal/config"
	"github.com/thenativeweb/wolkenkit-flows/internal/engine"
	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/metrics"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
	"github.com/thenativeweb/wolkenkit-flows/internal/store"
	"github.com/thenativeweb/wolkenkit-flows/internal/store/pgstore"
	"github.com/thenativeweb/wolkenkit-flows/internal/writemodel"
)

// RunOptions holds flags for the run command. Flags override the
// corresponding environment variables.
type RunOptions struct {
	*RootOptions
	Application   string
	StoreType     string
	StoreURL      string
	FlowBusURL    string
	CommandBusURL string
	WriteModel    string
	MetricsAddr   string

	// Source and Sink replace the NATS connections (for testing).
	Source bus.Source
	Sink   bus.CommandSink
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions, app App) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts}, app)
}

func newRunCommand(opts *RunOptions, app App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the flows engine",
		Long: `Start consuming domain events from the flow bus.

Every event is routed to the matching flows. Stateful flows load and save
their sagas in the event store; commands are sent to the command bus.

Configuration is read from the environment and may be overridden by flags:
  APPLICATION, EVENTSTORE_TYPE, EVENTSTORE_URL, FLOWBUS_URL,
  COMMANDBUS_URL, WRITEMODEL_PATH, LOG_LEVEL, LOG_FORMAT, METRICS_ADDR

Example:
  wolkenkit-flows run --flow-bus nats://localhost:4222 --command-bus nats://localhost:4222
  EVENTSTORE_TYPE=postgres EVENTSTORE_URL=postgres://... wolkenkit-flows run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlows(opts, app, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Application, "app", "", "application name (APPLICATION)")
	cmd.Flags().StringVar(&opts.StoreType, "store", "", "event store type, sqlite or postgres (EVENTSTORE_TYPE)")
	cmd.Flags().StringVar(&opts.StoreURL, "db", "", "event store path or URL (EVENTSTORE_URL)")
	cmd.Flags().StringVar(&opts.FlowBusURL, "flow-bus", "", "NATS URL of the flow bus (FLOWBUS_URL)")
	cmd.Flags().StringVar(&opts.CommandBusURL, "command-bus", "", "NATS URL of the command bus (COMMANDBUS_URL)")
	cmd.Flags().StringVar(&opts.WriteModel, "writemodel", "", "write model file, .cue or .yaml (WRITEMODEL_PATH)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (METRICS_ADDR)")

	return cmd
}

// resolveConfig reads the environment and applies flag overrides. The
// application name defaults to the app's own name.
func resolveConfig(opts *RunOptions, app App, cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if _, set := os.LookupEnv("APPLICATION"); !set && app.Name != "" {
		cfg.Application = app.Name
	}

	overrides := []struct {
		flag   string
		value  string
		target *string
	}{
		{"app", opts.Application, &cfg.Application},
		{"store", opts.StoreType, &cfg.EventStoreType},
		{"db", opts.StoreURL, &cfg.EventStoreURL},
		{"flow-bus", opts.FlowBusURL, &cfg.FlowBusURL},
		{"command-bus", opts.CommandBusURL, &cfg.CommandBusURL},
		{"writemodel", opts.WriteModel, &cfg.WriteModelPath},
		{"metrics-addr", opts.MetricsAddr, &cfg.MetricsAddr},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.target = o.value
		}
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func runFlows(opts *RunOptions, app App, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts, app, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	wm, err := loadWriteModel(cfg.WriteModelPath, app)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load write model", err)
	}

	registry, err := flow.Classify(app.Flows...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flows", err)
	}
	logger.Info("flows registered", "flows", registry.Names(), "events", len(registry.EventNames()))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, closeStore, err := openEventStore(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	defer closeStore()

	source, sink := opts.Source, opts.Sink
	if source == nil || sink == nil {
		flowBus, commandBus, err := connectBuses(ctx, cfg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect to NATS", err)
		}
		defer flowBus.Close()
		if commandBus != flowBus {
			defer commandBus.Close()
		}
		if source == nil {
			source = flowBus
		}
		if sink == nil {
			sink = commandBus
		}
	}

	m := metrics.New()
	repo := saga.NewRepository(events, saga.WithLogger(logger))
	engineOpts := []engine.Option{engine.WithLogger(logger), engine.WithMetrics(m)}
	if wm != nil {
		engineOpts = append(engineOpts, engine.WithCatalog(wm))
	}
	eng := engine.New(registry, repo, sink, engineOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// The metrics server shuts down once the engine returns.
		defer cancel()
		return eng.Run(gctx, source)
	})

	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Listening for events...")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	logger.Info("engine stopped gracefully")
	return nil
}

// loadWriteModel loads the write model from path, or falls back to the
// application's built-in one.
func loadWriteModel(path string, app App) (*writemodel.WriteModel, error) {
	if path == "" {
		return app.WriteModel, nil
	}
	return writemodel.Load(path)
}

// openEventStore opens the configured saga event store and returns a
// function that closes it.
func openEventStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (saga.EventStore, func(), error) {
	switch cfg.EventStoreType {
	case config.StorePostgres:
		logger.Info("opening event store", "type", cfg.EventStoreType)
		st, err := pgstore.Open(ctx, cfg.EventStoreURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		logger.Info("opening event store", "type", cfg.EventStoreType, "path", cfg.EventStoreURL)
		st, err := store.Open(cfg.EventStoreURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing event store", "error", err)
			}
		}, nil
	}
}

// connectBuses connects to the flow bus and the command bus. A single
// connection serves both when they share a URL.
func connectBuses(ctx context.Context, cfg config.Config, logger *slog.Logger) (*natsbus.Bus, *natsbus.Bus, error) {
	flowBus, err := natsbus.Connect(ctx, cfg.FlowBusURL, cfg.Application, natsbus.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("flow bus: %w", err)
	}
	if cfg.CommandBusURL == cfg.FlowBusURL {
		return flowBus, flowBus, nil
	}

	commandBus, err := natsbus.Connect(ctx, cfg.CommandBusURL, cfg.Application, natsbus.WithLogger(logger))
	if err != nil {
		flowBus.Close()
		return nil, nil, fmt.Errorf("command bus: %w", err)
	}
	return flowBus, commandBus, nil
}
