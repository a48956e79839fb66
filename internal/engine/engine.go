package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thenativeweb/wolkenkit-flows/internal/bus"
	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/metrics"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
)

// Engine dispatches domain events to flows.
//
// Thread-safety model:
//   - HandleEvent(): safe from any goroutine
//   - Process(): safe from any goroutine
//   - Run(): one call per source
//
// INVARIANTS:
//   - The registry is never mutated after New
//   - A command buffer lives exactly as long as one HandleEvent call
type Engine struct {
	registry *flow.Registry
	repo     *saga.Repository
	sink     bus.CommandSink
	catalog  flow.CommandCatalog
	ids      flow.IDGenerator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	locks    *keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Flow code gets a child logger with flow=<name>.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithIDGenerator sets the generator for command and aggregate ids.
func WithIDGenerator(ids flow.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithCatalog restricts commands to those the write model defines.
// Without a catalog every command is accepted.
func WithCatalog(catalog flow.CommandCatalog) Option {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithMetrics records engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine for the classified flows. Saga state is loaded and
// saved through repo; commands are sent to sink.
func New(registry *flow.Registry, repo *saga.Repository, sink bus.CommandSink, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		repo:     repo,
		sink:     sink,
		ids:      flow.RandomIDs{},
		logger:   slog.Default(),
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleEvent runs every flow registered for ev and returns the commands
// they buffered, in buffer order. Nothing is sent.
//
// All flows run to completion even when one of them fails, so no saga save
// is cut short. The first persistence or configuration error is returned,
// and then no commands are returned at all.
func (e *Engine) HandleEvent(ctx context.Context, ev ir.DomainEvent) ([]ir.Command, error) {
	name := ev.FullName()
	stateful := e.registry.Stateful(name)
	stateless := e.registry.Stateless(name)

	buffer := &flow.CommandBuffer{}

	var g errgroup.Group
	for _, def := range stateful {
		g.Go(func() error {
			return e.runStateful(ctx, def, ev, buffer)
		})
	}
	for _, def := range stateless {
		g.Go(func() error {
			return e.runStateless(ctx, def, ev, buffer)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffer.Commands(), nil
}

// Process handles one delivery: on success it sends the commands and acks,
// otherwise it discards.
//
// The returned error is fatal for the worker: a command that could not be
// sent, or a delivery that could not be settled. A failed send leaves the
// delivery unsettled; redelivery is up to the bus.
func (e *Engine) Process(ctx context.Context, d bus.Delivery) error {
	start := time.Now()
	ev := d.Event()
	logger := e.logger.With(
		"event", ev.FullName(),
		"event_id", ev.ID,
		"correlation_id", ev.Metadata.CorrelationID,
	)

	e.metrics.RecordReceived()
	logger.Debug("received event")

	commands, err := e.HandleEvent(ctx, ev)
	if err != nil {
		logger.Error("failed to handle event", "error", err)
		if derr := d.Discard(ctx); derr != nil {
			return fmt.Errorf("discard event %s: %w", ev.ID, derr)
		}
		e.metrics.RecordDiscarded(time.Since(start))
		return nil
	}

	for _, cmd := range commands {
		if err := e.sink.Send(ctx, cmd); err != nil {
			return fmt.Errorf("send command %s (%s): %w", cmd.FullName(), cmd.ID, err)
		}
		e.metrics.RecordCommand(cmd.FullName())
	}

	if err := d.Ack(ctx); err != nil {
		return fmt.Errorf("ack event %s: %w", ev.ID, err)
	}

	e.metrics.RecordHandled(time.Since(start))
	logger.Info("handled event",
		"commands", len(commands),
		"duration", time.Since(start),
	)
	return nil
}

// Run consumes source one delivery at a time until ctx is cancelled or a
// fatal error occurs.
//
// Blocks until then. Returns ctx.Err() on cancellation.
func (e *Engine) Run(ctx context.Context, source bus.Source) error {
	e.logger.Info("engine starting", "flows", len(e.registry.Names()))

	err := source.Consume(ctx, e.Process)

	if ctx.Err() != nil {
		e.logger.Info("engine stopping: context cancelled")
		return ctx.Err()
	}
	if err != nil {
		e.logger.Error("engine stopping", "error", err)
		return err
	}
	e.logger.Info("engine stopping: source closed")
	return nil
}

// flowLogger scopes the logger to one flow.
func (e *Engine) flowLogger(def flow.Definition) *slog.Logger {
	return e.logger.With("flow", def.FlowName())
}
