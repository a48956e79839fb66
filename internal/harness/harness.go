package harness

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/thenativeweb/wolkenkit-flows/internal/bus"
	"github.com/thenativeweb/wolkenkit-flows/internal/engine"
	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
	"github.com/thenativeweb/wolkenkit-flows/internal/store"
	"github.com/thenativeweb/wolkenkit-flows/internal/testutil"
)

// epoch is the timestamp of the first scenario event. Each following event
// is one second later.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// defaultInitiator is used for events without an explicit initiator.
const defaultInitiator = "jane.doe"

// App is the application a scenario runs against.
type App struct {
	// Flows are all flow definitions of the application.
	Flows []flow.Definition

	// Catalog restricts commands to the write model. Nil accepts every command.
	Catalog flow.CommandCatalog
}

// Harness runs scenarios against one application.
type Harness struct {
	app    App
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the engine. Logs are discarded by
// default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// New creates a harness for app.
func New(app App, opts ...Option) *Harness {
	h := &Harness{
		app:    app,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory saga store and bus.
// Execution flow:
//  1. Select and classify the scenario's flows
//  2. Publish every event, then drain the bus through the engine
//  3. Collect settled events, sent commands and persisted sagas
//  4. Evaluate assertions
//
// An error is returned when the scenario cannot run at all: unknown or
// invalid flows, or a fatal engine error.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	defs, err := h.selectFlows(scenario.Flows)
	if err != nil {
		return nil, err
	}
	registry, err := flow.Classify(defs...)
	if err != nil {
		return nil, fmt.Errorf("failed to classify flows: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ids := testutil.NewSequentialIDs("id")
	repo := saga.NewRepository(st, saga.WithIDGenerator(ids), saga.WithLogger(h.logger))
	mem := bus.NewMemory()

	opts := []engine.Option{
		engine.WithLogger(h.logger),
		engine.WithIDGenerator(ids),
	}
	if h.app.Catalog != nil {
		opts = append(opts, engine.WithCatalog(h.app.Catalog))
	}
	eng := engine.New(registry, repo, mem, opts...)

	events := make([]ir.DomainEvent, 0, len(scenario.Events))
	for i, step := range scenario.Events {
		ev, err := buildEvent(i, step)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
		mem.Publish(ev)
	}
	mem.Close()

	if err := eng.Run(ctx, mem); err != nil {
		return nil, fmt.Errorf("engine stopped: %w", err)
	}

	result := NewResult()
	result.Events = collectOutcomes(events, mem)
	result.Commands = append(result.Commands, mem.Commands()...)

	result.Sagas, err = collectSagas(ctx, st, registry, events)
	if err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// selectFlows returns the named flows, or all flows when names is empty.
func (h *Harness) selectFlows(names []string) ([]flow.Definition, error) {
	if len(names) == 0 {
		return h.app.Flows, nil
	}

	byName := make(map[string]flow.Definition, len(h.app.Flows))
	for _, def := range h.app.Flows {
		byName[def.FlowName()] = def
	}

	defs := make([]flow.Definition, 0, len(names))
	for _, name := range names {
		def, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown flow %q", name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// buildEvent converts a scenario step into a domain event.
func buildEvent(index int, step EventStep) (ir.DomainEvent, error) {
	data, err := ir.ObjectFromGo(step.Data)
	if err != nil {
		return ir.DomainEvent{}, fmt.Errorf("events[%d]: data: %w", index, err)
	}

	ev := testutil.NewEvent(step.ID, step.Event, step.AggregateID, data)
	ev.Metadata.Timestamp = epoch.Add(time.Duration(index) * time.Second)
	if step.CorrelationID != "" {
		ev.Metadata.CorrelationID = step.CorrelationID
	}
	ev.Initiator = ir.Initiator{ID: cmp.Or(step.Initiator, defaultInitiator)}
	return ev, nil
}

// collectOutcomes maps each event to the way the bus saw it settled.
func collectOutcomes(events []ir.DomainEvent, mem *bus.Memory) []EventResult {
	outcomes := make(map[string]string, len(events))
	for _, id := range mem.Acked() {
		outcomes[id] = OutcomeHandled
	}
	for _, id := range mem.Discarded() {
		outcomes[id] = OutcomeDiscarded
	}

	results := make([]EventResult, 0, len(events))
	for _, ev := range events {
		results = append(results, EventResult{
			ID:      ev.ID,
			Name:    ev.FullName(),
			Outcome: outcomes[ev.ID],
		})
	}
	return results
}

// collectSagas reads the latest persisted state of every saga the events
// could have touched.
func collectSagas(ctx context.Context, st *store.Store, registry *flow.Registry, events []ir.DomainEvent) ([]SagaResult, error) {
	seen := make(map[string]bool)
	var sagas []SagaResult

	for _, ev := range events {
		for _, def := range registry.Stateful(ev.FullName()) {
			identify := def.Identity[ev.FullName()]
			if identify == nil {
				continue
			}
			key := identify(ev)
			id := flow.SagaID(def.Name, key)
			if seen[id] {
				continue
			}
			seen[id] = true

			last, err := st.LastEvent(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("failed to read saga %s/%s: %w", def.Name, key, err)
			}
			if last == nil {
				continue
			}
			state, _ := last.Data["state"].(ir.IRObject)
			sagas = append(sagas, SagaResult{
				Flow:     def.Name,
				Key:      key,
				SagaID:   id,
				Revision: last.Metadata.Revision,
				State:    state,
			})
		}
	}

	slices.SortFunc(sagas, func(a, b SagaResult) int {
		return cmp.Or(cmp.Compare(a.Flow, b.Flow), cmp.Compare(a.Key, b.Key))
	})
	if sagas == nil {
		sagas = []SagaResult{}
	}
	return sagas, nil
}
