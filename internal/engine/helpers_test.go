package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thenativeweb/wolkenkit-flows/internal/bus"
	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/metrics"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
	"github.com/thenativeweb/wolkenkit-flows/internal/store"
	"github.com/thenativeweb/wolkenkit-flows/internal/testutil"
)

// fixture bundles an engine with its collaborators.
type fixture struct {
	engine  *Engine
	store   *store.Store
	events  saga.EventStore
	bus     *bus.Memory
	metrics *metrics.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture builds an engine over a SQLite store in a temp dir.
// wrap, if non-nil, decorates the store handed to the repository.
func newFixture(t *testing.T, wrap func(saga.EventStore) saga.EventStore, defs ...flow.Definition) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "flows.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var events saga.EventStore = st
	if wrap != nil {
		events = wrap(st)
	}

	reg, err := flow.Classify(defs...)
	require.NoError(t, err)

	ids := testutil.NewSequentialIDs("id")
	logger := discardLogger()
	repo := saga.NewRepository(events, saga.WithIDGenerator(ids), saga.WithLogger(logger))

	mem := bus.NewMemory()
	m := metrics.New()
	eng := New(reg, repo, mem,
		WithLogger(logger),
		WithIDGenerator(ids),
		WithMetrics(m),
	)

	return &fixture{engine: eng, store: st, events: events, bus: mem, metrics: m}
}

// process publishes ev and drains the bus through the engine.
func (f *fixture) process(t *testing.T, evs ...ir.DomainEvent) error {
	t.Helper()
	for _, ev := range evs {
		require.True(t, f.bus.Publish(ev))
	}
	f.bus.Close()
	return f.engine.Run(context.Background(), f.bus)
}

// failingWrites rejects every SaveEvents call.
type failingWrites struct {
	saga.EventStore
	err error
}

func (s failingWrites) SaveEvents(context.Context, []ir.DomainEvent) error {
	return s.err
}

// countingStore counts SaveEvents calls.
type countingStore struct {
	saga.EventStore
	mu     sync.Mutex
	writes int
}

func (s *countingStore) SaveEvents(ctx context.Context, events []ir.DomainEvent) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.EventStore.SaveEvents(ctx, events)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

var errBoom = errors.New("boom")

const (
	startedEvent = "planning.peerGroup.started"
	joinedEvent  = "planning.peerGroup.joined"
)

func byAggregateID(ev ir.DomainEvent) string { return ev.Aggregate.ID }

// statefulFlow returns a saga keyed by aggregate id that starts in pristine.
func statefulFlow(name string) *flow.Stateful {
	return &flow.Stateful{
		Name: name,
		Identity: map[string]flow.IdentityFunc{
			startedEvent: byAggregateID,
			joinedEvent:  byAggregateID,
		},
		InitialState: ir.IRObject{"is": ir.IRString("pristine")},
		Transitions:  map[string]map[string]flow.TransitionFunc{},
		Reactions:    map[string]map[string]flow.ReactionFunc{},
	}
}

// startCommand issues planning.peerGroup.start with the event's data.
func startCommand(_ context.Context, ev *flow.Event, svc flow.Services) error {
	return svc.App.Context("planning").Aggregate("peerGroup").Command("start", ev.Data)
}
