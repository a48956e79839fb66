package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// EventStore is the durable backend for saga streams.
// Implemented by store.Store (SQLite) and pgstore.Store (Postgres).
type EventStore interface {
	// LastEvent returns the highest-revision event of the stream, or nil
	// when the stream is empty.
	LastEvent(ctx context.Context, aggregateID string) (*ir.DomainEvent, error)

	// SaveEvents appends events atomically: all of them or none.
	SaveEvents(ctx context.Context, events []ir.DomainEvent) error
}

// ErrPersistence marks failures to read or write saga streams. These are the
// failures that abort processing of an event.
var ErrPersistence = errors.New("saga persistence failed")

// ErrRevisionConflict is returned by stores when a batch contains a revision
// that already exists for its saga. The whole batch is rejected.
var ErrRevisionConflict = errors.New("revision conflict")

// IsPersistenceError reports whether err is (or wraps) a persistence failure.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// Repository loads and saves saga aggregates.
type Repository struct {
	store  EventStore
	ids    flow.IDGenerator
	logger *slog.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithIDGenerator sets the generator for transitioned event ids.
func WithIDGenerator(ids flow.IDGenerator) Option {
	return func(r *Repository) {
		r.ids = ids
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// NewRepository creates a repository backed by store.
func NewRepository(store EventStore, opts ...Option) *Repository {
	r := &Repository{
		store:  store,
		ids:    flow.RandomIDs{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadForEvent builds the aggregate for id from def's initial state and
// replaces state and revision with the latest persisted event, if any.
func (r *Repository) LoadForEvent(ctx context.Context, def *flow.Stateful, id string, cause ir.DomainEvent) (*Aggregate, error) {
	agg := New(def, id, cause, r.ids)

	last, err := r.store.LastEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load saga %s: %w", ErrPersistence, id, err)
	}
	if last == nil {
		return agg, nil
	}

	state, ok := stateFromEvent(*last)
	if !ok {
		return nil, fmt.Errorf("%w: load saga %s: revision %d has no valid state",
			ErrPersistence, id, last.Metadata.Revision)
	}
	if err := agg.ApplySnapshot(last.Metadata.Revision, state); err != nil {
		return nil, err
	}

	r.logger.Debug("loaded saga",
		"flow", def.Name,
		"saga_id", id,
		"revision", last.Metadata.Revision,
		"is", agg.Is(),
	)
	return agg, nil
}

// Save writes all uncommitted events in one batch. It writes nothing when
// there are none. On failure the events stay uncommitted.
func (r *Repository) Save(ctx context.Context, agg *Aggregate) error {
	if len(agg.uncommitted) == 0 {
		return nil
	}

	if err := r.store.SaveEvents(ctx, agg.Uncommitted()); err != nil {
		return fmt.Errorf("%w: save saga %s: %w", ErrPersistence, agg.id, err)
	}

	agg.commit()
	return nil
}
