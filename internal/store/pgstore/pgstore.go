// Package pgstore stores saga event streams in Postgres using pgx.
//
// It implements the same contract as the SQLite store: append-only streams
// keyed by (aggregate_id, revision), atomic batches, and
// saga.ErrRevisionConflict on duplicate revisions.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
)

const schema = `
CREATE TABLE IF NOT EXISTS saga_events (
    aggregate_id   TEXT        NOT NULL,
    revision       BIGINT      NOT NULL CHECK (revision > 0),
    event_id       TEXT        NOT NULL UNIQUE,
    context_name   TEXT        NOT NULL,
    flow_name      TEXT        NOT NULL,
    name           TEXT        NOT NULL,
    data           JSONB       NOT NULL,
    correlation_id TEXT        NOT NULL,
    causation_id   TEXT        NOT NULL,
    initiator_id   TEXT        NOT NULL,
    timestamp      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (aggregate_id, revision)
);
CREATE INDEX IF NOT EXISTS idx_saga_events_flow ON saga_events (flow_name, aggregate_id);
`

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is a Postgres saga event store. Implements saga.EventStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ saga.EventStore = (*Store)(nil)

// Open connects to url and creates the schema if needed.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close releases all connections.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveEvents appends events in one transaction.
func (s *Store) SaveEvents(ctx context.Context, events []ir.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save events: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, ev := range events {
		data, err := ir.MarshalCanonical(ev.Data)
		if err != nil {
			return fmt.Errorf("save events: revision %d: %w", ev.Metadata.Revision, err)
		}
		batch.Queue(`
			INSERT INTO saga_events
			(aggregate_id, revision, event_id, context_name, flow_name, name, data,
			 correlation_id, causation_id, initiator_id, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			ev.Aggregate.ID,
			ev.Metadata.Revision,
			ev.ID,
			ev.Context.Name,
			ev.Aggregate.Name,
			ev.Name,
			string(data),
			ev.Metadata.CorrelationID,
			ev.Metadata.CausationID,
			ev.Initiator.ID,
			ev.Metadata.Timestamp.UTC(),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save events: saga %s: %w", events[0].Aggregate.ID, saga.ErrRevisionConflict)
		}
		return fmt.Errorf("save events: saga %s: %w", events[0].Aggregate.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save events: commit: %w", err)
	}

	s.logger.Debug("saved saga events",
		"saga_id", events[0].Aggregate.ID,
		"count", len(events),
		"revision", events[len(events)-1].Metadata.Revision,
	)
	return nil
}

// LastEvent returns the highest-revision event of a stream, or nil.
func (s *Store) LastEvent(ctx context.Context, aggregateID string) (*ir.DomainEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT aggregate_id, revision, event_id, context_name, flow_name, name, data::text,
		       correlation_id, causation_id, initiator_id, timestamp
		FROM saga_events
		WHERE aggregate_id = $1
		ORDER BY revision DESC
		LIMIT 1
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("last event %s: %w", aggregateID, err)
	}

	events, err := collectEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("last event %s: %w", aggregateID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// ReadStream returns all events of a stream ordered by revision.
func (s *Store) ReadStream(ctx context.Context, aggregateID string) ([]ir.DomainEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT aggregate_id, revision, event_id, context_name, flow_name, name, data::text,
		       correlation_id, causation_id, initiator_id, timestamp
		FROM saga_events
		WHERE aggregate_id = $1
		ORDER BY revision ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", aggregateID, err)
	}

	events, err := collectEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", aggregateID, err)
	}
	return events, nil
}

func collectEvents(rows pgx.Rows) ([]ir.DomainEvent, error) {
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ir.DomainEvent, error) {
		var ev ir.DomainEvent
		var data string
		err := row.Scan(
			&ev.Aggregate.ID,
			&ev.Metadata.Revision,
			&ev.ID,
			&ev.Context.Name,
			&ev.Aggregate.Name,
			&ev.Name,
			&data,
			&ev.Metadata.CorrelationID,
			&ev.Metadata.CausationID,
			&ev.Initiator.ID,
			&ev.Metadata.Timestamp,
		)
		if err != nil {
			return ir.DomainEvent{}, err
		}
		if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
			return ir.DomainEvent{}, fmt.Errorf("unmarshal data: %w", err)
		}
		ev.Metadata.Timestamp = ev.Metadata.Timestamp.UTC()
		return ev, nil
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []ir.DomainEvent{}
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
