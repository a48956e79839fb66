package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
)

// SaveEvents appends events to their streams in a single transaction.
//
// Either every event is written or none is. An event whose
// (aggregate_id, revision) or id already exists rejects the whole batch
// with saga.ErrRevisionConflict. An empty batch writes nothing.
//
// Event data is serialized to canonical JSON per RFC 8785.
func (s *Store) SaveEvents(ctx context.Context, events []ir.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save events: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		dataJSON, err := marshalData(ev.Data)
		if err != nil {
			return fmt.Errorf("save events: revision %d: %w", ev.Metadata.Revision, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO saga_events
			(aggregate_id, revision, event_id, context_name, flow_name, name, data,
			 correlation_id, causation_id, initiator_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ev.Aggregate.ID,
			ev.Metadata.Revision,
			ev.ID,
			ev.Context.Name,
			ev.Aggregate.Name,
			ev.Name,
			dataJSON,
			ev.Metadata.CorrelationID,
			ev.Metadata.CausationID,
			ev.Initiator.ID,
			formatTimestamp(ev.Metadata.Timestamp),
		)
		if err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("save events: saga %s revision %d: %w",
					ev.Aggregate.ID, ev.Metadata.Revision, saga.ErrRevisionConflict)
			}
			return fmt.Errorf("save events: saga %s revision %d: %w",
				ev.Aggregate.ID, ev.Metadata.Revision, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save events: commit: %w", err)
	}
	return nil
}

// isConstraintViolation reports a primary key or unique index violation.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
