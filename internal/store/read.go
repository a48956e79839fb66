package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

const eventColumns = `aggregate_id, revision, event_id, context_name, flow_name, name, data,
	correlation_id, causation_id, initiator_id, timestamp`

// LastEvent returns the highest-revision event of a saga stream.
// Returns nil, nil when the stream is empty.
func (s *Store) LastEvent(ctx context.Context, aggregateID string) (*ir.DomainEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM saga_events
		WHERE aggregate_id = ?
		ORDER BY revision DESC
		LIMIT 1
	`, aggregateID)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last event %s: %w", aggregateID, err)
	}
	return &ev, nil
}

// ReadStream returns all events of a saga stream ordered by revision.
//
// Returns empty slice (not nil) if the stream does not exist.
func (s *Store) ReadStream(ctx context.Context, aggregateID string) ([]ir.DomainEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM saga_events
		WHERE aggregate_id = ?
		ORDER BY revision ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query stream: %w", err)
	}
	defer rows.Close()

	events := []ir.DomainEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream: %w", err)
	}
	return events, nil
}

// StreamInfo summarizes one saga stream.
type StreamInfo struct {
	SagaID   string      `json:"sagaId"`
	Flow     string      `json:"flow"`
	Revision int64       `json:"revision"`
	State    ir.IRObject `json:"state"`
}

// ListStreams returns the latest revision and state of every saga of
// flowName, or of every saga when flowName is empty.
// Results are ordered by saga id.
func (s *Store) ListStreams(ctx context.Context, flowName string) ([]StreamInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.aggregate_id, e.flow_name, e.revision, e.data
		FROM saga_events e
		JOIN (
			SELECT aggregate_id, MAX(revision) AS revision
			FROM saga_events
			WHERE ? = '' OR flow_name = ?
			GROUP BY aggregate_id
		) last
		ON e.aggregate_id = last.aggregate_id AND e.revision = last.revision
		ORDER BY e.aggregate_id COLLATE BINARY ASC
	`, flowName, flowName)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer rows.Close()

	streams := []StreamInfo{}
	for rows.Next() {
		var info StreamInfo
		var dataJSON string
		if err := rows.Scan(&info.SagaID, &info.Flow, &info.Revision, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		data, err := unmarshalData(dataJSON)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", info.SagaID, err)
		}
		info.State, _ = data["state"].(ir.IRObject)
		streams = append(streams, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate streams: %w", err)
	}
	return streams, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (ir.DomainEvent, error) {
	var ev ir.DomainEvent
	var dataJSON, timestamp string

	err := row.Scan(
		&ev.Aggregate.ID,
		&ev.Metadata.Revision,
		&ev.ID,
		&ev.Context.Name,
		&ev.Aggregate.Name,
		&ev.Name,
		&dataJSON,
		&ev.Metadata.CorrelationID,
		&ev.Metadata.CausationID,
		&ev.Initiator.ID,
		&timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.DomainEvent{}, err
	}
	if err != nil {
		return ir.DomainEvent{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Data, err = unmarshalData(dataJSON)
	if err != nil {
		return ir.DomainEvent{}, err
	}

	ev.Metadata.Timestamp, err = parseTimestamp(timestamp)
	if err != nil {
		return ir.DomainEvent{}, err
	}

	return ev, nil
}
