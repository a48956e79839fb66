// Package bus defines the collaborators the engine talks to: a source of
// domain events with per-delivery acknowledgement, and a sink for commands.
//
// Memory implements both in-process. natsbus implements them on JetStream.
package bus

import (
	"context"
	"errors"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// ErrAlreadySettled is returned when a delivery is acknowledged or discarded
// a second time.
var ErrAlreadySettled = errors.New("delivery already settled")

// Delivery is one domain event handed out by a Source.
// Exactly one of Ack or Discard must be called per delivery.
type Delivery interface {
	Event() ir.DomainEvent

	// Ack marks the event as processed.
	Ack(ctx context.Context) error

	// Discard rejects the event. Whether it is redelivered is bus policy.
	Discard(ctx context.Context) error
}

// Handler processes one delivery. A returned error is fatal: the source stops
// consuming and returns it.
type Handler func(ctx context.Context, d Delivery) error

// Source delivers domain events one at a time.
type Source interface {
	// Consume calls handle for each delivery in order until ctx ends, the
	// source is closed, or handle returns an error.
	Consume(ctx context.Context, handle Handler) error
}

// CommandSink accepts commands for the write model.
type CommandSink interface {
	Send(ctx context.Context, cmd ir.Command) error
}
