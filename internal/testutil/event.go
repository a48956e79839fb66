package testutil

import (
	"strings"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// NewEvent builds a domain event from a fully qualified name
// ("context.aggregate.name"). Correlation id defaults to the event id and
// the initiator to "jane.doe".
func NewEvent(id, fullName, aggregateID string, data ir.IRObject) ir.DomainEvent {
	parts := strings.SplitN(fullName, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	if data == nil {
		data = ir.IRObject{}
	}
	return ir.DomainEvent{
		ID:        id,
		Context:   ir.ContextRef{Name: parts[0]},
		Aggregate: ir.AggregateRef{Name: parts[1], ID: aggregateID},
		Name:      parts[2],
		Data:      data,
		Metadata: ir.EventMetadata{
			CorrelationID: id,
			CausationID:   id,
		},
		Initiator: ir.Initiator{ID: "jane.doe"},
	}
}
