package ir

import "time"

// Names used for the saga's own event stream.
const (
	// FlowsContext is the context name of every event a saga emits.
	FlowsContext = "flows"

	// TransitionedEvent is the only event name a saga may publish.
	TransitionedEvent = "transitioned"
)

// ContextRef names a bounded context.
type ContextRef struct {
	Name string `json:"name"`
}

// AggregateRef identifies an aggregate instance.
type AggregateRef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Initiator identifies the actor that caused an event or issued a command.
type Initiator struct {
	ID string `json:"id"`
}

// EventMetadata carries causality and ordering information of an event.
type EventMetadata struct {
	CorrelationID string    `json:"correlationId"`
	CausationID   string    `json:"causationId"`
	Revision      int64     `json:"revision"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
}

// DomainEvent is an immutable fact delivered by the flow bus. Transitioned
// events written by sagas share the same shape.
type DomainEvent struct {
	ID        string        `json:"id"`
	Context   ContextRef    `json:"context"`
	Aggregate AggregateRef  `json:"aggregate"`
	Name      string        `json:"name"`
	Data      IRObject      `json:"data"`
	Metadata  EventMetadata `json:"metadata"`
	Initiator Initiator     `json:"initiator"`
}

// FullName returns the fully qualified event name "context.aggregate.name".
func (e DomainEvent) FullName() string {
	return QualifiedName(e.Context.Name, e.Aggregate.Name, e.Name)
}

// CommandMetadata carries causality information of a command.
type CommandMetadata struct {
	CausationID   string    `json:"causationId"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
}

// Command is a request emitted by flow code for the write model.
type Command struct {
	ID        string          `json:"id"`
	Context   ContextRef      `json:"context"`
	Aggregate AggregateRef    `json:"aggregate"`
	Name      string          `json:"name"`
	Data      IRObject        `json:"data"`
	Metadata  CommandMetadata `json:"metadata"`
	Initiator Initiator       `json:"initiator"`
}

// FullName returns the fully qualified command name "context.aggregate.name".
func (c Command) FullName() string {
	return QualifiedName(c.Context.Name, c.Aggregate.Name, c.Name)
}

// QualifiedName joins context, aggregate and message name with dots.
func QualifiedName(context, aggregate, name string) string {
	return context + "." + aggregate + "." + name
}
