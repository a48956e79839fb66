package flow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// Kind distinguishes the two flow variants.
type Kind int

const (
	// KindStateless marks a flow with reactions only.
	KindStateless Kind = iota + 1
	// KindStateful marks a saga.
	KindStateful
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindStateless:
		return "stateless"
	case KindStateful:
		return "stateful"
	default:
		return "unknown"
	}
}

// Definition is implemented by *Stateless and *Stateful.
type Definition interface {
	FlowName() string
	Kind() Kind
}

// StatelessReactionFunc reacts to one event.
// A returned error or a panic is logged and never propagated.
type StatelessReactionFunc func(ctx context.Context, ev *Event, svc Services) error

// Stateless is a memoryless flow: reactions keyed by fully qualified event name.
type Stateless struct {
	Name      string
	Reactions map[string]StatelessReactionFunc
}

// FlowName implements Definition.
func (s *Stateless) FlowName() string { return s.Name }

// Kind implements Definition.
func (s *Stateless) Kind() Kind { return KindStateless }

// IdentityFunc extracts the saga key from an event.
type IdentityFunc func(ev ir.DomainEvent) string

// TransitionFunc advances a saga. A returned error or a panic forces the saga
// into the "failed" state.
type TransitionFunc func(ctx context.Context, saga Transition, ev *Event) error

// ReactionFunc reacts to a completed (previous state, next state) edge.
// A returned error or a panic is logged and never alters saga state.
type ReactionFunc func(ctx context.Context, saga Snapshot, ev *Event, svc Services) error

// Stateful is a saga definition.
//
//   - Identity: event name -> key function
//   - InitialState: must hold a string "is"
//   - Transitions: state -> event name -> transition
//   - Reactions: previous state -> next state -> reaction
type Stateful struct {
	Name         string
	Identity     map[string]IdentityFunc
	InitialState ir.IRObject
	Transitions  map[string]map[string]TransitionFunc
	Reactions    map[string]map[string]ReactionFunc
}

// FlowName implements Definition.
func (s *Stateful) FlowName() string { return s.Name }

// Kind implements Definition.
func (s *Stateful) Kind() Kind { return KindStateful }

// Transition returns the transition registered for (state, eventName).
func (s *Stateful) Transition(state, eventName string) (TransitionFunc, bool) {
	fn, ok := s.Transitions[state][eventName]
	return fn, ok && fn != nil
}

// Reaction returns the reaction registered for the edge (previous, next).
func (s *Stateful) Reaction(previous, next string) (ReactionFunc, bool) {
	fn, ok := s.Reactions[previous][next]
	return fn, ok && fn != nil
}

// FailedState is the terminal state a saga is forced into when a transition fails.
const FailedState = "failed"

// StateKey is the state field holding the current state name.
const StateKey = "is"

// Transition is the view of a saga handed to transition functions.
type Transition interface {
	// State returns the live state. Direct mutation is allowed.
	State() ir.IRObject
	// Exists reports whether the saga has been persisted before.
	Exists() bool
	// SetState deep-merges patch into the state.
	SetState(patch ir.IRObject) error
	// TransitionTo is SetState({is: name}).
	TransitionTo(name string) error
}

// Snapshot is the post-transition saga state handed to reactions.
// State is a copy; changing it has no effect on the saga.
type Snapshot struct {
	State  ir.IRObject
	Exists bool
}

// Is returns the state name.
func (s Snapshot) Is() string {
	is, _ := s.State.String(StateKey)
	return is
}

// Event wraps the triggering domain event for one flow invocation.
// Each invocation gets its own wrapper with its own copy of the data, so
// concurrent flows never share mutable state through it.
type Event struct {
	ir.DomainEvent

	logger *slog.Logger

	mu       sync.Mutex
	failures []string
}

// NewEvent wraps ev for a single flow invocation; Fail reports through logger.
func NewEvent(ev ir.DomainEvent, logger *slog.Logger) *Event {
	if logger == nil {
		logger = slog.Default()
	}
	ev.Data = ev.Data.Clone()
	return &Event{DomainEvent: ev, logger: logger}
}

// Fail reports a non-fatal failure. It is logged and recorded; it never
// changes saga state and never fails event processing.
func (e *Event) Fail(reason string) {
	e.mu.Lock()
	e.failures = append(e.failures, reason)
	e.mu.Unlock()

	e.logger.Error("failed to run reaction",
		"reason", reason,
		"event", e.FullName(),
		"event_id", e.ID,
	)
}

// Failures returns the reasons passed to Fail, in call order.
func (e *Event) Failures() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.failures...)
}
