package saga

import (
	"time"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// stateField is the key under which transitioned events carry the saga state.
const stateField = "state"

// Aggregate is one saga instance.
//
// INVARIANTS:
//   - state["is"] is a string from construction on
//   - revision counts committed events only
//   - uncommitted revisions are revision+1, revision+2, ...
type Aggregate struct {
	id       string
	flowName string
	cause    ir.DomainEvent
	ids      flow.IDGenerator
	now      func() time.Time

	revision    int64
	state       ir.IRObject
	uncommitted []ir.DomainEvent
}

// New creates a fresh aggregate for def with a deep copy of its initial state.
// cause is the event whose processing will publish this aggregate's events.
func New(def *flow.Stateful, id string, cause ir.DomainEvent, ids flow.IDGenerator) *Aggregate {
	if ids == nil {
		ids = flow.RandomIDs{}
	}
	return &Aggregate{
		id:       id,
		flowName: def.Name,
		cause:    cause,
		ids:      ids,
		now:      time.Now,
		state:    def.InitialState.Clone(),
	}
}

// ID returns the saga id.
func (a *Aggregate) ID() string { return a.id }

// FlowName returns the name of the flow this saga belongs to.
func (a *Aggregate) FlowName() string { return a.flowName }

// Revision returns the number of committed events.
func (a *Aggregate) Revision() int64 { return a.revision }

// State returns the live state. Implements flow.Transition.
func (a *Aggregate) State() ir.IRObject { return a.state }

// Is returns the current state name.
func (a *Aggregate) Is() string {
	is, _ := a.state.String(flow.StateKey)
	return is
}

// Exists reports whether the saga was persisted before this pass.
func (a *Aggregate) Exists() bool { return a.revision > 0 }

// SetState deep-merges patch into the state.
func (a *Aggregate) SetState(patch ir.IRObject) error {
	if patch == nil {
		return flow.InvalidOperation(a.flowName, "state patch is missing")
	}
	if is, ok := patch[flow.StateKey]; ok {
		if _, isString := is.(ir.IRString); !isString {
			return flow.InvalidOperation(a.flowName, "state field %q must be a string", flow.StateKey)
		}
	}
	ir.Merge(a.state, patch)
	return nil
}

// TransitionTo sets the state name.
func (a *Aggregate) TransitionTo(name string) error {
	if name == "" {
		return flow.InvalidOperation(a.flowName, "state name is missing")
	}
	return a.SetState(ir.IRObject{flow.StateKey: ir.IRString(name)})
}

// Snapshot returns a copy of the current state for reactions.
func (a *Aggregate) Snapshot() flow.Snapshot {
	return flow.Snapshot{State: a.state.Clone(), Exists: a.Exists()}
}

// Publish appends an uncommitted event. "transitioned" is the only name a
// saga may publish; anything else is an invalid operation.
func (a *Aggregate) Publish(name string, data ir.IRObject) error {
	if name != ir.TransitionedEvent {
		return flow.InvalidOperation(a.flowName, "saga cannot publish event %q", name)
	}

	a.uncommitted = append(a.uncommitted, ir.DomainEvent{
		ID:        a.ids.NewID(),
		Context:   ir.ContextRef{Name: ir.FlowsContext},
		Aggregate: ir.AggregateRef{Name: a.flowName, ID: a.id},
		Name:      name,
		Data:      data.Clone(),
		Metadata: ir.EventMetadata{
			CorrelationID: a.cause.Metadata.CorrelationID,
			CausationID:   a.cause.ID,
			Revision:      a.revision + int64(len(a.uncommitted)) + 1,
			Timestamp:     a.now().UTC(),
		},
		Initiator: a.cause.Initiator,
	})
	return nil
}

// PublishTransitioned publishes the current state.
func (a *Aggregate) PublishTransitioned() error {
	return a.Publish(ir.TransitionedEvent, ir.IRObject{stateField: a.state})
}

// Uncommitted returns the events not yet saved, in publish order.
func (a *Aggregate) Uncommitted() []ir.DomainEvent {
	out := make([]ir.DomainEvent, len(a.uncommitted))
	copy(out, a.uncommitted)
	return out
}

// ApplySnapshot overwrites revision and state from persisted data.
// It is only valid before anything has been published.
func (a *Aggregate) ApplySnapshot(revision int64, state ir.IRObject) error {
	if len(a.uncommitted) > 0 {
		return flow.InvalidOperation(a.flowName, "cannot apply snapshot with %d uncommitted events", len(a.uncommitted))
	}
	if _, ok := state.String(flow.StateKey); !ok {
		return flow.InvalidOperation(a.flowName, "snapshot state requires a string %q field", flow.StateKey)
	}
	a.revision = revision
	a.state = state.Clone()
	return nil
}

// commit advances the revision past the uncommitted events and clears them.
func (a *Aggregate) commit() {
	a.revision += int64(len(a.uncommitted))
	a.uncommitted = nil
}

// stateFromEvent extracts the saga state carried by a transitioned event.
func stateFromEvent(ev ir.DomainEvent) (ir.IRObject, bool) {
	state, ok := ev.Data[stateField].(ir.IRObject)
	if !ok {
		return nil, false
	}
	if _, ok := state.String(flow.StateKey); !ok {
		return nil, false
	}
	return state, true
}
