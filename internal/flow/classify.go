package flow

import (
	"slices"
)

// Registry is the immutable result of Classify.
//
// INVARIANTS:
//   - Lists preserve definition order
//   - A flow appears at most once per event name
//   - Nothing mutates a Registry after Classify returns
type Registry struct {
	stateful  map[string][]*Stateful
	stateless map[string][]*Stateless
	byName    map[string]Definition
	names     []string
}

// Classify validates every definition and indexes it by fully qualified
// event name: stateful flows by every event name that appears anywhere in
// their transitions, stateless flows by the keys of their reactions.
//
// Any malformed definition fails the whole classification; the error is
// meant to abort startup.
func Classify(defs ...Definition) (*Registry, error) {
	r := &Registry{
		stateful:  make(map[string][]*Stateful),
		stateless: make(map[string][]*Stateless),
		byName:    make(map[string]Definition, len(defs)),
	}

	for _, def := range defs {
		if err := validate(def); err != nil {
			return nil, err
		}

		name := def.FlowName()
		if _, dup := r.byName[name]; dup {
			return nil, newError(ErrCodeDuplicateFlow, name, "", "flow is defined more than once")
		}
		r.byName[name] = def
		r.names = append(r.names, name)

		switch d := def.(type) {
		case *Stateful:
			for _, eventName := range statefulEventNames(d) {
				r.stateful[eventName] = append(r.stateful[eventName], d)
			}
		case *Stateless:
			for _, eventName := range sortedKeys(d.Reactions) {
				r.stateless[eventName] = append(r.stateless[eventName], d)
			}
		}
	}

	slices.Sort(r.names)
	return r, nil
}

// validate checks that def has one of the two complete shapes.
func validate(def Definition) error {
	switch d := def.(type) {
	case *Stateful:
		if d == nil {
			return newError(ErrCodeUnknownFlowType, "", "", "flow definition is nil")
		}
		if d.Name == "" {
			return newError(ErrCodeUnknownFlowType, "", "", "flow name is missing")
		}
		if d.Identity == nil || d.InitialState == nil || d.Transitions == nil || d.Reactions == nil {
			return newError(ErrCodeUnknownFlowType, d.Name, "",
				"stateful flow requires identity, initial state, transitions and reactions")
		}
		if _, ok := d.InitialState.String(StateKey); !ok {
			return newError(ErrCodeInvalidInitialState, d.Name, "", "initial state requires a string %q field", StateKey)
		}
		return nil

	case *Stateless:
		if d == nil {
			return newError(ErrCodeUnknownFlowType, "", "", "flow definition is nil")
		}
		if d.Name == "" {
			return newError(ErrCodeUnknownFlowType, "", "", "flow name is missing")
		}
		if d.Reactions == nil {
			return newError(ErrCodeUnknownFlowType, d.Name, "", "stateless flow requires reactions")
		}
		return nil

	case nil:
		return newError(ErrCodeUnknownFlowType, "", "", "flow definition is nil")

	default:
		return newError(ErrCodeUnknownFlowType, def.FlowName(), "", "unknown flow type %T", def)
	}
}

// statefulEventNames returns the distinct event names used across all states,
// sorted for deterministic indexing.
func statefulEventNames(d *Stateful) []string {
	seen := make(map[string]bool)
	var names []string
	for _, byEvent := range d.Transitions {
		for eventName := range byEvent {
			if !seen[eventName] {
				seen[eventName] = true
				names = append(names, eventName)
			}
		}
	}
	slices.Sort(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Stateful returns the stateful flows interested in eventName, nil if none.
func (r *Registry) Stateful(eventName string) []*Stateful {
	return r.stateful[eventName]
}

// Stateless returns the stateless flows interested in eventName, nil if none.
func (r *Registry) Stateless(eventName string) []*Stateless {
	return r.stateless[eventName]
}

// Flow looks up a definition by flow name.
func (r *Registry) Flow(name string) (Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Names returns all flow names, sorted.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// EventNames returns every event name any flow reacts to, sorted.
func (r *Registry) EventNames() []string {
	set := make(map[string]bool, len(r.stateful)+len(r.stateless))
	for name := range r.stateful {
		set[name] = true
	}
	for name := range r.stateless {
		set[name] = true
	}
	return sortedKeys(set)
}
