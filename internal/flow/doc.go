// Package flow defines flows and the surface flow code programs against.
//
// A flow is either stateless (reactions keyed by event name) or stateful
// (a saga: identity functions, an initial state, transitions keyed by
// (state, event) and reactions keyed by (previous state, next state)).
//
// Classify turns a set of definitions into an immutable Registry indexed by
// fully qualified event name. The registry is built once at startup and read
// concurrently without locking.
//
// Flow code receives:
//   - an *Event wrapping the domain event, with Fail(reason) for reporting
//     non-fatal failures
//   - a Transition view (transitions) or a Snapshot value (saga reactions)
//   - Services: a command-issuing App scoped to the triggering event and a
//     logger scoped to the flow
package flow
