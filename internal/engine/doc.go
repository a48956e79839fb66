// Package engine runs flows against domain events.
//
// For every delivered event the engine:
//
//  1. Looks up the stateful and stateless flows registered for the event's
//     fully qualified name
//  2. Runs all of them concurrently against one shared command buffer
//  3. Waits for every flow to finish
//  4. Sends the buffered commands in buffer order and acknowledges the
//     event, or sends nothing and discards the event if any flow failed
//     to persist its saga or hit a configuration error
//
// Commands are therefore emitted all-or-nothing per event.
//
// FAILURE CLASSES:
//
// Transition failure (error or panic in a transition): the saga is forced
// into the "failed" state and a transitioned event is still written.
//
// Reaction failure (error, panic or Event.Fail): logged, nothing else.
//
// Persistence failure and configuration error: the event is discarded.
//
// Command bus failure: fatal, Run returns.
//
// CONCURRENCY:
//
// Run consumes one delivery at a time. Within a delivery, flows run in
// parallel. Passes for the same saga id are serialized by a keyed mutex held
// from load to save, so concurrent handling of events that resolve to the
// same saga never interleave.
package engine
