// Package harness runs flow scenarios against the real engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: peer_group_full
//	description: "A peer group closes once it is full"
//	flows: [peerGroupLifecycle]
//	events:
//	  - id: evt-1
//	    event: planning.peerGroup.started
//	    aggregate_id: group-1
//	    data: { destination: Riva }
//	assertions:
//	  - type: saga_state
//	    flow: peerGroupLifecycle
//	    key: group-1
//	    expect: { is: open, participants: 1 }
//	  - type: command_contains
//	    command: planning.peerGroup.close
//	    aggregate_id: group-1
//
// Every event is published to an in-memory bus and consumed by an engine
// backed by an in-memory SQLite saga store, in scenario order.
//
// # Assertion Types
//
//   - command_count: exactly N commands were sent (optionally of one name)
//   - command_contains: a command with the given name, aggregate id and
//     data (subset match) was sent
//   - saga_state: the saga of a flow and identity key has the expected state
//     (subset match) and optionally revision
//   - event_outcome: an event was handled or discarded
//
// # Deterministic Testing
//
// Ids come from testutil.SequentialIDs and event timestamps are fixed, so
// the same scenario always produces the same commands and saga states.
// Golden snapshots leave generated ids and command timestamps out because
// flows for the same event run concurrently.
package harness
