// Package saga holds the state of one stateful flow instance and persists it
// as a stream of "transitioned" events.
//
// An Aggregate is owned by a single event-processing pass: it is loaded fresh
// by Repository.LoadForEvent, advanced by the flow's transition, and written
// back by Repository.Save. Nothing caches aggregates across passes.
package saga
