// Package demo is the sample application shipped with the binary: the
// planning.peerGroup write model and the flows reacting to it.
package demo

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/writemodel"
)

// Application is the application name used for bus subjects.
const Application = "planning"

// Event names the demo flows react to.
const (
	TripRequested    = "travel.trip.requested"
	PeerGroupStarted = "planning.peerGroup.started"
	PeerGroupJoined  = "planning.peerGroup.joined"
)

// Flow names.
const (
	RequestPeerGroupFlow = "requestPeerGroup"
	PeerGroupFlow        = "peerGroupLifecycle"
)

// MaxParticipants closes a peer group once reached.
const MaxParticipants = 3

//go:embed writemodel.cue
var writeModelSource []byte

// WriteModel returns the demo write model.
func WriteModel() (*writemodel.WriteModel, error) {
	return writemodel.ParseCUE(writeModelSource, "writemodel.cue")
}

// Flows returns the demo flow definitions.
func Flows() []flow.Definition {
	return []flow.Definition{
		RequestPeerGroup(),
		PeerGroupLifecycle(),
	}
}

// RequestPeerGroup starts a peer group for every requested trip, on behalf of
// data.asInitiator when given.
func RequestPeerGroup() *flow.Stateless {
	return &flow.Stateless{
		Name: RequestPeerGroupFlow,
		Reactions: map[string]flow.StatelessReactionFunc{
			TripRequested: func(_ context.Context, ev *flow.Event, svc flow.Services) error {
				initiator, _ := ev.Data.String("initiator")
				destination, ok := ev.Data.String("destination")
				if !ok {
					ev.Fail("destination is missing")
					return nil
				}

				var opts []flow.CommandOption
				if asInitiator, ok := ev.Data.String("asInitiator"); ok {
					opts = append(opts, flow.AsInitiator(asInitiator))
				}

				return svc.App.Context("planning").Aggregate("peerGroup").Command("start", ir.IRObject{
					"initiator":   ir.IRString(initiator),
					"destination": ir.IRString(destination),
				}, opts...)
			},
		},
	}
}

// PeerGroupLifecycle tracks one peer group from start until it is full.
//
//	pristine --started--> open --joined--> open | full
//
// A join without a participant fails the saga. Reaching full closes the
// peer group.
func PeerGroupLifecycle() *flow.Stateful {
	byAggregate := func(ev ir.DomainEvent) string { return ev.Aggregate.ID }

	return &flow.Stateful{
		Name: PeerGroupFlow,
		Identity: map[string]flow.IdentityFunc{
			PeerGroupStarted: byAggregate,
			PeerGroupJoined:  byAggregate,
		},
		InitialState: ir.IRObject{"is": ir.IRString("pristine")},
		Transitions: map[string]map[string]flow.TransitionFunc{
			"pristine": {
				PeerGroupStarted: func(_ context.Context, saga flow.Transition, ev *flow.Event) error {
					destination, _ := ev.Data.String("destination")
					if err := saga.SetState(ir.IRObject{
						"destination":  ir.IRString(destination),
						"participants": ir.IRInt(1),
					}); err != nil {
						return err
					}
					return saga.TransitionTo("open")
				},
			},
			"open": {
				PeerGroupJoined: func(_ context.Context, saga flow.Transition, ev *flow.Event) error {
					if _, ok := ev.Data.String("participant"); !ok {
						return fmt.Errorf("join of %s has no participant", ev.Aggregate.ID)
					}
					count, _ := saga.State()["participants"].(ir.IRInt)
					count++
					if err := saga.SetState(ir.IRObject{"participants": count}); err != nil {
						return err
					}
					if count >= MaxParticipants {
						return saga.TransitionTo("full")
					}
					return nil
				},
			},
		},
		Reactions: map[string]map[string]flow.ReactionFunc{
			"open": {
				"full": func(_ context.Context, saga flow.Snapshot, ev *flow.Event, svc flow.Services) error {
					svc.Logger.Info("peer group is full",
						"peer_group", ev.Aggregate.ID,
						"participants", saga.State["participants"],
					)
					return svc.App.Context("planning").Aggregate("peerGroup").WithID(ev.Aggregate.ID).
						Command("close", ir.IRObject{"reason": ir.IRString("full")})
				},
			},
		},
	}
}
