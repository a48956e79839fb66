package engine

import (
	"context"
	"errors"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/metrics"
)

// errNoStateName marks a transition that left the saga without a string "is".
var errNoStateName = errors.New("transition left state without a string \"is\"")

// runStateful advances one saga for ev.
//
// The transition is looked up by (current state, event name). If there is
// none, nothing is published and the save is a no-op. Otherwise the
// transition runs, one transitioned event is published no matter how it
// ended, the reaction for (previous, next) runs if registered, and the saga
// is saved.
//
// Only identity, persistence and publish errors are returned. Transition
// failures force the "failed" state; reaction failures are logged.
func (e *Engine) runStateful(ctx context.Context, def *flow.Stateful, ev ir.DomainEvent, buffer *flow.CommandBuffer) error {
	kind := flow.KindStateful.String()
	eventName := ev.FullName()

	id, err := flow.ResolveID(def, ev)
	if err != nil {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeError)
		return err
	}

	unlock := e.locks.Lock(id)
	defer unlock()

	agg, err := e.repo.LoadForEvent(ctx, def, id, ev)
	if err != nil {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeError)
		return err
	}

	logger := e.flowLogger(def).With("saga_id", id)

	transition, ok := def.Transition(agg.Is(), eventName)
	if !ok {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeSkipped)
		return e.repo.Save(ctx, agg)
	}

	previous := agg.Is()
	outcome := metrics.OutcomeOK

	err = safeCall(func() error {
		return transition(ctx, agg, flow.NewEvent(ev, logger))
	})
	if err == nil && agg.Is() == "" {
		err = errNoStateName
	}
	if err != nil {
		logger.Warn("transition failed",
			"state", previous,
			"event", eventName,
			"error", err,
		)
		if ferr := agg.TransitionTo(flow.FailedState); ferr != nil {
			return ferr
		}
		outcome = metrics.OutcomeFailed
	}

	if err := agg.PublishTransitioned(); err != nil {
		return err
	}

	next := agg.Is()
	logger.Debug("saga transitioned", "from", previous, "to", next, "event", eventName)

	if reaction, ok := def.Reaction(previous, next); ok {
		services := flow.Services{
			App:    flow.NewApp(e.catalog, ev, buffer, e.ids),
			Logger: logger,
		}
		wrapped := flow.NewEvent(ev, logger)

		err := safeCall(func() error {
			return reaction(ctx, agg.Snapshot(), wrapped, services)
		})
		if err != nil {
			logger.Error("failed to run reaction",
				"from", previous,
				"to", next,
				"error", err,
			)
		}
		if err != nil || len(wrapped.Failures()) > 0 {
			outcome = metrics.OutcomeFailed
		}
	}

	if err := e.repo.Save(ctx, agg); err != nil {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeError)
		return err
	}

	e.metrics.RecordFlowRun(def.Name, kind, outcome)
	return nil
}
