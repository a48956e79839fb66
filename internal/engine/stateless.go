package engine

import (
	"context"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/metrics"
)

// runStateless invokes the reaction def registered for ev. Errors, panics and
// Event.Fail are logged and never returned.
func (e *Engine) runStateless(ctx context.Context, def *flow.Stateless, ev ir.DomainEvent, buffer *flow.CommandBuffer) error {
	kind := flow.KindStateless.String()

	reaction, ok := def.Reactions[ev.FullName()]
	if !ok || reaction == nil {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeSkipped)
		return nil
	}

	logger := e.flowLogger(def)
	services := flow.Services{
		App:    flow.NewApp(e.catalog, ev, buffer, e.ids),
		Logger: logger,
	}
	wrapped := flow.NewEvent(ev, logger)

	err := safeCall(func() error {
		return reaction(ctx, wrapped, services)
	})
	if err != nil {
		logger.Error("failed to run reaction",
			"event", ev.FullName(),
			"error", err,
		)
	}

	if err != nil || len(wrapped.Failures()) > 0 {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeFailed)
	} else {
		e.metrics.RecordFlowRun(def.Name, kind, metrics.OutcomeOK)
	}
	return nil
}
