package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// Services is injected into reactions.
type Services struct {
	// App issues commands against the write model.
	App *App

	// Logger is scoped to the flow's name.
	Logger *slog.Logger
}

// CommandCatalog answers whether the write model defines a command.
// Implemented by writemodel.WriteModel.
type CommandCatalog interface {
	Has(context, aggregate, command string) bool
}

// CommandBuffer collects the unpublished commands of one event-processing
// pass. It is safe for concurrent use by the flows running for that event
// and is discarded when the pass ends.
type CommandBuffer struct {
	mu       sync.Mutex
	commands []ir.Command
}

// Add appends cmd.
func (b *CommandBuffer) Add(cmd ir.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, cmd)
}

// Commands returns the buffered commands in insertion order.
func (b *CommandBuffer) Commands() []ir.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ir.Command, len(b.commands))
	copy(out, b.commands)
	return out
}

// Len returns the number of buffered commands.
func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commands)
}

// App is the command-issuing facade handed to flow code. Every command it
// creates is caused by, and correlated with, the triggering event.
type App struct {
	catalog CommandCatalog
	cause   ir.DomainEvent
	buffer  *CommandBuffer
	ids     IDGenerator
	now     func() time.Time
}

// NewApp creates a facade issuing commands caused by cause into buffer.
// A nil catalog accepts every command.
func NewApp(catalog CommandCatalog, cause ir.DomainEvent, buffer *CommandBuffer, ids IDGenerator) *App {
	if ids == nil {
		ids = RandomIDs{}
	}
	return &App{
		catalog: catalog,
		cause:   cause,
		buffer:  buffer,
		ids:     ids,
		now:     time.Now,
	}
}

// Context selects a bounded context of the write model.
func (a *App) Context(name string) ContextHandle {
	return ContextHandle{app: a, name: name}
}

// ContextHandle addresses one context.
type ContextHandle struct {
	app  *App
	name string
}

// Aggregate selects an aggregate type. Without WithID every command targets
// a fresh aggregate id.
func (c ContextHandle) Aggregate(name string) AggregateHandle {
	return AggregateHandle{app: c.app, context: c.name, aggregate: name}
}

// AggregateHandle addresses an aggregate, optionally a specific instance.
type AggregateHandle struct {
	app       *App
	context   string
	aggregate string
	id        string
}

// WithID targets the aggregate instance id.
func (h AggregateHandle) WithID(id string) AggregateHandle {
	h.id = id
	return h
}

// CommandOption customizes a single command.
type CommandOption func(*commandOptions)

type commandOptions struct {
	initiator string
}

// AsInitiator issues the command on behalf of id instead of the triggering
// event's initiator. An empty id keeps the default.
func AsInitiator(id string) CommandOption {
	return func(o *commandOptions) {
		o.initiator = id
	}
}

// Command buffers a command. It is only sent if the whole event-processing
// pass succeeds. Fails with ErrCodeUnknownCommand when the write model does
// not define the command.
func (h AggregateHandle) Command(name string, data ir.IRObject, opts ...CommandOption) error {
	a := h.app
	if a.catalog != nil && !a.catalog.Has(h.context, h.aggregate, name) {
		return newError(ErrCodeUnknownCommand, "", a.cause.FullName(),
			"write model has no command %s", ir.QualifiedName(h.context, h.aggregate, name))
	}

	o := commandOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	initiator := a.cause.Initiator
	if o.initiator != "" {
		initiator = ir.Initiator{ID: o.initiator}
	}

	aggregateID := h.id
	if aggregateID == "" {
		aggregateID = a.ids.NewID()
	}

	a.buffer.Add(ir.Command{
		ID:        a.ids.NewID(),
		Context:   ir.ContextRef{Name: h.context},
		Aggregate: ir.AggregateRef{Name: h.aggregate, ID: aggregateID},
		Name:      name,
		Data:      data.Clone(),
		Metadata: ir.CommandMetadata{
			CausationID:   a.cause.ID,
			CorrelationID: a.cause.Metadata.CorrelationID,
			Timestamp:     a.now().UTC(),
		},
		Initiator: initiator,
	})
	return nil
}
