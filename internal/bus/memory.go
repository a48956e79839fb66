package bus

import (
	"context"
	"sync"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// Memory is an in-process flow bus and command bus.
//
// Events published to it are delivered in FIFO order to a single consumer.
// Commands sent to it are recorded in order. The queue is unbounded so a
// test can publish any number of events before consuming.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	pending   []ir.DomainEvent
	closed    bool
	signal    chan struct{} // Signals event availability (buffered, size 1)
	redeliver bool

	acked     []string
	discarded []string
	commands  []ir.Command
	sendErr   error
}

// MemoryOption configures a Memory bus.
type MemoryOption func(*Memory)

// WithRedelivery puts discarded events back at the end of the queue.
func WithRedelivery() MemoryOption {
	return func(m *Memory) {
		m.redeliver = true
	}
}

// NewMemory creates an empty in-memory bus.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		pending: make([]ir.DomainEvent, 0, 64),
		signal:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Publish appends an event to the queue.
// Returns false if the bus has been closed.
func (m *Memory) Publish(ev ir.DomainEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.pending = append(m.pending, ev)
	m.notify()
	return true
}

// Close stops accepting events. Consume returns once the queue is drained.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.signal)
	}
}

// notify signals availability without blocking. Caller holds mu.
func (m *Memory) notify() {
	if m.closed {
		return
	}
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// tryDequeue pops the front event.
func (m *Memory) tryDequeue() (ir.DomainEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return ir.DomainEvent{}, false
	}

	ev := m.pending[0]
	// Clear the slot so the backing array does not retain the event data
	m.pending[0] = ir.DomainEvent{}
	if len(m.pending) == 1 {
		m.pending = m.pending[:0]
	} else {
		m.pending = m.pending[1:]
	}
	return ev, true
}

// Consume implements Source.
func (m *Memory) Consume(ctx context.Context, handle Handler) error {
	for {
		if ev, ok := m.tryDequeue(); ok {
			if err := handle(ctx, &memoryDelivery{bus: m, event: ev}); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, open := <-m.signal:
			if !open && m.Len() == 0 {
				return nil
			}
		}
	}
}

// Len returns the number of queued events.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Send implements CommandSink.
func (m *Memory) Send(_ context.Context, cmd ir.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sendErr != nil {
		return m.sendErr
	}
	m.commands = append(m.commands, cmd)
	return nil
}

// FailSends makes every following Send return err. Pass nil to recover.
func (m *Memory) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Commands returns the commands sent so far, in order.
func (m *Memory) Commands() []ir.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ir.Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// Acked returns the ids of acknowledged events, in order.
func (m *Memory) Acked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

// Discarded returns the ids of discarded events, in order.
func (m *Memory) Discarded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.discarded...)
}

// memoryDelivery settles exactly once.
type memoryDelivery struct {
	bus     *Memory
	event   ir.DomainEvent
	once    sync.Mutex
	settled bool
}

func (d *memoryDelivery) Event() ir.DomainEvent { return d.event }

func (d *memoryDelivery) settle() bool {
	d.once.Lock()
	defer d.once.Unlock()
	if d.settled {
		return false
	}
	d.settled = true
	return true
}

func (d *memoryDelivery) Ack(context.Context) error {
	if !d.settle() {
		return ErrAlreadySettled
	}
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	d.bus.acked = append(d.bus.acked, d.event.ID)
	return nil
}

func (d *memoryDelivery) Discard(context.Context) error {
	if !d.settle() {
		return ErrAlreadySettled
	}
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	d.bus.discarded = append(d.bus.discarded, d.event.ID)
	if d.bus.redeliver && !d.bus.closed {
		d.bus.pending = append(d.bus.pending, d.event)
		d.bus.notify()
	}
	return nil
}
