// Package natsbus implements the flow bus and the command bus on NATS
// JetStream.
//
// Subjects:
//
//	<application>.events.<context>.<aggregate>.<name>    domain events (consumed)
//	<application>.commands.<context>.<aggregate>.<name>  commands (published)
//
// Events are pulled one at a time from a durable consumer with explicit acks.
// Discard naks the message so JetStream redelivers it. Payloads that are not
// valid domain events are terminated and never redelivered.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/thenativeweb/wolkenkit-flows/internal/bus"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// ErrConnectionLost is returned by Consume when the NATS connection closes.
var ErrConnectionLost = errors.New("nats connection lost")

// Defaults.
const (
	DefaultDurable   = "flows"
	DefaultFetchWait = 2 * time.Second
	DefaultAckWait   = 30 * time.Second
)

// Bus is a JetStream-backed bus.Source and bus.CommandSink.
type Bus struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	app    string
	logger *slog.Logger

	durable   string
	fetchWait time.Duration
	ackWait   time.Duration

	lost     chan struct{}
	lostOnce sync.Once
}

var (
	_ bus.Source      = (*Bus)(nil)
	_ bus.CommandSink = (*Bus)(nil)
)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithDurable sets the durable consumer name.
func WithDurable(name string) Option {
	return func(b *Bus) {
		b.durable = name
	}
}

// WithFetchWait sets how long one pull waits for an event.
func WithFetchWait(d time.Duration) Option {
	return func(b *Bus) {
		b.fetchWait = d
	}
}

// WithAckWait sets how long JetStream waits for an ack before redelivering.
func WithAckWait(d time.Duration) Option {
	return func(b *Bus) {
		b.ackWait = d
	}
}

// Connect dials url and ensures the event and command streams of app exist.
//
// Reconnects are disabled: a lost connection cannot be resumed without risking
// duplicate or lost commands, so it surfaces as ErrConnectionLost instead.
func Connect(ctx context.Context, url, app string, opts ...Option) (*Bus, error) {
	if app == "" {
		return nil, errors.New("connect nats: application name is missing")
	}

	b := &Bus{
		app:       app,
		logger:    slog.Default(),
		durable:   DefaultDurable,
		fetchWait: DefaultFetchWait,
		ackWait:   DefaultAckWait,
		lost:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	conn, err := nats.Connect(url,
		nats.Name("wolkenkit-flows"),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) { b.markLost() }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Error("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	b.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}
	b.js = js

	if err := b.ensureStreams(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// Close drains nothing and closes the connection.
func (b *Bus) Close() {
	b.conn.Close()
}

func (b *Bus) markLost() {
	b.lostOnce.Do(func() { close(b.lost) })
}

func (b *Bus) ensureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{Name: EventStream(b.app), Subjects: []string{b.app + ".events.>"}},
		{Name: CommandStream(b.app), Subjects: []string{b.app + ".commands.>"}},
	}
	for _, cfg := range streams {
		if _, err := b.js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// EventStream returns the JetStream stream name holding app's events.
func EventStream(app string) string {
	return streamName(app) + "_EVENTS"
}

// CommandStream returns the JetStream stream name holding app's commands.
func CommandStream(app string) string {
	return streamName(app) + "_COMMANDS"
}

// streamName maps app to the characters allowed in stream names.
func streamName(app string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '/', '\\':
			return '_'
		}
		return r
	}, strings.ToUpper(app))
}

// EventSubject returns the subject an event is published on.
func EventSubject(app string, ev ir.DomainEvent) string {
	return app + ".events." + ev.FullName()
}

// CommandSubject returns the subject a command is published on.
func CommandSubject(app string, cmd ir.Command) string {
	return app + ".commands." + cmd.FullName()
}

// Consume implements bus.Source. It returns ctx.Err() when ctx ends,
// ErrConnectionLost when the connection closes, and any handler error.
func (b *Bus) Consume(ctx context.Context, handle bus.Handler) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, EventStream(b.app), jetstream.ConsumerConfig{
		Durable:       b.durable,
		FilterSubject: b.app + ".events.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.ackWait,
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	b.logger.Info("consuming events", "stream", EventStream(b.app), "durable", b.durable)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.lost:
			return ErrConnectionLost
		default:
		}

		batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(b.fetchWait))
		if err != nil {
			if b.conn.IsClosed() {
				return ErrConnectionLost
			}
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			return fmt.Errorf("fetch event: %w", err)
		}

		for msg := range batch.Messages() {
			if err := b.deliver(ctx, msg, handle); err != nil {
				return err
			}
		}

		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			if b.conn.IsClosed() {
				return ErrConnectionLost
			}
			b.logger.Warn("fetch ended with error", "error", err)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, msg jetstream.Msg, handle bus.Handler) error {
	var ev ir.DomainEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil || ev.ID == "" {
		b.logger.Error("dropping undecodable event",
			"subject", msg.Subject(),
			"error", err,
		)
		if termErr := msg.Term(); termErr != nil {
			return fmt.Errorf("terminate message: %w", termErr)
		}
		return nil
	}
	if ev.Data == nil {
		ev.Data = ir.IRObject{}
	}
	return handle(ctx, &delivery{msg: msg, event: ev})
}

// Send implements bus.CommandSink. The command id is used as the JetStream
// message id, so a resend within the dedupe window is dropped by the server.
func (b *Bus) Send(ctx context.Context, cmd ir.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command %s: %w", cmd.ID, err)
	}
	if _, err := b.js.Publish(ctx, CommandSubject(b.app, cmd), data, jetstream.WithMsgID(cmd.ID)); err != nil {
		return fmt.Errorf("publish command %s: %w", cmd.ID, err)
	}
	return nil
}

// PublishEvent publishes a domain event onto the flow bus.
func (b *Bus) PublishEvent(ctx context.Context, ev ir.DomainEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	if _, err := b.js.Publish(ctx, EventSubject(b.app, ev), data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}

// delivery settles a JetStream message exactly once.
type delivery struct {
	msg   jetstream.Msg
	event ir.DomainEvent

	mu      sync.Mutex
	settled bool
}

func (d *delivery) Event() ir.DomainEvent { return d.event }

func (d *delivery) settle(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return bus.ErrAlreadySettled
	}
	if err := fn(); err != nil {
		return err
	}
	d.settled = true
	return nil
}

func (d *delivery) Ack(context.Context) error {
	return d.settle(d.msg.Ack)
}

func (d *delivery) Discard(context.Context) error {
	return d.settle(d.msg.Nak)
}
