// Package natsnotify fans out source invalidations between the processes
// serving the same metadata, over a NATS subject.
//
// A Notifier is both sides of the fan-out. Given to engine.WithSourceNotifier
// it publishes the sources a Reload evicted; Listen evicts the sources
// published by the other processes:
//
//	n := natsnotify.New(nc, natsnotify.WithLogger(logger))
//	e, err := engine.New(reg, engine.WithSourceNotifier(n))
//	...
//	go n.Listen(ctx, e)
package natsnotify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSubject is the subject events are published on.
const DefaultSubject = "tabula.sources.changed"

// Event announces that the connection of a source changed.
type Event struct {
	Source string    `msgpack:"source"`
	Origin string    `msgpack:"origin"`
	At     time.Time `msgpack:"at"`
}

// Evictor drops the state held for a source.
type Evictor interface {
	EvictSource(ctx context.Context, sourceID string) error
}

// conn is the subset of *nats.Conn used by the notifier.
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Notifier publishes and consumes source events.
type Notifier struct {
	conn    conn
	subject string
	origin  string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSubject sets the subject. The default is DefaultSubject.
func WithSubject(s string) Option {
	return func(n *Notifier) {
		n.subject = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// New returns a notifier on the given connection. Each notifier has an
// origin id of its own and ignores the events it published.
func New(nc *nats.Conn, opts ...Option) *Notifier {
	return newNotifier(nc, opts...)
}

func newNotifier(c conn, opts ...Option) *Notifier {
	n := &Notifier{
		conn:    c,
		subject: DefaultSubject,
		origin:  uuid.NewString(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.DiscardHandler)
	}
	return n
}

// SourceChanged publishes an event for the source.
func (n *Notifier) SourceChanged(ctx context.Context, sourceID string) error {
	data, err := msgpack.Marshal(&Event{Source: sourceID, Origin: n.origin, At: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("natsnotify: encode event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("natsnotify: publish %s: %w", n.subject, err)
	}
	n.logger.DebugContext(ctx, "source change published", "source", sourceID, "subject", n.subject)
	return nil
}

// Listen evicts the sources announced by other notifiers until ctx is done.
func (n *Notifier) Listen(ctx context.Context, ev Evictor) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.handle(ctx, ev, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("natsnotify: subscribe %s: %w", n.subject, err)
	}
	defer func() {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}()
	<-ctx.Done()
	return nil
}

func (n *Notifier) handle(ctx context.Context, ev Evictor, data []byte) {
	var e Event
	if err := msgpack.Unmarshal(data, &e); err != nil {
		n.logger.WarnContext(ctx, "malformed source event", "subject", n.subject, "error", err)
		return
	}
	if e.Origin == n.origin || e.Source == "" {
		return
	}
	if err := ev.EvictSource(ctx, e.Source); err != nil {
		n.logger.ErrorContext(ctx, "source eviction failed", "source", e.Source, "error", err)
		return
	}
	n.logger.InfoContext(ctx, "source evicted", "source", e.Source, "origin", e.Origin, "lag", n.now().Sub(e.At))
}
