package natsnotify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// bus delivers published messages to the subscribers synchronously.
type bus struct {
	mu         sync.Mutex
	handlers   map[string][]nats.MsgHandler
	subscribed chan struct{}
	published  [][]byte
}

func newBus() *bus {
	return &bus{handlers: make(map[string][]nats.MsgHandler), subscribed: make(chan struct{}, 8)}
}

func (b *bus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	b.published = append(b.published, data)
	hs := append([]nats.MsgHandler(nil), b.handlers[subject]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (b *bus) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	b.mu.Lock()
	b.handlers[subject] = append(b.handlers[subject], cb)
	b.mu.Unlock()
	b.subscribed <- struct{}{}
	return nil, nil
}

type evictor struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (e *evictor) EvictSource(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return e.err
}

func (e *evictor) evicted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func TestSourceChanged(t *testing.T) {
	b := newBus()
	at := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	n := newNotifier(b, WithSubject("test.sources"))
	n.now = func() time.Time { return at }

	require.NoError(t, n.SourceChanged(context.Background(), "main"))
	require.Len(t, b.published, 1)
	var e Event
	require.NoError(t, msgpack.Unmarshal(b.published[0], &e))
	assert.Equal(t, "main", e.Source)
	assert.Equal(t, n.origin, e.Origin)
	assert.True(t, at.Equal(e.At))
}

func TestListen(t *testing.T) {
	b := newBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	publisher := newNotifier(b)
	listener := newNotifier(b)
	ev := &evictor{}

	done := make(chan error, 1)
	go func() { done <- listener.Listen(ctx, ev) }()
	<-b.subscribed

	require.NoError(t, publisher.SourceChanged(ctx, "main"))
	require.NoError(t, listener.SourceChanged(ctx, "warehouse"))
	require.NoError(t, b.Publish(DefaultSubject, []byte("not msgpack")))
	assert.Equal(t, []string{"main"}, ev.evicted())

	cancel()
	require.NoError(t, <-done)
}

func TestHandleEvictionError(t *testing.T) {
	n := newNotifier(newBus())
	ev := &evictor{err: errors.New("boom")}
	data, err := msgpack.Marshal(&Event{Source: "main", Origin: "other"})
	require.NoError(t, err)

	n.handle(context.Background(), ev, data)
	assert.Equal(t, []string{"main"}, ev.evicted())

	data, err = msgpack.Marshal(&Event{Origin: "other"})
	require.NoError(t, err)
	n.handle(context.Background(), ev, data)
	assert.Len(t, ev.evicted(), 1)
}
