package session

import (
	"context"
	"sync"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
)

// MemoryBroker routes samples and queries between sessions inside one
// process. Delivery is synchronous: Publish returns after every matching
// subscription callback has run, and Query returns after every matching
// responder has finished. That determinism is what the unit tests lean on.
type MemoryBroker struct {
	mu         sync.RWMutex
	closed     bool
	nextID     uint64
	subs       map[uint64]*memorySub
	responders map[uint64]*memoryResponder
}

type memorySub struct {
	key keyexpr.KeyExpr
	cb  func(data []byte)
}

type memoryResponder struct {
	key     keyexpr.KeyExpr
	handler func(selector keyexpr.KeyExpr, reply func(data []byte) error)
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs:       make(map[uint64]*memorySub),
		responders: make(map[uint64]*memoryResponder),
	}
}

// Open opens a session on this broker.
func (b *MemoryBroker) Open(opts ...Option) *Session {
	return newSession(&memoryTransport{broker: b}, opts...)
}

func (b *MemoryBroker) publish(key keyexpr.KeyExpr, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.ErrNoConnection
	}
	matched := make([]*memorySub, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.key.Matches(key) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	// Callbacks run outside the broker lock so they may publish in turn.
	for _, sub := range matched {
		sub.cb(data)
	}
	return nil
}

func (b *MemoryBroker) subscribe(key keyexpr.KeyExpr, cb func(data []byte)) (Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.ErrNoConnection
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = &memorySub{key: key, cb: cb}
	return &memoryReg{remove: func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}}, nil
}

func (b *MemoryBroker) query(ctx context.Context, selector keyexpr.KeyExpr, cb func(data []byte)) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.ErrNoConnection
	}
	matched := make([]*memoryResponder, 0, len(b.responders))
	for _, r := range b.responders {
		if r.key.Intersects(selector) {
			matched = append(matched, r)
		}
	}
	b.mu.RUnlock()

	for _, r := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.handler(selector, func(data []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cb(data)
			return nil
		})
	}
	return nil
}

func (b *MemoryBroker) serveQueries(key keyexpr.KeyExpr, handler func(selector keyexpr.KeyExpr, reply func(data []byte) error)) (Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.ErrNoConnection
	}
	b.nextID++
	id := b.nextID
	b.responders[id] = &memoryResponder{key: key, handler: handler}
	return &memoryReg{remove: func() {
		b.mu.Lock()
		delete(b.responders, id)
		b.mu.Unlock()
	}}, nil
}

// Close drops every registration. Sessions still open on the broker get
// ErrNoConnection from then on.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[uint64]*memorySub)
	b.responders = make(map[uint64]*memoryResponder)
	b.mu.Unlock()
}

type memoryReg struct {
	once   sync.Once
	remove func()
}

func (r *memoryReg) Close() error {
	r.once.Do(r.remove)
	return nil
}

// memoryTransport binds one session to the broker.
type memoryTransport struct {
	broker *MemoryBroker
}

func (t *memoryTransport) Publish(key keyexpr.KeyExpr, data []byte) error {
	return t.broker.publish(key, data)
}

func (t *memoryTransport) Subscribe(key keyexpr.KeyExpr, cb func(data []byte)) (Registration, error) {
	return t.broker.subscribe(key, cb)
}

func (t *memoryTransport) Query(ctx context.Context, selector keyexpr.KeyExpr, cb func(data []byte)) error {
	return t.broker.query(ctx, selector, cb)
}

func (t *memoryTransport) ServeQueries(key keyexpr.KeyExpr, handler func(selector keyexpr.KeyExpr, reply func(data []byte) error)) (Registration, error) {
	return t.broker.serveQueries(key, handler)
}

func (t *memoryTransport) Close(ctx context.Context) error { return nil }
