package session

import (
	"context"

	"github.com/oteffahi/zenoh/keyexpr"
)

// Registration is an active transport-side registration (a subscription or a
// query responder). Closing it stops delivery.
type Registration interface {
	Close() error
}

// Transport moves opaque payloads between sessions. Implementations do not
// interpret payloads; the session layer owns the envelope format. A
// transport must deliver subscription callbacks from whatever threads it
// uses for I/O completion; the session and the layers above serialize their
// own state.
type Transport interface {
	// Publish sends data to every subscription whose key expression
	// matches the concrete key.
	Publish(key keyexpr.KeyExpr, data []byte) error

	// Subscribe registers a callback for keys matching the expression.
	// Transports may over-deliver (coarser native filtering); the session
	// re-checks the key on arrival.
	Subscribe(key keyexpr.KeyExpr, cb func(data []byte)) (Registration, error)

	// Query sends a selector to all matching query responders and streams
	// raw reply payloads to cb until the context ends or, where the
	// transport can know, all responders finished.
	Query(ctx context.Context, selector keyexpr.KeyExpr, cb func(data []byte)) error

	// ServeQueries registers a responder for selectors intersecting the
	// key expression. The handler replies through the provided function,
	// zero or more times per query.
	ServeQueries(key keyexpr.KeyExpr, handler func(selector keyexpr.KeyExpr, reply func(data []byte) error)) (Registration, error)

	// Close releases the transport.
	Close(ctx context.Context) error
}
