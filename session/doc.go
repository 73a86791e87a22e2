// Package session implements pub/sub sessions over pluggable transports.
//
// A Session is the factory for the primitives everything else builds on:
// subscribers (live push delivery), publishers (with optional congestion
// control), queryables (query responders) and Get (reply collection). Two
// transports ship with the package: an in-process MemoryBroker with
// synchronous, deterministic delivery for tests, and a NATS transport for
// real deployments, with retained history via JetStream.
//
// Samples travel in a JSON envelope carrying the key, so receivers filter
// on full key-expression semantics even when the transport's native
// filtering is coarser.
package session
