// Package fetching implements subscribers that merge historical data into
// the live stream.
//
// A plain subscriber only sees publications made while it exists. A
// FetchingSubscriber additionally runs fetches, arbitrary operations
// producing past samples, and guarantees the handler sees one reconciled
// stream: while any fetch is pending, live samples are buffered with the
// fetched ones in a merge queue keyed by timestamp; when the last fetch
// releases, the queue drains in timestamp order and delivery returns to
// pass-through. Duplicate timestamps collapse to the first sample seen, so
// a publication observed both live and through a fetch is delivered once.
//
// NewQueryingSubscriber is the common instantiation: it fetches by
// querying the subscribed key expression, reconciling against whatever
// storages answer.
package fetching
