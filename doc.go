// Package zenoh is a pub/sub middleware node with history reconciliation.
//
// The building blocks live in subpackages:
//
//   - keyexpr: hierarchical key expressions with * and ** wildcards and
//     their set relations (Includes, Intersects).
//   - sample: the Sample value, logical timestamps with a total order, and
//     the session clock.
//   - session: sessions over pluggable transports. Declare subscribers,
//     publishers and queryables, publish with Put/Delete, query with Get,
//     assert presence with liveliness tokens. Ships an in-process memory
//     broker and a NATS transport with JetStream-retained history.
//   - fetching: the core. FetchingSubscriber merges historical fetches
//     into the live stream, buffering live samples while fetches are
//     pending and draining in timestamp order with deduplication.
//     QueryingSubscriber fetches by querying storages.
//   - replica: an in-memory storage replica answering those queries with
//     bounded per-key version history.
//
// A typical late joiner recovering missed publications:
//
//	sess, err := session.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	sub, err := fetching.NewQueryingSubscriber(ctx, fetching.QueryingConfig{
//	    Session: sess,
//	    KeyExpr: keyexpr.MustNew("demo/rooms/**"),
//	    Handler: func(s sample.Sample) { fmt.Println(s) },
//	})
//
// The handler sees one reconciled stream: stored history first, in
// timestamp order, then live publications.
package zenoh
