package replica

import (
	"context"
	"log/slog"
	"time"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/fetching"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/metric"
	"github.com/oteffahi/zenoh/pkg/worker"
	"github.com/oteffahi/zenoh/sample"
	"github.com/oteffahi/zenoh/session"
)

// Config assembles a Replica.
type Config struct {
	Session *session.Session
	KeyExpr keyexpr.KeyExpr

	// Depth is how many versions per key the replica retains.
	Depth int

	// Align makes the replica reconcile existing data from other replicas
	// at startup by querying them.
	Align bool

	// Workers and QueueSize tune the ingestion pool.
	Workers   int
	QueueSize int

	Logger    *slog.Logger
	Registrar metric.Registrar
}

// Replica is a storage node for one key expression: it stores every matching
// publication and answers queries with the latest stored versions, which is
// exactly what a querying subscriber fetches against. With Align set, a new
// replica first pulls the current state from its peers, so replicas converge
// on the same history.
type Replica struct {
	cfg    Config
	logger *slog.Logger
	store  *Store
	pool   *worker.Pool[sample.Sample]
	sub    *fetching.FetchingSubscriber
	qable  *session.Queryable
}

// New starts a replica: ingestion pool, subscription (aligned if asked)
// and query responder, in that order, so the replica never answers queries
// before its own alignment fetch completed.
func New(ctx context.Context, cfg Config) (*Replica, error) {
	if cfg.Session == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Replica", "New", "nil session")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Replica{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "replica", "keyexpr", cfg.KeyExpr.String()),
		store:  NewStore(cfg.Depth),
	}

	var poolOpts []worker.Option[sample.Sample]
	if cfg.Registrar != nil {
		poolOpts = append(poolOpts, worker.WithMetrics[sample.Sample](cfg.Registrar, "replica_ingest"))
	}
	r.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, r.ingest, poolOpts...)
	if err := r.pool.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "Replica", "New", "start ingestion pool")
	}

	fetchCfg := fetching.Config{
		Session: cfg.Session,
		KeyExpr: cfg.KeyExpr,
		Handler: r.submit,
		Logger:  cfg.Logger,
	}
	if cfg.Align {
		fetchCfg.Fetch = fetching.QueryFetch(ctx, cfg.Session, cfg.KeyExpr)
	}
	sub, err := fetching.NewFetchingSubscriber(fetchCfg)
	if err != nil {
		_ = r.pool.Stop(time.Second)
		return nil, errors.Wrap(err, "Replica", "New", "subscribe")
	}
	r.sub = sub

	qable, err := cfg.Session.DeclareQueryable(cfg.KeyExpr, r.answer)
	if err != nil {
		_ = sub.Undeclare()
		_ = r.pool.Stop(time.Second)
		return nil, errors.Wrap(err, "Replica", "New", "declare queryable")
	}
	r.qable = qable

	r.logger.Info("replica started", "align", cfg.Align, "depth", cfg.Depth)
	return r, nil
}

// submit hands one sample to the ingestion pool. Overload drops the sample
// and keeps the subscriber callback non-blocking.
func (r *Replica) submit(smp sample.Sample) {
	if err := r.pool.Submit(smp); err != nil {
		r.logger.Warn("dropping sample, ingestion overloaded",
			"keyexpr", smp.KeyExpr().String(), "error", err)
	}
}

func (r *Replica) ingest(_ context.Context, smp sample.Sample) error {
	if _, ok := smp.Timestamp(); !ok {
		// Alignment replies from peers are always stamped; an unstamped
		// sample slipped past the session layer and cannot be versioned.
		return errors.ErrInvalidData
	}
	r.store.Insert(smp)
	return nil
}

// answer replies the latest stored version of every key the selector
// matches.
func (r *Replica) answer(q *session.Query) {
	for _, smp := range r.store.Latest(q.Selector()) {
		if err := q.Reply(smp); err != nil {
			r.logger.Warn("reply failed", "selector", q.Selector().String(), "error", err)
			return
		}
	}
}

// Latest exposes the replica's current view for the selector.
func (r *Replica) Latest(selector keyexpr.KeyExpr) []sample.Sample {
	return r.store.Latest(selector)
}

// Stats returns ingestion pool counters.
func (r *Replica) Stats() worker.Stats {
	return r.pool.Stats()
}

// Close stops answering, stops storing, then drains the ingestion pool.
func (r *Replica) Close() error {
	var firstErr error
	if err := r.qable.Undeclare(); err != nil {
		firstErr = err
	}
	if err := r.sub.Undeclare(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.pool.Stop(5 * time.Second); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.Wrap(firstErr, "Replica", "Close", "teardown")
	}
	r.logger.Info("replica stopped")
	return nil
}
