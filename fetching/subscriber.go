package fetching

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/metric"
	"github.com/oteffahi/zenoh/sample"
	"github.com/oteffahi/zenoh/session"
)

// FetchFunc performs one historical fetch, feeding every fetched item to
// sink before returning. The subscriber keeps buffering live samples for as
// long as the call is in flight.
type FetchFunc func(sink func(sample.Extractor)) error

// Session is the slice of a session a fetching subscriber needs. Both
// *session.Session and *session.Liveliness satisfy it, so a subscriber can
// reconcile the data space or the liveliness space the same way.
type Session interface {
	DeclareSubscriber(key keyexpr.KeyExpr, cb session.Callback) (*session.Subscriber, error)
	Get(ctx context.Context, selector keyexpr.KeyExpr, cb session.ReplyCallback, opts ...session.GetOption) error
	NewTimestamp() sample.Timestamp
}

// Config assembles a FetchingSubscriber.
type Config struct {
	Session Session
	KeyExpr keyexpr.KeyExpr

	// Handler receives every sample, historical and live, in reconciled
	// order. It is never invoked concurrently with itself.
	Handler func(sample.Sample)

	// Fetch is the initial historical fetch, run synchronously during
	// construction. Nil skips the initial fetch; FetchingSubscriber.Fetch
	// can still reconcile later.
	Fetch FetchFunc

	// Background keeps the live subscription running after Close. By
	// default Close undeclares it.
	Background bool

	Logger  *slog.Logger
	Metrics *metric.SubscriberMetrics
}

// FetchingSubscriber is a subscriber that merges historical samples into
// the live stream. While at least one fetch is pending, live samples are
// buffered alongside the fetched ones in a merge queue; when the last
// pending fetch releases, the queue drains to the handler in timestamp
// order and the subscriber goes back to direct delivery.
type FetchingSubscriber struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metric.SubscriberMetrics
	live     *session.Subscriber
	stateMu  sync.Mutex
	pending  int
	queue    *mergeQueue
	deliverM sync.Mutex
	closed   atomic.Bool
}

// NewFetchingSubscriber declares the live subscription and runs the initial
// fetch. The pending-fetch window opens before the subscription is
// declared, so a live sample racing the fetch can never bypass
// reconciliation. The call returns after the initial fetch completed and
// its results drained.
func NewFetchingSubscriber(cfg Config) (*FetchingSubscriber, error) {
	if cfg.Session == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"FetchingSubscriber", "New", "nil session")
	}
	if cfg.Handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"FetchingSubscriber", "New", "nil handler")
	}
	if cfg.KeyExpr.String() == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidKeyExpr,
			"FetchingSubscriber", "New", "empty key expression")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fs := &FetchingSubscriber{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "fetching-subscriber", "keyexpr", cfg.KeyExpr.String()),
		metrics: cfg.Metrics,
		queue:   newMergeQueue(),
	}

	// Open the reconciliation window first. Everything the live
	// subscription delivers from here on is buffered, not lost and not
	// delivered out of order.
	release := fs.beginFetch()

	live, err := cfg.Session.DeclareSubscriber(cfg.KeyExpr, fs.handleLive)
	if err != nil {
		release()
		return nil, errors.Wrap(err, "FetchingSubscriber", "New", "declare live subscriber")
	}
	fs.live = live

	if cfg.Fetch != nil {
		if err := cfg.Fetch(fs.mergeFetched); err != nil {
			release()
			_ = live.Undeclare()
			return nil, errors.Wrap(err, "FetchingSubscriber", "New", "initial fetch")
		}
	}
	release()

	fs.logger.Debug("fetching subscriber ready")
	return fs, nil
}

// KeyExpr returns the subscription's key expression.
func (fs *FetchingSubscriber) KeyExpr() keyexpr.KeyExpr { return fs.cfg.KeyExpr }

// Fetch runs one more historical fetch, merging its results with whatever
// arrives live meanwhile. Fetches may overlap; delivery stays deferred
// until the last one releases.
func (fs *FetchingSubscriber) Fetch(fetch FetchFunc) error {
	if fetch == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "FetchingSubscriber", "Fetch", "nil fetch")
	}
	if fs.closed.Load() {
		return errors.ErrAlreadyUndeclared
	}

	release := fs.beginFetch()
	defer release()

	if err := fetch(fs.mergeFetched); err != nil {
		return errors.Wrap(err, "FetchingSubscriber", "Fetch", "run fetch")
	}
	return nil
}

// handleLive routes one live sample: direct delivery when idle, buffering
// when a fetch is pending. A buffered live sample without a timestamp gets
// one from the session clock so it sorts after everything already fetched.
func (fs *FetchingSubscriber) handleLive(smp sample.Sample) {
	fs.stateMu.Lock()
	if fs.pending > 0 {
		if _, ok := smp.Timestamp(); !ok {
			smp = smp.WithTimestamp(fs.cfg.Session.NewTimestamp())
		}
		pushed := fs.queue.push(smp)
		depth := fs.queue.len()
		fs.stateMu.Unlock()

		if fs.metrics != nil {
			if pushed {
				fs.metrics.SampleMerged(depth)
			} else {
				fs.metrics.DuplicateDropped()
			}
		}
		return
	}
	fs.stateMu.Unlock()
	fs.deliver(smp)
}

// mergeFetched buffers one fetched item. Fetched samples keep whatever
// timestamp they carry; untimestamped ones drain first, in fetch order.
func (fs *FetchingSubscriber) mergeFetched(e sample.Extractor) {
	smp, err := e.Extract()
	if err != nil {
		fs.logger.Warn("discarding unextractable fetched item", "error", err)
		if fs.metrics != nil {
			fs.metrics.ExtractError()
		}
		return
	}

	fs.stateMu.Lock()
	pushed := fs.queue.push(smp)
	depth := fs.queue.len()
	fs.stateMu.Unlock()

	if fs.metrics != nil {
		if pushed {
			fs.metrics.SampleMerged(depth)
		} else {
			fs.metrics.DuplicateDropped()
		}
	}
}

// beginFetch opens one pending-fetch slot and returns its release. The
// release is idempotent; the last release drains the merge queue.
func (fs *FetchingSubscriber) beginFetch() func() {
	fs.stateMu.Lock()
	fs.pending++
	fs.stateMu.Unlock()

	if fs.metrics != nil {
		fs.metrics.FetchStarted()
	}

	var once sync.Once
	return func() { once.Do(fs.releaseFetch) }
}

func (fs *FetchingSubscriber) releaseFetch() {
	fs.stateMu.Lock()
	fs.pending--
	var drained *mergeQueue
	if fs.pending == 0 && fs.queue.len() > 0 {
		drained = fs.queue
		fs.queue = newMergeQueue()
	}
	fs.stateMu.Unlock()

	if fs.metrics != nil {
		fs.metrics.FetchFinished()
	}
	if drained == nil {
		return
	}

	fs.deliverM.Lock()
	defer fs.deliverM.Unlock()
	n := 0
	for it := drained.drain(); ; {
		smp, ok := it.next()
		if !ok {
			break
		}
		fs.invokeHandler(smp)
		n++
	}
	if fs.metrics != nil {
		fs.metrics.QueueDrained()
	}
	fs.logger.Debug("merge queue drained", "samples", n)
}

func (fs *FetchingSubscriber) deliver(smp sample.Sample) {
	fs.deliverM.Lock()
	fs.invokeHandler(smp)
	fs.deliverM.Unlock()
}

// invokeHandler shields the stream from a panicking handler: one bad sample
// must not abort a drain in progress.
func (fs *FetchingSubscriber) invokeHandler(smp sample.Sample) {
	defer func() {
		if r := recover(); r != nil {
			fs.logger.Error("handler panicked", "keyexpr", smp.KeyExpr().String(), "panic", r)
			if fs.metrics != nil {
				fs.metrics.DeliveryError()
			}
		}
	}()
	fs.cfg.Handler(smp)
}

// Undeclare stops the live subscription. Buffered samples of a still
// pending fetch are discarded with it.
func (fs *FetchingSubscriber) Undeclare() error {
	if !fs.closed.CompareAndSwap(false, true) {
		return errors.ErrAlreadyUndeclared
	}
	if err := fs.live.Undeclare(); err != nil {
		return errors.Wrap(err, "FetchingSubscriber", "Undeclare", "undeclare live subscriber")
	}
	fs.logger.Debug("fetching subscriber undeclared")
	return nil
}

// Close releases the subscriber per its configuration: it undeclares the
// live subscription unless Background is set, in which case the
// subscription stays active until the session closes.
func (fs *FetchingSubscriber) Close() error {
	if fs.cfg.Background {
		return nil
	}
	err := fs.Undeclare()
	if stderrors.Is(err, errors.ErrAlreadyUndeclared) {
		return nil
	}
	return err
}
