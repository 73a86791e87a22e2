package fetching

import (
	"context"
	"log/slog"
	"time"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/metric"
	"github.com/oteffahi/zenoh/sample"
	"github.com/oteffahi/zenoh/session"
)

// QueryingConfig assembles a querying subscriber: a fetching subscriber
// whose fetches are queries on the same session.
type QueryingConfig struct {
	Session Session
	KeyExpr keyexpr.KeyExpr

	// Selector is the query selector for fetches. Empty means KeyExpr.
	Selector keyexpr.KeyExpr

	// Timeout bounds each fetch query. Zero keeps the session default.
	Timeout time.Duration

	Handler func(sample.Sample)

	// Background keeps the live subscription running after Close.
	Background bool

	Logger  *slog.Logger
	Metrics *metric.SubscriberMetrics
}

// NewQueryingSubscriber subscribes to the key expression and reconciles
// past publications by querying matching queryables, typically storages.
// The context governs the initial fetch query.
func NewQueryingSubscriber(ctx context.Context, cfg QueryingConfig) (*FetchingSubscriber, error) {
	if cfg.Session == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"QueryingSubscriber", "New", "nil session")
	}
	selector := cfg.Selector
	if selector.String() == "" {
		selector = cfg.KeyExpr
	}

	var opts []session.GetOption
	if cfg.Timeout > 0 {
		opts = append(opts, session.WithGetTimeout(cfg.Timeout))
	}

	return NewFetchingSubscriber(Config{
		Session:    cfg.Session,
		KeyExpr:    cfg.KeyExpr,
		Handler:    cfg.Handler,
		Fetch:      QueryFetch(ctx, cfg.Session, selector, opts...),
		Background: cfg.Background,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	})
}

// QueryFetch builds a FetchFunc that queries the selector and feeds every
// reply into the merge. Reusable for later FetchingSubscriber.Fetch calls.
func QueryFetch(ctx context.Context, s Session, selector keyexpr.KeyExpr, opts ...session.GetOption) FetchFunc {
	return func(sink func(sample.Extractor)) error {
		return s.Get(ctx, selector, func(r session.Reply) {
			sink(r)
		}, opts...)
	}
}
