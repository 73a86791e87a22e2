package session

import (
	"context"
	"time"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

// Reply is one answer to a query: either a sample or a per-reply error.
// Reply satisfies sample.Extractor, so a reply stream can feed a
// history-reconciling fetch directly.
type Reply struct {
	sample sample.Sample
	err    error
}

// Extract returns the reply's sample, or the error the reply carries.
func (r Reply) Extract() (sample.Sample, error) {
	if r.err != nil {
		return sample.Sample{}, errors.Wrap(r.err, "Reply", "Extract", "convert reply")
	}
	return r.sample, nil
}

// Ok reports whether the reply carries a sample.
func (r Reply) Ok() bool { return r.err == nil }

// ReplyCallback receives replies as they arrive, possibly from transport
// threads.
type ReplyCallback func(Reply)

// GetOption configures one Get call
type GetOption func(*getOptions)

type getOptions struct {
	timeout time.Duration
}

// WithGetTimeout overrides the session's default reply-collection bound.
func WithGetTimeout(d time.Duration) GetOption {
	return func(o *getOptions) { o.timeout = d }
}

// Get issues a query for the selector and streams every reply to cb until
// all reachable queryables answered or the timeout elapsed. Get blocks for
// the collection window; the callback's own processing is the caller's
// concern.
func (s *Session) Get(ctx context.Context, selector keyexpr.KeyExpr, cb ReplyCallback, opts ...GetOption) error {
	if cb == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Session", "Get", "nil callback")
	}

	o := getOptions{timeout: s.queryTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	qctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	err := s.transport.Query(qctx, selector, func(data []byte) {
		cb(decodeReply(data))
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.RecordQuery(status, time.Since(start))
	}
	if err != nil {
		return errors.Wrap(err, "Session", "Get", "query "+selector.String())
	}
	return nil
}
