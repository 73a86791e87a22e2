package session

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

// CongestionControl selects what a rate-limited publisher does when the
// limiter has no budget left.
type CongestionControl int

const (
	// CongestionBlock waits for limiter budget.
	CongestionBlock CongestionControl = iota
	// CongestionDrop discards the publication and reports ErrPublishDropped.
	CongestionDrop
)

// String returns the lowercase policy name.
func (c CongestionControl) String() string {
	switch c {
	case CongestionBlock:
		return "block"
	case CongestionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Publisher is the handle of a declared publication. It stamps every sample
// with the session clock and applies congestion control before handing the
// sample to the transport.
type Publisher struct {
	session    *Session
	key        keyexpr.KeyExpr
	limiter    *rate.Limiter // nil: no congestion control
	congestion CongestionControl
	undeclared atomic.Bool
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithCongestionControl enables the limiter with the given policy and rate.
func WithCongestionControl(policy CongestionControl, perSecond float64, burst int) PublisherOption {
	return func(p *Publisher) {
		p.congestion = policy
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// DeclarePublisher registers a publication on the key expression. The
// session-level publish rate applies unless overridden per publisher.
func (s *Session) DeclarePublisher(key keyexpr.KeyExpr, opts ...PublisherOption) (*Publisher, error) {
	if key.IsWild() {
		return nil, errors.WrapInvalid(errors.ErrInvalidKeyExpr,
			"Session", "DeclarePublisher", "wildcard publication key "+key.String())
	}

	p := &Publisher{session: s, key: key}
	if s.pubRate > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(s.pubRate), s.pubBurst)
	}
	for _, opt := range opts {
		opt(p)
	}

	s.logger.Debug("publisher declared", "keyexpr", key.String())
	return p, nil
}

// KeyExpr returns the publication's key expression.
func (p *Publisher) KeyExpr() keyexpr.KeyExpr { return p.key }

// Put publishes a payload under the publisher's key.
func (p *Publisher) Put(ctx context.Context, payload []byte) error {
	return p.write(ctx, sample.New(p.key, payload, sample.KindPut))
}

// Delete publishes a tombstone under the publisher's key.
func (p *Publisher) Delete(ctx context.Context) error {
	return p.write(ctx, sample.New(p.key, nil, sample.KindDelete))
}

func (p *Publisher) write(ctx context.Context, smp sample.Sample) error {
	if p.undeclared.Load() {
		return errors.ErrAlreadyUndeclared
	}

	if p.limiter != nil {
		switch p.congestion {
		case CongestionDrop:
			if !p.limiter.Allow() {
				if p.session.metrics != nil {
					p.session.metrics.RecordPublishDropped()
				}
				return errors.ErrPublishDropped
			}
		default: // CongestionBlock
			if err := p.limiter.Wait(ctx); err != nil {
				return errors.WrapTransient(err, "Publisher", "write", "wait for rate budget")
			}
		}
	}

	return p.session.put(smp)
}

// Undeclare releases the publisher. Further writes return
// ErrAlreadyUndeclared.
func (p *Publisher) Undeclare() error {
	if !p.undeclared.CompareAndSwap(false, true) {
		return errors.ErrAlreadyUndeclared
	}
	p.session.logger.Debug("publisher undeclared", "keyexpr", p.key.String())
	return nil
}
