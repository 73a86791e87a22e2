package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/metric"
	"github.com/oteffahi/zenoh/sample"
)

// Callback receives one sample from a live subscription. Callbacks may be
// invoked concurrently from transport worker threads.
type Callback func(sample.Sample)

// Session is a pub/sub session: the factory for subscribers, publishers,
// queryables and queries over one transport.
type Session struct {
	zid          uuid.UUID
	clock        *sample.Clock
	transport    Transport
	logger       *slog.Logger
	metrics      *metric.Metrics
	queryTimeout time.Duration
	pubRate      float64
	pubBurst     int

	mu     sync.Mutex
	closed bool
	nextID uint64
	regs   map[uint64]Registration
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics wires the node metric set into the session
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithQueryTimeout sets the default bound on reply collection for Get
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Session) { s.queryTimeout = d }
}

// WithPublishRate sets the default congestion-control rate for publishers
// declared on this session. Zero disables the limiter.
func WithPublishRate(rate float64, burst int) Option {
	return func(s *Session) {
		s.pubRate = rate
		s.pubBurst = burst
	}
}

// newSession wires a session over an open transport.
func newSession(t Transport, opts ...Option) *Session {
	zid := uuid.New()
	s := &Session{
		zid:          zid,
		clock:        sample.NewClock(zid),
		transport:    t,
		logger:       slog.Default(),
		queryTimeout: 10 * time.Second,
		pubBurst:     1,
		regs:         make(map[uint64]Registration),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "zid", zid.String())
	return s
}

// ZID returns the session's originator identity.
func (s *Session) ZID() uuid.UUID { return s.zid }

// NewTimestamp issues a fresh logical timestamp from the session clock.
func (s *Session) NewTimestamp() sample.Timestamp { return s.clock.Now() }

// track registers a declaration for teardown at session close. It returns
// the id used to untrack, or an error if the session is already closed.
func (s *Session) track(reg Registration) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.ErrSessionClosed
	}
	s.nextID++
	s.regs[s.nextID] = reg
	return s.nextID, nil
}

func (s *Session) untrack(id uint64) {
	s.mu.Lock()
	delete(s.regs, id)
	s.mu.Unlock()
}

// DeclareSubscriber registers a live push subscription. The callback runs on
// transport threads; it must not block for long.
func (s *Session) DeclareSubscriber(key keyexpr.KeyExpr, cb Callback) (*Subscriber, error) {
	if cb == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Session", "DeclareSubscriber", "nil callback")
	}

	reg, err := s.transport.Subscribe(key, func(data []byte) {
		smp, err := decodeSample(data)
		if err != nil {
			s.logger.Warn("dropping undecodable sample", "keyexpr", key.String(), "error", err)
			if s.metrics != nil {
				s.metrics.RecordError("session", "decode")
			}
			return
		}
		// Transports may deliver on a coarser filter; re-check here.
		if !key.Matches(smp.KeyExpr()) {
			return
		}
		if s.metrics != nil {
			s.metrics.RecordSampleReceived(key.String(), smp.Kind().String())
		}
		cb(smp)
	})
	if err != nil {
		return nil, errors.Wrap(err, "Session", "DeclareSubscriber", "subscribe "+key.String())
	}

	id, err := s.track(reg)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	s.logger.Debug("subscriber declared", "keyexpr", key.String())
	return &Subscriber{session: s, key: key, reg: reg, trackID: id}, nil
}

// put stamps (when unstamped) and publishes one sample.
func (s *Session) put(smp sample.Sample) error {
	if _, ok := smp.Timestamp(); !ok {
		smp = smp.WithTimestamp(s.clock.Now())
	}
	data, err := encodeSample(smp)
	if err != nil {
		return errors.WrapInvalid(err, "Session", "Put", "encode sample")
	}
	if err := s.transport.Publish(smp.KeyExpr(), data); err != nil {
		return errors.Wrap(err, "Session", "Put", "publish "+smp.KeyExpr().String())
	}
	if s.metrics != nil {
		s.metrics.RecordSamplePublished(smp.KeyExpr().String(), smp.Kind().String())
	}
	return nil
}

// Put publishes a payload under the key, stamped with the session clock.
func (s *Session) Put(key keyexpr.KeyExpr, payload []byte) error {
	return s.put(sample.New(key, payload, sample.KindPut))
}

// Delete publishes a tombstone for the key.
func (s *Session) Delete(key keyexpr.KeyExpr) error {
	return s.put(sample.New(key, nil, sample.KindDelete))
}

// Liveliness returns the liveliness view of this session.
func (s *Session) Liveliness() *Liveliness {
	return &Liveliness{session: s}
}

// Close undeclares everything still registered and closes the transport.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	regs := make([]Registration, 0, len(s.regs))
	for _, reg := range s.regs {
		regs = append(regs, reg)
	}
	s.regs = make(map[uint64]Registration)
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, reg := range regs {
		g.Go(reg.Close)
	}
	closeErr := g.Wait()

	if err := s.transport.Close(ctx); err != nil {
		return errors.Wrap(err, "Session", "Close", "close transport")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "Session", "Close", "undeclare registrations")
	}
	s.logger.Debug("session closed")
	return nil
}
