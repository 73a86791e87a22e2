package session

import (
	"sync/atomic"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

// Query is one incoming query as seen by a queryable. The handler replies
// zero or more times, then returns; replies after the handler returned are
// not guaranteed to reach the querier.
type Query struct {
	selector keyexpr.KeyExpr
	reply    func(data []byte) error
}

// Selector returns the key expression the querier asked for.
func (q *Query) Selector() keyexpr.KeyExpr { return q.selector }

// Reply sends one sample back to the querier.
func (q *Query) Reply(smp sample.Sample) error {
	data, err := encodeReply(smp)
	if err != nil {
		return errors.WrapInvalid(err, "Query", "Reply", "encode reply")
	}
	if err := q.reply(data); err != nil {
		return errors.Wrap(err, "Query", "Reply", "send reply")
	}
	return nil
}

// ReplyErr reports a per-query error back to the querier.
func (q *Query) ReplyErr(qerr error) error {
	if err := q.reply(encodeReplyErr(qerr)); err != nil {
		return errors.Wrap(err, "Query", "ReplyErr", "send reply")
	}
	return nil
}

// QueryHandler serves one query. Handlers may run concurrently on
// transport threads.
type QueryHandler func(*Query)

// Queryable is the handle of a declared query responder.
type Queryable struct {
	session    *Session
	key        keyexpr.KeyExpr
	reg        Registration
	trackID    uint64
	undeclared atomic.Bool
}

// DeclareQueryable registers a query responder for selectors intersecting
// the key expression.
func (s *Session) DeclareQueryable(key keyexpr.KeyExpr, handler QueryHandler) (*Queryable, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Session", "DeclareQueryable", "nil handler")
	}

	reg, err := s.transport.ServeQueries(key, func(selector keyexpr.KeyExpr, reply func(data []byte) error) {
		handler(&Query{selector: selector, reply: reply})
	})
	if err != nil {
		return nil, errors.Wrap(err, "Session", "DeclareQueryable", "serve "+key.String())
	}

	id, err := s.track(reg)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	s.logger.Debug("queryable declared", "keyexpr", key.String())
	return &Queryable{session: s, key: key, reg: reg, trackID: id}, nil
}

// KeyExpr returns the queryable's key expression.
func (q *Queryable) KeyExpr() keyexpr.KeyExpr { return q.key }

// Undeclare removes the query responder. Further calls return
// ErrAlreadyUndeclared.
func (q *Queryable) Undeclare() error {
	if !q.undeclared.CompareAndSwap(false, true) {
		return errors.ErrAlreadyUndeclared
	}
	q.session.untrack(q.trackID)
	if err := q.reg.Close(); err != nil {
		return errors.Wrap(err, "Queryable", "Undeclare", "close registration")
	}
	q.session.logger.Debug("queryable undeclared", "keyexpr", q.key.String())
	return nil
}
