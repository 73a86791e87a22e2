package session

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

// livelinessPrefix is the reserved key space carrying presence information.
const livelinessPrefix = "@liveliness"

// Liveliness is the presence view of a session. Tokens declared here are
// visible to liveliness subscribers (as put/delete samples on the token
// key) and to liveliness queries (which reach the token holders that are
// still alive).
//
// Liveliness exposes the same DeclareSubscriber/Get/NewTimestamp shape as
// the session itself, so a history-reconciling subscriber can watch the
// liveliness space simply by being built on this view.
type Liveliness struct {
	session *Session
}

func (l *Liveliness) prefixed(key keyexpr.KeyExpr) (keyexpr.KeyExpr, error) {
	pk, err := keyexpr.New(livelinessPrefix + "/" + key.String())
	if err != nil {
		return "", errors.WrapInvalid(err, "Liveliness", "prefixed", "build liveliness key")
	}
	return pk, nil
}

func stripLiveliness(key keyexpr.KeyExpr) keyexpr.KeyExpr {
	stripped := strings.TrimPrefix(key.String(), livelinessPrefix+"/")
	out, err := keyexpr.New(stripped)
	if err != nil {
		return key
	}
	return out
}

// NewTimestamp issues a timestamp from the underlying session clock.
func (l *Liveliness) NewTimestamp() sample.Timestamp {
	return l.session.NewTimestamp()
}

// DeclareSubscriber watches token changes: a put sample reports a token
// appearing, a delete sample reports it going away. Keys are reported
// without the internal liveliness prefix.
func (l *Liveliness) DeclareSubscriber(key keyexpr.KeyExpr, cb Callback) (*Subscriber, error) {
	pk, err := l.prefixed(key)
	if err != nil {
		return nil, err
	}
	return l.session.DeclareSubscriber(pk, func(smp sample.Sample) {
		cb(smp.WithKey(stripLiveliness(smp.KeyExpr())))
	})
}

// Get queries which tokens matching the selector are currently alive. Each
// live token answers with one put sample on its token key.
func (l *Liveliness) Get(ctx context.Context, selector keyexpr.KeyExpr, cb ReplyCallback, opts ...GetOption) error {
	ps, err := l.prefixed(selector)
	if err != nil {
		return err
	}
	return l.session.Get(ctx, ps, func(r Reply) {
		if r.err == nil {
			r.sample = r.sample.WithKey(stripLiveliness(r.sample.KeyExpr()))
		}
		cb(r)
	}, opts...)
}

// Token is a declared liveliness token. It stays visible until undeclared
// or until the session closes.
type Token struct {
	liveliness *Liveliness
	key        keyexpr.KeyExpr // prefixed
	queryable  *Queryable
	undeclared atomic.Bool
}

// DeclareToken asserts presence on a concrete key.
func (l *Liveliness) DeclareToken(key keyexpr.KeyExpr) (*Token, error) {
	if key.IsWild() {
		return nil, errors.WrapInvalid(errors.ErrInvalidKeyExpr,
			"Liveliness", "DeclareToken", "wildcard token key "+key.String())
	}
	pk, err := l.prefixed(key)
	if err != nil {
		return nil, err
	}

	// Alive tokens answer liveliness queries themselves; a token that
	// stopped answering is gone.
	qable, err := l.session.DeclareQueryable(pk, func(q *Query) {
		alive := sample.New(pk, nil, sample.KindPut).WithTimestamp(l.session.NewTimestamp())
		if err := q.Reply(alive); err != nil {
			l.session.logger.Warn("liveliness token reply failed",
				"keyexpr", pk.String(), "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	if err := l.session.Put(pk, nil); err != nil {
		_ = qable.Undeclare()
		return nil, err
	}

	l.session.logger.Debug("liveliness token declared", "keyexpr", key.String())
	return &Token{liveliness: l, key: pk, queryable: qable}, nil
}

// Undeclare withdraws the token, notifying liveliness subscribers with a
// delete sample.
func (t *Token) Undeclare() error {
	if !t.undeclared.CompareAndSwap(false, true) {
		return errors.ErrAlreadyUndeclared
	}
	if err := t.queryable.Undeclare(); err != nil {
		return err
	}
	return t.liveliness.session.Delete(t.key)
}
