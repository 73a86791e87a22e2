package session

import (
	"sync/atomic"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
)

// Subscriber is the handle of a declared live subscription.
type Subscriber struct {
	session    *Session
	key        keyexpr.KeyExpr
	reg        Registration
	trackID    uint64
	undeclared atomic.Bool
}

// KeyExpr returns the subscription's key expression.
func (s *Subscriber) KeyExpr() keyexpr.KeyExpr { return s.key }

// Undeclare removes the live subscription. Further calls return
// ErrAlreadyUndeclared.
func (s *Subscriber) Undeclare() error {
	if !s.undeclared.CompareAndSwap(false, true) {
		return errors.ErrAlreadyUndeclared
	}
	s.session.untrack(s.trackID)
	if err := s.reg.Close(); err != nil {
		return errors.Wrap(err, "Subscriber", "Undeclare", "close registration")
	}
	s.session.logger.Debug("subscriber undeclared", "keyexpr", s.key.String())
	return nil
}
