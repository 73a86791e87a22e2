// Package sample defines the data entity flowing through the pub/sub node:
// a key expression, a payload, a kind (put or delete) and an optional logical
// timestamp. Samples are immutable values; derivations such as WithTimestamp
// return a copy.
package sample

import (
	"fmt"

	"github.com/oteffahi/zenoh/keyexpr"
)

// Kind discriminates data samples from tombstones.
type Kind int

const (
	// KindPut carries a payload for a key.
	KindPut Kind = iota
	// KindDelete marks a key as removed.
	KindDelete
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindPut:
		return "put"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Sample is one pub/sub data event. The zero Sample is not meaningful;
// construct with New.
type Sample struct {
	key     keyexpr.KeyExpr
	payload []byte
	kind    Kind
	ts      Timestamp
	hasTS   bool
}

// New creates an untimestamped sample. Ownership of the payload slice is
// transferred to the sample; callers must not mutate it afterwards.
func New(key keyexpr.KeyExpr, payload []byte, kind Kind) Sample {
	return Sample{key: key, payload: payload, kind: kind}
}

// KeyExpr returns the sample's key expression.
func (s Sample) KeyExpr() keyexpr.KeyExpr { return s.key }

// Payload returns the sample's payload. The slice is owned by the sample.
func (s Sample) Payload() []byte { return s.payload }

// Kind returns whether the sample is a put or a delete.
func (s Sample) Kind() Kind { return s.kind }

// Timestamp returns the sample's logical timestamp and whether one is set.
func (s Sample) Timestamp() (Timestamp, bool) { return s.ts, s.hasTS }

// WithTimestamp returns a copy of the sample carrying the given timestamp.
func (s Sample) WithTimestamp(ts Timestamp) Sample {
	s.ts = ts
	s.hasTS = true
	return s
}

// WithKey returns a copy of the sample addressed to a different key.
func (s Sample) WithKey(key keyexpr.KeyExpr) Sample {
	s.key = key
	return s
}

// String renders a short human-readable form for logs.
func (s Sample) String() string {
	if s.hasTS {
		return fmt.Sprintf("%s(%s @%s, %dB)", s.kind, s.key, s.ts, len(s.payload))
	}
	return fmt.Sprintf("%s(%s, %dB)", s.kind, s.key, len(s.payload))
}
