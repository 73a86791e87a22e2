package sample

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timestamp is a logical timestamp: a millisecond time value totally ordered
// with the originator identity as tie breaker. Timestamps are compared for
// ordering and for exact-match deduplication only; they carry no wall-clock
// semantics beyond the best-effort value the originating clock produced.
//
// The zero Timestamp means "not set".
type Timestamp struct {
	TimeMs int64
	ID     uuid.UUID
}

// NewTimestamp builds a timestamp from a millisecond time value and an
// originator identity.
func NewTimestamp(timeMs int64, id uuid.UUID) Timestamp {
	return Timestamp{TimeMs: timeMs, ID: id}
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool {
	return t.TimeMs == 0 && t.ID == uuid.Nil
}

// Compare returns -1, 0 or 1 ordering by time value first, then by bytewise
// comparison of the originator identity.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.TimeMs < o.TimeMs:
		return -1
	case t.TimeMs > o.TimeMs:
		return 1
	default:
		return strings.Compare(string(t.ID[:]), string(o.ID[:]))
	}
}

// Before reports whether t orders strictly before o.
func (t Timestamp) Before(o Timestamp) bool { return t.Compare(o) < 0 }

// Time converts the time value to a time.Time. Returns the zero time for an
// unset timestamp.
func (t Timestamp) Time() time.Time {
	if t.TimeMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.TimeMs)
}

// String renders the timestamp as "<ms>/<originator-uuid>".
func (t Timestamp) String() string {
	return fmt.Sprintf("%d/%s", t.TimeMs, t.ID)
}

// ParseTimestamp parses the "<ms>/<originator-uuid>" form produced by String.
func ParseTimestamp(s string) (Timestamp, error) {
	ms, id, ok := strings.Cut(s, "/")
	if !ok {
		return Timestamp{}, fmt.Errorf("timestamp %q: missing '/' separator", s)
	}
	timeMs, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp %q: bad time value: %w", s, err)
	}
	origin, err := uuid.Parse(id)
	if err != nil {
		return Timestamp{}, fmt.Errorf("timestamp %q: bad originator id: %w", s, err)
	}
	return Timestamp{TimeMs: timeMs, ID: origin}, nil
}

// Clock issues timestamps carrying a fixed originator identity.
//
// Issued time values are strictly increasing even when the wall clock stalls
// within one millisecond or jumps backward, so two timestamps from the same
// clock never compare equal. That property is what keeps exact-timestamp
// deduplication from silently dropping distinct local samples.
type Clock struct {
	mu   sync.Mutex
	id   uuid.UUID
	last int64
}

// NewClock creates a clock for the given originator identity.
func NewClock(id uuid.UUID) *Clock {
	return &Clock{id: id}
}

// ID returns the originator identity the clock stamps with.
func (c *Clock) ID() uuid.UUID { return c.id }

// Now returns a fresh timestamp for the current wall-clock reading.
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return Timestamp{TimeMs: now, ID: c.id}
}
