package sample

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampOrdering(t *testing.T) {
	idA := uuid.UUID{15: 1}
	idB := uuid.UUID{15: 2}

	tests := []struct {
		name string
		a, b Timestamp
		want int
	}{
		{"time wins", NewTimestamp(100, idB), NewTimestamp(200, idA), -1},
		{"equal", NewTimestamp(100, idA), NewTimestamp(100, idA), 0},
		{"id tie break", NewTimestamp(100, idA), NewTimestamp(100, idB), -1},
		{"reverse", NewTimestamp(200, idA), NewTimestamp(100, idB), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
			assert.Equal(t, tt.want < 0, tt.a.Before(tt.b))
		})
	}
}

func TestTimestampStringRoundTrip(t *testing.T) {
	in := NewTimestamp(1735689600123, uuid.New())
	out, err := ParseTimestamp(in.String())
	require.NoError(t, err)
	assert.Zero(t, in.Compare(out))
	assert.Equal(t, in, out)
}

func TestParseTimestampErrors(t *testing.T) {
	for _, bad := range []string{"", "12345", "abc/not-a-uuid", "x/9cd21a3e-8d6c-4b0a-9a2e-000000000000"} {
		_, err := ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimestampIsZero(t *testing.T) {
	assert.True(t, Timestamp{}.IsZero())
	assert.False(t, NewTimestamp(1, uuid.New()).IsZero())
}

func TestClockStrictlyIncreasing(t *testing.T) {
	c := NewClock(uuid.New())

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		next := c.Now()
		require.True(t, prev.Before(next), "clock must never repeat or regress")
		prev = next
	}
}

func TestClockConcurrentUniqueness(t *testing.T) {
	c := NewClock(uuid.New())

	const goroutines = 8
	const perGoroutine = 200
	out := make(chan Timestamp, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				out <- c.Now()
			}
		}()
	}
	wg.Wait()
	close(out)

	var all []Timestamp
	for ts := range out {
		all = append(all, ts)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	for i := 1; i < len(all); i++ {
		require.NotZero(t, all[i-1].Compare(all[i]), "duplicate timestamp issued")
	}
}
