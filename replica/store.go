package replica

import (
	"sort"
	"sync"

	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

// Store keeps a bounded version history per concrete key, ordered by
// timestamp.
type Store struct {
	mu      sync.RWMutex
	depth   int
	entries map[keyexpr.KeyExpr][]sample.Sample
}

// NewStore creates a store keeping up to depth versions per key.
func NewStore(depth int) *Store {
	if depth < 1 {
		depth = 1
	}
	return &Store{depth: depth, entries: make(map[keyexpr.KeyExpr][]sample.Sample)}
}

// Insert records one version. Samples without a timestamp are rejected by
// returning false, as are duplicates of an already stored timestamp.
func (st *Store) Insert(smp sample.Sample) bool {
	ts, ok := smp.Timestamp()
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	key := smp.KeyExpr()
	versions := st.entries[key]
	for _, v := range versions {
		if vts, _ := v.Timestamp(); vts.Compare(ts) == 0 {
			return false
		}
	}

	versions = append(versions, smp)
	sort.Slice(versions, func(i, j int) bool {
		a, _ := versions[i].Timestamp()
		b, _ := versions[j].Timestamp()
		return a.Before(b)
	})
	if len(versions) > st.depth {
		versions = versions[len(versions)-st.depth:]
	}
	st.entries[key] = versions
	return true
}

// Latest returns the newest version of every key matching the selector,
// skipping keys whose newest version is a tombstone.
func (st *Store) Latest(selector keyexpr.KeyExpr) []sample.Sample {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []sample.Sample
	for key, versions := range st.entries {
		if !selector.Matches(key) || len(versions) == 0 {
			continue
		}
		newest := versions[len(versions)-1]
		if newest.Kind() == sample.KindDelete {
			continue
		}
		out = append(out, newest)
	}
	return out
}

// Versions returns the stored history of one concrete key, oldest first.
func (st *Store) Versions(key keyexpr.KeyExpr) []sample.Sample {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]sample.Sample, len(st.entries[key]))
	copy(out, st.entries[key])
	return out
}

// Len returns the number of keys with stored history.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}
