package fetching

import (
	"sort"

	"github.com/oteffahi/zenoh/sample"
)

// mergeQueue buffers samples while fetches are pending. Untimestamped
// samples keep their arrival order; timestamped samples deduplicate on the
// timestamp with first-write-wins and drain in ascending timestamp order,
// after the untimestamped ones.
type mergeQueue struct {
	fifo   []sample.Sample
	byTime map[sample.Timestamp]sample.Sample
}

func newMergeQueue() *mergeQueue {
	return &mergeQueue{byTime: make(map[sample.Timestamp]sample.Sample)}
}

// push buffers one sample. It returns false when a sample with the same
// timestamp is already buffered; the newcomer is dropped.
func (q *mergeQueue) push(smp sample.Sample) bool {
	ts, ok := smp.Timestamp()
	if !ok {
		q.fifo = append(q.fifo, smp)
		return true
	}
	if _, dup := q.byTime[ts]; dup {
		return false
	}
	q.byTime[ts] = smp
	return true
}

func (q *mergeQueue) len() int {
	return len(q.fifo) + len(q.byTime)
}

// drain moves the buffered samples into an iterator and resets the queue
// to empty. The iterator yields the untimestamped samples in arrival
// order, then the timestamped ones ascending.
func (q *mergeQueue) drain() *drainIter {
	fifo := q.fifo
	byTime := q.byTime
	q.fifo = nil
	q.byTime = make(map[sample.Timestamp]sample.Sample)

	keys := make([]sample.Timestamp, 0, len(byTime))
	for ts := range byTime {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return &drainIter{fifo: fifo, byTime: byTime, keys: keys}
}

type drainIter struct {
	fifo   []sample.Sample
	byTime map[sample.Timestamp]sample.Sample
	keys   []sample.Timestamp
	pos    int
}

func (it *drainIter) next() (sample.Sample, bool) {
	if it.pos < len(it.fifo) {
		smp := it.fifo[it.pos]
		it.pos++
		return smp, true
	}
	i := it.pos - len(it.fifo)
	if i < len(it.keys) {
		it.pos++
		return it.byTime[it.keys[i]], true
	}
	return sample.Sample{}, false
}
