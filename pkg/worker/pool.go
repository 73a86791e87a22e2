// Package worker provides a generic bounded worker pool.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oteffahi/zenoh/metric"
)

var (
	// ErrPoolNotStarted indicates the pool has not been started yet
	ErrPoolNotStarted = errors.New("worker pool not started")

	// ErrPoolStopped indicates the pool has been stopped
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrPoolAlreadyStarted indicates Start was called twice
	ErrPoolAlreadyStarted = errors.New("worker pool already started")

	// ErrQueueFull indicates the work queue is at capacity
	ErrQueueFull = errors.New("worker pool queue full")

	// ErrStopTimeout indicates workers did not finish within the timeout
	ErrStopTimeout = errors.New("timeout waiting for workers to stop")
)

// Pool distributes work items of type T over a fixed set of workers behind
// a bounded queue. Submit never blocks; a full queue is reported as
// ErrQueueFull so the caller owns the backpressure decision.
type Pool[T any] struct {
	workers   int
	processor func(context.Context, T) error

	workChan chan T
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metrics *poolMetrics
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	processed  prometheus.Counter
	failed     prometheus.Counter
	dropped    prometheus.Counter
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetrics registers pool metrics under the given name.
func WithMetrics[T any](registrar metric.Registrar, name string) Option[T] {
	return func(p *Pool[T]) {
		m := &poolMetrics{
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "zenoh", Name: name + "_pool_queue_depth",
				Help: "Current worker pool queue depth",
			}),
			processed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "zenoh", Name: name + "_pool_processed_total",
				Help: "Work items processed",
			}),
			failed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "zenoh", Name: name + "_pool_failed_total",
				Help: "Work items whose processor returned an error",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "zenoh", Name: name + "_pool_dropped_total",
				Help: "Work items dropped on a full queue",
			}),
		}
		if registrar != nil {
			_ = registrar.Register(name, name+"_pool_queue_depth", m.queueDepth)
			_ = registrar.Register(name, name+"_pool_processed_total", m.processed)
			_ = registrar.Register(name, name+"_pool_failed_total", m.failed)
			_ = registrar.Register(name, name+"_pool_dropped_total", m.dropped)
		}
		p.metrics = m
	}
}

// NewPool creates a pool of the given size. The processor runs on worker
// goroutines and receives the context passed to Start.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	p := &Pool[T]{
		workers:   workers,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.started = true
	return nil
}

// Submit enqueues one work item without blocking. The lock spans the send
// so Stop cannot close the queue between the state check and the enqueue.
func (p *Pool[T]) Submit(work T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Stop closes intake and waits for the queue to drain, up to the timeout.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.workChan)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			err := p.processor(ctx, work)
			p.processed.Add(1)
			if p.metrics != nil {
				p.metrics.processed.Inc()
				p.metrics.queueDepth.Set(float64(len(p.workChan)))
			}
			if err != nil {
				p.failed.Add(1)
				if p.metrics != nil {
					p.metrics.failed.Inc()
				}
			}
		}
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Stats returns current counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}
