package fetching

import (
	"sync"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/sample"
)

// Channel adapts a sample callback to channel consumption. Sends block
// when the buffer is full, which back-pressures the subscriber's delivery
// path; Close releases any blocked sender with ErrHandlerClosed, so a
// torn-down receiver surfaces as an error and never wedges delivery.
type Channel struct {
	mu      sync.Mutex
	ch      chan sample.Sample
	done    chan struct{}
	senders sync.WaitGroup
	closed  bool
}

// NewChannel creates a channel handler with the given buffer capacity.
func NewChannel(capacity int) *Channel {
	return &Channel{
		ch:   make(chan sample.Sample, capacity),
		done: make(chan struct{}),
	}
}

// Callback returns the function to hand to a subscriber configuration.
// Samples arriving after Close are dropped.
func (c *Channel) Callback() func(sample.Sample) {
	return func(smp sample.Sample) { _ = c.Push(smp) }
}

// Push sends one sample to the receiver. It returns ErrHandlerClosed once
// the channel is closed, including when Close fires while the send is
// blocked on a full buffer.
func (c *Channel) Push(smp sample.Sample) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrHandlerClosed
	}
	c.senders.Add(1)
	c.mu.Unlock()
	defer c.senders.Done()

	select {
	case c.ch <- smp:
		return nil
	case <-c.done:
		return errors.ErrHandlerClosed
	}
}

// Samples is the receive side. Buffered samples remain readable after
// Close; the channel closes once they are drained.
func (c *Channel) Samples() <-chan sample.Sample { return c.ch }

// Close stops intake, unblocks pending sends and closes the receive side.
// Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	// The receive side can only close once no Push can touch it: new
	// senders are rejected by the flag, blocked ones exit via done.
	c.senders.Wait()
	close(c.ch)
}
