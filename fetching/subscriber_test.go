package fetching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
	"github.com/oteffahi/zenoh/session"
)

type collector struct {
	samples []sample.Sample
}

func (c *collector) handle(smp sample.Sample) {
	c.samples = append(c.samples, smp)
}

func (c *collector) payloads() []string {
	out := make([]string, len(c.samples))
	for i, s := range c.samples {
		out[i] = string(s.Payload())
	}
	return out
}

// declareStorage registers a queryable answering with fixed historical
// samples, replied deliberately out of timestamp order.
func declareStorage(t *testing.T, s *session.Session, key string, history ...sample.Sample) {
	t.Helper()
	_, err := s.DeclareQueryable(keyexpr.MustNew(key), func(q *session.Query) {
		for i := len(history) - 1; i >= 0; i-- {
			require.NoError(t, q.Reply(history[i]))
		}
	})
	require.NoError(t, err)
}

func TestQueryingSubscriberReconcilesHistoryThenLive(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()

	store := broker.Open()
	defer store.Close(context.Background())
	declareStorage(t, store, "room/**",
		stamped("h1", ts(100, 1)),
		stamped("h2", ts(200, 1)),
	)

	sub := broker.Open()
	defer sub.Close(context.Background())

	var got collector
	fs, err := NewQueryingSubscriber(context.Background(), QueryingConfig{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	// History arrived out of order on the wire but drains ascending.
	assert.Equal(t, []string{"h1", "h2"}, got.payloads())

	pub := broker.Open()
	defer pub.Close(context.Background())
	require.NoError(t, pub.Put(keyexpr.MustNew("room/1/temp"), []byte("live")))

	assert.Equal(t, []string{"h1", "h2", "live"}, got.payloads())
}

func TestLiveSamplesBufferedWhileFetchPending(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()

	sub := broker.Open()
	defer sub.Close(context.Background())
	pub := broker.Open()
	defer pub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	err = fs.Fetch(func(sink func(sample.Extractor)) error {
		// A sample published mid-fetch must not reach the handler yet.
		require.NoError(t, pub.Put(keyexpr.MustNew("room/1"), []byte("live")))
		assert.Empty(t, got.samples, "delivery must stay deferred while the fetch is pending")

		// Historical sample with a timestamp far in the past.
		sink(sample.Raw(stamped("hist", ts(1, 1))))
		return nil
	})
	require.NoError(t, err)

	// Drained on release: history first, then the buffered live sample.
	assert.Equal(t, []string{"hist", "live"}, got.payloads())

	// Back to pass-through once idle.
	require.NoError(t, pub.Put(keyexpr.MustNew("room/2"), []byte("after")))
	assert.Equal(t, []string{"hist", "live", "after"}, got.payloads())
}

func TestOverlappingFetchesDrainOnce(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	err = fs.Fetch(func(sink func(sample.Extractor)) error {
		sink(sample.Raw(stamped("outer", ts(200, 1))))

		// A second fetch completing while the first is still pending must
		// not trigger delivery.
		inner := fs.Fetch(func(sink func(sample.Extractor)) error {
			sink(sample.Raw(stamped("inner", ts(100, 1))))
			return nil
		})
		require.NoError(t, inner)
		assert.Empty(t, got.samples, "drain must wait for the last pending fetch")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"inner", "outer"}, got.payloads())
}

func TestDuplicateTimestampAcrossLiveAndFetchDeliveredOnce(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	dup := ts(100, 1)
	release := fs.beginFetch()
	fs.handleLive(stamped("seen-live", dup))
	fs.mergeFetched(sample.Raw(stamped("seen-fetched", dup)))
	release()

	assert.Equal(t, []string{"seen-live"}, got.payloads(),
		"the first sample under a timestamp wins")
}

func TestUntimestampedLiveSampleGetsSynthesizedTimestamp(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	release := fs.beginFetch()
	fs.handleLive(unstamped("live"))
	fs.mergeFetched(sample.Raw(stamped("hist", ts(1, 1))))
	release()

	// The synthesized timestamp is current wall clock, so the historical
	// sample sorts first.
	require.Equal(t, []string{"hist", "live"}, got.payloads())
	_, ok := got.samples[1].Timestamp()
	assert.True(t, ok, "buffered live sample must carry a timestamp")
}

func TestFetchErrorStillReleasesAndDrains(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())
	pub := broker.Open()
	defer pub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	fetchErr := fs.Fetch(func(sink func(sample.Extractor)) error {
		require.NoError(t, pub.Put(keyexpr.MustNew("room/1"), []byte("buffered")))
		return errors.ErrQueryTimeout
	})
	require.Error(t, fetchErr)
	assert.True(t, errors.IsTransient(fetchErr))

	// The window closed despite the error: the buffered sample drained and
	// new live samples pass straight through.
	assert.Equal(t, []string{"buffered"}, got.payloads())
	require.NoError(t, pub.Put(keyexpr.MustNew("room/2"), []byte("direct")))
	assert.Equal(t, []string{"buffered", "direct"}, got.payloads())
}

func TestFailedInitialFetchTearsDownSubscription(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())
	pub := broker.Open()
	defer pub.Close(context.Background())

	var got collector
	_, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
		Fetch: func(sink func(sample.Extractor)) error {
			return errors.ErrNoConnection
		},
	})
	require.Error(t, err)

	// Construction failed; nothing must leak through a leftover
	// subscription.
	require.NoError(t, pub.Put(keyexpr.MustNew("room/1"), []byte("x")))
	assert.Empty(t, got.samples)
}

func TestUnextractableFetchedItemsAreSkipped(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	require.NoError(t, fs.Fetch(func(sink func(sample.Extractor)) error {
		sink(badExtractor{})
		sink(sample.Raw(stamped("good", ts(1, 1))))
		return nil
	}))
	assert.Equal(t, []string{"good"}, got.payloads())
}

type badExtractor struct{}

func (badExtractor) Extract() (sample.Sample, error) {
	return sample.Sample{}, errors.ErrExtractFailed
}

func TestUndeclareStopsDelivery(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())
	pub := broker.Open()
	defer pub.Close(context.Background())

	var got collector
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)

	require.NoError(t, fs.Undeclare())
	require.NoError(t, pub.Put(keyexpr.MustNew("room/1"), []byte("x")))
	assert.Empty(t, got.samples)

	assert.ErrorIs(t, fs.Undeclare(), errors.ErrAlreadyUndeclared)
	assert.ErrorIs(t, fs.Fetch(func(func(sample.Extractor)) error { return nil }),
		errors.ErrAlreadyUndeclared)
}

func TestCloseUndeclaresUnlessBackground(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())
	pub := broker.Open()
	defer pub.Close(context.Background())

	var kept, dropped collector

	keep, err := NewFetchingSubscriber(Config{
		Session:    sub,
		KeyExpr:    keyexpr.MustNew("room/**"),
		Handler:    kept.handle,
		Background: true,
	})
	require.NoError(t, err)
	defer keep.Undeclare()

	// Zero-value policy: dropping the subscriber undeclares it.
	drop, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: dropped.handle,
	})
	require.NoError(t, err)

	require.NoError(t, keep.Close())
	require.NoError(t, drop.Close())
	require.NoError(t, drop.Close(), "double close is fine")

	require.NoError(t, pub.Put(keyexpr.MustNew("room/1"), []byte("x")))
	assert.Len(t, kept.samples, 1, "background subscriber survives Close")
	assert.Empty(t, dropped.samples)
}

func TestLivelinessSessionSatisfiesInterface(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	s := broker.Open()
	defer s.Close(context.Background())

	// Tokens declared before the subscriber exists are recovered by the
	// initial liveliness query.
	tok, err := s.Liveliness().DeclareToken(keyexpr.MustNew("group/early"))
	require.NoError(t, err)
	defer tok.Undeclare()

	var got collector
	fs, err := NewQueryingSubscriber(context.Background(), QueryingConfig{
		Session: s.Liveliness(),
		KeyExpr: keyexpr.MustNew("group/**"),
		Handler: got.handle,
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	require.Len(t, got.samples, 1)
	assert.Equal(t, "group/early", got.samples[0].KeyExpr().String())
	assert.Equal(t, sample.KindPut, got.samples[0].Kind())

	// A token appearing later arrives live.
	tok2, err := s.Liveliness().DeclareToken(keyexpr.MustNew("group/late"))
	require.NoError(t, err)
	require.Len(t, got.samples, 2)
	assert.Equal(t, "group/late", got.samples[1].KeyExpr().String())

	require.NoError(t, tok2.Undeclare())
	require.Len(t, got.samples, 3)
	assert.Equal(t, sample.KindDelete, got.samples[2].Kind())
}

func TestConcurrentMergeWhileFetchPending(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()
	sub := broker.Open()
	defer sub.Close(context.Background())

	var mu sync.Mutex
	var got []sample.Sample
	fs, err := NewFetchingSubscriber(Config{
		Session: sub,
		KeyExpr: keyexpr.MustNew("room/**"),
		Handler: func(smp sample.Sample) {
			mu.Lock()
			got = append(got, smp)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	const goroutines = 4
	const perGoroutine = 50

	// Hold an outer window open so every merge below lands in the queue,
	// whichever goroutine it comes from.
	outer := fs.beginFetch()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < perGoroutine; i++ {
				at := ts(int64(i*goroutines+g+1), 1)
				if i%2 == 0 {
					fs.handleLive(stamped("live", at))
				} else {
					fetchErr := fs.Fetch(func(sink func(sample.Extractor)) error {
						sink(sample.Raw(stamped("hist", at)))
						return nil
					})
					assert.NoError(t, fetchErr)
				}
			}
		}(g)
	}
	close(start)
	wg.Wait()

	mu.Lock()
	assert.Empty(t, got, "delivery must wait for the last pending fetch")
	mu.Unlock()

	outer()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, goroutines*perGoroutine)
	seen := make(map[sample.Timestamp]struct{}, len(got))
	for i, smp := range got {
		at, ok := smp.Timestamp()
		require.True(t, ok)
		_, dup := seen[at]
		assert.False(t, dup, "sample %d delivered twice", i)
		seen[at] = struct{}{}
		if i > 0 {
			prev, _ := got[i-1].Timestamp()
			assert.True(t, prev.Before(at), "drain order not ascending at %d", i)
		}
	}
}

func TestChannelCloseReleasesBlockedPush(t *testing.T) {
	ch := NewChannel(1)
	require.NoError(t, ch.Push(stamped("fill", ts(1, 1))))

	blocked := make(chan error, 1)
	go func() {
		blocked <- ch.Push(stamped("stuck", ts(2, 1)))
	}()

	// Let the second push block on the full buffer before closing.
	time.Sleep(10 * time.Millisecond)
	closed := make(chan struct{})
	go func() {
		ch.Close()
		close(closed)
	}()

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, errors.ErrHandlerClosed)
	case <-time.After(time.Second):
		t.Fatal("push still blocked after close")
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}

	// The buffered sample stays readable; the channel closes after it.
	assert.Equal(t, "fill", string((<-ch.Samples()).Payload()))
	_, open := <-ch.Samples()
	assert.False(t, open)
}

func TestChannelHandler(t *testing.T) {
	ch := NewChannel(4)

	fsHandler := ch.Callback()
	fsHandler(stamped("a", ts(1, 1)))
	fsHandler(stamped("b", ts(2, 1)))

	assert.Equal(t, "a", string((<-ch.Samples()).Payload()))
	assert.Equal(t, "b", string((<-ch.Samples()).Payload()))

	ch.Close()
	assert.ErrorIs(t, ch.Push(stamped("c", ts(3, 1))), errors.ErrHandlerClosed)
	fsHandler(stamped("d", ts(4, 1))) // dropped, no panic

	_, open := <-ch.Samples()
	assert.False(t, open)

	ch.Close() // idempotent
}
