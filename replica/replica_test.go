package replica

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oteffahi/zenoh/fetching"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
	"github.com/oteffahi/zenoh/session"
)

func startReplica(t *testing.T, s *session.Session, align bool) *Replica {
	t.Helper()
	r, err := New(context.Background(), Config{
		Session: s,
		KeyExpr: keyexpr.MustNew("store/**"),
		Depth:   4,
		Align:   align,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestReplicaStoresPublications(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()

	s := broker.Open()
	defer s.Close(context.Background())
	r := startReplica(t, s, false)

	pub := broker.Open()
	defer pub.Close(context.Background())
	require.NoError(t, pub.Put(keyexpr.MustNew("store/a"), []byte("v")))

	require.Eventually(t, func() bool {
		return len(r.Latest(keyexpr.MustNew("store/a"))) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("v"), r.Latest(keyexpr.MustNew("store/a"))[0].Payload())
}

func TestReplicaAnswersQueries(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()

	s := broker.Open()
	defer s.Close(context.Background())
	r := startReplica(t, s, false)

	pub := broker.Open()
	defer pub.Close(context.Background())
	require.NoError(t, pub.Put(keyexpr.MustNew("store/a"), []byte("v")))
	require.Eventually(t, func() bool { return r.store.Len() == 1 }, time.Second, 5*time.Millisecond)

	querier := broker.Open()
	defer querier.Close(context.Background())
	var got []sample.Sample
	require.NoError(t, querier.Get(context.Background(), keyexpr.MustNew("store/*"), func(rep session.Reply) {
		smp, err := rep.Extract()
		require.NoError(t, err)
		got = append(got, smp)
	}))

	require.Len(t, got, 1)
	assert.Equal(t, "store/a", got[0].KeyExpr().String())
}

func TestReplicaAlignsAtStartup(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()

	sA := broker.Open()
	defer sA.Close(context.Background())
	rA := startReplica(t, sA, false)

	pub := broker.Open()
	defer pub.Close(context.Background())
	require.NoError(t, pub.Put(keyexpr.MustNew("store/a"), []byte("v1")))
	require.NoError(t, pub.Put(keyexpr.MustNew("store/b"), []byte("v2")))
	require.Eventually(t, func() bool { return rA.store.Len() == 2 }, time.Second, 5*time.Millisecond)

	// A replica joining later recovers the existing state from its peer.
	sB := broker.Open()
	defer sB.Close(context.Background())
	rB := startReplica(t, sB, true)

	require.Eventually(t, func() bool { return rB.store.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rB.Latest(keyexpr.MustNew("store/**")), 2)
}

func TestReplicaServesQueryingSubscriber(t *testing.T) {
	broker := session.NewMemoryBroker()
	defer broker.Close()

	s := broker.Open()
	defer s.Close(context.Background())
	r := startReplica(t, s, false)

	pub := broker.Open()
	defer pub.Close(context.Background())
	require.NoError(t, pub.Put(keyexpr.MustNew("store/a"), []byte("missed")))
	require.Eventually(t, func() bool { return r.store.Len() == 1 }, time.Second, 5*time.Millisecond)

	// A late joiner recovers the missed publication through its initial
	// fetch, then keeps receiving live.
	sub := broker.Open()
	defer sub.Close(context.Background())
	var got []string
	fs, err := fetching.NewQueryingSubscriber(context.Background(), fetching.QueryingConfig{
		Session: sub,
		KeyExpr: keyexpr.MustNew("store/**"),
		Handler: func(smp sample.Sample) { got = append(got, string(smp.Payload())) },
	})
	require.NoError(t, err)
	defer fs.Undeclare()

	assert.Equal(t, []string{"missed"}, got)

	require.NoError(t, pub.Put(keyexpr.MustNew("store/b"), []byte("live")))
	assert.Equal(t, []string{"missed", "live"}, got)
}
