//go:build integration

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/oteffahi/zenoh/config"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"--jetstream"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)
	return "nats://" + host + ":" + port.Port()
}

func natsConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.NATS.URL = url
	cfg.Session.QueryTimeout = 2 * time.Second
	return cfg
}

func TestNATSPubSub(t *testing.T) {
	url := startNATS(t)
	ctx := context.Background()

	subSess, err := Open(ctx, natsConfig(url))
	require.NoError(t, err)
	defer subSess.Close(ctx)

	pubSess, err := Open(ctx, natsConfig(url))
	require.NoError(t, err)
	defer pubSess.Close(ctx)

	got := make(chan sample.Sample, 8)
	_, err = subSess.DeclareSubscriber(keyexpr.MustNew("it/**"), func(smp sample.Sample) {
		got <- smp
	})
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond) // let the broker register the interest

	require.NoError(t, pubSess.Put(keyexpr.MustNew("it/a/b"), []byte("hello")))

	select {
	case smp := <-got:
		assert.Equal(t, "it/a/b", smp.KeyExpr().String())
		assert.Equal(t, []byte("hello"), smp.Payload())
	case <-time.After(5 * time.Second):
		t.Fatal("sample never arrived")
	}
}

func TestNATSQueryReply(t *testing.T) {
	url := startNATS(t)
	ctx := context.Background()

	qSess, err := Open(ctx, natsConfig(url))
	require.NoError(t, err)
	defer qSess.Close(ctx)

	_, err = qSess.DeclareQueryable(keyexpr.MustNew("it/store/**"), func(q *Query) {
		smp := sample.New(keyexpr.MustNew("it/store/k"), []byte("v"), sample.KindPut).
			WithTimestamp(qSess.NewTimestamp())
		require.NoError(t, q.Reply(smp))
	})
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	getSess, err := Open(ctx, natsConfig(url))
	require.NoError(t, err)
	defer getSess.Close(ctx)

	var replies []Reply
	require.NoError(t, getSess.Get(ctx, keyexpr.MustNew("it/store/*"), func(r Reply) {
		replies = append(replies, r)
	}))

	require.Len(t, replies, 1)
	smp, err := replies[0].Extract()
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), smp.Payload())
}

func TestNATSHistoryFetch(t *testing.T) {
	url := startNATS(t)
	ctx := context.Background()

	pubSess, err := Open(ctx, natsConfig(url))
	require.NoError(t, err)
	defer pubSess.Close(ctx)

	hist, err := pubSess.History(ctx, HistoryConfig{DepthPerKey: 4})
	require.NoError(t, err)

	require.NoError(t, pubSess.Put(keyexpr.MustNew("it/h/a"), []byte("1")))
	require.NoError(t, pubSess.Put(keyexpr.MustNew("it/h/b"), []byte("2")))
	time.Sleep(200 * time.Millisecond) // let jetstream persist

	var keys []string
	fetch := hist.Fetch(ctx, keyexpr.MustNew("it/h/**"))
	require.NoError(t, fetch(func(e sample.Extractor) {
		smp, err := e.Extract()
		require.NoError(t, err)
		keys = append(keys, smp.KeyExpr().String())
	}))
	assert.ElementsMatch(t, []string{"it/h/a", "it/h/b"}, keys)
}
