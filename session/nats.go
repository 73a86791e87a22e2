package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/oteffahi/zenoh/config"
	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/natsclient"
)

// Open connects to NATS per the configuration and opens a session on it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	client := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithConnectTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithCircuitThreshold(cfg.NATS.CircuitThreshold),
	)
	if err := client.ConnectWithRetry(ctx); err != nil {
		return nil, errors.Wrap(err, "Session", "Open", "connect to nats")
	}

	t := &natsTransport{
		client: client,
		prefix: "zenoh",
		logger: slog.Default().With("component", "nats-transport"),
	}

	sessOpts := append([]Option{
		WithQueryTimeout(cfg.Session.QueryTimeout),
		WithPublishRate(cfg.Session.PublishRate, cfg.Session.PublishBurst),
	}, opts...)
	return newSession(t, sessOpts...), nil
}

// natsTransport maps key expressions onto NATS subjects. Data travels on
// "<prefix>.d.<chunks>" with '/' turned into '.'; queries travel on the
// shared "<prefix>.q" subject with replies streamed to a per-query inbox.
//
// NATS wildcards are coarser than key-expression wildcards ('>' only
// terminates a filter), so subscription filters here are a superset of the
// key expression and the session re-checks keys on delivery.
type natsTransport struct {
	client *natsclient.Client
	prefix string
	logger *slog.Logger
}

// chunkToken makes one key chunk usable as a NATS subject token.
func chunkToken(chunk string) string {
	return strings.ReplaceAll(chunk, ".", "_")
}

// dataSubject is the publish subject for a concrete key.
func (t *natsTransport) dataSubject(key keyexpr.KeyExpr) string {
	chunks := key.Chunks()
	tokens := make([]string, len(chunks))
	for i, c := range chunks {
		tokens[i] = chunkToken(c)
	}
	return t.prefix + ".d." + strings.Join(tokens, ".")
}

// dataFilter is the coarse subscription filter for a key expression.
// Everything at and after the first "**" collapses into '>'.
func (t *natsTransport) dataFilter(key keyexpr.KeyExpr) string {
	var tokens []string
	for _, c := range key.Chunks() {
		if c == "**" {
			tokens = append(tokens, ">")
			break
		}
		if c == "*" {
			tokens = append(tokens, "*")
			continue
		}
		tokens = append(tokens, chunkToken(c))
	}
	return t.prefix + ".d." + strings.Join(tokens, ".")
}

func (t *natsTransport) querySubject() string { return t.prefix + ".q" }

func (t *natsTransport) Publish(key keyexpr.KeyExpr, data []byte) error {
	return t.client.Publish(t.dataSubject(key), data)
}

type natsReg struct {
	sub *nats.Subscription
}

func (r *natsReg) Close() error { return r.sub.Unsubscribe() }

func (t *natsTransport) Subscribe(key keyexpr.KeyExpr, cb func(data []byte)) (Registration, error) {
	sub, err := t.client.Subscribe(t.dataFilter(key), func(msg *nats.Msg) {
		cb(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return &natsReg{sub: sub}, nil
}

// wireQuery is the request envelope on the shared query subject.
type wireQuery struct {
	Selector string `json:"selector"`
	Reply    string `json:"reply"`
}

// Query broadcasts the selector and collects inbox replies until the
// context ends. The responder population is unknown on a brokered
// transport, so the collection window closing is the normal outcome, not
// an error.
func (t *natsTransport) Query(ctx context.Context, selector keyexpr.KeyExpr, cb func(data []byte)) error {
	inbox := nats.NewInbox()
	sub, err := t.client.Subscribe(inbox, func(msg *nats.Msg) {
		cb(msg.Data)
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn("query inbox unsubscribe failed", "error", err)
		}
	}()

	req, err := json.Marshal(wireQuery{Selector: selector.String(), Reply: inbox})
	if err != nil {
		return err
	}
	if err := t.client.Publish(t.querySubject(), req); err != nil {
		return err
	}

	<-ctx.Done()
	if ctx.Err() == context.DeadlineExceeded {
		return nil
	}
	return ctx.Err()
}

func (t *natsTransport) ServeQueries(key keyexpr.KeyExpr, handler func(selector keyexpr.KeyExpr, reply func(data []byte) error)) (Registration, error) {
	sub, err := t.client.Subscribe(t.querySubject(), func(msg *nats.Msg) {
		var q wireQuery
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			t.logger.Warn("dropping malformed query", "error", err)
			return
		}
		selector, err := keyexpr.New(q.Selector)
		if err != nil {
			t.logger.Warn("dropping query with bad selector", "selector", q.Selector, "error", err)
			return
		}
		if q.Reply == "" || !key.Intersects(selector) {
			return
		}
		handler(selector, func(data []byte) error {
			return t.client.Publish(q.Reply, data)
		})
	})
	if err != nil {
		return nil, err
	}
	return &natsReg{sub: sub}, nil
}

func (t *natsTransport) Close(ctx context.Context) error {
	return t.client.Close(ctx)
}
