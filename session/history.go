package session

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

const historyStreamName = "ZENOH_HISTORY"

// History is a broker-retained sample log backed by JetStream. It keeps the
// last samples per key and serves them as fetches, so a late joiner can
// reconcile past publications without any live storage node answering.
type History struct {
	session *Session
	stream  jetstream.Stream
}

// HistoryConfig bounds what the broker retains.
type HistoryConfig struct {
	// DepthPerKey is how many samples the broker keeps for each key.
	DepthPerKey int
}

// History materializes the retained-sample log on the broker, creating the
// backing stream if needed. It requires a NATS-backed session.
func (s *Session) History(ctx context.Context, cfg HistoryConfig) (*History, error) {
	nt, ok := s.transport.(*natsTransport)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Session", "History", "history requires a nats transport")
	}
	if cfg.DepthPerKey < 1 {
		cfg.DepthPerKey = 1
	}

	js, err := nt.client.JetStream()
	if err != nil {
		return nil, errors.Wrap(err, "Session", "History", "jetstream context")
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              historyStreamName,
		Subjects:          []string{nt.prefix + ".d.>"},
		MaxMsgsPerSubject: int64(cfg.DepthPerKey),
		Storage:           jetstream.FileStorage,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Session", "History", "ensure stream")
	}

	s.logger.Debug("history stream ready", "stream", historyStreamName, "depth", cfg.DepthPerKey)
	return &History{session: s, stream: stream}, nil
}

// Fetch returns a fetch closure replaying the retained samples matching the
// key expression. The closure reads whatever the stream holds at call time
// and returns; it is shaped to plug straight into a history-reconciling
// subscriber.
func (h *History) Fetch(ctx context.Context, key keyexpr.KeyExpr) func(sink func(sample.Extractor)) error {
	nt := h.session.transport.(*natsTransport)
	return func(sink func(sample.Extractor)) error {
		cons, err := h.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
			FilterSubjects: []string{nt.dataFilter(key)},
			DeliverPolicy:  jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return errors.Wrap(err, "History", "Fetch", "ordered consumer")
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := cons.FetchNoWait(64)
			if err != nil {
				return errors.Wrap(err, "History", "Fetch", "fetch batch")
			}
			n := 0
			for msg := range batch.Messages() {
				n++
				smp, err := decodeSample(msg.Data())
				if err != nil {
					h.session.logger.Warn("skipping undecodable retained sample", "error", err)
					continue
				}
				if !key.Matches(smp.KeyExpr()) {
					continue
				}
				sink(sample.Raw(smp))
			}
			if err := batch.Error(); err != nil {
				return errors.Wrap(err, "History", "Fetch", "drain batch")
			}
			if n == 0 {
				return nil
			}
		}
	}
}
