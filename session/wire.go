package session

import (
	"encoding/json"
	"fmt"

	"github.com/oteffahi/zenoh/keyexpr"
	"github.com/oteffahi/zenoh/sample"
)

// wireSample is the JSON envelope a sample travels in. The key rides inside
// the envelope so receivers can filter locally regardless of how the
// transport mapped the key to its own addressing scheme.
type wireSample struct {
	Key       string `json:"key"`
	Payload   []byte `json:"payload,omitempty"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp,omitempty"`
}

// wireReply is the envelope for one query reply.
type wireReply struct {
	Sample *wireSample `json:"sample,omitempty"`
	Err    string      `json:"err,omitempty"`
}

func encodeSample(s sample.Sample) ([]byte, error) {
	w := wireSample{
		Key:     s.KeyExpr().String(),
		Payload: s.Payload(),
		Kind:    s.Kind().String(),
	}
	if ts, ok := s.Timestamp(); ok {
		w.Timestamp = ts.String()
	}
	return json.Marshal(w)
}

func decodeSample(data []byte) (sample.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return sample.Sample{}, fmt.Errorf("decode sample envelope: %w", err)
	}
	key, err := keyexpr.New(w.Key)
	if err != nil {
		return sample.Sample{}, fmt.Errorf("decode sample key: %w", err)
	}

	var kind sample.Kind
	switch w.Kind {
	case "put", "":
		kind = sample.KindPut
	case "delete":
		kind = sample.KindDelete
	default:
		return sample.Sample{}, fmt.Errorf("decode sample: unknown kind %q", w.Kind)
	}

	s := sample.New(key, w.Payload, kind)
	if w.Timestamp != "" {
		ts, err := sample.ParseTimestamp(w.Timestamp)
		if err != nil {
			return sample.Sample{}, fmt.Errorf("decode sample timestamp: %w", err)
		}
		s = s.WithTimestamp(ts)
	}
	return s, nil
}

func encodeReply(s sample.Sample) ([]byte, error) {
	w := wireSample{
		Key:     s.KeyExpr().String(),
		Payload: s.Payload(),
		Kind:    s.Kind().String(),
	}
	if ts, ok := s.Timestamp(); ok {
		w.Timestamp = ts.String()
	}
	return json.Marshal(wireReply{Sample: &w})
}

func encodeReplyErr(err error) []byte {
	data, _ := json.Marshal(wireReply{Err: err.Error()})
	return data
}

func decodeReply(data []byte) Reply {
	var w wireReply
	if err := json.Unmarshal(data, &w); err != nil {
		return Reply{err: fmt.Errorf("decode reply envelope: %w", err)}
	}
	if w.Err != "" {
		return Reply{err: fmt.Errorf("queryable error: %s", w.Err)}
	}
	if w.Sample == nil {
		return Reply{err: fmt.Errorf("decode reply: empty envelope")}
	}
	inner, _ := json.Marshal(w.Sample)
	s, err := decodeSample(inner)
	if err != nil {
		return Reply{err: err}
	}
	return Reply{sample: s}
}
