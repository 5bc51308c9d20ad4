// Package streamnats implements stream.Sidecar on top of NATS
// JetStream, grounded on narwhalmedia-narwhal's NewNATSEventBus
// (internal/infrastructure/events/nats/event_bus.go) for the
// AddStream/Publish shape, and on nats.go's GetMsg / PullSubscribe+Fetch
// for the two read paths a Sidecar needs.
package streamnats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	natslib "github.com/nats-io/nats.go"

	"github.com/IvanBrykalov/tiercache/stream"
)

// Sidecar is a JetStream-backed stream.Sidecar. One JetStream subject is
// used per stream name.
type Sidecar struct {
	js natslib.JetStreamContext
}

// New wraps an existing JetStream context. The caller owns the
// connection's lifecycle.
func New(js natslib.JetStreamContext) *Sidecar { return &Sidecar{js: js} }

// EnsureStream creates a file-backed JetStream stream for name if one
// doesn't already exist, retaining at most maxMsgs (0 means unbounded).
func (s *Sidecar) EnsureStream(name string, maxMsgs int64) error {
	_, err := s.js.AddStream(&natslib.StreamConfig{
		Name:     name,
		Subjects: []string{name},
		Storage:  natslib.FileStorage,
		MaxMsgs:  maxMsgs,
		Discard:  natslib.DiscardOld,
	})
	if err != nil && err != natslib.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("streamnats: create stream %q: %w", name, err)
	}
	return nil
}

// Append implements stream.Sidecar.
func (s *Sidecar) Append(_ context.Context, name string, fields map[string]string, maxLen *int) (string, error) {
	if maxLen != nil && *maxLen > 0 {
		if err := s.js.PurgeStream(name, &natslib.StreamPurgeRequest{Keep: uint64(*maxLen)}); err != nil {
			// best-effort trim; an append should still succeed even if
			// the stream hasn't been created with direct-get enabled yet.
			_ = err
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("streamnats: encode fields: %w", err)
	}
	ack, err := s.js.Publish(name, data)
	if err != nil {
		return "", fmt.Errorf("streamnats: publish: %w", err)
	}
	return strconv.FormatUint(ack.Sequence, 10), nil
}

// ReadLatest implements stream.Sidecar by walking backward from the
// stream's last sequence number via direct GetMsg calls.
func (s *Sidecar) ReadLatest(_ context.Context, name string, n int) ([]stream.Record, error) {
	info, err := s.js.StreamInfo(name)
	if err != nil {
		return nil, fmt.Errorf("streamnats: stream info: %w", err)
	}
	out := make([]stream.Record, 0, n)
	for seq := info.State.LastSeq; seq > 0 && len(out) < n; seq-- {
		raw, err := s.js.GetMsg(name, seq)
		if err != nil {
			continue // trimmed or otherwise unavailable; keep walking back
		}
		out = append(out, stream.Record{ID: strconv.FormatUint(seq, 10), Fields: decodeFields(raw.Data)})
	}
	return out, nil
}

// ReadBlocking implements stream.Sidecar via an ephemeral pull consumer
// seeded to start just after fromID.
func (s *Sidecar) ReadBlocking(_ context.Context, name, fromID string, n int, timeout time.Duration) ([]stream.Record, error) {
	startSeq, _ := strconv.ParseUint(fromID, 10, 64)

	sub, err := s.js.PullSubscribe(
		name, "",
		natslib.BindStream(name),
		natslib.StartSequence(startSeq+1),
	)
	if err != nil {
		return nil, fmt.Errorf("streamnats: pull subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	msgs, err := sub.Fetch(n, natslib.MaxWait(timeout))
	if err != nil {
		if err == natslib.ErrTimeout {
			return nil, nil
		}
		return nil, fmt.Errorf("streamnats: fetch: %w", err)
	}

	out := make([]stream.Record, 0, len(msgs))
	for _, m := range msgs {
		var seq uint64
		if meta, err := m.Metadata(); err == nil && meta != nil {
			seq = meta.Sequence.Stream
		}
		out = append(out, stream.Record{ID: strconv.FormatUint(seq, 10), Fields: decodeFields(m.Data)})
		_ = m.Ack()
	}
	return out, nil
}

func decodeFields(data []byte) map[string]string {
	var m map[string]string
	_ = json.Unmarshal(data, &m)
	return m
}

var _ stream.Sidecar = (*Sidecar)(nil)
