package shared

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/IvanBrykalov/tiercache/stream"
)

type logEntry struct {
	id     int64
	fields map[string]string
}

// StreamLog is an in-memory, best-effort append-only log implementing
// stream.Sidecar, used when no external broker (e.g. NATS JetStream) is
// configured. Trimming is best-effort to maxLen on Append, mirroring
// original_source/src/invalidation.rs's publish_to_audit_stream (XADD
// with MAXLEN).
type StreamLog struct {
	mu       sync.Mutex
	byStream map[string][]logEntry
	nextID   int64
	notify   chan struct{}
}

// NewStreamLog constructs an empty StreamLog.
func NewStreamLog() *StreamLog {
	return &StreamLog{byStream: make(map[string][]logEntry), notify: make(chan struct{})}
}

// Append implements stream.Sidecar.
func (s *StreamLog) Append(_ context.Context, name string, fields map[string]string, maxLen *int) (string, error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	entries := append(s.byStream[name], logEntry{id: id, fields: fields})
	if maxLen != nil && *maxLen > 0 && len(entries) > *maxLen {
		entries = entries[len(entries)-*maxLen:]
	}
	s.byStream[name] = entries
	old := s.notify
	s.notify = make(chan struct{})
	s.mu.Unlock()
	close(old)
	return strconv.FormatInt(id, 10), nil
}

// ReadLatest implements stream.Sidecar.
func (s *StreamLog) ReadLatest(_ context.Context, name string, n int) ([]stream.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.byStream[name]
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]stream.Record, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, toRecord(entries[i]))
	}
	return out, nil
}

// ReadBlocking implements stream.Sidecar.
func (s *StreamLog) ReadBlocking(ctx context.Context, name, fromID string, n int, timeout time.Duration) ([]stream.Record, error) {
	from, _ := strconv.ParseInt(fromID, 10, 64)

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		s.mu.Lock()
		entries := s.byStream[name]
		var out []stream.Record
		for _, e := range entries {
			if e.id > from {
				out = append(out, toRecord(e))
				if len(out) >= n {
					break
				}
			}
		}
		ch := s.notify
		s.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}
		if timeout <= 0 {
			return nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(remaining):
			return nil, nil
		}
	}
}

func toRecord(e logEntry) stream.Record {
	return stream.Record{ID: strconv.FormatInt(e.id, 10), Fields: e.fields}
}

var _ stream.Sidecar = (*StreamLog)(nil)
