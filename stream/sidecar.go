// Package stream defines the optional append-only log sidecar: a small
// contract modeled on Redis Streams / NATS JetStream, used both for the
// invalidation plane's audit trail and as a general-purpose event log
// atop a shared tier. Grounded on original_source/src/traits.rs's
// StreamingBackend trait (stream_add/stream_read_latest/stream_read).
package stream

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by callers that need a Sidecar but were
// not given one.
var ErrNotConfigured = errors.New("stream: sidecar not configured")

// Record is a single entry read back from a stream: an opaque ID (the
// backend's ordering token) plus the flat field map that was appended.
type Record struct {
	ID     string
	Fields map[string]string
}

// Sidecar is the append-only event log contract. Implementations must be
// safe for concurrent use.
type Sidecar interface {
	// Append adds one entry to stream, trimming to maxLen if non-nil, and
	// returns the backend-assigned entry ID.
	Append(ctx context.Context, name string, fields map[string]string, maxLen *int) (id string, err error)

	// ReadLatest returns up to n of the most recently appended entries,
	// newest first.
	ReadLatest(ctx context.Context, name string, n int) ([]Record, error)

	// ReadBlocking returns up to n entries appended after fromID ("" means
	// "from the start"), blocking up to timeout for at least one entry to
	// arrive. A zero-length, nil-error result means the deadline elapsed
	// with nothing new.
	ReadBlocking(ctx context.Context, name, fromID string, n int, timeout time.Duration) ([]Record, error)
}
