// Package nats provides a NATS core pub/sub BroadcastChannel, grounded
// on narwhalmedia-narwhal's NATSEventBus
// (internal/infrastructure/events/nats/event_bus.go): one connection,
// Publish sends raw bytes on a subject, Subscribe registers a callback
// that forwards deliveries onto a Go channel. Core NATS (not JetStream)
// is used deliberately: BroadcastChannel wants every live subscriber to
// see every message, which is core NATS's fan-out semantics, not
// JetStream's competing-consumer work-queue semantics.
package nats

import (
	"context"
	"fmt"

	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/invalidate"
)

// Channel is a NATS-core-backed invalidate.BroadcastChannel.
type Channel struct {
	conn   *natslib.Conn
	logger *zap.Logger
}

// Connect dials url and returns a ready Channel. The caller owns
// closing it via Close.
func Connect(url string, logger *zap.Logger) (*Channel, error) {
	conn, err := natslib.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("broadcast/nats: connect: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{conn: conn, logger: logger.Named("broadcast-nats")}, nil
}

// New wraps an already-established connection. Close on the returned
// Channel closes that connection as well.
func New(conn *natslib.Conn, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{conn: conn, logger: logger.Named("broadcast-nats")}
}

// Publish implements invalidate.BroadcastChannel.
func (c *Channel) Publish(_ context.Context, channel string, payload []byte) error {
	if err := c.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("broadcast/nats: publish: %w", err)
	}
	return nil
}

// Subscribe implements invalidate.BroadcastChannel. The returned channel
// is closed when ctx is cancelled.
func (c *Channel) Subscribe(ctx context.Context, channel string) (<-chan invalidate.BroadcastMessage, error) {
	out := make(chan invalidate.BroadcastMessage, 256)
	sub, err := c.conn.Subscribe(channel, func(msg *natslib.Msg) {
		select {
		case out <- invalidate.BroadcastMessage{Channel: channel, Payload: msg.Data}:
		default:
			c.logger.Warn("dropping invalidation message, subscriber backlog full", zap.String("channel", channel))
		}
	})
	if err != nil {
		close(out)
		return nil, fmt.Errorf("broadcast/nats: subscribe: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
		close(out)
	}()
	return out, nil
}

// Close closes the underlying connection without draining it.
func (c *Channel) Close() error {
	c.conn.Close()
	return nil
}

var _ invalidate.BroadcastChannel = (*Channel)(nil)
