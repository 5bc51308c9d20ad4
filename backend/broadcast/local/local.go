// Package local provides an in-process BroadcastChannel: every
// Subscribe call gets its own fan-out buffer, and Publish delivers to
// every currently-subscribed channel for a given name. Useful for
// single-binary deployments and for exercising the subscriber state
// machine in tests without a real broker.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/IvanBrykalov/tiercache/invalidate"
)

// Channel is an in-process invalidate.BroadcastChannel.
type Channel struct {
	mu     sync.Mutex
	subs   map[string][]chan invalidate.BroadcastMessage
	closed bool
}

// New constructs an empty Channel.
func New() *Channel {
	return &Channel{subs: make(map[string][]chan invalidate.BroadcastMessage)}
}

// Publish implements invalidate.BroadcastChannel. A slow subscriber has
// its delivery dropped rather than blocking the publisher.
func (c *Channel) Publish(_ context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("local: channel closed")
	}
	for _, ch := range c.subs[channel] {
		select {
		case ch <- invalidate.BroadcastMessage{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

// Subscribe implements invalidate.BroadcastChannel.
func (c *Channel) Subscribe(ctx context.Context, channel string) (<-chan invalidate.BroadcastMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("local: channel closed")
	}
	ch := make(chan invalidate.BroadcastMessage, 64)
	c.subs[channel] = append(c.subs[channel], ch)
	go func() {
		<-ctx.Done()
		c.unsubscribe(channel, ch)
	}()
	return ch, nil
}

func (c *Channel) unsubscribe(channel string, ch chan invalidate.BroadcastMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subs[channel]
	for i, s := range subs {
		if s == ch {
			c.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close implements invalidate.BroadcastChannel.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, chs := range c.subs {
		for _, ch := range chs {
			close(ch)
		}
	}
	c.subs = make(map[string][]chan invalidate.BroadcastMessage)
	return nil
}

var _ invalidate.BroadcastChannel = (*Channel)(nil)
