package invalidate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/stream"
)

// Config configures a Publisher/Subscriber pair bound to the same
// channel and audit stream. Grounded on src/invalidation.rs's
// InvalidationConfig.
type Config struct {
	Channel           string
	EnableAuditStream bool
	AuditStream       string
	AuditStreamMaxLen int
	Origin            string
}

// Publisher stamps and publishes invalidation messages, optionally
// mirroring them to an audit stream. Grounded on
// src/invalidation.rs's InvalidationPublisher.publish.
type Publisher struct {
	ch      BroadcastChannel
	cfg     Config
	sidecar stream.Sidecar
	logger  *zap.Logger
	sent    atomic.Uint64
}

// NewPublisher builds a Publisher. sidecar may be nil; audit mirroring is
// then silently skipped even if cfg.EnableAuditStream is set.
func NewPublisher(ch BroadcastChannel, cfg Config, sidecar stream.Sidecar, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ch: ch, cfg: cfg, sidecar: sidecar, logger: logger}
}

// Publish stamps msg with the publisher's origin and the current time,
// sends it on the broadcast channel, and (if configured) mirrors it to
// the audit stream.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	msg.Origin = p.cfg.Origin
	msg.TimestampMillis = time.Now().UnixMilli()

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("invalidate: encode message: %w", err)
	}
	if err := p.ch.Publish(ctx, p.cfg.Channel, data); err != nil {
		return fmt.Errorf("invalidate: publish: %w", err)
	}
	p.sent.Add(1)

	if p.cfg.EnableAuditStream && p.sidecar != nil {
		maxLen := &p.cfg.AuditStreamMaxLen
		if p.cfg.AuditStreamMaxLen <= 0 {
			maxLen = nil
		}
		if _, err := p.sidecar.Append(ctx, p.cfg.AuditStream, msg.Audit().Fields(), maxLen); err != nil {
			p.logger.Warn("invalidate: audit stream append failed", zap.Error(err))
		}
	}
	return nil
}

// Sent returns the number of messages published so far.
func (p *Publisher) Sent() uint64 { return p.sent.Load() }
