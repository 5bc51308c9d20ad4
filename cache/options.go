package cache

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/codec"
	"github.com/IvanBrykalov/tiercache/invalidate"
	"github.com/IvanBrykalov/tiercache/stream"
)

// Defaults mirrored from src/invalidation.rs's InvalidationConfig::default.
const (
	DefaultChannel           = "cache:invalidate"
	DefaultAuditStream       = "cache:invalidations"
	DefaultAuditStreamMaxLen = 10000
	DefaultTimeout           = 5 * time.Second
)

// Config holds manager-wide settings: the invalidation channel and audit
// stream names, the per-tier-call timeout, the codec used for the typed
// API and for re-encoding values applied from remote invalidations, and
// the logger every collaborator is threaded through.
type Config struct {
	Channel              string
	AutoBroadcastOnWrite bool
	EnableAuditStream    bool
	AuditStream          string
	AuditStreamMaxLen    int
	Origin               string
	Timeout              time.Duration
	Codec                codec.Codec
	Logger               *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.AuditStream == "" {
		c.AuditStream = DefaultAuditStream
	}
	if c.AuditStreamMaxLen == 0 {
		c.AuditStreamMaxLen = DefaultAuditStreamMaxLen
	}
	if c.Origin == "" {
		c.Origin = uuid.NewString()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Codec == nil {
		c.Codec = codec.JSON{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) invalidateConfig() invalidate.Config {
	return invalidate.Config{
		Channel:           c.Channel,
		EnableAuditStream: c.EnableAuditStream,
		AuditStream:       c.AuditStream,
		AuditStreamMaxLen: c.AuditStreamMaxLen,
		Origin:            c.Origin,
	}
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithBroadcastChannel wires a cross-process invalidation transport.
// Plain Set/Remove only broadcast when Config.AutoBroadcastOnWrite is
// set; otherwise only their *WithBroadcast variants touch the network.
func WithBroadcastChannel(ch invalidate.BroadcastChannel) Option {
	return func(m *Manager) { m.broadcastCh = ch }
}

// WithSidecar wires an append-only stream sidecar. It is used for
// audit-stream mirroring of invalidations when Config.EnableAuditStream
// is set, and is also exposed directly to callers via
// Manager.Append/ReadLatest/ReadBlocking for general-purpose event-log
// use. Without it, those three methods return stream.ErrNotConfigured.
func WithSidecar(s stream.Sidecar) Option {
	return func(m *Manager) { m.sidecar = s }
}
