package invalidate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the subscriber's connection state (spec §6): an explicit
// machine rather than a boolean "connected" flag, so operators can
// observe a stuck reconnect loop versus a clean shutdown.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Draining
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// ApplyTarget receives decoded, self-echo-filtered invalidations and
// applies them to local (non-shared) tiers. cache.Manager implements
// this so the subscriber never needs to know about tier.Chain.
type ApplyTarget interface {
	ApplyRemove(ctx context.Context, key string) error
	ApplyUpdate(ctx context.Context, key string, value any, ttl *time.Duration) error
	ApplyRemovePattern(ctx context.Context, pattern string) error
	ApplyRemoveBulk(ctx context.Context, keys []string) error
}

// Subscriber runs the reconnect-and-apply loop described in spec §6:
// connect, subscribe, apply every non-self-originated message, and on
// any failure back off exponentially and retry. Grounded on
// src/invalidation.rs's InvalidationSubscriber, generalized from its
// fixed 5s retry to the spec's exponential-backoff-with-jitter schedule.
type Subscriber struct {
	ch     BroadcastChannel
	cfg    Config
	origin string
	target ApplyTarget
	logger *zap.Logger

	stats atomicStats
	state atomic.Int32

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriber builds a Subscriber. It does not start consuming until
// Start is called.
func NewSubscriber(ch BroadcastChannel, cfg Config, target ApplyTarget, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{ch: ch, cfg: cfg, origin: cfg.Origin, target: target, logger: logger}
}

// State reports the current connection state.
func (s *Subscriber) State() State { return State(s.state.Load()) }

// Stats returns a snapshot of received-message counters.
func (s *Subscriber) Stats() Stats { return s.stats.snapshot() }

// Start launches the reconnect loop in a background goroutine and
// returns once the loop's first subscribe attempt has completed, whether
// it succeeded or not. ctx cancellation (or Shutdown) drains the loop.
func (s *Subscriber) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ready := make(chan struct{})
	go s.run(runCtx, ready)
	<-ready
}

func (s *Subscriber) run(ctx context.Context, ready chan struct{}) {
	defer close(s.done)
	var once sync.Once
	signalReady := func() { once.Do(func() { close(ready) }) }
	defer signalReady()

	b := newBackoff()
	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(Draining))
			return
		default:
		}

		s.state.Store(int32(Connecting))
		msgs, err := s.ch.Subscribe(ctx, s.cfg.Channel)
		if err != nil {
			s.logger.Warn("invalidate: subscribe failed, retrying", zap.Error(err))
			s.state.Store(int32(Disconnected))
			signalReady()
			if !b.sleep(ctx) {
				s.state.Store(int32(Draining))
				return
			}
			continue
		}

		s.state.Store(int32(Subscribed))
		signalReady()
		b.reset()
		s.consume(ctx, msgs)

		select {
		case <-ctx.Done():
			s.state.Store(int32(Draining))
			return
		default:
		}
		s.state.Store(int32(Disconnected))
		if !b.sleep(ctx) {
			s.state.Store(int32(Draining))
			return
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, msgs <-chan BroadcastMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case bm, ok := <-msgs:
			if !ok {
				return
			}
			s.handle(ctx, bm)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, bm BroadcastMessage) {
	msg, err := Decode(bm.Payload)
	if err != nil {
		s.stats.errors.Add(1)
		s.logger.Warn("invalidate: decode failed", zap.Error(err))
		return
	}
	s.stats.received.Add(1)

	if msg.Origin == s.origin {
		return // self-echo suppression (spec §6)
	}

	var applyErr error
	switch msg.Kind {
	case KindRemove:
		s.stats.removes.Add(1)
		if msg.Key != nil {
			applyErr = s.target.ApplyRemove(ctx, *msg.Key)
		}
	case KindUpdate:
		s.stats.updates.Add(1)
		if msg.Key != nil {
			var ttl *time.Duration
			if msg.TTLMillis != nil {
				d := time.Duration(*msg.TTLMillis) * time.Millisecond
				ttl = &d
			}
			applyErr = s.target.ApplyUpdate(ctx, *msg.Key, msg.Value, ttl)
		}
	case KindRemovePattern:
		s.stats.patterns.Add(1)
		if msg.Pattern != nil {
			applyErr = s.target.ApplyRemovePattern(ctx, *msg.Pattern)
		}
	case KindRemoveBulk:
		s.stats.bulk.Add(1)
		applyErr = s.target.ApplyRemoveBulk(ctx, msg.Keys)
	}
	if applyErr != nil {
		s.stats.errors.Add(1)
		s.logger.Warn("invalidate: apply failed", zap.String("kind", string(msg.Kind)), zap.Error(applyErr))
	}
}

// Shutdown cancels the reconnect loop and waits (up to ctx's deadline)
// for it to drain.
func (s *Subscriber) Shutdown(ctx context.Context) {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}
