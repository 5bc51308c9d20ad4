package tier

import "time"

// Config describes how a tier participates in a Chain: its ordering
// relative to other tiers, whether hits at deeper tiers are promoted into
// it, and how its stored TTL relates to the TTL a write requested.
type Config struct {
	// Level orders tiers; lower levels are closer to the caller and are
	// consulted first on reads. Two tiers in the same Chain may not share
	// a level.
	Level int

	// Promotion, when true, makes this tier a promotion target: a hit at
	// a deeper tier is written into every shallower tier with Promotion
	// enabled.
	Promotion bool

	// TTLScale multiplies a write's resolved TTL when storing into this
	// tier. 1.0 means "store with the same TTL the caller requested".
	TTLScale float64

	// Required marks this tier as mandatory for write success: Set only
	// reports overall success if every required tier's write succeeded,
	// and set_with_broadcast only broadcasts if every required tier wrote
	// successfully.
	Required bool

	// DefaultTTL is used when promoting into this tier and the source
	// tier cannot report a remaining TTL.
	DefaultTTL time.Duration
}

// L1 returns a hot-tier configuration: level 1, promotion enabled (it is
// the primary promotion target for every deeper hit), unit TTL scale.
func L1() Config { return Config{Level: 1, Promotion: true, TTLScale: 1.0} }

// L2 returns a warm-tier configuration: level 2, promotion enabled, unit
// TTL scale.
func L2() Config { return Config{Level: 2, Promotion: true, TTLScale: 1.0} }

// L3 returns a cold-tier configuration: level 3, promotion enabled, TTL
// scaled 2x so entries survive longer at this depth.
func L3() Config { return Config{Level: 3, Promotion: true, TTLScale: 2.0} }

// L4 returns an archive-tier configuration: level 4, promotion enabled,
// TTL scaled 8x.
func L4() Config { return Config{Level: 4, Promotion: true, TTLScale: 8.0} }

// WithPromotion returns a copy of c with Promotion set.
func (c Config) WithPromotion(enabled bool) Config { c.Promotion = enabled; return c }

// WithTTLScale returns a copy of c with TTLScale set.
func (c Config) WithTTLScale(scale float64) Config { c.TTLScale = scale; return c }

// WithLevel returns a copy of c with Level set.
func (c Config) WithLevel(level int) Config { c.Level = level; return c }

// WithRequired returns a copy of c with Required set.
func (c Config) WithRequired(required bool) Config { c.Required = required; return c }
