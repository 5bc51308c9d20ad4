package cache

import "errors"

var (
	// ErrShutdown is returned by the Manager's read, write, invalidation
	// and stream methods once Shutdown has been called.
	ErrShutdown = errors.New("cache: manager is shutting down")

	// ErrUpstreamFailed is returned by GetOrCompute when the producer
	// function fails, whether the caller ran it directly or coalesced
	// onto another goroutine's in-flight call (spec §4.5).
	ErrUpstreamFailed = errors.New("cache: upstream compute failed")
)

// TierError wraps a failure reported by a specific tier so callers can
// tell which backend misbehaved without string-matching log lines.
type TierError struct {
	Tier     string
	Op       string
	Required bool
	Err      error
}

func (e *TierError) Error() string {
	return "cache: tier " + e.Tier + " " + e.Op + ": " + e.Err.Error()
}

func (e *TierError) Unwrap() error { return e.Err }

// EncodeError wraps a codec failure while writing a key.
type EncodeError struct {
	Key string
	Err error
}

func (e *EncodeError) Error() string { return "cache: encode " + e.Key + ": " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError wraps a codec failure while decoding a stored value, at
// either the tier boundary or the typed T-boundary. Kept distinct from
// ErrUpstreamFailed: a corrupted stored value is a data-corruption error
// per spec §7, not a failing producer (see cache/typed.go).
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string { return "cache: decode " + e.Key + ": " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }
