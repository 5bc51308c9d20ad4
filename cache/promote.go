package cache

import "time"

// promotionTTL implements spec §4.4's rule: when the source tier
// reported a remaining TTL, use min(remaining, targetDefault), or
// remaining itself when targetDefault is not positive; when it didn't
// (remaining == nil), use targetDefault outright. A non-positive
// result means "don't promote" (the caller skips the write).
func promotionTTL(remaining *time.Duration, targetDefault time.Duration) time.Duration {
	if remaining == nil {
		return targetDefault
	}
	if targetDefault <= 0 || *remaining < targetDefault {
		return *remaining
	}
	return targetDefault
}
