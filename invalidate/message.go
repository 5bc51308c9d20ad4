// Package invalidate implements the cross-process invalidation plane: a
// tagged-union wire message, a thin BroadcastChannel transport contract,
// and a Publisher/Subscriber pair that apply invalidations to local
// tiers. Grounded on original_source/src/invalidation.rs's
// InvalidationMessage and InvalidationPublisher/Subscriber, reworked
// into a flat Go struct (Go has no serde-style internally tagged enums)
// and an explicit reconnect state machine.
package invalidate

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind discriminates an invalidation Message's payload (spec §4.6's wire
// format: kind, key, keys, pattern, value, ttl_ms, ts_ms, origin).
type Kind string

const (
	KindRemove        Kind = "remove"
	KindUpdate        Kind = "update"
	KindRemovePattern Kind = "remove_pattern"
	KindRemoveBulk    Kind = "remove_bulk"
)

// Message is the wire payload broadcast on the invalidation channel and
// written to the audit stream.
type Message struct {
	Kind            Kind     `json:"kind"`
	Key             *string  `json:"key,omitempty"`
	Keys            []string `json:"keys,omitempty"`
	Pattern         *string  `json:"pattern,omitempty"`
	Value           any      `json:"value,omitempty"`
	TTLMillis       *int64   `json:"ttl_ms,omitempty"`
	TimestampMillis int64    `json:"ts_ms"`
	Origin          string   `json:"origin"`
}

// Remove builds a remove-by-key message.
func Remove(key string) Message { return Message{Kind: KindRemove, Key: &key} }

// Update builds a replace-value message. ttl is nil when the write had
// no explicit TTL to propagate.
func Update(key string, value any, ttl *time.Duration) Message {
	m := Message{Kind: KindUpdate, Key: &key, Value: value}
	if ttl != nil {
		ms := ttl.Milliseconds()
		m.TTLMillis = &ms
	}
	return m
}

// RemovePattern builds a glob-pattern removal message.
func RemovePattern(pattern string) Message { return Message{Kind: KindRemovePattern, Pattern: &pattern} }

// RemoveBulk builds a multi-key removal message.
func RemoveBulk(keys []string) Message { return Message{Kind: KindRemoveBulk, Keys: keys} }

// Encode serializes the message for transport.
func (m Message) Encode() ([]byte, error) { return json.Marshal(m) }

// Decode parses a message off the wire.
func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// AuditRecord is the compacted shape written to the audit stream for
// every invalidation (spec §4.6), grounded on
// src/invalidation.rs's publish_to_audit_stream field set.
type AuditRecord struct {
	Type            string
	TimestampMillis int64
	Key             string
	Pattern         string
	Count           int
}

// Audit derives the audit-stream record for this message.
func (m Message) Audit() AuditRecord {
	r := AuditRecord{Type: string(m.Kind), TimestampMillis: m.TimestampMillis}
	switch m.Kind {
	case KindRemove, KindUpdate:
		if m.Key != nil {
			r.Key = *m.Key
		}
	case KindRemovePattern:
		if m.Pattern != nil {
			r.Pattern = *m.Pattern
		}
	case KindRemoveBulk:
		r.Count = len(m.Keys)
	}
	return r
}

// Fields renders the record as the flat string map stream.Sidecar.Append
// expects.
func (r AuditRecord) Fields() map[string]string {
	f := map[string]string{
		"type":      r.Type,
		"timestamp": strconv.FormatInt(r.TimestampMillis, 10),
	}
	if r.Key != "" {
		f["key"] = r.Key
	}
	if r.Pattern != "" {
		f["pattern"] = r.Pattern
	}
	if r.Count > 0 {
		f["count"] = strconv.Itoa(r.Count)
	}
	return f
}
