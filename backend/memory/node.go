package memory

// node is an intrusive doubly linked list element owned by a shard.
// Adapted from the teacher's cache/node.go: specialized from a generic
// node[K,V] to the concrete (string key, []byte value) pair a Tier needs,
// since memory.Tier is no longer a generic container but a concrete
// tier.Tier implementation.
type node struct {
	key string
	val []byte

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node
	next *node

	// Absolute expiration deadline in UnixNano. Zero means "no TTL".
	exp int64
}

// Key returns the node key (part of policy.Node interface).
func (n *node) Key() string { return n.key }

// Value returns a pointer to the stored value (part of policy.Node
// interface). Callers must only read/write through this pointer while
// holding the shard lock.
func (n *node) Value() *[]byte { return &n.val }
