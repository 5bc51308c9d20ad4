package memory

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/tiercache/internal/util"
	"github.com/IvanBrykalov/tiercache/policy"
)

// shard is an independent partition of the tier with its own lock, map,
// and intrusive doubly linked list (head=MRU, tail=LRU). Adapted from the
// teacher's cache/shard.go: cost-based limiting is dropped (the memory
// tier reference collaborator only needs the size-and-age eviction spec
// §6 calls for), and node/value types are the concrete (string, []byte)
// pair rather than generic K/V.
type shard struct {
	mu   sync.RWMutex
	m    map[string]*node
	head *node // MRU
	tail *node // LRU
	len  int
	cap  int

	pol policy.ShardPolicy[string, []byte]
	clk Clock

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newShard(capacity int, pol policy.Policy[string, []byte], clk Clock) *shard {
	s := &shard{
		m:   make(map[string]*node, capacity),
		cap: capacity,
		clk: clk,
	}
	h := shardHooks{s: s}
	s.pol = pol.New(h)
	return s
}

// Set inserts or updates an entry and promotes it according to the
// policy. ttl is an absolute UnixNano deadline (0 = no TTL).
func (s *shard) Set(k string, v []byte, ttl int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		n.val = v
		n.exp = ttl
		s.pol.OnUpdate(n)
		s.enforceLimitLocked()
		return
	}

	n := &node{key: k, val: v, exp: ttl}
	s.m[k] = n
	if ev := s.pol.OnAdd(n); ev != nil {
		s.evictNode(ev.(*node))
	}
	s.enforceLimitLocked()
}

// Get returns the value and the remaining TTL (nil if no TTL), promoting
// the entry according to the policy. Returns ok=false on miss or
// expiration.
func (s *shard) Get(k string) (val []byte, remaining *time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, present := s.m[k]
	if !present {
		s.misses.Add(1)
		return nil, nil, false
	}
	if s.expiredLocked(n) {
		s.evictNode(n)
		s.misses.Add(1)
		return nil, nil, false
	}

	s.pol.OnGet(n)
	s.hits.Add(1)

	if n.exp == 0 {
		return n.val, nil, true
	}
	d := time.Duration(n.exp - s.now())
	if d < 0 {
		d = 0
	}
	return n.val, &d, true
}

// Remove deletes an entry by key. Returns true if the entry existed.
func (s *shard) Remove(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, k)
	return true
}

// Len returns the number of resident entries in this shard.
func (s *shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// Keys returns a snapshot of every live (non-expired) key in this shard.
// Used by Tier.Keys, which the manager's local glob-pattern cleanup
// relies on.
func (s *shard) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.len)
	for k, n := range s.m {
		if !s.expiredLocked(n) {
			out = append(out, k)
		}
	}
	return out
}

// -------------------- internals (mu held) --------------------

func (s *shard) expiredLocked(n *node) bool {
	if n.exp == 0 {
		return false
	}
	return s.now() > n.exp
}

func (s *shard) now() int64 {
	if s.clk != nil {
		return s.clk.NowUnixNano()
	}
	return time.Now().UnixNano()
}

func (s *shard) insertFront(n *node) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

func (s *shard) moveToFront(n *node) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard) removeNode(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

func (s *shard) back() *node { return s.tail }

func (s *shard) evictNode(n *node) {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
}

func (s *shard) enforceLimitLocked() {
	for s.len > s.cap {
		if tail := s.back(); tail != nil {
			s.evictNode(tail)
		} else {
			break
		}
	}
}

// -------------------- policy hooks --------------------

type shardHooks struct{ s *shard }

func (h shardHooks) MoveToFront(x policy.Node[string, []byte]) { h.s.moveToFront(x.(*node)) }
func (h shardHooks) PushFront(x policy.Node[string, []byte])   { h.s.insertFront(x.(*node)) }
func (h shardHooks) Remove(x policy.Node[string, []byte])      { h.s.removeNode(x.(*node)) }
func (h shardHooks) Back() policy.Node[string, []byte] {
	if b := h.s.back(); b != nil {
		return b
	}
	return nil
}
func (h shardHooks) Len() int { return h.s.len }
