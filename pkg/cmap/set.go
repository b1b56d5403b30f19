// Package cmap implements a small generic concurrent set, used where more
// than one goroutine needs to hand values to a single consumer without the
// consumer blocking to receive them one at a time. Its one production call
// site is a Dispatch reactor's "clients with results ready to write" inbox:
// Workers running on arbitrary goroutines add fds to it, and the Dispatch
// goroutine that owns those fds drains it in one pass per wakeup.
package cmap

import (
	"hash/maphash"
	"sync"
)

// shardCount is fixed rather than configurable: this set only ever serves a
// handful of concurrent Worker goroutines per Dispatch, so contention is
// already low. More shards than that just wastes memory on empty maps.
const shardCount = 8

// Set is a sharded concurrent set of comparable values. Unlike a cache, it
// carries no TTL or eviction: membership is simply added (Add) and drained
// wholesale (Take), matching the add/take-with-exchange shape of a simple
// cross-thread fd inbox rather than a lookup structure.
type Set[T comparable] struct {
	seed   maphash.Seed
	shards [shardCount]shard[T]
}

type shard[T comparable] struct {
	mu    sync.Mutex
	items map[T]struct{}
}

// NewSet returns an empty Set.
func NewSet[T comparable]() *Set[T] {
	s := &Set[T]{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].items = make(map[T]struct{})
	}
	return s
}

func (s *Set[T]) shardFor(v T) *shard[T] {
	h := maphash.Comparable(s.seed, v)
	return &s.shards[h%shardCount]
}

// Add inserts v. Safe to call concurrently from any number of goroutines.
func (s *Set[T]) Add(v T) {
	sh := s.shardFor(v)
	sh.mu.Lock()
	sh.items[v] = struct{}{}
	sh.mu.Unlock()
}

// Take atomically empties the set and returns whatever it held, in no
// particular order. A Set with nothing in it returns nil. Intended for a
// single consumer goroutine to call on its own wakeup cadence; concurrent
// calls to Take are safe but will simply split whatever was present between
// them.
func (s *Set[T]) Take() []T {
	var out []T
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		if len(sh.items) > 0 {
			for v := range sh.items {
				out = append(out, v)
			}
			sh.items = make(map[T]struct{})
		}
		sh.mu.Unlock()
	}
	return out
}
