package services

import (
	"hash/fnv"
	"sort"
	"sync"
)

const shardCount = 32

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

type setShard struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

// setIndex is a concurrent key -> set-of-members map. Each key lives in one
// of shardCount shards, so writers on different keys rarely contend. Empty
// sets are deleted as soon as their last member is removed.
type setIndex struct {
	shards [shardCount]*setShard
}

func newSetIndex() *setIndex {
	x := &setIndex{}
	for i := range x.shards {
		x.shards[i] = &setShard{sets: make(map[string]map[string]struct{})}
	}
	return x
}

func (x *setIndex) shard(key string) *setShard {
	return x.shards[shardOf(key)]
}

// add reports whether member was newly added and the set size afterwards.
func (x *setIndex) add(key, member string) (bool, int) {
	s := x.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false, len(set)
	}
	set[member] = struct{}{}
	return true, len(set)
}

// remove reports whether member was present and the set size afterwards.
func (x *setIndex) remove(key, member string) (bool, int) {
	s := x.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return false, 0
	}
	if _, exists := set[member]; !exists {
		return false, len(set)
	}
	delete(set, member)
	if len(set) == 0 {
		delete(s.sets, key)
		return true, 0
	}
	return true, len(set)
}

// drop removes the whole set and returns its former members.
func (x *setIndex) drop(key string) []string {
	s := x.shard(key)
	s.mu.Lock()
	set := s.sets[key]
	delete(s.sets, key)
	s.mu.Unlock()
	return sortedKeys(set)
}

func (x *setIndex) has(key, member string) bool {
	s := x.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[key][member]
	return ok
}

func (x *setIndex) members(key string) []string {
	s := x.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.sets[key])
}

func (x *setIndex) size(key string) int {
	s := x.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[key])
}

// keys returns every key with a non-empty set. The result is a point in
// time view per shard, not a global snapshot.
func (x *setIndex) keys() []string {
	var out []string
	for _, s := range x.shards {
		s.mu.RLock()
		for k := range s.sets {
			out = append(out, k)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (x *setIndex) count() (keys, members int) {
	for _, s := range x.shards {
		s.mu.RLock()
		keys += len(s.sets)
		for _, set := range s.sets {
			members += len(set)
		}
		s.mu.RUnlock()
	}
	return keys, members
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// stripedLock serializes work per key without a map entry per key.
type stripedLock struct {
	stripes [shardCount]sync.Mutex
}

func (l *stripedLock) lock(key string) func() {
	m := &l.stripes[shardOf(key)]
	m.Lock()
	return m.Unlock
}
