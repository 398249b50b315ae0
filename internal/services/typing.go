package services

import (
	"sort"
	"sync"
	"time"

	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
)

type typingShard struct {
	mu sync.Mutex
	// receiver -> sender -> last StartTyping
	typers map[string]map[string]time.Time
}

// TypingTracker keeps, per receiver, the set of senders currently typing at
// them and tells the receiver's connections when that set changes.
type TypingTracker struct {
	shards [shardCount]*typingShard
	bySend *setIndex // sender -> receivers
	reg    *ConnectionRegistry
	push   Pusher
	now    func() time.Time
	log    zerolog.Logger
}

func NewTypingTracker(registry *ConnectionRegistry, push Pusher, log zerolog.Logger) *TypingTracker {
	t := &TypingTracker{
		bySend: newSetIndex(),
		reg:    registry,
		push:   push,
		now:    time.Now,
		log:    log.With().Str("component", "typing").Logger(),
	}
	for i := range t.shards {
		t.shards[i] = &typingShard{typers: make(map[string]map[string]time.Time)}
	}
	return t
}

func (t *TypingTracker) shard(receiverID string) *typingShard {
	return t.shards[shardOf(receiverID)]
}

// StartTyping records that senderID is typing at receiverID. Only the first
// call notifies the receiver; repeats just refresh the entry.
func (t *TypingTracker) StartTyping(senderID, receiverID string) bool {
	if senderID == receiverID {
		return false
	}
	s := t.shard(receiverID)
	s.mu.Lock()
	set, ok := s.typers[receiverID]
	if !ok {
		set = make(map[string]time.Time)
		s.typers[receiverID] = set
	}
	_, existed := set[senderID]
	set[senderID] = t.now()
	if !existed {
		t.bySend.add(senderID, receiverID)
	}
	s.mu.Unlock()

	if existed {
		return false
	}
	t.notify(receiverID, models.NewEvent(models.EventUserTyping, senderID))
	return true
}

// StopTyping clears the entry and notifies the receiver if one existed.
func (t *TypingTracker) StopTyping(senderID, receiverID string) bool {
	if !t.clear(senderID, receiverID) {
		return false
	}
	t.notify(receiverID, models.NewEvent(models.EventUserStoppedTyping, senderID))
	return true
}

func (t *TypingTracker) clear(senderID, receiverID string) bool {
	s := t.shard(receiverID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.typers[receiverID]
	if !ok {
		return false
	}
	if _, ok := set[senderID]; !ok {
		return false
	}
	delete(set, senderID)
	if len(set) == 0 {
		delete(s.typers, receiverID)
	}
	t.bySend.remove(senderID, receiverID)
	return true
}

// ClearAllForUser drops every entry where userID is the typist, notifying
// each receiver, and forgets who was typing at userID. It returns the
// receivers that were notified.
func (t *TypingTracker) ClearAllForUser(userID string) []string {
	var notified []string
	for _, receiverID := range t.bySend.members(userID) {
		if t.StopTyping(userID, receiverID) {
			notified = append(notified, receiverID)
		}
	}

	s := t.shard(userID)
	s.mu.Lock()
	senders := s.typers[userID]
	delete(s.typers, userID)
	for senderID := range senders {
		t.bySend.remove(senderID, userID)
	}
	s.mu.Unlock()

	return notified
}

// typersOf returns who is currently typing at receiverID.
func (t *TypingTracker) typersOf(receiverID string) []string {
	s := t.shard(receiverID)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.typers[receiverID]))
	for senderID := range s.typers[receiverID] {
		out = append(out, senderID)
	}
	sort.Strings(out)
	return out
}

// Sweep stops every entry not refreshed within idle and returns how many
// it cleared.
func (t *TypingTracker) Sweep(idle time.Duration) int {
	cutoff := t.now().Add(-idle)

	type pair struct{ sender, receiver string }
	var expired []pair
	for _, s := range t.shards {
		s.mu.Lock()
		for receiverID, set := range s.typers {
			for senderID, at := range set {
				if at.Before(cutoff) {
					expired = append(expired, pair{senderID, receiverID})
				}
			}
		}
		s.mu.Unlock()
	}

	n := 0
	for _, p := range expired {
		if t.StopTyping(p.sender, p.receiver) {
			n++
		}
	}
	if n > 0 {
		t.log.Debug().Int("cleared", n).Msg("expired typing indicators")
	}
	return n
}

func (t *TypingTracker) notify(receiverID string, ev models.Event) {
	pushAll(t.push, t.reg.ConnectionsFor(receiverID), ev)
}
