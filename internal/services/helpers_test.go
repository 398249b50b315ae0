package services

import (
	"sync"

	"github.com/careline/realtime/internal/models"
)

// recordingPusher keeps every event pushed per connection. Connections
// marked gone refuse pushes, like a closed socket.
type recordingPusher struct {
	mu     sync.Mutex
	events map[string][]models.Event
	gone   map[string]bool
}

func newRecordingPusher() *recordingPusher {
	return &recordingPusher{
		events: make(map[string][]models.Event),
		gone:   make(map[string]bool),
	}
}

func (p *recordingPusher) Push(connectionID string, ev models.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[connectionID] {
		return false
	}
	p.events[connectionID] = append(p.events[connectionID], ev)
	return true
}

func (p *recordingPusher) kill(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gone[connectionID] = true
}

func (p *recordingPusher) of(connectionID string) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.events[connectionID]...)
}

func (p *recordingPusher) methods(connectionID string) []string {
	var out []string
	for _, ev := range p.of(connectionID) {
		out = append(out, ev.Method)
	}
	return out
}

func (p *recordingPusher) count(connectionID, method string) int {
	n := 0
	for _, ev := range p.of(connectionID) {
		if ev.Method == method {
			n++
		}
	}
	return n
}

func (p *recordingPusher) last(connectionID, method string) (models.Event, bool) {
	evs := p.of(connectionID)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Method == method {
			return evs[i], true
		}
	}
	return models.Event{}, false
}

func (p *recordingPusher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = make(map[string][]models.Event)
}

// batchingPusher records each PushMany call as one batch.
type batchingPusher struct {
	*recordingPusher
	batches [][]string
}

func (p *batchingPusher) PushMany(connectionIDs []string, ev models.Event) int {
	p.mu.Lock()
	p.batches = append(p.batches, append([]string(nil), connectionIDs...))
	p.mu.Unlock()
	n := 0
	for _, c := range connectionIDs {
		if p.Push(c, ev) {
			n++
		}
	}
	return n
}
