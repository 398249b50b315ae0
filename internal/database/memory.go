package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/careline/realtime/internal/models"
)

// MemoryDB keeps messages and profiles in process. It backs development runs
// without Postgres and the service tests.
type MemoryDB struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
	profiles map[string]models.DisplayInfo

	// failWrites makes every status write fail with the given error.
	failWrites error
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		messages: make(map[string]*models.Message),
		profiles: make(map[string]models.DisplayInfo),
	}
}

// PutMessage stores a copy of msg, replacing any message with the same id.
func (db *MemoryDB) PutMessage(msg models.Message) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.messages[msg.ID] = &msg
}

func (db *MemoryDB) PutProfile(userID string, info models.DisplayInfo) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.profiles[userID] = info
}

func (db *MemoryDB) SetFailWrites(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failWrites = err
}

func (db *MemoryDB) Ping(context.Context) error { return nil }

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) GetMessage(_ context.Context, id string) (*models.Message, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	msg, ok := db.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (db *MemoryDB) SetStatus(_ context.Context, id string, status models.MessageStatus, at time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.failWrites != nil {
		return false, db.failWrites
	}
	msg, ok := db.messages[id]
	if !ok {
		return false, ErrNotFound
	}
	if !msg.Status.Advances(status) {
		return false, nil
	}
	advance(msg, status, at)
	return true, nil
}

func (db *MemoryDB) BulkSetRead(_ context.Context, conversationID, userID string, at time.Time) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.failWrites != nil {
		return nil, db.failWrites
	}
	var changed []*models.Message
	for _, msg := range db.messages {
		if msg.ConversationID != conversationID || msg.ReceiverID != userID || msg.Status == models.StatusRead {
			continue
		}
		advance(msg, models.StatusRead, at)
		cp := *msg
		changed = append(changed, &cp)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].SentAt.Before(changed[j].SentAt) })
	return changed, nil
}

func advance(msg *models.Message, status models.MessageStatus, at time.Time) {
	msg.Status = status
	switch status {
	case models.StatusDelivered:
		msg.DeliveredAt = &at
	case models.StatusRead:
		msg.ReadAt = &at
		if msg.DeliveredAt == nil {
			msg.DeliveredAt = &at
		}
	}
}

func (db *MemoryDB) ListDistinctPartners(_ context.Context, userID string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, msg := range db.messages {
		switch userID {
		case msg.SenderID:
			seen[msg.ReceiverID] = struct{}{}
		case msg.ReceiverID:
			seen[msg.SenderID] = struct{}{}
		}
	}
	partners := make([]string, 0, len(seen))
	for p := range seen {
		partners = append(partners, p)
	}
	sort.Strings(partners)
	return partners, nil
}

func (db *MemoryDB) GetDisplayInfo(_ context.Context, userID string) (*models.DisplayInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	info, ok := db.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &info, nil
}
