package services

import (
	"context"

	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
)

// PresenceTracker turns registry changes into UserOnline / UserOffline
// events. Events are best effort; a client that misses one reconciles from
// the snapshot it receives on its next connect.
type PresenceTracker struct {
	registry *ConnectionRegistry
	store    database.MessageStore
	push     Pusher
	locks    stripedLock
	log      zerolog.Logger
}

func NewPresenceTracker(registry *ConnectionRegistry, store database.MessageStore, push Pusher, log zerolog.Logger) *PresenceTracker {
	return &PresenceTracker{
		registry: registry,
		store:    store,
		push:     push,
		log:      log.With().Str("component", "presence").Logger(),
	}
}

// Connect registers the connection, announces the user if this is their
// first device, and sends the new connection the online subset of its
// conversation partners.
func (p *PresenceTracker) Connect(ctx context.Context, userID, connectionID string) {
	unlock := p.locks.lock(userID)
	if p.registry.Register(userID, connectionID) {
		n := pushAll(p.push, p.registry.ConnectionsExcept(userID), models.NewEvent(models.EventUserOnline, userID))
		p.log.Debug().Str("user_id", userID).Int("notified", n).Msg("user online")
	}
	unlock()

	p.sendSnapshot(ctx, userID, connectionID)
}

// Disconnect deregisters the connection and reports whether the user went
// offline. UserOffline is sent once, when the last device leaves.
func (p *PresenceTracker) Disconnect(userID, connectionID string) bool {
	unlock := p.locks.lock(userID)
	defer unlock()

	if !p.registry.Deregister(userID, connectionID) {
		return false
	}
	n := pushAll(p.push, p.registry.ConnectionsExcept(userID), models.NewEvent(models.EventUserOffline, userID))
	p.log.Debug().Str("user_id", userID).Int("notified", n).Msg("user offline")
	return true
}

func (p *PresenceTracker) sendSnapshot(ctx context.Context, userID, connectionID string) {
	partners, err := p.store.ListDistinctPartners(ctx, userID)
	if err != nil {
		p.log.Error().Err(err).Str("user_id", userID).Msg("list conversation partners")
		partners = nil
	}

	online := make([]string, 0, len(partners))
	for _, partner := range partners {
		if partner != userID && p.registry.IsOnline(partner) {
			online = append(online, partner)
		}
	}
	p.push.Push(connectionID, models.NewEvent(models.EventOnlineUsers, online))
}
